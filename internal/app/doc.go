// Package app wires configuration, logging, telemetry, services and the HTTP
// router of adrollup, and manages the server lifecycle.
//
// # Initialization Flow
//
//  1. Load configuration from the environment and the optional YAML file
//  2. Initialize the JSON logger and OpenTelemetry providers
//  3. Build the archive sink, notifier, session store and pipeline service
//  4. Set up middleware and routes
//  5. Create the HTTP server
//
// # Usage
//
//	a, err := app.NewApplication(nil)
//	if err != nil {
//	    return err
//	}
//	return a.Run()
//
// Run serves until SIGINT or SIGTERM, drains in-flight requests within the
// shutdown timeout and flushes telemetry. The CLI reuses NewApplication to
// run the pipeline once without starting the server.
package app
