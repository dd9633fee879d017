// Package http implements the HTTP handlers of the adrollup service. Handlers
// stay thin: they parse and validate the request, call the pipeline or
// health service, and render the response.
//
// # Routes
//
//	POST   /api/runs                              upload a workbook, start a run
//	GET    /api/runs/{runID}                      run summary
//	DELETE /api/runs/{runID}                      drop a run
//	GET    /api/runs/{runID}/rows                 combined row set
//	GET    /api/runs/{runID}/events?event=        event report
//	GET    /api/runs/{runID}/events/summary       event summary
//	GET    /api/runs/{runID}/properties?property= property report
//	GET    /api/runs/{runID}/properties/summary   property summary
//	GET    /api/runs/{runID}/download/{view}      xlsx attachment
//	POST   /api/runs/{runID}/validate             email the digest
//	POST   /api/runs/{runID}/archive              archive the four reports
//	GET    /healthz, /healthz/ready, /healthz/live
//	GET    /metrics
//
// # Error Handling
//
// All errors follow RFC 7807 Problem Details and carry the trace ID:
//
//	{
//	    "type": "/errors/run/not-found",
//	    "title": "Not Found",
//	    "status": 404,
//	    "detail": "Run not found or expired",
//	    "instance": "/api/runs/4b0f...",
//	    "trace_id": "4b0f..."
//	}
//
// # Testing
//
// Handlers are tested with httptest against a mocked RunServiceInterface.
package http
