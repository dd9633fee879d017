// Package config loads the application configuration.
//
// # Configuration Sources
//
// Values are read in this order of precedence:
//
//  1. Environment variables (highest priority)
//  2. A YAML file (ADROLLUP_CONFIG_FILE, ./config.yaml or ./configs/config.yaml)
//  3. Default values (lowest priority)
//
// # Environment Variables
//
// Application settings use the ADROLLUP_ prefix:
//
//	ADROLLUP_SERVER_PORT=8080
//	ADROLLUP_STORAGE_BACKEND=memory
//	ADROLLUP_ARCHIVE_BACKEND=gcs
//	ADROLLUP_ARCHIVE_BUCKET=my-reports
//
// The mail account keeps the unprefixed names used by existing deployments:
//
//	EMAIL_SENDER=reports@example.com
//	EMAIL_PASSWORD=app-password
//	EMAIL_RECEIVER=ops@example.com
//	EMAIL_SMTP_HOST=smtp.gmail.com
//	EMAIL_SMTP_PORT=465
//
// Missing mail settings never fail Load; they disable notifications only.
//
// # Paths
//
// Relative directories are resolved against Paths.BaseDir, which defaults to
// the directory of the running executable.
package config
