// Package services implements the business logic layer of adrollup. It sits
// between the HTTP handlers or CLI and the ingest, aggregate, report, notify
// and archive packages.
//
// # Pipeline
//
// PipelineService.Run processes one uploaded workbook end to end:
//
//  1. every sheet is written to its own store in a per-run backend
//  2. the stores are aggregated into one combined row set
//  3. every store is removed, whatever the outcome
//  4. the event and property views are built when rows were found
//
// A workbook that cannot be ingested does not fail the call. The run is
// kept with status ingest_failed so the caller can show what went wrong.
//
// Completed runs live in a SessionStore for a fixed TTL. Every follow-up
// operation (records, filtered reports, summaries, downloads, validation
// email, archive) looks the run up by ID.
//
// # Error Handling
//
// Services return *errors.AppError values wrapping the sentinels in this
// package, so handlers can map them to problem responses and callers can
// still use errors.Is:
//
//	run, err := svc.Get(id)
//	if errors.Is(err, services.ErrRunNotFound) {
//	    ...
//	}
//
// # Health
//
// HealthService reports readiness from the work directory and describes the
// optional notification and archive integrations.
package services
