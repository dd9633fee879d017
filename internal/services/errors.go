package services

import "errors"

var (
	// ErrRunNotFound is returned for unknown or expired run IDs.
	ErrRunNotFound = errors.New("run not found")
	// ErrNoData is returned when a run's combined row set is empty and no
	// report can be built from it.
	ErrNoData = errors.New("no data available for the selected sheets")
	// ErrArchiveDisabled is returned by Archive when no sink is configured.
	ErrArchiveDisabled = errors.New("report archive is disabled")
)
