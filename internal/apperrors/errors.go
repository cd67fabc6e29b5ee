// Package apperrors defines the error taxonomy shared by the ingestion
// pipeline. Callers wrap these sentinels with fmt.Errorf("...: %w") and test
// for them with errors.Is.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingDependency is returned when a required external binary or
	// helper process is unavailable at startup.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrSourceNotFound is returned when a queued file no longer exists.
	ErrSourceNotFound = errors.New("source file not found")

	// ErrValidation is returned when a queue item references unknown
	// catalog ids or carries malformed data.
	ErrValidation = errors.New("validation failed")

	// ErrProbe is returned when ffprobe fails or returns unusable output.
	ErrProbe = errors.New("media probe failed")

	// ErrPlugin is returned when a plugin fails to run or returns an
	// invalid protocol message.
	ErrPlugin = errors.New("plugin failed")

	// ErrDownload is returned when a helper binary cannot be fetched.
	ErrDownload = errors.New("download failed")

	// ErrUnsupportedPlatform is returned when no helper release exists for
	// the running OS/architecture.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrScanInProgress is returned when a scan is requested while one runs.
	ErrScanInProgress = errors.New("scan already in progress")

	// ErrItemInFlight is returned when a manual result targets the queue
	// item the ingestion loop is processing.
	ErrItemInFlight = errors.New("queue item is being processed")

	// ErrNotFound is returned for unknown records and queue items.
	ErrNotFound = errors.New("not found")
)

// StepError records which processing step failed for which queue item.
type StepError struct {
	ItemID string
	Path   string
	Step   string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("item %s (%s): %s: %v", e.ItemID, e.Path, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Step wraps err with item context. A nil err stays nil.
func Step(itemID, path, step string, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{ItemID: itemID, Path: path, Step: step, Err: err}
}
