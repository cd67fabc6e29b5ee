package metrics

import (
	"errors"
	"io/fs"

	"media-vault/internal/filesystem"
)

// libraryObserver records stat/open activity per library volume ("video",
// "image", "data"). A missing file is how a deleted queue source shows up,
// so it is timed but not counted as an error.
type libraryObserver struct{}

// NewFilesystemObserver returns the observer installed with
// filesystem.SetObserver at startup.
func NewFilesystemObserver() filesystem.Observer {
	return libraryObserver{}
}

func (libraryObserver) ObserveOperation(volume, operation string, durationSeconds float64, err error) {
	FilesystemOperationDuration.WithLabelValues(volume, operation).Observe(durationSeconds)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		FilesystemOperationErrors.WithLabelValues(volume, operation).Inc()
	}
}

func (libraryObserver) ObserveRetryAttempt(op, volume string) {
	FilesystemRetryAttempts.WithLabelValues(op, volume).Inc()
}

func (libraryObserver) ObserveRetrySuccess(op, volume string) {
	FilesystemRetrySuccess.WithLabelValues(op, volume).Inc()
}

func (libraryObserver) ObserveRetryFailure(op, volume string) {
	FilesystemRetryFailures.WithLabelValues(op, volume).Inc()
}

func (libraryObserver) ObserveRetryDuration(op, volume string, durationSeconds float64) {
	FilesystemRetryDuration.WithLabelValues(op, volume).Observe(durationSeconds)
}

func (libraryObserver) ObserveStaleError(op, volume string) {
	FilesystemStaleErrors.WithLabelValues(op, volume).Inc()
}
