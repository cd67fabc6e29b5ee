// Package indexer discovers library files and hands new ones to the
// ingestion queue.
//
// A scan walks the configured video roots, then the image roots. Each
// walk skips hidden entries and anything matching an exclude pattern, and
// only keeps files whose extension belongs to the kind being walked.
// Files that are already catalogued or already queued are ignored; the
// rest are queued with actors, labels and studio pre-filled from their
// path. The queue is kicked as soon as video discovery finishes so that
// ingestion overlaps the image walk. A scan ends by pruning dangling
// cross-references.
//
// Scans run at startup, on a fixed interval and on demand. At most one
// scan runs at a time; overlapping requests fail with
// apperrors.ErrScanInProgress.
package indexer
