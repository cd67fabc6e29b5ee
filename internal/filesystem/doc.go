/*
Package filesystem wraps os.Stat and os.Open with retries for NFS stale file
handle (ESTALE) errors.

Library roots are frequently network mounts. A file that was just discovered
by the scanner can transiently fail with ESTALE when the ingestion queue
stats or hashes it; those errors are retried with exponential backoff while
every other error (including "not exist") is returned immediately.

	info, err := filesystem.StatWithRetry(ctx, path, filesystem.DefaultRetryConfig())

Metric recording goes through the [Observer] interface so this package does
not import metrics. Labels use the volume name resolved by [VolumeResolver],
which maps a path to the configured root it lives under ("video", "image",
"data") by longest prefix.
*/
package filesystem
