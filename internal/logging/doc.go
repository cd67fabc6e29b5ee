// Package logging provides the leveled logging interface used throughout
// media-vault.
//
// Call sites keep a printf style (logging.Info("scan finished in %v", d))
// while output is produced by zerolog, either as JSON lines or through the
// console writer when stderr is a terminal.
//
// Levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The level comes from LOG_LEVEL (or DEBUG=true) and the format from
// LOG_FORMAT (json, console, auto). Components that want structured fields
// take a sub-logger with With; libraries that need *slog.Logger get one
// from Slog.
package logging
