// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// Configuration is layered with koanf: built-in defaults ([DefaultConfig]),
// then an optional YAML file (CONFIG_PATH, ./config.yaml or
// /etc/media-vault/config.yaml), then a fixed set of environment variables.
// The result is checked with validator struct tags plus cross-field rules in
// [Config.Validate].
//
// Commonly used environment variables:
//
//   - DATA_DIR: Data directory for the catalog, queue and generated files (default: /data)
//   - VIDEO_PATHS, IMAGE_PATHS: Comma-separated library roots
//   - EXCLUDE: Comma-separated exclusion regular expressions
//   - SCAN_INTERVAL: Periodic scan interval as Go duration, 0 disables (default: 30m)
//   - THUMBNAIL_COUNT, THUMBNAIL_START, THUMBNAIL_END: Thumbnail policy
//   - IGNORE_SINGLE_NAMES: Skip one-word names when matching (default: true)
//   - FFMPEG_PATH, FFPROBE_PATH: Media tool locations
//   - STORE_BACKEND: sqlite or helper (default: sqlite)
//   - PORT: HTTP server port (default: 8080)
//   - LOG_LEVEL, LOG_FORMAT: Logging
//
// Plugins and helper release assets are only configurable from the YAML file.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// The Log* functions print the sectioned startup and shutdown output used by
// main, e.g. [LogStoreInit], [LogHelpersInit], [LogServerStarted] and
// [LogShutdownComplete].
package startup
