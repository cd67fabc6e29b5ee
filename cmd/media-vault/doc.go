// Command media-vault runs the library ingestion service.
//
// The binary is built from the module root (go build .); this directory
// holds its documentation.
//
// # Startup
//
//  1. Configuration: defaults, then an optional YAML file (CONFIG_PATH),
//     then environment variables. Invalid values stop the process.
//  2. Memory: GOMEMLIMIT is derived from MEMORY_LIMIT when set.
//  3. Media tools: ffmpeg and ffprobe must run, or startup fails with
//     instructions.
//  4. Helper services: the record store and search helpers, when enabled,
//     are downloaded if missing, spawned and supervised. A helper that is
//     not ready after the configured attempts stops startup.
//  5. Ingestion: the catalog, the durable queue (resuming leftover items),
//     the plugin runner and the scanner are wired into one service.
//  6. HTTP: the queue, scan, search, health, version and metrics endpoints.
//
// # Shutdown
//
// SIGINT or SIGTERM stops the HTTP server, then the scanner, then waits for
// the in-flight queue item, then stops the helpers.
package mediavault
