// Package memory keeps the process inside its container memory limit.
//
// ConfigureFromEnv derives GOMEMLIMIT from MEMORY_LIMIT at startup. Monitor
// samples the heap and pauses the ingestion queue between items while
// usage sits above the critical watermark.
package memory
