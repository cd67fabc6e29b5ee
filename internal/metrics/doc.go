// Package metrics declares the Prometheus collectors exported at /metrics.
//
// Metrics are registered with promauto at package init and grouped by
// subsystem: HTTP, catalog store, scanner, ingestion queue, media tools,
// plugins, helper services and filesystem retries. All names share the
// media_vault_ prefix.
//
// Most values are updated inline by the owning package. [Collector] polls the
// catalog record counts and the queue length on an interval, and runs as a
// supervised service.
package metrics
