// Package middleware provides the HTTP middleware wrapped around the API:
// structured request logging and Prometheus request metrics.
package middleware
