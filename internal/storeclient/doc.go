// Package storeclient talks to the two helper services over HTTP: the
// record store, which implements database.DocStore, and the search index.
// Every request goes through a per-helper circuit breaker so that a dead
// helper fails fast instead of stalling the ingestion loop.
package storeclient
