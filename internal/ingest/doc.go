// Package ingest wires the library ingestion components into one Service:
// the catalog store, the durable queue and its pipeline, the scanner, the
// plugin runner and the background services that support them.
//
// A Service is built once after configuration is loaded and owns every
// component it creates; nothing here is package state.
package ingest
