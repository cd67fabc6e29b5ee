// Package database stores the media catalog.
//
// The storage layer is a small JSON document store (DocStore) with named
// collections and secondary indexes. The local implementation keeps every
// document in a single SQLite table in WAL mode and resolves indexes with
// json_extract; the record-store helper process offers the same interface
// over HTTP (see package storeclient).
//
// Catalog is the typed layer the ingestion pipeline works with: entities
// (actors, labels, studios, movies, custom fields), scenes, images and the
// cross-references that link them. Ids carry their kind as a two-letter
// prefix, e.g. "sc_..." for scenes.
package database
