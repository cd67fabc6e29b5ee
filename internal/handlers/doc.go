// Package handlers implements the HTTP API of the ingestion service.
//
// Queue endpoints:
//
//	GET    /queue/head   oldest pending item, or null
//	GET    /queue        queue length and loop state
//	POST   /queue/{id}   complete an item with {scene, thumbs, images}
//	DELETE /queue/{id}   drop an item without processing
//
// Scanning and search:
//
//	POST /scan           start a library scan (202, or 409 while one runs)
//	GET  /search         query the search helper when it is enabled
//
// Operations:
//
//	GET /health, GET /version, GET /metrics
package handlers
