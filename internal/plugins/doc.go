// Package plugins runs user plugins that enrich scenes and images during
// ingestion.
//
// Every plugin is a separate process started from its configured command.
// Host and plugin exchange newline-delimited JSON messages over the
// plugin's stdin and stdout:
//
//	host   -> {"type":"init","event":"sceneCreated","plugin":"x","input":{...},"data":{...},"args":{...}}
//	plugin -> {"type":"call","id":"1","method":"$createImage","params":{...}}
//	host   -> {"type":"reply","id":"1","result":...}        (or "error")
//	plugin -> {"type":"log","level":"info","message":"..."}
//	plugin -> {"type":"result","data":{...}}
//
// Plugins bound to an event run one after another; each sees the output
// accumulated so far in "data". Plugin output is untrusted: DecodeScene
// and DecodeImage validate it field by field before anything reaches the
// catalog.
package plugins
