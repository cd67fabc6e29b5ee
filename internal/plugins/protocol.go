package plugins

import (
	"github.com/goccy/go-json"
)

// Message types.
const (
	MsgInit   = "init"
	MsgCall   = "call"
	MsgReply  = "reply"
	MsgLog    = "log"
	MsgResult = "result"
)

// Helper methods plugins may call.
const (
	MethodCreateImage      = "$createImage"
	MethodCreateLocalImage = "$createLocalImage"
)

// Message is one line of the plugin protocol. Only the fields relevant to
// Type are set.
type Message struct {
	Type string `json:"type"`

	// init
	Event  string         `json:"event,omitempty"`
	Plugin string         `json:"plugin,omitempty"`
	Input  map[string]any `json:"input,omitempty"`
	Args   map[string]any `json:"args,omitempty"`

	// call / reply
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	// log
	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`

	// init carries the accumulated output, result the plugin's output.
	Data json.RawMessage `json:"data,omitempty"`
}

// Output is the merged result of the plugins run for one event.
type Output map[string]any

// Events plugins can be bound to.
const (
	EventSceneCreated = "sceneCreated"
	EventImageCreated = "imageCreated"
)
