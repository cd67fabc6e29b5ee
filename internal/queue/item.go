package queue

import (
	"path/filepath"

	"media-vault/internal/database"
	"media-vault/internal/mediatypes"
)

// Overrides are values fixed at enqueue time that take precedence over
// defaults derived from the file.
type Overrides struct {
	Name         *string        `json:"name,omitempty"`
	Description  *string        `json:"description,omitempty"`
	Rating       *int           `json:"rating,omitempty"`
	Favorite     *bool          `json:"favorite,omitempty"`
	Bookmark     *int64         `json:"bookmark,omitempty"`
	ReleaseDate  *int64         `json:"releaseDate,omitempty"`
	CustomFields map[string]any `json:"customFields,omitempty"`
}

// Item is a file waiting to be ingested. Actors, Labels and Studio hold
// catalog ids chosen before processing, usually by the scanner's name
// extraction.
type Item struct {
	ID        string          `json:"_id"`
	Seq       uint64          `json:"seq"`
	Kind      mediatypes.Kind `json:"kind"`
	Filename  string          `json:"filename"`
	Path      string          `json:"path"`
	Actors    []string        `json:"actors,omitempty"`
	Labels    []string        `json:"labels,omitempty"`
	Studio    string          `json:"studio,omitempty"`
	Scene     string          `json:"scene,omitempty"`
	Overrides Overrides       `json:"overrides"`
	AddedOn   int64           `json:"addedOn"`
}

// NewItem creates an item for path with a fresh id.
func NewItem(kind mediatypes.Kind, path string) *Item {
	return &Item{
		ID:       database.NewID(database.KindQueueItem),
		Kind:     kind,
		Filename: filepath.Base(path),
		Path:     path,
		AddedOn:  database.Now(),
	}
}

// ManualImage is an image file supplied when completing an item by hand.
type ManualImage struct {
	Name string `json:"name"`
	Path string `json:"path" validate:"required"`
}

// ManualResult completes a queue item with externally produced data:
// Scene fields go through the same validators as plugin output, the first
// thumb becomes the scene thumbnail.
type ManualResult struct {
	Scene  map[string]any `json:"scene"`
	Thumbs []ManualImage  `json:"thumbs" validate:"dive"`
	Images []ManualImage  `json:"images" validate:"dive"`
}
