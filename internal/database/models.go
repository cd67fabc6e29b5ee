package database

import "time"

// Collection names used by the catalog.
const (
	CollectionActors       = "actors"
	CollectionLabels       = "labels"
	CollectionStudios      = "studios"
	CollectionMovies       = "movies"
	CollectionCustomFields = "custom_fields"
	CollectionScenes       = "scenes"
	CollectionImages       = "images"
	CollectionReferences   = "references"
	CollectionMeta         = "meta"
)

// Entity is a named, aliasable catalog record: actor, label, studio, movie
// or custom field.
type Entity struct {
	ID      string   `json:"_id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
	AddedOn int64    `json:"addedOn"`
}

// SceneMeta is the probed technical metadata of a video.
type SceneMeta struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	Size     int64   `json:"size"`
}

// Scene is a catalogued video. Actor and label membership is stored as
// cross-references, not on the record.
type Scene struct {
	ID           string                 `json:"_id"`
	Name         string                 `json:"name"`
	Path         string                 `json:"path"`
	Description  string                 `json:"description,omitempty"`
	Rating       int                    `json:"rating"`
	Favorite     bool                   `json:"favorite"`
	Bookmark     *int64                 `json:"bookmark,omitempty"`
	ReleaseDate  *int64                 `json:"releaseDate,omitempty"`
	Studio       string                 `json:"studio,omitempty"`
	CustomFields map[string]interface{} `json:"customFields,omitempty"`
	Thumbnail    string                 `json:"thumbnail,omitempty"`
	Preview      string                 `json:"preview,omitempty"`
	Meta         SceneMeta              `json:"meta"`
	Checksum     string                 `json:"hash,omitempty"`
	AddedOn      int64                  `json:"addedOn"`
}

// ImageMeta is the decoded size of an image.
type ImageMeta struct {
	Width  int   `json:"width"`
	Height int   `json:"height"`
	Size   int64 `json:"size"`
}

// Image is a catalogued picture, a generated scene thumbnail or an image
// created by a plugin.
type Image struct {
	ID            string                 `json:"_id"`
	Name          string                 `json:"name"`
	Path          string                 `json:"path,omitempty"`
	Scene         string                 `json:"scene,omitempty"`
	Studio        string                 `json:"studio,omitempty"`
	Rating        int                    `json:"rating"`
	Favorite      bool                   `json:"favorite"`
	Bookmark      *int64                 `json:"bookmark,omitempty"`
	CustomFields  map[string]interface{} `json:"customFields,omitempty"`
	ThumbnailPath string                 `json:"thumbPath,omitempty"`
	Meta          ImageMeta              `json:"meta"`
	Checksum      string                 `json:"hash,omitempty"`
	AddedOn       int64                  `json:"addedOn"`
}

// CrossReference links two catalog ids, e.g. scene -> actor.
type CrossReference struct {
	ID   string `json:"_id"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Stats summarizes the catalog for the health endpoint.
type Stats struct {
	Counts   map[string]int `json:"counts"`
	LastScan time.Time      `json:"lastScan"`
}

// Now returns the catalog timestamp format (unix milliseconds).
func Now() int64 {
	return time.Now().UnixMilli()
}
