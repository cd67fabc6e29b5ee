package database

import (
	"strings"

	"github.com/google/uuid"
)

// Kind is the entity kind encoded in an id prefix.
type Kind string

const (
	KindActor       Kind = "ac"
	KindLabel       Kind = "la"
	KindStudio      Kind = "st"
	KindMovie       Kind = "mo"
	KindScene       Kind = "sc"
	KindImage       Kind = "im"
	KindCustomField Kind = "cf"
	KindQueueItem   Kind = "qi"
	KindReference   Kind = "xr"
)

var kindCollections = map[Kind]string{
	KindActor:       CollectionActors,
	KindLabel:       CollectionLabels,
	KindStudio:      CollectionStudios,
	KindMovie:       CollectionMovies,
	KindScene:       CollectionScenes,
	KindImage:       CollectionImages,
	KindCustomField: CollectionCustomFields,
	KindReference:   CollectionReferences,
}

// NewID returns a fresh id for kind, e.g. "sc_3f2a...".
func NewID(k Kind) string {
	return string(k) + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// KindOf returns the kind encoded in id, or "" when the prefix is unknown.
func KindOf(id string) Kind {
	prefix, _, ok := strings.Cut(id, "_")
	if !ok {
		return ""
	}
	k := Kind(prefix)
	if _, known := kindCollections[k]; known || k == KindQueueItem {
		return k
	}
	return ""
}

// CollectionOf returns the collection that stores ids of kind k.
func CollectionOf(k Kind) (string, bool) {
	c, ok := kindCollections[k]
	return c, ok
}
