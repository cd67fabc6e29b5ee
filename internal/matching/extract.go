package matching

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Collection names an entity collection that can be matched against.
type Collection string

const (
	Actors       Collection = "actors"
	Labels       Collection = "labels"
	Studios      Collection = "studios"
	Scenes       Collection = "scenes"
	Movies       Collection = "movies"
	CustomFields Collection = "custom_fields"
)

// Source supplies match candidates for a collection.
type Source interface {
	Candidates(ctx context.Context, c Collection) ([]Candidate, error)
}

// Extractor pulls entity ids out of file names and other free text.
type Extractor struct {
	source            Source
	ignoreSingleNames bool
}

// NewExtractor creates an Extractor over src.
func NewExtractor(src Source, ignoreSingleNames bool) *Extractor {
	return &Extractor{source: src, ignoreSingleNames: ignoreSingleNames}
}

// PathText is the text matched for a file: the full path without its
// extension, so directory names contribute too.
func PathText(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

func (e *Extractor) extract(ctx context.Context, c Collection, text string, mode SortMode) ([]Hit, error) {
	candidates, err := e.source.Candidates(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", c, err)
	}
	return Match(candidates, text, Options{Sort: mode, IgnoreSingleNames: e.ignoreSingleNames}), nil
}

func ids(matches []Hit) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.ID
	}
	return out
}

func (e *Extractor) extractIDs(ctx context.Context, c Collection, text string, mode SortMode) ([]string, error) {
	m, err := e.extract(ctx, c, text, mode)
	if err != nil {
		return nil, err
	}
	return ids(m), nil
}

// ExtractActors returns actor ids found in text, longest match first.
func (e *Extractor) ExtractActors(ctx context.Context, text string) ([]string, error) {
	return e.extractIDs(ctx, Actors, text, SortLongestMatch)
}

// ExtractLabels returns label ids found in text, longest match first.
func (e *Extractor) ExtractLabels(ctx context.Context, text string) ([]string, error) {
	return e.extractIDs(ctx, Labels, text, SortLongestMatch)
}

// ExtractStudio returns the studio mentioned last in text, or "".
func (e *Extractor) ExtractStudio(ctx context.Context, text string) (string, error) {
	m, err := e.extract(ctx, Studios, text, SortReverseAppearance)
	if err != nil || len(m) == 0 {
		return "", err
	}
	return m[0].ID, nil
}

// ExtractScenes returns scene ids found in text, longest match first.
func (e *Extractor) ExtractScenes(ctx context.Context, text string) ([]string, error) {
	return e.extractIDs(ctx, Scenes, text, SortLongestMatch)
}

// ExtractMovies returns movie ids found in text, longest match first.
func (e *Extractor) ExtractMovies(ctx context.Context, text string) ([]string, error) {
	return e.extractIDs(ctx, Movies, text, SortLongestMatch)
}

// ExtractCustomFields returns custom field ids found in text in the order
// the fields are defined.
func (e *Extractor) ExtractCustomFields(ctx context.Context, text string) ([]string, error) {
	return e.extractIDs(ctx, CustomFields, text, SortDiscovery)
}
