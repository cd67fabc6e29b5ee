package matching

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type fakeSource map[Collection][]Candidate

func (f fakeSource) Candidates(_ context.Context, c Collection) ([]Candidate, error) {
	if c == "broken" {
		return nil, errors.New("store offline")
	}
	return f[c], nil
}

func newTestExtractor() *Extractor {
	return NewExtractor(fakeSource{
		Actors: {
			{ID: "ac_jane", Name: "Jane Doe"},
			{ID: "ac_john", Name: "John Roe", Aliases: []string{"Johnny R"}},
			{ID: "ac_mono", Name: "Mono"},
		},
		Labels: {
			{ID: "la_outdoor", Name: "Outdoor"},
			{ID: "la_beach", Name: "Beach Day"},
		},
		Studios: {
			{ID: "st_alpha", Name: "Alpha Studio"},
			{ID: "st_beta", Name: "Beta Films"},
		},
		Movies: {
			{ID: "mo_summer", Name: "Summer Story"},
		},
		CustomFields: {
			{ID: "cf_res", Name: "Resolution", Aliases: []string{"regex:\\b(720|1080|2160)p\\b"}},
		},
	}, true)
}

func TestExtractor(t *testing.T) {
	e := newTestExtractor()
	ctx := context.Background()
	path := PathText("/library/Alpha Studio/Beta Films - Jane Doe & Johnny R - Beach Day 1080p.mp4")

	actors, err := e.ExtractActors(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(actors, []string{"ac_jane", "ac_john"}) {
		t.Errorf("actors = %v", actors)
	}

	labels, err := e.ExtractLabels(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(labels, []string{"la_beach"}) {
		t.Errorf("labels = %v", labels)
	}

	studio, err := e.ExtractStudio(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if studio != "st_beta" {
		t.Errorf("studio = %q, want st_beta", studio)
	}

	fields, err := e.ExtractCustomFields(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(fields, []string{"cf_res"}) {
		t.Errorf("custom fields = %v", fields)
	}

	movies, err := e.ExtractMovies(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if len(movies) != 0 {
		t.Errorf("movies = %v, want none", movies)
	}

	scenes, err := e.ExtractScenes(ctx, path)
	if err != nil || len(scenes) != 0 {
		t.Errorf("scenes = %v, %v", scenes, err)
	}
}

func TestExtractStudioNone(t *testing.T) {
	studio, err := newTestExtractor().ExtractStudio(context.Background(), "home video")
	if err != nil || studio != "" {
		t.Errorf("ExtractStudio() = %q, %v", studio, err)
	}
}

func TestExtractSourceError(t *testing.T) {
	e := newTestExtractor()
	if _, err := e.extractIDs(context.Background(), "broken", "x", SortDiscovery); err == nil {
		t.Error("expected source error")
	}
}

func TestPathText(t *testing.T) {
	if got := PathText("/a/b/Jane Doe.mp4"); got != "/a/b/Jane Doe" {
		t.Errorf("PathText() = %q", got)
	}
}
