package database

import (
	"context"
	"strings"
	"testing"

	"media-vault/internal/matching"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := NewCatalog(newTestDB(t))
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return c
}

func TestNewIDAndKindOf(t *testing.T) {
	id := NewID(KindScene)
	if !strings.HasPrefix(id, "sc_") || strings.Contains(id, "-") {
		t.Errorf("NewID(KindScene) = %q", id)
	}

	tests := []struct {
		id   string
		want Kind
	}{
		{id, KindScene},
		{"ac_123", KindActor},
		{"qi_1", KindQueueItem},
		{"zz_1", ""},
		{"noprefix", ""},
	}
	for _, tt := range tests {
		if got := KindOf(tt.id); got != tt.want {
			t.Errorf("KindOf(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestCatalogCandidatesAndFind(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	jane, err := c.CreateEntity(ctx, KindActor, "Jane Doe")
	if err != nil {
		t.Fatalf("CreateEntity() error = %v", err)
	}
	jane.Aliases = []string{"JD Star", "regex:j\\.?d"}
	if err := c.Store().Put(ctx, CollectionActors, jane.ID, jane); err != nil {
		t.Fatal(err)
	}

	cands, err := c.Candidates(ctx, matching.Actors)
	if err != nil {
		t.Fatalf("Candidates() error = %v", err)
	}
	if len(cands) != 1 || cands[0].ID != jane.ID || len(cands[0].Aliases) != 2 {
		t.Fatalf("Candidates() = %+v", cands)
	}

	for _, name := range []string{"jane doe", "JANE-DOE", "jd star"} {
		e, ok, err := c.FindEntityByName(ctx, KindActor, name)
		if err != nil || !ok || e.ID != jane.ID {
			t.Errorf("FindEntityByName(%q) = %v, %v, %v", name, e, ok, err)
		}
	}
	if _, ok, _ := c.FindEntityByName(ctx, KindActor, "j.d"); ok {
		t.Error("regex aliases must not match by name")
	}
	if _, ok, _ := c.FindEntityByName(ctx, KindLabel, "jane doe"); ok {
		t.Error("lookup must be scoped to the kind")
	}
}

func TestCatalogEntitiesExist(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	label, err := c.CreateEntity(ctx, KindLabel, "Outdoor")
	if err != nil {
		t.Fatal(err)
	}

	missing, err := c.EntitiesExist(ctx, []string{label.ID, "la_missing", "bogus"})
	if err != nil {
		t.Fatalf("EntitiesExist() error = %v", err)
	}
	if len(missing) != 2 || missing[0] != "la_missing" || missing[1] != "bogus" {
		t.Errorf("missing = %v", missing)
	}
}

func TestCatalogScenesAndPaths(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	s := &Scene{Name: "clip", Path: "/videos/clip.mp4"}
	if err := c.UpsertScene(ctx, s); err != nil {
		t.Fatalf("UpsertScene() error = %v", err)
	}
	if KindOf(s.ID) != KindScene || s.AddedOn == 0 {
		t.Errorf("scene not initialized: %+v", s)
	}

	img := &Image{Name: "thumb", Path: "/pics/a.jpg", Scene: s.ID}
	if err := c.UpsertImage(ctx, img); err != nil {
		t.Fatal(err)
	}

	got, ok, err := c.SceneByPath(ctx, "/videos/clip.mp4")
	if err != nil || !ok || got.ID != s.ID {
		t.Errorf("SceneByPath() = %v, %v, %v", got, ok, err)
	}
	if _, ok, _ := c.SceneByPath(ctx, "/videos/other.mp4"); ok {
		t.Error("SceneByPath() found unknown path")
	}
	if gotImg, ok, _ := c.ImageByPath(ctx, "/pics/a.jpg"); !ok || gotImg.ID != img.ID {
		t.Errorf("ImageByPath() = %v, %v", gotImg, ok)
	}
	imgs, err := c.ImagesOfScene(ctx, s.ID)
	if err != nil || len(imgs) != 1 {
		t.Errorf("ImagesOfScene() = %v, %v", imgs, err)
	}

	known, err := c.KnownPaths(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"/videos/clip.mp4", "/pics/a.jpg"} {
		if _, ok := known[p]; !ok {
			t.Errorf("KnownPaths() missing %s", p)
		}
	}
}

func TestCatalogReferences(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	s := &Scene{Name: "clip", Path: "/v/clip.mp4"}
	if err := c.UpsertScene(ctx, s); err != nil {
		t.Fatal(err)
	}
	a1, _ := c.CreateEntity(ctx, KindActor, "Alice Smith")
	a2, _ := c.CreateEntity(ctx, KindActor, "Bob Jones")
	l1, _ := c.CreateEntity(ctx, KindLabel, "Beach Day")

	if err := c.SetReferences(ctx, s.ID, KindActor, []string{a1.ID, a2.ID}); err != nil {
		t.Fatal(err)
	}
	if err := c.SetReferences(ctx, s.ID, KindLabel, []string{l1.ID}); err != nil {
		t.Fatal(err)
	}
	// Replacing actors leaves labels alone.
	if err := c.SetReferences(ctx, s.ID, KindActor, []string{a2.ID}); err != nil {
		t.Fatal(err)
	}

	actors, _ := c.References(ctx, s.ID, KindActor)
	if len(actors) != 1 || actors[0] != a2.ID {
		t.Errorf("actors = %v, want [%s]", actors, a2.ID)
	}
	labels, _ := c.References(ctx, s.ID, KindLabel)
	if len(labels) != 1 || labels[0] != l1.ID {
		t.Errorf("labels = %v, want [%s]", labels, l1.ID)
	}

	// Deleting the label leaves a dangling reference.
	if err := c.Store().Delete(ctx, CollectionLabels, l1.ID); err != nil {
		t.Fatal(err)
	}
	pruned, err := c.PruneReferences(ctx)
	if err != nil {
		t.Fatalf("PruneReferences() error = %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	if labels, _ := c.References(ctx, s.ID, KindLabel); len(labels) != 0 {
		t.Errorf("labels after prune = %v", labels)
	}

	counts, err := c.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[CollectionActors] != 2 || counts[CollectionReferences] != 1 {
		t.Errorf("Counts() = %v", counts)
	}
}
