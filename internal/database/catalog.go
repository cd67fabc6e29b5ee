package database

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/goccy/go-json"

	"media-vault/internal/apperrors"
	"media-vault/internal/logging"
	"media-vault/internal/matching"
	"media-vault/internal/metrics"
)

const (
	indexPath  = "path"
	indexScene = "scene"
	indexFrom  = "from"
	indexTo    = "to"
)

// Catalog is the typed layer over a DocStore: entities, scenes, images and
// the cross-references between them.
type Catalog struct {
	store DocStore
}

var _ matching.Source = (*Catalog)(nil)

// NewCatalog wraps store.
func NewCatalog(store DocStore) *Catalog {
	return &Catalog{store: store}
}

// Store returns the underlying document store.
func (c *Catalog) Store() DocStore {
	return c.store
}

// Init creates every collection and its indexes.
func (c *Catalog) Init(ctx context.Context) error {
	collections := map[string][]Index{
		CollectionActors:       nil,
		CollectionLabels:       nil,
		CollectionStudios:      nil,
		CollectionMovies:       nil,
		CollectionCustomFields: nil,
		CollectionMeta:         nil,
		CollectionScenes:       {{Name: indexPath, Field: "path"}},
		CollectionImages: {
			{Name: indexPath, Field: "path"},
			{Name: indexScene, Field: "scene"},
		},
		CollectionReferences: {
			{Name: indexFrom, Field: "from"},
			{Name: indexTo, Field: "to"},
		},
	}
	for name, indexes := range collections {
		if err := c.store.EnsureCollection(ctx, name, indexes); err != nil {
			return fmt.Errorf("ensure collection %s: %w", name, err)
		}
	}
	return nil
}

// Candidates lists the match candidates of a collection.
func (c *Catalog) Candidates(ctx context.Context, coll matching.Collection) ([]matching.Candidate, error) {
	bodies, err := c.store.List(ctx, string(coll))
	if err != nil {
		return nil, err
	}

	out := make([]matching.Candidate, 0, len(bodies))
	for _, body := range bodies {
		var e Entity
		if err := json.Unmarshal(body, &e); err != nil {
			logging.Warn("Skipping malformed %s record: %v", coll, err)
			continue
		}
		out = append(out, matching.Candidate{ID: e.ID, Name: e.Name, Aliases: e.Aliases})
	}
	return out, nil
}

// EntitiesExist returns the ids that do not resolve to a record. Ids with
// an unknown prefix are reported as missing.
func (c *Catalog) EntitiesExist(ctx context.Context, ids []string) ([]string, error) {
	var missing []string
	for _, id := range ids {
		ok, err := c.exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (c *Catalog) exists(ctx context.Context, id string) (bool, error) {
	coll, ok := CollectionOf(KindOf(id))
	if !ok {
		return false, nil
	}
	var raw json.RawMessage
	err := c.store.Get(ctx, coll, id, &raw)
	if errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// GetEntity loads an actor, label, studio, movie or custom field.
func (c *Catalog) GetEntity(ctx context.Context, id string) (*Entity, error) {
	coll, ok := CollectionOf(KindOf(id))
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", id, apperrors.ErrNotFound)
	}
	var e Entity
	if err := c.store.Get(ctx, coll, id, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEntity stores a new entity of kind k named name.
func (c *Catalog) CreateEntity(ctx context.Context, k Kind, name string) (*Entity, error) {
	coll, ok := CollectionOf(k)
	if !ok {
		return nil, fmt.Errorf("cannot create entity of kind %q", k)
	}
	e := &Entity{ID: NewID(k), Name: name, AddedOn: Now()}
	if err := c.store.Put(ctx, coll, e.ID, e); err != nil {
		return nil, err
	}
	logging.Info("Created %s %q (%s)", coll, name, e.ID)
	return e, nil
}

// FindEntityByName returns the entity of kind k whose name or a
// non-regex alias normalizes to the same text as name.
func (c *Catalog) FindEntityByName(ctx context.Context, k Kind, name string) (*Entity, bool, error) {
	coll, ok := CollectionOf(k)
	if !ok {
		return nil, false, fmt.Errorf("unknown entity kind %q", k)
	}
	want := matching.Normalize(name)
	if want == "" {
		return nil, false, nil
	}

	bodies, err := c.store.List(ctx, coll)
	if err != nil {
		return nil, false, err
	}
	for _, body := range bodies {
		var e Entity
		if err := json.Unmarshal(body, &e); err != nil {
			continue
		}
		if matching.Normalize(e.Name) == want {
			return &e, true, nil
		}
		for _, a := range e.Aliases {
			if !matching.IsRegexAlias(a) && matching.Normalize(a) == want {
				return &e, true, nil
			}
		}
	}
	return nil, false, nil
}

// GetScene loads a scene by id.
func (c *Catalog) GetScene(ctx context.Context, id string) (*Scene, error) {
	var s Scene
	if err := c.store.Get(ctx, CollectionScenes, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetImage loads an image by id.
func (c *Catalog) GetImage(ctx context.Context, id string) (*Image, error) {
	var img Image
	if err := c.store.Get(ctx, CollectionImages, id, &img); err != nil {
		return nil, err
	}
	return &img, nil
}

// SceneByPath returns the scene catalogued at path, if any.
func (c *Catalog) SceneByPath(ctx context.Context, path string) (*Scene, bool, error) {
	bodies, err := c.store.Query(ctx, CollectionScenes, indexPath, path)
	if err != nil || len(bodies) == 0 {
		return nil, false, err
	}
	var s Scene
	if err := json.Unmarshal(bodies[0], &s); err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

// ImageByPath returns the image catalogued at path, if any.
func (c *Catalog) ImageByPath(ctx context.Context, path string) (*Image, bool, error) {
	bodies, err := c.store.Query(ctx, CollectionImages, indexPath, path)
	if err != nil || len(bodies) == 0 {
		return nil, false, err
	}
	var img Image
	if err := json.Unmarshal(bodies[0], &img); err != nil {
		return nil, false, err
	}
	return &img, true, nil
}

// ImagesOfScene returns the images attached to a scene.
func (c *Catalog) ImagesOfScene(ctx context.Context, sceneID string) ([]Image, error) {
	bodies, err := c.store.Query(ctx, CollectionImages, indexScene, sceneID)
	if err != nil {
		return nil, err
	}
	out := make([]Image, 0, len(bodies))
	for _, body := range bodies {
		var img Image
		if err := json.Unmarshal(body, &img); err == nil {
			out = append(out, img)
		}
	}
	return out, nil
}

// KnownPaths returns the source paths of every catalogued scene and image.
func (c *Catalog) KnownPaths(ctx context.Context) (map[string]struct{}, error) {
	known := make(map[string]struct{})
	for _, coll := range []string{CollectionScenes, CollectionImages} {
		bodies, err := c.store.List(ctx, coll)
		if err != nil {
			return nil, err
		}
		for _, body := range bodies {
			var rec struct {
				Path string `json:"path"`
			}
			if err := json.Unmarshal(body, &rec); err == nil && rec.Path != "" {
				known[rec.Path] = struct{}{}
			}
		}
	}
	return known, nil
}

// UpsertScene stores s, assigning an id and timestamp to new scenes.
func (c *Catalog) UpsertScene(ctx context.Context, s *Scene) error {
	if s.ID == "" {
		s.ID = NewID(KindScene)
	}
	if s.AddedOn == 0 {
		s.AddedOn = Now()
	}
	return c.store.Put(ctx, CollectionScenes, s.ID, s)
}

// UpsertImage stores img, assigning an id and timestamp to new images.
func (c *Catalog) UpsertImage(ctx context.Context, img *Image) error {
	if img.ID == "" {
		img.ID = NewID(KindImage)
	}
	if img.AddedOn == 0 {
		img.AddedOn = Now()
	}
	return c.store.Put(ctx, CollectionImages, img.ID, img)
}

func (c *Catalog) referencesFrom(ctx context.Context, from string) ([]CrossReference, error) {
	bodies, err := c.store.Query(ctx, CollectionReferences, indexFrom, from)
	if err != nil {
		return nil, err
	}
	refs := make([]CrossReference, 0, len(bodies))
	for _, body := range bodies {
		var r CrossReference
		if err := json.Unmarshal(body, &r); err == nil {
			refs = append(refs, r)
		}
	}
	return refs, nil
}

// References returns the ids of kind k that from points at.
func (c *Catalog) References(ctx context.Context, from string, k Kind) ([]string, error) {
	refs, err := c.referencesFrom(ctx, from)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range refs {
		if KindOf(r.To) == k {
			out = append(out, r.To)
		}
	}
	return out, nil
}

// SetReferences makes the references from `from` to entities of kind k
// exactly ids. References to other kinds are untouched.
func (c *Catalog) SetReferences(ctx context.Context, from string, k Kind, ids []string) error {
	refs, err := c.referencesFrom(ctx, from)
	if err != nil {
		return err
	}

	have := make(map[string]bool)
	for _, r := range refs {
		if KindOf(r.To) != k {
			continue
		}
		if !slices.Contains(ids, r.To) || have[r.To] {
			if err := c.store.Delete(ctx, CollectionReferences, r.ID); err != nil {
				return err
			}
			continue
		}
		have[r.To] = true
	}

	for _, id := range ids {
		if have[id] {
			continue
		}
		ref := CrossReference{ID: NewID(KindReference), From: from, To: id}
		if err := c.store.Put(ctx, CollectionReferences, ref.ID, ref); err != nil {
			return err
		}
		have[id] = true
	}
	return nil
}

// PruneReferences deletes cross-references whose source or target no
// longer exists and returns how many were removed.
func (c *Catalog) PruneReferences(ctx context.Context) (int, error) {
	bodies, err := c.store.List(ctx, CollectionReferences)
	if err != nil {
		return 0, err
	}

	cache := make(map[string]bool)
	alive := func(id string) (bool, error) {
		if ok, seen := cache[id]; seen {
			return ok, nil
		}
		ok, err := c.exists(ctx, id)
		if err != nil {
			return false, err
		}
		cache[id] = ok
		return ok, nil
	}

	pruned := 0
	for _, body := range bodies {
		var r CrossReference
		if err := json.Unmarshal(body, &r); err != nil {
			continue
		}
		fromOK, err := alive(r.From)
		if err != nil {
			return pruned, err
		}
		toOK, err := alive(r.To)
		if err != nil {
			return pruned, err
		}
		if fromOK && toOK {
			continue
		}
		if err := c.store.Delete(ctx, CollectionReferences, r.ID); err != nil {
			return pruned, err
		}
		pruned++
	}

	if pruned > 0 {
		metrics.ReferencesPrunedTotal.Add(float64(pruned))
		logging.Info("Pruned %d dangling reference(s)", pruned)
	}
	return pruned, nil
}

// Counts returns the number of records per collection.
func (c *Catalog) Counts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, coll := range []string{
		CollectionActors, CollectionLabels, CollectionStudios, CollectionMovies,
		CollectionCustomFields, CollectionScenes, CollectionImages, CollectionReferences,
	} {
		n, err := c.store.Count(ctx, coll)
		if err != nil {
			return counts, err
		}
		counts[coll] = n
	}
	return counts, nil
}
