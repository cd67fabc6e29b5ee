package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"media-vault/internal/apperrors"
	"media-vault/internal/database"
	"media-vault/internal/filesystem"
	"media-vault/internal/logging"
	"media-vault/internal/matching"
	"media-vault/internal/media"
	"media-vault/internal/mediatypes"
	"media-vault/internal/plugins"
)

// Processing steps, as reported in failures.
const (
	StepValidate   = "validate"
	StepStat       = "stat"
	StepProbe      = "probe"
	StepExtract    = "extract"
	StepPlugins    = "plugins"
	StepMerge      = "merge"
	StepChecksum   = "checksum"
	StepPersist    = "persist"
	StepThumbnails = "thumbnails"
	StepIndex      = "index"
)

// Prober reads video metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (*media.Probe, error)
}

// Renderer produces still frames for scenes.
type Renderer interface {
	GenerateThumbnails(ctx context.Context, sceneID, path string, duration float64, policy media.ThumbnailPolicy) ([]media.Thumbnail, error)
	GeneratePreview(ctx context.Context, sceneID, path string, duration float64) (string, error)
}

// PluginRunner runs the plugins bound to an event.
type PluginRunner interface {
	RunSerial(ctx context.Context, event string, input map[string]any, helpers plugins.Helpers) (plugins.Output, error)
}

// SearchIndex receives documents for full-text search.
type SearchIndex interface {
	IndexDocuments(ctx context.Context, index string, docs []any) error
}

// PipelineConfig tunes the processing steps.
type PipelineConfig struct {
	Thumbnails           bool
	Thumbnail            media.ThumbnailPolicy
	Preview              bool
	Checksums            bool
	ImageThumbnails      bool
	ImageThumbnailDir    string
	ImageThumbnailSize   int
	ImageDir             string
	CreateMissingActors  bool
	CreateMissingLabels  bool
	CreateMissingStudios bool
	Retry                filesystem.RetryConfig
}

// Deps are the collaborators of a Pipeline. Renderer, Plugins and Search
// may be nil to skip the corresponding steps.
type Deps struct {
	Catalog   *database.Catalog
	Extractor *matching.Extractor
	Prober    Prober
	Renderer  Renderer
	Plugins   PluginRunner
	Search    SearchIndex
}

// Pipeline turns queue items into catalog records.
type Pipeline struct {
	cfg     PipelineConfig
	catalog *database.Catalog
	extract *matching.Extractor
	prober  Prober
	render  Renderer
	plugins PluginRunner
	search  SearchIndex
}

var _ Processor = (*Pipeline)(nil)

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig, deps Deps) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		catalog: deps.Catalog,
		extract: deps.Extractor,
		prober:  deps.Prober,
		render:  deps.Renderer,
		plugins: deps.Plugins,
		search:  deps.Search,
	}
}

// refs are the entities a record points at.
type refs struct {
	actors []string
	labels []string
	movies []string
	images []string
}

// Process ingests one item.
func (p *Pipeline) Process(ctx context.Context, item *Item) error {
	switch item.Kind {
	case mediatypes.KindVideo:
		return p.processScene(ctx, item)
	case mediatypes.KindImage:
		return p.processImage(ctx, item)
	}
	return apperrors.Step(item.ID, item.Path, StepValidate,
		fmt.Errorf("%w: unsupported item kind %q", apperrors.ErrValidation, item.Kind))
}

func (p *Pipeline) processScene(ctx context.Context, item *Item) error {
	fail := func(step string, err error) error { return apperrors.Step(item.ID, item.Path, step, err) }

	if err := p.validateIDs(ctx, item); err != nil {
		return fail(StepValidate, err)
	}

	fi, err := p.stat(ctx, item.Path)
	if err != nil {
		return fail(StepStat, err)
	}

	probe, err := p.prober.Probe(ctx, item.Path)
	if err != nil {
		return fail(StepProbe, err)
	}

	scene, err := p.sceneFor(ctx, item)
	if err != nil {
		return fail(StepPersist, err)
	}
	scene.Meta = database.SceneMeta{
		Duration: probe.Duration,
		Width:    probe.Width,
		Height:   probe.Height,
		FPS:      probe.FPS,
		Size:     probe.Size,
	}
	if scene.Meta.Size == 0 {
		scene.Meta.Size = fi.Size()
	}

	r := refs{actors: item.Actors, labels: item.Labels}
	if err := p.extractMissing(ctx, item, &r, &scene.Studio); err != nil {
		return fail(StepExtract, err)
	}

	if p.plugins != nil {
		input := map[string]any{
			"sceneId":   scene.ID,
			"sceneName": scene.Name,
			"scenePath": scene.Path,
			"actors":    p.names(ctx, r.actors),
			"labels":    p.names(ctx, r.labels),
			"meta":      scene.Meta,
		}
		out, err := p.plugins.RunSerial(ctx, plugins.EventSceneCreated, input, p.helpers(scene.ID, nil))
		if err != nil {
			return fail(StepPlugins, err)
		}
		patch, fieldErrs := plugins.DecodeScene(out)
		for _, fe := range fieldErrs {
			logging.Warn("Rejected plugin field for %s: %v", item.Path, fe)
		}
		if err := p.applyScenePatch(ctx, scene, patch, &r); err != nil {
			return fail(StepMerge, err)
		}
	}
	applySceneOverrides(scene, item.Overrides)

	if p.cfg.Checksums {
		sum, err := media.Checksum(item.Path)
		if err != nil {
			return fail(StepChecksum, err)
		}
		scene.Checksum = sum
	}

	if err := p.persistScene(ctx, scene, r); err != nil {
		return fail(StepPersist, err)
	}

	// Renders and indexing are best effort; the scene is already stored.
	p.renderScene(ctx, scene, r)
	p.indexScene(ctx, scene, r)

	logging.Info("Scene %q created (%s)", scene.Name, scene.ID)
	return nil
}

func (p *Pipeline) processImage(ctx context.Context, item *Item) error {
	fail := func(step string, err error) error { return apperrors.Step(item.ID, item.Path, step, err) }

	if err := p.validateIDs(ctx, item); err != nil {
		return fail(StepValidate, err)
	}

	if _, err := p.stat(ctx, item.Path); err != nil {
		return fail(StepStat, err)
	}

	dims, err := media.GetImageDimensions(item.Path)
	if err != nil {
		return fail(StepProbe, fmt.Errorf("%w: %v", apperrors.ErrProbe, err))
	}

	img, err := p.imageFor(ctx, item)
	if err != nil {
		return fail(StepPersist, err)
	}
	img.Meta = database.ImageMeta{Width: dims.Width, Height: dims.Height, Size: dims.Size}

	r := refs{actors: item.Actors, labels: item.Labels}
	if err := p.extractMissing(ctx, item, &r, &img.Studio); err != nil {
		return fail(StepExtract, err)
	}

	if p.plugins != nil {
		input := map[string]any{
			"imageId":   img.ID,
			"imageName": img.Name,
			"imagePath": img.Path,
			"actors":    p.names(ctx, r.actors),
			"labels":    p.names(ctx, r.labels),
		}
		out, err := p.plugins.RunSerial(ctx, plugins.EventImageCreated, input, p.helpers(img.ID, &r.images))
		if err != nil {
			return fail(StepPlugins, err)
		}
		patch, fieldErrs := plugins.DecodeImage(out)
		for _, fe := range fieldErrs {
			logging.Warn("Rejected plugin field for %s: %v", item.Path, fe)
		}
		if err := p.applyImagePatch(ctx, img, patch, &r); err != nil {
			return fail(StepMerge, err)
		}
	}
	applyImageOverrides(img, item.Overrides)

	if p.cfg.Checksums {
		sum, err := media.Checksum(item.Path)
		if err != nil {
			return fail(StepChecksum, err)
		}
		img.Checksum = sum
	}

	if err := p.persistImage(ctx, img, r); err != nil {
		return fail(StepPersist, err)
	}

	if p.cfg.ImageThumbnails {
		dst := filepath.Join(p.cfg.ImageThumbnailDir, img.ID+".jpg")
		if err := media.ResizeImage(img.Path, dst, p.cfg.ImageThumbnailSize); err != nil {
			logging.Warn("Image thumbnail for %s failed: %v", img.Path, err)
		} else {
			img.ThumbnailPath = dst
			if err := p.catalog.UpsertImage(ctx, img); err != nil {
				logging.Warn("Saving image thumbnail path for %s failed: %v", img.ID, err)
			}
		}
	}
	p.indexImage(ctx, img, r)

	logging.Info("Image %q created (%s)", img.Name, img.ID)
	return nil
}

// validateIDs checks that every id fixed on the item resolves.
func (p *Pipeline) validateIDs(ctx context.Context, item *Item) error {
	ids := append(append([]string{}, item.Actors...), item.Labels...)
	if item.Studio != "" {
		ids = append(ids, item.Studio)
	}
	if item.Scene != "" {
		ids = append(ids, item.Scene)
	}
	missing, err := p.catalog.EntitiesExist(ctx, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: unknown ids %s", apperrors.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

func (p *Pipeline) stat(ctx context.Context, path string) (os.FileInfo, error) {
	fi, err := filesystem.StatWithRetry(ctx, path, p.cfg.Retry)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSourceNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", apperrors.ErrSourceNotFound, path)
	}
	return fi, nil
}

// sceneFor returns the catalogued scene for the item's path, or a new one.
func (p *Pipeline) sceneFor(ctx context.Context, item *Item) (*database.Scene, error) {
	if s, ok, err := p.catalog.SceneByPath(ctx, item.Path); err != nil {
		return nil, err
	} else if ok {
		logging.Debug("Updating existing scene %s for %s", s.ID, item.Path)
		return s, nil
	}
	return &database.Scene{
		ID:      database.NewID(database.KindScene),
		Name:    displayName(item),
		Path:    item.Path,
		AddedOn: database.Now(),
	}, nil
}

func (p *Pipeline) imageFor(ctx context.Context, item *Item) (*database.Image, error) {
	if img, ok, err := p.catalog.ImageByPath(ctx, item.Path); err != nil {
		return nil, err
	} else if ok {
		return img, nil
	}
	return &database.Image{
		ID:      database.NewID(database.KindImage),
		Name:    displayName(item),
		Path:    item.Path,
		Scene:   item.Scene,
		AddedOn: database.Now(),
	}, nil
}

func displayName(item *Item) string {
	name := item.Filename
	if name == "" {
		name = filepath.Base(item.Path)
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// extractMissing fills actors, labels and studio from the path when the
// item did not fix them.
func (p *Pipeline) extractMissing(ctx context.Context, item *Item, r *refs, studio *string) error {
	if p.extract == nil {
		if item.Studio != "" {
			*studio = item.Studio
		}
		return nil
	}
	text := matching.PathText(item.Path)

	var err error
	if len(r.actors) == 0 {
		if r.actors, err = p.extract.ExtractActors(ctx, text); err != nil {
			return err
		}
	}
	if len(r.labels) == 0 {
		if r.labels, err = p.extract.ExtractLabels(ctx, text); err != nil {
			return err
		}
	}
	switch {
	case item.Studio != "":
		*studio = item.Studio
	case *studio == "":
		if *studio, err = p.extract.ExtractStudio(ctx, text); err != nil {
			return err
		}
	}
	if item.Kind == mediatypes.KindVideo {
		if r.movies, err = p.extract.ExtractMovies(ctx, text); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) names(ctx context.Context, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if e, err := p.catalog.GetEntity(ctx, id); err == nil {
			out = append(out, e.Name)
		}
	}
	return out
}

func (p *Pipeline) persistScene(ctx context.Context, s *database.Scene, r refs) error {
	if err := p.catalog.UpsertScene(ctx, s); err != nil {
		return err
	}
	return p.setRefs(ctx, s.ID, r)
}

func (p *Pipeline) persistImage(ctx context.Context, img *database.Image, r refs) error {
	if err := p.catalog.UpsertImage(ctx, img); err != nil {
		return err
	}
	return p.setRefs(ctx, img.ID, r)
}

func (p *Pipeline) setRefs(ctx context.Context, from string, r refs) error {
	if err := p.catalog.SetReferences(ctx, from, database.KindActor, dedupe(r.actors)); err != nil {
		return err
	}
	if err := p.catalog.SetReferences(ctx, from, database.KindLabel, dedupe(r.labels)); err != nil {
		return err
	}
	if len(r.movies) > 0 {
		if err := p.catalog.SetReferences(ctx, from, database.KindMovie, dedupe(r.movies)); err != nil {
			return err
		}
	}
	if len(r.images) > 0 {
		return p.catalog.SetReferences(ctx, from, database.KindImage, dedupe(r.images))
	}
	return nil
}

func (p *Pipeline) renderScene(ctx context.Context, s *database.Scene, r refs) {
	if p.render == nil {
		return
	}
	changed := false

	if p.cfg.Thumbnails && s.Thumbnail == "" {
		thumbs, err := p.render.GenerateThumbnails(ctx, s.ID, s.Path, s.Meta.Duration, p.cfg.Thumbnail)
		if err != nil {
			logging.Warn("Thumbnails for %s failed: %v", s.Path, err)
		}
		for i, th := range thumbs {
			img := &database.Image{
				Name:  fmt.Sprintf("%s %03d", s.Name, i+1),
				Path:  th.Path,
				Scene: s.ID,
				Meta:  database.ImageMeta{Size: th.Size},
			}
			if dims, err := media.GetImageDimensions(th.Path); err == nil {
				img.Meta.Width, img.Meta.Height = dims.Width, dims.Height
			}
			if err := p.persistImage(ctx, img, refs{actors: r.actors, labels: r.labels}); err != nil {
				logging.Warn("Saving thumbnail %s failed: %v", th.Path, err)
				continue
			}
			if s.Thumbnail == "" {
				s.Thumbnail = img.ID
				changed = true
			}
		}
	}

	if p.cfg.Preview && s.Preview == "" {
		path, err := p.render.GeneratePreview(ctx, s.ID, s.Path, s.Meta.Duration)
		if err != nil {
			logging.Warn("Preview for %s failed: %v", s.Path, err)
		} else {
			img := &database.Image{Name: s.Name + " (preview)", Path: path, Scene: s.ID}
			if err := p.catalog.UpsertImage(ctx, img); err != nil {
				logging.Warn("Saving preview %s failed: %v", path, err)
			} else {
				s.Preview = img.ID
				changed = true
			}
		}
	}

	if changed {
		if err := p.catalog.UpsertScene(ctx, s); err != nil {
			logging.Warn("Saving renders for scene %s failed: %v", s.ID, err)
		}
	}
}

func (p *Pipeline) indexScene(ctx context.Context, s *database.Scene, r refs) {
	if p.search == nil {
		return
	}
	doc := map[string]any{
		"id":       s.ID,
		"name":     s.Name,
		"path":     s.Path,
		"actors":   p.names(ctx, r.actors),
		"labels":   p.names(ctx, r.labels),
		"rating":   s.Rating,
		"favorite": s.Favorite,
		"duration": s.Meta.Duration,
		"addedOn":  s.AddedOn,
	}
	if s.Studio != "" {
		doc["studio"] = p.names(ctx, []string{s.Studio})
	}
	if err := p.search.IndexDocuments(ctx, database.CollectionScenes, []any{doc}); err != nil {
		logging.Warn("Indexing scene %s failed: %v", s.ID, err)
	}
}

func (p *Pipeline) indexImage(ctx context.Context, img *database.Image, r refs) {
	if p.search == nil {
		return
	}
	doc := map[string]any{
		"id":      img.ID,
		"name":    img.Name,
		"path":    img.Path,
		"scene":   img.Scene,
		"actors":  p.names(ctx, r.actors),
		"labels":  p.names(ctx, r.labels),
		"rating":  img.Rating,
		"addedOn": img.AddedOn,
	}
	if err := p.search.IndexDocuments(ctx, database.CollectionImages, []any{doc}); err != nil {
		logging.Warn("Indexing image %s failed: %v", img.ID, err)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
