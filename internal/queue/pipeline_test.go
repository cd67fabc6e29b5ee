package queue

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"media-vault/internal/apperrors"
	"media-vault/internal/database"
	"media-vault/internal/filesystem"
	"media-vault/internal/matching"
	"media-vault/internal/media"
	"media-vault/internal/mediatypes"
	"media-vault/internal/plugins"
)

type fakeProber struct {
	probe *media.Probe
	err   error
}

func (f fakeProber) Probe(context.Context, string) (*media.Probe, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := *f.probe
	return &p, nil
}

type fakePlugins struct {
	out    plugins.Output
	events []string
	input  map[string]any
	onRun  func(ctx context.Context, h plugins.Helpers) error
}

func (f *fakePlugins) RunSerial(ctx context.Context, event string, input map[string]any, h plugins.Helpers) (plugins.Output, error) {
	f.events = append(f.events, event)
	f.input = input
	if f.onRun != nil {
		if err := f.onRun(ctx, h); err != nil {
			return nil, err
		}
	}
	return f.out, nil
}

// createLocalImage calls the $createLocalImage helper the way a plugin does.
func createLocalImage(ctx context.Context, h plugins.Helpers, path string) (string, error) {
	res, err := h[plugins.MethodCreateLocalImage](ctx, []byte(`{"path":"`+path+`"}`))
	if err != nil {
		return "", err
	}
	return res.(*createdImage).ID, nil
}

type fakeSearch struct {
	docs map[string][]any
}

func (f *fakeSearch) IndexDocuments(_ context.Context, index string, docs []any) error {
	if f.docs == nil {
		f.docs = make(map[string][]any)
	}
	f.docs[index] = append(f.docs[index], docs...)
	return nil
}

type pipelineFixture struct {
	catalog *database.Catalog
	plugins *fakePlugins
	search  *fakeSearch
	pipe    *Pipeline
	dir     string
}

func newPipelineFixture(t *testing.T, cfg PipelineConfig) *pipelineFixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	catalog := database.NewCatalog(db)
	if err := catalog.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	cfg.Retry = filesystem.DefaultRetryConfig()
	f := &pipelineFixture{
		catalog: catalog,
		plugins: &fakePlugins{},
		search:  &fakeSearch{},
		dir:     t.TempDir(),
	}
	f.pipe = NewPipeline(cfg, Deps{
		Catalog:   catalog,
		Extractor: matching.NewExtractor(catalog, false),
		Prober:    fakeProber{probe: &media.Probe{Duration: 60, Width: 1920, Height: 1080, FPS: 30, Size: 4}},
		Plugins:   f.plugins,
		Search:    f.search,
	})
	return f
}

func (f *pipelineFixture) file(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestPipelineProcessScene(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, PipelineConfig{CreateMissingLabels: true, Checksums: true})

	jane, err := f.catalog.CreateEntity(ctx, database.KindActor, "Jane Doe")
	if err != nil {
		t.Fatalf("CreateEntity() error = %v", err)
	}
	f.plugins.out = plugins.Output{
		"name":   "From Plugin",
		"rating": 5.0,
		"labels": []any{"Outdoor"},
		"actors": []any{"Nobody Known"},
	}

	path := f.file(t, "Jane Doe - beach.mp4")
	item := NewItem(mediatypes.KindVideo, path)
	rating := 2
	item.Overrides.Rating = &rating

	if err := f.pipe.Process(ctx, item); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	scene, ok, err := f.catalog.SceneByPath(ctx, path)
	if err != nil || !ok {
		t.Fatalf("SceneByPath() = %v, %v", ok, err)
	}
	if scene.Name != "From Plugin" {
		t.Errorf("Name = %q, want plugin name", scene.Name)
	}
	if scene.Rating != 2 {
		t.Errorf("Rating = %d, want the queued override 2", scene.Rating)
	}
	if scene.Meta.Duration != 60 || scene.Meta.Width != 1920 {
		t.Errorf("Meta = %+v, want probe values", scene.Meta)
	}
	if scene.Checksum == "" {
		t.Error("Checksum is empty")
	}

	actors, err := f.catalog.References(ctx, scene.ID, database.KindActor)
	if err != nil {
		t.Fatalf("References() error = %v", err)
	}
	if len(actors) != 1 || actors[0] != jane.ID {
		t.Errorf("actors = %v, want [%s]", actors, jane.ID)
	}

	labels, err := f.catalog.References(ctx, scene.ID, database.KindLabel)
	if err != nil {
		t.Fatalf("References() error = %v", err)
	}
	if len(labels) != 1 {
		t.Fatalf("labels = %v, want one created label", labels)
	}
	if _, found, _ := f.catalog.FindEntityByName(ctx, database.KindLabel, "outdoor"); !found {
		t.Error("label Outdoor was not created")
	}
	if _, found, _ := f.catalog.FindEntityByName(ctx, database.KindActor, "Nobody Known"); found {
		t.Error("unknown actor was created although creation is disabled")
	}

	if len(f.plugins.events) != 1 || f.plugins.events[0] != plugins.EventSceneCreated {
		t.Errorf("plugin events = %v, want [%s]", f.plugins.events, plugins.EventSceneCreated)
	}
	if len(f.search.docs[database.CollectionScenes]) != 1 {
		t.Errorf("indexed %d scene docs, want 1", len(f.search.docs[database.CollectionScenes]))
	}
}

func TestPipelineReprocessKeepsScene(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, PipelineConfig{})

	path := f.file(t, "clip.mp4")
	if err := f.pipe.Process(ctx, NewItem(mediatypes.KindVideo, path)); err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	first, _, _ := f.catalog.SceneByPath(ctx, path)

	if err := f.pipe.Process(ctx, NewItem(mediatypes.KindVideo, path)); err != nil {
		t.Fatalf("second Process() error = %v", err)
	}
	second, _, _ := f.catalog.SceneByPath(ctx, path)
	if first.ID != second.ID {
		t.Errorf("scene id changed from %s to %s", first.ID, second.ID)
	}
	if second.Name != "clip" {
		t.Errorf("Name = %q, want clip", second.Name)
	}
}

func TestPipelineProcessFailures(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, PipelineConfig{})

	unknownActor := NewItem(mediatypes.KindVideo, f.file(t, "a.mp4"))
	unknownActor.Actors = []string{"ac_doesnotexist"}

	tests := []struct {
		name     string
		item     *Item
		prober   Prober
		wantStep string
		wantErr  error
	}{
		{
			name:     "missing file",
			item:     NewItem(mediatypes.KindVideo, filepath.Join(f.dir, "gone.mp4")),
			wantStep: StepStat,
			wantErr:  apperrors.ErrSourceNotFound,
		},
		{
			name:     "unknown actor id",
			item:     unknownActor,
			wantStep: StepValidate,
			wantErr:  apperrors.ErrValidation,
		},
		{
			name:     "probe failure",
			item:     NewItem(mediatypes.KindVideo, f.file(t, "b.mp4")),
			prober:   fakeProber{err: apperrors.ErrProbe},
			wantStep: StepProbe,
			wantErr:  apperrors.ErrProbe,
		},
		{
			name:     "unsupported kind",
			item:     NewItem(mediatypes.KindOther, f.file(t, "c.txt")),
			wantStep: StepValidate,
			wantErr:  apperrors.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.prober != nil {
				orig := f.pipe.prober
				f.pipe.prober = tt.prober
				defer func() { f.pipe.prober = orig }()
			}

			err := f.pipe.Process(ctx, tt.item)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Process() error = %v, want %v", err, tt.wantErr)
			}
			var se *apperrors.StepError
			if !errors.As(err, &se) {
				t.Fatalf("Process() error %v is not a StepError", err)
			}
			if se.Step != tt.wantStep {
				t.Errorf("Step = %q, want %q", se.Step, tt.wantStep)
			}
			if se.ItemID != tt.item.ID {
				t.Errorf("ItemID = %q, want %q", se.ItemID, tt.item.ID)
			}
		})
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer out.Close()
	if err := png.Encode(out, img); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
}

func TestPipelineProcessImage(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, PipelineConfig{})

	path := filepath.Join(f.dir, "photo.png")
	writePNG(t, path, 40, 30)
	f.plugins.out = plugins.Output{"favorite": true, "description": "ignored for images"}

	if err := f.pipe.Process(ctx, NewItem(mediatypes.KindImage, path)); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	img, ok, err := f.catalog.ImageByPath(ctx, path)
	if err != nil || !ok {
		t.Fatalf("ImageByPath() = %v, %v", ok, err)
	}
	if img.Meta.Width != 40 || img.Meta.Height != 30 {
		t.Errorf("Meta = %+v, want 40x30", img.Meta)
	}
	if !img.Favorite {
		t.Error("Favorite was not taken from plugin output")
	}
	if img.Name != "photo" {
		t.Errorf("Name = %q, want photo", img.Name)
	}
	if len(f.plugins.events) != 1 || f.plugins.events[0] != plugins.EventImageCreated {
		t.Errorf("plugin events = %v, want [%s]", f.plugins.events, plugins.EventImageCreated)
	}
}

func TestPipelineHelperImagesBelongToRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("image", func(t *testing.T) {
		f := newPipelineFixture(t, PipelineConfig{})
		path := filepath.Join(f.dir, "photo.png")
		cover := filepath.Join(f.dir, "cover.png")
		writePNG(t, path, 40, 30)
		writePNG(t, cover, 20, 10)

		var createdID string
		f.plugins.onRun = func(ctx context.Context, h plugins.Helpers) error {
			id, err := createLocalImage(ctx, h, cover)
			createdID = id
			return err
		}
		if err := f.pipe.Process(ctx, NewItem(mediatypes.KindImage, path)); err != nil {
			t.Fatalf("Process() error = %v", err)
		}

		img, ok, err := f.catalog.ImageByPath(ctx, path)
		if err != nil || !ok {
			t.Fatalf("ImageByPath() = %v, %v", ok, err)
		}
		linked, err := f.catalog.References(ctx, img.ID, database.KindImage)
		if err != nil {
			t.Fatalf("References() error = %v", err)
		}
		if len(linked) != 1 || linked[0] != createdID {
			t.Errorf("image references = %v, want [%s]", linked, createdID)
		}
		created, err := f.catalog.GetImage(ctx, createdID)
		if err != nil {
			t.Fatalf("GetImage() error = %v", err)
		}
		if created.Scene != "" {
			t.Errorf("created image scene = %q, want none", created.Scene)
		}
	})

	t.Run("scene", func(t *testing.T) {
		f := newPipelineFixture(t, PipelineConfig{})
		path := f.file(t, "clip.mp4")
		cover := filepath.Join(f.dir, "cover.png")
		writePNG(t, cover, 20, 10)

		var createdID string
		f.plugins.onRun = func(ctx context.Context, h plugins.Helpers) error {
			id, err := createLocalImage(ctx, h, cover)
			createdID = id
			return err
		}
		if err := f.pipe.Process(ctx, NewItem(mediatypes.KindVideo, path)); err != nil {
			t.Fatalf("Process() error = %v", err)
		}

		scene, ok, err := f.catalog.SceneByPath(ctx, path)
		if err != nil || !ok {
			t.Fatalf("SceneByPath() = %v, %v", ok, err)
		}
		created, err := f.catalog.GetImage(ctx, createdID)
		if err != nil {
			t.Fatalf("GetImage() error = %v", err)
		}
		if created.Scene != scene.ID {
			t.Errorf("created image scene = %q, want %s", created.Scene, scene.ID)
		}
	})
}

func TestPipelineComplete(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, PipelineConfig{})

	item := NewItem(mediatypes.KindVideo, f.file(t, "manual.mp4"))
	res := ManualResult{
		Scene:  map[string]any{"name": "Manual Name", "favorite": true},
		Thumbs: []ManualImage{{Name: "thumb", Path: "/thumbs/1.jpg"}},
		Images: []ManualImage{{Path: "/images/2.jpg"}},
	}

	id, err := f.pipe.Complete(ctx, item, res)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	scene, err := f.catalog.GetScene(ctx, id)
	if err != nil {
		t.Fatalf("GetScene() error = %v", err)
	}
	if scene.Name != "Manual Name" || !scene.Favorite {
		t.Errorf("scene = %+v, want manual fields applied", scene)
	}

	images, err := f.catalog.ImagesOfScene(ctx, id)
	if err != nil {
		t.Fatalf("ImagesOfScene() error = %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("ImagesOfScene() = %d images, want 2", len(images))
	}
	thumb, err := f.catalog.GetImage(ctx, scene.Thumbnail)
	if err != nil {
		t.Fatalf("thumbnail %q not found: %v", scene.Thumbnail, err)
	}
	if thumb.Path != "/thumbs/1.jpg" {
		t.Errorf("thumbnail path = %s, want /thumbs/1.jpg", thumb.Path)
	}
}

func TestPipelineCompleteInvalid(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, PipelineConfig{})
	item := NewItem(mediatypes.KindVideo, f.file(t, "manual.mp4"))

	tests := []struct {
		name string
		res  ManualResult
	}{
		{"image without path", ManualResult{Images: []ManualImage{{Name: "x"}}}},
		{"bad rating", ManualResult{Scene: map[string]any{"rating": 99.0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.pipe.Complete(ctx, item, tt.res); !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("Complete() error = %v, want ErrValidation", err)
			}
		})
	}
}
