package indexer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"media-vault/internal/apperrors"
	"media-vault/internal/mediatypes"
	"media-vault/internal/queue"
)

type fakeCatalog struct {
	known   map[string]struct{}
	block   chan struct{}
	entered chan struct{}
	pruned  int
}

func (c *fakeCatalog) KnownPaths(context.Context) (map[string]struct{}, error) {
	if c.entered != nil {
		close(c.entered)
	}
	if c.block != nil {
		<-c.block
	}
	out := make(map[string]struct{}, len(c.known))
	for k := range c.known {
		out[k] = struct{}{}
	}
	return out, nil
}

func (c *fakeCatalog) PruneReferences(context.Context) (int, error) {
	c.pruned++
	return 2, nil
}

// fakeQueue records pushes and kicks in one event log.
type fakeQueue struct {
	mu     sync.Mutex
	items  []*queue.Item
	events []string
}

func (q *fakeQueue) Paths() (map[string]struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]struct{})
	for _, it := range q.items {
		out[it.Path] = struct{}{}
	}
	return out, nil
}

func (q *fakeQueue) Push(item *queue.Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	q.events = append(q.events, "push:"+string(item.Kind))
	return nil
}

func (q *fakeQueue) Kick() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, "kick")
}

type fakeExtractor struct{}

func (fakeExtractor) ExtractActors(context.Context, string) ([]string, error) {
	return []string{"ac_1"}, nil
}

func (fakeExtractor) ExtractLabels(context.Context, string) ([]string, error) { return nil, nil }

func (fakeExtractor) ExtractStudio(context.Context, string) (string, error) { return "st_1", nil }

func newLibrary(t *testing.T) (videos, images string) {
	t.Helper()
	root := t.TempDir()
	videos, images = filepath.Join(root, "videos"), filepath.Join(root, "images")
	createTestFile(t, filepath.Join(videos, "a.mp4"))
	createTestFile(t, filepath.Join(videos, "b.mkv"))
	createTestFile(t, filepath.Join(videos, "known.mp4"))
	createTestFile(t, filepath.Join(images, "c.jpg"))
	return videos, images
}

func TestScannerScan(t *testing.T) {
	videos, images := newLibrary(t)
	cat := &fakeCatalog{known: map[string]struct{}{filepath.Join(videos, "known.mp4"): {}}}
	q := &fakeQueue{}

	s, err := NewScanner(Config{VideoPaths: []string{videos}, ImagePaths: []string{images}}, cat, q, fakeExtractor{})
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if res.VideosFound != 3 || res.VideosQueued != 2 || res.ImagesFound != 1 || res.ImagesQueued != 1 {
		t.Errorf("Scan() = %+v, want 3/2 videos and 1/1 images", res)
	}
	if res.ReferencesPruned != 2 || cat.pruned != 1 {
		t.Errorf("ReferencesPruned = %d (prune calls %d), want 2 (1)", res.ReferencesPruned, cat.pruned)
	}

	want := []string{"push:video", "push:video", "kick", "push:image", "kick"}
	if len(q.events) != len(want) {
		t.Fatalf("events = %v, want %v", q.events, want)
	}
	for i := range want {
		if q.events[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s (all: %v)", i, q.events[i], want[i], q.events)
		}
	}

	first := q.items[0]
	if first.Path != filepath.Join(videos, "a.mp4") || first.Kind != mediatypes.KindVideo {
		t.Errorf("first item = %+v, want a.mp4 video", first)
	}
	if len(first.Actors) != 1 || first.Studio != "st_1" {
		t.Errorf("first item entities = %v / %q, want pre-filled", first.Actors, first.Studio)
	}

	st := s.Status()
	if st.Scanning || st.LastResult == nil || st.LastError != "" {
		t.Errorf("Status() = %+v after a clean scan", st)
	}
}

func TestScannerIdempotent(t *testing.T) {
	videos, images := newLibrary(t)
	q := &fakeQueue{}
	s, err := NewScanner(Config{VideoPaths: []string{videos}, ImagePaths: []string{images}}, &fakeCatalog{}, q, nil)
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("first Scan() error = %v", err)
	}
	pushed := len(q.items)

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("second Scan() error = %v", err)
	}
	if len(q.items) != pushed || res.VideosQueued != 0 || res.ImagesQueued != 0 {
		t.Errorf("second scan queued %d more item(s), want none", len(q.items)-pushed)
	}
}

func TestScannerRejectsOverlap(t *testing.T) {
	videos, _ := newLibrary(t)
	cat := &fakeCatalog{block: make(chan struct{}), entered: make(chan struct{})}
	s, err := NewScanner(Config{VideoPaths: []string{videos}}, cat, &fakeQueue{}, nil)
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Scan(context.Background())
		done <- err
	}()
	<-cat.entered

	if _, err := s.Scan(context.Background()); !errors.Is(err, apperrors.ErrScanInProgress) {
		t.Errorf("overlapping Scan() error = %v, want ErrScanInProgress", err)
	}
	if err := s.TriggerScan(); !errors.Is(err, apperrors.ErrScanInProgress) {
		t.Errorf("TriggerScan() error = %v, want ErrScanInProgress", err)
	}
	if !s.Scanning() {
		t.Error("Scanning() = false during a scan")
	}

	close(cat.block)
	if err := <-done; err != nil {
		t.Fatalf("first Scan() error = %v", err)
	}
	if s.Scanning() {
		t.Error("Scanning() = true after the scan finished")
	}
}

func TestScannerTriggerScan(t *testing.T) {
	videos, _ := newLibrary(t)
	q := &fakeQueue{}
	s, err := NewScanner(Config{VideoPaths: []string{videos}}, &fakeCatalog{}, q, nil)
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if err := s.TriggerScan(); err != nil {
		t.Fatalf("TriggerScan() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st := s.Status(); !st.Scanning && st.LastResult != nil {
			if st.LastResult.VideosQueued != 3 {
				t.Errorf("VideosQueued = %d, want 3", st.LastResult.VideosQueued)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("triggered scan did not finish")
}

func TestScannerSchedule(t *testing.T) {
	s, err := NewScanner(Config{Interval: time.Hour}, &fakeCatalog{}, &fakeQueue{}, nil)
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	next := s.Status().NextScan
	if next.IsZero() {
		t.Fatal("NextScan is zero with a schedule")
	}
	if d := time.Until(next); d < 59*time.Minute || d > time.Hour+time.Minute {
		t.Errorf("NextScan in %v, want about an hour", d)
	}
}

func TestNewScannerInvalidExclude(t *testing.T) {
	if _, err := NewScanner(Config{Excludes: []string{"["}}, &fakeCatalog{}, &fakeQueue{}, nil); err == nil {
		t.Error("NewScanner() accepted an invalid exclude")
	}
}
