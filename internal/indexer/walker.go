package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"media-vault/internal/logging"
	"media-vault/internal/mediatypes"
)

// WalkerConfig configures the path walker
type WalkerConfig struct {
	// NumWorkers is the number of goroutines classifying entries
	NumWorkers int
	// ChannelBuffer is the size of the work channel buffer
	ChannelBuffer int
	// SkipHidden skips files and directories starting with "."
	SkipHidden bool
	// Excludes are matched against the full path of every entry; a match
	// skips the file, or the whole subtree for directories.
	Excludes []*regexp.Regexp
}

// DefaultWalkerConfig returns defaults that are safe for NFS mounts.
func DefaultWalkerConfig() WalkerConfig {
	return WalkerConfig{
		NumWorkers:    3,
		ChannelBuffer: 1000,
		SkipHidden:    true,
	}
}

// CompileExcludes compiles exclude patterns.
func CompileExcludes(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Walker finds media files of one kind below a set of roots.
type Walker struct {
	config WalkerConfig
	kind   mediatypes.Kind

	jobs    chan walkJob
	results chan walkJob
	wg      sync.WaitGroup

	visited  atomic.Int64
	matched  atomic.Int64
	excluded atomic.Int64
}

type walkJob struct {
	root int
	path string
}

// NewWalker creates a walker that collects files of kind.
func NewWalker(kind mediatypes.Kind, config WalkerConfig) *Walker {
	if config.NumWorkers <= 0 {
		config.NumWorkers = 1
	}
	return &Walker{
		config:  config,
		kind:    kind,
		jobs:    make(chan walkJob, config.ChannelBuffer),
		results: make(chan walkJob, config.ChannelBuffer),
	}
}

// Walk returns the absolute paths of every matching file below roots,
// sorted within each root and in root order. A file reachable from two
// roots is reported under the first. Unreadable entries are logged and
// skipped; a missing root is logged and contributes nothing.
func (w *Walker) Walk(ctx context.Context, roots []string) ([]string, error) {
	start := time.Now()

	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.worker()
	}

	perRoot := make([][]string, len(roots))
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for r := range w.results {
			perRoot[r.root] = append(perRoot[r.root], r.path)
		}
	}()

	var err error
	for i, root := range roots {
		if err = w.walkRoot(ctx, i, root); err != nil {
			break
		}
	}

	close(w.jobs)
	w.wg.Wait()
	close(w.results)
	<-collected

	var found []string
	seen := make(map[string]bool)
	for _, paths := range perRoot {
		sort.Strings(paths)
		for _, p := range paths {
			if !seen[p] {
				seen[p] = true
				found = append(found, p)
			}
		}
	}
	logging.Info("Walked %d root(s) for %s files: %d found, %d entries visited, %d excluded in %v",
		len(roots), w.kind, len(found), w.visited.Load(), w.excluded.Load(), time.Since(start).Round(time.Millisecond))

	if err != nil {
		return found, err
	}
	return found, ctx.Err()
}

func (w *Walker) walkRoot(ctx context.Context, index int, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		logging.Warn("Skipping library path %s: %v", root, err)
		return nil
	}

	return filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logging.Warn("Error accessing path %s: %v", path, err)
			if d != nil && d.IsDir() && path != abs {
				return filepath.SkipDir
			}
			return nil
		}
		if path == abs {
			return nil
		}
		w.visited.Add(1)

		if w.config.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if w.isExcluded(path) {
			w.excluded.Add(1)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		select {
		case w.jobs <- walkJob{root: index, path: path}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
}

func (w *Walker) isExcluded(path string) bool {
	for _, re := range w.config.Excludes {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func (w *Walker) worker() {
	defer w.wg.Done()
	for job := range w.jobs {
		if mediatypes.KindOf(job.path) != w.kind {
			continue
		}
		w.matched.Add(1)
		w.results <- job
	}
}

// Stats returns counters of the last walk.
func (w *Walker) Stats() (visited, matched, excluded int64) {
	return w.visited.Load(), w.matched.Load(), w.excluded.Load()
}
