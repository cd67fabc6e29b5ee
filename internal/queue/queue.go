package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"media-vault/internal/apperrors"
	"media-vault/internal/logging"
	"media-vault/internal/metrics"
)

// Processor ingests queue items.
type Processor interface {
	// Process runs the full pipeline for one item.
	Process(ctx context.Context, item *Item) error
	// Complete applies an externally produced result to an item.
	Complete(ctx context.Context, item *Item, result ManualResult) (string, error)
}

// Gate holds the loop back between items, for example under memory
// pressure.
type Gate interface {
	Wait(ctx context.Context) error
}

// Queue is the durable ingestion queue. At most one processing loop runs
// at a time and it takes items strictly in FIFO order.
type Queue struct {
	store *Store
	proc  Processor
	gate  Gate

	// work is held for the whole of one item, by the loop or by Complete.
	work sync.Mutex

	mu      sync.Mutex
	running bool
	current string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a queue over store. Items are processed by proc once Start
// has been called.
func New(store *Store, proc Processor) *Queue {
	return &Queue{store: store, proc: proc}
}

// SetGate installs g before Start.
func (q *Queue) SetGate(g Gate) {
	q.gate = g
}

// Start enables processing and resumes any items left from a previous run.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.mu.Unlock()

	if n, err := q.store.Len(); err == nil && n > 0 {
		logging.Info("Resuming ingestion queue with %d item(s)", n)
		q.Kick()
	}
}

// Stop prevents further items from starting and waits for the in-flight
// item to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	cancel := q.cancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
}

// Push stores item without starting the loop.
func (q *Queue) Push(item *Item) error {
	if err := q.store.Push(item); err != nil {
		return err
	}
	logging.Debug("Queued %s %s (%s)", item.Kind, item.Path, item.ID)
	q.updateLength()
	return nil
}

// Append stores item and makes sure the loop is running.
func (q *Queue) Append(item *Item) error {
	if err := q.Push(item); err != nil {
		return err
	}
	q.Kick()
	return nil
}

// Kick starts the processing loop unless it is already running.
func (q *Queue) Kick() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil {
		logging.Debug("Queue not started yet, ignoring kick")
		return
	}
	if q.running || q.ctx.Err() != nil {
		return
	}
	q.running = true
	q.wg.Add(1)
	go q.processLoop(q.ctx)
}

// Running reports whether the loop is active.
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Current returns the id of the item being processed, if any.
func (q *Queue) Current() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// Head returns the oldest item or nil.
func (q *Queue) Head() (*Item, error) {
	return q.store.Head()
}

// Get returns a queued item by id.
func (q *Queue) Get(id string) (*Item, error) {
	return q.store.Get(id)
}

// Len returns the number of queued items.
func (q *Queue) Len() (int, error) {
	return q.store.Len()
}

// Paths returns the queued file paths.
func (q *Queue) Paths() (map[string]struct{}, error) {
	return q.store.Paths()
}

// Remove drops an item without processing it. Removing the item that is
// currently being processed only deletes it from storage; its processing
// runs to completion.
func (q *Queue) Remove(id string) error {
	removed, err := q.store.Remove(id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("queue item %s: %w", id, apperrors.ErrNotFound)
	}
	logging.Info("Removed queue item %s", id)
	metrics.QueueItemsProcessed.WithLabelValues("unknown", "removed").Inc()
	q.updateLength()
	return nil
}

// Complete applies a manual result to the item and removes it. It returns
// the id of the catalog record that was written. The item the loop is
// processing cannot be completed.
func (q *Queue) Complete(ctx context.Context, id string, result ManualResult) (string, error) {
	if q.Current() == id {
		return "", fmt.Errorf("queue item %s: %w", id, apperrors.ErrItemInFlight)
	}

	q.work.Lock()
	defer q.work.Unlock()

	// The loop may have taken and finished the item while we waited.
	item, err := q.store.Get(id)
	if err != nil {
		return "", err
	}

	recordID, err := q.proc.Complete(ctx, item, result)
	if err != nil {
		return "", err
	}

	if _, err := q.store.Remove(id); err != nil {
		return recordID, err
	}
	metrics.QueueItemsProcessed.WithLabelValues(string(item.Kind), "completed").Inc()
	q.updateLength()
	return recordID, nil
}

func (q *Queue) processLoop(ctx context.Context) {
	defer q.wg.Done()

	metrics.QueueLoopRunning.Set(1)
	defer metrics.QueueLoopRunning.Set(0)

	logging.Info("Ingestion loop started")
	processed := 0

	for {
		if ctx.Err() != nil {
			q.finish()
			logging.Info("Ingestion loop stopped after %d item(s)", processed)
			return
		}
		if q.gate != nil {
			if err := q.gate.Wait(ctx); err != nil {
				q.finish()
				logging.Info("Ingestion loop stopped after %d item(s)", processed)
				return
			}
		}

		item, err := q.next()
		if err != nil {
			logging.Error("Reading queue head failed: %v", err)
			q.finish()
			return
		}
		if item == nil {
			logging.Info("Ingestion queue drained after %d item(s)", processed)
			return
		}

		if err := q.process(ctx, item); err != nil {
			// The head would be retried forever.
			logging.Error("Stopping ingestion loop: %v", err)
			q.finish()
			return
		}
		processed++
	}
}

// next returns the head item; on an empty queue it clears the running
// flag under the lock so that a concurrent Kick starts a fresh loop.
func (q *Queue) next() (*Item, error) {
	item, err := q.store.Head()
	if err != nil || item != nil {
		return item, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	item, err = q.store.Head()
	if err != nil || item == nil {
		q.running = false
		q.current = ""
	}
	return item, err
}

func (q *Queue) finish() {
	q.mu.Lock()
	q.running = false
	q.current = ""
	q.mu.Unlock()
}

func (q *Queue) process(ctx context.Context, item *Item) error {
	q.work.Lock()
	defer q.work.Unlock()

	// Completed or removed between reading the head and taking the lock.
	if _, err := q.store.Get(item.ID); errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}

	q.mu.Lock()
	q.current = item.ID
	q.mu.Unlock()

	start := time.Now()
	// Shutdown does not interrupt an item midway.
	err := q.proc.Process(context.WithoutCancel(ctx), item)
	metrics.QueueItemDuration.WithLabelValues(string(item.Kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		step := "unknown"
		var se *apperrors.StepError
		if errors.As(err, &se) {
			step = se.Step
		}
		metrics.QueueItemFailures.WithLabelValues(step).Inc()
		metrics.QueueItemsProcessed.WithLabelValues(string(item.Kind), "failed").Inc()
		log := logging.With("queue")
		log.Error().
			Str("item", item.ID).
			Str("path", item.Path).
			Str("step", step).
			Err(err).
			Msg("queue item failed, skipping")
	} else {
		metrics.QueueItemsProcessed.WithLabelValues(string(item.Kind), "completed").Inc()
		logging.Info("Ingested %s in %v", item.Path, time.Since(start).Round(time.Millisecond))
	}

	q.mu.Lock()
	q.current = ""
	q.mu.Unlock()

	if _, err := q.store.Remove(item.ID); err != nil {
		return fmt.Errorf("remove queue item %s: %w", item.ID, err)
	}
	q.updateLength()
	return nil
}

func (q *Queue) updateLength() {
	if n, err := q.store.Len(); err == nil {
		metrics.QueueLength.Set(float64(n))
	}
}
