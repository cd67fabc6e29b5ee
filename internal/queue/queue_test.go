package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"media-vault/internal/apperrors"
	"media-vault/internal/mediatypes"
)

type fakeProcessor struct {
	mu       sync.Mutex
	seen     []string
	failOn   map[string]bool
	delay    time.Duration
	active   atomic.Int32
	maxSeen  atomic.Int32
	complete func(*Item, ManualResult) (string, error)
}

func (f *fakeProcessor) Process(ctx context.Context, item *Item) error {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.seen = append(f.seen, item.Path)
	f.mu.Unlock()

	if f.failOn[item.Path] {
		return apperrors.Step(item.ID, item.Path, StepProbe, apperrors.ErrProbe)
	}
	return nil
}

func (f *fakeProcessor) Complete(_ context.Context, item *Item, res ManualResult) (string, error) {
	if f.complete != nil {
		return f.complete(item, res)
	}
	return "sc_done", nil
}

func (f *fakeProcessor) processed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func newTestQueue(t *testing.T, proc Processor) *Queue {
	t.Helper()
	q := New(newTestStore(t), proc)
	t.Cleanup(q.Stop)
	return q
}

func waitDrained(t *testing.T, q *Queue) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		n, err := q.Len()
		if err == nil && n == 0 && !q.Running() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("queue did not drain in time")
}

func TestQueueProcessesInOrder(t *testing.T) {
	proc := &fakeProcessor{}
	q := newTestQueue(t, proc)

	want := []string{"/v/3.mp4", "/v/1.mp4", "/v/2.mp4"}
	for _, p := range want {
		if err := q.Push(NewItem(mediatypes.KindVideo, p)); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}
	q.Start(context.Background())
	waitDrained(t, q)

	got := proc.processed()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("processed %v, want %v", got, want)
	}
}

func TestQueueFailureIsolation(t *testing.T) {
	proc := &fakeProcessor{failOn: map[string]bool{"/v/bad.mp4": true}}
	q := newTestQueue(t, proc)
	q.Start(context.Background())

	for _, p := range []string{"/v/a.mp4", "/v/bad.mp4", "/v/c.mp4"} {
		if err := q.Append(NewItem(mediatypes.KindVideo, p)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	waitDrained(t, q)

	got := proc.processed()
	if len(got) != 3 {
		t.Fatalf("processed %v, want all three items", got)
	}
	if got[2] != "/v/c.mp4" {
		t.Errorf("last processed = %s, want /v/c.mp4", got[2])
	}
}

func TestQueueSingleLoop(t *testing.T) {
	proc := &fakeProcessor{delay: 2 * time.Millisecond}
	q := newTestQueue(t, proc)
	q.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := q.Append(NewItem(mediatypes.KindVideo, fmt.Sprintf("/v/%02d.mp4", i))); err != nil {
				t.Errorf("Append() error = %v", err)
			}
			q.Kick()
		}(i)
	}
	wg.Wait()
	waitDrained(t, q)

	if got := len(proc.processed()); got != 20 {
		t.Errorf("processed %d items, want 20", got)
	}
	if m := proc.maxSeen.Load(); m != 1 {
		t.Errorf("max concurrent items = %d, want 1", m)
	}
}

func TestQueueKickBeforeStart(t *testing.T) {
	proc := &fakeProcessor{}
	q := newTestQueue(t, proc)

	if err := q.Append(NewItem(mediatypes.KindVideo, "/v/a.mp4")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if q.Running() || len(proc.processed()) != 0 {
		t.Fatal("queue processed items before Start")
	}

	q.Start(context.Background())
	waitDrained(t, q)
	if len(proc.processed()) != 1 {
		t.Errorf("processed %v after Start, want one item", proc.processed())
	}
}

func TestQueueRemove(t *testing.T) {
	q := newTestQueue(t, &fakeProcessor{})

	item := NewItem(mediatypes.KindImage, "/i/a.jpg")
	if err := q.Push(item); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := q.Remove(item.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := q.Remove(item.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Remove(missing) error = %v, want ErrNotFound", err)
	}
	if head, _ := q.Head(); head != nil {
		t.Errorf("Head() = %+v after Remove, want nil", head)
	}
}

func TestQueueComplete(t *testing.T) {
	var got *Item
	proc := &fakeProcessor{complete: func(item *Item, _ ManualResult) (string, error) {
		got = item
		return "sc_1", nil
	}}
	q := newTestQueue(t, proc)

	item := NewItem(mediatypes.KindVideo, "/v/a.mp4")
	if err := q.Push(item); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	id, err := q.Complete(context.Background(), item.ID, ManualResult{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if id != "sc_1" {
		t.Errorf("Complete() id = %q, want sc_1", id)
	}
	if got == nil || got.ID != item.ID {
		t.Errorf("processor received %+v, want item %s", got, item.ID)
	}
	if n, _ := q.Len(); n != 0 {
		t.Errorf("Len() = %d after Complete, want 0", n)
	}

	if _, err := q.Complete(context.Background(), "qi_missing", ManualResult{}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Complete(missing) error = %v, want ErrNotFound", err)
	}
}

func TestQueueCompleteError(t *testing.T) {
	proc := &fakeProcessor{complete: func(*Item, ManualResult) (string, error) {
		return "", apperrors.ErrValidation
	}}
	q := newTestQueue(t, proc)

	item := NewItem(mediatypes.KindVideo, "/v/a.mp4")
	if err := q.Push(item); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if _, err := q.Complete(context.Background(), item.ID, ManualResult{}); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("Complete() error = %v, want ErrValidation", err)
	}
	if n, _ := q.Len(); n != 1 {
		t.Errorf("Len() = %d, want the item kept after a failed Complete", n)
	}
}

type chanGate struct{ open chan struct{} }

func (g chanGate) Wait(ctx context.Context) error {
	select {
	case <-g.open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestQueueGateHoldsLoop(t *testing.T) {
	proc := &fakeProcessor{}
	q := newTestQueue(t, proc)
	gate := chanGate{open: make(chan struct{})}
	q.SetGate(gate)
	q.Start(context.Background())

	if err := q.Append(NewItem(mediatypes.KindVideo, "/v/held.mp4")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := proc.processed(); len(got) != 0 {
		t.Fatalf("processed %v while the gate was closed", got)
	}

	close(gate.open)
	waitDrained(t, q)
	if got := proc.processed(); len(got) != 1 {
		t.Errorf("processed %v after opening the gate, want one item", got)
	}
}

func TestQueueCompleteInFlight(t *testing.T) {
	var completes atomic.Int32
	proc := &fakeProcessor{
		delay: 300 * time.Millisecond,
		complete: func(*Item, ManualResult) (string, error) {
			completes.Add(1)
			return "sc_manual", nil
		},
	}
	q := newTestQueue(t, proc)
	q.Start(context.Background())

	item := NewItem(mediatypes.KindVideo, "/v/busy.mp4")
	if err := q.Append(item); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for q.Current() != item.ID {
		if time.Now().After(deadline) {
			t.Fatal("item never became current")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := q.Complete(context.Background(), item.ID, ManualResult{}); !errors.Is(err, apperrors.ErrItemInFlight) {
		t.Fatalf("Complete(in-flight) error = %v, want ErrItemInFlight", err)
	}

	waitDrained(t, q)
	if got := proc.processed(); len(got) != 1 {
		t.Errorf("processed %v, want the item once", got)
	}
	if n := completes.Load(); n != 0 {
		t.Errorf("Complete ran %d time(s) on the in-flight item", n)
	}
}

func TestQueueCompleteBeforeLoopTakesItem(t *testing.T) {
	release := make(chan struct{})
	proc := &fakeProcessor{complete: func(*Item, ManualResult) (string, error) {
		<-release
		return "sc_manual", nil
	}}
	q := newTestQueue(t, proc)

	item := NewItem(mediatypes.KindVideo, "/v/manual.mp4")
	if err := q.Push(item); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := q.Complete(context.Background(), item.ID, ManualResult{})
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	// The loop finds the head but must wait for the manual result.
	q.Start(context.Background())
	q.Kick()
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	waitDrained(t, q)
	if got := proc.processed(); len(got) != 0 {
		t.Errorf("processed %v after a manual result, want none", got)
	}
}
