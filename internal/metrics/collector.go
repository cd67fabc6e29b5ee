package metrics

import (
	"context"
	"time"

	"media-vault/internal/logging"
)

// StatsProvider reports catalog record counts per collection.
type StatsProvider interface {
	Counts(ctx context.Context) (map[string]int, error)
}

// QueueLengther reports the number of pending queue items.
type QueueLengther interface {
	Len() (int, error)
}

// Collector periodically refreshes gauges that are cheaper to poll than to
// maintain on every write.
type Collector struct {
	stats    StatsProvider
	queue    QueueLengther
	interval time.Duration
}

// NewCollector creates a new metrics collector
func NewCollector(stats StatsProvider, queue QueueLengther, interval time.Duration) *Collector {
	return &Collector{stats: stats, queue: queue, interval: interval}
}

// Serve runs the collection loop until ctx is canceled.
func (c *Collector) Serve(ctx context.Context) error {
	c.collect(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Collector) String() string { return "metrics-collector" }

func (c *Collector) collect(ctx context.Context) {
	if c.stats != nil {
		counts, err := c.stats.Counts(ctx)
		if err != nil {
			logging.Warn("Metrics collection failed: %v", err)
		}
		for collection, n := range counts {
			CatalogRecordsTotal.WithLabelValues(collection).Set(float64(n))
		}
	}
	if c.queue != nil {
		if n, err := c.queue.Len(); err == nil {
			QueueLength.Set(float64(n))
		}
	}
	logging.Debug("Metrics collected")
}
