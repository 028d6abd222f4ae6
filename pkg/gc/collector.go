// Package gc removes orphaned content from a cluster's content store.
//
// Content is orphaned when no file in the metadata store refers to it.
// This can occur due to:
//   - A crash between removing a file and freeing its content
//   - Failed content deletes, which the cluster only logs
//   - Files replaced by an overwrite while a writer still held them
//
// The collector works with any metadata.Store and any content.Store that
// implements content.Lister.
package gc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/content"
	"github.com/marmos91/godfs/pkg/metadata"
)

// ErrNotListable is returned by NewCollector for content stores that
// cannot enumerate their content.
var ErrNotListable = errors.New("content store does not implement content.Lister")

// DefaultBatchSize is the number of deletions between cancellation checks.
const DefaultBatchSize = 1000

// Collector finds and deletes orphaned content, either on demand with
// RunNow or periodically after Start.
//
// Thread Safety: Safe for concurrent use.
type Collector struct {
	meta   metadata.Store
	data   content.Store
	lister content.Lister
	config Config
	inUse  func(metadata.ContentID) bool

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Interval is how often Start runs a collection. 0 disables
	// background collection; RunNow still works.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// BatchSize is how many orphans are deleted between cancellation
	// checks (default: 1000)
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size" validate:"gte=0"`

	// DryRun logs what would be deleted without deleting anything.
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`
}

// Option customizes a Collector.
type Option func(*Collector)

// WithInUse makes the collector skip content that inUse reports as still
// held open, even when no entry refers to it.
func WithInUse(inUse func(metadata.ContentID) bool) Option {
	return func(c *Collector) { c.inUse = inUse }
}

// NewCollector creates a collector over a cluster's two stores. It does
// not start background collection.
func NewCollector(meta metadata.Store, data content.Store, config Config, opts ...Option) (*Collector, error) {
	lister, ok := data.(content.Lister)
	if !ok {
		return nil, ErrNotListable
	}

	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	c := &Collector{
		meta:   meta,
		data:   data,
		lister: lister,
		config: config,
		inUse:  func(metadata.ContentID) bool { return false },
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start begins background collection at the configured interval. It is a
// no-op when Interval is 0 or when already started.
func (c *Collector) Start() {
	if c.config.Interval <= 0 {
		return
	}

	c.startOnce.Do(func() {
		c.started = true
		logger.Info("Starting garbage collector: interval=%s batch_size=%d dry_run=%v",
			c.config.Interval, c.config.BatchSize, c.config.DryRun)
		go c.worker()
	})
}

// Stop stops background collection and waits for an in-progress run to
// finish, or for ctx to expire. Safe to call multiple times, and before
// Start.
func (c *Collector) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.startOnce.Do(func() {}) // a later Start must not launch a worker
		if !c.started {
			return
		}

		select {
		case <-c.doneCh:
			logger.Debug("Garbage collector stopped")
		case <-ctx.Done():
			logger.Warn("Garbage collector shutdown timeout")
			err = ctx.Err()
		}
	})
	return err
}

// RunNow performs one collection and blocks until it completes or ctx is
// cancelled.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	return c.collect(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			stats, err := c.collect(ctx)
			cancel()

			if err != nil {
				logger.Error("Garbage collection failed: %v", err)
			} else {
				logger.Info("Garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect performs a single run:
//  1. List every content ID in the content store
//  2. Read the content IDs files refer to from the metadata store
//  3. Delete listed IDs that no file refers to
//
// The order matters for concurrent writers: a file's entry is created
// before any of its content, so content listed in step 1 either belongs to
// an entry seen in step 2 or to one already removed. Content of removed
// entries that is still open is left to whoever holds it.
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	defer func() { stats.EndTime = time.Now() }()

	existing, err := c.lister.ListContent(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list content: %w", err)
	}
	stats.ExistingCount = uint64(len(existing))

	ids, err := c.meta.ContentIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to get referenced content: %w", err)
	}
	referenced := make(map[metadata.ContentID]struct{}, len(ids))
	for _, id := range ids {
		referenced[id] = struct{}{}
	}
	stats.ReferencedCount = uint64(len(referenced))

	var orphaned []metadata.ContentID
	for _, id := range existing {
		if _, ok := referenced[id]; ok {
			continue
		}
		if c.inUse(id) {
			stats.InUseCount++
			continue
		}
		orphaned = append(orphaned, id)
	}
	stats.OrphanedCount = uint64(len(orphaned))

	logger.Debug("GC: existing=%d referenced=%d orphaned=%d",
		stats.ExistingCount, stats.ReferencedCount, stats.OrphanedCount)

	if len(orphaned) == 0 {
		return stats, nil
	}

	if c.config.DryRun {
		for i, id := range orphaned {
			if i == 10 {
				logger.Info("GC: DRY RUN ... and %d more", len(orphaned)-10)
				break
			}
			logger.Info("GC: DRY RUN would delete %s", id)
		}
		return stats, nil
	}

	for i := 0; i < len(orphaned); i += c.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		batch := orphaned[i:min(i+c.config.BatchSize, len(orphaned))]
		for _, id := range batch {
			if err := c.data.Delete(ctx, id); err != nil {
				logger.Debug("GC: Failed to delete %s: %v", id, err)
				stats.FailedCount++
				continue
			}
			stats.DeletedCount++
		}
	}

	return stats, nil
}

// Stats contains statistics from a garbage collection run.
type Stats struct {
	StartTime       time.Time // When collection started
	EndTime         time.Time // When collection ended
	ReferencedCount uint64    // Number of ContentIDs referenced by metadata
	ExistingCount   uint64    // Number of ContentIDs in content store
	InUseCount      uint64    // Number of unreferenced ContentIDs still held open
	OrphanedCount   uint64    // Number of orphaned ContentIDs found
	DeletedCount    uint64    // Number of orphaned items successfully deleted
	FailedCount     uint64    // Number of orphaned items that failed to delete
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("referenced=%d existing=%d in_use=%d orphaned=%d deleted=%d failed=%d duration=%s",
		s.ReferencedCount, s.ExistingCount, s.InUseCount, s.OrphanedCount,
		s.DeletedCount, s.FailedCount, s.Duration().Round(time.Millisecond))
}
