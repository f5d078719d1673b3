package scheduler

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"tabmirror/internal/catalog"
	"tabmirror/internal/tableau"
	"tabmirror/pkg/errors"
	"tabmirror/pkg/models"
)

// Fetcher retrieves one item's content from the server. The tableau
// client satisfies this; tests substitute fakes.
type Fetcher interface {
	Download(ctx context.Context, kind tableau.ContentKind, id string) (io.ReadCloser, error)
}

// Writer persists one item's content into the mirror
type Writer interface {
	Write(item catalog.Item, r io.Reader) (int64, error)
}

// Result is the outcome of one item's download
type Result struct {
	Item     catalog.Item
	Outcome  models.Outcome
	Bytes    int64
	Err      error
	Duration time.Duration
}

// ProgressFunc observes each completed item. completed is monotonically
// increasing; rendering is the caller's concern, the scheduler never
// prints.
type ProgressFunc func(completed, total int, item catalog.Item, outcome models.Outcome)

// Config tunes the scheduler
type Config struct {
	Workers     int
	ItemTimeout time.Duration
	Retry       *errors.RetryConfig
	OnProgress  ProgressFunc
}

// Scheduler executes a download set with a fixed-size worker pool.
// Items fail independently; one item's failure never cancels or blocks
// the others.
type Scheduler struct {
	fetcher   Fetcher
	writer    Writer
	cfg       Config
	completed atomic.Int64
}

// New creates a scheduler. A worker count below 1 is raised to 1; the
// retry policy defaults to the package-wide backoff config.
func New(fetcher Fetcher, writer Writer, cfg Config) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = 5 * time.Minute
	}
	if cfg.Retry == nil {
		cfg.Retry = errors.DefaultRetryConfig()
	}
	return &Scheduler{fetcher: fetcher, writer: writer, cfg: cfg}
}

// Run downloads every item and returns exactly one result per item. It
// only returns once all workers have finished, so the caller observes a
// consistent filesystem snapshot. Cancelling the context stops new work;
// items not yet started complete as skipped rather than leaving the
// result set short.
func (s *Scheduler) Run(ctx context.Context, items []catalog.Item) []Result {
	total := len(items)
	if total == 0 {
		return nil
	}

	tasks := make(chan catalog.Item)
	out := make(chan Result, total)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range tasks {
				res := s.runItem(ctx, item)
				completed := int(s.completed.Add(1))
				if s.cfg.OnProgress != nil {
					s.cfg.OnProgress(completed, total, item, res.Outcome)
				}
				out <- res
			}
		}()
	}

	go func() {
		for _, item := range items {
			tasks <- item
		}
		close(tasks)
	}()

	results := make([]Result, 0, total)
	for len(results) < total {
		results = append(results, <-out)
	}
	wg.Wait()
	return results
}

// Completed exposes the monotonically increasing count of finished items
func (s *Scheduler) Completed() int {
	return int(s.completed.Load())
}

// runItem downloads and writes a single item. The retry decision lives
// here, local to the item's task, so the policy can change without
// touching the pool.
func (s *Scheduler) runItem(ctx context.Context, item catalog.Item) Result {
	start := time.Now()

	if ctx.Err() != nil {
		return Result{
			Item:    item,
			Outcome: models.OutcomeSkipped,
			Err:     ctx.Err(),
		}
	}

	itemCtx, cancel := context.WithTimeout(ctx, s.cfg.ItemTimeout)
	defer cancel()

	var written int64
	err := errors.Retry(itemCtx, s.cfg.Retry, func(ctx context.Context) error {
		rc, err := s.fetcher.Download(ctx, item.Kind, item.ID)
		if err != nil {
			return err
		}
		defer rc.Close()

		n, err := s.writer.Write(item, rc)
		if err != nil {
			return err
		}
		written = n
		return nil
	})

	res := Result{Item: item, Bytes: written, Duration: time.Since(start)}
	if err != nil {
		res.Outcome = models.OutcomeFailed
		res.Err = err
		return res
	}
	res.Outcome = models.OutcomeSuccess
	return res
}
