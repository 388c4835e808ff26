package sched

import (
	"context"
	"log/slog"
	"time"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/store"
)

// SyncFunc processes one farm; satisfied by the pipeline sync methods.
type SyncFunc func(ctx context.Context, farm store.Farm) error

// Report aggregates one batch run.
type Report struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Batch runs a per-farm sync across every registered farm. One farm failing
// never aborts the batch; each failure is retried a few times with a fixed
// delay before being counted and left behind.
type Batch struct {
	farms    store.FarmStore
	attempts int
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// NewBatch creates a batch runner. attempts must be at least 1.
func NewBatch(farms store.FarmStore, attempts int, delay time.Duration, logger *slog.Logger) *Batch {
	if attempts < 1 {
		attempts = 1
	}
	return &Batch{
		farms:    farms,
		attempts: attempts,
		delay:    delay,
		sleep:    sleepCtx,
		logger:   logger,
	}
}

// Run executes sync for every farm and returns the aggregate. Farms without
// boundary geometry are skipped up front; there is nothing to observe.
func (b *Batch) Run(ctx context.Context, name string, sync SyncFunc) Report {
	var report Report

	farms, err := b.farms.All(ctx)
	if err != nil {
		b.logger.ErrorContext(ctx, "batch aborted: cannot list farms",
			slog.String("job", name), slog.String("error", err.Error()))
		return report
	}
	b.logger.InfoContext(ctx, "batch starting",
		slog.String("job", name), slog.Int("farms", len(farms)))

	for _, farm := range farms {
		if ctx.Err() != nil {
			b.logger.WarnContext(ctx, "batch cancelled", slog.String("job", name))
			break
		}
		if len(farm.Boundary) == 0 {
			report.Skipped++
			continue
		}
		if err := b.syncWithRetry(ctx, farm, sync); err != nil {
			report.Failed++
			b.logger.ErrorContext(ctx, "farm sync failed",
				slog.String("job", name),
				slog.String("farm_id", farm.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Succeeded++
	}

	b.logger.InfoContext(ctx, "batch finished",
		slog.String("job", name),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
	)
	return report
}

func (b *Batch) syncWithRetry(ctx context.Context, farm store.Farm, sync SyncFunc) error {
	var err error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		if err = sync(ctx, farm); err == nil {
			return nil
		}
		if attempt == b.attempts {
			break
		}
		b.logger.WarnContext(ctx, "farm sync attempt failed, retrying",
			slog.String("farm_id", farm.ID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if serr := b.sleep(ctx, b.delay); serr != nil {
			return serr
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
