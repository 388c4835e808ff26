package sched

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/geo"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/store"
)

type staticFarms struct {
	farms []store.Farm
	err   error
}

func (s *staticFarms) All(ctx context.Context) ([]store.Farm, error) {
	return s.farms, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func boundary() []geo.Vertex {
	return []geo.Vertex{{Lat: 21.1, Lng: 105.2}, {Lat: 21.8, Lng: 105.9}}
}

func newTestBatch(farms store.FarmStore, attempts int) (*Batch, *[]time.Duration) {
	b := NewBatch(farms, attempts, 60*time.Second, testLogger())
	var delays []time.Duration
	b.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return b, &delays
}

func TestBatchIsolatesFailures(t *testing.T) {
	var farms []store.Farm
	for i := 1; i <= 5; i++ {
		farms = append(farms, store.Farm{ID: fmt.Sprintf("farm-%d", i), Boundary: boundary()})
	}
	b, _ := newTestBatch(&staticFarms{farms: farms}, 3)

	var processed []string
	report := b.Run(context.Background(), "test", func(ctx context.Context, farm store.Farm) error {
		processed = append(processed, farm.ID)
		if farm.ID == "farm-3" {
			return errors.New("catalog unavailable")
		}
		return nil
	})

	if report.Succeeded != 4 {
		t.Errorf("succeeded = %d, want 4", report.Succeeded)
	}
	if report.Failed != 1 {
		t.Errorf("failed = %d, want 1", report.Failed)
	}
	if report.Skipped != 0 {
		t.Errorf("skipped = %d, want 0", report.Skipped)
	}
	// Every farm after the failing one still ran.
	if processed[len(processed)-1] != "farm-5" {
		t.Errorf("last processed = %s", processed[len(processed)-1])
	}
}

func TestBatchRetriesWithFixedDelay(t *testing.T) {
	farms := []store.Farm{{ID: "farm-1", Boundary: boundary()}}
	b, delays := newTestBatch(&staticFarms{farms: farms}, 3)

	var attempts int
	report := b.Run(context.Background(), "test", func(ctx context.Context, farm store.Farm) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if report.Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", report.Succeeded)
	}
	if len(*delays) != 2 {
		t.Fatalf("delays = %v, want 2 entries", *delays)
	}
	for _, d := range *delays {
		if d != 60*time.Second {
			t.Errorf("delay = %v, want fixed 60s", d)
		}
	}
}

func TestBatchExhaustsAttempts(t *testing.T) {
	farms := []store.Farm{{ID: "farm-1", Boundary: boundary()}}
	b, _ := newTestBatch(&staticFarms{farms: farms}, 3)

	var attempts int
	report := b.Run(context.Background(), "test", func(ctx context.Context, farm store.Farm) error {
		attempts++
		return errors.New("persistent")
	})

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if report.Failed != 1 || report.Succeeded != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestBatchSkipsFarmsWithoutGeometry(t *testing.T) {
	farms := []store.Farm{
		{ID: "farm-1", Boundary: boundary()},
		{ID: "farm-2"},
		{ID: "farm-3", Boundary: boundary()},
	}
	b, _ := newTestBatch(&staticFarms{farms: farms}, 3)

	var processed []string
	report := b.Run(context.Background(), "test", func(ctx context.Context, farm store.Farm) error {
		processed = append(processed, farm.ID)
		return nil
	})

	if report.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", report.Skipped)
	}
	if report.Succeeded != 2 {
		t.Errorf("succeeded = %d, want 2", report.Succeeded)
	}
	for _, id := range processed {
		if id == "farm-2" {
			t.Error("geometry-less farm was processed")
		}
	}
}

func TestBatchAbortsWhenFarmListingFails(t *testing.T) {
	b, _ := newTestBatch(&staticFarms{err: errors.New("mongo down")}, 3)

	report := b.Run(context.Background(), "test", func(ctx context.Context, farm store.Farm) error {
		t.Fatal("sync must not run when listing fails")
		return nil
	})

	if report.Succeeded != 0 || report.Failed != 0 || report.Skipped != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
}

func TestBatchStopsOnCancelledContext(t *testing.T) {
	var farms []store.Farm
	for i := 1; i <= 5; i++ {
		farms = append(farms, store.Farm{ID: fmt.Sprintf("farm-%d", i), Boundary: boundary()})
	}
	b, _ := newTestBatch(&staticFarms{farms: farms}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	var processed int
	b.Run(ctx, "test", func(ctx context.Context, farm store.Farm) error {
		processed++
		if processed == 2 {
			cancel()
		}
		return nil
	})

	if processed != 2 {
		t.Errorf("processed = %d farms after cancel, want 2", processed)
	}
}

func TestSchedulerRegisterValidatesSpec(t *testing.T) {
	s := New(context.Background(), testLogger())

	if err := s.Register(Job{Name: "ok", Spec: "0 0 * * *", Run: func(context.Context) {}}); err != nil {
		t.Errorf("valid spec rejected: %v", err)
	}
	if err := s.Register(Job{Name: "bad", Spec: "not a cron line", Run: func(context.Context) {}}); err == nil {
		t.Error("invalid spec accepted")
	}
}
