package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryObservations is an in-memory ObservationStore for tests and
// credential-less local runs. Semantics mirror the MongoDB store: inserts are
// unconstrained, so the exists-then-save discipline still rests with callers.
type MemoryObservations struct {
	mu      sync.Mutex
	nextID  int
	records []ObservationRecord
}

// NewMemoryObservations creates an empty in-memory observation store.
func NewMemoryObservations() *MemoryObservations {
	return &MemoryObservations{}
}

func (s *MemoryObservations) Exists(_ context.Context, farmID string, metric Metric, date time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := DateOnlyUTC(date)
	for _, r := range s.records {
		if r.FarmID == farmID && r.Metric == metric && r.AcquisitionDate.Equal(day) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryObservations) Save(_ context.Context, rec ObservationRecord) (ObservationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	rec.ID = fmt.Sprintf("mem-%d", s.nextID)
	rec.AcquisitionDate = DateOnlyUTC(rec.AcquisitionDate)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *MemoryObservations) Query(_ context.Context, farmID string, metric Metric, from, to time.Time) ([]ObservationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lo, hi := DateOnlyUTC(from), DateOnlyUTC(to)
	var out []ObservationRecord
	for _, r := range s.records {
		if r.FarmID == farmID && r.Metric == metric &&
			!r.AcquisitionDate.Before(lo) && !r.AcquisitionDate.After(hi) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AcquisitionDate.Before(out[j].AcquisitionDate) })
	return out, nil
}

// Len reports the number of stored records.
func (s *MemoryObservations) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
