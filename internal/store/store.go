package store

import (
	"context"
	"time"
)

// ObservationStore is the observation cache contract. Query returns records
// ordered by acquisition date ascending.
type ObservationStore interface {
	Exists(ctx context.Context, farmID string, metric Metric, date time.Time) (bool, error)
	Save(ctx context.Context, rec ObservationRecord) (ObservationRecord, error)
	Query(ctx context.Context, farmID string, metric Metric, from, to time.Time) ([]ObservationRecord, error)
}

// FarmStore supplies farm geometry for the sync job. Read-only collaborator;
// farm lifecycle is owned elsewhere.
type FarmStore interface {
	All(ctx context.Context) ([]Farm, error)
}
