// Package store persists observation summaries and reads farm geometry. It is
// the system of record mapping (farm, metric, acquisition date) to summary
// statistics, used both to avoid redundant downloads and to serve history.
package store

import (
	"time"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/geo"
)

// Metric identifies which index an observation carries.
type Metric string

const (
	MetricNDVI         Metric = "NDVI"
	MetricSoilMoisture Metric = "SOIL_MOISTURE"
)

// Range returns the valid value interval for the metric.
func (m Metric) Range() (lo, hi float64) {
	if m == MetricNDVI {
		return -1, 1
	}
	return 0, 1
}

// ObservationRecord is the persisted unit: one summary per farm, metric and
// acquisition date. Records are created once per successful computation and
// never mutated; deletion is owned by farm-deletion cascades elsewhere.
//
// At most one record may exist per (farm, metric, acquisition date). The
// invariant is enforced by an existence check before insert, so callers must
// check-then-insert per farm/date rather than relying on a database
// constraint.
type ObservationRecord struct {
	ID              string    `bson:"_id,omitempty"        json:"id,omitempty"`
	FarmID          string    `bson:"farmId"               json:"farmId"`
	AcquisitionDate time.Time `bson:"acquisitionDate"      json:"acquisitionDate"`
	Metric          Metric    `bson:"metricType"           json:"metricType"`
	Platform        string    `bson:"platform,omitempty"   json:"platform,omitempty"`
	MeanValue       float64   `bson:"meanValue"            json:"meanValue"`
	MinValue        float64   `bson:"minValue"             json:"minValue"`
	MaxValue        float64   `bson:"maxValue"             json:"maxValue"`
	CloudCover      *float64  `bson:"cloudCover,omitempty" json:"cloudCover,omitempty"`
	CreatedAt       time.Time `bson:"createdAt"            json:"createdAt"`
}

// Farm is the read-only view of a farm this pipeline needs: an id and the
// polygon vertices its bounding box derives from. Farm records are never
// mutated here.
type Farm struct {
	ID       string       `bson:"_id,omitempty" json:"id"`
	Name     string       `bson:"name"          json:"name"`
	Boundary []geo.Vertex `bson:"coordinates"   json:"coordinates"`
}

// DateOnlyUTC normalizes a timestamp to 00:00:00 UTC, one bucket per
// acquisition day.
func DateOnlyUTC(t time.Time) time.Time {
	tt := t.UTC()
	return time.Date(tt.Year(), tt.Month(), tt.Day(), 0, 0, 0, 0, time.UTC)
}
