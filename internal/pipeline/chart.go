package pipeline

import (
	"sort"
	"time"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/catalog"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/store"
)

// PointKind distinguishes genuine computed measurements from synthesized
// demo points. The two must never be conflated: illustrative points exist
// only to smooth first-request charts and are not observations.
type PointKind string

const (
	PointMeasured     PointKind = "measured"
	PointIllustrative PointKind = "illustrative"
)

// ChartPoint is one entry of the assembled time series.
type ChartPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	Kind  PointKind `json:"kind"`
}

// chartFromHistory maps persisted records to measured chart points.
func chartFromHistory(history []store.ObservationRecord) []ChartPoint {
	points := make([]ChartPoint, 0, len(history))
	for _, rec := range history {
		points = append(points, ChartPoint{
			Date:  rec.AcquisitionDate,
			Value: rec.MeanValue,
			Kind:  PointMeasured,
		})
	}
	return points
}

// assembleChart merges persisted history with the just-computed point and,
// when fewer than two real points exist (first-ever request for a farm),
// synthesizes illustrative points from the other catalog hits in range by
// perturbing the real value slightly. Illustrative points are explicitly
// marked so no consumer can mistake them for measurements.
func (p *Pipeline) assembleChart(history []store.ObservationRecord, products []catalog.ProductRecord, best catalog.ProductRecord, metric store.Metric, mean float64) []ChartPoint {
	computedDate := store.DateOnlyUTC(best.IngestedAt)

	points := chartFromHistory(history)

	// Ensure the fresh computation is present, overriding any stale value
	// persisted for the same date.
	found := false
	for i := range points {
		if points[i].Date.Equal(computedDate) {
			points[i].Value = mean
			points[i].Kind = PointMeasured
			found = true
			break
		}
	}
	if !found {
		points = append(points, ChartPoint{Date: computedDate, Value: mean, Kind: PointMeasured})
	}

	if len(points) >= 2 {
		sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
		return points
	}

	// Demo smoothing: one real point makes a bare chart, so fabricate
	// plausible neighbors from the remaining catalog hits.
	lo, hi := metric.Range()
	points = points[:0]
	for _, prod := range catalog.SortByIngestion(products, false) {
		date := store.DateOnlyUTC(prod.IngestedAt)
		if prod.ID == best.ID {
			points = append(points, ChartPoint{Date: date, Value: mean, Kind: PointMeasured})
			continue
		}
		v := mean + p.perturb()
		if v < lo {
			v = lo
		}
		if v > hi {
			v = hi
		}
		points = append(points, ChartPoint{Date: date, Value: v, Kind: PointIllustrative})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points
}
