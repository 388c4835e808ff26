package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/catalog"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/geo"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/store"
)

// Request is an on-demand index calculation request. BBox is
// [minLon, minLat, maxLon, maxLat]; FarmID is optional and enables the cache
// and persistence paths.
type Request struct {
	FarmID string    `json:"farmId,omitempty"`
	BBox   []float64 `json:"bbox"`
	From   time.Time `json:"startDate"`
	To     time.Time `json:"endDate"`
}

// Result is the assembled response for an on-demand calculation.
type Result struct {
	Metric          store.Metric `json:"metricType"`
	Mean            float64      `json:"meanValue"`
	Min             float64      `json:"minValue"`
	Max             float64      `json:"maxValue"`
	AcquisitionDate time.Time    `json:"acquisitionDate"`
	CloudCover      *float64     `json:"cloudCover,omitempty"`
	RasterPath      string       `json:"rasterPath,omitempty"`
	FromCache       bool         `json:"fromCache"`
	Chart           []ChartPoint `json:"chart"`
}

// CalculateNDVI runs the on-demand vegetation pipeline: validate input, serve
// from cache when history already covers the range, otherwise discover the
// best low-cloud scene, download, compute, persist and assemble the chart.
func (p *Pipeline) CalculateNDVI(ctx context.Context, req Request) (Result, error) {
	bbox, err := geo.FromSlice(req.BBox)
	if err != nil {
		return Result{}, err
	}

	// Cache hit is the dominant, cheap path once a farm has synced at least
	// once: no catalog query, no download.
	if req.FarmID != "" {
		history, err := p.observations.Query(ctx, req.FarmID, store.MetricNDVI, req.From, req.To)
		if err != nil {
			return Result{}, err
		}
		if len(history) > 0 {
			p.logger.InfoContext(ctx, "serving NDVI from cache",
				slog.String("farm_id", req.FarmID),
				slog.Int("records", len(history)),
			)
			return resultFromHistory(store.MetricNDVI, history), nil
		}
	}

	products, err := p.catalog.Search(ctx, bbox, req.From, req.To, catalog.PlatformOptical)
	if err != nil {
		return Result{}, err
	}
	best, ok := catalog.SelectBest(products)
	if !ok {
		return Result{}, fmt.Errorf("%w: optical %s..%s", catalog.ErrNoProducts,
			req.From.Format("2006-01-02"), req.To.Format("2006-01-02"))
	}

	p.logger.InfoContext(ctx, "selected product",
		slog.String("title", best.Title),
		slog.Float64("cloud_cover", best.CloudCover),
	)

	productDir, err := p.downloads.Fetch(ctx, best)
	if err != nil {
		return Result{}, err
	}
	defer p.cleanup(ctx, productDir, p.downloads.ArchivePath(best.Title), "")

	bands, err := p.locateOptical(productDir)
	if err != nil {
		return Result{}, err
	}

	res, err := p.computeNDVI(bands.Red, bands.NIR, p.outputPath("ndvi"), &bbox)
	if err != nil {
		return Result{}, err
	}

	acqDate := store.DateOnlyUTC(best.IngestedAt)
	cloud := best.CloudCover

	if req.FarmID != "" {
		rec := store.ObservationRecord{
			FarmID:          req.FarmID,
			AcquisitionDate: acqDate,
			Metric:          store.MetricNDVI,
			Platform:        string(catalog.PlatformOptical),
			MeanValue:       res.Summary.Mean,
			MinValue:        res.Summary.Min,
			MaxValue:        res.Summary.Max,
			CloudCover:      &cloud,
		}
		if _, _, err := p.saveIfAbsent(ctx, rec); err != nil {
			return Result{}, err
		}
	}

	var history []store.ObservationRecord
	if req.FarmID != "" {
		if history, err = p.observations.Query(ctx, req.FarmID, store.MetricNDVI, req.From, req.To); err != nil {
			return Result{}, err
		}
	}

	return Result{
		Metric:          store.MetricNDVI,
		Mean:            res.Summary.Mean,
		Min:             res.Summary.Min,
		Max:             res.Summary.Max,
		AcquisitionDate: acqDate,
		CloudCover:      &cloud,
		RasterPath:      res.Path,
		Chart:           p.assembleChart(history, products, best, store.MetricNDVI, res.Summary.Mean),
	}, nil
}

// CalculateMoisture runs the on-demand soil-moisture pipeline for a single
// date: radar scenes are all-weather, so the most recent product wins with no
// cloud filtering.
func (p *Pipeline) CalculateMoisture(ctx context.Context, req Request) (Result, error) {
	bbox, err := geo.FromSlice(req.BBox)
	if err != nil {
		return Result{}, err
	}

	if req.FarmID != "" {
		history, err := p.observations.Query(ctx, req.FarmID, store.MetricSoilMoisture, req.From, req.To)
		if err != nil {
			return Result{}, err
		}
		if len(history) > 0 {
			p.logger.InfoContext(ctx, "serving soil moisture from cache",
				slog.String("farm_id", req.FarmID),
				slog.Int("records", len(history)),
			)
			return resultFromHistory(store.MetricSoilMoisture, history), nil
		}
	}

	products, err := p.catalog.Search(ctx, bbox, req.From, req.To, catalog.PlatformRadar)
	if err != nil {
		return Result{}, err
	}
	if len(products) == 0 {
		return Result{}, fmt.Errorf("%w: radar %s..%s", catalog.ErrNoProducts,
			req.From.Format("2006-01-02"), req.To.Format("2006-01-02"))
	}
	// Catalog order is ingestion-descending; the first product is the most
	// recent acquisition.
	best := products[0]

	p.logger.InfoContext(ctx, "selected product", slog.String("title", best.Title))

	productDir, err := p.downloads.Fetch(ctx, best)
	if err != nil {
		return Result{}, err
	}
	defer p.cleanup(ctx, productDir, p.downloads.ArchivePath(best.Title), "")

	vvPath, err := p.locateRadar(productDir, "vv")
	if err != nil {
		return Result{}, err
	}

	res, err := p.computeMoisture(vvPath, p.outputPath("soil_moisture"), &bbox)
	if err != nil {
		return Result{}, err
	}

	acqDate := store.DateOnlyUTC(best.IngestedAt)

	if req.FarmID != "" {
		rec := store.ObservationRecord{
			FarmID:          req.FarmID,
			AcquisitionDate: acqDate,
			Metric:          store.MetricSoilMoisture,
			Platform:        string(catalog.PlatformRadar),
			MeanValue:       res.Summary.Mean,
			MinValue:        res.Summary.Min,
			MaxValue:        res.Summary.Max,
		}
		if _, _, err := p.saveIfAbsent(ctx, rec); err != nil {
			return Result{}, err
		}
	}

	var history []store.ObservationRecord
	if req.FarmID != "" {
		if history, err = p.observations.Query(ctx, req.FarmID, store.MetricSoilMoisture, req.From, req.To); err != nil {
			return Result{}, err
		}
	}

	return Result{
		Metric:          store.MetricSoilMoisture,
		Mean:            res.Summary.Mean,
		Min:             res.Summary.Min,
		Max:             res.Summary.Max,
		AcquisitionDate: acqDate,
		RasterPath:      res.Path,
		Chart:           p.assembleChart(history, products, best, store.MetricSoilMoisture, res.Summary.Mean),
	}, nil
}

// resultFromHistory assembles a response purely from cached records: the
// latest record supplies the headline statistics, the full range backs the
// chart.
func resultFromHistory(metric store.Metric, history []store.ObservationRecord) Result {
	latest := history[len(history)-1]
	return Result{
		Metric:          metric,
		Mean:            latest.MeanValue,
		Min:             latest.MinValue,
		Max:             latest.MaxValue,
		AcquisitionDate: latest.AcquisitionDate,
		CloudCover:      latest.CloudCover,
		FromCache:       true,
		Chart:           chartFromHistory(history),
	}
}
