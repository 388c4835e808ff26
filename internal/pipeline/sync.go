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

// SyncFarmNDVI refreshes the vegetation history of one farm: the most recent
// low-cloud scenes within the lookback window, skipping acquisition dates
// already cached. Sentinel-2 revisits roughly every 5 days, so the ~60-day
// lookback comfortably covers the per-farm scene cap.
func (p *Pipeline) SyncFarmNDVI(ctx context.Context, farm store.Farm) error {
	bbox, err := geo.Envelope(farm.Boundary)
	if err != nil {
		return err
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -p.opts.NDVILookback)

	products, err := p.catalog.Search(ctx, bbox, from, to, catalog.PlatformOptical)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		p.logger.InfoContext(ctx, "no optical products for farm", slog.String("farm_id", farm.ID))
		return nil
	}

	recent := catalog.SortByIngestion(products, true)
	usable := make([]catalog.ProductRecord, 0, len(recent))
	for _, prod := range recent {
		if prod.CloudCover < p.opts.MaxCloudCover {
			usable = append(usable, prod)
		}
	}
	if len(usable) == 0 {
		p.logger.InfoContext(ctx, "no low-cloud products for farm",
			slog.String("farm_id", farm.ID),
			slog.Float64("max_cloud_cover", p.opts.MaxCloudCover),
		)
		return nil
	}
	if len(usable) > p.opts.MaxScenesPerFarm {
		usable = usable[:p.opts.MaxScenesPerFarm]
	}

	for _, prod := range usable {
		if err := p.syncScene(ctx, farm, bbox, prod); err != nil {
			return fmt.Errorf("product %s: %w", prod.Title, err)
		}
	}
	return nil
}

// syncScene processes a single optical scene for a farm, skipping dates
// already cached so rerunning the job stays idempotent.
func (p *Pipeline) syncScene(ctx context.Context, farm store.Farm, bbox geo.BoundingBox, prod catalog.ProductRecord) error {
	acqDate := store.DateOnlyUTC(prod.IngestedAt)

	exists, err := p.observations.Exists(ctx, farm.ID, store.MetricNDVI, acqDate)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	p.logger.InfoContext(ctx, "processing scene for farm",
		slog.String("farm_id", farm.ID),
		slog.String("title", prod.Title),
	)

	productDir, err := p.downloads.Fetch(ctx, prod)
	if err != nil {
		return err
	}
	outPath := p.outputPath("ndvi")
	defer p.cleanup(ctx, productDir, p.downloads.ArchivePath(prod.Title), outPath)

	bands, err := p.locateOptical(productDir)
	if err != nil {
		return err
	}

	res, err := p.computeNDVI(bands.Red, bands.NIR, outPath, &bbox)
	if err != nil {
		return err
	}

	cloud := prod.CloudCover
	rec, saved, err := p.saveIfAbsent(ctx, store.ObservationRecord{
		FarmID:          farm.ID,
		AcquisitionDate: acqDate,
		Metric:          store.MetricNDVI,
		Platform:        string(catalog.PlatformOptical),
		MeanValue:       res.Summary.Mean,
		MinValue:        res.Summary.Min,
		MaxValue:        res.Summary.Max,
		CloudCover:      &cloud,
	})
	if err != nil {
		return err
	}
	if saved {
		p.forward(ctx, rec)
	}
	return nil
}

// SyncFarmMoisture refreshes the soil-moisture proxy of one farm from the
// single most recent radar scene in the lookback window. Radar revisit is
// denser than optical but the proxy is cheap to maintain at lower frequency.
func (p *Pipeline) SyncFarmMoisture(ctx context.Context, farm store.Farm) error {
	bbox, err := geo.Envelope(farm.Boundary)
	if err != nil {
		return err
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -p.opts.MoistureLookback)

	products, err := p.catalog.Search(ctx, bbox, from, to, catalog.PlatformRadar)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		p.logger.InfoContext(ctx, "no radar products for farm", slog.String("farm_id", farm.ID))
		return nil
	}
	prod := catalog.SortByIngestion(products, true)[0]
	acqDate := store.DateOnlyUTC(prod.IngestedAt)

	exists, err := p.observations.Exists(ctx, farm.ID, store.MetricSoilMoisture, acqDate)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	p.logger.InfoContext(ctx, "processing scene for farm",
		slog.String("farm_id", farm.ID),
		slog.String("title", prod.Title),
	)

	productDir, err := p.downloads.Fetch(ctx, prod)
	if err != nil {
		return err
	}
	outPath := p.outputPath("soil_moisture")
	defer p.cleanup(ctx, productDir, p.downloads.ArchivePath(prod.Title), outPath)

	vvPath, err := p.locateRadar(productDir, "vv")
	if err != nil {
		return err
	}

	res, err := p.computeMoisture(vvPath, outPath, &bbox)
	if err != nil {
		return err
	}

	rec, saved, err := p.saveIfAbsent(ctx, store.ObservationRecord{
		FarmID:          farm.ID,
		AcquisitionDate: acqDate,
		Metric:          store.MetricSoilMoisture,
		Platform:        string(catalog.PlatformRadar),
		MeanValue:       res.Summary.Mean,
		MinValue:        res.Summary.Min,
		MaxValue:        res.Summary.Max,
	})
	if err != nil {
		return err
	}
	if saved {
		p.forward(ctx, rec)
	}
	return nil
}
