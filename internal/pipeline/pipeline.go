// Package pipeline orchestrates satellite observation acquisition: catalog
// discovery, cache checks, download, band location, index computation and
// persistence, both for on-demand requests and the nightly per-farm sync.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/catalog"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/geo"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/publish"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/raster"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/store"
)

// Catalog is the discovery dependency; satisfied by catalog.Client.
type Catalog interface {
	Search(ctx context.Context, bbox geo.BoundingBox, from, to time.Time, platform catalog.Platform) ([]catalog.ProductRecord, error)
}

// Downloader is the acquisition dependency; satisfied by download.Manager.
type Downloader interface {
	Fetch(ctx context.Context, product catalog.ProductRecord) (string, error)
	ArchivePath(title string) string
}

// Options tunes the pipeline.
type Options struct {
	OutputDir        string
	Calibration      raster.Calibration
	MaxCloudCover    float64 // nightly NDVI sync admits only scenes below this
	MaxScenesPerFarm int     // nightly NDVI sync cap per farm
	NDVILookback     int     // days
	MoistureLookback int     // days
}

// Pipeline wires the acquisition components behind the on-demand use case and
// the per-farm sync. All collaborators are injected; nothing is constructed
// lazily on first use.
type Pipeline struct {
	catalog      Catalog
	downloads    Downloader
	observations store.ObservationStore
	publisher    publish.Publisher
	opts         Options
	logger       *slog.Logger

	// Seams for tests; production wiring uses the raster package directly.
	locateOptical   func(dir string) (raster.OpticalBands, error)
	locateRadar     func(dir, polarization string) (string, error)
	computeNDVI     func(red, nir, out string, bbox *geo.BoundingBox) (raster.NDVIResult, error)
	computeMoisture func(vv, out string, bbox *geo.BoundingBox) (raster.MoistureResult, error)
	perturb         func() float64
}

// New creates a pipeline around the given collaborators.
func New(cat Catalog, dl Downloader, obs store.ObservationStore, pub publish.Publisher, opts Options, logger *slog.Logger) *Pipeline {
	p := &Pipeline{
		catalog:      cat,
		downloads:    dl,
		observations: obs,
		publisher:    pub,
		opts:         opts,
		logger:       logger,
	}
	p.locateOptical = raster.FindOpticalBands
	p.locateRadar = raster.FindRadarBand
	p.computeNDVI = func(red, nir, out string, bbox *geo.BoundingBox) (raster.NDVIResult, error) {
		return raster.ComputeNDVI(red, nir, out, bbox, logger)
	}
	p.computeMoisture = func(vv, out string, bbox *geo.BoundingBox) (raster.MoistureResult, error) {
		return raster.ComputeMoistureProxy(vv, out, bbox, opts.Calibration, logger)
	}
	p.perturb = func() float64 { return rand.Float64()*0.2 - 0.1 }
	return p
}

// outputPath returns a randomized path for a computed index raster. Names are
// random rather than farm/date-keyed so concurrent requests over the shared
// output directory never collide.
func (p *Pipeline) outputPath(prefix string) string {
	return filepath.Join(p.opts.OutputDir, fmt.Sprintf("%s_%s.tif", prefix, uuid.New().String()))
}

// cleanup removes acquisition artifacts after statistics are extracted.
// Products are multi-hundred-MB archives, so disk hygiene matters, but it is
// best-effort: failures are logged and never propagated.
func (p *Pipeline) cleanup(ctx context.Context, productDir, archivePath, rasterPath string) {
	if productDir != "" {
		if err := os.RemoveAll(productDir); err != nil {
			p.logger.WarnContext(ctx, "failed to remove product directory",
				slog.String("path", productDir), slog.String("error", err.Error()))
		}
	}
	if archivePath != "" {
		if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
			p.logger.WarnContext(ctx, "failed to remove archive",
				slog.String("path", archivePath), slog.String("error", err.Error()))
		}
	}
	if rasterPath != "" {
		if err := os.Remove(rasterPath); err != nil && !os.IsNotExist(err) {
			p.logger.WarnContext(ctx, "failed to remove computed raster",
				slog.String("path", rasterPath), slog.String("error", err.Error()))
		}
	}
}

// saveIfAbsent persists a record unless one already exists for the same farm,
// metric and acquisition date. The existence check runs immediately before
// the insert so an on-demand request racing the nightly job cannot double
// write. saved is false when a record was already present.
func (p *Pipeline) saveIfAbsent(ctx context.Context, rec store.ObservationRecord) (store.ObservationRecord, bool, error) {
	exists, err := p.observations.Exists(ctx, rec.FarmID, rec.Metric, rec.AcquisitionDate)
	if err != nil {
		return store.ObservationRecord{}, false, err
	}
	if exists {
		return store.ObservationRecord{}, false, nil
	}
	saved, err := p.observations.Save(ctx, rec)
	if err != nil {
		return store.ObservationRecord{}, false, err
	}
	return saved, true, nil
}

// forward pushes a saved observation to the graph-store publisher. Forwarding
// is fire-and-forget: a broker failure is logged and never fails the sync.
func (p *Pipeline) forward(ctx context.Context, rec store.ObservationRecord) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishObservation(ctx, rec); err != nil {
		p.logger.WarnContext(ctx, "failed to publish observation",
			slog.String("farm_id", rec.FarmID),
			slog.String("metric", string(rec.Metric)),
			slog.String("error", err.Error()),
		)
	}
}
