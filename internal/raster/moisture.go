package raster

import (
	"fmt"
	"log/slog"

	"github.com/airbusgeo/godal"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/geo"
)

// MoistureResult is the outcome of one moisture-proxy computation. The proxy
// is a relative index for visualization and trend tracking, not a calibrated
// physical retrieval.
type MoistureResult struct {
	Path    string
	Summary Summary
}

// ComputeMoistureProxy writes a single-band float raster of the normalized
// backscatter index in [0, 1] derived from one radar polarization, windowed
// to bbox when supplied, and returns it with statistics over valid pixels.
// Zero-valued input pixels carry no signal; they become NaN and are excluded
// from the mean.
func ComputeMoistureProxy(vvPath, outPath string, bbox *geo.BoundingBox, cal Calibration, logger *slog.Logger) (MoistureResult, error) {
	Register()

	src, err := godal.Open(vvPath)
	if err != nil {
		return MoistureResult{}, fmt.Errorf("failed to open measurement raster: %w", err)
	}
	defer src.Close()

	win, err := sceneWindow(src, bbox, logger)
	if err != nil {
		return MoistureResult{}, err
	}

	dn, err := readWindow(src, win, win.w, win.h)
	if err != nil {
		return MoistureResult{}, fmt.Errorf("measurement band: %w", err)
	}

	index := moisturePixels(dn, cal)

	if err := writeGTiff(outPath, index, win.w, win.h, win.gt, src.SpatialRef()); err != nil {
		return MoistureResult{}, err
	}

	return MoistureResult{Path: outPath, Summary: summarize(index)}, nil
}
