package raster

import (
	"fmt"
	"log/slog"

	"github.com/airbusgeo/godal"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/geo"
)

// NDVIResult is the outcome of one vegetation-index computation.
type NDVIResult struct {
	Path    string
	Summary Summary
}

// ComputeNDVI writes a single-band float raster of (NIR-RED)/(NIR+RED)
// clipped to [-1, 1] and returns it with statistics over valid pixels.
// The computation is windowed to bbox when one is supplied, which bounds both
// compute cost and output size to the farm's extent rather than the full
// tile. Bands on different grids are aligned by resampling the NIR band onto
// the red band's grid with bilinear interpolation.
func ComputeNDVI(redPath, nirPath, outPath string, bbox *geo.BoundingBox, logger *slog.Logger) (NDVIResult, error) {
	Register()

	red, err := godal.Open(redPath)
	if err != nil {
		return NDVIResult{}, fmt.Errorf("failed to open red band: %w", err)
	}
	defer red.Close()

	nir, err := godal.Open(nirPath)
	if err != nil {
		return NDVIResult{}, fmt.Errorf("failed to open NIR band: %w", err)
	}
	defer nir.Close()

	win, err := sceneWindow(red, bbox, logger)
	if err != nil {
		return NDVIResult{}, err
	}

	redData, err := readWindow(red, win, win.w, win.h)
	if err != nil {
		return NDVIResult{}, fmt.Errorf("red band: %w", err)
	}

	nirWin, err := matchWindow(nir, red, win)
	if err != nil {
		return NDVIResult{}, err
	}
	nirData, err := readWindow(nir, nirWin, win.w, win.h)
	if err != nil {
		return NDVIResult{}, fmt.Errorf("NIR band: %w", err)
	}

	ndvi := ndviPixels(redData, nirData)

	if err := writeGTiff(outPath, ndvi, win.w, win.h, win.gt, red.SpatialRef()); err != nil {
		return NDVIResult{}, err
	}

	return NDVIResult{Path: outPath, Summary: summarize(ndvi)}, nil
}

// matchWindow maps the reference window onto another band of the same scene.
// Bands sharing the reference grid reuse the window as-is; a band at a
// different resolution gets its own pixel window covering the same ground
// extent, which readWindow then resamples onto the reference shape.
func matchWindow(ds, ref *godal.Dataset, win window) (window, error) {
	dstSt := ds.Structure()
	refSt := ref.Structure()
	if dstSt.SizeX == refSt.SizeX && dstSt.SizeY == refSt.SizeY {
		return window{x0: win.x0, y0: win.y0, w: win.w, h: win.h, gt: win.gt}, nil
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		return window{}, fmt.Errorf("failed to read geotransform: %w", err)
	}

	// Ground extent of the reference window in projected coordinates.
	left := win.gt[0]
	top := win.gt[3]
	right := left + float64(win.w)*win.gt[1]
	bottom := top + float64(win.h)*win.gt[5]

	x0, y0, w, h, ok := pixelWindow(gt, dstSt.SizeX, dstSt.SizeY, left, bottom, right, top)
	if !ok {
		return window{}, fmt.Errorf("band grids do not overlap")
	}
	return window{x0: x0, y0: y0, w: w, h: h, gt: windowGeoTransform(gt, x0, y0)}, nil
}
