package raster

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Calibration holds the empirical constants mapping raw GRD digital numbers
// to the [0,1] moisture proxy. These came from tuning against one sensor and
// region; treat them as configuration, not physics.
type Calibration struct {
	Constant float64 // DN^2 divisor producing pseudo sigma0
	DryDb    float64 // backscatter floor mapped to 0 (dry soil)
	WetDb    float64 // backscatter ceiling mapped to 1 (wet soil / water)
}

// Summary holds statistics over the valid pixels of an index array.
type Summary struct {
	Mean  float64
	Min   float64
	Max   float64
	Valid int
}

// ndviPixels computes (NIR-RED)/(NIR+RED) per pixel, clipped to [-1, 1].
// Division by zero and invalid inputs yield NaN, never 0.
func ndviPixels(red, nir []float64) []float64 {
	out := make([]float64, len(red))
	for i := range red {
		sum := nir[i] + red[i]
		if sum == 0 || math.IsNaN(sum) {
			out[i] = math.NaN()
			continue
		}
		v := (nir[i] - red[i]) / sum
		out[i] = math.Max(-1, math.Min(1, v))
	}
	return out
}

// moisturePixels converts digital numbers to a [0,1] moisture proxy: DN to a
// decibel scale through the calibration constant, then a linear rescale of
// [DryDb, WetDb] onto [0,1]. Zero or negative DN carries no signal and
// becomes NaN.
func moisturePixels(dn []float64, cal Calibration) []float64 {
	out := make([]float64, len(dn))
	span := cal.WetDb - cal.DryDb
	for i, v := range dn {
		if v <= 0 || math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		sigma0 := (v * v) / cal.Constant
		db := 10 * math.Log10(sigma0+1e-10)
		idx := (db - cal.DryDb) / span
		out[i] = math.Max(0, math.Min(1, idx))
	}
	return out
}

// summarize computes mean/min/max over valid (non-NaN) pixels. An all-invalid
// array yields a zero Summary with Valid == 0; NaN never leaks into the
// persisted statistics.
func summarize(values []float64) Summary {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return Summary{}
	}

	mean, _ := stats.Mean(valid)
	min, _ := stats.Min(valid)
	max, _ := stats.Max(valid)
	return Summary{Mean: mean, Min: min, Max: max, Valid: len(valid)}
}

// pixelWindow maps a projected bounding box onto raster pixel coordinates
// using the dataset geotransform, clamped to the raster. ok is false when the
// box does not intersect the raster at all; callers then fall back to the
// full scene.
func pixelWindow(gt [6]float64, width, height int, left, bottom, right, top float64) (x0, y0, w, h int, ok bool) {
	if gt[1] == 0 || gt[5] == 0 {
		return 0, 0, 0, 0, false
	}

	colMin := (left - gt[0]) / gt[1]
	colMax := (right - gt[0]) / gt[1]
	// gt[5] is negative for north-up rasters: top maps to the smaller row.
	rowMin := (top - gt[3]) / gt[5]
	rowMax := (bottom - gt[3]) / gt[5]

	if colMax < colMin {
		colMin, colMax = colMax, colMin
	}
	if rowMax < rowMin {
		rowMin, rowMax = rowMax, rowMin
	}

	x0 = clampInt(int(math.Floor(colMin)), 0, width)
	y0 = clampInt(int(math.Floor(rowMin)), 0, height)
	x1 := clampInt(int(math.Ceil(colMax)), 0, width)
	y1 := clampInt(int(math.Ceil(rowMax)), 0, height)

	w = x1 - x0
	h = y1 - y0
	if w <= 0 || h <= 0 {
		return 0, 0, 0, 0, false
	}
	return x0, y0, w, h, true
}

// windowGeoTransform shifts a geotransform origin to the window's upper-left
// pixel so the cropped output stays georeferenced.
func windowGeoTransform(gt [6]float64, x0, y0 int) [6]float64 {
	out := gt
	out[0] = gt[0] + float64(x0)*gt[1] + float64(y0)*gt[2]
	out[3] = gt[3] + float64(x0)*gt[4] + float64(y0)*gt[5]
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
