package raster

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/geo"
)

var registerOnce sync.Once

// Register initializes the GDAL drivers. Safe to call more than once.
func Register() {
	registerOnce.Do(godal.RegisterAll)
}

// window is a pixel-space crop of a dataset.
type window struct {
	x0, y0 int
	w, h   int
	gt     [6]float64
}

// sceneWindow resolves the region to read: the bbox reprojected into the
// raster CRS and mapped to pixels, or the full scene when no box is given.
// A box that cannot be projected or does not intersect the scene degrades to
// a full-scene read rather than failing the computation.
func sceneWindow(ds *godal.Dataset, bbox *geo.BoundingBox, logger *slog.Logger) (window, error) {
	st := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return window{}, fmt.Errorf("failed to read geotransform: %w", err)
	}

	full := window{x0: 0, y0: 0, w: st.SizeX, h: st.SizeY, gt: gt}
	if bbox == nil {
		return full, nil
	}

	left, bottom, right, top, err := projectBounds(ds, *bbox)
	if err != nil {
		logger.Warn("failed to project bbox into raster CRS, reading full scene",
			slog.String("error", err.Error()),
		)
		return full, nil
	}

	x0, y0, w, h, ok := pixelWindow(gt, st.SizeX, st.SizeY, left, bottom, right, top)
	if !ok {
		logger.Warn("bbox does not intersect scene, reading full scene")
		return full, nil
	}
	return window{x0: x0, y0: y0, w: w, h: h, gt: windowGeoTransform(gt, x0, y0)}, nil
}

// projectBounds transforms WGS84 box corners into the dataset CRS. Rasters
// already in EPSG:4326 pass through unchanged.
func projectBounds(ds *godal.Dataset, bbox geo.BoundingBox) (left, bottom, right, top float64, err error) {
	srcSR := ds.SpatialRef()
	if srcSR == nil || srcSR.EPSGTreatsAsLatLong() {
		return bbox.MinLon, bbox.MinLat, bbox.MaxLon, bbox.MaxLat, nil
	}

	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("failed to create WGS84 reference: %w", err)
	}
	defer wgs84.Close()

	if srcSR.IsSame(wgs84) {
		return bbox.MinLon, bbox.MinLat, bbox.MaxLon, bbox.MaxLat, nil
	}

	tr, err := godal.NewTransform(wgs84, srcSR)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("failed to create coordinate transform: %w", err)
	}
	defer tr.Close()

	xs := []float64{bbox.MinLon, bbox.MaxLon}
	ys := []float64{bbox.MinLat, bbox.MaxLat}
	if err := tr.TransformEx(xs, ys, nil, nil); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("failed to transform bbox corners: %w", err)
	}
	return xs[0], ys[0], xs[1], ys[1], nil
}

// readWindow reads win from the band into a float64 buffer of bufW x bufH.
// When the buffer shape differs from the window (grid misalignment between
// bands), GDAL resamples with bilinear interpolation.
func readWindow(ds *godal.Dataset, win window, bufW, bufH int) ([]float64, error) {
	band := ds.Bands()[0]
	buf := make([]float64, bufW*bufH)

	opts := []godal.BandIOOption{godal.Window(win.w, win.h)}
	if win.w != bufW || win.h != bufH {
		opts = append(opts, godal.Resampling(godal.Bilinear))
	}
	if err := band.Read(win.x0, win.y0, buf, bufW, bufH, opts...); err != nil {
		return nil, fmt.Errorf("failed to read raster window: %w", err)
	}
	return buf, nil
}

// writeGTiff persists a single-band float32 raster, LZW-compressed, carrying
// the window's georeferencing.
func writeGTiff(path string, data []float64, w, h int, gt [6]float64, srcSR *godal.SpatialRef) error {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v)
	}

	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, w, h,
		godal.CreationOption("COMPRESS=LZW"))
	if err != nil {
		return fmt.Errorf("failed to create output raster: %w", err)
	}

	if err := ds.SetGeoTransform(gt); err != nil {
		ds.Close()
		return fmt.Errorf("failed to set geotransform: %w", err)
	}
	if srcSR != nil {
		if err := ds.SetSpatialRef(srcSR); err != nil {
			ds.Close()
			return fmt.Errorf("failed to set spatial reference: %w", err)
		}
	}
	if err := ds.Bands()[0].Write(0, 0, out, w, h); err != nil {
		ds.Close()
		return fmt.Errorf("failed to write output raster: %w", err)
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("failed to finalize output raster: %w", err)
	}
	return nil
}
