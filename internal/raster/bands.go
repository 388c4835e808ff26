// Package raster locates spectral/polarization bands inside unpacked products
// and computes per-pixel vegetation and moisture indices from them.
package raster

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// ErrBandNotFound is returned when a product directory does not contain a
// required band. Not retried: the product on disk will not change.
var ErrBandNotFound = errors.New("band not found in product")

// OpticalBands are the 10 m band rasters NDVI needs.
type OpticalBands struct {
	Red string // B04
	NIR string // B08
}

// FindOpticalBands scans an unpacked Sentinel-2 L2A product for the 10 m red
// and near-infrared JP2 files. Quality-mask subtrees (QI_DATA) are skipped;
// they contain mask files whose names collide with the band naming scheme.
func FindOpticalBands(productDir string) (OpticalBands, error) {
	var bands OpticalBands

	err := filepath.WalkDir(productDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "QI_DATA" {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".jp2") || strings.Contains(name, "TCI") {
			return nil
		}
		switch {
		case isBand(name, "B04"):
			bands.Red = path
		case isBand(name, "B08"):
			bands.NIR = path
		}
		return nil
	})
	if err != nil {
		return OpticalBands{}, fmt.Errorf("failed to scan product directory: %w", err)
	}

	if bands.Red == "" || bands.NIR == "" {
		return OpticalBands{}, fmt.Errorf("%w: B04/B08 missing under %s", ErrBandNotFound, productDir)
	}
	return bands, nil
}

// isBand matches a band id at 10 m resolution, tolerating both the
// "..._B04_10m.jp2" L2A naming and the bare "..._B04.jp2" form.
func isBand(name, band string) bool {
	if !strings.Contains(name, "_"+band) {
		return false
	}
	if strings.Contains(name, "_10m") || !strings.Contains(name, "m.jp2") {
		return true
	}
	return false
}

// FindRadarBand scans an unpacked Sentinel-1 GRD product for the measurement
// file of the requested polarization (e.g. "vv").
func FindRadarBand(productDir, polarization string) (string, error) {
	marker := "iw-grd-" + strings.ToLower(polarization)
	var found string

	err := filepath.WalkDir(productDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		if (strings.HasSuffix(name, ".tiff") || strings.HasSuffix(name, ".tif")) && strings.Contains(name, marker) {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan product directory: %w", err)
	}

	if found == "" {
		return "", fmt.Errorf("%w: %s measurement missing under %s", ErrBandNotFound, polarization, productDir)
	}
	return found, nil
}
