// Package geo provides the geographic primitives shared by the acquisition
// pipeline: WGS84 bounding boxes, polygon envelopes and OData spatial literals.
package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// ErrInvalidBBox marks malformed bounding-box input. Handlers map it to a
// client error; it is never retried.
var ErrInvalidBBox = errors.New("invalid bounding box")

// BoundingBox is an axis-aligned rectangle in WGS84 degrees.
type BoundingBox struct {
	MinLon float64 `json:"minLon"`
	MinLat float64 `json:"minLat"`
	MaxLon float64 `json:"maxLon"`
	MaxLat float64 `json:"maxLat"`
}

// FromSlice builds a BoundingBox from [minLon, minLat, maxLon, maxLat].
func FromSlice(coords []float64) (BoundingBox, error) {
	if len(coords) != 4 {
		return BoundingBox{}, fmt.Errorf("%w: want [minLon,minLat,maxLon,maxLat], got %d values", ErrInvalidBBox, len(coords))
	}
	b := BoundingBox{MinLon: coords[0], MinLat: coords[1], MaxLon: coords[2], MaxLat: coords[3]}
	if err := b.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return b, nil
}

// Validate checks axis ordering and coordinate ranges.
func (b BoundingBox) Validate() error {
	if b.MinLon > b.MaxLon || b.MinLat > b.MaxLat {
		return fmt.Errorf("%w: min must not exceed max on either axis", ErrInvalidBBox)
	}
	if b.MinLon < -180 || b.MaxLon > 180 || b.MinLat < -90 || b.MaxLat > 90 {
		return fmt.Errorf("%w: coordinates out of WGS84 range", ErrInvalidBBox)
	}
	return nil
}

// Slice returns the box as [minLon, minLat, maxLon, maxLat].
func (b BoundingBox) Slice() []float64 {
	return []float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat}
}

// Polygon returns the box as a closed orb ring, counter-clockwise starting at
// the lower-left corner.
func (b BoundingBox) Polygon() orb.Polygon {
	return orb.Polygon{orb.Ring{
		{b.MinLon, b.MinLat},
		{b.MinLon, b.MaxLat},
		{b.MaxLon, b.MaxLat},
		{b.MaxLon, b.MinLat},
		{b.MinLon, b.MinLat},
	}}
}

// ODataGeography renders the box as the OData geography literal the CDSE
// catalog expects in Intersects filters.
func (b BoundingBox) ODataGeography() string {
	return fmt.Sprintf("geography'SRID=4326;%s'", wkt.MarshalString(b.Polygon()))
}

// Vertex is one polygon corner of a farm boundary, as stored by the farm
// service (lat/lng pairs).
type Vertex struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

// Envelope derives the min/max bounding box of a farm polygon. It returns
// ErrInvalidBBox when the vertex list is empty; farms without geometry are
// skipped by the sync job.
func Envelope(vertices []Vertex) (BoundingBox, error) {
	if len(vertices) == 0 {
		return BoundingBox{}, fmt.Errorf("%w: no polygon vertices", ErrInvalidBBox)
	}
	b := BoundingBox{
		MinLon: vertices[0].Lng, MaxLon: vertices[0].Lng,
		MinLat: vertices[0].Lat, MaxLat: vertices[0].Lat,
	}
	for _, v := range vertices[1:] {
		if v.Lng < b.MinLon {
			b.MinLon = v.Lng
		}
		if v.Lng > b.MaxLon {
			b.MaxLon = v.Lng
		}
		if v.Lat < b.MinLat {
			b.MinLat = v.Lat
		}
		if v.Lat > b.MaxLat {
			b.MaxLat = v.Lat
		}
	}
	return b, b.Validate()
}
