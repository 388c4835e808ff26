package catalog

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

// Platform selects which Copernicus mission a query targets.
type Platform string

const (
	// PlatformOptical is the Sentinel-2 multispectral mission (NDVI source).
	PlatformOptical Platform = "SENTINEL-2"
	// PlatformRadar is the Sentinel-1 SAR mission (soil-moisture proxy source).
	PlatformRadar Platform = "SENTINEL-1"
)

// ProductRecord is one catalog entry mapped into a uniform shape. It is
// ephemeral: records exist only within one discovery call and are never
// persisted.
type ProductRecord struct {
	ID         string    `json:"uuid"`
	Title      string    `json:"title"`
	IngestedAt time.Time `json:"ingestionDate"`
	// CloudCover is a 0-100 percentage, meaningful for optical scenes only.
	// Radar records carry 0. Optical scenes without a cloudCover attribute
	// default to 100 so cloud-free filtering never admits unscored products.
	CloudCover float64 `json:"cloudCover"`
}

// odataResponse is the raw CDSE OData product listing.
type odataResponse struct {
	Value []odataProduct `json:"value"`
}

type odataProduct struct {
	ID          string           `json:"Id"`
	Name        string           `json:"Name"`
	ContentDate odataContentDate `json:"ContentDate"`
	Attributes  []odataAttribute `json:"Attributes"`
}

type odataContentDate struct {
	Start time.Time `json:"Start"`
}

type odataAttribute struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// floatValue decodes the attribute value as a float. CDSE serializes numeric
// attributes either as JSON numbers or as strings depending on the type.
func (a odataAttribute) floatValue() (float64, bool) {
	var f float64
	if err := json.Unmarshal(a.Value, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(a.Value, &s); err == nil {
		if sf, err := strconv.ParseFloat(s, 64); err == nil {
			return sf, true
		}
	}
	return 0, false
}

// SelectBest picks the most usable product from a discovery result: the
// lowest cloud cover wins, ties broken by first-seen order. When no product
// carries a valid score the first record in catalog order (ingestion time
// descending) is returned. ok is false only for an empty input.
func SelectBest(products []ProductRecord) (ProductRecord, bool) {
	if len(products) == 0 {
		return ProductRecord{}, false
	}
	best := products[0]
	for _, p := range products[1:] {
		if p.CloudCover < best.CloudCover {
			best = p
		}
	}
	return best, true
}

// SortByIngestion orders records by acquisition recency.
func SortByIngestion(products []ProductRecord, descending bool) []ProductRecord {
	out := make([]ProductRecord, len(products))
	copy(out, products)
	sort.SliceStable(out, func(i, j int) bool {
		if descending {
			return out[i].IngestedAt.After(out[j].IngestedAt)
		}
		return out[i].IngestedAt.Before(out[j].IngestedAt)
	})
	return out
}
