package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/geo"
)

// odataTime is the timestamp layout CDSE expects in ContentDate filters.
const odataTime = "2006-01-02T15:04:05.000Z"

// stringAttributeFilter renders the OData lambda that matches one string
// attribute on a product.
func stringAttributeFilter(name, value string) string {
	return fmt.Sprintf("Attributes/OData.CSC.StringAttribute/any(att:att/Name eq '%s' and att/Value eq '%s')", name, value)
}

// buildFilter assembles the spatial+temporal+type OData filter for one
// discovery call. Optical queries pin the L2A processing level; radar queries
// pin ground-range-detected products in interferometric wide-swath mode.
func buildFilter(bbox geo.BoundingBox, from, to time.Time, platform Platform) string {
	parts := []string{
		fmt.Sprintf("Collection/Name eq '%s'", platform),
		fmt.Sprintf("ContentDate/Start ge %s", from.UTC().Format(odataTime)),
		fmt.Sprintf("ContentDate/Start le %s", to.UTC().Format(odataTime)),
		fmt.Sprintf("OData.CSC.Intersects(area=%s)", bbox.ODataGeography()),
	}

	switch platform {
	case PlatformOptical:
		parts = append(parts, stringAttributeFilter("productType", "S2MSI2A"))
	case PlatformRadar:
		parts = append(parts,
			stringAttributeFilter("productType", "GRD"),
			stringAttributeFilter("operationalMode", "IW"),
		)
	}

	return strings.Join(parts, " and ")
}
