package silam

import "strings"

// Base URLs of the SILAM THREDDS point services, in the order they are
// probed during setup.
const (
	BaseURLV591 = "https://thredds.silam.fmi.fi/thredds/ncss/grid/silam_regional_pollen_v5_9_1/silam_regional_pollen_v5_9_1_best.ncd"
	BaseURLV60  = "https://thredds.silam.fmi.fi/thredds/ncss/grid/silam_europe_pollen_v6_0/silam_europe_pollen_v6_0_best.ncd"
)

// BaseURLs is the probe order.
var BaseURLs = []string{BaseURLV591, BaseURLV60}

// Version identifies a SILAM pollen product.
type Version string

const (
	V591    Version = "v5_9_1"
	V60     Version = "v6_0"
	Unknown Version = "unknown"
)

// Label is the human readable product name.
func (v Version) Label() string {
	switch v {
	case V591:
		return "SILAM Regional (v5.9.1)"
	case V60:
		return "SILAM Europe (v6.0)"
	default:
		return "Unknown"
	}
}

// VersionFromURL infers the product version from a base URL.
func VersionFromURL(baseURL string) Version {
	switch {
	case strings.Contains(baseURL, "silam_europe_pollen"):
		return V60
	case strings.Contains(baseURL, "silam_regional_pollen"):
		return V591
	default:
		return Unknown
	}
}

// URLForVersion returns the base URL of v, or "unknown" when v is not
// a known product.
func URLForVersion(v Version) string {
	switch v {
	case V591:
		return BaseURLV591
	case V60:
		return BaseURLV60
	default:
		return string(Unknown)
	}
}
