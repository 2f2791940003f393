// Package pollen holds the pollen variants, index levels and source
// codes that the SILAM pollen products report.
package pollen

import (
	"math"
	"strconv"
	"strings"
)

// Variant is a pollen type selectable on an entry. The suffix is the
// SILAM model generation of the species emission scheme.
type Variant string

const (
	Alder   Variant = "alder_m22"
	Birch   Variant = "birch_m22"
	Grass   Variant = "grass_m32"
	Hazel   Variant = "hazel_m23"
	Mugwort Variant = "mugwort_m18"
	Olive   Variant = "olive_m28"
	Ragweed Variant = "ragweed_m18"
)

// Variants lists every Variant in the order the setup form shows them.
var Variants = []Variant{Alder, Birch, Grass, Hazel, Mugwort, Olive, Ragweed}

var variantNames = map[Variant]string{
	Alder:   "alder",
	Birch:   "birch",
	Grass:   "grass",
	Hazel:   "hazel",
	Mugwort: "mugwort",
	Olive:   "olive",
	Ragweed: "ragweed",
}

var variantVars = map[Variant]string{
	Alder:   "cnc_POLLEN_ALDER_m22",
	Birch:   "cnc_POLLEN_BIRCH_m22",
	Grass:   "cnc_POLLEN_GRASS_m32",
	Hazel:   "cnc_POLLEN_HAZEL_m23",
	Mugwort: "cnc_POLLEN_MUGWORT_m18",
	Olive:   "cnc_POLLEN_OLIVE_m28",
	Ragweed: "cnc_POLLEN_RAGWEED_m18",
}

// Name returns the English name of the pollen type.
func (v Variant) Name() string {
	return variantNames[v]
}

// APIVar returns the concentration variable of this Variant in the
// SILAM point service.
func (v Variant) APIVar() string {
	return variantVars[v]
}

// Valid reports whether v is a known Variant.
func (v Variant) Valid() bool {
	_, ok := variantVars[v]
	return ok
}

// Index levels of the POLI variable.
var indexLevels = map[int]string{
	1: "very_low",
	2: "low",
	3: "moderate",
	4: "high",
	5: "very_high",
}

// IndexLevel returns the condition name of a pollen index value and
// false when the value is outside 1..5.
func IndexLevel(index int) (string, bool) {
	s, ok := indexLevels[index]
	return s, ok
}

// Unknown is reported for values that have no mapping.
const Unknown = "unknown"

var responsible = map[int]string{
	-1: "missing",
	1:  "alder",
	2:  "birch",
	3:  "grass",
	4:  "olive",
	5:  "mugwort",
	6:  "ragweed",
	7:  "hazel",
}

// Responsible maps a POLISRC value to the name of the pollen type
// responsible for the elevated index.
func Responsible(code int) string {
	if s, ok := responsible[code]; ok {
		return s
	}
	return Unknown
}

// ParseCode parses a numeric value reported as text ("2", "2.0") and
// truncates it toward zero.
func ParseCode(s string) (int, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}
