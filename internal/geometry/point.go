package geometry

import (
	"fmt"
	"math"
	"strconv"
)

// Point is a coordinate stored as [lat, lon], the order the SILAM
// point service and the location selector both use.
type Point []float64

func NewPoint(lon, lat float64) Point {
	return Point{lat, lon}
}

func (p Point) X() float64 {
	return p[1]
}

func (p Point) Y() float64 {
	return p[0]
}

func (p Point) Lon() float64 {
	return p.X()
}

func (p Point) Lat() float64 {
	return p.Y()
}

// Valid reports whether p holds a latitude in [-90, 90] and a
// longitude in [-180, 180].
func (p Point) Valid() bool {
	if len(p) < 2 {
		return false
	}
	if math.IsNaN(p.Lat()) || math.IsNaN(p.Lon()) {
		return false
	}

	return p.Lat() >= -90 && p.Lat() <= 90 && p.Lon() >= -180 && p.Lon() <= 180
}

// Key returns the "{lat}_{lon}" identifier of this point. Coordinates
// are written with the fewest digits that represent them exactly, so
// two entries share a key only when their coordinates are equal.
func (p Point) Key() string {
	if len(p) < 2 {
		return ""
	}

	return FormatCoord(p.Lat()) + "_" + FormatCoord(p.Lon())
}

// FormatCoord formats a single coordinate the way Key and the SILAM
// query string expect it.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RoundedLon returns the longitude rounded to the 4th
// decimal place.
func (p Point) RoundedLon() float64 {
	return round(p.Lon(), 4)
}

// RoundedLat returns the latitude rounded to the 4th
// decimal place.
func (p Point) RoundedLat() float64 {
	return round(p.Lat(), 4)
}

func round(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

func (p Point) String() string {
	if len(p) < 2 {
		return ""
	}

	return fmt.Sprintf("(%f,%f)", p.Lat(), p.Lon())
}
