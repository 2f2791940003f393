package forecast

import (
	"math"
	"sort"
	"time"

	"github.com/cicconee/silam-pollen/internal/pollen"
	"github.com/cicconee/silam-pollen/internal/silam"
)

// Variables of the SILAM pollen products used besides the per-variant
// concentrations.
const (
	VarIndex       = "POLI"
	VarResponsible = "POLISRC"
	VarTemperature = "temp_2m"
)

// kelvinOffset converts temp_2m to Celsius.
const kelvinOffset = 273.15

// Day halves of the twice-daily forecast, in UTC hours.
const (
	dayStartHour = 6
	dayEndHour   = 18
)

// Item is a single forecast entry, hourly or twice daily.
type Item struct {
	Datetime          time.Time          `json:"datetime"`
	Condition         string             `json:"condition,omitempty"`
	PollenIndex       *int               `json:"pollen_index,omitempty"`
	NativeTemperature *float64           `json:"native_temperature,omitempty"`
	IsDaytime         *bool              `json:"is_daytime,omitempty"`
	Responsible       string             `json:"responsible_elevated,omitempty"`
	Concentrations    map[string]float64 `json:"concentrations,omitempty"`
}

// MergedData is what a coordinator hands to the display entity on each
// update.
type MergedData struct {
	Now        *silam.Sample `json:"now,omitempty"`
	Hourly     []Item        `json:"hourly_forecast"`
	TwiceDaily []Item        `json:"twice_daily_forecast"`
}

// Vars returns the variables requested for variants.
func Vars(variants []pollen.Variant) []string {
	vars := []string{VarIndex, VarResponsible, VarTemperature}
	for _, v := range variants {
		vars = append(vars, v.APIVar())
	}
	return vars
}

// Merge shapes samples into MergedData as of now. Samples must be
// ordered by time. It returns nil when there are no samples.
func Merge(samples []silam.Sample, variants []pollen.Variant, now time.Time) *MergedData {
	if len(samples) == 0 {
		return nil
	}

	current := 0
	for i, s := range samples {
		if s.Time.After(now) {
			break
		}
		current = i
	}

	present := samples[current]
	merged := &MergedData{
		Now:        &present,
		Hourly:     []Item{},
		TwiceDaily: []Item{},
	}

	upcoming := samples[current:]
	for i := range upcoming {
		merged.Hourly = append(merged.Hourly, hourlyItem(&upcoming[i], variants))
	}
	merged.TwiceDaily = twiceDaily(merged.Hourly)

	return merged
}

func hourlyItem(s *silam.Sample, variants []pollen.Variant) Item {
	item := Item{Datetime: s.Time}

	if f, ok := s.Float(VarIndex); ok {
		index := int(f)
		item.PollenIndex = &index
		if level, ok := pollen.IndexLevel(index); ok {
			item.Condition = level
		}
	}

	if f, ok := s.Float(VarResponsible); ok {
		item.Responsible = pollen.Responsible(int(f))
	}

	if f, ok := s.Float(VarTemperature); ok {
		c := celsius(f, s.Data[VarTemperature].Units)
		item.NativeTemperature = &c
	}

	for _, v := range variants {
		if f, ok := s.Float(v.APIVar()); ok {
			if item.Concentrations == nil {
				item.Concentrations = map[string]float64{}
			}
			item.Concentrations[v.Name()] = f
		}
	}

	return item
}

// celsius converts a temperature in units to Celsius rounded to one
// decimal. Values without Kelvin units are taken as Celsius already.
func celsius(v float64, units string) float64 {
	if units == "K" || units == "" || units == "Kelvin" {
		v -= kelvinOffset
	}
	return math.Round(v*10) / 10
}

// halfStart returns the start of the day or night half t belongs to.
func halfStart(t time.Time) (time.Time, bool) {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	switch {
	case t.Hour() < dayStartHour:
		return day.Add(-24*time.Hour + dayEndHour*time.Hour), false
	case t.Hour() < dayEndHour:
		return day.Add(dayStartHour * time.Hour), true
	default:
		return day.Add(dayEndHour * time.Hour), false
	}
}

// twiceDaily groups hourly items into day and night halves. A half
// reports the highest index and concentrations seen in it, and the
// highest temperature by day or the lowest by night.
func twiceDaily(hourly []Item) []Item {
	halves := map[time.Time]*Item{}
	for _, h := range hourly {
		start, daytime := halfStart(h.Datetime)

		half, ok := halves[start]
		if !ok {
			d := daytime
			half = &Item{Datetime: start, IsDaytime: &d}
			halves[start] = half
		}

		if h.PollenIndex != nil && (half.PollenIndex == nil || *h.PollenIndex > *half.PollenIndex) {
			index := *h.PollenIndex
			half.PollenIndex = &index
			half.Condition = h.Condition
			half.Responsible = h.Responsible
		}

		if h.NativeTemperature != nil {
			t := *h.NativeTemperature
			switch {
			case half.NativeTemperature == nil:
				half.NativeTemperature = &t
			case daytime && t > *half.NativeTemperature:
				half.NativeTemperature = &t
			case !daytime && t < *half.NativeTemperature:
				half.NativeTemperature = &t
			}
		}

		for name, c := range h.Concentrations {
			if half.Concentrations == nil {
				half.Concentrations = map[string]float64{}
			}
			if prev, ok := half.Concentrations[name]; !ok || c > prev {
				half.Concentrations[name] = c
			}
		}
	}

	out := make([]Item, 0, len(halves))
	for _, half := range halves {
		out = append(out, *half)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Datetime.Before(out[j].Datetime)
	})

	return out
}
