package silam

import (
	"encoding/xml"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Value is a single variable reading of a Sample.
type Value struct {
	Value string `json:"value"`
	Units string `json:"units,omitempty"`
}

// Sample is the data of one time step at the requested point.
type Sample struct {
	Time time.Time        `json:"time"`
	Data map[string]Value `json:"data"`
}

// Float returns the named variable as a float64. It returns false if the
// variable is missing or is not a finite number.
func (s *Sample) Float(name string) (float64, bool) {
	v, ok := s.Data[name]
	if !ok {
		return 0, false
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(v.Value), 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}

	return f, true
}

// stationFeatureCollection is the NCSS point response for accept=xml.
type stationFeatureCollection struct {
	XMLName  xml.Name         `xml:"stationFeatureCollection"`
	Features []stationFeature `xml:"stationFeature"`
}

type stationFeature struct {
	Date string        `xml:"date,attr"`
	Data []featureData `xml:"data"`
}

type featureData struct {
	Name  string `xml:"name,attr"`
	Units string `xml:"units,attr"`
	Value string `xml:",chardata"`
}

// parseSamples decodes body into samples ordered by time.
func parseSamples(body []byte) ([]Sample, error) {
	var collection stationFeatureCollection
	if err := xml.Unmarshal(body, &collection); err != nil {
		return nil, fmt.Errorf("failed decoding station feature collection: %w", err)
	}

	samples := make([]Sample, 0, len(collection.Features))
	for _, f := range collection.Features {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(f.Date))
		if err != nil {
			return nil, fmt.Errorf("failed parsing station feature date %q: %w", f.Date, err)
		}

		data := make(map[string]Value, len(f.Data))
		for _, d := range f.Data {
			data[d.Name] = Value{
				Value: strings.TrimSpace(d.Value),
				Units: d.Units,
			}
		}

		samples = append(samples, Sample{Time: t.UTC(), Data: data})
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Time.Before(samples[j].Time)
	})

	return samples, nil
}
