// Package form describes the input forms shown by setup and options
// flows and validates submitted values against them.
package form

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

type Kind string

const (
	KindText     Kind = "text"
	KindNumber   Kind = "number"
	KindBoolean  Kind = "boolean"
	KindSelect   Kind = "select"
	KindLocation Kind = "location"
)

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Selector describes how a field is rendered and what it accepts.
type Selector struct {
	Kind           Kind     `json:"kind"`
	Options        []Option `json:"options,omitempty"`
	Multiple       bool     `json:"multiple,omitempty"`
	Mode           string   `json:"mode,omitempty"`
	TranslationKey string   `json:"translation_key,omitempty"`

	// Radius enables the radius input of a location selector.
	Radius bool `json:"radius,omitempty"`

	// Integer truncates numbers toward zero.
	Integer bool     `json:"integer,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`

	// AllowEmpty accepts null or "" for a number and leaves it unset.
	AllowEmpty bool `json:"-"`
}

func (s Selector) hasOption(v string) bool {
	for _, o := range s.Options {
		if o.Value == v {
			return true
		}
	}
	return false
}

type Field struct {
	Name     string   `json:"name"`
	Required bool     `json:"required"`
	Default  any      `json:"default,omitempty"`
	Selector Selector `json:"selector"`
}

// Form is a single step of a flow.
type Form struct {
	StepID                  string            `json:"step_id"`
	Fields                  []Field           `json:"data_schema"`
	Errors                  map[string]string `json:"errors,omitempty"`
	DescriptionPlaceholders map[string]string `json:"description_placeholders,omitempty"`
}

// Field returns the field name.
func (f *Form) Field(name string) (Field, bool) {
	for _, fd := range f.Fields {
		if fd.Name == name {
			return fd, true
		}
	}
	return Field{}, false
}

// Location is the value of a location selector.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius,omitempty"`
}

// Max returns a pointer to v for Selector.Max.
func Max(v float64) *float64 {
	return &v
}

// Min returns a pointer to v for Selector.Min.
func Min(v float64) *float64 {
	return &v
}

// ValidationError holds per-field error keys.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "invalid input (" + strings.Join(parts, ", ") + ")"
}

// Error keys reported in ValidationError.Fields.
const (
	ErrRequired        = "required"
	ErrInvalidNumber   = "invalid_number"
	ErrBelowMinimum    = "below_minimum"
	ErrAboveMaximum    = "above_maximum"
	ErrInvalidBoolean  = "invalid_boolean"
	ErrInvalidText     = "invalid_text"
	ErrInvalidOption   = "invalid_option"
	ErrInvalidLocation = "invalid_location"
)

// keyUnset marks an accepted empty value.
const keyUnset = "unset"

// Validate applies defaults and coerces input against the form fields.
// Keys that are not fields are ignored. The returned Values hold only
// fields that ended up with a value.
func (f *Form) Validate(input map[string]any) (Values, error) {
	values := Values{}
	fieldErrs := map[string]string{}

	for _, fd := range f.Fields {
		raw, present := input[fd.Name]
		if !present {
			if fd.Default != nil {
				raw, present = fd.Default, true
			} else if fd.Required {
				fieldErrs[fd.Name] = ErrRequired
				continue
			} else {
				continue
			}
		}

		v, key := coerce(fd.Selector, raw)
		switch {
		case key == "":
			values[fd.Name] = v
		case key == keyUnset:
		default:
			fieldErrs[fd.Name] = key
		}
	}

	if len(fieldErrs) > 0 {
		return nil, &ValidationError{Fields: fieldErrs}
	}

	return values, nil
}

// coerce returns the normalized value, or an error key.
func coerce(s Selector, raw any) (any, string) {
	switch s.Kind {
	case KindText:
		switch v := raw.(type) {
		case string:
			return strings.TrimSpace(v), ""
		case nil:
			return "", ""
		default:
			return nil, ErrInvalidText
		}

	case KindNumber:
		if raw == nil || raw == "" {
			if s.AllowEmpty {
				return nil, keyUnset
			}
			return nil, ErrInvalidNumber
		}
		n, ok := toFloat(raw, s.Integer)
		if !ok {
			return nil, ErrInvalidNumber
		}
		if s.Integer && (n > maxExactInt || n < -maxExactInt) {
			return nil, ErrInvalidNumber
		}
		if s.Min != nil && n < *s.Min {
			return nil, ErrBelowMinimum
		}
		if s.Max != nil && n > *s.Max {
			return nil, ErrAboveMaximum
		}
		if s.Integer {
			return int(n), ""
		}
		return n, ""

	case KindBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, ErrInvalidBoolean
		}
		return b, ""

	case KindSelect:
		if s.Multiple {
			items, ok := toStrings(raw)
			if !ok {
				return nil, ErrInvalidOption
			}
			for _, item := range items {
				if !s.hasOption(item) {
					return nil, ErrInvalidOption
				}
			}
			return items, ""
		}
		v, ok := raw.(string)
		if !ok || !s.hasOption(v) {
			return nil, ErrInvalidOption
		}
		return v, ""

	case KindLocation:
		loc, ok := toLocation(raw)
		if !ok {
			return nil, ErrInvalidLocation
		}
		return loc, ""

	default:
		return raw, ""
	}
}

// maxExactInt is the largest integer a float64 holds exactly.
const maxExactInt = 1 << 53

func toFloat(raw any, integer bool) (float64, bool) {
	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case string:
		s := strings.TrimSpace(v)
		if integer {
			i, err := strconv.Atoi(s)
			if err != nil {
				return 0, false
			}
			return float64(i), true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}

	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	if integer {
		n = math.Trunc(n)
	}
	return n, true
}

func toStrings(raw any) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return append([]string{}, v...), true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case nil:
		return []string{}, true
	default:
		return nil, false
	}
}

func toLocation(raw any) (Location, bool) {
	switch v := raw.(type) {
	case Location:
		return v, true
	case map[string]any:
		lat, ok := toFloat(v["latitude"], false)
		if !ok {
			return Location{}, false
		}
		lon, ok := toFloat(v["longitude"], false)
		if !ok {
			return Location{}, false
		}
		loc := Location{Latitude: lat, Longitude: lon}
		if r, present := v["radius"]; present && r != nil {
			radius, ok := toFloat(r, false)
			if !ok {
				return Location{}, false
			}
			loc.Radius = radius
		}
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return Location{}, false
		}
		return loc, true
	default:
		return Location{}, false
	}
}

// Values are validated form values keyed by field name.
type Values map[string]any

// Has reports whether name has a value.
func (v Values) Has(name string) bool {
	_, ok := v[name]
	return ok
}

func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}

func (v Values) Float(name string) (float64, bool) {
	f, ok := v[name].(float64)
	return f, ok
}

func (v Values) Int(name string) (int, bool) {
	i, ok := v[name].(int)
	return i, ok
}

func (v Values) Bool(name string) bool {
	b, _ := v[name].(bool)
	return b
}

func (v Values) Strings(name string) []string {
	s, _ := v[name].([]string)
	return s
}

func (v Values) Location(name string) (Location, bool) {
	l, ok := v[name].(Location)
	return l, ok
}
