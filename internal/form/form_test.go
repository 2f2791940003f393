package form

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testForm() *Form {
	return &Form{
		StepID: "user",
		Fields: []Field{
			{Name: "zone_id", Required: true, Default: "zone.home", Selector: Selector{
				Kind:    KindSelect,
				Options: []Option{{Value: "zone.home", Label: "Home"}, {Value: "zone.work", Label: "Work"}},
			}},
			{Name: "var", Default: []string{}, Selector: Selector{
				Kind:     KindSelect,
				Multiple: true,
				Options:  []Option{{Value: "birch_m22"}, {Value: "grass_m32"}},
			}},
			{Name: "update_interval", Required: true, Default: 60, Selector: Selector{
				Kind: KindNumber, Integer: true, Min: Min(30), Max: Max(525600),
			}},
			{Name: "altitude", Required: true, Default: 0.0, Selector: Selector{
				Kind: KindNumber, AllowEmpty: true,
			}},
			{Name: "zone_name", Selector: Selector{Kind: KindText}},
			{Name: "forecast", Default: false, Selector: Selector{Kind: KindBoolean}},
			{Name: "location", Required: true, Selector: Selector{Kind: KindLocation, Radius: true}},
		},
	}
}

// decode mimics a JSON request body.
func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestValidate_Defaults(t *testing.T) {
	values, err := testForm().Validate(decode(t, `{"location": {"latitude": 60.1, "longitude": 24.9}}`))
	require.NoError(t, err)

	assert.Equal(t, "zone.home", values.String("zone_id"))
	assert.Equal(t, []string{}, values.Strings("var"))
	n, ok := values.Int("update_interval")
	assert.True(t, ok)
	assert.Equal(t, 60, n)
	assert.False(t, values.Bool("forecast"))
	assert.False(t, values.Has("zone_name"))

	loc, ok := values.Location("location")
	require.True(t, ok)
	assert.Equal(t, Location{Latitude: 60.1, Longitude: 24.9}, loc)
}

func TestValidate_Coercion(t *testing.T) {
	values, err := testForm().Validate(decode(t, `{
		"zone_id": "zone.work",
		"var": ["grass_m32", "birch_m22"],
		"update_interval": "45",
		"altitude": "12.5",
		"zone_name": "  Office ",
		"forecast": true,
		"location": {"latitude": "60.2", "longitude": 24.8, "radius": 5000}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "zone.work", values.String("zone_id"))
	assert.Equal(t, []string{"grass_m32", "birch_m22"}, values.Strings("var"))
	n, _ := values.Int("update_interval")
	assert.Equal(t, 45, n)
	alt, ok := values.Float("altitude")
	assert.True(t, ok)
	assert.Equal(t, 12.5, alt)
	assert.Equal(t, "Office", values.String("zone_name"))
	assert.True(t, values.Bool("forecast"))
	loc, _ := values.Location("location")
	assert.Equal(t, Location{Latitude: 60.2, Longitude: 24.8, Radius: 5000}, loc)

	values, err = testForm().Validate(decode(t, `{"update_interval": 90.9, "location": {"latitude": 1, "longitude": 2}}`))
	require.NoError(t, err)
	n, _ = values.Int("update_interval")
	assert.Equal(t, 90, n)

	values, err = testForm().Validate(decode(t, `{"update_interval": 525600, "location": {"latitude": 1, "longitude": 2}}`))
	require.NoError(t, err)
	n, _ = values.Int("update_interval")
	assert.Equal(t, 525600, n)
}

func TestValidate_EmptyAltitude(t *testing.T) {
	values, err := testForm().Validate(decode(t, `{"altitude": "", "location": {"latitude": 1, "longitude": 2}}`))
	require.NoError(t, err)
	assert.False(t, values.Has("altitude"))

	values, err = testForm().Validate(decode(t, `{"altitude": null, "location": {"latitude": 1, "longitude": 2}}`))
	require.NoError(t, err)
	assert.False(t, values.Has("altitude"))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
		key   string
	}{
		{name: "missing location", input: `{}`, field: "location", key: ErrRequired},
		{name: "interval below minimum", input: `{"update_interval": 29}`, field: "update_interval", key: ErrBelowMinimum},
		{name: "interval not a number", input: `{"update_interval": "soon"}`, field: "update_interval", key: ErrInvalidNumber},
		{name: "interval above maximum", input: `{"update_interval": 525601}`, field: "update_interval", key: ErrAboveMaximum},
		{name: "interval far above maximum", input: `{"update_interval": 2e8}`, field: "update_interval", key: ErrAboveMaximum},
		{name: "interval overflows int", input: `{"update_interval": 1e300}`, field: "update_interval", key: ErrInvalidNumber},
		{name: "interval overflows int negative", input: `{"update_interval": -1e300}`, field: "update_interval", key: ErrInvalidNumber},
		{name: "interval string overflows int", input: `{"update_interval": "99999999999999999999"}`, field: "update_interval", key: ErrInvalidNumber},
		{name: "interval fractional string", input: `{"update_interval": "45.5"}`, field: "update_interval", key: ErrInvalidNumber},
		{name: "unknown zone", input: `{"zone_id": "zone.mars"}`, field: "zone_id", key: ErrInvalidOption},
		{name: "unknown variant", input: `{"var": ["pine"]}`, field: "var", key: ErrInvalidOption},
		{name: "variant not a list", input: `{"var": "birch_m22"}`, field: "var", key: ErrInvalidOption},
		{name: "forecast string", input: `{"forecast": "yes"}`, field: "forecast", key: ErrInvalidBoolean},
		{name: "zone name number", input: `{"zone_name": 3}`, field: "zone_name", key: ErrInvalidText},
		{name: "location out of range", input: `{"location": {"latitude": 95, "longitude": 0}}`, field: "location", key: ErrInvalidLocation},
		{name: "location missing longitude", input: `{"location": {"latitude": 5}}`, field: "location", key: ErrInvalidLocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testForm().Validate(decode(t, tt.input))
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "error = %v", err)
			assert.Equal(t, tt.key, vErr.Fields[tt.field])
		})
	}
}

func TestFormField(t *testing.T) {
	f := testForm()
	fd, ok := f.Field("update_interval")
	require.True(t, ok)
	assert.True(t, fd.Selector.Integer)

	_, ok = f.Field("nope")
	assert.False(t, ok)
}
