package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cicconee/silam-pollen/internal/entry"
	"github.com/cicconee/silam-pollen/internal/form"
	"github.com/cicconee/silam-pollen/internal/geometry"
	"github.com/cicconee/silam-pollen/internal/pollen"
	"github.com/cicconee/silam-pollen/internal/silam"
	"github.com/cicconee/silam-pollen/internal/zone"
)

const (
	StepUser         = "user"
	StepManualCoords = "manual_coords"

	// ErrorBase is the form error key not bound to a field.
	ErrorBase = "base"

	// AbortAlreadyConfigured is the abort reason for a duplicate location.
	AbortAlreadyConfigured = "already_configured"

	// DefaultRadius is the default radius of the location selector, in
	// metres.
	DefaultRadius = 5000.0

	kindConfig = "config"
)

var altitudePlaceholders = map[string]string{"altitude": "Altitude above sea level"}

// variantSelector is the pollen multi-select shared by both flows.
func variantSelector() form.Selector {
	options := make([]form.Option, 0, len(pollen.Variants))
	for _, v := range pollen.Variants {
		options = append(options, form.Option{Value: string(v), Label: v.Name()})
	}

	return form.Selector{
		Kind:           form.KindSelect,
		Options:        options,
		Multiple:       true,
		Mode:           "dropdown",
		TranslationKey: "config_pollen",
	}
}

func updateIntervalSelector() form.Selector {
	return form.Selector{
		Kind:    form.KindNumber,
		Integer: true,
		Min:     form.Min(entry.MinUpdateInterval),
		Max:     form.Max(entry.MaxUpdateInterval),
	}
}

// configFlow creates an entry in two steps. Step user picks the zone,
// pollen variants, update interval and forecast flag; step manual_coords
// confirms name, altitude and location and probes the SILAM service.
type configFlow struct {
	m    *Manager
	step string

	// Input of step user.
	base   form.Values
	zoneID string

	// The form currently shown.
	current *form.Form
}

// Start begins a config flow and returns the form of step user.
func (m *Manager) Start(ctx context.Context) (Result, error) {
	f := &configFlow{m: m, step: StepUser}

	userForm, err := f.userForm(ctx)
	if err != nil {
		return Result{}, err
	}
	f.current = userForm

	res := formResult(userForm)
	res.FlowID = m.add(kindConfig, f)
	return res, nil
}

func (f *configFlow) userForm(ctx context.Context) (*form.Form, error) {
	zones, err := f.m.Zones.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing zones: %w", err)
	}
	if len(zones) == 0 {
		zones = []zone.Zone{f.m.Home.Zone()}
	}

	options := make([]form.Option, 0, len(zones))
	defaultZone := zones[0].ID
	for _, z := range zones {
		name := z.Name
		if name == "" {
			name = z.ID
		}
		options = append(options, form.Option{Value: z.ID, Label: name})
		if z.ID == zone.HomeID {
			defaultZone = zone.HomeID
		}
	}

	return &form.Form{
		StepID: StepUser,
		Fields: []form.Field{
			{Name: "zone_id", Required: true, Default: defaultZone, Selector: form.Selector{
				Kind:     form.KindSelect,
				Options:  options,
				Multiple: false,
				Mode:     "dropdown",
			}},
			{Name: "var", Default: []string{}, Selector: variantSelector()},
			{Name: "update_interval", Required: true, Default: entry.DefaultUpdateInterval, Selector: updateIntervalSelector()},
			{Name: "forecast", Default: false, Selector: form.Selector{Kind: form.KindBoolean}},
		},
	}, nil
}

func (f *configFlow) submit(ctx context.Context, input map[string]any) (Result, error) {
	switch f.step {
	case StepUser:
		return f.submitUser(ctx, input)
	case StepManualCoords:
		return f.submitManualCoords(ctx, input)
	default:
		return Result{}, fmt.Errorf("config flow in unknown step %q", f.step)
	}
}

func (f *configFlow) submitUser(ctx context.Context, input map[string]any) (Result, error) {
	values, err := f.current.Validate(input)
	if err != nil {
		if errs := fieldErrors(err); errs != nil {
			shown := *f.current
			shown.Errors = errs
			return formResult(&shown), nil
		}
		return Result{}, err
	}

	f.base = values
	f.zoneID = values.String("zone_id")
	f.step = StepManualCoords

	coordsForm, err := f.manualCoordsForm(ctx)
	if err != nil {
		return Result{}, err
	}
	f.current = coordsForm

	return formResult(coordsForm), nil
}

// coordsDefaults are the prefilled values of step manual_coords.
type coordsDefaults struct {
	zoneName  string
	altitude  float64
	latitude  float64
	longitude float64
}

func (f *configFlow) defaults(ctx context.Context) (coordsDefaults, error) {
	home := f.m.Home
	d := coordsDefaults{
		zoneName:  zone.HomeName,
		altitude:  entry.DefaultAltitude,
		latitude:  home.Latitude,
		longitude: home.Longitude,
	}

	zoneID := f.zoneID
	if zoneID == "" {
		zoneID = zone.HomeID
	}

	z, ok, err := f.m.Zones.Get(ctx, zoneID)
	if err != nil {
		return coordsDefaults{}, fmt.Errorf("getting zone (id=%s): %w", zoneID, err)
	}
	if ok {
		d.latitude = z.Latitude
		d.longitude = z.Longitude
		if z.Name != "" {
			d.zoneName = z.Name
		}
	}

	if zoneID == zone.HomeID {
		d.altitude = home.Elevation
	}

	return d, nil
}

func coordsForm(zoneName string, altitude, lat, lon float64) *form.Form {
	return &form.Form{
		StepID: StepManualCoords,
		Fields: []form.Field{
			{Name: "zone_name", Default: zoneName, Selector: form.Selector{Kind: form.KindText}},
			{Name: "altitude", Required: true, Default: altitude, Selector: form.Selector{
				Kind:       form.KindNumber,
				AllowEmpty: true,
			}},
			{Name: "location", Required: true, Default: form.Location{
				Latitude:  lat,
				Longitude: lon,
				Radius:    DefaultRadius,
			}, Selector: form.Selector{Kind: form.KindLocation, Radius: true}},
		},
		DescriptionPlaceholders: altitudePlaceholders,
	}
}

func (f *configFlow) manualCoordsForm(ctx context.Context) (*form.Form, error) {
	d, err := f.defaults(ctx)
	if err != nil {
		return nil, err
	}

	return coordsForm(d.zoneName, d.altitude, d.latitude, d.longitude), nil
}

func (f *configFlow) submitManualCoords(ctx context.Context, input map[string]any) (Result, error) {
	values, err := f.current.Validate(input)
	if err != nil {
		if errs := fieldErrors(err); errs != nil {
			shown := *f.current
			shown.Errors = errs
			return formResult(&shown), nil
		}
		return Result{}, err
	}

	loc, _ := values.Location("location")
	point := geometry.NewPoint(loc.Longitude, loc.Latitude)

	altitude, ok := values.Float("altitude")
	if !ok {
		altitude = f.m.Home.Elevation
	}

	zoneName := strings.TrimSpace(values.String("zone_name"))
	if zoneName == "" {
		if fd, ok := f.current.Field("zone_name"); ok {
			zoneName, _ = fd.Default.(string)
		}
	}

	uniqueID := point.Key()
	exists, err := f.m.Entries.Exists(ctx, uniqueID)
	if err != nil {
		return Result{}, fmt.Errorf("checking unique id (uniqueID=%s): %w", uniqueID, err)
	}
	if exists {
		return Result{Type: ResultAbort, Reason: AbortAlreadyConfigured}, nil
	}

	baseURL, err := f.m.Prober.ProbeFirst(ctx, point)
	if err != nil {
		f.m.logger().Debug("setup probe failed", "unique_id", uniqueID, "error", err)

		shown := coordsForm(zoneName, altitude, loc.Latitude, loc.Longitude)
		shown.Errors = map[string]string{ErrorBase: silam.ErrorText(err)}
		f.current = shown
		return formResult(shown), nil
	}

	title := entry.Title(zoneName)
	e := entry.Entry{
		UniqueID: uniqueID,
		Title:    title,
		Data: entry.Data{
			ZoneID:            f.zoneID,
			ZoneName:          zoneName,
			Latitude:          loc.Latitude,
			Longitude:         loc.Longitude,
			Altitude:          altitude,
			Var:               f.base.Strings("var"),
			UpdateInterval:    entry.DefaultUpdateInterval,
			Forecast:          f.base.Bool("forecast"),
			BaseURL:           baseURL,
			ManualCoordinates: true,
			Title:             title,
		},
	}
	if n, ok := f.base.Int("update_interval"); ok {
		e.Data.UpdateInterval = n
	}

	created, err := f.m.Entries.Create(ctx, e)
	if errors.Is(err, entry.ErrAlreadyConfigured) {
		return Result{Type: ResultAbort, Reason: AbortAlreadyConfigured}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("creating entry: %w", err)
	}

	if f.m.Reloader != nil {
		f.m.Reloader.Reload(ctx, created.ID)
	}

	return Result{
		Type:  ResultCreateEntry,
		Title: created.Title,
		Entry: &created,
	}, nil
}
