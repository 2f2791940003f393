package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/cicconee/silam-pollen/internal/app"
	"github.com/cicconee/silam-pollen/internal/entry"
	"github.com/cicconee/silam-pollen/internal/form"
	"github.com/cicconee/silam-pollen/internal/pollen"
	"github.com/cicconee/silam-pollen/internal/silam"
)

const (
	StepInit = "init"

	kindOptions = "options"
)

// optionsFlow edits the options of one entry in a single step.
type optionsFlow struct {
	m       *Manager
	entryID string
	current *form.Form
}

// StartOptions begins an options flow for entryID. The regional product
// is only offered when it answers for the entry location.
func (m *Manager) StartOptions(ctx context.Context, entryID string) (Result, error) {
	e, err := m.Entries.Get(ctx, entryID)
	if errors.Is(err, entry.ErrNotFound) {
		return Result{}, app.NotFound(err, "Entry not found")
	}
	if err != nil {
		return Result{}, fmt.Errorf("getting entry (id=%s): %w", entryID, err)
	}

	f := &optionsFlow{m: m, entryID: entryID}
	f.current = f.initForm(ctx, e)

	res := formResult(f.current)
	res.FlowID = m.add(kindOptions, f)
	return res, nil
}

func (f *optionsFlow) regionalAvailable(ctx context.Context, e entry.Entry) bool {
	err := f.m.Prober.Probe(ctx, silam.BaseURLV591, e.Point())
	if err != nil {
		f.m.logger().Debug("regional product unavailable",
			"entry", e.Title,
			"url", silam.BaseURLV591,
			"error", err)
		return false
	}

	f.m.logger().Debug("regional product available", "entry", e.Title, "url", silam.BaseURLV591)
	return true
}

func (f *optionsFlow) initForm(ctx context.Context, e entry.Entry) *form.Form {
	defaultVersion := silam.VersionFromURL(e.Data.BaseURL)

	versions := []form.Option{{Value: string(silam.V60), Label: silam.V60.Label()}}
	if f.regionalAvailable(ctx, e) {
		versions = append(versions, form.Option{Value: string(silam.V591), Label: silam.V591.Label()})
	} else {
		defaultVersion = silam.V60
	}

	vars := e.Data.Var
	if e.Options.Var != nil {
		vars = *e.Options.Var
	}
	known := make([]string, 0, len(vars))
	for _, v := range vars {
		if pollen.Variant(v).Valid() {
			known = append(known, v)
		}
	}

	interval := e.Data.UpdateInterval
	if e.Options.UpdateInterval != nil {
		interval = *e.Options.UpdateInterval
	}
	if interval < entry.MinUpdateInterval {
		interval = entry.DefaultUpdateInterval
	}
	if interval > entry.MaxUpdateInterval {
		interval = entry.MaxUpdateInterval
	}

	version := string(defaultVersion)
	if e.Options.Version != nil {
		version = *e.Options.Version
	} else if e.Data.Version != "" {
		version = e.Data.Version
	}
	if !hasOption(versions, version) {
		version = string(silam.V60)
	}

	forecast := e.Data.Forecast
	if e.Options.Forecast != nil {
		forecast = *e.Options.Forecast
	}

	return &form.Form{
		StepID: StepInit,
		Fields: []form.Field{
			{Name: "var", Default: known, Selector: variantSelector()},
			{Name: "update_interval", Default: interval, Selector: updateIntervalSelector()},
			{Name: "version", Default: version, Selector: form.Selector{
				Kind:     form.KindSelect,
				Options:  versions,
				Multiple: false,
				Mode:     "dropdown",
			}},
			{Name: "forecast", Default: forecast, Selector: form.Selector{Kind: form.KindBoolean}},
		},
	}
}

// forecastModes copies forecast_hourly and forecast_daily from input
// into opts when they are booleans. They are not form fields; absent keys
// keep the stored options. A daily forecast implies the hourly one.
func forecastModes(opts entry.Options, input map[string]any) entry.Options {
	if hourly, ok := input["forecast_hourly"].(bool); ok {
		opts.ForecastHourly = &hourly
	}
	if daily, ok := input["forecast_daily"].(bool); ok {
		opts.ForecastDaily = &daily
		if daily {
			hourly := true
			opts.ForecastHourly = &hourly
		}
	}
	return opts
}

func hasOption(options []form.Option, v string) bool {
	for _, o := range options {
		if o.Value == v {
			return true
		}
	}
	return false
}

func (f *optionsFlow) submit(ctx context.Context, input map[string]any) (Result, error) {
	values, err := f.current.Validate(input)
	if err != nil {
		if errs := fieldErrors(err); errs != nil {
			shown := *f.current
			shown.Errors = errs
			return formResult(&shown), nil
		}
		return Result{}, err
	}

	e, err := f.m.Entries.Get(ctx, f.entryID)
	if errors.Is(err, entry.ErrNotFound) {
		return Result{Type: ResultAbort, Reason: "entry_removed"}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("getting entry (id=%s): %w", f.entryID, err)
	}

	vars := values.Strings("var")
	interval, _ := values.Int("update_interval")
	version := values.String("version")
	forecast := values.Bool("forecast")

	e.Options = e.Options.Merge(forecastModes(entry.Options{
		Var:            &vars,
		UpdateInterval: &interval,
		Version:        &version,
		Forecast:       &forecast,
	}, input))

	v := silam.Version(version)
	e.Data.Version = version
	e.Data.BaseURL = silam.URLForVersion(v)

	saved, err := f.m.Entries.Save(ctx, e)
	if errors.Is(err, entry.ErrNotFound) {
		return Result{Type: ResultAbort, Reason: "entry_removed"}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("saving entry (id=%s): %w", f.entryID, err)
	}

	if f.m.Reloader != nil {
		f.m.Reloader.Reload(ctx, saved.ID)
	}

	return Result{
		Type:  ResultCreateEntry,
		Title: "",
		Entry: &saved,
		Data:  saved.Options,
	}, nil
}
