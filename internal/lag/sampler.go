// Package lag pairs each feature of a History with its value lag months later.
package lag

import (
	"tworate/internal/model"
)

// Request selects what to sample. Countries defaults to every country of the
// history, in history order.
type Request struct {
	LagMonths int
	Features  []string
	Countries []string
}

// Sample emits one row per country and time t for which t+LagMonths is part
// of h. Rows are grouped by country in request order and ordered by t.
func Sample(h model.History, req Request) (model.LagSample, error) {
	if req.LagMonths <= 0 {
		return model.LagSample{}, model.NewConfigError("lag_months", "must be > 0, got %d", req.LagMonths)
	}
	if len(req.Features) == 0 {
		return model.LagSample{}, model.NewConfigError("features", "at least one feature is required")
	}
	for _, f := range req.Features {
		if !model.IsFeature(f) {
			return model.LagSample{}, model.NewConfigError("features", "feature %q is not present in history", f)
		}
	}
	if h.StepMonths <= 0 {
		return model.LagSample{}, model.NewConfigError("step_months", "history step must be > 0, got %d", h.StepMonths)
	}
	if req.LagMonths%h.StepMonths != 0 {
		return model.LagSample{}, model.NewConfigError("lag_months", "lag %d is not a multiple of the %d month history step", req.LagMonths, h.StepMonths)
	}

	countries := req.Countries
	if len(countries) == 0 {
		countries = h.Countries()
	}
	series := make([]model.CountrySeries, 0, len(countries))
	for _, c := range countries {
		s, ok := h.Find(c)
		if !ok {
			return model.LagSample{}, model.NewConfigError("countries", "country %q is not present in history", c)
		}
		series = append(series, s)
	}

	columns := make([]string, 0, 2*len(req.Features))
	for _, f := range req.Features {
		columns = append(columns, model.CurrentColumn(f), model.LaggedColumn(f, req.LagMonths))
	}

	shift := req.LagMonths / h.StepMonths
	out := model.LagSample{
		LagMonths: req.LagMonths,
		LagLabel:  model.LagLabel(req.LagMonths),
		Features:  append([]string(nil), req.Features...),
		Columns:   columns,
	}
	for _, s := range series {
		for t := 0; t+shift < len(s.States); t++ {
			now, later := s.States[t], s.States[t+shift]
			values := make([]float64, 0, len(columns))
			for _, f := range req.Features {
				v0, _ := now.Feature(f)
				v1, _ := later.Feature(f)
				values = append(values, v0, v1)
			}
			out.Rows = append(out.Rows, model.LagRow{Country: s.Country, Time: now.Time, Values: values})
		}
	}
	return out, nil
}
