package model

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	FeatureShortRate = "short_rate"
	FeatureTermRate  = "term_rate"
)

// Features lists the state variables every History carries, in column order.
var Features = []string{FeatureShortRate, FeatureTermRate}

func IsFeature(name string) bool {
	for _, f := range Features {
		if f == name {
			return true
		}
	}
	return false
}

// RateState is one country's rates at a given month.
type RateState struct {
	Time      int     `json:"time"`
	ShortRate float64 `json:"short_rate"`
	TermRate  float64 `json:"term_rate"`
}

func (s RateState) Feature(name string) (float64, bool) {
	switch name {
	case FeatureShortRate:
		return s.ShortRate, true
	case FeatureTermRate:
		return s.TermRate, true
	default:
		return 0, false
	}
}

type CountrySeries struct {
	Country string      `json:"country"`
	States  []RateState `json:"states"`
}

// History holds the simulated states of every country, one series per
// country and one state per step starting at t=0. StepMonths is the spacing
// between consecutive states.
type History struct {
	VersionedRecord
	StepMonths int             `json:"step_months"`
	Series     []CountrySeries `json:"series"`
}

// Steps returns the number of states per country.
func (h History) Steps() int {
	if len(h.Series) == 0 {
		return 0
	}
	return len(h.Series[0].States)
}

func (h History) Countries() []string {
	out := make([]string, len(h.Series))
	for i, s := range h.Series {
		out[i] = s.Country
	}
	return out
}

func (h History) Find(country string) (CountrySeries, bool) {
	for _, s := range h.Series {
		if s.Country == country {
			return s, true
		}
	}
	return CountrySeries{}, false
}

// Features lists the feature names every state of h carries.
func (h History) Features() []string {
	return append([]string(nil), Features...)
}

// Values returns one feature of one country over time.
func (h History) Values(country, feature string) ([]float64, error) {
	series, ok := h.Find(country)
	if !ok {
		return nil, configErrorf("country", "unknown country %q", country)
	}
	if !IsFeature(feature) {
		return nil, configErrorf("feature", "unknown feature %q", feature)
	}
	out := make([]float64, len(series.States))
	for i, st := range series.States {
		out[i], _ = st.Feature(feature)
	}
	return out, nil
}

// Validate checks the rectangular shape: every series has the same length
// and times advance by StepMonths from zero.
func (h History) Validate() error {
	if h.StepMonths <= 0 {
		return configErrorf("step_months", "must be > 0, got %d", h.StepMonths)
	}
	steps := h.Steps()
	for _, s := range h.Series {
		if len(s.States) != steps {
			return configErrorf("series", "country %s has %d steps, want %d", s.Country, len(s.States), steps)
		}
		for i, st := range s.States {
			if st.Time != i*h.StepMonths {
				return configErrorf("series", "country %s step %d has time %d, want %d", s.Country, i, st.Time, i*h.StepMonths)
			}
		}
	}
	return nil
}

// LagLabel renders a lag as it appears in lag sample column names: whole
// years as "+5y", anything else in months as "+6m".
func LagLabel(months int) string {
	if months != 0 && months%12 == 0 {
		return fmt.Sprintf("+%dy", months/12)
	}
	return fmt.Sprintf("+%dm", months)
}

// ParseLagLabel is the inverse of LagLabel.
func ParseLagLabel(label string) (int, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(label), "+")
	if len(trimmed) < 2 {
		return 0, fmt.Errorf("invalid lag label %q", label)
	}
	n, err := strconv.Atoi(trimmed[:len(trimmed)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid lag label %q: %w", label, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid lag label %q: lag must be positive", label)
	}
	switch trimmed[len(trimmed)-1] {
	case 'y':
		return n * 12, nil
	case 'm':
		return n, nil
	default:
		return 0, fmt.Errorf("invalid lag label %q", label)
	}
}

// CurrentColumn and LaggedColumn name the two columns a feature contributes
// to a LagSample.
func CurrentColumn(feature string) string {
	return feature + "(t)"
}

func LaggedColumn(feature string, lagMonths int) string {
	return feature + "(t" + LagLabel(lagMonths) + ")"
}

// LagSample pairs each feature at t with the same feature at t+lag.
type LagSample struct {
	VersionedRecord
	LagMonths int      `json:"lag_months"`
	LagLabel  string   `json:"lag_label"`
	Features  []string `json:"features"`
	Columns   []string `json:"columns"`
	Rows      []LagRow `json:"rows"`
}

// LagRow holds the values of LagSample.Columns for one country and time.
type LagRow struct {
	Country string    `json:"country"`
	Time    int       `json:"time"`
	Values  []float64 `json:"values"`
}

func (s LagSample) ColumnIndex(name string) (int, bool) {
	for i, c := range s.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// CountRows returns the number of rows emitted for country.
func (s LagSample) CountRows(country string) int {
	n := 0
	for _, r := range s.Rows {
		if r.Country == country {
			n++
		}
	}
	return n
}

// Countries returns the sampled countries in row order.
func (s LagSample) Countries() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, r := range s.Rows {
		if _, ok := seen[r.Country]; ok {
			continue
		}
		seen[r.Country] = struct{}{}
		out = append(out, r.Country)
	}
	return out
}
