package model

import (
	"fmt"
	"math"
	"strings"
)

// ShortTargetMode selects the long-run level the short rate reverts to.
type ShortTargetMode string

const (
	// ShortTargetTermSpread reverts the short rate toward the current term
	// rate minus the country's term premium.
	ShortTargetTermSpread ShortTargetMode = "term_spread"
	// ShortTargetFixed reverts the short rate toward CountryParams.ShortTarget.
	ShortTargetFixed ShortTargetMode = "fixed"
)

// CountryParams is the calibration of a single country.
type CountryParams struct {
	ID          string  `json:"id" yaml:"id"`
	Correlation float64 `json:"correlation" yaml:"correlation"`
	ShortVol    float64 `json:"short_vol" yaml:"short_vol"`
	TermVol     float64 `json:"term_vol" yaml:"term_vol"`
	ShortRev    float64 `json:"short_rev" yaml:"short_rev"`
	TermRev     float64 `json:"term_rev" yaml:"term_rev"`
	CapRev      float64 `json:"cap_rev" yaml:"cap_rev"`
	FloorRev    float64 `json:"floor_rev" yaml:"floor_rev"`
	TermTarget  float64 `json:"term_target" yaml:"term_target"`
	TermPremium float64 `json:"term_premium" yaml:"term_premium"`
	SoftCap     float64 `json:"soft_cap" yaml:"soft_cap"`
	SoftFloor   float64 `json:"soft_floor" yaml:"soft_floor"`
	ShortTarget float64 `json:"short_target,omitempty" yaml:"short_target,omitempty"`
	ShortRate0  float64 `json:"short_rate_0" yaml:"short_rate_0"`
	TermRate0   float64 `json:"term_rate_0" yaml:"term_rate_0"`
}

// ConfigSpec is the serialisable form of a ModelConfig.
type ConfigSpec struct {
	YearCount   int             `json:"year_count" yaml:"year_count"`
	Seed        int64           `json:"seed" yaml:"seed"`
	ShortTarget ShortTargetMode `json:"short_target,omitempty" yaml:"short_target,omitempty"`
	Countries   []CountryParams `json:"countries" yaml:"countries"`
}

// ModelConfig is a validated, immutable model configuration. The zero value
// is not usable; construct it with NewModelConfig or ConfigBuilder.
type ModelConfig struct {
	yearCount   int
	seed        int64
	shortTarget ShortTargetMode
	countries   []CountryParams
}

func NewModelConfig(spec ConfigSpec) (ModelConfig, error) {
	if err := spec.Validate(); err != nil {
		return ModelConfig{}, err
	}
	mode := spec.ShortTarget
	if mode == "" {
		mode = ShortTargetTermSpread
	}
	return ModelConfig{
		yearCount:   spec.YearCount,
		seed:        spec.Seed,
		shortTarget: mode,
		countries:   append([]CountryParams(nil), spec.Countries...),
	}, nil
}

func (c ModelConfig) YearCount() int {
	return c.yearCount
}

// MonthCount is the number of monthly evolution steps.
func (c ModelConfig) MonthCount() int {
	return c.yearCount * 12
}

func (c ModelConfig) Seed() int64 {
	return c.seed
}

func (c ModelConfig) ShortTarget() ShortTargetMode {
	return c.shortTarget
}

func (c ModelConfig) CountryCount() int {
	return len(c.countries)
}

func (c ModelConfig) Country(i int) CountryParams {
	return c.countries[i]
}

func (c ModelConfig) Countries() []CountryParams {
	return append([]CountryParams(nil), c.countries...)
}

func (c ModelConfig) IsZero() bool {
	return len(c.countries) == 0
}

// WithSeed returns a copy of c that simulates with a different seed.
func (c ModelConfig) WithSeed(seed int64) ModelConfig {
	c.seed = seed
	c.countries = c.Countries()
	return c
}

func (c ModelConfig) CountryIDs() []string {
	ids := make([]string, len(c.countries))
	for i, p := range c.countries {
		ids[i] = p.ID
	}
	return ids
}

// Spec returns a copy suitable for persistence; NewModelConfig(c.Spec())
// reproduces c.
func (c ModelConfig) Spec() ConfigSpec {
	return ConfigSpec{
		YearCount:   c.yearCount,
		Seed:        c.seed,
		ShortTarget: c.shortTarget,
		Countries:   c.Countries(),
	}
}

func (s ConfigSpec) Validate() error {
	if s.YearCount <= 0 {
		return configErrorf("year_count", "must be > 0, got %d", s.YearCount)
	}
	switch s.ShortTarget {
	case "", ShortTargetTermSpread, ShortTargetFixed:
	default:
		return configErrorf("short_target", "unsupported mode %q", s.ShortTarget)
	}
	if len(s.Countries) == 0 {
		return configErrorf("countries", "at least one country is required")
	}
	seen := make(map[string]struct{}, len(s.Countries))
	for i, p := range s.Countries {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return configErrorf(fmt.Sprintf("countries[%d].id", i), "is required")
		}
		if _, dup := seen[id]; dup {
			return configErrorf(fmt.Sprintf("countries[%d].id", i), "duplicate country %q", id)
		}
		seen[id] = struct{}{}
		if err := p.validate(i); err != nil {
			return err
		}
	}
	return nil
}

func (p CountryParams) validate(index int) error {
	field := func(name string) string {
		return fmt.Sprintf("countries[%d].%s", index, name)
	}
	values := []struct {
		name  string
		value float64
	}{
		{"correlation", p.Correlation},
		{"short_vol", p.ShortVol},
		{"term_vol", p.TermVol},
		{"short_rev", p.ShortRev},
		{"term_rev", p.TermRev},
		{"cap_rev", p.CapRev},
		{"floor_rev", p.FloorRev},
		{"term_target", p.TermTarget},
		{"term_premium", p.TermPremium},
		{"soft_cap", p.SoftCap},
		{"soft_floor", p.SoftFloor},
		{"short_target", p.ShortTarget},
		{"short_rate_0", p.ShortRate0},
		{"term_rate_0", p.TermRate0},
	}
	for _, v := range values {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return configErrorf(field(v.name), "must be finite")
		}
	}
	if p.Correlation < -1 || p.Correlation > 1 {
		return configErrorf(field("correlation"), "must be within [-1, 1], got %v", p.Correlation)
	}
	for _, v := range values[1:3] {
		if v.value < 0 {
			return configErrorf(field(v.name), "volatility must be >= 0, got %v", v.value)
		}
	}
	for _, v := range values[3:7] {
		if v.value < 0 {
			return configErrorf(field(v.name), "reversion speed must be >= 0, got %v", v.value)
		}
	}
	if p.SoftFloor > p.SoftCap {
		return configErrorf(field("soft_floor"), "must not exceed soft_cap (%v > %v)", p.SoftFloor, p.SoftCap)
	}
	return nil
}

// ConfigBuilder accumulates a ConfigSpec and validates it once in Build.
type ConfigBuilder struct {
	spec ConfigSpec
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{spec: ConfigSpec{ShortTarget: ShortTargetTermSpread}}
}

func (b *ConfigBuilder) YearCount(years int) *ConfigBuilder {
	b.spec.YearCount = years
	return b
}

func (b *ConfigBuilder) Seed(seed int64) *ConfigBuilder {
	b.spec.Seed = seed
	return b
}

func (b *ConfigBuilder) ShortTarget(mode ShortTargetMode) *ConfigBuilder {
	b.spec.ShortTarget = mode
	return b
}

func (b *ConfigBuilder) AddCountry(p CountryParams) *ConfigBuilder {
	b.spec.Countries = append(b.spec.Countries, p)
	return b
}

// Uniform adds count countries named C0001, C0002, ... sharing one calibration.
func (b *ConfigBuilder) Uniform(count int, p CountryParams) *ConfigBuilder {
	for i := 0; i < count; i++ {
		p.ID = CountryID(i)
		b.spec.Countries = append(b.spec.Countries, p)
	}
	return b
}

func (b *ConfigBuilder) Build() (ModelConfig, error) {
	return NewModelConfig(b.spec)
}

// CountryID is the default identifier of the country at index i.
func CountryID(i int) string {
	return fmt.Sprintf("C%04d", i+1)
}

// ParallelParams is the per-country parallel-array layout. Every array must
// have one entry per country.
type ParallelParams struct {
	YearCount        int             `json:"year_count" yaml:"year_count"`
	Seed             int64           `json:"seed" yaml:"seed"`
	ShortTarget      ShortTargetMode `json:"short_target,omitempty" yaml:"short_target,omitempty"`
	Countries        []string        `json:"countries" yaml:"countries"`
	Correlation      []float64       `json:"correlation" yaml:"correlation"`
	ShortVol         []float64       `json:"short_vol" yaml:"short_vol"`
	TermVol          []float64       `json:"term_vol" yaml:"term_vol"`
	ShortRev         []float64       `json:"short_rev" yaml:"short_rev"`
	TermRev          []float64       `json:"term_rev" yaml:"term_rev"`
	CapRev           []float64       `json:"cap_rev" yaml:"cap_rev"`
	FloorRev         []float64       `json:"floor_rev" yaml:"floor_rev"`
	TermTarget       []float64       `json:"term_target" yaml:"term_target"`
	TermPremium      []float64       `json:"term_premium" yaml:"term_premium"`
	SoftCap          []float64       `json:"soft_cap" yaml:"soft_cap"`
	SoftFloor        []float64       `json:"soft_floor" yaml:"soft_floor"`
	ShortTargetLevel []float64       `json:"short_target_level,omitempty" yaml:"short_target_level,omitempty"`
	ShortRate0       []float64       `json:"short_rate_0" yaml:"short_rate_0"`
	TermRate0        []float64       `json:"term_rate_0" yaml:"term_rate_0"`
}

// Spec converts the arrays into one CountryParams per country.
func (pp ParallelParams) Spec() (ConfigSpec, error) {
	n := len(pp.Countries)
	arrays := []struct {
		name     string
		values   []float64
		optional bool
	}{
		{"correlation", pp.Correlation, false},
		{"short_vol", pp.ShortVol, false},
		{"term_vol", pp.TermVol, false},
		{"short_rev", pp.ShortRev, false},
		{"term_rev", pp.TermRev, false},
		{"cap_rev", pp.CapRev, false},
		{"floor_rev", pp.FloorRev, false},
		{"term_target", pp.TermTarget, false},
		{"term_premium", pp.TermPremium, false},
		{"soft_cap", pp.SoftCap, false},
		{"soft_floor", pp.SoftFloor, false},
		{"short_target_level", pp.ShortTargetLevel, true},
		{"short_rate_0", pp.ShortRate0, false},
		{"term_rate_0", pp.TermRate0, false},
	}
	for _, a := range arrays {
		if a.optional && len(a.values) == 0 {
			continue
		}
		if len(a.values) != n {
			return ConfigSpec{}, configErrorf(a.name, "length %d does not match country count %d", len(a.values), n)
		}
	}

	countries := make([]CountryParams, n)
	for i := range countries {
		countries[i] = CountryParams{
			ID:          pp.Countries[i],
			Correlation: pp.Correlation[i],
			ShortVol:    pp.ShortVol[i],
			TermVol:     pp.TermVol[i],
			ShortRev:    pp.ShortRev[i],
			TermRev:     pp.TermRev[i],
			CapRev:      pp.CapRev[i],
			FloorRev:    pp.FloorRev[i],
			TermTarget:  pp.TermTarget[i],
			TermPremium: pp.TermPremium[i],
			SoftCap:     pp.SoftCap[i],
			SoftFloor:   pp.SoftFloor[i],
			ShortRate0:  pp.ShortRate0[i],
			TermRate0:   pp.TermRate0[i],
		}
		if len(pp.ShortTargetLevel) > 0 {
			countries[i].ShortTarget = pp.ShortTargetLevel[i]
		}
	}
	return ConfigSpec{
		YearCount:   pp.YearCount,
		Seed:        pp.Seed,
		ShortTarget: pp.ShortTarget,
		Countries:   countries,
	}, nil
}
