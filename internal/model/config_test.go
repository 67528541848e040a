package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCountry(id string) CountryParams {
	return CountryParams{
		ID:          id,
		Correlation: 0.4,
		ShortVol:    0.01,
		TermVol:     0.008,
		ShortRev:    0.2,
		TermRev:     0.1,
		CapRev:      0.2,
		FloorRev:    0.5,
		TermTarget:  0.05,
		TermPremium: 0.02,
		SoftCap:     0.10,
		SoftFloor:   0.01,
		ShortRate0:  0.03,
		TermRate0:   0.05,
	}
}

func validSpec() ConfigSpec {
	return ConfigSpec{YearCount: 2, Seed: 1, Countries: []CountryParams{validCountry("US"), validCountry("DE")}}
}

func TestNewModelConfigDefaultsAndCopies(t *testing.T) {
	spec := validSpec()
	cfg, err := NewModelConfig(spec)
	require.NoError(t, err)

	assert.Equal(t, ShortTargetTermSpread, cfg.ShortTarget())
	assert.Equal(t, 24, cfg.MonthCount())
	assert.Equal(t, []string{"US", "DE"}, cfg.CountryIDs())

	spec.Countries[0].ShortVol = 9
	assert.Equal(t, 0.01, cfg.Country(0).ShortVol)
	cfg.Countries()[1].TermVol = 9
	assert.Equal(t, 0.008, cfg.Country(1).TermVol)

	again, err := NewModelConfig(cfg.Spec())
	require.NoError(t, err)
	assert.Equal(t, cfg, again)

	reseeded := cfg.WithSeed(5)
	assert.Equal(t, int64(5), reseeded.Seed())
	assert.Equal(t, int64(1), cfg.Seed())
}

func TestConfigSpecValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		field  string
		mutate func(*ConfigSpec)
	}{
		{"zero years", "year_count", func(s *ConfigSpec) { s.YearCount = 0 }},
		{"unknown mode", "short_target", func(s *ConfigSpec) { s.ShortTarget = "mean" }},
		{"no countries", "countries", func(s *ConfigSpec) { s.Countries = nil }},
		{"blank id", "countries[1].id", func(s *ConfigSpec) { s.Countries[1].ID = "  " }},
		{"duplicate id", "countries[1].id", func(s *ConfigSpec) { s.Countries[1].ID = "US" }},
		{"negative short vol", "countries[0].short_vol", func(s *ConfigSpec) { s.Countries[0].ShortVol = -0.01 }},
		{"negative term vol", "countries[1].term_vol", func(s *ConfigSpec) { s.Countries[1].TermVol = -1e-9 }},
		{"negative short rev", "countries[0].short_rev", func(s *ConfigSpec) { s.Countries[0].ShortRev = -0.2 }},
		{"negative term rev", "countries[0].term_rev", func(s *ConfigSpec) { s.Countries[0].TermRev = -0.1 }},
		{"negative cap rev", "countries[0].cap_rev", func(s *ConfigSpec) { s.Countries[0].CapRev = -1 }},
		{"negative floor rev", "countries[1].floor_rev", func(s *ConfigSpec) { s.Countries[1].FloorRev = -1 }},
		{"correlation above one", "countries[0].correlation", func(s *ConfigSpec) { s.Countries[0].Correlation = 1.01 }},
		{"correlation below minus one", "countries[1].correlation", func(s *ConfigSpec) { s.Countries[1].Correlation = -1.5 }},
		{"floor above cap", "countries[0].soft_floor", func(s *ConfigSpec) { s.Countries[0].SoftFloor = 0.2 }},
		{"nan rate", "countries[0].short_rate_0", func(s *ConfigSpec) { s.Countries[0].ShortRate0 = math.NaN() }},
		{"infinite target", "countries[1].term_target", func(s *ConfigSpec) { s.Countries[1].TermTarget = math.Inf(1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := validSpec()
			tc.mutate(&spec)

			_, err := NewModelConfig(spec)
			require.Error(t, err)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Field)
			assert.True(t, IsConfigError(err))
			assert.False(t, IsNumericalError(err))
		})
	}
}

func TestConfigSpecValidateAcceptsEdges(t *testing.T) {
	spec := validSpec()
	spec.ShortTarget = ShortTargetFixed
	spec.Countries[0].Correlation = -1
	spec.Countries[1].Correlation = 1
	spec.Countries[0].ShortVol = 0
	spec.Countries[0].TermRev = 0
	spec.Countries[1].SoftFloor = spec.Countries[1].SoftCap
	require.NoError(t, spec.Validate())
}

func TestConfigBuilderUniform(t *testing.T) {
	cfg, err := NewConfigBuilder().YearCount(1).Seed(3).ShortTarget(ShortTargetFixed).
		Uniform(2, validCountry("")).
		AddCountry(validCountry("JP")).
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"C0001", "C0002", "JP"}, cfg.CountryIDs())
	assert.Equal(t, ShortTargetFixed, cfg.ShortTarget())

	_, err = NewConfigBuilder().YearCount(1).Build()
	assert.True(t, IsConfigError(err))
}

func parallelFixture() ParallelParams {
	pair := func(a, b float64) []float64 { return []float64{a, b} }
	return ParallelParams{
		YearCount:   3,
		Seed:        4,
		Countries:   []string{"US", "DE"},
		Correlation: pair(0.1, 0.2),
		ShortVol:    pair(0.01, 0.02),
		TermVol:     pair(0.01, 0.02),
		ShortRev:    pair(0.2, 0.3),
		TermRev:     pair(0.1, 0.1),
		CapRev:      pair(0.2, 0.2),
		FloorRev:    pair(0.5, 0.5),
		TermTarget:  pair(0.05, 0.04),
		TermPremium: pair(0.02, 0.01),
		SoftCap:     pair(0.1, 0.1),
		SoftFloor:   pair(0.01, 0.0),
		ShortRate0:  pair(0.03, 0.02),
		TermRate0:   pair(0.05, 0.03),
	}
}

func TestParallelParamsSpec(t *testing.T) {
	spec, err := parallelFixture().Spec()
	require.NoError(t, err)
	require.NoError(t, spec.Validate())
	require.Len(t, spec.Countries, 2)
	assert.Equal(t, "DE", spec.Countries[1].ID)
	assert.Equal(t, 0.3, spec.Countries[1].ShortRev)
	assert.Equal(t, 0.0, spec.Countries[1].ShortTarget)

	withLevels := parallelFixture()
	withLevels.ShortTargetLevel = []float64{0.02, 0.015}
	spec, err = withLevels.Spec()
	require.NoError(t, err)
	assert.Equal(t, 0.015, spec.Countries[1].ShortTarget)
}

func TestParallelParamsSpecLengthMismatch(t *testing.T) {
	cases := []struct {
		name   string
		field  string
		mutate func(*ParallelParams)
	}{
		{"short array", "correlation", func(p *ParallelParams) { p.Correlation = p.Correlation[:1] }},
		{"long array", "term_rate_0", func(p *ParallelParams) { p.TermRate0 = append(p.TermRate0, 0.04) }},
		{"missing array", "soft_floor", func(p *ParallelParams) { p.SoftFloor = nil }},
		{"partial optional array", "short_target_level", func(p *ParallelParams) { p.ShortTargetLevel = []float64{0.02} }},
		{"extra country", "correlation", func(p *ParallelParams) { p.Countries = append(p.Countries, "JP") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pp := parallelFixture()
			tc.mutate(&pp)

			_, err := pp.Spec()
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}
