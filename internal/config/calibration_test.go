package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tworate/internal/model"
)

const uniformCalibration = `
year_count: 30
seed: 0
country_count: 4
defaults:
  correlation: 0.5
  short_vol: 0.01
  term_vol: 0.01
  short_rev: 0.2
  term_rev: 0.1
  cap_rev: 0.2
  floor_rev: 0.5
  term_target: 0.05
  term_premium: 0.02
  soft_cap: 0.10
  soft_floor: 0.02
  short_rate_0: 0.03
  term_rate_0: 0.05
`

func TestParseUniformCalibration(t *testing.T) {
	spec, err := ParseCalibration([]byte(uniformCalibration))
	require.NoError(t, err)

	assert.Equal(t, 30, spec.YearCount)
	require.Len(t, spec.Countries, 4)
	assert.Equal(t, "C0001", spec.Countries[0].ID)
	assert.Equal(t, "C0004", spec.Countries[3].ID)
	for _, c := range spec.Countries {
		assert.Equal(t, 0.5, c.Correlation)
		assert.Equal(t, 0.02, c.SoftFloor)
		assert.Equal(t, 0.03, c.ShortRate0)
	}

	_, err = model.NewModelConfig(spec)
	require.NoError(t, err)
}

func TestParseCountriesOverlayDefaults(t *testing.T) {
	doc := `
year_count: 5
seed: 11
short_target: fixed
defaults:
  short_vol: 0.01
  term_vol: 0.02
  soft_cap: 0.1
  short_target: 0.025
countries:
  - id: US
    short_vol: 0.015
  - id: DE
    soft_cap: 0.08
    short_target: 0.01
  - term_vol: 0
`
	spec, err := ParseCalibration([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, int64(11), spec.Seed)
	assert.Equal(t, model.ShortTargetFixed, spec.ShortTarget)
	require.Len(t, spec.Countries, 3)

	us, de, third := spec.Countries[0], spec.Countries[1], spec.Countries[2]
	assert.Equal(t, "US", us.ID)
	assert.Equal(t, 0.015, us.ShortVol)
	assert.Equal(t, 0.02, us.TermVol)
	assert.Equal(t, 0.025, us.ShortTarget)

	assert.Equal(t, 0.01, de.ShortVol)
	assert.Equal(t, 0.08, de.SoftCap)
	assert.Equal(t, 0.01, de.ShortTarget)

	assert.Equal(t, "C0003", third.ID)
	assert.Equal(t, 0.0, third.TermVol)
	assert.Equal(t, 0.1, third.SoftCap)
}

func TestParseParallelCalibration(t *testing.T) {
	doc := `
seed: 9
parallel:
  year_count: 2
  countries: [A, B]
  correlation: [0.1, 0.2]
  short_vol: [0.01, 0.01]
  term_vol: [0.01, 0.01]
  short_rev: [0.2, 0.2]
  term_rev: [0.1, 0.1]
  cap_rev: [0.2, 0.2]
  floor_rev: [0.5, 0.5]
  term_target: [0.05, 0.05]
  term_premium: [0.02, 0.02]
  soft_cap: [0.1, 0.1]
  soft_floor: [0.02, 0.02]
  short_rate_0: [0.03, 0.04]
  term_rate_0: [0.05, 0.06]
`
	spec, err := ParseCalibration([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 2, spec.YearCount)
	assert.Equal(t, int64(9), spec.Seed)
	assert.Equal(t, []string{"A", "B"}, []string{spec.Countries[0].ID, spec.Countries[1].ID})
	assert.Equal(t, 0.2, spec.Countries[1].Correlation)
	assert.Equal(t, 0.06, spec.Countries[1].TermRate0)
}

func TestParseCalibrationErrors(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"unknown field":  "year_count: 1\ncountry_count: 1\nvolatility: 2\n",
		"no countries":   "year_count: 1\n",
		"count mismatch": "year_count: 1\ncountry_count: 3\ncountries:\n  - id: A\n",
		"parallel mix":   "year_count: 1\ncountry_count: 2\nparallel:\n  countries: [A]\n",
		"short arrays":   "parallel:\n  year_count: 1\n  countries: [A, B]\n  correlation: [0.1]\n",
		"invalid values": "year_count: 1\ncountry_count: 1\ndefaults:\n  correlation: 2\n",
		"zero years":     "country_count: 1\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCalibration([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestParseCalibrationRejectsUnknownCountryKey(t *testing.T) {
	doc := `
year_count: 1
defaults:
  short_vol: 0.01
  soft_cap: 0.1
countries:
  - id: US
  - id: DE
    short_vols: 0.5
`
	_, err := ParseCalibration([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short_vols")
	assert.Contains(t, err.Error(), "country 1")
}

func TestParseParallelLengthMismatchIsConfigError(t *testing.T) {
	doc := "parallel:\n  year_count: 1\n  countries: [A, B]\n  correlation: [0.1]\n"
	_, err := ParseCalibration([]byte(doc))
	require.Error(t, err)
	assert.True(t, model.IsConfigError(err))
}

func TestInitialRatesAreSeededAndBounded(t *testing.T) {
	doc := uniformCalibration + `
initial_rates:
  seed: 3
  short_min: -0.1
  short_max: 0.3
  term_noise: 0.05
`
	first, err := ParseCalibration([]byte(doc))
	require.NoError(t, err)
	second, err := ParseCalibration([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	distinct := map[float64]struct{}{}
	for _, c := range first.Countries {
		assert.GreaterOrEqual(t, c.ShortRate0, -0.1)
		assert.Less(t, c.ShortRate0, 0.3)
		spread := c.TermRate0 - c.ShortRate0 - c.TermPremium
		assert.LessOrEqual(t, spread, 0.05+1e-12)
		assert.GreaterOrEqual(t, spread, -0.05-1e-12)
		distinct[c.ShortRate0] = struct{}{}
	}
	assert.Len(t, distinct, len(first.Countries))
}

func TestInitialRatesRejectInvalidBounds(t *testing.T) {
	countries := []model.CountryParams{{ID: "A"}}
	require.Error(t, InitialRates{ShortMin: 0.2, ShortMax: 0.1}.Apply(countries))
	require.Error(t, InitialRates{ShortMax: 0.1, TermNoise: -1}.Apply(countries))
}

func TestLoadCalibrationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	require.NoError(t, os.WriteFile(path, []byte(uniformCalibration), 0o644))

	spec, err := LoadCalibration(path)
	require.NoError(t, err)
	assert.Len(t, spec.Countries, 4)

	_, err = LoadCalibration(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
