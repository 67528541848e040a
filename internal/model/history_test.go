package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(country string, times ...int) CountrySeries {
	s := CountrySeries{Country: country}
	for _, t := range times {
		s.States = append(s.States, RateState{Time: t, ShortRate: 0.01, TermRate: 0.02})
	}
	return s
}

func TestHistoryValidate(t *testing.T) {
	valid := History{StepMonths: 3, Series: []CountrySeries{
		series("US", 0, 3, 6),
		series("DE", 0, 3, 6),
	}}
	require.NoError(t, valid.Validate())
	assert.Equal(t, 3, valid.Steps())
	assert.Equal(t, []string{"US", "DE"}, valid.Countries())

	cases := map[string]History{
		"zero step":      {StepMonths: 0, Series: []CountrySeries{series("US", 0)}},
		"ragged series":  {StepMonths: 1, Series: []CountrySeries{series("US", 0, 1, 2), series("DE", 0, 1)}},
		"longer second":  {StepMonths: 1, Series: []CountrySeries{series("US", 0), series("DE", 0, 1)}},
		"not from zero":  {StepMonths: 1, Series: []CountrySeries{series("US", 1, 2, 3)}},
		"wrong spacing":  {StepMonths: 3, Series: []CountrySeries{series("US", 0, 1, 2)}},
		"misaligned row": {StepMonths: 1, Series: []CountrySeries{series("US", 0, 1, 2), series("DE", 0, 2, 1)}},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			err := h.Validate()
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
		})
	}
}

func TestHistoryFind(t *testing.T) {
	h := History{StepMonths: 1, Series: []CountrySeries{series("US", 0), series("DE", 0)}}
	de, ok := h.Find("DE")
	require.True(t, ok)
	assert.Equal(t, "DE", de.Country)
	_, ok = h.Find("JP")
	assert.False(t, ok)
	assert.Equal(t, Features, h.Features())
}

func TestRateStateFeature(t *testing.T) {
	s := RateState{ShortRate: 0.01, TermRate: 0.02}
	v, ok := s.Feature(FeatureTermRate)
	require.True(t, ok)
	assert.Equal(t, 0.02, v)
	_, ok = s.Feature("inflation")
	assert.False(t, ok)
	assert.True(t, IsFeature(FeatureShortRate))
	assert.False(t, IsFeature("inflation"))
}

func TestLagLabelRoundTrip(t *testing.T) {
	cases := []struct {
		months int
		label  string
	}{
		{1, "+1m"},
		{6, "+6m"},
		{12, "+1y"},
		{18, "+18m"},
		{60, "+5y"},
		{120, "+10y"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.label, LagLabel(tc.months))
		months, err := ParseLagLabel(tc.label)
		require.NoError(t, err, tc.label)
		assert.Equal(t, tc.months, months)
	}

	assert.Equal(t, "short_rate(t)", CurrentColumn(FeatureShortRate))
	assert.Equal(t, "term_rate(t+5y)", LaggedColumn(FeatureTermRate, 60))
}

func TestParseLagLabelErrors(t *testing.T) {
	for _, label := range []string{"", "+", "+5", "+y", "+5d", "+1.5y", "+0m", "+-3m", "five"} {
		_, err := ParseLagLabel(label)
		assert.Error(t, err, label)
	}
}
