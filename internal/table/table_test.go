package table

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tworate/internal/model"
)

func sampleHistory() model.History {
	return model.History{
		StepMonths: 1,
		Series: []model.CountrySeries{
			{Country: "US", States: []model.RateState{
				{Time: 0, ShortRate: 0.02, TermRate: 0.035},
				{Time: 1, ShortRate: 0.021, TermRate: 0.0348},
			}},
			{Country: "DE", States: []model.RateState{
				{Time: 0, ShortRate: -0.004, TermRate: 0.01},
				{Time: 1, ShortRate: -0.0035, TermRate: 0.0102},
			}},
		},
	}
}

func TestWriteHistoryLongLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHistory(&buf, sampleHistory()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "time,country,short_rate,term_rate", lines[0])
	assert.Equal(t, "0,US,0.02,0.035", lines[1])
	assert.Equal(t, "1,DE,-0.0035,0.0102", lines[4])
}

func TestReadHistoryRestoresSeries(t *testing.T) {
	var buf bytes.Buffer
	h := sampleHistory()
	require.NoError(t, WriteHistory(&buf, h))

	got, err := ReadHistory(&buf)
	require.NoError(t, err)
	assert.Equal(t, h.StepMonths, got.StepMonths)
	assert.Equal(t, h.Series, got.Series)
}

func TestReadHistoryRejectsBadTables(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"missing column": "time,country,short_rate\n0,US,0.01\n",
		"bad number":     "time,country,short_rate,term_rate\n0,US,abc,0.01\n",
		"ragged":         "time,country,short_rate,term_rate\n0,US,0.01,0.02\n1,US,0.01,0.02\n0,DE,0.01,0.02\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadHistory(strings.NewReader(raw))
			require.Error(t, err)
		})
	}
}

func TestWriteFeatureWideLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFeature(&buf, sampleHistory(), model.FeatureTermRate))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "time,US,DE", lines[0])
	assert.Equal(t, "0,0.035,0.01", lines[1])
	assert.Equal(t, "1,0.0348,0.0102", lines[2])

	err := WriteFeature(&buf, sampleHistory(), "inflation")
	require.Error(t, err)
	assert.True(t, model.IsConfigError(err))
}

func TestLagSampleTable(t *testing.T) {
	s := model.LagSample{
		LagMonths: 60,
		LagLabel:  "+5y",
		Features:  []string{model.FeatureShortRate, model.FeatureTermRate},
		Columns:   []string{"short_rate(t)", "short_rate(t+5y)", "term_rate(t)", "term_rate(t+5y)"},
		Rows: []model.LagRow{
			{Country: "US", Time: 0, Values: []float64{0.02, 0.03, 0.035, 0.04}},
			{Country: "US", Time: 1, Values: []float64{0.021, 0.029, 0.0348, 0.041}},
		},
	}

	path := filepath.Join(t.TempDir(), "nested", "lag_sample.60m.csv")
	require.NoError(t, WriteFile(path, func(w io.Writer) error { return WriteLagSample(w, s) }))

	got, err := ReadLagSampleFile(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestReadLagSampleRejectsMalformedHeaders(t *testing.T) {
	cases := map[string]string{
		"no values":     "country,time\n",
		"not current":   "country,time,short_rate,short_rate(t+6m)\n",
		"unpaired":      "country,time,short_rate(t),term_rate(t+6m)\n",
		"bad label":     "country,time,short_rate(t),short_rate(t+6q)\n",
		"mixed lags":    "country,time,short_rate(t),short_rate(t+6m),term_rate(t),term_rate(t+1y)\n",
		"odd columns":   "country,time,short_rate(t),short_rate(t+6m),term_rate(t)\n",
		"wrong leading": "time,country,short_rate(t),short_rate(t+6m)\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadLagSample(strings.NewReader(raw))
			require.Error(t, err)
		})
	}
}

func TestWriteFileRequiresPath(t *testing.T) {
	require.Error(t, WriteFile("  ", func(io.Writer) error { return nil }))
}
