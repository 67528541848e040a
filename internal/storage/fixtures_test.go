package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tworate/internal/model"
)

func testRun(id, created string) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: CurrentVersion(),
		ID:              id,
		CreatedAtUTC:    created,
		Config: model.ConfigSpec{
			YearCount: 2,
			Seed:      7,
			Countries: []model.CountryParams{{ID: "US", Correlation: 0.3, ShortVol: 0.01, TermVol: 0.008, SoftCap: 0.2}},
		},
		Steps: 25,
	}
}

func testHistory() model.History {
	return model.History{
		VersionedRecord: CurrentVersion(),
		StepMonths:      1,
		Series: []model.CountrySeries{{
			Country: "US",
			States: []model.RateState{
				{Time: 0, ShortRate: 0.02, TermRate: 0.035},
				{Time: 1, ShortRate: 0.0204, TermRate: 0.0351},
			},
		}},
	}
}

func testLagSample(lag int) model.LagSample {
	return model.LagSample{
		VersionedRecord: CurrentVersion(),
		LagMonths:       lag,
		LagLabel:        model.LagLabel(lag),
		Features:        []string{model.FeatureShortRate},
		Columns:         []string{model.CurrentColumn(model.FeatureShortRate), model.LaggedColumn(model.FeatureShortRate, lag)},
		Rows:            []model.LagRow{{Country: "US", Time: 0, Values: []float64{0.02, 0.025}}},
	}
}

// assertRunDeleted saves a run with a history and two samples next to a
// second run, deletes the first and checks only the second survives.
func assertRunDeleted(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{"gone", "kept"} {
		require.NoError(t, store.SaveRun(ctx, testRun(id, "2026-03-01T00:00:00Z")))
		require.NoError(t, store.SaveHistory(ctx, id, testHistory()))
		require.NoError(t, store.SaveLagSample(ctx, id, testLagSample(6)))
		require.NoError(t, store.SaveLagSample(ctx, id, testLagSample(12)))
	}

	require.NoError(t, store.DeleteRun(ctx, "gone"))
	require.NoError(t, store.DeleteRun(ctx, "never-saved"))

	_, ok, err := store.GetRun(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = store.GetHistory(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, ok)
	for _, lag := range []int{6, 12} {
		_, ok, err = store.GetLagSample(ctx, "gone", lag)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "kept", runs[0].ID)
	_, ok, err = store.GetLagSample(ctx, "kept", 12)
	require.NoError(t, err)
	assert.True(t, ok)
}
