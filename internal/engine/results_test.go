package engine_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variantly/variantly/internal/store"
	"github.com/variantly/variantly/internal/testutil"
)

// seedEvents writes exposures and follow-up events for one variant straight
// into the event log, one synthetic user per exposure.
func seedEvents(t *testing.T, s *store.SQLiteStore, expID, variantID string, exposures int, eventType string, eventCount int) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < exposures; i++ {
		require.NoError(t, s.AppendEvent(ctx, &store.Event{
			ExperimentID: expID,
			VariantID:    variantID,
			UserID:       fmt.Sprintf("%s-user-%d", variantID, i),
			EventType:    store.EventExposure,
		}))
	}
	for i := 0; i < eventCount; i++ {
		require.NoError(t, s.AppendEvent(ctx, &store.Event{
			ExperimentID: expID,
			VariantID:    variantID,
			UserID:       fmt.Sprintf("%s-user-%d", variantID, i),
			EventType:    eventType,
		}))
	}
}

func TestResults_SignificantChallengerWins(t *testing.T) {
	s, eng := setup(t)
	ctx := context.Background()

	require.NoError(t, eng.CreateExperiment(ctx, testutil.ActiveExperiment("exp-1")))
	seedEvents(t, s, "exp-1", "control", 1000, "signup_completed", 200)
	seedEvents(t, s, "exp-1", "challenger", 1000, "signup_completed", 260)

	res, err := eng.GetExperimentResults(ctx, "exp-1")
	require.NoError(t, err)
	require.Len(t, res.Variants, 2)

	byID := make(map[string]int)
	for i, vr := range res.Variants {
		byID[vr.Variant.ID] = i
	}

	ctrl := res.Variants[byID["control"]]
	assert.Equal(t, 1000, ctrl.Participants)
	assert.Equal(t, 200, ctrl.Conversions)
	assert.InDelta(t, 20.0, ctrl.ConversionRate, 0.001)
	assert.Less(t, ctrl.CILower, 0.20)
	assert.Greater(t, ctrl.CIUpper, 0.20)

	chal := res.Variants[byID["challenger"]]
	assert.InDelta(t, 26.0, chal.ConversionRate, 0.001)

	sig := res.Significance
	require.NotNil(t, sig)
	assert.True(t, sig.IsSignificant)
	assert.Equal(t, 95.0, sig.Confidence)
	assert.Equal(t, "challenger", sig.Winner)
	assert.Equal(t, "control", sig.ControlID)
	assert.InDelta(t, 6.0, sig.DifferencePts, 0.001)
	assert.Greater(t, sig.ZConfidence, 95.0, "z-test should agree at this effect size")
}

func TestResults_SmallGapIsNotSignificant(t *testing.T) {
	s, eng := setup(t)
	ctx := context.Background()

	require.NoError(t, eng.CreateExperiment(ctx, testutil.ActiveExperiment("exp-1")))
	seedEvents(t, s, "exp-1", "control", 500, "signup_completed", 100)
	seedEvents(t, s, "exp-1", "challenger", 500, "signup_completed", 105)

	res, err := eng.GetExperimentResults(ctx, "exp-1")
	require.NoError(t, err)

	sig := res.Significance
	require.NotNil(t, sig)
	assert.False(t, sig.IsSignificant)
	assert.Equal(t, 80.0, sig.Confidence)
	assert.Empty(t, sig.Winner)
}

func TestResults_NoWinnerWhenControlLeads(t *testing.T) {
	s, eng := setup(t)
	ctx := context.Background()

	require.NoError(t, eng.CreateExperiment(ctx, testutil.ActiveExperiment("exp-1")))
	seedEvents(t, s, "exp-1", "control", 500, "signup_completed", 130)
	seedEvents(t, s, "exp-1", "challenger", 500, "signup_completed", 100)

	res, err := eng.GetExperimentResults(ctx, "exp-1")
	require.NoError(t, err)

	sig := res.Significance
	require.NotNil(t, sig)
	assert.True(t, sig.IsSignificant, "a large gap is significant in either direction")
	assert.Empty(t, sig.Winner, "control leading never names a winner")
	assert.Negative(t, sig.DifferencePts)
}

func TestResults_MinSampleSizeGatesWinner(t *testing.T) {
	s, eng := setup(t)
	ctx := context.Background()

	exp := testutil.ActiveExperiment("exp-1")
	exp.MinSampleSize = 1000
	require.NoError(t, eng.CreateExperiment(ctx, exp))
	seedEvents(t, s, "exp-1", "control", 100, "signup_completed", 20)
	seedEvents(t, s, "exp-1", "challenger", 100, "signup_completed", 30)

	res, err := eng.GetExperimentResults(ctx, "exp-1")
	require.NoError(t, err)

	sig := res.Significance
	require.NotNil(t, sig)
	assert.True(t, sig.IsSignificant)
	assert.Empty(t, sig.Winner, "no winner until every variant reaches the minimum sample size")
}

func TestResults_SecondaryMetrics(t *testing.T) {
	s, eng := setup(t)
	ctx := context.Background()

	exp := testutil.ActiveExperiment("exp-1")
	exp.Metrics = append(exp.Metrics, store.Metric{
		ID:        "m2",
		Name:      "docs_viewed",
		Type:      store.MetricEngagement,
		EventType: "docs_page_view",
	})
	require.NoError(t, eng.CreateExperiment(ctx, exp))

	seedEvents(t, s, "exp-1", "control", 100, "signup_completed", 20)
	seedEvents(t, s, "exp-1", "challenger", 100, "docs_page_view", 40)

	res, err := eng.GetExperimentResults(ctx, "exp-1")
	require.NoError(t, err)

	for _, vr := range res.Variants {
		require.Contains(t, vr.Metrics, "docs_viewed")
		if vr.Variant.ID == "challenger" {
			assert.Equal(t, 40, vr.Metrics["docs_viewed"].Count)
			assert.InDelta(t, 40.0, vr.Metrics["docs_viewed"].Rate, 0.001)
		} else {
			assert.Equal(t, 0, vr.Metrics["docs_viewed"].Count)
		}
	}
}

func TestResults_EmptyExperiment(t *testing.T) {
	_, eng := setup(t)
	ctx := context.Background()

	require.NoError(t, eng.CreateExperiment(ctx, testutil.ActiveExperiment("exp-1")))

	res, err := eng.GetExperimentResults(ctx, "exp-1")
	require.NoError(t, err)

	for _, vr := range res.Variants {
		assert.Zero(t, vr.Participants)
		assert.Zero(t, vr.ConversionRate)
		assert.Zero(t, vr.CILower)
		assert.Zero(t, vr.CIUpper)
	}
	require.NotNil(t, res.Significance)
	assert.False(t, res.Significance.IsSignificant)
}

func TestResults_MissingExperiment(t *testing.T) {
	_, eng := setup(t)

	_, err := eng.GetExperimentResults(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
