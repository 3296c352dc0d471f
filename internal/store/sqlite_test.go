package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variantly/variantly/internal/store"
	"github.com/variantly/variantly/internal/testutil"
)

func TestExperimentRoundTrip(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	start := time.Now().Truncate(time.Second)
	exp := &store.Experiment{
		ID:          "exp-1",
		Name:        "welcome copy",
		Description: "headline test",
		Status:      store.StatusDraft,
		Type:        "content",
		Variants: []store.Variant{
			{ID: "a", Name: "A", Weight: 50, IsControl: true, Configuration: map[string]any{"headline": "Hi"}},
			{ID: "b", Name: "B", Weight: 50},
		},
		Targeting: &store.Targeting{
			Segments: []string{"trial"},
			Rules:    []store.Rule{{Field: "plan", Op: "eq", Value: "trial"}},
		},
		Metrics: []store.Metric{
			{ID: "m1", Name: "completion_rate", Type: store.MetricConversion, EventType: "done", IsPrimary: true, Goal: store.GoalIncrease},
		},
		TrafficAllocation: 80,
		MinSampleSize:     100,
		StartAt:           &start,
	}

	require.NoError(t, s.CreateExperiment(ctx, exp))

	got, err := s.GetExperiment(ctx, "exp-1")
	require.NoError(t, err)

	assert.Equal(t, "welcome copy", got.Name)
	assert.Equal(t, store.StatusDraft, got.Status)
	assert.Len(t, got.Variants, 2)
	assert.True(t, got.Variants[0].IsControl)
	assert.Equal(t, "Hi", got.Variants[0].Configuration["headline"])
	assert.Equal(t, []string{"trial"}, got.Targeting.Segments)
	assert.Equal(t, "eq", got.Targeting.Rules[0].Op)
	assert.Equal(t, 80.0, got.TrafficAllocation)
	assert.Equal(t, 100, got.MinSampleSize)
	require.NotNil(t, got.StartAt)
	assert.Equal(t, start.Unix(), got.StartAt.Unix())
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetExperiment_NotFound(t *testing.T) {
	s := testutil.SetupTestStore(t)

	_, err := s.GetExperiment(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListExperiments(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateExperiment(ctx, testutil.ActiveExperiment("exp-1")))
	require.NoError(t, s.CreateExperiment(ctx, testutil.ActiveExperiment("exp-2")))

	exps, err := s.ListExperiments(ctx)
	require.NoError(t, err)
	assert.Len(t, exps, 2)
}

func TestUpdateExperimentStatus(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateExperiment(ctx, testutil.ActiveExperiment("exp-1")))

	require.NoError(t, s.UpdateExperimentStatus(ctx, "exp-1", store.StatusPaused))

	got, err := s.GetExperiment(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPaused, got.Status)

	assert.ErrorIs(t, s.UpdateExperimentStatus(ctx, "missing", store.StatusPaused), store.ErrNotFound)
}

func TestPutAssignment_UpsertConverges(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateExperiment(ctx, testutil.ActiveExperiment("exp-1")))

	first, created, err := s.PutAssignment(ctx, &store.Assignment{
		UserID:       "u1",
		ExperimentID: "exp-1",
		VariantID:    "control",
		SessionID:    "sess-1",
		Attributes:   map[string]string{"plan": "trial"},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "control", first.VariantID)
	assert.Equal(t, "trial", first.Attributes["plan"])

	// A second write for the same pair must not replace the stored row,
	// even with a different variant.
	second, created, err := s.PutAssignment(ctx, &store.Assignment{
		UserID:       "u1",
		ExperimentID: "exp-1",
		VariantID:    "challenger",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "control", second.VariantID, "stored assignment is immutable")
}

func TestGetAssignment_NotFound(t *testing.T) {
	s := testutil.SetupTestStore(t)

	_, err := s.GetAssignment(context.Background(), "u1", "exp-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEventsAppendAndCount(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateExperiment(ctx, testutil.ActiveExperiment("exp-1")))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendEvent(ctx, &store.Event{
			ExperimentID: "exp-1",
			VariantID:    "control",
			UserID:       "u1",
			EventType:    store.EventExposure,
		}))
	}
	require.NoError(t, s.AppendEvent(ctx, &store.Event{
		ExperimentID: "exp-1",
		VariantID:    "challenger",
		UserID:       "u2",
		EventType:    "signup_completed",
		Payload:      map[string]any{"step": "final"},
	}))

	count, err := s.CountEvents(ctx, "exp-1", "control", store.EventExposure)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "events append, they never dedup")

	byVariant, err := s.CountEventsByVariant(ctx, "exp-1", store.EventExposure)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"control": 3}, byVariant)

	events, err := s.GetEvents(ctx, "exp-1")
	require.NoError(t, err)
	assert.Len(t, events, 4)

	var payload map[string]any
	for _, e := range events {
		if e.EventType == "signup_completed" {
			payload = e.Payload
		}
	}
	assert.Equal(t, "final", payload["step"])
}

func TestCountEventsByVariant_SkipsVariantlessEvents(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateExperiment(ctx, testutil.ActiveExperiment("exp-1")))
	require.NoError(t, s.AppendEvent(ctx, &store.Event{
		ExperimentID: "exp-1",
		UserID:       "operator",
		EventType:    store.EventStatusChange,
	}))

	byVariant, err := s.CountEventsByVariant(ctx, "exp-1", store.EventStatusChange)
	require.NoError(t, err)
	assert.Empty(t, byVariant)
}

func TestUserProfileUpsert(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	_, err := s.GetUserProfile(ctx, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.PutUserProfile(ctx, "u1", map[string]string{"plan": "trial"}))

	attrs, err := s.GetUserProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "trial", attrs["plan"])

	require.NoError(t, s.PutUserProfile(ctx, "u1", map[string]string{"plan": "paid", "country": "US"}))

	attrs, err = s.GetUserProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "paid", attrs["plan"])
	assert.Equal(t, "US", attrs["country"])
}
