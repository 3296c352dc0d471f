package testutil

import (
	"testing"

	"github.com/variantly/variantly/internal/store"
)

// SetupTestStore creates a test database and returns the store with cleanup
// registered. Uses t.TempDir() so the file disappears with the test.
func SetupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	dbPath := t.TempDir() + "/test.db"

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// ActiveExperiment returns a valid two-variant 50/50 experiment ready to be
// persisted by tests.
func ActiveExperiment(id string) *store.Experiment {
	return &store.Experiment{
		ID:     id,
		Name:   "test experiment " + id,
		Status: store.StatusActive,
		Variants: []store.Variant{
			{ID: "control", Name: "Control", Weight: 50, IsControl: true},
			{ID: "challenger", Name: "Challenger", Weight: 50},
		},
		Metrics: []store.Metric{
			{ID: "m1", Name: "conversion_rate", Type: store.MetricConversion, EventType: "signup_completed", IsPrimary: true},
		},
		TrafficAllocation: 100,
	}
}
