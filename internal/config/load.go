package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/variantly/variantly/internal/store"
)

// Load reads an experiment definition from a YAML file.
func Load(path string) (*store.Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML experiment definition and fills in defaults.
func Parse(data []byte) (*store.Experiment, error) {
	var exp store.Experiment
	if err := yaml.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}

	Normalize(&exp)
	return &exp, nil
}

// Normalize fills in the fields a hand-written definition usually omits:
// generated IDs, draft status, and full traffic allocation. An omitted
// allocation means the experiment takes all eligible traffic.
func Normalize(exp *store.Experiment) {
	if exp.ID == "" {
		exp.ID = uuid.NewString()
	}
	if exp.Status == "" {
		exp.Status = store.StatusDraft
	}
	if exp.TrafficAllocation <= 0 {
		exp.TrafficAllocation = 100
	}

	for i := range exp.Variants {
		if exp.Variants[i].ID == "" {
			exp.Variants[i].ID = uuid.NewString()
		}
	}
	for i := range exp.Metrics {
		if exp.Metrics[i].ID == "" {
			exp.Metrics[i].ID = uuid.NewString()
		}
		if exp.Metrics[i].Type == "" {
			exp.Metrics[i].Type = store.MetricConversion
		}
	}
}
