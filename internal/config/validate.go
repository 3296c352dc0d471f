package config

import (
	"math"
	"strings"

	"github.com/variantly/variantly/internal/store"
)

// weightTolerance absorbs float error when checking that variant weights
// sum to 100.
const weightTolerance = 0.01

// ValidationResult holds the outcome of validating an experiment draft.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// ValidationError is returned when an experiment draft fails validation.
// It carries every violation, not just the first.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid experiment: " + strings.Join(e.Errors, "; ")
}

// Validate enforces the structural invariants an experiment must satisfy
// before it becomes active: variant weights sum to 100, at least one control
// variant, exactly one primary metric. It is pure and never touches the
// persistence layer.
func Validate(exp *store.Experiment) ValidationResult {
	var errs []string

	var weightSum float64
	for _, v := range exp.Variants {
		weightSum += v.Weight
	}
	if math.Abs(weightSum-100) > weightTolerance {
		errs = append(errs, "variant weights must sum to 100%")
	}

	hasControl := false
	for _, v := range exp.Variants {
		if v.IsControl {
			hasControl = true
			break
		}
	}
	if !hasControl {
		errs = append(errs, "experiment must have at least one control variant")
	}

	primaries := 0
	for _, m := range exp.Metrics {
		if m.IsPrimary {
			primaries++
		}
	}
	if primaries != 1 {
		errs = append(errs, "experiment must have exactly one primary metric")
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
