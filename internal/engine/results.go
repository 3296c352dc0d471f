package engine

import (
	"context"
	"math"

	"github.com/variantly/variantly/internal/stats"
	"github.com/variantly/variantly/internal/store"
)

// significanceThresholdPts is the absolute conversion-rate gap, in
// percentage points, past which the heuristic verdict calls the result
// significant. This is the documented reference behavior, not a hypothesis
// test; ZConfidence carries the honest number.
const significanceThresholdPts = 2.0

const (
	confidenceSignificant = 95
	confidenceUncertain   = 80
)

// MetricResult is a per-variant count for one secondary metric, with its
// rate per 100 participants.
type MetricResult struct {
	Count int     `json:"count"`
	Rate  float64 `json:"rate"`
}

type VariantResult struct {
	Variant        store.Variant           `json:"variant"`
	Participants   int                     `json:"participants"`
	Conversions    int                     `json:"conversions"`
	ConversionRate float64                 `json:"conversionRate"` // percent
	CILower        float64                 `json:"ciLower"`        // Wilson 95% bounds on the proportion
	CIUpper        float64                 `json:"ciUpper"`
	Metrics        map[string]MetricResult `json:"metrics,omitempty"`
}

type Significance struct {
	IsSignificant bool    `json:"isSignificant"`
	Confidence    float64 `json:"confidence"`
	Winner        string  `json:"winner,omitempty"`
	ControlID     string  `json:"controlId"`
	ChallengerID  string  `json:"challengerId"`
	DifferencePts float64 `json:"differencePts"`
	// ZConfidence is the two-proportion z-test confidence (0-100) that the
	// challenger beats control, reported as an advisory alongside the
	// threshold heuristic.
	ZConfidence float64 `json:"zConfidence"`
}

type Results struct {
	Experiment   *store.Experiment `json:"experiment"`
	Variants     []VariantResult   `json:"variants"`
	Significance *Significance     `json:"statisticalSignificance,omitempty"`
}

// GetExperimentResults aggregates the event log into per-variant conversion
// rates and an experiment-level verdict. Participants are exposure events;
// conversions are events matching the primary metric's event type.
func (e *Engine) GetExperimentResults(ctx context.Context, experimentID string) (*Results, error) {
	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	exposures, err := e.store.CountEventsByVariant(ctx, exp.ID, store.EventExposure)
	if err != nil {
		return nil, err
	}

	primary := exp.PrimaryMetric()
	var conversions map[string]int
	if primary != nil && primary.EventType != "" {
		conversions, err = e.store.CountEventsByVariant(ctx, exp.ID, primary.EventType)
		if err != nil {
			return nil, err
		}
	}

	secondary := make(map[string]map[string]int)
	for _, m := range exp.Metrics {
		if m.IsPrimary || m.EventType == "" {
			continue
		}
		counts, err := e.store.CountEventsByVariant(ctx, exp.ID, m.EventType)
		if err != nil {
			return nil, err
		}
		secondary[m.Name] = counts
	}

	results := make([]VariantResult, len(exp.Variants))
	for i, v := range exp.Variants {
		participants := exposures[v.ID]
		converted := conversions[v.ID]

		rate := 0.0
		if participants > 0 {
			rate = float64(converted) / float64(participants) * 100
		}
		ciLower, ciUpper := stats.WilsonInterval(converted, participants, 0.95)

		var metrics map[string]MetricResult
		if len(secondary) > 0 {
			metrics = make(map[string]MetricResult, len(secondary))
			for name, counts := range secondary {
				count := counts[v.ID]
				mrate := 0.0
				if participants > 0 {
					mrate = float64(count) / float64(participants) * 100
				}
				metrics[name] = MetricResult{Count: count, Rate: mrate}
			}
		}

		results[i] = VariantResult{
			Variant:        v,
			Participants:   participants,
			Conversions:    converted,
			ConversionRate: rate,
			CILower:        ciLower,
			CIUpper:        ciUpper,
			Metrics:        metrics,
		}
	}

	return &Results{
		Experiment:   exp,
		Variants:     results,
		Significance: analyze(exp, results),
	}, nil
}

// analyze compares the best non-control variant against control. The gap
// must exceed the fixed threshold for significance; the winner is only named
// when the challenger actually beats control and every variant has reached
// the experiment's minimum sample size.
func analyze(exp *store.Experiment, results []VariantResult) *Significance {
	if len(results) < 2 {
		return nil
	}
	control := exp.Control()
	if control == nil {
		return nil
	}

	var ctrl, best *VariantResult
	for i := range results {
		if results[i].Variant.ID == control.ID {
			ctrl = &results[i]
			continue
		}
		if best == nil || results[i].ConversionRate > best.ConversionRate {
			best = &results[i]
		}
	}
	if ctrl == nil || best == nil {
		return nil
	}

	diff := best.ConversionRate - ctrl.ConversionRate
	sig := &Significance{
		ControlID:     ctrl.Variant.ID,
		ChallengerID:  best.Variant.ID,
		DifferencePts: diff,
		ZConfidence:   stats.ZTestConfidence(best.Conversions, best.Participants, ctrl.Conversions, ctrl.Participants) * 100,
	}

	if math.Abs(diff) > significanceThresholdPts {
		sig.IsSignificant = true
		sig.Confidence = confidenceSignificant
	} else {
		sig.Confidence = confidenceUncertain
	}

	if sig.IsSignificant && diff > 0 && sampleSizeMet(exp, results) {
		sig.Winner = best.Variant.ID
	}

	return sig
}

func sampleSizeMet(exp *store.Experiment, results []VariantResult) bool {
	if exp.MinSampleSize <= 0 {
		return true
	}
	for _, r := range results {
		if r.Participants < exp.MinSampleSize {
			return false
		}
	}
	return true
}
