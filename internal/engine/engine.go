// Package engine implements the experimentation core: deterministic variant
// assignment, event tracking, and results analysis. The engine holds no
// cross-request state; everything durable lives behind store.Store.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/variantly/variantly/internal/bucket"
	"github.com/variantly/variantly/internal/config"
	"github.com/variantly/variantly/internal/store"
	"github.com/variantly/variantly/internal/targeting"
)

// variantSeedSuffix decorrelates the variant draw from the
// traffic-allocation draw for the same user.
const variantSeedSuffix = "_variant"

type Engine struct {
	store store.Store
	log   *zap.Logger
}

func New(s store.Store, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: s, log: log}
}

// CreateExperiment validates a draft and persists it. An invalid draft is
// never persisted; the returned *config.ValidationError carries every
// violation.
func (e *Engine) CreateExperiment(ctx context.Context, exp *store.Experiment) error {
	config.Normalize(exp)

	if res := config.Validate(exp); !res.Valid {
		return &config.ValidationError{Errors: res.Errors}
	}

	return e.store.CreateExperiment(ctx, exp)
}

// UpdateExperimentStatus persists a new lifecycle status and records a
// status-change event in the experiment's event log.
func (e *Engine) UpdateExperimentStatus(ctx context.Context, id string, status store.ExperimentStatus) error {
	switch status {
	case store.StatusDraft, store.StatusActive, store.StatusPaused, store.StatusCompleted:
	default:
		return fmt.Errorf("invalid status: %s", status)
	}

	if err := e.store.UpdateExperimentStatus(ctx, id, status); err != nil {
		return err
	}

	e.trackBestEffort(ctx, &store.Event{
		ExperimentID: id,
		UserID:       "operator",
		EventType:    store.EventStatusChange,
		Payload:      map[string]any{"status": string(status)},
	})

	return nil
}

// AssignRequest carries the optional context a caller can attach to a
// first-time assignment. Inline attributes override the stored profile for
// targeting and are captured on the assignment record.
type AssignRequest struct {
	UserID       string
	ExperimentID string
	SessionID    string
	Attributes   map[string]string
}

// GetVariantAssignment returns the variant assigned to (user, experiment),
// or nil if the user is not in the experiment. A nil variant with a nil
// error is the normal "show the default experience" outcome, not a failure.
func (e *Engine) GetVariantAssignment(ctx context.Context, userID, experimentID string) (*store.Variant, error) {
	return e.Assign(ctx, AssignRequest{UserID: userID, ExperimentID: experimentID})
}

// Assign resolves or creates the user's variant assignment. Re-requesting
// an assigned pair always returns the stored variant, never a re-roll.
func (e *Engine) Assign(ctx context.Context, req AssignRequest) (*store.Variant, error) {
	if req.UserID == "" || req.ExperimentID == "" {
		return nil, fmt.Errorf("user id and experiment id required")
	}

	exp, err := e.store.GetExperiment(ctx, req.ExperimentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(exp.Variants) == 0 {
		return nil, nil
	}

	existing, err := e.store.GetAssignment(ctx, req.UserID, req.ExperimentID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return exp.VariantByID(existing.VariantID), nil
	}

	// Only active experiments accept new assignments.
	if exp.Status != store.StatusActive {
		return nil, nil
	}

	eligible, err := e.isEligible(ctx, req, exp)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, nil
	}

	variant := pickVariant(exp, req.UserID)

	// Two concurrent first-time requests compute the same variant because the
	// hash is deterministic; the unique index on (user, experiment) makes the
	// write idempotent either way.
	stored, created, err := e.store.PutAssignment(ctx, &store.Assignment{
		UserID:       req.UserID,
		ExperimentID: exp.ID,
		VariantID:    variant.ID,
		SessionID:    req.SessionID,
		Attributes:   req.Attributes,
	})
	if err != nil {
		return nil, err
	}

	if created {
		e.trackBestEffort(ctx, &store.Event{
			ExperimentID: exp.ID,
			VariantID:    stored.VariantID,
			UserID:       req.UserID,
			SessionID:    req.SessionID,
			EventType:    store.EventExposure,
		})
	}

	return exp.VariantByID(stored.VariantID), nil
}

// isEligible gates a user on the experiment's traffic allocation, then on
// its targeting constraints. Targeting evaluation needs a resolvable user:
// declared constraints with no profile and no inline attributes fail closed.
func (e *Engine) isEligible(ctx context.Context, req AssignRequest, exp *store.Experiment) (bool, error) {
	if bucket.Hash(req.UserID, exp.ID) >= exp.TrafficAllocation/100 {
		return false, nil
	}

	if !exp.Targeting.HasTargeting() {
		return true, nil
	}

	attrs, err := e.store.GetUserProfile(ctx, req.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if len(req.Attributes) > 0 {
		if attrs == nil {
			attrs = make(map[string]string, len(req.Attributes))
		}
		for k, v := range req.Attributes {
			attrs[k] = v
		}
	}
	if len(attrs) == 0 {
		return false, nil
	}

	return targeting.Matches(exp.Targeting, attrs), nil
}

// pickVariant walks the variant list in declaration order and selects the
// first variant whose cumulative weight share exceeds the user's draw.
func pickVariant(exp *store.Experiment, userID string) *store.Variant {
	draw := bucket.Hash(userID, exp.ID+variantSeedSuffix)

	cumulative := 0.0
	for i := range exp.Variants {
		cumulative += exp.Variants[i].Weight
		if draw < cumulative/100 {
			return &exp.Variants[i]
		}
	}

	// Float error can leave the draw just above the final cumulative weight;
	// fall back deterministically rather than failing the flow.
	return &exp.Variants[0]
}
