package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/variantly/variantly/internal/store"
)

// TrackRequest is a metric-relevant event reported by calling code, e.g. an
// onboarding step completion.
type TrackRequest struct {
	ExperimentID string
	UserID       string
	SessionID    string
	EventType    string
	Payload      map[string]any
}

// Track appends one immutable event record against the user's currently
// assigned variant. Events from users with no assignment are dropped: there
// is no variant to attribute them to. Tracking is best-effort telemetry;
// callers in user-facing flows should log the returned error and continue.
func (e *Engine) Track(ctx context.Context, req TrackRequest) error {
	if req.EventType == "" {
		return fmt.Errorf("event type required")
	}

	a, err := e.store.GetAssignment(ctx, req.UserID, req.ExperimentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	return e.store.AppendEvent(ctx, &store.Event{
		ExperimentID: req.ExperimentID,
		VariantID:    a.VariantID,
		UserID:       req.UserID,
		SessionID:    req.SessionID,
		EventType:    req.EventType,
		Payload:      req.Payload,
	})
}

// trackBestEffort appends an event and only logs on failure, so telemetry
// never aborts the flow that triggered it.
func (e *Engine) trackBestEffort(ctx context.Context, ev *store.Event) {
	if err := e.store.AppendEvent(ctx, ev); err != nil {
		e.log.Warn("failed to record event",
			zap.String("experiment", ev.ExperimentID),
			zap.String("event_type", ev.EventType),
			zap.Error(err))
	}
}
