package store

import "context"

// Store defines the persistence contract the experimentation engine depends
// on. Any backend that can do keyed reads, an idempotent assignment upsert,
// append-only event writes, and counts filtered by
// (experiment, variant, event type) satisfies it.
type Store interface {
	// Experiment operations
	CreateExperiment(ctx context.Context, exp *Experiment) error
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	UpdateExperimentStatus(ctx context.Context, id string, status ExperimentStatus) error

	// Assignment operations. PutAssignment is an upsert keyed on
	// (user, experiment): concurrent writers converge on one stored row and
	// created reports whether this call inserted it.
	GetAssignment(ctx context.Context, userID, experimentID string) (*Assignment, error)
	PutAssignment(ctx context.Context, a *Assignment) (stored *Assignment, created bool, err error)

	// Event operations. Events are append-only; nothing ever mutates or
	// deletes them.
	AppendEvent(ctx context.Context, e *Event) error
	GetEvents(ctx context.Context, experimentID string) ([]*Event, error)
	CountEvents(ctx context.Context, experimentID, variantID, eventType string) (int, error)
	CountEventsByVariant(ctx context.Context, experimentID, eventType string) (map[string]int, error)

	// Profile operations, used by targeting evaluation.
	GetUserProfile(ctx context.Context, userID string) (map[string]string, error)
	PutUserProfile(ctx context.Context, userID string, attrs map[string]string) error

	// Lifecycle
	Close() error
}
