package store

import "time"

type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusActive    ExperimentStatus = "active"
	StatusPaused    ExperimentStatus = "paused"
	StatusCompleted ExperimentStatus = "completed"
)

// Event types written by the engine itself. Metric-associated event types
// (e.g. "signup_completed") are free-form and come from the experiment
// definition.
const (
	EventExposure     = "exposure"
	EventStatusChange = "status_change"
)

type MetricType string

const (
	MetricConversion MetricType = "conversion"
	MetricEngagement MetricType = "engagement"
	MetricTime       MetricType = "time"
	MetricCount      MetricType = "count"
	MetricCustom     MetricType = "custom"
)

type GoalDirection string

const (
	GoalIncrease GoalDirection = "increase"
	GoalDecrease GoalDirection = "decrease"
)

type Experiment struct {
	ID                string           `json:"id" yaml:"id"`
	Name              string           `json:"name" yaml:"name"`
	Description       string           `json:"description,omitempty" yaml:"description"`
	Status            ExperimentStatus `json:"status" yaml:"status"`
	Type              string           `json:"type,omitempty" yaml:"type"`
	Variants          []Variant        `json:"variants" yaml:"variants"`
	Targeting         *Targeting       `json:"targeting,omitempty" yaml:"targeting"`
	Metrics           []Metric         `json:"metrics" yaml:"metrics"`
	TrafficAllocation float64          `json:"trafficAllocation" yaml:"trafficAllocation"` // 0-100
	MinSampleSize     int              `json:"minSampleSize,omitempty" yaml:"minSampleSize"`
	StartAt           *time.Time       `json:"startAt,omitempty" yaml:"startAt"`
	EndAt             *time.Time       `json:"endAt,omitempty" yaml:"endAt"`
	CreatedAt         time.Time        `json:"createdAt" yaml:"-"`
	UpdatedAt         time.Time        `json:"updatedAt" yaml:"-"`
}

type Variant struct {
	ID            string         `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	Description   string         `json:"description,omitempty" yaml:"description"`
	Weight        float64        `json:"weight" yaml:"weight"` // 0-100, share within the experiment
	Configuration map[string]any `json:"configuration,omitempty" yaml:"configuration"`
	IsControl     bool           `json:"isControl" yaml:"isControl"`
}

type Metric struct {
	ID        string        `json:"id" yaml:"id"`
	Name      string        `json:"name" yaml:"name"`
	Type      MetricType    `json:"type" yaml:"type"`
	EventType string        `json:"eventType,omitempty" yaml:"eventType"`
	IsPrimary bool          `json:"isPrimary" yaml:"isPrimary"`
	Goal      GoalDirection `json:"goal,omitempty" yaml:"goal"`
	Target    float64       `json:"target,omitempty" yaml:"target"`
}

// Targeting narrows which users an experiment applies to. A nil or empty
// field means no constraint on that dimension. Rules are explicit
// (field, operator, value) predicates; there is deliberately no free-form
// rule string.
type Targeting struct {
	Segments       []string `json:"segments,omitempty" yaml:"segments"`
	Countries      []string `json:"countries,omitempty" yaml:"countries"`
	DeviceTypes    []string `json:"deviceTypes,omitempty" yaml:"deviceTypes"`
	TrafficSources []string `json:"trafficSources,omitempty" yaml:"trafficSources"`
	Rules          []Rule   `json:"rules,omitempty" yaml:"rules"`
}

// Rule is a single attribute predicate, e.g. {plan, eq, trial}.
type Rule struct {
	Field string `json:"field" yaml:"field"`
	Op    string `json:"op" yaml:"op"`
	Value string `json:"value,omitempty" yaml:"value"`
}

// Assignment pins a user to one variant of one experiment. At most one row
// exists per (user, experiment) and it is never updated once written.
type Assignment struct {
	ID           int64             `json:"-"`
	UserID       string            `json:"userId"`
	ExperimentID string            `json:"experimentId"`
	VariantID    string            `json:"variantId"`
	SessionID    string            `json:"sessionId,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	AssignedAt   time.Time         `json:"assignedAt"`
}

// Event is one append-only record in the experiment event log.
type Event struct {
	ID           int64          `json:"-"`
	ExperimentID string         `json:"experimentId"`
	VariantID    string         `json:"variantId,omitempty"`
	UserID       string         `json:"userId"`
	SessionID    string         `json:"sessionId,omitempty"`
	EventType    string         `json:"eventType"`
	Payload      map[string]any `json:"payload,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// PrimaryMetric returns the experiment's primary metric, or nil if the
// definition never passed validation.
func (e *Experiment) PrimaryMetric() *Metric {
	for i := range e.Metrics {
		if e.Metrics[i].IsPrimary {
			return &e.Metrics[i]
		}
	}
	return nil
}

// Control returns the first variant flagged as control.
func (e *Experiment) Control() *Variant {
	for i := range e.Variants {
		if e.Variants[i].IsControl {
			return &e.Variants[i]
		}
	}
	return nil
}

// VariantByID resolves a variant from the experiment's current variant list.
func (e *Experiment) VariantByID(id string) *Variant {
	for i := range e.Variants {
		if e.Variants[i].ID == id {
			return &e.Variants[i]
		}
	}
	return nil
}

// HasTargeting reports whether any targeting constraint is declared.
func (t *Targeting) HasTargeting() bool {
	if t == nil {
		return false
	}
	return len(t.Segments) > 0 || len(t.Countries) > 0 || len(t.DeviceTypes) > 0 ||
		len(t.TrafficSources) > 0 || len(t.Rules) > 0
}
