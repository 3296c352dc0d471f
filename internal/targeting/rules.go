// Package targeting evaluates an experiment's targeting constraints against
// a user's profile attributes.
package targeting

import (
	"strconv"
	"strings"

	"github.com/variantly/variantly/internal/store"
)

// Rule operators. Comparisons other than these are not part of the language.
const (
	OpEq       = "eq"
	OpNeq      = "neq"
	OpIn       = "in" // value is a comma-separated list
	OpGt       = "gt" // numeric
	OpLt       = "lt" // numeric
	OpContains = "contains"
	OpExists   = "exists"
)

// Well-known profile attributes the list-valued targeting dimensions match
// against.
const (
	AttrSegment = "segment"
	AttrCountry = "country"
	AttrDevice  = "device"
	AttrSource  = "source"
)

// Matches reports whether a user with the given attributes satisfies every
// declared targeting constraint. An empty dimension constrains nothing; a
// declared dimension the attributes cannot satisfy fails the whole check.
func Matches(t *store.Targeting, attrs map[string]string) bool {
	if t == nil {
		return true
	}

	if !matchesList(t.Segments, attrs[AttrSegment]) {
		return false
	}
	if !matchesList(t.Countries, attrs[AttrCountry]) {
		return false
	}
	if !matchesList(t.DeviceTypes, attrs[AttrDevice]) {
		return false
	}
	if !matchesList(t.TrafficSources, attrs[AttrSource]) {
		return false
	}

	for _, rule := range t.Rules {
		if !Evaluate(rule, attrs) {
			return false
		}
	}

	return true
}

// Evaluate applies a single (field, operator, value) predicate. Unknown
// operators evaluate to false rather than silently passing.
func Evaluate(r store.Rule, attrs map[string]string) bool {
	got, ok := attrs[r.Field]

	switch r.Op {
	case OpExists:
		return ok
	case OpEq:
		return ok && got == r.Value
	case OpNeq:
		return ok && got != r.Value
	case OpIn:
		if !ok {
			return false
		}
		for _, v := range strings.Split(r.Value, ",") {
			if strings.TrimSpace(v) == got {
				return true
			}
		}
		return false
	case OpContains:
		return ok && strings.Contains(got, r.Value)
	case OpGt, OpLt:
		if !ok {
			return false
		}
		a, errA := strconv.ParseFloat(got, 64)
		b, errB := strconv.ParseFloat(r.Value, 64)
		if errA != nil || errB != nil {
			return false
		}
		if r.Op == OpGt {
			return a > b
		}
		return a < b
	default:
		return false
	}
}

func matchesList(allowed []string, got string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, v := range allowed {
		if v == got {
			return true
		}
	}
	return false
}
