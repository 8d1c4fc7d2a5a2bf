// Package rules implements the Rule Engine: an event-driven, dependency-
// indexed evaluator that re-runs only rules whose watched paths changed,
// debounced and priority-ordered, emitting declarative actions for the
// Alert Service to consume.
package rules

import (
	"log/slog"
	"time"

	"github.com/rathix/relay/internal/document"
)

// Priority orders candidate rules within one evaluation cycle.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Context is handed to a rule's Condition and Action alongside the state
// snapshot.
type Context struct {
	State  map[string]any
	Source string
}

// Condition reports whether a rule should fire against the given snapshot.
type Condition func(state map[string]any, ctx Context) bool

// ActionFn produces a declarative Action when a rule's Condition is true, or
// nil if the rule has nothing to emit this cycle.
type ActionFn func(state map[string]any, ctx Context) *Action

// Rule is registered once and is immutable afterward; condition/action
// closures carry their own hysteresis scratch state rather than the engine
// owning it — see the latchState usage in domain.go.
type Rule struct {
	Name      string
	Priority  Priority
	DependsOn []string
	Condition Condition
	Action    ActionFn
}

const (
	maxRules        = 20
	maxDependencies = 5
)

// ActionKind is the discriminated tag for the Rule Engine's declarative
// action vocabulary.
type ActionKind string

const (
	ActionCreateAlert    ActionKind = "CREATE_ALERT"
	ActionResolveAlert   ActionKind = "RESOLVE_ALERT"
	ActionNotification   ActionKind = "NOTIFICATION"
	ActionWeatherAlert   ActionKind = "WEATHER_ALERT"
	ActionCrewAlert      ActionKind = "CREW_ALERT"
	ActionSetSyncProfile ActionKind = "SET_SYNC_PROFILE"
)

// Action is a single record emitted by a rule's Action function, stamped
// with the rule that produced it and the cycle's timestamp before being
// handed to a consumer.
type Action struct {
	Kind ActionKind
	Data map[string]any

	// Trigger and Resolution are only meaningful for ActionResolveAlert.
	Trigger    string
	Resolution map[string]any

	RuleName  string
	Timestamp time.Time
}

// logOrDefault returns l, or slog.Default() if l is nil.
func logOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

var _ document.RuleEngine = (*Engine)(nil)
