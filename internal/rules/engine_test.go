package rules

import (
	"sync"
	"testing"
	"time"

	"github.com/rathix/relay/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu      sync.Mutex
	batches [][]Action
}

func (r *recordingListener) ProcessActions(actions []Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, actions)
}

func (r *recordingListener) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *recordingListener) last() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == 0 {
		return nil
	}
	return r.batches[len(r.batches)-1]
}

func TestEngineUpdateStateTriggersDependentRule(t *testing.T) {
	listener := &recordingListener{}
	e := NewEngine(WithActionsListener(listener), WithDebounceInterval(10*time.Millisecond), WithDebounceMaxWait(100*time.Millisecond))
	e.SetSnapshotSource(func() map[string]any { return map[string]any{} })

	fired := make(chan struct{}, 1)
	e.Register(Rule{
		Name:      "speed-watch",
		Priority:  PriorityNormal,
		DependsOn: []string{"navigation.speed"},
		Condition: func(state map[string]any, _ Context) bool { return true },
		Action: func(state map[string]any, _ Context) *Action {
			select {
			case fired <- struct{}{}:
			default:
			}
			return &Action{Kind: ActionNotification, Data: map[string]any{"msg": "fast"}}
		},
	})

	e.UpdateState(document.Delta{"navigation.speed": 12.0})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dependent rule to fire")
	}
	require.Eventually(t, func() bool { return listener.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ActionNotification, listener.last()[0].Kind)
	assert.Equal(t, "speed-watch", listener.last()[0].RuleName)
}

func TestEngineUnrelatedDeltaDoesNotTriggerRule(t *testing.T) {
	listener := &recordingListener{}
	e := NewEngine(WithActionsListener(listener), WithDebounceInterval(10*time.Millisecond), WithDebounceMaxWait(100*time.Millisecond))
	e.SetSnapshotSource(func() map[string]any { return map[string]any{} })

	e.Register(Rule{
		Name:      "speed-watch",
		DependsOn: []string{"navigation.speed"},
		Condition: func(state map[string]any, _ Context) bool { return true },
		Action: func(state map[string]any, _ Context) *Action {
			return &Action{Kind: ActionNotification}
		},
	})

	e.UpdateState(document.Delta{"tides.level": 1.0})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, listener.count())
}

func TestEngineChildPathMatchesAncestorDependency(t *testing.T) {
	listener := &recordingListener{}
	e := NewEngine(WithActionsListener(listener), WithDebounceInterval(10*time.Millisecond), WithDebounceMaxWait(100*time.Millisecond))
	e.SetSnapshotSource(func() map[string]any { return map[string]any{} })

	e.Register(Rule{
		Name:      "position-watch",
		DependsOn: []string{"navigation.position"},
		Condition: func(state map[string]any, _ Context) bool { return true },
		Action: func(state map[string]any, _ Context) *Action {
			return &Action{Kind: ActionNotification}
		},
	})

	e.UpdateState(document.Delta{"navigation.position.latitude": 1.23})

	require.Eventually(t, func() bool { return listener.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestEngineGlobalBucketRunsOnEveryDelta(t *testing.T) {
	listener := &recordingListener{}
	e := NewEngine(WithActionsListener(listener), WithDebounceInterval(10*time.Millisecond), WithDebounceMaxWait(100*time.Millisecond))
	e.SetSnapshotSource(func() map[string]any { return map[string]any{} })

	e.Register(Rule{
		Name:      "global-watch",
		Condition: func(state map[string]any, _ Context) bool { return true },
		Action: func(state map[string]any, _ Context) *Action {
			return &Action{Kind: ActionNotification}
		},
	})

	e.UpdateState(document.Delta{"anything.at.all": 1})

	require.Eventually(t, func() bool { return listener.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestEngineConditionFalseEmitsNoAction(t *testing.T) {
	listener := &recordingListener{}
	e := NewEngine(WithActionsListener(listener), WithDebounceInterval(10*time.Millisecond), WithDebounceMaxWait(100*time.Millisecond))
	e.SetSnapshotSource(func() map[string]any { return map[string]any{} })

	e.Register(Rule{
		Name:      "never",
		DependsOn: []string{"navigation.speed"},
		Condition: func(state map[string]any, _ Context) bool { return false },
		Action: func(state map[string]any, _ Context) *Action {
			t.Fatal("action must not be invoked when condition is false")
			return nil
		},
	})

	e.UpdateState(document.Delta{"navigation.speed": 1.0})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, listener.count())
}

func TestEnginePriorityOrdering(t *testing.T) {
	listener := &recordingListener{}
	e := NewEngine(WithActionsListener(listener), WithDebounceInterval(10*time.Millisecond), WithDebounceMaxWait(100*time.Millisecond))
	e.SetSnapshotSource(func() map[string]any { return map[string]any{} })

	mk := func(name string, prio Priority) Rule {
		return Rule{
			Name:      name,
			Priority:  prio,
			DependsOn: []string{"navigation.speed"},
			Condition: func(state map[string]any, _ Context) bool { return true },
			Action: func(state map[string]any, _ Context) *Action {
				return &Action{Kind: ActionNotification, Data: map[string]any{"name": name}}
			},
		}
	}
	e.Register(mk("low", PriorityLow))
	e.Register(mk("high", PriorityHigh))
	e.Register(mk("normal", PriorityNormal))

	e.UpdateState(document.Delta{"navigation.speed": 1.0})

	require.Eventually(t, func() bool { return listener.count() == 1 }, time.Second, 5*time.Millisecond)
	batch := listener.last()
	require.Len(t, batch, 3)
	assert.Equal(t, "high", batch[0].RuleName)
	assert.Equal(t, "normal", batch[1].RuleName)
	assert.Equal(t, "low", batch[2].RuleName)
}

func TestEvaluateRuleRecoversFromPanic(t *testing.T) {
	e := NewEngine()
	rule := Rule{
		Name:      "panicky",
		Condition: func(state map[string]any, _ Context) bool { panic("boom") },
		Action:    func(state map[string]any, _ Context) *Action { return nil },
	}

	var act *Action
	assert.NotPanics(t, func() {
		act = e.evaluateRule(rule, map[string]any{})
	})
	assert.Nil(t, act)
}

func TestEngineSoftCapsLogWarningNotError(t *testing.T) {
	e := NewEngine()
	for i := 0; i < maxRules+2; i++ {
		e.Register(Rule{
			Name:      "rule",
			Condition: func(state map[string]any, _ Context) bool { return false },
			Action:    func(state map[string]any, _ Context) *Action { return nil },
		})
	}
	assert.Len(t, e.rules, maxRules+2, "exceeding the soft cap logs a warning, it does not reject registration")
}

func TestWithMaxRulesOverridesSoftCap(t *testing.T) {
	e := NewEngine(WithMaxRules(1))
	assert.Equal(t, 1, e.maxRules)
}

func TestWithMaxDependenciesOverridesSoftCap(t *testing.T) {
	e := NewEngine(WithMaxDependencies(2))
	assert.Equal(t, 2, e.maxDependencies)
}

func TestWithMaxRulesIgnoresNonPositiveValue(t *testing.T) {
	e := NewEngine(WithMaxRules(0))
	assert.Equal(t, maxRules, e.maxRules)
}
