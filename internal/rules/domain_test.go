package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineMetersZeroForSamePoint(t *testing.T) {
	assert.InDelta(t, 0, haversineMeters(37.8, -122.4, 37.8, -122.4), 1e-6)
}

func TestHaversineMetersKnownDistance(t *testing.T) {
	// Roughly 1 degree of latitude is ~111,195m near the equator.
	d := haversineMeters(0, 0, 1, 0)
	assert.InDelta(t, 111195, d, 500)
}

func anchoredState(boatLat, boatLon, dropLat, dropLon, anchorLat, anchorLon, criticalRadius float64) map[string]any {
	return map[string]any{
		"navigation": map[string]any{
			"position": map[string]any{"latitude": boatLat, "longitude": boatLon},
		},
		"anchor": map[string]any{
			"anchorDeployed":     true,
			"anchorDropLocation": map[string]any{"latitude": dropLat, "longitude": dropLon},
			"anchorLocation":     map[string]any{"latitude": anchorLat, "longitude": anchorLon},
			"criticalRange":      map[string]any{"radius": criticalRadius},
			"warningRange":       map[string]any{"radius": 500.0},
		},
		"alerts": map[string]any{"active": []any{}},
	}
}

func TestCriticalRangeRuleLatchesBeforeFiring(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	rule := NewCriticalRangeRule(clock)

	state := anchoredState(0.01, 0, 0, 0, 0, 0, 500) // ~1113m from drop point, beyond 500m critical range

	require.False(t, rule.Condition(state, Context{State: state}), "must not fire before the hold duration elapses")

	now = now.Add(latchHoldDuration)
	assert.True(t, rule.Condition(state, Context{State: state}), "fires once the condition has held for the latch duration")
}

func TestCriticalRangeRuleClearsLatchWhenConditionGoesFalse(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	rule := NewCriticalRangeRule(clock)

	far := anchoredState(0.01, 0, 0, 0, 0, 0, 500)
	rule.Condition(far, Context{State: far}) // starts the latch

	now = now.Add(5 * time.Second)
	near := anchoredState(0, 0, 0, 0, 0, 0, 500)
	assert.False(t, rule.Condition(near, Context{State: near}), "condition going false clears the latch")

	now = now.Add(latchHoldDuration)
	assert.False(t, rule.Condition(far, Context{State: far}), "latch must restart, not resume, after clearing")
}

func TestCriticalRangeRuleSkipsWhenActiveUnacknowledgedAlertExists(t *testing.T) {
	now := time.Now()
	rule := NewCriticalRangeRule(func() time.Time { return now })

	state := anchoredState(0.01, 0, 0, 0, 0, 0, 500)
	state["alerts"] = map[string]any{
		"active": []any{map[string]any{"trigger": "critical_range", "acknowledged": false}},
	}
	now = now.Add(latchHoldDuration)
	assert.False(t, rule.Condition(state, Context{State: state}))
}

func TestCriticalRangeActionMessageIncludesLiveDistanceAndConfiguredRange(t *testing.T) {
	now := time.Now()
	rule := NewCriticalRangeRule(func() time.Time { return now })

	// ~30m north of the drop point, against a 20m critical range.
	degreesFor30m := 30.0 / 111195.0
	state := anchoredState(degreesFor30m, 0, 0, 0, 0, 0, 20)

	rule.Condition(state, Context{State: state}) // starts the latch
	now = now.Add(latchHoldDuration)
	assert.True(t, rule.Condition(state, Context{State: state}))
	action := rule.Action(state, Context{State: state})
	require.NotNil(t, action)
	message, _ := action.Data["message"].(string)
	assert.Contains(t, message, "30 m")
	assert.Contains(t, message, "20 m")
}

func TestAnchorDraggingActionMessageIncludesDriftDistance(t *testing.T) {
	now := time.Now()
	rule := NewAnchorDraggingRule(func() time.Time { return now })

	degreesFor30m := 30.0 / 111195.0
	// Anchor itself has dragged ~10m from the drop point.
	degreesFor10m := 10.0 / 111195.0
	state := anchoredState(degreesFor30m, 0, 0, 0, degreesFor10m, 0, 20)

	rule.Condition(state, Context{State: state}) // starts the latch
	now = now.Add(latchHoldDuration)
	assert.True(t, rule.Condition(state, Context{State: state}))
	action := rule.Action(state, Context{State: state})
	require.NotNil(t, action)
	message, _ := action.Data["message"].(string)
	assert.Contains(t, message, "10 m")
}

func TestAnchorDraggingRuleRequiresBothConditions(t *testing.T) {
	now := time.Now()
	rule := NewAnchorDraggingRule(func() time.Time { return now })

	// Beyond critical range, but anchor hasn't drifted from its drop point.
	state := anchoredState(0.01, 0, 0, 0, 0, 0, 500)
	now = now.Add(latchHoldDuration)
	assert.False(t, rule.Condition(state, Context{State: state}), "anchor location equals drop location: no drag")

	// Now also drift the anchor location itself.
	dragging := anchoredState(0.01, 0, 0, 0, 0.001, 0, 500)
	fresh := NewAnchorDraggingRule(func() time.Time { return now })
	fresh.Condition(dragging, Context{State: dragging})
	now = now.Add(latchHoldDuration)
	assert.True(t, fresh.Condition(dragging, Context{State: dragging}))
}

func TestCriticalRangeResolutionFiresWhenBackInRangeAndAlertActive(t *testing.T) {
	rule := NewCriticalRangeResolutionRule()
	state := anchoredState(0, 0, 0, 0, 0, 0, 500) // boat at drop point, well within range
	state["alerts"] = map[string]any{
		"active": []any{map[string]any{"trigger": "critical_range", "acknowledged": false, "autoResolvable": true}},
	}
	assert.True(t, rule.Condition(state, Context{State: state}))

	action := rule.Action(state, Context{State: state})
	require.NotNil(t, action)
	assert.Equal(t, ActionResolveAlert, action.Kind)
	assert.Equal(t, "critical_range", action.Trigger)
}

func TestCriticalRangeResolutionDoesNotFireWithoutActiveAlert(t *testing.T) {
	rule := NewCriticalRangeResolutionRule()
	state := anchoredState(0, 0, 0, 0, 0, 0, 500)
	assert.False(t, rule.Condition(state, Context{State: state}), "nothing to resolve if no alert is active")
}

func TestCriticalRangeResolutionDoesNotFireWhileStillOutOfRange(t *testing.T) {
	rule := NewCriticalRangeResolutionRule()
	state := anchoredState(0.01, 0, 0, 0, 0, 0, 500) // ~1113m from drop, beyond 500m critical range
	state["alerts"] = map[string]any{
		"active": []any{map[string]any{"trigger": "critical_range", "acknowledged": false, "autoResolvable": true}},
	}
	assert.False(t, rule.Condition(state, Context{State: state}))
}

func TestAnchorDraggingResolutionFiresWhenNoLongerDraggingAndAlertActive(t *testing.T) {
	rule := NewAnchorDraggingResolutionRule()
	state := anchoredState(0, 0, 0, 0, 0, 0, 500) // anchor at drop point: not dragging
	state["alerts"] = map[string]any{
		"active": []any{map[string]any{"trigger": "anchor_dragging", "acknowledged": false, "autoResolvable": true}},
	}
	assert.True(t, rule.Condition(state, Context{State: state}))

	action := rule.Action(state, Context{State: state})
	require.NotNil(t, action)
	assert.Equal(t, ActionResolveAlert, action.Kind)
	assert.Equal(t, "anchor_dragging", action.Trigger)
}

func TestAnchorDraggingResolutionDoesNotFireWithoutActiveAlert(t *testing.T) {
	rule := NewAnchorDraggingResolutionRule()
	state := anchoredState(0, 0, 0, 0, 0, 0, 500)
	assert.False(t, rule.Condition(state, Context{State: state}))
}

func TestAISProximityRuleFiresWhenTargetInRange(t *testing.T) {
	rule := NewAISProximityRule()
	state := anchoredState(0, 0, 0, 0, 0, 0, 500)
	state["aisTargets"] = map[string]any{
		"target-1": map[string]any{"position": map[string]any{"latitude": 0.001, "longitude": 0}}, // ~111m away, within 500m warning range
	}
	assert.True(t, rule.Condition(state, Context{State: state}))

	action := rule.Action(state, Context{State: state})
	require.NotNil(t, action)
	message, _ := action.Data["message"].(string)
	assert.Contains(t, message, "1 vessel(s)")
}

func TestAISProximityRuleDoesNotFireWhenNoTargetsInRange(t *testing.T) {
	rule := NewAISProximityRule()
	state := anchoredState(0, 0, 0, 0, 0, 0, 500)
	state["aisTargets"] = map[string]any{
		"target-1": map[string]any{"position": map[string]any{"latitude": 5.0, "longitude": 5.0}},
	}
	assert.False(t, rule.Condition(state, Context{State: state}))
}

func TestAISProximityResolutionFiresWhenTargetsClearAndAlertActive(t *testing.T) {
	rule := NewAISProximityResolutionRule()
	state := anchoredState(0, 0, 0, 0, 0, 0, 500)
	state["aisTargets"] = map[string]any{}
	state["alerts"] = map[string]any{
		"active": []any{map[string]any{"trigger": "ais_proximity", "acknowledged": false, "autoResolvable": true}},
	}
	assert.True(t, rule.Condition(state, Context{State: state}))

	action := rule.Action(state, Context{State: state})
	require.NotNil(t, action)
	assert.Equal(t, ActionResolveAlert, action.Kind)
	assert.Equal(t, "ais_proximity", action.Trigger)
	assert.Equal(t, 500.0, action.Resolution["radius"], "resolution carries the warning radius for the templated message")
}

func TestAISProximityResolutionDoesNotFireWithoutActiveAlert(t *testing.T) {
	rule := NewAISProximityResolutionRule()
	state := anchoredState(0, 0, 0, 0, 0, 0, 500)
	state["aisTargets"] = map[string]any{}
	assert.False(t, rule.Condition(state, Context{State: state}), "nothing to resolve if no alert is active")
}
