package alerts

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rathix/relay/internal/document"
)

// ResolveAlertsByTrigger moves every active, auto-resolvable, unacknowledged
// alert matching trigger into alerts.resolved, then creates one
// resolution-notification alert if at least one was moved.
//
// Known source ambiguity, preserved rather than resolved: an active alert
// the user has already acknowledged is left untouched here, never moved to
// resolved even if its trigger and autoResolvable otherwise match.
func (s *Service) ResolveAlertsByTrigger(ctx context.Context, trigger string, resolution map[string]any) error {
	activeRaw, _ := s.core.Get("alerts.active")
	activeArr, _ := activeRaw.([]any)

	resolvedRaw, _ := s.core.Get("alerts.resolved")
	resolvedArr, _ := resolvedRaw.([]any)

	now := s.clock()
	remaining := make([]any, 0, len(activeArr))
	var moved []any

	for _, raw := range activeArr {
		rec, ok := raw.(map[string]any)
		if !ok {
			remaining = append(remaining, raw)
			continue
		}
		a, err := mapToAlert(rec)
		if err != nil {
			remaining = append(remaining, raw)
			continue
		}
		if a.Trigger != trigger || !a.AutoResolvable || a.Acknowledged {
			remaining = append(remaining, raw)
			continue
		}

		a.Status = StatusResolved
		resolvedAt := now.UTC().Format(time.RFC3339Nano)
		a.ResolvedAt = &resolvedAt
		merged := make(map[string]any, len(resolution)+1)
		for k, v := range resolution {
			merged[k] = v
		}
		merged["autoResolved"] = true
		a.ResolutionData = merged

		movedMap, err := alertToMap(a)
		if err != nil {
			remaining = append(remaining, raw)
			continue
		}
		moved = append(moved, movedMap)
	}

	if len(moved) == 0 {
		return nil
	}

	newResolved := make([]any, 0, len(resolvedArr)+len(moved))
	newResolved = append(newResolved, resolvedArr...)
	newResolved = append(newResolved, moved...)

	ops := []document.Op{
		{Op: "replace", Path: "/alerts/active", Value: remaining},
		{Op: "replace", Path: "/alerts/resolved", Value: newResolved},
	}
	if err := s.core.ApplyPatchTyped(ctx, ops, "alert"); err != nil {
		return err
	}

	_, err := s.CreateAlert(ctx, map[string]any{
		"trigger":        trigger + "_resolved",
		"level":          string(LevelInfo),
		"label":          resolutionLabel(trigger),
		"message":        resolutionMessage(trigger, resolution),
		"autoExpire":     true,
		"expiresIn":      int64(60000),
		"autoResolvable": false,
	})
	return err
}

func resolutionLabel(trigger string) string {
	switch trigger {
	case "critical_range":
		return "Critical Range Restored"
	case "anchor_dragging":
		return "Anchor Holding"
	case "ais_proximity":
		return "Vessel Clear"
	default:
		return "Alert Resolved"
	}
}

func resolutionMessage(trigger string, resolution map[string]any) string {
	switch trigger {
	case "ais_proximity":
		if radius, ok := resolution["radius"].(float64); ok {
			return fmt.Sprintf("No vessels detected within warning radius of %s m.", formatMeters(radius))
		}
		return "No vessels detected within warning radius."
	case "critical_range":
		return "Boat has returned within the critical anchor range."
	case "anchor_dragging":
		return "Anchor is holding within the critical anchor range."
	default:
		return fmt.Sprintf("%s condition has resolved.", trigger)
	}
}

func formatMeters(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
