package alerts

import (
	"context"

	"github.com/rathix/relay/internal/rules"
)

// ProcessActions implements rules.ActionsListener: it dispatches each
// CREATE_ALERT / RESOLVE_ALERT action a rule evaluation cycle produced.
// Other action kinds (NOTIFICATION, WEATHER_ALERT, CREW_ALERT,
// SET_SYNC_PROFILE) are not alert-lifecycle actions and are ignored here.
func (s *Service) ProcessActions(actions []rules.Action) {
	ctx := context.Background()
	for _, act := range actions {
		switch act.Kind {
		case rules.ActionCreateAlert:
			if _, err := s.CreateAlert(ctx, act.Data); err != nil {
				s.logger.Error("failed to create alert from rule action", "rule", act.RuleName, "error", err)
			}
		case rules.ActionResolveAlert:
			if err := s.ResolveAlertsByTrigger(ctx, act.Trigger, act.Resolution); err != nil {
				s.logger.Error("failed to resolve alerts by trigger", "rule", act.RuleName, "trigger", act.Trigger, "error", err)
			}
		}
	}
}
