package alerts

import (
	"context"

	"github.com/rathix/relay/internal/push"
)

// dispatchPush enumerates every registered push token and sends alert to
// each client not currently carrying a live transport connection — those
// clients learn of the new alert via replication instead.
func (s *Service) dispatchPush(ctx context.Context, alert Alert) {
	if s.dispatcher == nil || len(s.providers) == 0 {
		return
	}

	payload := push.Payload{
		Title: alert.Label,
		Body:  alert.Message,
		Data:  mergeAlertData(alert),
	}

	for clientID, tok := range s.tokens.All() {
		if s.isActiveClient(clientID) {
			continue
		}
		provider, ok := push.ResolveProvider(tok.Platform, s.providers)
		if !ok {
			s.logger.Warn("no push provider configured for platform", "client", clientID, "platform", tok.Platform)
			continue
		}
		p := payload
		if tok.Platform == push.PlatformIOS {
			p.Data = make(map[string]any, len(payload.Data)+1)
			for k, v := range payload.Data {
				p.Data[k] = v
			}
			p.Data["platform"] = string(tok.Platform)
		}
		s.dispatcher.Dispatch(ctx, provider, clientID, tok.Token, p, s.tokens.Unregister)
	}
}

// mergeAlertData builds the push payload's data field: the alert's own
// opaque data plus the alertId/alertType/timestamp fields every push
// message carries regardless of alert kind.
func mergeAlertData(alert Alert) map[string]any {
	data := make(map[string]any, len(alert.Data)+3)
	for k, v := range alert.Data {
		data[k] = v
	}
	data["alertId"] = alert.ID
	data["alertType"] = alert.Type
	data["timestamp"] = alert.Timestamp
	return data
}
