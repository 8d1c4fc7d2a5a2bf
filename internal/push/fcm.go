package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	fcmEndpointFormat      = "https://fcm.googleapis.com/v1/projects/%s/messages:send"
	fcmPriority            = "high"
	fcmTTLSeconds          = 3600
	fcmAlertsChannel       = "alerts_high_priority"
)

// FCMProvider delivers push notifications via Firebase Cloud Messaging's
// HTTP v1 API.
type FCMProvider struct {
	projectID string
	endpoint  string
	client    *http.Client
	authorize func(req *http.Request) error
}

var _ Provider = (*FCMProvider)(nil)

// NewFCMProvider creates an FCM provider. authorize attaches the OAuth2
// bearer token derived from the service account key.
func NewFCMProvider(cfg ProviderConfig, authorize func(req *http.Request) error, client *http.Client) *FCMProvider {
	if client == nil {
		client = &http.Client{Timeout: SendTimeout}
	}
	return &FCMProvider{
		projectID: cfg.FCMProjectID,
		endpoint:  fmt.Sprintf(fcmEndpointFormat, cfg.FCMProjectID),
		client:    client,
		authorize: authorize,
	}
}

func (p *FCMProvider) Name() string { return "fcm" }

type fcmAndroidConfig struct {
	Priority     string `json:"priority"`
	TTL          string `json:"ttl"`
	Notification struct {
		ChannelID string `json:"channel_id"`
	} `json:"notification"`
}

type fcmAPNSConfig struct {
	Payload map[string]any `json:"payload"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification map[string]string `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      *fcmAndroidConfig `json:"android,omitempty"`
	APNS         *fcmAPNSConfig    `json:"apns,omitempty"`
}

type fcmEnvelope struct {
	Message fcmMessage `json:"message"`
}

// Send delivers payload to a single FCM registration token: high priority,
// 3600s TTL, channel alerts_high_priority. An apns envelope is attached
// when payload.Data["platform"] is "ios", a key the alert service's push
// fan-out sets for iOS tokens.
func (p *FCMProvider) Send(ctx context.Context, token string, payload Payload) error {
	msg := fcmMessage{
		Token: token,
		Notification: map[string]string{
			"title": payload.Title,
			"body":  payload.Body,
		},
		Data: stringifyData(payload.Data),
		Android: &fcmAndroidConfig{
			Priority: fcmPriority,
			TTL:      fmt.Sprintf("%ds", fcmTTLSeconds),
		},
	}
	msg.Android.Notification.ChannelID = fcmAlertsChannel

	if platform, _ := payload.Data["platform"].(string); platform == string(PlatformIOS) {
		msg.APNS = &fcmAPNSConfig{Payload: map[string]any{
			"aps": map[string]any{"alert": map[string]string{"title": payload.Title, "body": payload.Body}},
		}}
	}

	raw, err := json.Marshal(fcmEnvelope{Message: msg})
	if err != nil {
		return fmt.Errorf("fcm: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("fcm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.authorize != nil {
		if err := p.authorize(req); err != nil {
			return fmt.Errorf("fcm: authorize: %w", err)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: fcm: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return ErrInvalidToken
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: fcm status %d", ErrTransient, resp.StatusCode)
	default:
		return fmt.Errorf("fcm: unexpected status %d", resp.StatusCode)
	}
}

func stringifyData(data map[string]any) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
