package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	apnsProductionHost = "https://api.push.apple.com"
	apnsSandboxHost    = "https://api.sandbox.push.apple.com"
	apnsExpirySeconds  = 3600
	apnsPriority       = "10"
)

// APNSProvider delivers push notifications via Apple's HTTP/2 token-based
// API. BuildProviders constructs it once, at startup, and it is reused for
// the process lifetime; it is not created lazily on first send.
type APNSProvider struct {
	bundleID string
	host     string
	client   *http.Client
	authorize func(req *http.Request) error
}

var _ Provider = (*APNSProvider)(nil)

// NewAPNSProvider creates an APNS provider. authorize is called on every
// request to attach the provider token (JWT signed with the team/key
// material) — kept as an injected seam so tests can supply a fake signer
// without real Apple credentials.
func NewAPNSProvider(cfg ProviderConfig, authorize func(req *http.Request) error, client *http.Client) *APNSProvider {
	host := apnsSandboxHost
	if cfg.APNSProduction {
		host = apnsProductionHost
	}
	if client == nil {
		client = &http.Client{Timeout: SendTimeout}
	}
	return &APNSProvider{bundleID: cfg.APNSBundleID, host: host, client: client, authorize: authorize}
}

func (p *APNSProvider) Name() string { return "apns" }

type apnsAlert struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

type apnsAPS struct {
	Alert apnsAlert `json:"alert"`
	Sound string    `json:"sound,omitempty"`
	Badge *int      `json:"badge,omitempty"`
}

type apnsPayload struct {
	APS  apnsAPS        `json:"aps"`
	Data map[string]any `json:"-"`
}

func (p apnsPayload) MarshalJSON() ([]byte, error) {
	out := map[string]any{"aps": p.APS}
	for k, v := range p.Data {
		out[k] = v
	}
	return json.Marshal(out)
}

// Send delivers p to a single device token: 3600s expiry, priority 10,
// topic set to the configured bundle id.
func (p *APNSProvider) Send(ctx context.Context, token string, payload Payload) error {
	body := apnsPayload{
		APS: apnsAPS{
			Alert: apnsAlert{Title: payload.Title, Body: payload.Body},
			Sound: payload.Sound,
			Badge: payload.Badge,
		},
		Data: payload.Data,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("apns: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/3/device/%s", p.host, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("apns: create request: %w", err)
	}
	req.Header.Set("apns-topic", p.bundleID)
	req.Header.Set("apns-priority", apnsPriority)
	req.Header.Set("apns-expiration", fmt.Sprintf("%d", apnsExpirySeconds))
	req.Header.Set("Content-Type", "application/json")
	if p.authorize != nil {
		if err := p.authorize(req); err != nil {
			return fmt.Errorf("apns: authorize: %w", err)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: apns: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusBadRequest:
		return ErrInvalidToken
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: apns status %d", ErrTransient, resp.StatusCode)
	default:
		return fmt.Errorf("apns: unexpected status %d", resp.StatusCode)
	}
}
