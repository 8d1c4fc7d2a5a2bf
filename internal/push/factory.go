package push

import (
	"fmt"
	"net/http"
)

// BuildProviders constructs the configured push providers from their YAML/env
// configs. authorizeAPNS and authorizeFCM are injected signing/token-attach
// callbacks, since JWT and OAuth2 credential material is deployment-specific
// and not something this package should embed.
func BuildProviders(configs []ProviderConfig, authorizeAPNS, authorizeFCM func(req *http.Request) error) (map[string]Provider, error) {
	providers := make(map[string]Provider, len(configs))
	for _, cfg := range configs {
		switch cfg.Type {
		case "apns":
			if cfg.APNSBundleID == "" {
				return nil, fmt.Errorf("push provider apns: requires bundle id")
			}
			providers["apns"] = NewAPNSProvider(cfg, authorizeAPNS, nil)
		case "fcm":
			if cfg.FCMProjectID == "" {
				return nil, fmt.Errorf("push provider fcm: requires project id")
			}
			providers["fcm"] = NewFCMProvider(cfg, authorizeFCM, nil)
		case "expo":
			providers["expo"] = NewExpoProvider(nil)
		default:
			return nil, fmt.Errorf("push provider: unknown type %q", cfg.Type)
		}
	}
	return providers, nil
}
