// Package push dispatches alert notifications to registered mobile/web
// clients across APNS, FCM, and Expo, with a persistent token store and a
// retry-with-backoff dispatch pool.
package push

import (
	"context"
	"errors"
	"time"
)

// ErrTransient indicates a send failed for a reason the caller should
// retry (network error, provider 5xx).
var ErrTransient = errors.New("push: transient send failure")

// ErrInvalidToken indicates the provider rejected the token outright
// ("not registered" / "invalid token"); the caller must remove it from the
// store.
var ErrInvalidToken = errors.New("push: invalid or unregistered token")

// ErrProviderDisabled indicates no provider is configured for a platform.
var ErrProviderDisabled = errors.New("push: provider not configured")

// Platform identifies which push transport a token belongs to.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformExpo    Platform = "expo"
)

// SendTimeout bounds a single provider send.
const SendTimeout = 5 * time.Second

// Payload is the normalized push message handed to a Provider, built from
// an alert record.
type Payload struct {
	Title    string
	Body     string
	Data     map[string]any
	Sound    string
	Badge    *int
	Priority string
}

// Provider sends a Payload to a single token. Implementations wrap a
// specific push transport (APNS, FCM, Expo) behind a uniform Name/Send
// shape.
type Provider interface {
	Name() string
	Send(ctx context.Context, token string, p Payload) error
}

// ResolveProvider resolves the preferred provider for a platform out of a
// configured provider set, applying the fallback table (iOS: APNS then FCM;
// Android: FCM then Expo; Expo-managed: Expo only).
func ResolveProvider(platform Platform, providers map[string]Provider) (Provider, bool) {
	return providerForPlatform(platform, providers)
}

// providerForPlatform resolves the preferred provider for a platform,
// falling back to an alternate transport when the primary one for that
// platform is not configured.
func providerForPlatform(platform Platform, providers map[string]Provider) (Provider, bool) {
	switch platform {
	case PlatformIOS:
		if p, ok := providers["apns"]; ok {
			return p, true
		}
		if p, ok := providers["fcm"]; ok {
			return p, true
		}
	case PlatformAndroid:
		if p, ok := providers["fcm"]; ok {
			return p, true
		}
		if p, ok := providers["expo"]; ok {
			return p, true
		}
	case PlatformExpo:
		if p, ok := providers["expo"]; ok {
			return p, true
		}
	}
	return nil, false
}
