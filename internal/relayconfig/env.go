package relayconfig

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/rathix/relay/internal/push"
)

// PushProviderConfigsFromEnv inspects the process environment and returns
// one push.ProviderConfig per provider it finds enough credentials to
// configure. A provider whose required variables are absent is skipped
// rather than failing the whole relay — a boat with only Expo-managed
// clients has no reason to refuse to start because APNS_KEY_ID is unset.
func PushProviderConfigsFromEnv(logger *slog.Logger) []push.ProviderConfig {
	if logger == nil {
		logger = slog.Default()
	}

	var configs []push.ProviderConfig

	if cfg, ok := apnsConfigFromEnv(logger); ok {
		configs = append(configs, cfg)
	}
	if cfg, ok := fcmConfigFromEnv(logger); ok {
		configs = append(configs, cfg)
	}
	if cfg, ok := expoConfigFromEnv(); ok {
		configs = append(configs, cfg)
	}

	return configs
}

func apnsConfigFromEnv(logger *slog.Logger) (push.ProviderConfig, bool) {
	keyID := os.Getenv("APNS_KEY_ID")
	teamID := os.Getenv("APNS_TEAM_ID")
	keyFile := os.Getenv("APNS_KEY_FILE")
	topic := os.Getenv("APNS_TOPIC")
	if keyID == "" || teamID == "" || keyFile == "" || topic == "" {
		return push.ProviderConfig{}, false
	}

	keyData, err := os.ReadFile(keyFile)
	if err != nil {
		logger.Error("APNS_KEY_FILE set but unreadable, skipping APNS provider", "path", keyFile, "error", err)
		return push.ProviderConfig{}, false
	}

	return push.ProviderConfig{
		Type:           "apns",
		APNSKeyID:      keyID,
		APNSTeamID:     teamID,
		APNSBundleID:   topic,
		APNSPrivateKey: keyData,
		APNSProduction: os.Getenv("NODE_ENV") == "production",
	}, true
}

func fcmConfigFromEnv(logger *slog.Logger) (push.ProviderConfig, bool) {
	keyPath := os.Getenv("FCM_SERVER_KEY")
	if keyPath == "" {
		return push.ProviderConfig{}, false
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		logger.Error("FCM_SERVER_KEY set but unreadable, skipping FCM provider", "path", keyPath, "error", err)
		return push.ProviderConfig{}, false
	}

	var account struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(keyData, &account); err != nil || account.ProjectID == "" {
		logger.Error("FCM_SERVER_KEY does not look like a service account file, skipping FCM provider", "path", keyPath)
		return push.ProviderConfig{}, false
	}

	return push.ProviderConfig{
		Type:                 "fcm",
		FCMProjectID:         account.ProjectID,
		FCMServiceAccountKey: keyData,
	}, true
}

func expoConfigFromEnv() (push.ProviderConfig, bool) {
	if os.Getenv("EXPO_ACCESS_TOKEN") == "" {
		return push.ProviderConfig{}, false
	}
	return push.ProviderConfig{Type: "expo"}, true
}

// ExpoAccessToken returns the bearer token Expo-managed clients authenticate
// their push receipts with, or "" if Expo is not configured.
func ExpoAccessToken() string {
	return os.Getenv("EXPO_ACCESS_TOKEN")
}

// ExpoPushURL returns the configured Expo push endpoint, falling back to the
// public default.
func ExpoPushURL() string {
	if url := os.Getenv("EXPO_PUSH_URL"); url != "" {
		return url
	}
	return "https://exp.host/--/api/v2/push/send"
}
