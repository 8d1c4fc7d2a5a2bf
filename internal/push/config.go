package push

// ProviderConfig describes one configured push provider, parsed from the
// relay's YAML/env configuration by internal/relayconfig.
type ProviderConfig struct {
	Type string // "apns" | "fcm" | "expo"

	// APNS
	APNSKeyID      string
	APNSTeamID     string
	APNSBundleID   string
	APNSPrivateKey []byte
	APNSProduction bool

	// FCM
	FCMProjectID        string
	FCMServiceAccountKey []byte

	// Expo has no required configuration beyond being enabled.
}
