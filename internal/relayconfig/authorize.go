package relayconfig

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/rathix/relay/internal/push"
)

// fcmOAuthScope is the scope required to call FCM's HTTP v1 send endpoint.
const fcmOAuthScope = "https://www.googleapis.com/auth/firebase.messaging"

// apnsTokenLifetime is comfortably under Apple's one-hour provider-token
// expiry; BuildAPNSAuthorizer regenerates and caches the JWT once it ages
// past this.
const apnsTokenLifetime = 50 * time.Minute

// BuildAPNSAuthorizer returns a request-authorizer that attaches Apple's
// ES256-signed provider JWT as a bearer token, built directly from the
// configured key ID/team ID/private key — there is no third-party JWT
// library in the dependency set this pulls from, so the token is signed
// with crypto/ecdsa directly (see DESIGN.md).
func BuildAPNSAuthorizer(cfg push.ProviderConfig) (func(req *http.Request) error, error) {
	key, err := parseECPrivateKey(cfg.APNSPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("relayconfig: apns private key: %w", err)
	}

	var mu sync.Mutex
	var cachedToken string
	var mintedAt time.Time

	return func(req *http.Request) error {
		mu.Lock()
		defer mu.Unlock()
		if cachedToken == "" || time.Since(mintedAt) > apnsTokenLifetime {
			tok, err := mintAPNSJWT(cfg.APNSKeyID, cfg.APNSTeamID, key)
			if err != nil {
				return err
			}
			cachedToken, mintedAt = tok, time.Now()
		}
		req.Header.Set("authorization", "bearer "+cachedToken)
		return nil
	}, nil
}

func parseECPrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	return key, nil
}

func mintAPNSJWT(keyID, teamID string, key *ecdsa.PrivateKey) (string, error) {
	header := map[string]any{"alg": "ES256", "kid": keyID}
	claims := map[string]any{"iss": teamID, "iat": time.Now().Unix()}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(claimsJSON)

	sum := sha256.Sum256([]byte(signingInput))
	r, s, err := ecdsa.Sign(rand.Reader, key, sum[:])
	if err != nil {
		return "", err
	}

	// JWS ES256 requires the raw R||S concatenation (32 bytes each for
	// P-256), not the ASN.1 DER encoding ecdsa.SignASN1 would produce.
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// BuildFCMAuthorizer returns a request-authorizer that attaches an OAuth2
// bearer token derived from the FCM service account key, refreshed
// automatically by oauth2.TokenSource's internal expiry tracking.
func BuildFCMAuthorizer(cfg push.ProviderConfig) (func(req *http.Request) error, error) {
	jwtCfg, err := google.JWTConfigFromJSON(cfg.FCMServiceAccountKey, fcmOAuthScope)
	if err != nil {
		return nil, fmt.Errorf("relayconfig: fcm service account: %w", err)
	}
	src := jwtCfg.TokenSource(context.Background())

	return func(req *http.Request) error {
		tok, err := src.Token()
		if err != nil {
			return fmt.Errorf("relayconfig: fcm token refresh: %w", err)
		}
		tok.SetAuthHeader(req)
		return nil
	}, nil
}
