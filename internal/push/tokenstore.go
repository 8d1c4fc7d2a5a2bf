package push

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Token is one registered client's push destination.
type Token struct {
	Platform  Platform  `json:"platform"`
	Token     string    `json:"token"`
	DeviceID  string    `json:"deviceId,omitempty"`
	LastActive time.Time `json:"lastActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// tokenEntry is the on-disk pair shape: an array of [clientId, Token],
// not a JSON object, since client IDs are opaque strings that may contain
// characters awkward as object keys across client SDKs.
type tokenEntry struct {
	ClientID string
	Token    Token
}

func (e tokenEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.ClientID, e.Token})
}

func (e *tokenEntry) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &e.ClientID); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &e.Token)
}

const tokenPurgeAge = 30 * 24 * time.Hour

// TokenStore persists clientId -> Token in a JSON file using an atomic
// write-temp-then-rename pattern: write to a sibling .tmp path, fsync,
// rename over the original.
type TokenStore struct {
	mu     sync.Mutex
	path   string
	tokens map[string]Token
	logger *slog.Logger
	clock  func() time.Time
}

// NewTokenStore creates a store backed by path and loads any existing file
// immediately, in the constructor; the file is not read again afterwards.
func NewTokenStore(path string, logger *slog.Logger) (*TokenStore, error) {
	s := &TokenStore{
		path:   path,
		tokens: make(map[string]Token),
		logger: logOrDefault(logger),
		clock:  time.Now,
	}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

func (s *TokenStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var entries []tokenEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	for _, e := range entries {
		s.tokens[e.ClientID] = e.Token
	}
	return nil
}

// Register stores or overwrites a client's token, stamping CreatedAt on
// first registration and UpdatedAt/LastActive always.
func (s *TokenStore) Register(clientID string, platform Platform, token, deviceID string) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	existing, had := s.tokens[clientID]
	t := Token{
		Platform:   platform,
		Token:      token,
		DeviceID:   deviceID,
		LastActive: now,
		UpdatedAt:  now,
		CreatedAt:  now,
	}
	if had {
		t.CreatedAt = existing.CreatedAt
	}
	s.tokens[clientID] = t
	s.saveLocked()
	return t
}

// Unregister removes a client's token.
func (s *TokenStore) Unregister(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, clientID)
	s.saveLocked()
}

// Touch updates a client's lastActive timestamp without altering its token.
func (s *TokenStore) Touch(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[clientID]
	if !ok {
		return
	}
	t.LastActive = s.clock()
	s.tokens[clientID] = t
	s.saveLocked()
}

// All returns a snapshot of every registered clientId -> Token pair.
func (s *TokenStore) All() map[string]Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Token, len(s.tokens))
	for k, v := range s.tokens {
		out[k] = v
	}
	return out
}

// PurgeStale removes tokens whose LastActive is older than the retention
// window, returning the count removed.
func (s *TokenStore) PurgeStale() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock().Add(-tokenPurgeAge)
	removed := 0
	for id, t := range s.tokens {
		if t.LastActive.Before(cutoff) {
			delete(s.tokens, id)
			removed++
		}
	}
	if removed > 0 {
		s.saveLocked()
	}
	return removed
}

// saveLocked persists the token map atomically. Must be called with s.mu
// held. Failures are logged, not propagated — the next mutation retries
// the save naturally.
func (s *TokenStore) saveLocked() {
	entries := make([]tokenEntry, 0, len(s.tokens))
	for id, t := range s.tokens {
		entries = append(entries, tokenEntry{ClientID: id, Token: t})
	}

	data, err := json.Marshal(entries)
	if err != nil {
		s.logger.Error("failed to marshal push token store", "error", err)
		return
	}

	tmpPath := s.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		s.logger.Error("failed to create temp push token file", "error", err)
		return
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		s.logger.Error("failed to write push token file", "error", err)
		return
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		s.logger.Error("failed to sync push token file", "error", err)
		return
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		s.logger.Error("failed to close push token file", "error", err)
		return
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		s.logger.Error("failed to rename push token file into place", "error", err)
	}
}

func logOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
