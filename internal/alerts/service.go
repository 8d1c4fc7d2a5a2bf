package alerts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rathix/relay/internal/document"
	"github.com/rathix/relay/internal/push"
	"github.com/rathix/relay/internal/rules"
)

// Core is the subset of document.Core the Alert Service depends on. The
// service calls back into it only through the same patch API external
// producers use — document.Core never imports this package, so no cyclic
// reference exists between the two.
type Core interface {
	ApplyPatchTyped(ctx context.Context, ops []document.Op, updateType string) error
	Get(path string) (any, bool)
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = logOrDefault(l) }
}

// WithClock overrides the time source (tests only).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) { s.clock = fn }
}

// WithDispatcher overrides the push dispatcher used for fan-out.
func WithDispatcher(d *push.Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// Service owns the active/resolved alert lifecycle and push fan-out,
// composed the way notify.Engine holds a StateSource and a RetryDispatcher
// rather than the Core reaching into it.
type Service struct {
	core       Core
	tokens     *push.TokenStore
	providers  map[string]push.Provider
	dispatcher *push.Dispatcher
	logger     *slog.Logger
	clock      func() time.Time

	mu            sync.Mutex
	activeClients map[string]struct{}
}

// NewService creates an Alert Service wired to core for patch submission,
// tokens for push-destination lookup, and providers for outbound sends.
func NewService(core Core, tokens *push.TokenStore, providers map[string]push.Provider, opts ...Option) *Service {
	s := &Service{
		core:          core,
		tokens:        tokens,
		providers:     providers,
		dispatcher:    push.NewDispatcher(),
		logger:        slog.Default(),
		clock:         time.Now,
		activeClients: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ rules.ActionsListener = (*Service)(nil)

func logOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// RegisterPushToken stores or updates a client's push destination.
func (s *Service) RegisterPushToken(clientID string, platform push.Platform, token, deviceID string) push.Token {
	return s.tokens.Register(clientID, platform, token, deviceID)
}

// UnregisterPushToken removes a client's push destination.
func (s *Service) UnregisterPushToken(clientID string) {
	s.tokens.Unregister(clientID)
}

// SetClientActive marks clientID as carrying a live transport connection: it
// learns of new alerts via replication, so push fan-out skips it.
func (s *Service) SetClientActive(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeClients[clientID] = struct{}{}
}

// SetClientInactive reverses SetClientActive.
func (s *Service) SetClientInactive(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeClients, clientID)
}

func (s *Service) isActiveClient(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.activeClients[clientID]
	return ok
}
