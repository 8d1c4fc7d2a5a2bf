package push

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DispatchOption configures a Dispatcher.
type DispatchOption func(*Dispatcher)

// WithMaxAttempts sets the maximum number of delivery attempts (default 3).
func WithMaxAttempts(n int) DispatchOption {
	return func(d *Dispatcher) { d.maxAttempts = n }
}

// WithBaseDelay sets the base exponential-backoff delay (default 1s).
func WithBaseDelay(delay time.Duration) DispatchOption {
	return func(d *Dispatcher) { d.baseDelay = delay }
}

// WithMaxConcurrent sets the dispatch pool's semaphore size (default 32).
func WithMaxConcurrent(n int) DispatchOption {
	return func(d *Dispatcher) { d.sem = make(chan struct{}, n) }
}

// WithDispatchLogger sets the logger.
func WithDispatchLogger(l *slog.Logger) DispatchOption {
	return func(d *Dispatcher) { d.logger = logOrDefault(l) }
}

// Dispatcher sends a Payload to one token via a Provider with retry and
// backoff: a bounded semaphore caps in-flight sends, Dispatch never blocks
// the caller, and failed sends retry with exponential backoff outside of
// any document-writer goroutine.
type Dispatcher struct {
	maxAttempts int
	baseDelay   time.Duration
	sem         chan struct{}
	logger      *slog.Logger
}

// NewDispatcher creates a push dispatcher with default settings.
func NewDispatcher(opts ...DispatchOption) *Dispatcher {
	d := &Dispatcher{
		maxAttempts: 3,
		baseDelay:   1 * time.Second,
		sem:         make(chan struct{}, 32),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends a payload to a single token asynchronously; it never
// blocks the caller. If the dispatch pool is saturated, the send is
// dropped and logged rather than queued.
func (d *Dispatcher) Dispatch(ctx context.Context, provider Provider, clientID, token string, p Payload, onInvalidToken func(clientID string)) {
	select {
	case d.sem <- struct{}{}:
		go func() {
			defer func() { <-d.sem }()
			d.send(ctx, provider, clientID, token, p, onInvalidToken)
		}()
	default:
		d.logger.Warn("push send dropped: dispatch pool full", "provider", provider.Name(), "client", clientID)
	}
}

func (d *Dispatcher) send(ctx context.Context, provider Provider, clientID, token string, p Payload, onInvalidToken func(clientID string)) {
	sendCtx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()

	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		err := provider.Send(sendCtx, token, p)
		if err == nil {
			return
		}
		if isInvalidToken(err) {
			d.logger.Info("push token invalid, removing", "provider", provider.Name(), "client", clientID)
			if onInvalidToken != nil {
				onInvalidToken(clientID)
			}
			return
		}
		d.logger.Warn("push send failed", "provider", provider.Name(), "client", clientID, "attempt", attempt+1, "error", err)

		if sendCtx.Err() != nil {
			// Cancelled sends do not retry.
			return
		}
		if attempt < d.maxAttempts-1 {
			delay := d.baseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-sendCtx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
	d.logger.Warn("push send exhausted retries", "provider", provider.Name(), "client", clientID, "attempts", d.maxAttempts)
}

func isInvalidToken(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}
