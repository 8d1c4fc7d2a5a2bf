package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name    string
	sendFn  func(ctx context.Context, token string, p Payload) error
	calls   int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Send(ctx context.Context, token string, p Payload) error {
	atomic.AddInt32(&f.calls, 1)
	return f.sendFn(ctx, token, p)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met before timeout")
}

func TestDispatcherSendSucceedsOnFirstAttempt(t *testing.T) {
	fp := &fakeProvider{name: "fake", sendFn: func(ctx context.Context, token string, p Payload) error {
		return nil
	}}
	d := NewDispatcher(WithMaxAttempts(3), WithBaseDelay(time.Millisecond))
	d.Dispatch(context.Background(), fp, "client-1", "tok", Payload{Title: "hi"}, nil)

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&fp.calls) == 1 })
}

func TestDispatcherRetriesOnTransientError(t *testing.T) {
	var calls int32
	fp := &fakeProvider{name: "fake", sendFn: func(ctx context.Context, token string, p Payload) error {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return ErrTransient
		}
		return nil
	}}
	d := NewDispatcher(WithMaxAttempts(5), WithBaseDelay(time.Millisecond))
	d.Dispatch(context.Background(), fp, "client-1", "tok", Payload{}, nil)

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&calls) == 3 })
}

func TestDispatcherInvalidTokenStopsRetryingAndCallsBack(t *testing.T) {
	fp := &fakeProvider{name: "fake", sendFn: func(ctx context.Context, token string, p Payload) error {
		return ErrInvalidToken
	}}
	var mu sync.Mutex
	var invalidated string

	d := NewDispatcher(WithMaxAttempts(5), WithBaseDelay(time.Millisecond))
	d.Dispatch(context.Background(), fp, "client-1", "tok", Payload{}, func(clientID string) {
		mu.Lock()
		invalidated = clientID
		mu.Unlock()
	})

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&fp.calls) == 1 })
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "client-1", invalidated)
}

func TestDispatcherExhaustsRetriesAndGivesUp(t *testing.T) {
	fp := &fakeProvider{name: "fake", sendFn: func(ctx context.Context, token string, p Payload) error {
		return ErrTransient
	}}
	d := NewDispatcher(WithMaxAttempts(3), WithBaseDelay(time.Millisecond))
	d.Dispatch(context.Background(), fp, "client-1", "tok", Payload{}, nil)

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&fp.calls) == 3 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&fp.calls))
}

func TestDispatcherDropsWhenPoolSaturated(t *testing.T) {
	block := make(chan struct{})
	fp := &fakeProvider{name: "fake", sendFn: func(ctx context.Context, token string, p Payload) error {
		<-block
		return nil
	}}
	d := NewDispatcher(WithMaxConcurrent(1), WithMaxAttempts(1))

	d.Dispatch(context.Background(), fp, "client-1", "tok-1", Payload{}, nil)
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&fp.calls) == 1 })

	// The pool's single slot is occupied by the blocked send above; this
	// second dispatch must be dropped rather than queued.
	d.Dispatch(context.Background(), fp, "client-2", "tok-2", Payload{}, nil)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fp.calls))

	close(block)
}

func TestIsInvalidTokenMatchesWrappedErrors(t *testing.T) {
	plain := errors.New("wrap")
	assert.False(t, isInvalidToken(plain))
	assert.True(t, isInvalidToken(ErrInvalidToken))

	wrapped := fmt.Errorf("apns: %w", ErrInvalidToken)
	assert.True(t, isInvalidToken(wrapped))
}
