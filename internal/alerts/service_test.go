package alerts

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rathix/relay/internal/push"
)

func newTestTokenStore(t *testing.T) *push.TokenStore {
	t.Helper()
	store, err := push.NewTokenStore(filepath.Join(t.TempDir(), "tokens.json"), nil)
	require.NoError(t, err)
	return store
}

// fakeProvider is a push.Provider test double recording every send.
type fakeProvider struct {
	name string

	mu    sync.Mutex
	sends []fakeSend
	errFn func(token string) error
}

type fakeSend struct {
	token   string
	payload push.Payload
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Send(_ context.Context, token string, payload push.Payload) error {
	if p.errFn != nil {
		if err := p.errFn(token); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sends = append(p.sends, fakeSend{token: token, payload: payload})
	return nil
}

func (p *fakeProvider) sendCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sends)
}

func (p *fakeProvider) lastSend() fakeSend {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sends[len(p.sends)-1]
}
