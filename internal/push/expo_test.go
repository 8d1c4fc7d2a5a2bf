package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expoServerReturning(t *testing.T, ticket expoTicket) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg expoMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		assert.Equal(t, "high", msg.Priority)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(expoResponse{Data: []expoTicket{ticket}})
	}))
}

func TestExpoSendSuccess(t *testing.T) {
	srv := expoServerReturning(t, expoTicket{Status: "ok"})
	defer srv.Close()

	p := NewExpoProvider(srv.Client())
	p.endpoint = srv.URL

	err := p.Send(context.Background(), "ExponentPushToken[xyz]", Payload{Title: "Alert", Body: "body"})
	require.NoError(t, err)
}

func TestExpoSendInvalidTokenOnDeviceNotRegistered(t *testing.T) {
	ticket := expoTicket{Status: "error"}
	ticket.Details.Error = "DeviceNotRegistered"
	srv := expoServerReturning(t, ticket)
	defer srv.Close()

	p := NewExpoProvider(srv.Client())
	p.endpoint = srv.URL

	err := p.Send(context.Background(), "tok", Payload{})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpoSendTransientOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewExpoProvider(srv.Client())
	p.endpoint = srv.URL

	err := p.Send(context.Background(), "tok", Payload{})
	assert.ErrorIs(t, err, ErrTransient)
}

func TestExpoSendDefaultsSoundWhenUnset(t *testing.T) {
	var captured expoMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(expoResponse{Data: []expoTicket{{Status: "ok"}}})
	}))
	defer srv.Close()

	p := NewExpoProvider(srv.Client())
	p.endpoint = srv.URL

	err := p.Send(context.Background(), "tok", Payload{})
	require.NoError(t, err)
	assert.Equal(t, "default", captured.Sound)
}
