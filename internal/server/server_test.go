package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/bucketnav/internal/server/handlers"
)

func TestServer_Handler(t *testing.T) {
	h := http.HandlerFunc(handlers.Healthz)
	srv := New("127.0.0.1:0", h, nil)
	assert.NotNil(t, srv.Handler())
	assert.Equal(t, "127.0.0.1:0", srv.Addr())
	assert.Equal(t, DefaultShutdownTimeout, srv.ShutdownTimeout)
}

func TestServer_RunAndShutdown(t *testing.T) {
	srv := New("127.0.0.1:0", http.HandlerFunc(handlers.Healthz), nil)
	srv.ShutdownTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, ready) }()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_ListenError(t *testing.T) {
	srv := New("256.0.0.1:bad", http.NotFoundHandler(), nil)
	err := srv.Run(context.Background(), nil)
	assert.Error(t, err)
}
