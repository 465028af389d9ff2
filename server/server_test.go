package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsukikage7/gatekeeper/logger"
)

func TestNewHTTP_NilHandler(t *testing.T) {
	_, err := NewHTTP(nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestHTTPConfig_ApplyDefaults(t *testing.T) {
	cfg := HTTPConfig{Addr: ":9000"}
	cfg.ApplyDefaults()

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.ReadHeaderTimeout)
	assert.Equal(t, 120*time.Second, cfg.IdleTimeout)
}

func TestNewApp_NilLogger(t *testing.T) {
	assert.Panics(t, func() { NewApp() })
}

func TestApp_RunAndStop(t *testing.T) {
	srv, err := NewHTTP(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}), WithAddr("127.0.0.1:0"))
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	record := func(name string) CleanupFunc {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	app := NewApp(
		WithLogger(logger.NewNop()),
		WithGracefulTimeout(time.Second),
		WithCleanup("cache", record("cache"), 20),
		WithCleanup("janitor", record("janitor"), 0),
		WithCleanup("broken", func(context.Context) error { return errors.New("boom") }, 10),
	)
	app.Use(srv)

	done := make(chan error, 1)
	go func() { done <- app.Run() }()

	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("服务器未就绪")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	app.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("应用未退出")
	}

	assert.Equal(t, []string{"janitor", "cache"}, order)
	assert.Error(t, app.Context().Err())
}

func TestApp_StartFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv, err := NewHTTP(http.NotFoundHandler(), WithAddr(ln.Addr().String()))
	require.NoError(t, err)

	app := NewApp(WithLogger(logger.NewNop()), WithGracefulTimeout(time.Second))
	app.Use(srv)

	assert.Error(t, app.Run())
}
