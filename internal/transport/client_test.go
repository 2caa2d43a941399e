package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasteops/fieldsync/internal/common"
	"github.com/wasteops/fieldsync/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

func TestClient_SubmitSendsIdempotencyKey(t *testing.T) {
	var gotPath, gotKey, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get(common.IdempotencyKeyHeader)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, testLogger())
	err := c.Submit(context.Background(), "container", "key-123", []byte(`{"order":"A-1"}`))
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/operations/container", gotPath)
	assert.Equal(t, "key-123", gotKey)
	assert.JSONEq(t, `{"order":"A-1"}`, gotBody)
}

func TestClient_SubmitRejectedIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, testLogger())
	err := c.Submit(context.Background(), "container", "k", nil)
	require.ErrorIs(t, err, common.ErrTransport)
}

func TestClient_SubmitUnreachableIsTransportError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", testLogger())
	err := c.Submit(context.Background(), "container", "k", nil)
	require.ErrorIs(t, err, common.ErrTransport)
}

func TestClient_BreakerTripsAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, testLogger())
	for i := 0; i < 10; i++ {
		_ = c.Submit(context.Background(), "order", "k", nil)
	}

	// once open, the breaker rejects without reaching the server
	assert.Equal(t, 5, calls)
}

func TestClient_Ping(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/health", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, testLogger())
	require.NoError(t, c.Ping(context.Background()))

	healthy = false
	require.Error(t, c.Ping(context.Background()))
}
