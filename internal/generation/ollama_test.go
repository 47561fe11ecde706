package generation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllama_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		w.Write([]byte(`{"response": "  Grounded answer.  ", "done": true}`))
	}))
	defer srv.Close()

	g := NewOllama(srv.URL, "test-model", time.Second)

	answer, err := g.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Grounded answer.", answer)
}

func TestOllama_ClientTimeoutClassifiesAsTimeout(t *testing.T) {
	// The server outlives the client's own timeout; no context deadline is
	// involved, so the classification must come from the transport error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	g := NewOllama(srv.URL, "test-model", 20*time.Millisecond)

	_, err := g.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestOllama_ContextDeadlineClassifiesAsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	g := NewOllama(srv.URL, "test-model", time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Generate(ctx, "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestOllama_ServerErrorClassifiesAsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewOllama(srv.URL, "test-model", time.Second)

	_, err := g.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOllama_ConnectionRefusedClassifiesAsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	g := NewOllama(srv.URL, "test-model", time.Second)

	_, err := g.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}
