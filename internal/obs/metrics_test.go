package obs

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutePattern(t *testing.T) {
	var seen string
	r := chi.NewRouter()
	r.Get("/api/posts/{id}", func(w http.ResponseWriter, r *http.Request) {
		seen = RoutePattern(r)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/posts/01HZX", nil))
	assert.Equal(t, "/api/posts/{id}", seen)

	assert.Equal(t, "unmatched", RoutePattern(httptest.NewRequest(http.MethodGet, "/x", nil)))
}

func TestCtxAddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	Init(LogConfig{Level: "debug", Output: &buf})
	t.Cleanup(func() { Init(LogConfig{}) })

	ctx := WithCorrelationID(context.Background(), "corr-1")
	Ctx(ctx).Info().Str("k", "v").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "corr-1", entry["correlation_id"])
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(LogConfig{Level: "warn", Output: &buf})
	t.Cleanup(func() { Init(LogConfig{}) })

	Logger().Info().Msg("dropped")
	assert.Zero(t, buf.Len())
	Logger().Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}
