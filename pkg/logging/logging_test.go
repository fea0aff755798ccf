package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMiddleware_AssignsRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Replace(zap.New(core))
	t.Cleanup(func() { Replace(zap.NewNop()) })

	var seen string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/entries", nil))

	require.NotEmpty(t, seen)
	require.Equal(t, seen, rr.Header().Get("X-Request-ID"))

	completed := logs.FilterMessage("request completed").All()
	require.Len(t, completed, 1)
	require.EqualValues(t, http.StatusTeapot, completed[0].ContextMap()["status"])
	require.Equal(t, seen, completed[0].ContextMap()["request_id"])
}

func TestMiddleware_KeepsIncomingRequestID(t *testing.T) {
	Replace(zap.NewNop())

	var seen string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, "abc-123", seen)
}

func TestSetLevel_IgnoresGarbage(t *testing.T) {
	SetLevel("warn")
	require.Equal(t, "warn", globalLevel.Level().String())

	SetLevel("loud")
	require.Equal(t, "warn", globalLevel.Level().String())

	SetLevel("info")
}
