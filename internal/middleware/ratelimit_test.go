package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func serve(h http.Handler) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nearest", nil))
	return rec.Code
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

func TestRateLimitBurst(t *testing.T) {
	h := RateLimit(3)(ok)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, serve(h), "request %d", i)
	}
	require.Equal(t, http.StatusTooManyRequests, serve(h))
}

func TestWrapDisabled(t *testing.T) {
	h := Wrap(ok, false, 1)
	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, serve(h))
	}
}

func TestRateLimitZeroQPS(t *testing.T) {
	h := Wrap(ok, true, 0)
	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, serve(h))
	}
}
