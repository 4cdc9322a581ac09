package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func get(t *testing.T, h http.Handler, path, user string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPerUserLimit(t *testing.T) {
	h := newServer(0.001, 2, "X-User-ID", 0).routes()

	assert.Equal(t, http.StatusOK, get(t, h, "/light", "alice").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/light", "alice").Code)

	rec := get(t, h, "/light", "alice")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "alice", gjson.Get(rec.Body.String(), "user").String())

	assert.Equal(t, http.StatusOK, get(t, h, "/light", "bob").Code, "buckets are per user")
}

func TestAnonymousShareBucket(t *testing.T) {
	h := newServer(0.001, 1, "X-User-ID", 0).routes()
	assert.Equal(t, http.StatusOK, get(t, h, "/light", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, h, "/light", "").Code)
}

func TestHeavyDoesWork(t *testing.T) {
	h := newServer(100, 10, "X-User-ID", 5*time.Millisecond).routes()

	start := time.Now()
	rec := get(t, h, "/heavy", "carol")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
	assert.Equal(t, "heavy", gjson.Get(rec.Body.String(), "class").String())
	assert.Len(t, gjson.Get(rec.Body.String(), "digest").String(), 8)
}

func TestHealthIsNotLimited(t *testing.T) {
	h := newServer(0.001, 1, "X-User-ID", 0).routes()
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(t, h, "/health", "").Code)
	}
}
