package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavle/tavle/internal/model"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})

	t.Run("generates when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		requestIDMiddleware(inner).ServeHTTP(rec, httptest.NewRequest("GET", "/v1/boards", nil))
		require.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	})

	t.Run("preserves caller-supplied id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/boards", nil)
		req.Header.Set("X-Request-ID", "req-123")
		rec := httptest.NewRecorder()
		requestIDMiddleware(inner).ServeHTTP(rec, req)
		assert.Equal(t, "req-123", seen)
	})
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	securityHeadersMiddleware(inner).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})
	handler := authMiddleware(nil, nil, inner)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/boards", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/boards", nil)
	req.Header.Set("Authorization", "Basic abc")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareSkipsHealth(t *testing.T) {
	ran := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { ran = true })

	rec := httptest.NewRecorder()
	authMiddleware(nil, nil, inner).ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.True(t, ran)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"title":"x","bogus":1}`))
	var dst model.CreateBoardRequest
	err := decodeJSON(httptest.NewRecorder(), req, &dst, 1<<20)
	require.Error(t, err)
}

func TestDecodeJSONEnforcesBodyCap(t *testing.T) {
	body := `{"title":"` + strings.Repeat("a", 100) + `"}`
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))
	var dst model.CreateBoardRequest
	err := decodeJSON(httptest.NewRecorder(), req, &dst, 16)
	require.Error(t, err)

	var maxErr *http.MaxBytesError
	assert.ErrorAs(t, err, &maxErr)
}

func TestWriteResultEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, nil, http.StatusNotFound, "not found")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "not found", env.Error)
	assert.Nil(t, env.Data)
}
