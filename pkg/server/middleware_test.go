package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}), RequestID())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-id")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "client-id", seen)
}

func TestRecovery(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}), Recovery(zap.NewNop()))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name    string
		allowed []string
		origin  string
		method  string
		code    int
		header  string
	}{
		{"wildcard preflight", []string{"*"}, "https://a.example", http.MethodOptions, http.StatusNoContent, "*"},
		{"listed origin", []string{"https://a.example"}, "https://a.example", http.MethodPost, http.StatusTeapot, "https://a.example"},
		{"unlisted origin", []string{"https://a.example"}, "https://b.example", http.MethodPost, http.StatusTeapot, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/calculate", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			Chain(next, CORS(tt.allowed)).ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.header, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestResponseWriterFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrap(rec)
	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("x"))
	rw.Flush()

	assert.Equal(t, http.StatusAccepted, rw.statusCode)
	assert.True(t, rec.Flushed)
	assert.Same(t, rw, wrap(rw))
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/calculate", routeLabel("/calculate"))
	assert.Equal(t, "other", routeLabel("/wp-admin"))
}
