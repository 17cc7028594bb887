package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/calculate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"a":1}`, string(body))
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`nope`))
	}))
	defer srv.Close()

	res, err := Do(context.Background(), nil, srv.URL+"/v1/", "/calculate", map[string]string{"Authorization": "Bearer k"}, []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, res.StatusCode)
	assert.False(t, res.OK())
	assert.Equal(t, "nope", string(res.Body))
}

func TestDo_BadURL(t *testing.T) {
	_, err := Do(context.Background(), nil, "://bad", "/x", nil, nil)
	assert.Error(t, err)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("dial tcp: refused"), 0))
	assert.False(t, IsRetryable(context.Canceled, 0))
	assert.True(t, IsRetryable(nil, 502))
	assert.True(t, IsRetryable(nil, 429))
	assert.False(t, IsRetryable(nil, 400))
	assert.False(t, IsRetryable(nil, 200))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", Snippet([]byte("  short \n")))
	long := strings.Repeat("x", 300)
	assert.Len(t, Snippet([]byte(long)), 259)

	// "é" is two bytes; byte 256 falls inside the last one that fits.
	accented := "x" + strings.Repeat("é", 200)
	got := Snippet([]byte(accented))
	assert.True(t, utf8.ValidString(got), "snippet split a rune: %q", got)
	assert.Equal(t, "x"+strings.Repeat("é", 127)+"...", got)
}
