package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("project_id"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		switch r.URL.Path {
		case "/echo":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "desc", r.URL.Query().Get("order"))
			var in map[string]int
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			json.NewEncoder(w).Encode(map[string]int{"n": in["n"] + 1})
		default:
			w.WriteHeader(http.StatusTeapot)
			w.Write([]byte(`{"error":"short and stout"}`))
		}
	}))
	defer srv.Close()

	header := http.Header{}
	header.Set("project_id", "secret")
	c := New(srv.URL+"/", header, 0)

	var out map[string]int
	err := c.Do(context.Background(), http.MethodPost, "/echo", url.Values{"order": {"desc"}}, map[string]int{"n": 1}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, out["n"])

	err = c.Do(context.Background(), http.MethodGet, "/missing", nil, nil, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTeapot, se.StatusCode)
	assert.JSONEq(t, `{"error":"short and stout"}`, string(se.Body))
}

func TestThrottle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := New(srv.URL, nil, 50*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, c.Do(ctx, http.MethodGet, "/", nil, nil, nil))
	require.NoError(t, c.Do(ctx, http.MethodGet, "/", nil, nil, nil))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// a cancelled context does not wait out the delay
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, c.Do(cancelled, http.MethodGet, "/", nil, nil, nil), context.Canceled)
}
