package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func TestSend_OKWithBodyAndToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/bookings" {
			t.Fatalf("path = %s, want /api/bookings", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Fatalf("content-type = %q", got)
		}

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["schoolId"] != "s1" {
			t.Fatalf("unexpected body: %v", body)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"b1","status":"PENDING"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL+"/api/", WithTokenSource(staticToken("secret")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res := client.Send(ctx, http.MethodPost, "/bookings", map[string]string{"schoolId": "s1"})
	require.True(t, res.OK(), "unexpected error: %s", res.Error)
	assert.Equal(t, http.StatusCreated, res.StatusCode)

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, res.Decode(&out))
	assert.Equal(t, "b1", out.ID)
	assert.Equal(t, "PENDING", out.Status)
}

func TestSend_NoTokenNoBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Fatalf("authorization must be absent, got %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) != 0 {
			t.Fatalf("body must be empty, got %q", body)
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, WithTokenSource(staticToken("")))

	res := client.Send(context.Background(), http.MethodGet, "bookings", nil)
	require.True(t, res.OK())
	assert.JSONEq(t, `[]`, string(res.Data))
}

func TestSend_ErrorMessages(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "error field", status: http.StatusConflict, body: `{"error":"Offer no longer available"}`, want: "Offer no longer available"},
		{name: "message field", status: http.StatusNotFound, body: `{"message":"Booking not found"}`, want: "Booking not found"},
		{name: "error wins over message", status: http.StatusBadRequest, body: `{"error":"a","message":"b"}`, want: "a"},
		{name: "non json body", status: http.StatusBadGateway, body: `<html>bad gateway</html>`, want: "Error: 502"},
		{name: "empty body", status: http.StatusInternalServerError, body: ``, want: "Error: 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			res := NewClient(ts.URL).Send(context.Background(), http.MethodGet, "/x", nil)
			assert.False(t, res.OK())
			assert.False(t, res.Transport)
			assert.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, tt.want, res.Error)
		})
	}
}

func TestSend_NoContent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	res := NewClient(ts.URL).Send(context.Background(), http.MethodDelete, "/offers/1", nil)
	require.True(t, res.OK())
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Empty(t, res.Data)

	var v map[string]any
	require.NoError(t, res.Decode(&v))
	assert.Nil(t, v)
}

func TestSend_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	res := NewClient(url).Send(context.Background(), http.MethodGet, "/bookings", nil)
	assert.False(t, res.OK())
	assert.True(t, res.Transport)
	assert.NotEmpty(t, res.Error)
}

func TestSend_ExtraHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-User-Id"); got != "u1" {
			t.Fatalf("X-User-Id = %q, want u1", got)
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	res := NewClient(ts.URL).Send(context.Background(), http.MethodGet, "/invoices", nil, WithHeader("X-User-Id", "u1"))
	assert.True(t, res.OK())
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "http://localhost:8080/api/", want: "http://localhost:8080/api"},
		{in: "localhost:8080/api", want: "http://localhost:8080/api"},
		{in: "  https://api.example.com  ", want: "https://api.example.com"},
		{in: "", want: DefaultBaseURL},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeBaseURL(tt.in))
		})
	}
}

func TestSend_SchemelessBase(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewClient(strings.TrimPrefix(ts.URL, "http://") + "/")
	res := client.Send(context.Background(), http.MethodGet, "ping", nil)
	assert.True(t, res.OK())
}

func TestOptions_HTTPClient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	t.Run("nil client keeps default", func(t *testing.T) {
		c := NewClient(ts.URL, WithHTTPClient(nil), WithTimeout(3*time.Second))
		require.NotNil(t, c.httpClient)
		assert.Equal(t, 3*time.Second, c.httpClient.Timeout)

		res := c.Send(context.Background(), http.MethodGet, "/ping", nil)
		assert.True(t, res.OK())
	})

	t.Run("timeout does not touch caller client", func(t *testing.T) {
		own := &http.Client{Timeout: time.Minute}
		c := NewClient(ts.URL, WithHTTPClient(own), WithTimeout(2*time.Second))

		assert.Equal(t, time.Minute, own.Timeout)
		assert.Equal(t, 2*time.Second, c.httpClient.Timeout)
		assert.NotSame(t, own, c.httpClient)

		res := c.Send(context.Background(), http.MethodGet, "/ping", nil)
		assert.True(t, res.OK())
	})

	t.Run("caller client used as is without timeout", func(t *testing.T) {
		own := &http.Client{Timeout: time.Minute}
		c := NewClient(ts.URL, WithHTTPClient(own))
		assert.Same(t, own, c.httpClient)
	})
}
