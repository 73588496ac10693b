package ipapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haukened/navgate/internal/navgate/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successBody = `{
  "status": "success",
  "country": "Russia",
  "countryCode": "RU",
  "region": "MOW",
  "regionName": "Moscow",
  "city": "Moscow",
  "query": "203.0.113.7",
  "isp": "Example ISP"
}`

func TestClient_Lookup(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(successBody))
	}))
	defer srv.Close()

	c := New(Options{Endpoint: srv.URL + "/json", HTTPClient: srv.Client()})
	info, err := c.Lookup(context.Background(), "evil.test")
	require.NoError(t, err)
	assert.Equal(t, "/json/evil.test", gotPath)
	assert.Equal(t, domain.GeoInfo{
		Country:     "Russia",
		CountryCode: "RU",
		Region:      "Moscow",
		City:        "Moscow",
		IP:          "203.0.113.7",
		ISP:         "Example ISP",
	}, info)
	assert.Equal(t, "ipapi", c.Name())
}

func TestClient_LookupFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"service fail", http.StatusOK, `{"status":"fail","message":"invalid query","query":"x"}`},
		{"not json", http.StatusOK, `<html>`},
		{"not an object", http.StatusOK, `[1,2]`},
		{"rate limited", http.StatusTooManyRequests, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(Options{Endpoint: srv.URL + "/", HTTPClient: srv.Client()}).Lookup(context.Background(), "x.test")
			assert.ErrorIs(t, err, domain.ErrLookupFailed)
		})
	}
}

func TestClient_LookupHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Options{Endpoint: srv.URL, HTTPClient: srv.Client()}).Lookup(ctx, "slow.test")
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, DefaultEndpoint, c.endpoint)
	assert.Same(t, http.DefaultClient, c.http)
}
