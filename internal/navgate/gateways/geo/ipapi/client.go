// Package ipapi looks hostnames up with the ip-api.com JSON endpoint.
package ipapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/haukened/navgate/internal/navgate/domain"
)

// DefaultEndpoint is the free ip-api.com JSON endpoint. The hostname is
// appended to it.
const DefaultEndpoint = "http://ip-api.com/json/"

// maxBody caps how much of a response is read.
const maxBody = 64 << 10

// Options configures a Client.
type Options struct {
	// Endpoint is the lookup base URL. Empty uses DefaultEndpoint.
	Endpoint string
	// HTTPClient is used for requests. Nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// Client implements assessor.Provider over HTTP.
type Client struct {
	endpoint string
	http     *http.Client
}

// New returns a Client for opts.
func New(opts Options) *Client {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{endpoint: endpoint, http: hc}
}

func (c *Client) Name() string { return "ipapi" }

// Lookup fetches the geolocation of hostname. A reply with status "fail"
// is reported as domain.ErrLookupFailed.
func (c *Client) Lookup(ctx context.Context, hostname string) (domain.GeoInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+url.PathEscape(hostname), nil)
	if err != nil {
		return domain.GeoInfo{}, fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.GeoInfo{}, fmt.Errorf("requesting %s: %w", hostname, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.GeoInfo{}, fmt.Errorf("%w: unexpected status %d", domain.ErrLookupFailed, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return domain.GeoInfo{}, fmt.Errorf("reading response: %w", err)
	}
	return parse(body)
}

func parse(body []byte) (domain.GeoInfo, error) {
	if !gjson.ValidBytes(body) {
		return domain.GeoInfo{}, fmt.Errorf("%w: response is not valid json", domain.ErrLookupFailed)
	}
	res := gjson.ParseBytes(body)
	if !res.IsObject() {
		return domain.GeoInfo{}, fmt.Errorf("%w: response is not an object", domain.ErrLookupFailed)
	}
	if res.Get("status").String() == "fail" {
		return domain.GeoInfo{}, fmt.Errorf("%w: %s", domain.ErrLookupFailed, res.Get("message").String())
	}
	return domain.GeoInfo{
		Country:     res.Get("country").String(),
		CountryCode: res.Get("countryCode").String(),
		Region:      res.Get("regionName").String(),
		City:        res.Get("city").String(),
		IP:          res.Get("query").String(),
		ISP:         res.Get("isp").String(),
	}, nil
}
