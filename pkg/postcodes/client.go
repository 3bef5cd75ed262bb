// Package postcodes provides a client for an outcode geocoding service
// (postcodes.io style), the source of the area registry.
package postcodes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Outcode is an administrative sub-area identifier with its centroid.
type Outcode struct {
	Code      string  `json:"outcode"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Client looks up outcodes by coordinate.
type Client interface {
	// OutcodesNear returns the outcodes within radius meters of a point.
	OutcodesNear(ctx context.Context, lat, lon float64, radiusMeters int) ([]Outcode, error)

	// ResolveArea returns the identifier of the outcode nearest to a point.
	ResolveArea(ctx context.Context, lat, lon float64) (string, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the requests-per-second pacing for lookups.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an outcode lookup client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://api.postcodes.io",
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// outcodesResponse is the JSON envelope the service returns.
type outcodesResponse struct {
	Status int       `json:"status"`
	Result []Outcode `json:"result"`
}

func (c *httpClient) OutcodesNear(ctx context.Context, lat, lon float64, radiusMeters int) ([]Outcode, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "postcodes: rate limit")
	}

	params := url.Values{
		"lat":    {fmt.Sprintf("%f", lat)},
		"lon":    {fmt.Sprintf("%f", lon)},
		"radius": {fmt.Sprintf("%d", radiusMeters)},
	}
	reqURL := c.baseURL + "/outcodes?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "postcodes: build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "postcodes: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "postcodes: read body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("postcodes: status %d", resp.StatusCode)
	}

	var parsed outcodesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "postcodes: parse response")
	}

	return parsed.Result, nil
}

// ResolveArea returns the nearest outcode's code. The service orders
// results by proximity, so the first result wins.
func (c *httpClient) ResolveArea(ctx context.Context, lat, lon float64) (string, error) {
	// A small radius usually suffices; widen once if the point sits in a
	// sparse spot.
	for _, radius := range []int{400, 2000} {
		outcodes, err := c.OutcodesNear(ctx, lat, lon, radius)
		if err != nil {
			return "", err
		}
		if len(outcodes) > 0 {
			return outcodes[0].Code, nil
		}
	}
	return "", eris.Errorf("postcodes: no outcode near %f,%f", lat, lon)
}
