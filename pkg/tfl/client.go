// Package tfl provides a client for the TfL journey-planning API, reduced
// to the one question this engine asks: how many minutes of public
// transit between two points.
package tfl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNoRouteFound reports that the planner returned no usable itinerary
// between the requested points.
var ErrNoRouteFound = eris.New("tfl: no route found")

// UpstreamError reports a non-success status or malformed response from
// the routing service.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("tfl: upstream status %d: %s", e.StatusCode, e.Message)
}

// Coord is a latitude/longitude pair.
type Coord struct {
	Lat float64
	Lon float64
}

// Client performs commute-duration lookups. Callers own retry policy;
// the client issues exactly one request per call.
type Client interface {
	// Journey returns the public-transit duration in minutes between two
	// points, rounded to the nearest minute.
	Journey(ctx context.Context, from, to Coord) (int, error)
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

// WithCredentials sets the app_id/app_key query credentials.
func WithCredentials(appID, appKey string) Option {
	return func(c *httpClient) {
		c.appID = appID
		c.appKey = appKey
	}
}

// WithReference fixes the date (YYYYMMDD) and time (HHMM) the journey is
// planned against. A stable weekday-morning arrival keeps durations
// comparable run-to-run.
func WithReference(date, hhmm string) Option {
	return func(c *httpClient) {
		c.date = date
		c.time = hhmm
	}
}

// WithTimeout bounds each request's wall-clock time. Expiry surfaces as
// an upstream error so one stalled request cannot distort the rate
// window's accounting.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	baseURL string
	appID   string
	appKey  string
	date    string
	time    string
	http    *http.Client
}

// NewClient creates a journey client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://api.tfl.gov.uk",
		date:    "20250224",
		time:    "0900",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// journeyResponse is the subset of the JourneyResults document we read.
type journeyResponse struct {
	Journeys []journey `json:"journeys"`
}

type journey struct {
	Duration float64 `json:"duration"`
	Legs     []leg   `json:"legs"`
}

type leg struct {
	Mode mode `json:"mode"`
}

type mode struct {
	ID string `json:"id"`
}

// walkingOnly reports whether every leg of the journey is a walking leg.
func (j journey) walkingOnly() bool {
	if len(j.Legs) == 0 {
		return false
	}
	for _, l := range j.Legs {
		if l.Mode.ID != "walking" {
			return false
		}
	}
	return true
}

func (c *httpClient) Journey(ctx context.Context, from, to Coord) (int, error) {
	reqURL := fmt.Sprintf("%s/Journey/JourneyResults/%f,%f/to/%f,%f",
		c.baseURL, from.Lat, from.Lon, to.Lat, to.Lon)

	params := url.Values{
		"nationalSearch":        {"false"},
		"date":                  {c.date},
		"time":                  {c.time},
		"timeIs":                {"Arriving"},
		"journeyPreference":     {"LeastWalking"},
		"alternativeCycle":      {"false"},
		"walkingOptimization":   {"true"},
		"routeBetweenEntrances": {"false"},
	}
	if c.appID != "" {
		params.Set("app_id", c.appID)
	}
	if c.appKey != "" {
		params.Set("app_key", c.appKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, eris.Wrap(err, "tfl: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &UpstreamError{StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, &UpstreamError{StatusCode: resp.StatusCode, Message: "read body: " + err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return 0, &UpstreamError{StatusCode: resp.StatusCode, Message: msg}
	}

	var result journeyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, &UpstreamError{StatusCode: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}

	return reduce(result.Journeys)
}

// reduce collapses the planner's itinerary options to one duration: a
// leading walking-only option is discarded, the rest are averaged and
// rounded to the nearest minute.
func reduce(journeys []journey) (int, error) {
	if len(journeys) > 0 && journeys[0].walkingOnly() {
		journeys = journeys[1:]
	}
	if len(journeys) == 0 {
		return 0, ErrNoRouteFound
	}

	var sum float64
	for _, j := range journeys {
		sum += j.Duration
	}
	return int(math.Round(sum / float64(len(journeys)))), nil
}
