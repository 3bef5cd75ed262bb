package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burghandi/commute-cli/internal/cache"
	"github.com/burghandi/commute-cli/internal/commute"
	"github.com/burghandi/commute-cli/internal/ratelimit"
	"github.com/burghandi/commute-cli/internal/registry"
	"github.com/burghandi/commute-cli/internal/spatial"
	"github.com/burghandi/commute-cli/pkg/postcodes"
	"github.com/burghandi/commute-cli/pkg/tfl"
)

type stubJourneys struct {
	minutes int
	err     error
}

func (s *stubJourneys) Journey(ctx context.Context, from, to tfl.Coord) (int, error) {
	return s.minutes, s.err
}

type stubPostcodes struct {
	area string
	err  error
}

func (s *stubPostcodes) OutcodesNear(ctx context.Context, lat, lon float64, radius int) ([]postcodes.Outcode, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []postcodes.Outcode{{Code: s.area, Latitude: lat, Longitude: lon}}, nil
}

func (s *stubPostcodes) ResolveArea(ctx context.Context, lat, lon float64) (string, error) {
	return s.area, s.err
}

func testEnv(t *testing.T, journeys tfl.Client, resolver postcodes.Client) *engineEnv {
	t.Helper()

	reg := registry.New([]registry.Area{
		{ID: "BR1", Latitude: 51.406, Longitude: 0.015},
		{ID: "SE9", Latitude: 51.448, Longitude: 0.054},
	})
	idx, err := spatial.Build(reg)
	require.NoError(t, err)

	store, err := cache.Open(filepath.Join(t.TempDir(), "distances.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	limiter := ratelimit.New(499, time.Minute)
	return &engineEnv{
		Registry:  reg,
		Index:     idx,
		Cache:     store,
		Journeys:  journeys,
		Limiter:   limiter,
		Filter:    commute.NewService(reg, idx, store, journeys, limiter, commute.DefaultHeuristic()),
		Postcodes: resolver,
	}
}

func postFilter(t *testing.T, env *engineEnv, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/filter", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handleFilter(env, rec, req)
	return rec
}

func TestHandleFilterSuccess(t *testing.T) {
	env := testEnv(t, &stubJourneys{minutes: 25}, &stubPostcodes{area: "BR1"})

	rec := postFilter(t, env, map[string]any{
		"latitude":        51.406,
		"longitude":       0.015,
		"area":            "BR1",
		"max_travel_time": 30,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		WorkplaceArea string         `json:"workplace_area"`
		Areas         map[string]int `json:"areas"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "BR1", resp.WorkplaceArea)
	assert.Equal(t, map[string]int{"BR1": 25, "SE9": 25}, resp.Areas)
}

func TestHandleFilterResolvesAreaWhenOmitted(t *testing.T) {
	env := testEnv(t, &stubJourneys{minutes: 25}, &stubPostcodes{area: "SE9"})

	rec := postFilter(t, env, map[string]any{
		"latitude":        51.448,
		"longitude":       0.054,
		"max_travel_time": 30,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"workplace_area":"SE9"`)
}

func TestHandleFilterAreaResolutionFailure(t *testing.T) {
	env := testEnv(t, &stubJourneys{minutes: 25}, &stubPostcodes{err: eris.New("no outcode near 0.000000,0.000000")})

	rec := postFilter(t, env, map[string]any{
		"latitude":        0.0,
		"longitude":       0.0,
		"max_travel_time": 30,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "could not resolve workplace area")
}

func TestHandleFilterMissingCoordinates(t *testing.T) {
	env := testEnv(t, &stubJourneys{minutes: 25}, &stubPostcodes{area: "BR1"})

	rec := postFilter(t, env, map[string]any{"max_travel_time": 30})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing required parameters: latitude and longitude")
}

func TestHandleFilterMissingBudget(t *testing.T) {
	env := testEnv(t, &stubJourneys{minutes: 25}, &stubPostcodes{area: "BR1"})

	rec := postFilter(t, env, map[string]any{
		"latitude":  51.406,
		"longitude": 0.015,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing required parameter: max_travel_time")
}

func TestHandleFilterInvalidBody(t *testing.T) {
	env := testEnv(t, &stubJourneys{minutes: 25}, &stubPostcodes{area: "BR1"})

	req := httptest.NewRequest(http.MethodPost, "/filter", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handleFilter(env, rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")
}

func TestHandleFilterUnsupportedMode(t *testing.T) {
	env := testEnv(t, &stubJourneys{minutes: 25}, &stubPostcodes{area: "BR1"})

	rec := postFilter(t, env, map[string]any{
		"latitude":        51.406,
		"longitude":       0.015,
		"area":            "BR1",
		"max_travel_time": 30,
		"mode":            "driving",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported transport mode")
}
