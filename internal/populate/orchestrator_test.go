package populate

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burghandi/commute-cli/internal/cache"
	"github.com/burghandi/commute-cli/internal/ratelimit"
	"github.com/burghandi/commute-cli/internal/registry"
	"github.com/burghandi/commute-cli/pkg/tfl"
)

// fakeJourneys records every lookup and answers from a fixed table.
type fakeJourneys struct {
	mu      sync.Mutex
	calls   int
	answers map[[2]float64]int // keyed by destination coordinate
	fail    map[[2]float64]error
}

func (f *fakeJourneys) Journey(ctx context.Context, from, to tfl.Coord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	key := [2]float64{to.Lat, to.Lon}
	if err, ok := f.fail[key]; ok {
		return 0, err
	}
	if minutes, ok := f.answers[key]; ok {
		return minutes, nil
	}
	return 0, tfl.ErrNoRouteFound
}

func (f *fakeJourneys) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testRegistry() *registry.Registry {
	return registry.New([]registry.Area{
		{ID: "A", Latitude: 0, Longitude: 0},
		{ID: "B", Latitude: 0, Longitude: 1},
		{ID: "C", Latitude: 10, Longitude: 10},
	})
}

func testStore(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "distances.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testOrchestrator(t *testing.T, journeys tfl.Client, store *cache.Cache) *Orchestrator {
	t.Helper()
	return New(ratelimit.New(499, time.Minute), journeys, store, 4)
}

func TestPopulateAll_EnumeratesUnorderedPairsOnce(t *testing.T) {
	t.Parallel()

	reg := testRegistry()
	store := testStore(t)
	journeys := &fakeJourneys{answers: map[[2]float64]int{
		{0, 1}:   10, // A->B
		{10, 10}: 50, // A->C and B->C
	}}
	orch := testOrchestrator(t, journeys, store)

	require.NoError(t, orch.PopulateAll(context.Background(), reg))

	// 3 areas: exactly 3 unordered pairs fetched, 6 directed entries stored.
	assert.Equal(t, 3, journeys.Calls())
	assert.Equal(t, 6, store.Len())

	forward, ok := store.Get("A", "B")
	require.True(t, ok)
	reverse, ok := store.Get("B", "A")
	require.True(t, ok)
	assert.Equal(t, forward, reverse)
}

func TestPopulateAll_SkipsCachedPairsOnRerun(t *testing.T) {
	t.Parallel()

	reg := testRegistry()
	store := testStore(t)
	journeys := &fakeJourneys{answers: map[[2]float64]int{
		{0, 1}:   10,
		{10, 10}: 50,
	}}
	orch := testOrchestrator(t, journeys, store)

	require.NoError(t, orch.PopulateAll(context.Background(), reg))
	require.Equal(t, 3, journeys.Calls())

	// Second run: everything cached, zero external calls.
	require.NoError(t, orch.PopulateAll(context.Background(), reg))
	assert.Equal(t, 3, journeys.Calls())
}

func TestPopulateAll_IndividualFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	reg := testRegistry()
	store := testStore(t)
	journeys := &fakeJourneys{
		answers: map[[2]float64]int{{0, 1}: 10},
		fail:    map[[2]float64]error{{10, 10}: &tfl.UpstreamError{StatusCode: 503, Message: "offline"}},
	}
	orch := testOrchestrator(t, journeys, store)

	require.NoError(t, orch.PopulateAll(context.Background(), reg))

	// The A-B pair still landed despite both *-C pairs failing.
	assert.Equal(t, 2, store.Len())
	assert.True(t, store.Has("A", "B"))
	assert.False(t, store.Has("A", "C"))

	// Failed pairs stay pending; a retry attempts only those.
	journeys.fail = nil
	journeys.answers[[2]float64{10, 10}] = 50
	require.NoError(t, orch.PopulateAll(context.Background(), reg))
	assert.Equal(t, 6, store.Len())
}

func TestPopulateAll_JournalsRun(t *testing.T) {
	t.Parallel()

	reg := testRegistry()
	store := testStore(t)
	journeys := &fakeJourneys{
		answers: map[[2]float64]int{{0, 1}: 10},
		fail:    map[[2]float64]error{{10, 10}: tfl.ErrNoRouteFound},
	}
	orch := testOrchestrator(t, journeys, store)

	require.NoError(t, orch.PopulateAll(context.Background(), reg))

	run, err := store.LastRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, 3, run.Attempted)
	assert.Equal(t, 2, run.Failed)
	require.NotNil(t, run.FinishedAt)
}

func TestRun_OutcomesInJobOrder(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	journeys := &fakeJourneys{
		answers: map[[2]float64]int{{0, 1}: 10},
		fail:    map[[2]float64]error{{10, 10}: tfl.ErrNoRouteFound},
	}
	orch := testOrchestrator(t, journeys, store)

	outcomes, err := orch.Run(context.Background(), []Job{
		{To: tfl.Coord{Lat: 0, Lon: 1}, Label: "B", FromArea: "A", ToArea: "B"},
		{To: tfl.Coord{Lat: 10, Lon: 10}, Label: "C", FromArea: "A", ToArea: "C"},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, "B", outcomes[0].Label)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, 10, outcomes[0].Minutes)

	assert.Equal(t, "C", outcomes[1].Label)
	assert.ErrorIs(t, outcomes[1].Err, tfl.ErrNoRouteFound)

	// The successful pairwise job reached the cache.
	got, ok := store.Get("A", "B")
	require.True(t, ok)
	assert.Equal(t, 10, got)
}

func TestRun_UnlabeledPairSkipsCacheWrite(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	journeys := &fakeJourneys{answers: map[[2]float64]int{{0, 1}: 10}}
	orch := testOrchestrator(t, journeys, store)

	outcomes, err := orch.Run(context.Background(), []Job{
		{To: tfl.Coord{Lat: 0, Lon: 1}, Label: "direct"},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, 10, outcomes[0].Minutes)
	assert.Zero(t, store.Len())
}

func TestPopulatePairs_TargetedFetch(t *testing.T) {
	t.Parallel()

	reg := testRegistry()
	store := testStore(t)
	journeys := &fakeJourneys{answers: map[[2]float64]int{
		{0, 1}:   10,
		{10, 10}: 50,
	}}
	orch := testOrchestrator(t, journeys, store)

	// Pre-cache A-B; only A-C should be fetched.
	require.NoError(t, store.Put("A", "B", 10))

	outcomes, err := orch.PopulatePairs(context.Background(), reg, [][2]string{
		{"A", "B"},
		{"A", "C"},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "C", outcomes[0].Label)
	assert.Equal(t, 1, journeys.Calls())
	assert.True(t, store.Has("A", "C"))
}

func TestPopulatePairs_UnknownArea(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	orch := testOrchestrator(t, &fakeJourneys{}, store)

	_, err := orch.PopulatePairs(context.Background(), testRegistry(), [][2]string{{"A", "ZZ"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown area")
}

func TestRun_ContextCancelled(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	orch := testOrchestrator(t, &fakeJourneys{}, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := orch.Run(ctx, []Job{
		{To: tfl.Coord{Lat: 0, Lon: 1}, Label: "B"},
	})
	require.Error(t, err)
	require.Len(t, outcomes, 1)
}
