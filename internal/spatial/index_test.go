package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burghandi/commute-cli/internal/registry"
)

func lineRegistry() *registry.Registry {
	// Areas along a line so nearest-neighbor order is unambiguous.
	return registry.New([]registry.Area{
		{ID: "A", Latitude: 0, Longitude: 0},
		{ID: "B", Latitude: 0, Longitude: 1},
		{ID: "C", Latitude: 0, Longitude: 2},
		{ID: "D", Latitude: 0, Longitude: 5},
		{ID: "E", Latitude: 10, Longitude: 10},
	})
}

func TestNearest_OrderedByDistance(t *testing.T) {
	t.Parallel()

	idx, err := Build(lineRegistry())
	require.NoError(t, err)

	got := idx.Nearest(0, 0.1, 3)
	assert.Equal(t, []string{"A", "B", "C"}, got)
}

func TestNearest_KLargerThanSet(t *testing.T) {
	t.Parallel()

	idx, err := Build(lineRegistry())
	require.NoError(t, err)

	got := idx.Nearest(0, 0, 50)
	assert.Len(t, got, 5)
	assert.Equal(t, "A", got[0])
}

func TestNearest_ZeroK(t *testing.T) {
	t.Parallel()

	idx, err := Build(lineRegistry())
	require.NoError(t, err)
	assert.Empty(t, idx.Nearest(0, 0, 0))
}

func TestBuild_EmptyRegistry(t *testing.T) {
	t.Parallel()

	idx, err := Build(registry.New(nil))
	require.NoError(t, err)
	assert.Zero(t, idx.Len())
	assert.Empty(t, idx.Nearest(0, 0, 10))
}

func TestDistanceKm(t *testing.T) {
	t.Parallel()

	// London Bridge to Westminster, roughly 3 km apart.
	km := DistanceKm(51.5079, -0.0877, 51.4995, -0.1248)
	assert.InDelta(t, 2.7, km, 0.5)
	assert.Zero(t, DistanceKm(51.5, 0, 51.5, 0))
}
