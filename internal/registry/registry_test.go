package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAreas() []Area {
	return []Area{
		{ID: "SE9", Latitude: 51.436, Longitude: 0.057},
		{ID: "BR1", Latitude: 51.412, Longitude: 0.021},
		{ID: "DA15", Latitude: 51.426, Longitude: 0.104},
	}
}

func TestNew_SortedIDs(t *testing.T) {
	t.Parallel()

	reg := New(testAreas())
	assert.Equal(t, []string{"BR1", "DA15", "SE9"}, reg.IDs())
	assert.Equal(t, 3, reg.Len())
}

func TestNew_DuplicateKeepsFirst(t *testing.T) {
	t.Parallel()

	reg := New([]Area{
		{ID: "BR1", Latitude: 51.412, Longitude: 0.021},
		{ID: "BR1", Latitude: 0, Longitude: 0},
	})

	require.Equal(t, 1, reg.Len())
	a, ok := reg.Get("BR1")
	require.True(t, ok)
	assert.Equal(t, 51.412, a.Latitude)
}

func TestGet_Unknown(t *testing.T) {
	t.Parallel()

	reg := New(testAreas())
	_, ok := reg.Get("ZZ99")
	assert.False(t, ok)
	assert.False(t, reg.Has("ZZ99"))
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "areas.json")
	reg := New(testAreas())
	require.NoError(t, reg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, reg.IDs(), loaded.IDs())

	a, ok := loaded.Get("SE9")
	require.True(t, ok)
	assert.Equal(t, 51.436, a.Latitude)
	assert.Equal(t, 0.057, a.Longitude)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestLoad_Corrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "areas.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
