package spatial

import (
	"encoding/gob"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/burghandi/commute-cli/internal/registry"
)

// snapshotVersion tags the on-disk format. Bump on layout changes so old
// files are rebuilt instead of misread.
const snapshotVersion = 1

// ErrStaleIndex reports that a persisted index snapshot no longer matches
// the current area registry and must be rebuilt.
var ErrStaleIndex = eris.New("spatial: stale index snapshot")

// snapshot is the serializable form of an Index. Points are stored in
// (latitude, longitude) order, 1:1 with IDs.
type snapshot struct {
	Version int
	Count   int
	IDs     []string
	Points  [][2]float64
}

// Save persists the index's point set to disk.
func (x *Index) Save(path string, reg *registry.Registry) error {
	snap := snapshot{
		Version: snapshotVersion,
		Count:   len(x.ids),
		IDs:     x.ids,
		Points:  make([][2]float64, 0, len(x.ids)),
	}
	for _, id := range x.ids {
		a, ok := reg.Get(id)
		if !ok {
			return eris.Errorf("spatial: indexed area %s missing from registry", id)
		}
		snap.Points = append(snap.Points, [2]float64{a.Latitude, a.Longitude})
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "spatial: create snapshot %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		return eris.Wrapf(err, "spatial: encode snapshot %s", path)
	}
	return nil
}

// LoadSnapshot restores an index from a persisted snapshot, verifying it
// still matches the registry. A point count disagreement returns
// ErrStaleIndex so callers rebuild rather than silently query a stale
// index.
func LoadSnapshot(path string, reg *registry.Registry) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "spatial: open snapshot %s", path)
	}
	defer f.Close() //nolint:errcheck

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, eris.Wrapf(err, "spatial: decode snapshot %s", path)
	}

	if snap.Version != snapshotVersion {
		return nil, eris.Wrapf(ErrStaleIndex, "format version %d, want %d", snap.Version, snapshotVersion)
	}
	if snap.Count != reg.Len() || len(snap.IDs) != snap.Count || len(snap.Points) != snap.Count {
		return nil, eris.Wrapf(ErrStaleIndex, "snapshot has %d points, registry has %d areas", snap.Count, reg.Len())
	}

	idx := &Index{
		tree: rtreegoTree(),
		ids:  make([]string, 0, snap.Count),
	}
	for i, id := range snap.IDs {
		if !reg.Has(id) {
			return nil, eris.Wrapf(ErrStaleIndex, "snapshot area %s not in registry", id)
		}
		rect, err := rectAt(snap.Points[i][0], snap.Points[i][1])
		if err != nil {
			return nil, eris.Wrapf(err, "spatial: rect for area %s", id)
		}
		idx.tree.Insert(&centroidItem{rect: rect, id: id})
		idx.ids = append(idx.ids, id)
	}
	return idx, nil
}

// LoadOrBuild restores the persisted index when it is fresh, otherwise
// rebuilds from the registry and re-persists. Corrupt or missing snapshot
// files degrade to a rebuild, never a hard failure.
func LoadOrBuild(path string, reg *registry.Registry) (*Index, error) {
	idx, err := LoadSnapshot(path, reg)
	if err == nil {
		zap.L().Debug("loaded spatial index snapshot", zap.String("path", path), zap.Int("areas", idx.Len()))
		return idx, nil
	}

	if eris.Is(err, ErrStaleIndex) {
		zap.L().Info("spatial index snapshot is stale, rebuilding", zap.Error(err))
	} else if !os.IsNotExist(eris.Cause(err)) {
		zap.L().Warn("spatial index snapshot unreadable, rebuilding", zap.Error(err))
	}

	idx, err = Build(reg)
	if err != nil {
		return nil, err
	}
	if saveErr := idx.Save(path, reg); saveErr != nil {
		zap.L().Warn("could not persist spatial index snapshot", zap.Error(saveErr))
	}
	return idx, nil
}
