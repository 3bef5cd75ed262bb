// Package registry holds the immutable set of administrative areas and
// their centroid coordinates.
package registry

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Area is an administrative sub-region with a fixed centroid.
type Area struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Registry is an immutable mapping from area identifier to centroid,
// loaded once per process.
type Registry struct {
	areas map[string]Area
	ids   []string // sorted
}

// New builds a Registry from a set of areas. Duplicate IDs keep the
// first occurrence.
func New(areas []Area) *Registry {
	m := make(map[string]Area, len(areas))
	for _, a := range areas {
		if _, ok := m[a.ID]; ok {
			continue
		}
		m[a.ID] = a
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &Registry{areas: m, ids: ids}
}

// Get returns the area for an identifier.
func (r *Registry) Get(id string) (Area, bool) {
	a, ok := r.areas[id]
	return a, ok
}

// Has reports whether an identifier is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.areas[id]
	return ok
}

// IDs returns all area identifiers in sorted order. The returned slice
// must not be modified.
func (r *Registry) IDs() []string {
	return r.ids
}

// All returns the areas in sorted-identifier order.
func (r *Registry) All() []Area {
	out := make([]Area, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.areas[id])
	}
	return out
}

// Len returns the number of registered areas.
func (r *Registry) Len() int {
	return len(r.ids)
}

// Load reads a registry snapshot from disk.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read %s", path)
	}

	var areas []Area
	if err := json.Unmarshal(data, &areas); err != nil {
		return nil, eris.Wrapf(err, "registry: parse %s", path)
	}

	reg := New(areas)
	zap.L().Info("loaded area registry", zap.Int("areas", reg.Len()), zap.String("path", path))
	return reg, nil
}

// Save writes the registry snapshot to disk.
func (r *Registry) Save(path string) error {
	data, err := json.MarshalIndent(r.All(), "", "  ")
	if err != nil {
		return eris.Wrap(err, "registry: marshal")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "registry: write %s", path)
	}
	return nil
}
