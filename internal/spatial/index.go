// Package spatial provides a nearest-neighbor index over area centroids,
// used as a coarse geographic pre-filter before any journey lookups.
package spatial

import (
	"github.com/dhconnelly/rtreego"
	"github.com/rotisserie/eris"

	"github.com/burghandi/commute-cli/internal/registry"
)

// pointExtent is the side length of the degenerate rectangle that stands
// in for a point entry in the tree. Small enough that nearest-neighbor
// ordering is effectively point ordering.
const pointExtent = 1e-9

// Index answers "k nearest areas to a point" over Euclidean distance in
// (lat, lon) space. It is a candidate pre-filter only; journey durations
// decide reachability.
type Index struct {
	tree *rtreego.Rtree
	ids  []string
}

type centroidItem struct {
	rect rtreego.Rect
	id   string
}

func (c *centroidItem) Bounds() rtreego.Rect {
	return c.rect
}

func rtreegoTree() *rtreego.Rtree {
	return rtreego.NewTree(2, 25, 50)
}

func rectAt(lat, lon float64) (rtreego.Rect, error) {
	return rtreego.NewRect(rtreego.Point{lat, lon}, []float64{pointExtent, pointExtent})
}

// Build constructs an index over the registry's centroids. Coordinate
// order is (latitude, longitude) and must match query order.
func Build(reg *registry.Registry) (*Index, error) {
	areas := reg.All()
	idx := &Index{
		tree: rtreegoTree(),
		ids:  make([]string, 0, len(areas)),
	}
	for _, a := range areas {
		rect, err := rectAt(a.Latitude, a.Longitude)
		if err != nil {
			return nil, eris.Wrapf(err, "spatial: rect for area %s", a.ID)
		}
		idx.tree.Insert(&centroidItem{rect: rect, id: a.ID})
		idx.ids = append(idx.ids, a.ID)
	}
	return idx, nil
}

// Nearest returns up to k area identifiers ordered by ascending Euclidean
// distance in (lat, lon) space from the given point.
func (x *Index) Nearest(lat, lon float64, k int) []string {
	if k <= 0 {
		return nil
	}
	if k > len(x.ids) {
		k = len(x.ids)
	}
	hits := x.tree.NearestNeighbors(k, rtreego.Point{lat, lon})
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		item, ok := h.(*centroidItem)
		if !ok || item == nil {
			continue
		}
		out = append(out, item.id)
	}
	return out
}

// Len returns the number of indexed areas.
func (x *Index) Len() int {
	return len(x.ids)
}
