// Package commute answers the engine's core question: which areas are
// reachable from a workplace point within a travel-time budget.
package commute

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/burghandi/commute-cli/internal/cache"
	"github.com/burghandi/commute-cli/internal/ratelimit"
	"github.com/burghandi/commute-cli/internal/registry"
	"github.com/burghandi/commute-cli/internal/spatial"
	"github.com/burghandi/commute-cli/pkg/tfl"
)

// ModePublicTransport is the only implemented transport mode.
const ModePublicTransport = "public-transport"

// ErrUnsupportedMode reports a transport mode this engine does not model.
var ErrUnsupportedMode = eris.New("commute: unsupported transport mode")

// Heuristic bounds on the spatial pre-filter: generous budgets widen the
// candidate ring. Bounds work, not correctness.
type Heuristic struct {
	NearestWide    int // K when budget >= WideBudgetMins
	NearestNarrow  int // K otherwise
	WideBudgetMins int
}

// DefaultHeuristic mirrors the production candidate bounds.
func DefaultHeuristic() Heuristic {
	return Heuristic{NearestWide: 150, NearestNarrow: 100, WideBudgetMins: 60}
}

// Request is one filtering call.
type Request struct {
	Lat    float64
	Lon    float64
	Area   string // the workplace point's resolved area identifier
	Budget int    // minutes
	Mode   string // only ModePublicTransport is accepted

	// Candidates restricts the area set considered; nil means every
	// registered area.
	Candidates []string
}

// Service filters areas by commute duration using the spatial pre-filter
// and the persisted distance cache, touching the external planner only on
// cache misses.
type Service struct {
	reg       *registry.Registry
	index     *spatial.Index
	store     *cache.Cache
	journeys  tfl.Client
	limiter   *ratelimit.Limiter
	heuristic Heuristic
}

// NewService wires a filter service over explicit owned dependencies.
func NewService(reg *registry.Registry, index *spatial.Index, store *cache.Cache, journeys tfl.Client, limiter *ratelimit.Limiter, h Heuristic) *Service {
	if h.NearestWide <= 0 {
		h = DefaultHeuristic()
	}
	return &Service{
		reg:       reg,
		index:     index,
		store:     store,
		journeys:  journeys,
		limiter:   limiter,
		heuristic: h,
	}
}

// Filter returns the areas reachable from the workplace point within the
// budget, mapped to their commute duration in minutes. A duration equal
// to the budget is reachable. Per-candidate fetch failures exclude that
// candidate only; an empty result is a valid outcome, not an error.
func (s *Service) Filter(ctx context.Context, req Request) (map[string]int, error) {
	if req.Mode != "" && req.Mode != ModePublicTransport {
		return nil, eris.Wrapf(ErrUnsupportedMode, "%q", req.Mode)
	}
	if req.Budget < 0 {
		return nil, eris.Errorf("commute: negative budget %d", req.Budget)
	}

	workplace, ok := s.reg.Get(req.Area)
	if !ok {
		return nil, eris.Errorf("commute: unknown workplace area %q", req.Area)
	}

	log := zap.L().With(
		zap.String("workplace_area", req.Area),
		zap.Int("budget_mins", req.Budget),
	)

	candidates := s.candidates(req)
	log.Debug("candidate set resolved", zap.Int("candidates", len(candidates)))

	result := make(map[string]int)
	for _, id := range candidates {
		area, ok := s.reg.Get(id)
		if !ok {
			continue
		}

		var minutes int
		var err error
		if id == req.Area {
			// The workplace point is not a registered area; its own
			// district is measured from the exact point to the centroid.
			minutes, err = s.fetchDirect(ctx,
				tfl.Coord{Lat: req.Lat, Lon: req.Lon},
				tfl.Coord{Lat: area.Latitude, Lon: area.Longitude},
			)
		} else {
			minutes, err = s.lookup(ctx, req.Area, id, workplace, area)
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("candidate excluded", zap.String("area", id), zap.Error(err))
			continue
		}

		if minutes <= req.Budget {
			result[id] = minutes
		}
	}

	log.Info("filter complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("reachable", len(result)),
	)
	return result, nil
}

// candidates intersects the requested area set with the K nearest areas
// to the workplace point.
func (s *Service) candidates(req Request) []string {
	k := s.heuristic.NearestNarrow
	if req.Budget >= s.heuristic.WideBudgetMins {
		k = s.heuristic.NearestWide
	}

	nearest := s.index.Nearest(req.Lat, req.Lon, k)
	if req.Candidates == nil {
		return nearest
	}

	wanted := make(map[string]struct{}, len(req.Candidates))
	for _, id := range req.Candidates {
		wanted[id] = struct{}{}
	}

	out := make([]string, 0, len(nearest))
	for _, id := range nearest {
		if _, ok := wanted[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// lookup consults the cache for a pair, falling back to a single-shot
// fetch on a miss. The miss path is rare once the cache is warm but it is
// a first-class branch: the fetch passes through the shared limiter and
// its result is written back so the next request hits.
func (s *Service) lookup(ctx context.Context, fromID, toID string, from, to registry.Area) (int, error) {
	if minutes, ok := s.store.Get(fromID, toID); ok {
		return minutes, nil
	}

	zap.L().Debug("distance cache miss, fetching",
		zap.String("from", fromID),
		zap.String("to", toID),
	)

	minutes, err := s.fetchDirect(ctx,
		tfl.Coord{Lat: from.Latitude, Lon: from.Longitude},
		tfl.Coord{Lat: to.Latitude, Lon: to.Longitude},
	)
	if err != nil {
		return 0, err
	}

	if putErr := s.store.Put(fromID, toID, minutes); putErr != nil {
		zap.L().Error("cache write failed",
			zap.String("from", fromID),
			zap.String("to", toID),
			zap.Error(putErr),
		)
	}
	return minutes, nil
}

// fetchDirect performs one rate-limited journey lookup.
func (s *Service) fetchDirect(ctx context.Context, from, to tfl.Coord) (int, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return 0, err
	}
	return s.journeys.Journey(ctx, from, to)
}
