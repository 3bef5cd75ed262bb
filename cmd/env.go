package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/burghandi/commute-cli/internal/cache"
	"github.com/burghandi/commute-cli/internal/commute"
	"github.com/burghandi/commute-cli/internal/populate"
	"github.com/burghandi/commute-cli/internal/ratelimit"
	"github.com/burghandi/commute-cli/internal/registry"
	"github.com/burghandi/commute-cli/internal/spatial"
	"github.com/burghandi/commute-cli/pkg/postcodes"
	"github.com/burghandi/commute-cli/pkg/tfl"
)

// engineEnv holds the wired engine components shared by the warm, filter,
// and serve commands.
type engineEnv struct {
	Registry     *registry.Registry
	Index        *spatial.Index
	Cache        *cache.Cache
	Journeys     tfl.Client
	Limiter      *ratelimit.Limiter
	Orchestrator *populate.Orchestrator
	Filter       *commute.Service
	Postcodes    postcodes.Client
}

// Close flushes persisted state. Call it on every exit path so a clean
// shutdown never loses cache writes.
func (e *engineEnv) Close() {
	if e.Cache != nil {
		if err := e.Cache.Close(); err != nil {
			zap.L().Warn("closing distance cache", zap.Error(err))
		}
	}
}

func dataPath(name string) string {
	return filepath.Join(cfg.Data.Dir, name)
}

// initEngine loads the registry, restores or rebuilds the spatial index,
// opens the distance cache, and wires the filter service. Callers should
// defer env.Close().
func initEngine() (*engineEnv, error) {
	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "create data dir %s", cfg.Data.Dir)
	}

	reg, err := registry.Load(dataPath(cfg.Data.AreasFile))
	if err != nil {
		return nil, eris.Wrap(err, "load area registry (run `commute-cli areas load` first)")
	}

	idx, err := spatial.LoadOrBuild(dataPath(cfg.Data.IndexFile), reg)
	if err != nil {
		return nil, eris.Wrap(err, "load spatial index")
	}

	store, err := cache.Open(dataPath(cfg.Data.DistancesDB))
	if err != nil {
		return nil, eris.Wrap(err, "open distance cache")
	}

	journeys := tfl.NewClient(
		tfl.WithBaseURL(cfg.TFL.BaseURL),
		tfl.WithCredentials(cfg.TFL.AppID, cfg.TFL.AppKey),
		tfl.WithReference(cfg.TFL.Date, cfg.TFL.Time),
		tfl.WithTimeout(time.Duration(cfg.TFL.TimeoutSecs)*time.Second),
	)

	limiter := ratelimit.New(cfg.Populate.RequestsPerMinute, time.Minute)
	orch := populate.New(limiter, journeys, store, cfg.Populate.Workers)

	filter := commute.NewService(reg, idx, store, journeys, limiter, commute.Heuristic{
		NearestWide:    cfg.Filter.NearestWide,
		NearestNarrow:  cfg.Filter.NearestNarrow,
		WideBudgetMins: cfg.Filter.WideBudgetMins,
	})

	return &engineEnv{
		Registry:     reg,
		Index:        idx,
		Cache:        store,
		Journeys:     journeys,
		Limiter:      limiter,
		Orchestrator: orch,
		Filter:       filter,
		Postcodes:    newPostcodesClient(),
	}, nil
}

func newPostcodesClient() postcodes.Client {
	return postcodes.NewClient(
		postcodes.WithBaseURL(cfg.Postcodes.BaseURL),
		postcodes.WithRateLimit(cfg.Postcodes.RateLimit),
	)
}
