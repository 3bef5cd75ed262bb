// Package populate drives the rate-limited concurrent fetch layer that
// fills the distance cache, for both targeted candidate sets and full
// pairwise precomputation.
package populate

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/burghandi/commute-cli/internal/cache"
	"github.com/burghandi/commute-cli/internal/ratelimit"
	"github.com/burghandi/commute-cli/internal/registry"
	"github.com/burghandi/commute-cli/pkg/tfl"
)

// progressEvery is how many completions pass between bulk progress logs.
const progressEvery = 10

// Job is one pending commute-duration lookup. Label identifies the
// result; for pairwise jobs it is the destination area, with the pair
// recorded in FromArea/ToArea for cache write-back.
type Job struct {
	From     tfl.Coord
	To       tfl.Coord
	Label    string
	FromArea string
	ToArea   string
}

// Outcome is the per-job result. Err is nil on success.
type Outcome struct {
	Label   string
	Minutes int
	Err     error
}

// Orchestrator distributes fetch jobs across a bounded worker pool. Every
// request passes through the shared rate limiter; individual failures are
// recorded and never abort a batch.
type Orchestrator struct {
	limiter  *ratelimit.Limiter
	journeys tfl.Client
	store    *cache.Cache
	workers  int
}

// New creates an Orchestrator. workers <= 0 falls back to 10.
func New(limiter *ratelimit.Limiter, journeys tfl.Client, store *cache.Cache, workers int) *Orchestrator {
	if workers <= 0 {
		workers = 10
	}
	return &Orchestrator{
		limiter:  limiter,
		journeys: journeys,
		store:    store,
		workers:  workers,
	}
}

// Run processes all jobs and blocks until every one has completed,
// returning outcomes in job order. Successful pairwise jobs (FromArea and
// ToArea set) are written to the cache. Job failures land in the outcome,
// not in the returned error; only context cancellation aborts the batch.
func (o *Orchestrator) Run(ctx context.Context, jobs []Job) ([]Outcome, error) {
	outcomes := make([]Outcome, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for i, job := range jobs {
		g.Go(func() error {
			outcomes[i] = o.fetchOne(gctx, job)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, eris.Wrap(err, "populate: run")
	}
	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// fetchOne acquires the limiter, performs one lookup, and writes a
// successful pairwise result to the cache.
func (o *Orchestrator) fetchOne(ctx context.Context, job Job) Outcome {
	out := Outcome{Label: job.Label}

	if err := o.limiter.Acquire(ctx); err != nil {
		out.Err = err
		return out
	}

	minutes, err := o.journeys.Journey(ctx, job.From, job.To)
	if err != nil {
		zap.L().Warn("journey fetch failed",
			zap.String("label", job.Label),
			zap.Float64("from_lat", job.From.Lat),
			zap.Float64("from_lon", job.From.Lon),
			zap.Float64("to_lat", job.To.Lat),
			zap.Float64("to_lon", job.To.Lon),
			zap.Error(err),
		)
		out.Err = err
		return out
	}

	out.Minutes = minutes
	if job.FromArea != "" && job.ToArea != "" {
		if err := o.store.Put(job.FromArea, job.ToArea, minutes); err != nil {
			// The fetch succeeded; a persistence failure is logged but the
			// duration still reaches the caller.
			zap.L().Error("cache write failed",
				zap.String("from", job.FromArea),
				zap.String("to", job.ToArea),
				zap.Error(err),
			)
		}
	}
	return out
}

// PopulatePairs fetches the given (origin, destination) area pairs,
// skipping pairs already cached, and blocks until all complete.
func (o *Orchestrator) PopulatePairs(ctx context.Context, reg *registry.Registry, pairs [][2]string) ([]Outcome, error) {
	jobs := make([]Job, 0, len(pairs))
	for _, p := range pairs {
		if o.store.Has(p[0], p[1]) {
			continue
		}
		from, ok := reg.Get(p[0])
		if !ok {
			return nil, eris.Errorf("populate: unknown area %s", p[0])
		}
		to, ok := reg.Get(p[1])
		if !ok {
			return nil, eris.Errorf("populate: unknown area %s", p[1])
		}
		jobs = append(jobs, Job{
			From:     tfl.Coord{Lat: from.Latitude, Lon: from.Longitude},
			To:       tfl.Coord{Lat: to.Latitude, Lon: to.Longitude},
			Label:    p[1],
			FromArea: p[0],
			ToArea:   p[1],
		})
	}
	return o.Run(ctx, jobs)
}

// PopulateAll precomputes the full pairwise duration matrix: the
// n·(n−1)/2 unordered pairs over sorted area identifiers, each fetched
// once and written under both directions. Already-cached pairs are
// skipped, so an interrupted run resumes where it left off. The run is
// journaled and progress logged at regular intervals.
func (o *Orchestrator) PopulateAll(ctx context.Context, reg *registry.Registry) error {
	ids := reg.IDs()

	var pairs [][2]string
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			if o.store.Has(a, b) {
				continue
			}
			pairs = append(pairs, [2]string{a, b})
		}
	}

	total := len(ids) * (len(ids) - 1) / 2
	log := zap.L().With(zap.String("component", "populate"))
	log.Info("bulk population starting",
		zap.Int("areas", len(ids)),
		zap.Int("pairs_total", total),
		zap.Int("pairs_pending", len(pairs)),
		zap.Int("workers", o.workers),
	)

	if len(pairs) == 0 {
		return nil
	}

	runID, err := o.store.StartRun(ctx)
	if err != nil {
		// Journal failures don't block the population itself.
		log.Warn("could not journal population run", zap.Error(err))
	}

	jobs := make([]Job, 0, len(pairs))
	for _, p := range pairs {
		from, _ := reg.Get(p[0])
		to, _ := reg.Get(p[1])
		jobs = append(jobs, Job{
			From:     tfl.Coord{Lat: from.Latitude, Lon: from.Longitude},
			To:       tfl.Coord{Lat: to.Latitude, Lon: to.Longitude},
			Label:    p[0] + "-" + p[1],
			FromArea: p[0],
			ToArea:   p[1],
		})
	}

	var completed, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for _, job := range jobs {
		g.Go(func() error {
			out := o.fetchOne(gctx, job)
			if out.Err != nil {
				failed.Add(1)
			}

			done := completed.Add(1)
			if done%progressEvery == 0 || done == int64(len(jobs)) {
				log.Info("bulk population progress",
					zap.Int64("completed", done),
					zap.Int("pending_total", len(jobs)),
					zap.Int64("failed", failed.Load()),
				)
			}
			return nil // don't abort the batch on individual failure
		})
	}

	waitErr := g.Wait()

	if runID != "" {
		if err := o.store.FinishRun(context.WithoutCancel(ctx), runID, len(jobs), int(failed.Load())); err != nil {
			log.Warn("could not finish population journal", zap.Error(err))
		}
	}

	if waitErr != nil {
		return eris.Wrap(waitErr, "populate: bulk")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	log.Info("bulk population complete",
		zap.Int("attempted", len(jobs)),
		zap.Int64("failed", failed.Load()),
		zap.Int("cache_entries", o.store.Len()),
	)
	return nil
}

// Limiter exposes the shared rate limiter so single-shot fallback fetches
// outside a batch still count against the same window.
func (o *Orchestrator) Limiter() *ratelimit.Limiter {
	return o.limiter
}
