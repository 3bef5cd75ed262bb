// Package cache persists pairwise commute durations so the external
// journey planner is consulted at most once per area pair.
package cache

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// pairKey is a directed (origin, destination) identifier pair.
type pairKey struct {
	From string
	To   string
}

// Cache is a sqlite-backed symmetric distance store. All rows are loaded
// into memory at Open so reads never touch the database; writes funnel
// through one mutex-guarded path that stores both directions of a pair
// from a single duration.
type Cache struct {
	db      *sql.DB
	mu      sync.RWMutex
	entries map[pairKey]int
}

const migration = `
CREATE TABLE IF NOT EXISTS distances (
	origin      TEXT NOT NULL,
	destination TEXT NOT NULL,
	minutes     INTEGER NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (origin, destination)
);

CREATE TABLE IF NOT EXISTS population_runs (
	id          TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	attempted   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0
);
`

// Open opens (creating if needed) the distance database at path and loads
// every entry into memory.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "cache: exec %s", pragma)
		}
	}
	if _, err := db.Exec(migration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "cache: migrate")
	}

	c := &Cache{db: db, entries: make(map[pairKey]int)}
	if err := c.loadAll(); err != nil {
		db.Close()
		return nil, err
	}

	zap.L().Info("loaded distance cache", zap.Int("entries", len(c.entries)), zap.String("path", path))
	return c, nil
}

func (c *Cache) loadAll() error {
	rows, err := c.db.Query(`SELECT origin, destination, minutes FROM distances`)
	if err != nil {
		return eris.Wrap(err, "cache: load")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var k pairKey
		var minutes int
		if err := rows.Scan(&k.From, &k.To, &minutes); err != nil {
			return eris.Wrap(err, "cache: scan row")
		}
		c.entries[k] = minutes
	}
	return eris.Wrap(rows.Err(), "cache: iterate rows")
}

// Get returns the cached duration between two areas, in either direction.
func (c *Cache) Get(a, b string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[pairKey{From: a, To: b}]
	return m, ok
}

// Has reports whether the pair is cached.
func (c *Cache) Has(a, b string) bool {
	_, ok := c.Get(a, b)
	return ok
}

// Put stores a duration for the pair under both directions. The reverse
// direction reuses the same duration: a modeling simplification, not a
// physical guarantee. An already-cached pair is left untouched; entries
// are written once and never mutated.
func (c *Cache) Put(a, b string, minutes int) error {
	if minutes < 0 {
		return eris.Errorf("cache: negative duration %d for %s-%s", minutes, a, b)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[pairKey{From: a, To: b}]; ok {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return eris.Wrap(err, "cache: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	for _, k := range []pairKey{{From: a, To: b}, {From: b, To: a}} {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO distances (origin, destination, minutes) VALUES (?, ?, ?)`,
			k.From, k.To, minutes,
		); err != nil {
			return eris.Wrapf(err, "cache: insert %s->%s", k.From, k.To)
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "cache: commit")
	}

	c.entries[pairKey{From: a, To: b}] = minutes
	c.entries[pairKey{From: b, To: a}] = minutes
	return nil
}

// Len returns the number of directed entries held in memory.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close flushes and closes the underlying database.
func (c *Cache) Close() error {
	return eris.Wrap(c.db.Close(), "cache: close")
}

// StartRun journals the beginning of a bulk population and returns its id.
func (c *Cache) StartRun(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO population_runs (id, started_at) VALUES (?, ?)`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "cache: start run")
	}
	return id, nil
}

// FinishRun records a bulk population's outcome.
func (c *Cache) FinishRun(ctx context.Context, id string, attempted, failed int) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE population_runs SET finished_at = ?, attempted = ?, failed = ? WHERE id = ?`,
		time.Now().UTC(), attempted, failed, id,
	)
	return eris.Wrapf(err, "cache: finish run %s", id)
}

// RunSummary describes one journaled bulk population.
type RunSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Attempted  int
	Failed     int
}

// LastRun returns the most recent journaled bulk population, or nil when
// none has run.
func (c *Cache) LastRun(ctx context.Context) (*RunSummary, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, attempted, failed
		FROM population_runs
		ORDER BY started_at DESC
		LIMIT 1`)

	var r RunSummary
	var finished sql.NullTime
	if err := row.Scan(&r.ID, &r.StartedAt, &finished, &r.Attempted, &r.Failed); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "cache: last run")
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}
