// Package chaos injects connection failures while the stress test runs.
package chaos

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Killer terminates backends of the test database. It prefers sessions that
// hold a lock on one of Tables, which puts the kill inside an open dispute or
// evidence transaction such as a cascading delete or a compare-and-swap
// update, and falls back to any other backend when none does.
type Killer struct {
	Pool     *pgxpool.Pool
	Tables   []string
	Interval time.Duration
	// Odds of 1 in Odds that a tick kills something.
	Odds int
	Seed int64

	locked atomic.Int64
	idle   atomic.Int64
}

func NewKiller(pool *pgxpool.Pool, seed int64) *Killer {
	return &Killer{
		Pool:     pool,
		Tables:   []string{"disputes", "evidence"},
		Interval: 2 * time.Second,
		Odds:     5,
		Seed:     seed,
	}
}

// Run kills until ctx is done or stop is closed.
func (k *Killer) Run(ctx context.Context, stop <-chan struct{}) {
	rng := rand.New(rand.NewSource(k.Seed))
	ticker := time.NewTicker(k.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if k.Odds > 1 && rng.Intn(k.Odds) != 0 {
				continue
			}
			if k.kill(ctx, lockHolderSQL, k.Tables) {
				k.locked.Add(1)
			} else if k.kill(ctx, anyBackendSQL) {
				k.idle.Add(1)
			}
		}
	}
}

// Kills reports how many lock holders and other backends were terminated.
func (k *Killer) Kills() (locked, other int64) {
	return k.locked.Load(), k.idle.Load()
}

const lockHolderSQL = `
	SELECT pg_terminate_backend(l.pid)
	FROM pg_locks l
	JOIN pg_class c ON c.oid = l.relation
	JOIN pg_stat_activity a ON a.pid = l.pid
	WHERE c.relname = ANY($1)
	  AND a.datname = current_database()
	  AND l.pid <> pg_backend_pid()
	ORDER BY random()
	LIMIT 1`

const anyBackendSQL = `
	SELECT pg_terminate_backend(pid)
	FROM pg_stat_activity
	WHERE datname = current_database() AND pid <> pg_backend_pid()
	ORDER BY random()
	LIMIT 1`

func (k *Killer) kill(ctx context.Context, query string, args ...any) bool {
	var ok bool
	err := k.Pool.QueryRow(ctx, query, args...).Scan(&ok)
	if errors.Is(err, pgx.ErrNoRows) {
		return false
	}
	return err == nil && ok
}
