package infra

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnavailable means no Postgres could be reached for integration tests.
var ErrUnavailable = errors.New("infra: postgres unavailable")

// Shared is one Postgres per test binary. Start it from TestMain and hand out
// isolated schemas per test with Pool.
type Shared struct {
	pg  *PGContainer
	dsn string
	err error
}

// StartShared resolves a database in order: TEST_DATABASE_URL, a docker
// container, a local server on 127.0.0.1:5432. Failure is recorded, not fatal,
// so unit tests in the same package still run.
func StartShared(ctx context.Context) *Shared {
	s := &Shared{pg: &PGContainer{}}
	switch {
	case os.Getenv("TEST_DATABASE_URL") != "":
		s.dsn = os.Getenv("TEST_DATABASE_URL")
	case DockerAvailable(ctx):
		s.pg, s.dsn, s.err = StartPostgres16(ctx, "")
	default:
		s.dsn, s.err = InitLocalDatabase(ctx)
	}
	if s.err != nil {
		log.Printf("integration tests will be skipped: %v", s.err)
		s.err = errors.Join(ErrUnavailable, s.err)
	}
	return s
}

// DSN returns the resolved connection string.
func (s *Shared) DSN() string { return s.dsn }

// Pool returns a migrated pool on a fresh schema that is dropped when the
// test ends. The test is skipped when no database is available.
func (s *Shared) Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if s == nil || s.err != nil {
		t.Skip("postgres unavailable; set TEST_DATABASE_URL or start docker to run integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, teardown, err := ApplyMigrations(ctx, s.dsn, true)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	t.Cleanup(func() {
		pool.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := teardown(ctx); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	})
	return pool
}

// Close terminates the container, if one was started.
func (s *Shared) Close(ctx context.Context) {
	if s == nil {
		return
	}
	_ = s.pg.Terminate(ctx)
}
