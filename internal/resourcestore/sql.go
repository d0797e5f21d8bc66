package resourcestore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kestrelfaas/kestrel/internal/domain"
	"github.com/kestrelfaas/kestrel/internal/logging"
)

// SqlPlaceholder is the SqlApi exposed to guests: every call rejects with
// ErrNotImplemented, but when a DSN is configured it holds a
// real, health-checked pgxpool.Pool so the seam is genuine rather than a
// bare stub.
type SqlPlaceholder struct {
	pool *pgxpool.Pool
}

// NewSqlPlaceholder builds a pool for dsn (if non-empty) and pings it once.
// Connection failures are logged, not fatal: the placeholder still rejects
// every call either way.
func NewSqlPlaceholder(dsn string) *SqlPlaceholder {
	if dsn == "" {
		return &SqlPlaceholder{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logging.Op().Warn("resourcestore: sql pool dial failed", "error", err)
		return &SqlPlaceholder{}
	}
	if err := pool.Ping(ctx); err != nil {
		logging.Op().Warn("resourcestore: sql pool ping failed", "error", err)
	}
	return &SqlPlaceholder{pool: pool}
}

func (s *SqlPlaceholder) Query(query string, args ...any) (any, error) {
	return nil, domain.ErrNotImplemented
}

func (s *SqlPlaceholder) Exec(query string, args ...any) (any, error) {
	return nil, domain.ErrNotImplemented
}

// Close releases the underlying pool, if any.
func (s *SqlPlaceholder) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
