package readiness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Checker reports whether a backing dependency is reachable.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
	Close()
}

// NewChecker pings PostgreSQL when databaseURL is set and is a no-op otherwise.
// The pool connects lazily, so an unreachable database fails readiness rather
// than startup.
func NewChecker(ctx context.Context, databaseURL string) (Checker, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return noopChecker{}, nil
	}
	return NewPostgresChecker(ctx, databaseURL)
}

type PostgresChecker struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresChecker(ctx context.Context, databaseURL string) (*PostgresChecker, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresChecker{pool: pool, timeout: 2 * time.Second}, nil
}

func (c *PostgresChecker) Name() string { return "postgres" }

func (c *PostgresChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (c *PostgresChecker) Close() { c.pool.Close() }

type noopChecker struct{}

func (noopChecker) Name() string                { return "none" }
func (noopChecker) Check(context.Context) error { return nil }
func (noopChecker) Close()                      {}
