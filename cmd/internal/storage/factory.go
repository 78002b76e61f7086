package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Driver identifiers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// DefaultNamespace scopes keys, channels and table rows.
const DefaultNamespace = "arc"

// Config describes the shared area selection parameters.
type Config struct {
	Driver    string
	Namespace string
	Redis     *RedisConfig
	Postgres  *PostgresConfig
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// PostgresConfig selects the schema holding shared_kv.
type PostgresConfig struct {
	Schema string
}

// Dependencies carries handles owned by the caller.
type Dependencies struct {
	// Area is required by the memory driver; a fresh one is created when nil.
	Area *Area
	// Pool is required by the postgres driver.
	Pool *pgxpool.Pool
}

func (c Config) namespace() string {
	ns := strings.TrimSpace(c.Namespace)
	if ns == "" {
		return DefaultNamespace
	}
	return ns
}

// New opens one tab handle on the configured shared area.
func New(ctx context.Context, cfg Config, origin string, deps Dependencies) (SharedKeyValueStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		area := deps.Area
		if area == nil {
			area = NewArea()
		}
		return area.Tab(origin), nil
	case DriverRedis:
		return NewRedis(ctx, cfg, origin)
	case DriverPostgres:
		if deps.Pool == nil {
			return nil, fmt.Errorf("postgres driver requires database pool")
		}
		st, err := NewPostgres(deps.Pool, cfg, origin)
		if err != nil {
			return nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
}
