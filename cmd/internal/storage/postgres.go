package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultPostgresSchema  = "arcclient"
	defaultPostgresChannel = "arcclient_kv"
)

// PostgresStore implements SharedKeyValueStore on <schema>.shared_kv.
//
// Ownership model: the app owns the pool, Close only stops subscriptions.
// Notifications are sent with pg_notify inside the write transaction and are
// therefore delivered only once the batch commits.
type PostgresStore struct {
	pool    *pgxpool.Pool
	schema  string
	channel string
	area    string
	origin  string

	mu     sync.Mutex
	subs   []func()
	closed bool
}

var _ SharedKeyValueStore = (*PostgresStore)(nil)

type pgNotice struct {
	Area string `json:"area"`
	Change
}

// NewPostgres builds a handle on area (the namespace) owned by origin.
func NewPostgres(pool *pgxpool.Pool, cfg Config, origin string) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("storage: nil db pool")
	}
	schema := defaultPostgresSchema
	if cfg.Postgres != nil && cfg.Postgres.Schema != "" {
		schema = cfg.Postgres.Schema
	}
	return &PostgresStore{
		pool:    pool,
		schema:  schema,
		channel: defaultPostgresChannel,
		area:    cfg.namespace(),
		origin:  origin,
	}, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "shared_kv"}.Sanitize()
}

// EnsureSchema creates the schema and table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{s.schema}.Sanitize()); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table()+` (
			area       text NOT NULL,
			key        text NOT NULL,
			value      text NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (area, key)
		)
	`)
	return err
}

// Origin returns the tab id.
func (s *PostgresStore) Origin() string { return s.origin }

// Get reads a key.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.check(); err != nil {
		return "", false, err
	}
	var v string
	err := s.pool.QueryRow(ctx, `SELECT value FROM `+s.table()+` WHERE area = $1 AND key = $2`, s.area, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set writes a key.
func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	return s.Apply(ctx, []Mutation{SetOp(key, value)})
}

// Remove deletes a key.
func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	return s.Apply(ctx, []Mutation{RemoveOp(key)})
}

// Apply runs the batch in one transaction, locking each touched row.
func (s *PostgresStore) Apply(ctx context.Context, muts []Mutation) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := validateMutations(muts); err != nil {
		return err
	}
	if len(muts) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, m := range muts {
		var old string
		had := true
		err := tx.QueryRow(ctx, `SELECT value FROM `+s.table()+` WHERE area = $1 AND key = $2 FOR UPDATE`, s.area, m.Key).Scan(&old)
		if errors.Is(err, pgx.ErrNoRows) {
			had = false
		} else if err != nil {
			return err
		}

		ch, changed := diff(m, old, had, s.origin)
		if !changed {
			continue
		}

		if m.Remove {
			_, err = tx.Exec(ctx, `DELETE FROM `+s.table()+` WHERE area = $1 AND key = $2`, s.area, m.Key)
		} else {
			_, err = tx.Exec(ctx, `
				INSERT INTO `+s.table()+` (area, key, value, updated_at)
				VALUES ($1, $2, $3, now())
				ON CONFLICT (area, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
			`, s.area, m.Key, m.Value)
		}
		if err != nil {
			return err
		}

		payload, err := json.Marshal(pgNotice{Area: s.area, Change: ch})
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, s.channel, string(payload)); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Subscribe holds one pooled connection in LISTEN mode until unsubscribed.
func (s *PostgresStore) Subscribe(ctx context.Context, fn func(Change)) (func(), error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, `LISTEN `+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("postgres listen: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			// The connection still has LISTEN registered; never hand it back as-is.
			_ = conn.Conn().Close(context.Background())
			conn.Release()
		}()

		for {
			n, err := conn.Conn().WaitForNotification(listenCtx)
			if err != nil {
				return
			}
			var notice pgNotice
			if err := json.Unmarshal([]byte(n.Payload), &notice); err != nil {
				continue
			}
			if notice.Area != s.area || notice.Origin == s.origin {
				continue
			}
			fn(notice.Change)
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}

	s.mu.Lock()
	s.subs = append(s.subs, unsubscribe)
	s.mu.Unlock()

	return unsubscribe, nil
}

// Close stops subscriptions. The pool is owned by the caller.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, unsub := range subs {
		unsub()
	}
	return nil
}

func (s *PostgresStore) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
