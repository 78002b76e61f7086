package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements SharedKeyValueStore on Redis. Keys live under
// "<namespace>:kv:" and changes are published on "<namespace>:kv:changes".
type RedisStore struct {
	client     *redis.Client
	ownsClient bool

	prefix  string
	channel string
	origin  string

	mu     sync.Mutex
	subs   []func()
	closed bool
}

var _ SharedKeyValueStore = (*RedisStore)(nil)

// NewRedis dials Redis from cfg and returns a handle owned by origin.
func NewRedis(ctx context.Context, cfg Config, origin string) (*RedisStore, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	s := NewRedisWithClient(client, cfg.namespace(), origin)
	s.ownsClient = true
	return s, nil
}

// NewRedisWithClient wraps an existing client. The caller keeps ownership of client.
func NewRedisWithClient(client *redis.Client, namespace, origin string) *RedisStore {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &RedisStore{
		client:  client,
		prefix:  namespace + ":kv:",
		channel: namespace + ":kv:changes",
		origin:  origin,
	}
}

// Origin returns the tab id.
func (s *RedisStore) Origin() string { return s.origin }

func (s *RedisStore) key(k string) string { return s.prefix + k }

// Get reads a key; a missing key is reported as ok=false.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.check(); err != nil {
		return "", false, err
	}
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set writes a key.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.Apply(ctx, []Mutation{SetOp(key, value)})
}

// Remove deletes a key.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	return s.Apply(ctx, []Mutation{RemoveOp(key)})
}

// Apply runs the batch inside MULTI/EXEC, then publishes one message per
// effective change.
func (s *RedisStore) Apply(ctx context.Context, muts []Mutation) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := validateMutations(muts); err != nil {
		return err
	}
	if len(muts) == 0 {
		return nil
	}

	olds := make([]*redis.StringCmd, len(muts))
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for i, m := range muts {
			k := s.key(m.Key)
			if m.Remove {
				olds[i] = p.Get(ctx, k)
				p.Del(ctx, k)
				continue
			}
			olds[i] = p.GetSet(ctx, k, m.Value)
		}
		return nil
	})
	// A missing previous value surfaces as redis.Nil from EXEC.
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	changes := make([]Change, 0, len(muts))
	for i, m := range muts {
		old, gerr := olds[i].Result()
		if gerr != nil && !errors.Is(gerr, redis.Nil) {
			return gerr
		}
		if ch, changed := diff(m, old, gerr == nil, s.origin); changed {
			changes = append(changes, ch)
		}
	}
	return s.publish(ctx, changes)
}

func (s *RedisStore) publish(ctx context.Context, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, ch := range changes {
			b, err := json.Marshal(ch)
			if err != nil {
				return err
			}
			p.Publish(ctx, s.channel, b)
		}
		return nil
	})
	return err
}

// Subscribe waits for the subscription to be confirmed before returning, so no
// change published after Subscribe returns is missed.
func (s *RedisStore) Subscribe(ctx context.Context, fn func(Change)) (func(), error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	ps := s.client.Subscribe(ctx, s.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			var ch Change
			if err := json.Unmarshal([]byte(msg.Payload), &ch); err != nil {
				continue
			}
			if ch.Origin == s.origin {
				continue
			}
			fn(ch)
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			_ = ps.Close()
			<-done
		})
	}

	s.mu.Lock()
	s.subs = append(s.subs, unsubscribe)
	s.mu.Unlock()

	return unsubscribe, nil
}

// Close stops all subscriptions and closes the client when this handle dialed it.
func (s *RedisStore) Close() error {
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
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}

func (s *RedisStore) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
