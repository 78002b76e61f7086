package storage

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	evbus "github.com/asaskevich/EventBus"
)

// Area is an in-process shared key-value area. Every tab created with Tab sees
// the same values; change delivery is asynchronous through an event bus, like the
// browser storage event. Use Wait to drain in-flight deliveries.
type Area struct {
	mu     sync.Mutex
	values map[string]string

	bus  evbus.Bus
	seq  atomic.Uint64
	subs map[string]memSub // topic -> subscriber
}

type memSub struct {
	origin  string
	handler func(Change)
}

// NewArea constructs an empty shared area.
func NewArea() *Area {
	return &Area{
		values: make(map[string]string),
		bus:    evbus.New(),
		subs:   make(map[string]memSub),
	}
}

// Tab returns a handle on the area owned by origin.
func (a *Area) Tab(origin string) *MemoryStore {
	return &MemoryStore{area: a, origin: origin}
}

// Wait blocks until all published changes have been delivered, including changes
// written by subscribers while handling a delivery.
func (a *Area) Wait() { a.bus.WaitAsync() }

func (a *Area) apply(origin string, muts []Mutation) {
	a.mu.Lock()
	changes := make([]Change, 0, len(muts))
	for _, m := range muts {
		old, had := a.values[m.Key]
		ch, changed := diff(m, old, had, origin)
		if !changed {
			continue
		}
		if m.Remove {
			delete(a.values, m.Key)
		} else {
			a.values[m.Key] = m.Value
		}
		changes = append(changes, ch)
	}
	targets := make(map[string]string, len(a.subs))
	for topic, s := range a.subs {
		targets[topic] = s.origin
	}
	a.mu.Unlock()

	// Publish outside the lock: handlers write back into the area.
	for _, ch := range changes {
		for topic, subOrigin := range targets {
			if subOrigin == origin {
				continue
			}
			a.bus.Publish(topic, ch)
		}
	}
}

// MemoryStore is one tab's handle on an Area.
type MemoryStore struct {
	area   *Area
	origin string

	mu     sync.Mutex
	topics []string
	closed bool
}

var _ SharedKeyValueStore = (*MemoryStore)(nil)

// Origin returns the tab id.
func (s *MemoryStore) Origin() string { return s.origin }

// Get reads a key.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.check(ctx); err != nil {
		return "", false, err
	}
	s.area.mu.Lock()
	v, ok := s.area.values[key]
	s.area.mu.Unlock()
	return v, ok, nil
}

// Set writes a key.
func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	return s.Apply(ctx, []Mutation{SetOp(key, value)})
}

// Remove deletes a key.
func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	return s.Apply(ctx, []Mutation{RemoveOp(key)})
}

// Apply writes the batch under one area lock.
func (s *MemoryStore) Apply(ctx context.Context, muts []Mutation) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := validateMutations(muts); err != nil {
		return err
	}
	s.area.apply(s.origin, muts)
	return nil
}

// Subscribe registers fn for changes written by other tabs.
func (s *MemoryStore) Subscribe(ctx context.Context, fn func(Change)) (func(), error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	// One topic per subscription: the bus identifies handlers by code pointer, so
	// closures from the same literal would be indistinguishable on a shared topic.
	topic := "kv.change." + s.origin + "." + strconv.FormatUint(s.area.seq.Add(1), 10)
	handler := func(ch Change) { fn(ch) }
	if err := s.area.bus.SubscribeAsync(topic, handler, false); err != nil {
		return nil, err
	}

	s.area.mu.Lock()
	s.area.subs[topic] = memSub{origin: s.origin, handler: handler}
	s.area.mu.Unlock()

	s.mu.Lock()
	s.topics = append(s.topics, topic)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(topic, handler) })
	}, nil
}

func (s *MemoryStore) unsubscribe(topic string, handler func(Change)) {
	s.area.mu.Lock()
	delete(s.area.subs, topic)
	s.area.mu.Unlock()
	_ = s.area.bus.Unsubscribe(topic, handler)
}

// Close drops all subscriptions of this handle. The area itself stays usable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	topics := s.topics
	s.topics = nil
	s.mu.Unlock()

	s.area.mu.Lock()
	subs := make(map[string]memSub, len(topics))
	for _, t := range topics {
		if sub, ok := s.area.subs[t]; ok {
			subs[t] = sub
			delete(s.area.subs, t)
		}
	}
	s.area.mu.Unlock()

	for t, sub := range subs {
		_ = s.area.bus.Unsubscribe(t, sub.handler)
	}
	return nil
}

func (s *MemoryStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
