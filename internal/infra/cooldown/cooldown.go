// Package cooldown implements per-(subject, key) expiry-based admission
// control. Entries live in a sharded in-memory map; cooldown state is
// deliberately not persisted across restarts.
package cooldown

import (
	"hash/fnv"
	"math"
	"sync"
	"time"
)

const shardCount = 32

// Admission is the result of an Admit call. When OK is false, Remaining
// carries the whole seconds until the key's cooldown expires.
type Admission struct {
	OK        bool
	Remaining int64
}

type entry struct {
	expiresAt time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]entry
}

// Store is an explicit cooldown gate: constructed, injected, and torn down
// by its owner, never a hidden singleton.
type Store struct {
	shards [shardCount]*shard
	now    func() time.Time

	sweepEvery time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSweepInterval overrides how often the background sweep evicts
// expired entries. Zero disables the sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.sweepEvery = d }
}

// NewStore creates a cooldown store and starts its sweep goroutine.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:        time.Now,
		sweepEvery: time.Minute,
		stop:       make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]entry)}
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sweepEvery > 0 {
		s.wg.Add(1)
		go s.sweepLoop()
	}
	return s
}

// Stop terminates the sweep goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// Admit checks and sets the cooldown for (subject, key) atomically. If the
// key's current expiry is in the future the call is rejected without
// mutating state; otherwise the expiry is set to now+d and the call is
// admitted. A non-positive d always admits without storing anything.
func (s *Store) Admit(subject, key string, d time.Duration) Admission {
	if d <= 0 {
		return Admission{OK: true}
	}

	ck := subject + "\x00" + key
	sh := s.shardFor(ck)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.entries[ck]; ok {
		if e.expiresAt.After(now) {
			remaining := int64(math.Ceil(e.expiresAt.Sub(now).Seconds()))
			return Admission{OK: false, Remaining: remaining}
		}
		// Expired entry is equivalent to absence; evict lazily.
		delete(sh.entries, ck)
	}

	sh.entries[ck] = entry{expiresAt: now.Add(d)}
	return Admission{OK: true}
}

// Remaining reports the seconds left on a cooldown without mutating it.
func (s *Store) Remaining(subject, key string) int64 {
	ck := subject + "\x00" + key
	sh := s.shardFor(ck)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[ck]
	if !ok || !e.expiresAt.After(now) {
		return 0
	}
	return int64(math.Ceil(e.expiresAt.Sub(now).Seconds()))
}

// Clear removes the cooldown for (subject, key).
func (s *Store) Clear(subject, key string) {
	ck := subject + "\x00" + key
	sh := s.shardFor(ck)
	sh.mu.Lock()
	delete(sh.entries, ck)
	sh.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Sweep evicts every expired entry, bounding memory growth between lazy
// evictions. Returns the number of entries removed.
func (s *Store) Sweep() int {
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if !e.expiresAt.After(now) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

func (s *Store) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}
