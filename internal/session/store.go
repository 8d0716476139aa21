// Package session keeps a small per-session memory of recently shown entries.
package session

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultCapacity    = 5
	DefaultIdleTimeout = 30 * time.Minute
)

// Record is the memory of one session.
type Record struct {
	mu       sync.Mutex
	recent   []string
	capacity int

	// guarded by Store.mu
	lastSeen time.Time
	active   int
}

// Recent returns a copy of the remembered ids, oldest first.
func (r *Record) Recent() []string {
	return append([]string(nil), r.recent...)
}

// Push appends id, dropping the oldest id when the record is full.
func (r *Record) Push(id string) {
	if len(r.recent) >= r.capacity {
		copy(r.recent, r.recent[1:])
		r.recent = r.recent[:len(r.recent)-1]
	}
	r.recent = append(r.recent, id)
}

// Store owns every session record. Updates to one session are serialized;
// different sessions proceed independently.
type Store struct {
	mu          sync.Mutex
	records     map[string]*Record
	capacity    int
	idleTimeout time.Duration
	now         func() time.Time
}

// NewStore creates a store. Non-positive values select the defaults.
func NewStore(capacity int, idleTimeout time.Duration) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Store{
		records:     make(map[string]*Record),
		capacity:    capacity,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Update runs fn with exclusive access to the record for id, creating it on
// first use. The store lock is released before fn runs. A record with an
// update in flight is never evicted.
func (s *Store) Update(id string, fn func(*Record)) {
	rec := s.acquire(id)
	defer s.release(rec)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	fn(rec)
}

// Recent returns the ids remembered for id without creating a record.
func (s *Store) Recent(id string) []string {
	s.mu.Lock()
	rec, ok := s.records[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.Recent()
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// EvictIdle drops sessions not updated within the idle timeout and returns
// how many were removed.
func (s *Store) EvictIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.records {
		if rec.active == 0 && now.Sub(rec.lastSeen) > s.idleTimeout {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// Run evicts idle sessions every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.EvictIdle(t)
		}
	}
}

func (s *Store) acquire(id string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		rec = &Record{capacity: s.capacity}
		s.records[id] = rec
	}
	rec.active++
	rec.lastSeen = s.now()
	return rec
}

func (s *Store) release(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.active--
	rec.lastSeen = s.now()
}
