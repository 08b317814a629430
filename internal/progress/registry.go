// Package progress holds the process-local registry of upload job
// snapshots. One orchestrator goroutine writes a given entry; any number
// of polling readers observe it. Entries do not survive a restart.
package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"secure-upload/internal/domain/upload"
)

const shardCount = 16

type entry struct {
	snapshot   upload.Snapshot
	terminalAt time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
}

// Registry is a sharded snapshot map. Sharding keeps writers of
// different jobs off each other's locks.
type Registry struct {
	shards [shardCount]*shard
	retain time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRegistry creates a registry that keeps terminal snapshots around
// for the retain window so the last poll can observe the final state.
func NewRegistry(retain time.Duration) *Registry {
	r := &Registry{
		retain: retain,
		stop:   make(chan struct{}),
	}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[uuid.UUID]*entry)}
	}
	return r
}

func (r *Registry) shardFor(id uuid.UUID) *shard {
	return r.shards[int(id[0])%shardCount]
}

// Set publishes the current snapshot for a job.
func (r *Registry) Set(id uuid.UUID, snapshot upload.Snapshot) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	e.snapshot = snapshot
	if snapshot.Status.Terminal() {
		e.terminalAt = time.Now()
	}
}

// Get returns the snapshot for a job. The second result is false for
// ids that were never registered or have been evicted.
func (r *Registry) Get(id uuid.UUID) (upload.Snapshot, bool) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return upload.Snapshot{}, false
	}
	return e.snapshot, true
}

// Delete removes an entry immediately.
func (r *Registry) Delete(id uuid.UUID) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Len reports the number of live entries across all shards.
func (r *Registry) Len() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}

// StartJanitor sweeps expired terminal entries until Stop is called.
func (r *Registry) StartJanitor(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.sweep(time.Now())
			}
		}
	}()
}

// Stop terminates the janitor goroutine.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Registry) sweep(now time.Time) {
	for _, s := range r.shards {
		s.mu.Lock()
		for id, e := range s.entries {
			if !e.terminalAt.IsZero() && now.Sub(e.terminalAt) > r.retain {
				delete(s.entries, id)
			}
		}
		s.mu.Unlock()
	}
}
