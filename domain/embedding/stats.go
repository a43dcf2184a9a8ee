package embedding

import (
	"sync"
	"sync/atomic"
)

// BackendStats is a point-in-time copy of one backend's counters.
type BackendStats struct {
	name      string
	requests  int64
	successes int64
	failures  int64
}

// NewBackendStats creates a BackendStats.
func NewBackendStats(name string, requests, successes, failures int64) BackendStats {
	return BackendStats{name: name, requests: requests, successes: successes, failures: failures}
}

// Name returns the backend name.
func (s BackendStats) Name() string { return s.name }

// Requests returns the number of invocations.
func (s BackendStats) Requests() int64 { return s.requests }

// Successes returns the number of successful invocations.
func (s BackendStats) Successes() int64 { return s.successes }

// Failures returns the number of failed invocations.
func (s BackendStats) Failures() int64 { return s.failures }

type counters struct {
	requests  atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
}

// Stats keeps request, success and failure counters per backend.
type Stats struct {
	byName map[string]*counters
	order  []string
	mu     sync.RWMutex
}

// NewStats creates Stats with counters for the given backends.
func NewStats(names ...string) *Stats {
	s := &Stats{byName: make(map[string]*counters, len(names))}
	for _, n := range names {
		s.get(n)
	}
	return s
}

func (s *Stats) get(name string) *counters {
	s.mu.RLock()
	c, ok := s.byName[name]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byName[name]; ok {
		return c
	}
	c = &counters{}
	s.byName[name] = c
	s.order = append(s.order, name)
	return c
}

// RecordRequest counts one invocation of the backend.
func (s *Stats) RecordRequest(name string) { s.get(name).requests.Add(1) }

// RecordSuccess counts one successful invocation.
func (s *Stats) RecordSuccess(name string) { s.get(name).successes.Add(1) }

// RecordFailure counts one failed invocation.
func (s *Stats) RecordFailure(name string) { s.get(name).failures.Add(1) }

// Backend returns the counters for one backend.
func (s *Stats) Backend(name string) BackendStats {
	c := s.get(name)
	return NewBackendStats(name, c.requests.Load(), c.successes.Load(), c.failures.Load())
}

// Snapshot returns the counters of every known backend in registration order.
func (s *Stats) Snapshot() []BackendStats {
	s.mu.RLock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	s.mu.RUnlock()

	out := make([]BackendStats, 0, len(names))
	for _, n := range names {
		out = append(out, s.Backend(n))
	}
	return out
}
