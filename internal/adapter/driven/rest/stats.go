package rest

import "sync"

// ServiceStats is a point-in-time counter pair for one upstream service.
type ServiceStats struct {
	Total  int64 `json:"total"`
	Errors int64 `json:"errors"`
}

// Snapshot is a consistent copy of all call counters.
type Snapshot struct {
	TotalCalls int64                   `json:"total_calls"`
	ErrorCalls int64                   `json:"error_calls"`
	ByService  map[string]ServiceStats `json:"by_service"`
}

// Stats counts outbound API calls and terminal failures, per service and in
// total. It is observability state only, owned by whoever constructs it and
// passed by handle to the client -- never package-level.
type Stats struct {
	mu        sync.Mutex
	total     int64
	errors    int64
	byService map[string]*ServiceStats
}

// NewStats creates an empty counter set.
func NewStats() *Stats {
	return &Stats{byService: make(map[string]*ServiceStats)}
}

// recordCall counts one request attempt against the service. Retries count
// as separate calls.
func (s *Stats) recordCall(service string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.service(service).Total++
}

// recordError counts one terminal failure against the service. A request
// that exhausts its retries counts a single error.
func (s *Stats) recordError(service string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
	s.service(service).Errors++
}

func (s *Stats) service(name string) *ServiceStats {
	st, ok := s.byService[name]
	if !ok {
		st = &ServiceStats{}
		s.byService[name] = st
	}
	return st
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		TotalCalls: s.total,
		ErrorCalls: s.errors,
		ByService:  make(map[string]ServiceStats, len(s.byService)),
	}
	for name, st := range s.byService {
		snap.ByService[name] = *st
	}
	return snap
}

// Reset zeroes all counters.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = 0
	s.errors = 0
	s.byService = make(map[string]*ServiceStats)
}
