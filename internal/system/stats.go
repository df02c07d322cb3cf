package system

import (
	"sort"
	"sync"
	"time"

	"github.com/parloop/parloop/internal/core/event"
)

// LoopStat aggregates every completed call of one loop.
type LoopStat struct {
	Loop     string
	Calls    int
	Executed int
	Faults   int
	Failed   int
	PlanHits int
	Plans    int
	Elapsed  time.Duration
}

// Stats collects loop statistics from engine events.
type Stats struct {
	mu    sync.Mutex
	loops map[string]*LoopStat
}

// NewStats subscribes a collector to bus.
func NewStats(bus *event.Bus) *Stats {
	s := &Stats{loops: make(map[string]*LoopStat)}
	event.Subscribe(bus, s.onLoop)
	event.Subscribe(bus, s.onPlan)
	return s
}

func (s *Stats) get(name string) *LoopStat {
	st, ok := s.loops[name]
	if !ok {
		st = &LoopStat{Loop: name}
		s.loops[name] = st
	}
	return st
}

func (s *Stats) onLoop(e event.LoopCompleted) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(e.Loop)
	st.Calls++
	st.Executed += e.Executed
	st.Faults += e.Faults
	st.Elapsed += e.Elapsed
	if e.PlanHit {
		st.PlanHits++
	}
	if e.Err != nil {
		st.Failed++
	}
}

func (s *Stats) onPlan(e event.PlanBuilt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(e.Loop).Plans++
}

// Snapshot returns the collected statistics sorted by loop name.
func (s *Stats) Snapshot() []LoopStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LoopStat, 0, len(s.loops))
	for _, st := range s.loops {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Loop < out[j].Loop })
	return out
}
