package utils

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Stopwatch records named phases of a multi-stage operation, such as the
// decode/analyze/classify pipeline, so the total cost can be logged at the end.
type Stopwatch struct {
	mu     sync.Mutex
	name   string
	start  time.Time
	phases []phase
	open   map[string]int
}

type phase struct {
	name     string
	start    time.Time
	duration time.Duration
	done     bool
}

// NewStopwatch creates a stopwatch and starts the overall clock.
func NewStopwatch(name string) *Stopwatch {
	return &Stopwatch{
		name:  name,
		start: time.Now(),
		open:  make(map[string]int),
	}
}

// Start begins timing a named phase. Phases may overlap.
func (s *Stopwatch) Start(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open[name] = len(s.phases)
	s.phases = append(s.phases, phase{name: name, start: time.Now()})
}

// Stop ends a named phase and returns its duration. Stopping a phase that
// was never started returns zero.
func (s *Stopwatch) Stop(name string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.open[name]
	if !ok {
		return 0
	}
	delete(s.open, name)
	p := &s.phases[idx]
	if !p.done {
		p.duration = time.Since(p.start)
		p.done = true
	}
	return p.duration
}

// Elapsed returns the total time since the stopwatch was created.
func (s *Stopwatch) Elapsed() time.Duration {
	return time.Since(s.start)
}

// PhaseDuration returns the recorded duration for a completed phase.
func (s *Stopwatch) PhaseDuration(name string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.phases) - 1; i >= 0; i-- {
		if s.phases[i].name == name && s.phases[i].done {
			return s.phases[i].duration
		}
	}
	return 0
}

// Summary returns a one-line report of all completed phases in order.
func (s *Stopwatch) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "%s total=%v", s.name, time.Since(s.start).Round(time.Millisecond))
	for _, p := range s.phases {
		if p.done {
			fmt.Fprintf(&b, " %s=%v", p.name, p.duration.Round(time.Millisecond))
		}
	}
	return b.String()
}

// Report logs the summary through the given logger.
func (s *Stopwatch) Report(logger Logger) {
	if logger != nil {
		logger.Info("%s", s.Summary())
	}
}
