package extract

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Stats counts per-strategy outcomes across a run.
type Stats struct {
	mu        sync.Mutex
	successes map[string]int
	failures  map[string]int
	exhausted int
}

func NewStats() *Stats {
	return &Stats{
		successes: map[string]int{},
		failures:  map[string]int{},
	}
}

func (s *Stats) Success(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes[name]++
}

func (s *Stats) Failure(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name]++
}

// Exhausted records a video for which no strategy produced a transcript.
func (s *Stats) Exhausted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exhausted++
}

func (s *Stats) Successes(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successes[name]
}

func (s *Stats) Failures(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[name]
}

// Report renders the counters as a small human readable summary.
func (s *Stats) Report() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := map[string]bool{}
	for n := range s.successes {
		names[n] = true
	}
	for n := range s.failures {
		names[n] = true
	}
	ordered := make([]string, 0, len(names))
	for n := range names {
		ordered = append(ordered, n)
	}
	sort.Strings(ordered)

	var total, ok int
	b := strings.Builder{}
	b.WriteString("extraction stats:\n")
	for _, n := range ordered {
		succ, fail := s.successes[n], s.failures[n]
		total += succ + fail
		ok += succ
		fmt.Fprintf(&b, "  %s: %d ok, %d failed\n", n, succ, fail)
	}
	fmt.Fprintf(&b, "  exhausted: %d\n", s.exhausted)
	if total > 0 {
		fmt.Fprintf(&b, "  success rate: %.1f%%\n", float64(ok)/float64(total)*100)
	}
	return b.String()
}
