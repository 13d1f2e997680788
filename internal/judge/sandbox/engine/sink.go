package engine

import (
	"fmt"
	"strings"
	"sync"
)

// LogSink collects console output of one invocation.
type LogSink struct {
	mu        sync.Mutex
	lines     []string
	max       int
	truncated bool
}

// NewLogSink creates a sink keeping at most max lines; max <= 0 means unlimited.
func NewLogSink(max int) *LogSink {
	return &LogSink{lines: []string{}, max: max}
}

// Append records one console call whose arguments were already formatted.
// Arguments are joined with a single space.
func (s *LogSink) Append(args ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.truncated {
		return
	}
	if s.max > 0 && len(s.lines) >= s.max {
		s.truncated = true
		s.lines = append(s.lines, fmt.Sprintf("... output truncated after %d lines", s.max))
		return
	}
	s.lines = append(s.lines, strings.Join(args, " "))
}

// Lines returns a copy of the captured lines; never nil.
func (s *LogSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

// Truncated reports whether lines were dropped.
func (s *LogSink) Truncated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.truncated
}
