// Package ratelimit throttles MCP tool calls with one token bucket per tool.
package ratelimit

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrLimited is returned when a tool has no token left.
var ErrLimited = errors.New("rate limit exceeded")

// Rule limits one tool. Burst calls are available up front and refill at
// PerMinute. A zero Rule disables limiting for the tool; a Burst with a zero
// PerMinute is a fixed allowance that never refills.
type Rule struct {
	PerMinute float64
	Burst     int
}

func (r Rule) disabled() bool {
	return r.PerMinute == 0 && r.Burst == 0
}

// Validate rejects negative values and a refill rate without a burst.
func (r Rule) Validate() error {
	if r.PerMinute < 0 {
		return fmt.Errorf("per_minute must not be negative, got %v", r.PerMinute)
	}
	if r.Burst < 0 {
		return fmt.Errorf("burst must not be negative, got %d", r.Burst)
	}
	if r.PerMinute > 0 && r.Burst == 0 {
		return fmt.Errorf("burst must be at least 1 when per_minute is %v", r.PerMinute)
	}
	return nil
}

// Rules maps tool names to their limits. Tools without a rule are unlimited.
type Rules map[string]Rule

// DefaultRules covers the probe tools. Index queries are cheap once a stream
// is cached; splits load and write whole streams.
func DefaultRules() Rules {
	return Rules{
		"probe_identities": {PerMinute: 60, Burst: 10},
		"probe_index":      {PerMinute: 60, Burst: 10},
		"probe_split":      {PerMinute: 6, Burst: 2},
	}
}

// Validate checks every rule, naming the first offending tool.
func (rs Rules) Validate() error {
	tools := make([]string, 0, len(rs))
	for tool := range rs {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	for _, tool := range tools {
		if err := rs[tool].Validate(); err != nil {
			return fmt.Errorf("%s: %w", tool, err)
		}
	}
	return nil
}

// Set holds the buckets of every limited tool. It is safe for concurrent use.
type Set struct {
	mu      sync.Mutex
	rules   Rules
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewSet returns a Set enforcing rules. Buckets start full.
func NewSet(rules Rules) *Set {
	return &Set{
		rules:   rules,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes a token for tool. When none is left the error wraps ErrLimited
// and says when the next token is due.
func (s *Set) Allow(tool string) error {
	if s == nil {
		return nil
	}
	rule, ok := s.rules[tool]
	if !ok || rule.disabled() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets[tool]
	if !ok {
		b = &bucket{tokens: float64(rule.Burst), last: now}
		s.buckets[tool] = b
	}

	perSecond := rule.PerMinute / 60
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+perSecond*elapsed, float64(rule.Burst))
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return nil
	}
	if perSecond == 0 {
		return fmt.Errorf("%w for %s: allowance of %d used up", ErrLimited, tool, rule.Burst)
	}
	wait := time.Duration((1 - b.tokens) / perSecond * float64(time.Second))
	return fmt.Errorf("%w for %s, retry in %s", ErrLimited, tool, wait.Round(100*time.Millisecond))
}
