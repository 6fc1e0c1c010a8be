// Package conversation keeps the per-session turn history used to give the
// model context on follow-up requests.
package conversation

import (
	"sync"

	"github.com/spetersoncode/careflow"
)

const (
	// DefaultWindow is the number of trailing turns injected into a prompt.
	DefaultWindow = 4
	// DefaultTurnBudget is the character limit applied to each turn in a window.
	DefaultTurnBudget = 200
)

// Option configures a History.
type Option func(*History)

// WithTurnBudget sets the per-turn character limit used by Window. Values
// below one are ignored.
func WithTurnBudget(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.budget = n
		}
	}
}

// History is an unbounded, ordered record of conversation turns together
// with the number of blocks created so far in the session.
type History struct {
	mu     sync.RWMutex
	turns  []careflow.Message
	blocks int
	budget int
}

// New creates an empty History.
func New(opts ...Option) *History {
	h := &History{
		turns:  make([]careflow.Message, 0),
		budget: DefaultTurnBudget,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Append adds turns to the history.
func (h *History) Append(turns ...careflow.Message) {
	if len(turns) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turns...)
}

// Len returns the number of turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Turns returns a copy of all turns, untruncated.
func (h *History) Turns() []careflow.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make([]careflow.Message, len(h.turns))
	copy(result, h.turns)
	return result
}

// Window returns the last n turns with each turn's content cut to the turn
// budget. If n > Len(), all turns are returned.
func (h *History) Window(n int) []careflow.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	start := max(len(h.turns)-n, 0)

	result := make([]careflow.Message, len(h.turns)-start)
	for i, turn := range h.turns[start:] {
		turn.Content = truncate(turn.Content, h.budget)
		result[i] = turn
	}
	return result
}

// RecordBlocks adds n to the session's block-creation counter.
func (h *History) RecordBlocks(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blocks += n
}

// BlocksCreated returns the number of blocks created in the session.
func (h *History) BlocksCreated() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.blocks
}

// Reset clears all turns and the block counter.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = make([]careflow.Message, 0)
	h.blocks = 0
}

// truncate cuts s to at most n characters without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
