package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/mmcdole/anikino/internal/domain"
)

// History is the session's navigation log. Position 0 is the blank initial
// entry. Pushing drops any entries ahead of the cursor.
type History struct {
	mu      sync.Mutex
	entries []*domain.NavState
	cursor  int
}

// NewHistory creates a log holding only the initial entry
func NewHistory() *History {
	return &History{entries: []*domain.NavState{nil}}
}

// Push records state as the new current entry
func (h *History) Push(state domain.NavState) {
	if state.Key == "" {
		state.Key = uuid.NewString()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries[:h.cursor+1], &state)
	h.cursor++
}

// Back moves the cursor back and returns the state now current.
// ok is false at the first entry.
func (h *History) Back() (state *domain.NavState, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cursor == 0 {
		return nil, false
	}
	h.cursor--
	return h.entries[h.cursor], true
}

// Forward moves the cursor forward and returns the state now current.
// ok is false at the last entry.
func (h *History) Forward() (state *domain.NavState, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cursor >= len(h.entries)-1 {
		return nil, false
	}
	h.cursor++
	return h.entries[h.cursor], true
}

// Current returns the state at the cursor, nil for a blank entry
func (h *History) Current() *domain.NavState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.cursor]
}

func (h *History) CanBack() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor > 0
}

func (h *History) CanForward() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor < len(h.entries)-1
}

// Len returns the number of entries including the initial one
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
