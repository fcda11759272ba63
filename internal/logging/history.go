package logging

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one log record kept in memory for the HTTP API.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Module  string         `json:"module"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// String renders the entry as a single log line with sorted attributes.
func (e Entry) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %-5s [%s] %s",
		e.Time.Format(time.RFC3339), strings.ToUpper(e.Level), e.Module, e.Message)

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Attrs[k])
	}
	return sb.String()
}

// History is a fixed-capacity ring of log entries.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewHistory returns a ring holding at most capacity entries.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{entries: make([]Entry, capacity)}
}

// Add stores e, evicting the oldest entry when full.
func (h *History) Add(e Entry) {
	h.mu.Lock()
	h.entries[h.next] = e
	h.next = (h.next + 1) % len(h.entries)
	if h.next == 0 {
		h.full = true
	}
	h.mu.Unlock()
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.entries)
	}
	return h.next
}

// Tail returns up to n of the newest entries, oldest first. n <= 0 returns all.
func (h *History) Tail(n int) []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var ordered []Entry
	if h.full {
		ordered = append(ordered, h.entries[h.next:]...)
	}
	ordered = append(ordered, h.entries[:h.next]...)

	if n > 0 && n < len(ordered) {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}
