package alarm

import "sync"

// DefaultHistorySize is how many notifications a History keeps.
const DefaultHistorySize = 50

// History keeps the most recent notifications for display. Record is meant
// to be the engine's OnNotify observer; it never calls back into the engine.
type History struct {
	mu    sync.Mutex
	items []Notification
	next  int
	full  bool
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{items: make([]Notification, size)}
}

func (h *History) Record(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items[h.next] = n
	h.next = (h.next + 1) % len(h.items)
	if h.next == 0 {
		h.full = true
	}
}

// Recent returns up to limit notifications, newest first. A limit of zero or
// less returns everything held.
func (h *History) Recent(limit int) []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.next
	if h.full {
		n = len(h.items)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Notification, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (h.next - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}
