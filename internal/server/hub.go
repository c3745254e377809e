package server

import (
	"sync"

	"github.com/ngenohkevin/hivetop/internal/monitor"
)

// hub keeps the latest frame and fans new ones out to stream subscribers.
// Slow subscribers only ever see the newest frame.
type hub struct {
	mu     sync.RWMutex
	last   *monitor.Frame
	subs   map[chan monitor.Frame]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan monitor.Frame]struct{})}
}

func (h *hub) publish(f monitor.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = &f
	for ch := range h.subs {
		select {
		case ch <- f:
		default:
			// drop the stale frame the subscriber has not read yet
			select {
			case <-ch:
			default:
			}
			ch <- f
		}
	}
}

func (h *hub) latest() (monitor.Frame, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.last == nil {
		return monitor.Frame{}, false
	}
	return *h.last, true
}

// subscribe returns a channel of new frames, closed when the hub closes
func (h *hub) subscribe() (<-chan monitor.Frame, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan monitor.Frame, 1)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *hub) subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
