package session

import "sync"

// hub fans updates out to subscribers. A subscriber that is not keeping up
// misses updates rather than stalling the session loop.
type hub struct {
	mu     sync.Mutex
	subs   map[chan Update]struct{}
	buffer int
	closed bool
}

func newHub(buffer int) *hub {
	return &hub{
		subs:   make(map[chan Update]struct{}),
		buffer: buffer,
	}
}

func (h *hub) subscribe() chan Update {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Update, h.buffer)
	if h.closed {
		close(ch)
		return ch
	}
	h.subs[ch] = struct{}{}
	return ch
}

func (h *hub) unsubscribe(ch chan Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *hub) publish(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	h.subs = nil
}
