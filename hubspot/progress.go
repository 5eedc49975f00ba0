package hubspot

import "sync"

// ProgressEvent is one update emitted during a contact import run.
type ProgressEvent struct {
	Stage     string `json:"stage"` // fetched, importing, completed
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
}

// ProgressHub fans import progress out to websocket subscribers. Slow
// subscribers drop events rather than blocking the import loop.
type ProgressHub struct {
	mu   sync.Mutex
	subs map[chan ProgressEvent]struct{}
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[chan ProgressEvent]struct{})}
}

// Subscribe registers a new listener. The caller must Unsubscribe when done.
func (h *ProgressHub) Subscribe() chan ProgressEvent {
	ch := make(chan ProgressEvent, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *ProgressHub) Unsubscribe(ch chan ProgressEvent) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *ProgressHub) Publish(event ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
