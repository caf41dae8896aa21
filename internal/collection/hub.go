package collection

import "sync"

// hub fans snapshots out to in-process subscribers. Each subscriber channel
// holds at most one pending snapshot; a newer one replaces it.
type hub struct {
	mu   sync.Mutex
	subs map[Path]map[int]chan Snapshot
	next int
}

func newHub() *hub {
	return &hub{subs: make(map[Path]map[int]chan Snapshot)}
}

func (h *hub) add(path Path) (int, chan Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Snapshot, 1)
	id := h.next
	h.next++
	if h.subs[path] == nil {
		h.subs[path] = make(map[int]chan Snapshot)
	}
	h.subs[path][id] = ch
	return id, ch
}

func (h *hub) remove(path Path, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[path][id]; ok {
		delete(h.subs[path], id)
		close(ch)
	}
	if len(h.subs[path]) == 0 {
		delete(h.subs, path)
	}
}

func (h *hub) publish(path Path, snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[path] {
		offer(ch, snap)
	}
}

func (h *hub) sendTo(path Path, id int, snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[path][id]; ok {
		offer(ch, snap)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for path, subs := range h.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(h.subs, path)
	}
}

// offer sends snap, dropping a stale pending snapshot if the buffer is full.
func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
