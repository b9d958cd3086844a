package ingestion

import "sync"

// inflight tracks documents with a running ingestion or deletion.
type inflight struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{ids: make(map[string]struct{})}
}

// acquire marks id busy. It returns false if id is already busy.
func (g *inflight) acquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.ids[id]; busy {
		return false
	}
	g.ids[id] = struct{}{}
	return true
}

func (g *inflight) release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.ids, id)
}

func (g *inflight) busy(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.ids[id]
	return ok
}
