package beebotte

import (
	"sync"

	"go.uber.org/zap"

	"github.com/bizflycloud/beebotte-mqtt/pkg/broker"
)

// tracker holds the in-flight publishes, keyed by handle id.
type tracker struct {
	mu     sync.Mutex
	pubs   map[uint64]broker.PublishHandle
	logger *zap.Logger
}

func newTracker(logger *zap.Logger) *tracker {
	return &tracker{
		pubs:   make(map[uint64]broker.PublishHandle),
		logger: logger,
	}
}

func (t *tracker) add(h broker.PublishHandle) {
	t.mu.Lock()
	t.pubs[h.ID()] = h
	t.mu.Unlock()
}

func (t *tracker) has(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pubs[id]
	return ok
}

func (t *tracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pubs)
}

// sweep removes every completed publish without blocking on the others.
func (t *tracker) sweep() int {
	var done []uint64
	t.mu.Lock()
	for id, h := range t.pubs {
		if h.IsPublished() {
			done = append(done, id)
		}
	}
	t.mu.Unlock()

	if len(done) == 0 {
		return 0
	}
	removed := 0
	t.mu.Lock()
	for _, id := range done {
		// drain may have taken it in between
		if _, ok := t.pubs[id]; !ok {
			continue
		}
		t.logger.Debug("remove published message", zap.Uint64("mid", id))
		delete(t.pubs, id)
		removed++
	}
	t.mu.Unlock()
	return removed
}

// pop removes and returns an arbitrary tracked publish.
func (t *tracker) pop() (broker.PublishHandle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, h := range t.pubs {
		delete(t.pubs, id)
		return h, true
	}
	return nil, false
}

// drain waits for every tracked publish to complete, one at a time. A
// publish is removed before it is waited on, so the sweep never sees it.
func (t *tracker) drain() {
	for {
		h, ok := t.pop()
		if !ok {
			return
		}
		t.logger.Debug("wait for message to be published", zap.Uint64("mid", h.ID()))
		if err := h.WaitForPublish(); err != nil {
			t.logger.Warn("publish failed", zap.Uint64("mid", h.ID()), zap.Error(err))
		}
	}
}
