package engine

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/rawblock/threatscore/pkg/models"
)

// pendingStore maps a decision_id to the bandit arm and context vector
// used to choose it, so Feedback can replay the exact LinUCB update as
// long as feedback arrives within the store's TTL. This is the piece
// the reference engine's original feedback path left unimplemented
// (it hardcoded an arm and an approximate context instead of storing the
// real one) — this store exists specifically so that gap is closed.
type pendingStore struct {
	mu      sync.Mutex
	entries map[string]models.PendingContext
	ttl     time.Duration
}

func newPendingStore(ttl time.Duration) *pendingStore {
	return &pendingStore{entries: map[string]models.PendingContext{}, ttl: ttl}
}

func (p *pendingStore) put(decisionID string, ctx models.PendingContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[decisionID] = ctx
}

// take removes and returns the entry for decisionID, so a given
// decision's feedback can only ever be applied once.
func (p *pendingStore) take(decisionID string) (models.PendingContext, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ctx, ok := p.entries[decisionID]
	if !ok {
		return models.PendingContext{}, false
	}
	if p.ttl > 0 && time.Since(ctx.StoredAt) > p.ttl {
		delete(p.entries, decisionID)
		return models.PendingContext{}, false
	}
	delete(p.entries, decisionID)
	return ctx, true
}

// sweep drops entries older than the TTL. Called periodically so a flood
// of never-acknowledged decisions doesn't grow the map without bound.
func (p *pendingStore) sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ttl <= 0 {
		return
	}
	now := time.Now()
	for id, ctx := range p.entries {
		if now.Sub(ctx.StoredAt) > p.ttl {
			delete(p.entries, id)
		}
	}
}

// feedbackLocks stripes a fixed number of mutexes by decision_id hash, so
// feedback for the same decision is always serialized while unrelated
// decisions never contend on a single global lock.
type feedbackLocks struct {
	stripes []sync.Mutex
}

func newFeedbackLocks(n int) *feedbackLocks {
	if n <= 0 {
		n = 64
	}
	return &feedbackLocks{stripes: make([]sync.Mutex, n)}
}

func (f *feedbackLocks) lock(decisionID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(decisionID))
	idx := int(h.Sum32()) % len(f.stripes)
	if idx < 0 {
		idx += len(f.stripes)
	}
	f.stripes[idx].Lock()
	return f.stripes[idx].Unlock
}
