package handoff

import (
	"sync"
	"time"

	"farmstand/backend/internal/xid"
)

// pendingTTL bounds how long an unanswered hand-off is kept. The operator
// abandoning the external app leaves no sale and no state beyond this entry.
const pendingTTL = time.Hour

// Pending is a hand-off awaiting its asynchronous result. It pins the amount
// that was active when the external app was launched, so a late callback is
// bound to that cart total and not to whatever cart is current on arrival.
type Pending struct {
	ID          string
	AmountCents int64
	Currency    string
	CreatedAt   time.Time
}

type Registry struct {
	mu      sync.Mutex
	pending map[string]Pending
}

func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]Pending)}
}

func (r *Registry) Register(amountCents int64, currency string) Pending {
	entry := Pending{
		ID:          xid.New("handoff"),
		AmountCents: amountCents,
		Currency:    currency,
		CreatedAt:   time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()
	r.pending[entry.ID] = entry
	return entry
}

// Resolve removes and returns the pending entry for id. Each hand-off
// resolves at most once; a duplicate or unknown delivery reports ok=false.
func (r *Registry) Resolve(id string, _ Result) (Pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.pending[id]
	if !ok {
		return Pending{}, false
	}
	delete(r.pending, id)
	return entry, true
}

func (r *Registry) Discard(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

// prune drops expired entries. Caller must hold mu.
func (r *Registry) prune() {
	cutoff := time.Now().UTC().Add(-pendingTTL)
	for id, entry := range r.pending {
		if entry.CreatedAt.Before(cutoff) {
			delete(r.pending, id)
		}
	}
}
