package engine

import (
	"sync"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// recentRing is a fixed-size ring of recently detected opportunities kept
// for operator inspection. Oldest entries are overwritten once the ring is
// full.
type recentRing struct {
	mu    sync.Mutex
	buf   []domain.Opportunity
	next  int
	count int
}

func newRecentRing(size int) *recentRing {
	return &recentRing{buf: make([]domain.Opportunity, size)}
}

func (r *recentRing) add(opps []domain.Opportunity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, opp := range opps {
		r.buf[r.next] = opp
		r.next = (r.next + 1) % len(r.buf)
		if r.count < len(r.buf) {
			r.count++
		}
	}
}

// list returns the ring contents newest first.
func (r *recentRing) list() []domain.Opportunity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Opportunity, 0, r.count)
	for i := 1; i <= r.count; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}
