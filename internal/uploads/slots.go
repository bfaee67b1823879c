package uploads

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// SlotPool bounds concurrent uploads per tier and tracks a per-user
// active-upload counter. Acquisition never blocks: a full tier refuses.
type SlotPool struct {
	defaultTier string
	tiers       map[string]*semaphore.Weighted

	mu     sync.Mutex
	active map[string]int
}

func NewSlotPool(tierSlots map[string]int64, defaultTier string) *SlotPool {
	tiers := make(map[string]*semaphore.Weighted, len(tierSlots))
	for tier, n := range tierSlots {
		tiers[tier] = semaphore.NewWeighted(n)
	}
	return &SlotPool{
		defaultTier: defaultTier,
		tiers:       tiers,
		active:      make(map[string]int),
	}
}

// Slot is an acquired reservation. Release is idempotent.
type Slot struct {
	release sync.Once
	free    func()
}

func (s *Slot) Release() { s.release.Do(s.free) }

// Acquire reserves a slot in the user's tier, or returns nil when the tier
// is saturated. Unknown tiers fall back to the default tier's pool.
func (p *SlotPool) Acquire(userID, tier string) *Slot {
	sem, ok := p.tiers[tier]
	if !ok {
		sem = p.tiers[p.defaultTier]
	}
	if sem == nil || !sem.TryAcquire(1) {
		return nil
	}

	p.mu.Lock()
	p.active[userID]++
	p.mu.Unlock()

	return &Slot{free: func() {
		sem.Release(1)
		p.mu.Lock()
		p.active[userID]--
		if p.active[userID] <= 0 {
			delete(p.active, userID)
		}
		p.mu.Unlock()
	}}
}

// ActiveUploads reports the user's in-flight upload count.
func (p *SlotPool) ActiveUploads(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active[userID]
}
