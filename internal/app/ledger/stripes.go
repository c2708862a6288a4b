package ledger

import "sync"

const stripeCount = 64

// Stripes provides per-subject mutual exclusion without a global lock.
// Subjects hash onto a fixed set of mutexes; contention is confined to
// subjects sharing a stripe, which is rare at this key space.
type Stripes struct {
	locks [stripeCount]sync.Mutex
}

// NewStripes creates a stripe set.
func NewStripes() *Stripes { return &Stripes{} }

// Lock acquires the stripe for subjectID and returns its unlock func.
func (s *Stripes) Lock(subjectID int64) func() {
	m := &s.locks[uint64(subjectID)%stripeCount]
	m.Lock()
	return m.Unlock
}
