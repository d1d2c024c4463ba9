package conflict

import (
	"sync"
)

// propertyLocks hands out one mutex per property id. A full rescan
// deletes-then-rebuilds the property's conflicts, so rescans and
// resolutions for the same property must not interleave.
type propertyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPropertyLocks() *propertyLocks {
	return &propertyLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the property and returns the unlock function.
func (p *propertyLocks) acquire(propertyID string) func() {
	p.mu.Lock()
	l, ok := p.locks[propertyID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[propertyID] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}
