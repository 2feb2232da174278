package engine

import "sync"

// userLocks serializes every wallet-touching operation per user. Two orders,
// or an order and an RMS sweep, for the same user must not interleave their
// wallet reads and writes. No cross-user lock exists; all invariants are
// user-scoped.
type userLocks struct {
	locks sync.Map // map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{}
}

func (m *userLocks) get(userID string) *sync.Mutex {
	actual, _ := m.locks.LoadOrStore(userID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// withLock runs fn while holding the user's lock.
func (m *userLocks) withLock(userID string, fn func() error) error {
	mu := m.get(userID)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}
