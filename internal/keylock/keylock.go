package keylock

import "github.com/moby/locker"

// Map hands out one mutex per key. Entries are dropped by the underlying
// locker once no holder or waiter remains.
type Map struct {
	locks *locker.Locker
}

// New creates an empty lock map.
func New() *Map {
	return &Map{locks: locker.New()}
}

// Lock blocks until key is held and returns the matching unlock function.
func (m *Map) Lock(key string) func() {
	m.locks.Lock(key)

	return func() {
		// Unlock only fails for keys that were never locked.
		_ = m.locks.Unlock(key)
	}
}
