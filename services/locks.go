package services

import "sync"

// keyedMutex serializes operations on individual rows (a crop during
// regeneration, a student during merge) without a global lock. Mutexes are
// kept for the life of the process; the key space is bounded by row counts.
type keyedMutex struct {
	mus sync.Map // key -> *sync.Mutex
}

func (km *keyedMutex) lock(key string) func() {
	mu, _ := km.mus.LoadOrStore(key, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}
