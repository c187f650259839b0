package dispatch

import "sync"

// keyedLocks hands out one mutex per mapping ID. Entries live only while a
// caller holds or waits for them, so the map stays as small as the number of
// mappings in flight.
type keyedLocks struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

type lockEntry struct {
	sync.Mutex
	refs int
}

// lock blocks until id is free and returns its unlock func.
func (l *keyedLocks) lock(id int64) (unlock func()) {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[int64]*lockEntry)
	}
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.Lock()
	return func() {
		e.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}

func (l *keyedLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
