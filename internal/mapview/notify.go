package mapview

import "sync"

// listeners is a set of change callbacks shared by the stores.
type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func()
}

func (l *listeners) add(fn func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func())
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *listeners) fire() {
	l.mu.Lock()
	fns := make([]func(), 0, len(l.fns))
	for i := 0; i < l.next; i++ {
		if fn, ok := l.fns[i]; ok {
			fns = append(fns, fn)
		}
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
