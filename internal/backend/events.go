package backend

import "sync"

// AuthEvents fans a client's auth events out to its subscribers. Each client owns one; there
// is no process-wide registry.
type AuthEvents struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan AuthEvent
}

// Subscribe registers a buffered subscriber.
func (e *AuthEvents) Subscribe() (<-chan AuthEvent, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.subs == nil {
		e.subs = make(map[int]chan AuthEvent)
	}
	id := e.nextID
	e.nextID++
	ch := make(chan AuthEvent, 4)
	e.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
			close(ch)
		})
	}
}

// Publish delivers evt to every subscriber without blocking. A subscriber whose buffer is
// full loses its oldest pending event.
func (e *AuthEvents) Publish(evt AuthEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ch := range e.subs {
		select {
		case ch <- evt:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- evt
		}
	}
}
