package pvp

import "sync"

// notifyOrder replays observer callbacks of one session in the order the manager
// issued them, even though they run after mu is released. Tickets are handed out
// under Manager.mu; run blocks until every earlier ticket of the same session is done.
type notifyOrder struct {
	mu   sync.Mutex
	cond *sync.Cond
	// session id -> next ticket allowed to run; present from the first ticket until
	// the final one has finished
	next map[string]uint64
}

func newNotifyOrder() *notifyOrder {
	o := &notifyOrder{next: make(map[string]uint64)}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// open registers a session before its first ticket. Must be called with Manager.mu held.
func (o *notifyOrder) open(id string) {
	o.mu.Lock()
	if _, ok := o.next[id]; !ok {
		o.next[id] = 0
	}
	o.mu.Unlock()
}

// pending reports whether callbacks of id are still in flight. An id that is
// pending must not be reused for a new session.
func (o *notifyOrder) pending(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.next[id]
	return ok
}

func (o *notifyOrder) run(id string, ticket uint64, final bool, fn func()) {
	o.mu.Lock()
	for o.next[id] != ticket {
		o.cond.Wait()
	}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		if final {
			delete(o.next, id)
		} else {
			o.next[id] = ticket + 1
		}
		o.cond.Broadcast()
		o.mu.Unlock()
	}()
	fn()
}
