package jsonrpc

import (
	"encoding/json"
	"sync"
)

// reservedID is never handed out for outbound requests.
const reservedID int64 = 1

type reply struct {
	result json.RawMessage
	err    error
}

// pendingRequests tracks outbound requests awaiting a reply. Each waiter is
// resolved at most once: lookup and removal happen under the same lock.
type pendingRequests struct {
	mu      sync.Mutex
	lastID  int64
	waiters map[int64]chan reply
	closed  error
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{
		lastID:  reservedID,
		waiters: make(map[int64]chan reply),
	}
}

// add allocates the next correlation id and registers a waiter for it.
func (p *pendingRequests) add() (int64, <-chan reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed != nil {
		return 0, nil, p.closed
	}

	p.lastID++
	id := p.lastID
	ch := make(chan reply, 1)
	p.waiters[id] = ch
	return id, ch, nil
}

// resolve delivers r to the waiter for id and removes it. It reports false
// when no waiter exists, which is the unknown-correlation case.
func (p *pendingRequests) resolve(id int64, r reply) bool {
	p.mu.Lock()
	ch, ok := p.waiters[id]
	if ok {
		delete(p.waiters, id)
	}
	p.mu.Unlock()

	if ok {
		ch <- r
	}
	return ok
}

// remove drops the waiter for id without resolving it.
func (p *pendingRequests) remove(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.waiters[id]
	delete(p.waiters, id)
	return ok
}

// closeAll fails every outstanding waiter with err and rejects new ones.
// It returns the number of waiters released.
func (p *pendingRequests) closeAll(err error) int {
	p.mu.Lock()
	waiters := p.waiters
	p.waiters = make(map[int64]chan reply)
	p.closed = err
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- reply{err: err}
	}
	return len(waiters)
}

func (p *pendingRequests) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}
