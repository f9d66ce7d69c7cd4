package engine

import (
	"errors"
	"sync"
)

// ErrTokenRegistered is returned when registering a wait for a
// correlation token that already has one.
var ErrTokenRegistered = errors.New("token already registered")

// PendingWait is a single registered wait for a correlated response.
type PendingWait struct {
	c chan []byte
}

// C receives the response payload, at most once.
func (w *PendingWait) C() <-chan []byte {
	return w.c
}

// Registry tracks in-flight command dispatches by correlation token and
// hands each inbound response to at most one waiter.
type Registry struct {
	mu    sync.Mutex
	waits map[string]*PendingWait
}

func NewRegistry() *Registry {
	return &Registry{waits: make(map[string]*PendingWait)}
}

// Register creates a wait for token.
func (r *Registry) Register(token string) (*PendingWait, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.waits[token]; ok {
		return nil, ErrTokenRegistered
	}
	// buffered so delivery never blocks on the waiter
	w := &PendingWait{c: make(chan []byte, 1)}
	r.waits[token] = w
	return w, nil
}

// Deregister removes the wait for token, reporting whether it was still
// registered. A false return means a concurrent Deliver won the race and
// the payload is (or will be) on the wait channel.
func (r *Registry) Deregister(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.waits[token]
	if ok {
		delete(r.waits, token)
	}
	return ok
}

// Deliver resolves the wait for token with payload, reporting whether a
// wait was registered. The entry is removed and the payload sent in the
// same critical section: a duplicate delivery of the same token finds
// nothing, and a waiter whose Deregister reports the entry gone can
// rely on the payload already being buffered. The channel is cap-1 with
// at most one live registrant per token, so the send cannot block.
func (r *Registry) Deliver(token string, payload []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.waits[token]
	if !ok {
		return false
	}
	delete(r.waits, token)
	w.c <- payload
	return true
}
