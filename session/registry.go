/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package session

import "sync"

// registry is the per-stream session_id -> Inbox map (§4.3). Contention is
// negligible (create on Hello, remove on exit) so a single mutex suffices —
// the teacher's own note on its cluster Smap registry applies verbatim:
// a sharded map would be unjustified complexity here.
type registry struct {
	mu   sync.Mutex
	byID map[string]*entry
}

type entry struct {
	inbox  *Inbox
	cancel func()
}

func newRegistry() *registry {
	return &registry{byID: make(map[string]*entry)}
}

// create inserts a new entry iff sessionID is not already present.
// Returns ok=false on duplicate (caller must treat as DuplicateHello, §7).
func (r *registry) create(sessionID string, inbox *Inbox, cancel func()) (ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[sessionID]; exists {
		return false
	}
	r.byID[sessionID] = &entry{inbox: inbox, cancel: cancel}
	return true
}

func (r *registry) lookup(sessionID string) (*Inbox, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[sessionID]
	if !ok {
		return nil, false
	}
	return e.inbox, true
}

func (r *registry) remove(sessionID string) {
	r.mu.Lock()
	e, ok := r.byID[sessionID]
	if ok {
		delete(r.byID, sessionID)
	}
	r.mu.Unlock()
	if ok {
		e.inbox.Close()
	}
}

// drain cancels and removes every live session, used when the stream
// terminates (§7 "TransportClosed: all sessions on that stream end").
func (r *registry) drain() {
	r.mu.Lock()
	entries := r.byID
	r.byID = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range entries {
		e.cancel()
		e.inbox.Close()
	}
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
