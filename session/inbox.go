/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package session

import (
	"sync"

	"github.com/kerr-project/kerr/protocol"
)

// Inbox is the single-consumer, unbounded channel of inbound ClientMessages
// owned by one host-side session handler (§3 "Session registry", GLOSSARY
// "Inbox"). Implemented as a condvar-guarded queue rather than a buffered Go
// channel because the spec requires inboxes to never block the router's
// dispatch — an unbounded buffered channel isn't expressible with a fixed
// channel capacity. This mirrors the "unbounded channel via mutex+slice+cond"
// shape of the teacher's transport package SQ/SCQ (transport/api.go), sized
// down to a single queue instead of a pair.
type Inbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	q      []protocol.ClientMessage
	closed bool
}

func NewInbox() *Inbox {
	ib := &Inbox{}
	ib.cond = sync.NewCond(&ib.mu)
	return ib
}

// Send enqueues msg. Never blocks. A Send after Close is silently dropped.
func (ib *Inbox) Send(msg protocol.ClientMessage) {
	ib.mu.Lock()
	if ib.closed {
		ib.mu.Unlock()
		return
	}
	ib.q = append(ib.q, msg)
	ib.mu.Unlock()
	ib.cond.Signal()
}

// Recv blocks until a message is available or the inbox is closed and
// drained, in which case ok is false.
func (ib *Inbox) Recv() (msg protocol.ClientMessage, ok bool) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	for len(ib.q) == 0 && !ib.closed {
		ib.cond.Wait()
	}
	if len(ib.q) == 0 {
		return nil, false
	}
	msg = ib.q[0]
	ib.q = ib.q[1:]
	return msg, true
}

// Close marks the inbox closed; pending Recv calls drain the remaining
// backlog before reporting !ok.
func (ib *Inbox) Close() {
	ib.mu.Lock()
	ib.closed = true
	ib.mu.Unlock()
	ib.cond.Broadcast()
}
