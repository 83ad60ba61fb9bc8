/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package session

import (
	"sync"

	"github.com/kerr-project/kerr/protocol"
)

// ServerInbox is the dialer-side counterpart of Inbox: a single-consumer,
// unbounded queue of ServerMessages for one locally-opened session, fed by
// ClientConn's reader loop and drained by the CLI command driving that
// session (see session/clientconn.go).
type ServerInbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	q      []protocol.ServerMessage
	closed bool
}

func newServerInbox() *ServerInbox {
	ib := &ServerInbox{}
	ib.cond = sync.NewCond(&ib.mu)
	return ib
}

func (ib *ServerInbox) send(msg protocol.ServerMessage) {
	ib.mu.Lock()
	if ib.closed {
		ib.mu.Unlock()
		return
	}
	ib.q = append(ib.q, msg)
	ib.mu.Unlock()
	ib.cond.Signal()
}

func (ib *ServerInbox) Recv() (msg protocol.ServerMessage, ok bool) {
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

func (ib *ServerInbox) Close() {
	ib.mu.Lock()
	ib.closed = true
	ib.mu.Unlock()
	ib.cond.Broadcast()
}
