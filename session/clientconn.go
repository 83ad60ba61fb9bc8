/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package session

import (
	"context"
	"io"
	"sync"

	"github.com/kerr-project/kerr/internal/nlog"
	"github.com/kerr-project/kerr/protocol"
)

// ClientConn is the dialer-side half of the envelope layer: unlike Router,
// it never spawns sessions on its own — the caller opens a session_id
// locally (after choosing one, e.g. via shortid) before sending its Hello,
// matching §3's "the client's equivalent is implicit (the UI holds its own
// per-session handles)".
type ClientConn struct {
	stream   io.ReadWriteCloser
	maxFrame int

	mu      sync.Mutex
	inboxes map[string]*ServerInbox

	outbound   chan protocol.Envelope
	sendMu     sync.RWMutex
	sendClosed bool
	wg         sync.WaitGroup
}

func NewClientConn(stream io.ReadWriteCloser) *ClientConn {
	return &ClientConn{
		stream:   stream,
		inboxes:  make(map[string]*ServerInbox),
		outbound: make(chan protocol.Envelope, 64),
	}
}

// Open registers sessionID for inbound routing and returns its ServerInbox.
// Call before sending the session's Hello so no response races the registration.
func (c *ClientConn) Open(sessionID string) *ServerInbox {
	ib := newServerInbox()
	c.mu.Lock()
	c.inboxes[sessionID] = ib
	c.mu.Unlock()
	return ib
}

// Close unregisters sessionID and closes its inbox.
func (c *ClientConn) Close(sessionID string) {
	c.mu.Lock()
	ib, ok := c.inboxes[sessionID]
	delete(c.inboxes, sessionID)
	c.mu.Unlock()
	if ok {
		ib.Close()
	}
}

// Send enqueues a ClientMessage addressed to sessionID. A Send after the
// connection has shut down (Run returned) is silently dropped — callers
// routinely fire a final Disconnect in response to the stream dying, and
// that must not race the outbound channel's closure.
func (c *ClientConn) Send(sessionID string, m protocol.ClientMessage) {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.sendClosed {
		return
	}
	c.outbound <- protocol.Envelope{SessionID: sessionID, Payload: protocol.ClientMsg{M: m}}
}

// Run drives the reader/writer loops until the stream closes or ctx is done.
func (c *ClientConn) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.stream.Close()
		case <-done:
		}
	}()

	c.wg.Add(1)
	go c.writerLoop()

	err := c.readerLoop()

	// In-flight Sends hold sendMu.RLock and complete against the still-open
	// channel (the writer drains until closure); once the write lock is
	// held, no new Send can reach the channel.
	c.sendMu.Lock()
	c.sendClosed = true
	c.sendMu.Unlock()
	close(c.outbound)
	c.wg.Wait()

	c.mu.Lock()
	inboxes := c.inboxes
	c.inboxes = make(map[string]*ServerInbox)
	c.mu.Unlock()
	for _, ib := range inboxes {
		ib.Close()
	}
	return err
}

func (c *ClientConn) writerLoop() {
	defer c.wg.Done()
	for env := range c.outbound {
		if err := protocol.WriteEnvelope(c.stream, env); err != nil {
			nlog.Warningf("clientconn: write error, closing stream: %v", err)
			c.stream.Close()
			for range c.outbound {
			}
			return
		}
	}
}

func (c *ClientConn) readerLoop() error {
	for {
		env, err := protocol.ReadEnvelope(c.stream, c.maxFrame)
		if err != nil {
			return err
		}
		sm, isServer := env.Payload.(protocol.ServerMsg)
		if !isServer {
			nlog.Warningln("clientconn: dropping non-server envelope", env.SessionID)
			continue
		}
		c.mu.Lock()
		ib, ok := c.inboxes[env.SessionID]
		c.mu.Unlock()
		if !ok {
			nlog.Warningln("clientconn: dropping envelope for unknown session", env.SessionID)
			continue
		}
		ib.send(sm.M)
	}
}
