// Package session implements the envelope router and session registry
// described in spec §4.2-4.3: the framing-agnostic dispatch layer that turns
// a single bidirectional stream into many independently-flowing logical
// sessions. Router is the acceptor (host) side, which spawns a handler on
// every observed Hello; ClientConn is the dialer side, which routes
// responses to sessions the caller opened explicitly.
/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package session

import (
	"context"
	"io"
	"sync"

	"github.com/kerr-project/kerr/internal/debug"
	"github.com/kerr-project/kerr/internal/nlog"
	"github.com/kerr-project/kerr/metrics"
	"github.com/kerr-project/kerr/protocol"
)

// HandlerFunc implements one session type's state machine. It must never
// touch the stream directly (invariant 4): only inbox and out.
type HandlerFunc func(ctx context.Context, sessionID string, inbox *Inbox, out chan<- protocol.Envelope)

// Router owns one bidirectional stream for its lifetime: the single reader
// task (Run, called on the calling goroutine) and a single writer task
// (spawned internally), per invariant 3 ("exactly one writer task holds the
// send half").
type Router struct {
	stream   io.ReadWriteCloser
	handlers map[protocol.SessionType]HandlerFunc
	maxFrame int

	reg        *registry
	outbound   chan protocol.Envelope
	writerWG   sync.WaitGroup
	handlersWG sync.WaitGroup
}

// NewRouter constructs a Router bound to stream, dispatching Hellos through
// the closed `handlers` table — the "strategy chosen per variant" design
// note (§4.9): adding a session type means adding one table entry.
func NewRouter(stream io.ReadWriteCloser, handlers map[protocol.SessionType]HandlerFunc) *Router {
	return &Router{
		stream:   stream,
		handlers: handlers,
		reg:      newRegistry(),
		outbound: make(chan protocol.Envelope, 64),
	}
}

// ActiveSessions reports the number of live sessions, for tests/metrics.
func (r *Router) ActiveSessions() int { return r.reg.len() }

// Run drives the reader loop until the stream closes or ctx is canceled,
// then tears down every live session (§7 "TransportClosed"). It returns the
// terminal read error (a *protocol.FramingError wrapping io.EOF on a clean
// peer half-close).
//
// Teardown order matters: reg.drain() must run, and every handler goroutine
// must have actually returned, before r.outbound is closed — a handler
// blocked in inbox.Recv() only wakes up once its inbox is closed by drain(),
// and closing r.outbound while a handler might still call send() would panic
// on a send to a closed channel. So drain() and handlersWG.Wait() both come
// before close(r.outbound); the writer's own writerWG.Wait() comes last.
func (r *Router) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			r.stream.Close()
		case <-done:
		}
	}()

	r.writerWG.Add(1)
	go r.writerLoop()

	err := r.readerLoop(ctx)

	r.reg.drain()
	r.handlersWG.Wait()
	close(r.outbound)
	r.writerWG.Wait()
	return err
}

func (r *Router) writerLoop() {
	defer r.writerWG.Done()
	for env := range r.outbound {
		if err := protocol.WriteEnvelope(r.stream, env); err != nil {
			nlog.Warningf("router: write error, closing stream: %v", err)
			r.stream.Close()
			// Drain remaining sends so producers (session handlers) never
			// block forever on a dead writer; invariant 3 still holds since
			// this is the only goroutine consuming r.outbound.
			for range r.outbound {
			}
			return
		}
	}
}

func (r *Router) readerLoop(ctx context.Context) error {
	for {
		env, err := protocol.ReadEnvelope(r.stream, r.maxFrame)
		if err != nil {
			return err
		}

		cm, isClient := env.Payload.(protocol.ClientMsg)
		if !isClient {
			nlog.Warningln("router: dropping non-client envelope", env.SessionID)
			continue
		}

		if hello, ok := cm.M.(protocol.Hello); ok {
			r.spawn(ctx, env.SessionID, hello.SessionType)
			continue
		}

		inbox, ok := r.reg.lookup(env.SessionID)
		if !ok {
			nlog.Warningln("router: dropping envelope for unknown session", env.SessionID)
			continue
		}
		inbox.Send(cm.M)
	}
}

func (r *Router) spawn(ctx context.Context, sessionID string, sessType protocol.SessionType) {
	handler, known := r.handlers[sessType]
	if !known {
		nlog.Warningf("router: no handler registered for session type %s", sessType)
		return
	}

	inbox := NewInbox()
	sctx, cancel := context.WithCancel(ctx)
	if !r.reg.create(sessionID, inbox, cancel) {
		// DuplicateHello (§7): ignore per spec, second Hello for a live id.
		nlog.Warningln("router: duplicate hello for session", sessionID)
		cancel()
		return
	}
	// Invariant 2 (§3) is enforced by reg.create above; the assert checks
	// that the new session is visible to the next lookup (§4.3).
	_, stillThere := r.reg.lookup(sessionID)
	debug.Assert(stillThere, "session just created must be visible to lookup", sessionID)

	metrics.SessionsActive.WithLabelValues(sessType.String()).Inc()

	r.handlersWG.Add(1)
	go func() {
		defer r.handlersWG.Done()
		defer metrics.SessionsActive.WithLabelValues(sessType.String()).Dec()
		defer r.reg.remove(sessionID)
		handler(sctx, sessionID, inbox, r.outbound)
	}()
}
