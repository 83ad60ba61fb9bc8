/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package tcprelay

import (
	"fmt"
	"net"
	"sync"

	"github.com/kerr-project/kerr/internal/nlog"
	"github.com/kerr-project/kerr/internal/xatomic"
	"github.com/kerr-project/kerr/protocol"
)

// clientConnSender is the subset of *session.ClientConn a Dialer needs:
// sending client messages on its session. Opening the session's inbox is
// left to the caller.
type clientConnSender interface {
	Send(sessionID string, m protocol.ClientMessage)
}

// Dialer is the dialer side of the TCP relay (§4.7 "Dialer side"): it binds
// a local TCP listener, and for each inbound local connection allocates a
// stream_id, opens a tunneled flow, and pumps bytes symmetrically. A single
// demux goroutine (fed by the caller via Dispatch) owns the receive side of
// the session's ServerMessages and routes them to per-flow inboxes by
// stream_id — mirroring the envelope router's session-level routing one
// layer down.
type Dialer struct {
	sessionID    string
	cc           clientConnSender
	nextStreamID xatomic.Uint32

	mu       sync.Mutex
	flows    map[uint32]*dialerFlow
	opened   map[uint32]chan bool
	listener net.Listener
}

type dialerFlow struct {
	conn net.Conn
	in   chan []byte
	done chan struct{}
	once sync.Once
}

func (f *dialerFlow) requestClose() {
	f.once.Do(func() { close(f.done) })
}

// NewDialer constructs a Dialer for sessionID, which must already have had
// a Hello{TcpRelay} sent on cc.
func NewDialer(sessionID string, cc clientConnSender) *Dialer {
	return &Dialer{
		sessionID: sessionID,
		cc:        cc,
		flows:     make(map[uint32]*dialerFlow),
		opened:    make(map[uint32]chan bool),
	}
}

// ListenAndServe binds localPort and forwards every accepted connection to
// remotePort on the host, blocking until the listener is closed.
func (d *Dialer) ListenAndServe(localPort, remotePort uint16) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", localPort))
	if err != nil {
		return err
	}
	d.listener = ln
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go d.handleLocalConn(conn, remotePort)
	}
}

func (d *Dialer) handleLocalConn(conn net.Conn, remotePort uint16) {
	streamID := d.nextStreamID.Add(1)

	opened := make(chan bool, 1)
	d.mu.Lock()
	d.opened[streamID] = opened
	d.mu.Unlock()

	d.cc.Send(d.sessionID, protocol.TcpOpen{StreamID: streamID, DestinationPort: remotePort})

	ok := <-opened
	d.mu.Lock()
	delete(d.opened, streamID)
	d.mu.Unlock()
	if !ok {
		conn.Close()
		return
	}

	f := &dialerFlow{conn: conn, in: make(chan []byte, flowInboxDepth), done: make(chan struct{})}
	d.mu.Lock()
	d.flows[streamID] = f
	d.mu.Unlock()

	go d.localToTCPPump(streamID, f)
	d.tcpToLocalPump(streamID, f)
}

func (d *Dialer) localToTCPPump(streamID uint32, f *dialerFlow) {
	defer f.conn.Close()
	buf := make([]byte, flowChunkSize)
	for {
		n, err := f.conn.Read(buf)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			d.cc.Send(d.sessionID, protocol.TcpData{StreamID: streamID, Data: cp})
		}
		if err != nil {
			d.cc.Send(d.sessionID, protocol.TcpClose{StreamID: streamID})
			f.requestClose()
			return
		}
		select {
		case <-f.done:
			return
		default:
		}
	}
}

// tcpToLocalPump also closes the local conn on exit: a remote-initiated
// TcpCloseResponse only closes f.done, and the sibling localToTCPPump sits
// blocked in conn.Read until the conn is actually closed under it.
func (d *Dialer) tcpToLocalPump(streamID uint32, f *dialerFlow) {
	defer f.conn.Close()
	for {
		select {
		case data, ok := <-f.in:
			if !ok {
				return
			}
			if _, err := f.conn.Write(data); err != nil {
				f.requestClose()
				return
			}
		case <-f.done:
			return
		}
	}
}

// Dispatch routes one ServerMessage belonging to this session to the right
// per-flow inbox; the caller (a demux goroutine reading the session's
// ServerInbox) must invoke this for every message received.
func (d *Dialer) Dispatch(m protocol.ServerMessage) {
	switch sm := m.(type) {
	case protocol.TcpOpenResponse:
		d.mu.Lock()
		ch, ok := d.opened[sm.StreamID]
		d.mu.Unlock()
		if ok {
			ch <- sm.Success
			if !sm.Success {
				nlog.Warningf("tcprelay dialer: open stream %d failed: %s", sm.StreamID, sm.Error)
			}
		}
	case protocol.TcpDataResponse:
		d.mu.Lock()
		f, ok := d.flows[sm.StreamID]
		d.mu.Unlock()
		if !ok {
			return
		}
		select {
		case f.in <- sm.Data:
		case <-f.done:
		}
	case protocol.TcpCloseResponse:
		d.mu.Lock()
		f, ok := d.flows[sm.StreamID]
		if ok {
			delete(d.flows, sm.StreamID)
		}
		d.mu.Unlock()
		if ok {
			f.requestClose()
		}
	}
}
