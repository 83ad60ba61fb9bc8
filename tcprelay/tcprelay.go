// Package tcprelay implements the host side of the TCP-relay session
// (§4.7): a sub-multiplexer that tunnels many independent TCP flows, each
// keyed by a client-chosen stream_id, over one logical envelope session.
/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package tcprelay

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kerr-project/kerr/internal/nlog"
	"github.com/kerr-project/kerr/protocol"
	"github.com/kerr-project/kerr/session"
)

const (
	flowChunkSize  = 65536
	flowInboxDepth = 64
	dialTimeout    = 10 * time.Second
)

// bufPool hands out fixed flowChunkSize read buffers to every flow pump,
// avoiding a per-Read allocation under sustained relay traffic — the Go
// shape of the teacher's memsys slab-pool idiom, sized down to one class
// since a relay flow never needs anything but flowChunkSize.
var bufPool = sync.Pool{New: func() any { return make([]byte, flowChunkSize) }}

// flow is one tunneled TCP connection, keyed by stream_id in the relay map.
type flow struct {
	conn net.Conn
	in   chan []byte
	done chan struct{}
	once sync.Once
}

func (f *flow) requestClose() {
	f.once.Do(func() { close(f.done) })
}

// relay holds the stream_id -> flow map for one session, guarded by a
// single mutex per the design notes' "two layered multiplexers" shape: the
// envelope layer above shares no state with this one beyond the outbound
// channel.
type relay struct {
	sessionID string
	out       chan<- protocol.Envelope

	mu    sync.Mutex
	flows map[uint32]*flow
	eg    errgroup.Group
}

// Handle implements session.HandlerFunc for protocol.TcpRelay.
func Handle(_ context.Context, sessionID string, inbox *session.Inbox, out chan<- protocol.Envelope) {
	r := &relay{sessionID: sessionID, out: out, flows: make(map[uint32]*flow)}
	for {
		msg, ok := inbox.Recv()
		if !ok {
			r.closeAll()
			return
		}
		switch m := msg.(type) {
		case protocol.TcpOpen:
			r.open(m)
		case protocol.TcpData:
			r.data(m)
		case protocol.TcpClose:
			r.close(m.StreamID)
		case protocol.Disconnect:
			r.closeAll()
			return
		default:
			nlog.Warningf("tcprelay %s: ignoring unexpected message %T", sessionID, m)
		}
	}
}

func (r *relay) open(m protocol.TcpOpen) {
	addr := fmt.Sprintf("127.0.0.1:%d", m.DestinationPort)
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		r.send(protocol.TcpOpenResponse{StreamID: m.StreamID, Success: false, Error: err.Error()})
		return
	}

	f := &flow{conn: conn, in: make(chan []byte, flowInboxDepth), done: make(chan struct{})}
	r.mu.Lock()
	r.flows[m.StreamID] = f
	r.mu.Unlock()

	r.send(protocol.TcpOpenResponse{StreamID: m.StreamID, Success: true})

	r.eg.Go(func() error { r.tcpToClientPump(m.StreamID, f); return nil })
	r.eg.Go(func() error { r.clientToTCPPump(f); return nil })
}

func (r *relay) data(m protocol.TcpData) {
	f, ok := r.lookup(m.StreamID)
	if !ok {
		return
	}
	select {
	case f.in <- m.Data:
	case <-f.done:
	}
}

func (r *relay) close(streamID uint32) {
	f, ok := r.takeFlow(streamID)
	if !ok {
		return
	}
	f.requestClose()
}

func (r *relay) closeAll() {
	r.mu.Lock()
	flows := r.flows
	r.flows = make(map[uint32]*flow)
	r.mu.Unlock()
	for _, f := range flows {
		f.requestClose()
	}
	_ = r.eg.Wait()
}

func (r *relay) lookup(streamID uint32) (*flow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[streamID]
	return f, ok
}

func (r *relay) takeFlow(streamID uint32) (*flow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[streamID]
	if ok {
		delete(r.flows, streamID)
	}
	return f, ok
}

// removeFlow detaches streamID from the map iff it still maps to f (a
// concurrent TcpClose may have already done so).
func (r *relay) removeFlow(streamID uint32, f *flow) {
	r.mu.Lock()
	if r.flows[streamID] == f {
		delete(r.flows, streamID)
	}
	r.mu.Unlock()
}

func (r *relay) tcpToClientPump(streamID uint32, f *flow) {
	buf := bufPool.Get().([]byte)
	defer bufPool.Put(buf) //nolint:staticcheck // fixed-size slice, safe to pool
	var closeErr string
	for {
		n, err := f.conn.Read(buf)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			r.send(protocol.TcpDataResponse{StreamID: streamID, Data: cp})
		}
		if err != nil {
			if err != io.EOF {
				closeErr = err.Error()
			}
			break
		}
	}
	r.removeFlow(streamID, f)
	f.requestClose()
	r.send(protocol.TcpCloseResponse{StreamID: streamID, Error: closeErr})
}

func (r *relay) clientToTCPPump(f *flow) {
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

func (r *relay) send(m protocol.ServerMessage) {
	r.out <- protocol.Envelope{SessionID: r.sessionID, Payload: protocol.ServerMsg{M: m}}
}
