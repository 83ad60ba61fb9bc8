package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/teris-io/shortid"

	"github.com/kerr-project/kerr/protocol"
)

// echoHandler answers every PingRequest or KeyEvent with an Output frame
// carrying the same bytes, ignoring other messages, until the inbox closes.
func echoHandler(_ context.Context, sessionID string, inbox *Inbox, out chan<- protocol.Envelope) {
	for {
		msg, ok := inbox.Recv()
		if !ok {
			return
		}
		var data []byte
		switch m := msg.(type) {
		case protocol.PingRequest:
			data = m.Data
		case protocol.KeyEvent:
			data = m.Data
		default:
			continue
		}
		out <- protocol.Envelope{SessionID: sessionID, Payload: protocol.ServerMsg{M: protocol.Output{Data: data}}}
	}
}

func TestRouterRoutesInterleavedSessionsIndependently(t *testing.T) {
	hostConn, clientConn := net.Pipe()
	defer hostConn.Close()
	defer clientConn.Close()

	handlers := map[protocol.SessionType]HandlerFunc{
		protocol.Ping: echoHandler,
	}
	router := NewRouter(hostConn, handlers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- router.Run(ctx) }()

	cc := NewClientConn(clientConn)
	go cc.Run(ctx)

	const n = 4
	ids := make([]string, n)
	boxes := make([]*ServerInbox, n)
	for i := 0; i < n; i++ {
		id, err := shortid.Generate()
		require.NoError(t, err)
		ids[i] = id
		boxes[i] = cc.Open(id)
		cc.Send(id, protocol.Hello{SessionType: protocol.Ping})
	}

	for round := 0; round < 5; round++ {
		for i, id := range ids {
			payload := []byte{byte(i), byte(round)}
			cc.Send(id, protocol.PingRequest{Data: payload})
		}
	}

	for i := range ids {
		for round := 0; round < 5; round++ {
			msg, ok := recvWithTimeout(t, boxes[i])
			require.True(t, ok)
			out, isOutput := msg.(protocol.Output)
			require.True(t, isOutput)
			require.Equal(t, byte(i), out.Data[0])
			require.Equal(t, byte(round), out.Data[1])
		}
	}

	cancel()
	hostConn.Close()
	clientConn.Close()
}

func recvWithTimeout(t *testing.T, ib *ServerInbox) (protocol.ServerMessage, bool) {
	t.Helper()
	type result struct {
		msg protocol.ServerMessage
		ok  bool
	}
	ch := make(chan result, 1)
	go func() {
		msg, ok := ib.Recv()
		ch <- result{msg, ok}
	}()
	select {
	case r := <-ch:
		return r.msg, r.ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server message")
		return nil, false
	}
}

// idleHandler only ever blocks in Recv(), never sends — modeling a host
// session (shell, filexfer, tcprelay) sitting idle between client messages.
func idleHandler(_ context.Context, _ string, inbox *Inbox, _ chan<- protocol.Envelope) {
	for {
		if _, ok := inbox.Recv(); !ok {
			return
		}
	}
}

// TestRouterReturnsOnTransportCloseWithIdleSession covers §7's
// "TransportClosed: all sessions on that stream end" when the stream drops
// out from under a session that never received an explicit Disconnect —
// the ordinary case of a peer network drop or crash, not the exceptional
// one. Router.Run must still return promptly instead of hanging forever
// waiting on a handler blocked in Inbox.Recv().
func TestRouterReturnsOnTransportCloseWithIdleSession(t *testing.T) {
	hostConn, clientConn := net.Pipe()
	defer clientConn.Close()

	handlers := map[protocol.SessionType]HandlerFunc{
		protocol.Ping: idleHandler,
	}
	router := NewRouter(hostConn, handlers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- router.Run(ctx) }()

	cc := NewClientConn(clientConn)
	go cc.Run(ctx)

	id, err := shortid.Generate()
	require.NoError(t, err)
	cc.Open(id)
	cc.Send(id, protocol.Hello{SessionType: protocol.Ping})

	// Give the router a moment to spawn the handler, which then sits
	// blocked in inbox.Recv() with no further client messages ever arriving.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, router.ActiveSessions())

	// Simulate an ungraceful transport drop: no Disconnect is ever sent.
	hostConn.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Router.Run did not return after transport close with an idle session")
	}
}

func TestRouterRejectsDuplicateHello(t *testing.T) {
	hostConn, clientConn := net.Pipe()
	defer hostConn.Close()
	defer clientConn.Close()

	handlers := map[protocol.SessionType]HandlerFunc{
		protocol.Ping: echoHandler,
	}
	router := NewRouter(hostConn, handlers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go router.Run(ctx)

	cc := NewClientConn(clientConn)
	go cc.Run(ctx)

	id, err := shortid.Generate()
	require.NoError(t, err)
	box := cc.Open(id)
	cc.Send(id, protocol.Hello{SessionType: protocol.Ping})
	cc.Send(id, protocol.Hello{SessionType: protocol.Ping})
	cc.Send(id, protocol.PingRequest{Data: []byte("x")})

	msg, ok := recvWithTimeout(t, box)
	require.True(t, ok)
	out, isOutput := msg.(protocol.Output)
	require.True(t, isOutput)
	require.Equal(t, []byte("x"), out.Data)
	require.Equal(t, 1, router.ActiveSessions())
}
