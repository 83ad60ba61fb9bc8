package tcprelay

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kerr-project/kerr/protocol"
	"github.com/kerr-project/kerr/session"
)

// echoListener accepts one connection and echoes everything it reads back
// to the same connection, until EOF.
func echoListener(t *testing.T) (port uint16, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if n > 0 {
						c.Write(buf[:n])
					}
					if err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return uint16(addr.Port), func() { ln.Close() }
}

func recvOut(t *testing.T, out chan protocol.Envelope) protocol.ServerMessage {
	t.Helper()
	select {
	case env := <-out:
		sm, ok := env.Payload.(protocol.ServerMsg)
		require.True(t, ok)
		return sm.M
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relay response")
		return nil
	}
}

func TestTwoFlowsIndependentOrderAndClose(t *testing.T) {
	port, stop := echoListener(t)
	defer stop()

	inbox := session.NewInbox()
	out := make(chan protocol.Envelope, 64)
	go Handle(context.Background(), "sess-1", inbox, out)

	inbox.Send(protocol.TcpOpen{StreamID: 1, DestinationPort: port})
	resp1 := recvOut(t, out).(protocol.TcpOpenResponse)
	require.True(t, resp1.Success)
	require.Equal(t, uint32(1), resp1.StreamID)

	inbox.Send(protocol.TcpOpen{StreamID: 2, DestinationPort: port})
	resp2 := recvOut(t, out).(protocol.TcpOpenResponse)
	require.True(t, resp2.Success)
	require.Equal(t, uint32(2), resp2.StreamID)

	inbox.Send(protocol.TcpData{StreamID: 1, Data: []byte("aaa")})
	inbox.Send(protocol.TcpData{StreamID: 2, Data: []byte("bbb")})
	inbox.Send(protocol.TcpData{StreamID: 1, Data: []byte("ccc")})

	seenStream1 := []byte{}
	seenStream2 := []byte{}
	// TCP keeps no write boundaries: the echoed "aaa" and "ccc" may come back
	// in one read, so collect until each flow has delivered all its bytes.
	for len(seenStream1) < len("aaaccc") || len(seenStream2) < len("bbb") {
		msg := recvOut(t, out)
		d, ok := msg.(protocol.TcpDataResponse)
		require.True(t, ok)
		if d.StreamID == 1 {
			seenStream1 = append(seenStream1, d.Data...)
		} else {
			seenStream2 = append(seenStream2, d.Data...)
		}
	}
	require.Equal(t, "aaaccc", string(seenStream1))
	require.Equal(t, "bbb", string(seenStream2))

	inbox.Send(protocol.TcpClose{StreamID: 1})
	closeMsg := recvOut(t, out)
	closed, ok := closeMsg.(protocol.TcpCloseResponse)
	require.True(t, ok)
	require.Equal(t, uint32(1), closed.StreamID)

	inbox.Send(protocol.TcpData{StreamID: 2, Data: []byte("still-open")})
	msg := recvOut(t, out)
	d, ok := msg.(protocol.TcpDataResponse)
	require.True(t, ok)
	require.Equal(t, uint32(2), d.StreamID)
	require.Equal(t, "still-open", string(d.Data))

	inbox.Close()
}

func TestOpenFailureOnUnreachablePort(t *testing.T) {
	inbox := session.NewInbox()
	out := make(chan protocol.Envelope, 4)
	go Handle(context.Background(), "sess-2", inbox, out)

	inbox.Send(protocol.TcpOpen{StreamID: 7, DestinationPort: 1})
	resp := recvOut(t, out).(protocol.TcpOpenResponse)
	require.False(t, resp.Success)
	require.NotEmpty(t, resp.Error)

	inbox.Close()
}
