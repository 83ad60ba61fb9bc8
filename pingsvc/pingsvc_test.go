package pingsvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kerr-project/kerr/protocol"
	"github.com/kerr-project/kerr/session"
)

func TestPingEchoesPayloadExactlyOnce(t *testing.T) {
	inbox := session.NewInbox()
	out := make(chan protocol.Envelope, 4)
	go Handle(context.Background(), "sess-1", inbox, out)

	payload := []byte{1, 2, 3, 4, 5}
	inbox.Send(protocol.PingRequest{Data: payload})

	select {
	case env := <-out:
		sm := env.Payload.(protocol.ServerMsg)
		resp, ok := sm.M.(protocol.PingResponse)
		require.True(t, ok)
		require.Equal(t, payload, resp.Data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ping response")
	}

	select {
	case env := <-out:
		t.Fatalf("unexpected extra message: %+v", env)
	case <-time.After(50 * time.Millisecond):
	}

	inbox.Close()
}
