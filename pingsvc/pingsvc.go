// Package pingsvc implements the host side of the ping session (§4.8): a
// trivial echo used by clients to measure round-trip time.
/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package pingsvc

import (
	"context"

	"github.com/kerr-project/kerr/protocol"
	"github.com/kerr-project/kerr/session"
)

// Handle implements session.HandlerFunc for protocol.Ping.
func Handle(_ context.Context, sessionID string, inbox *session.Inbox, out chan<- protocol.Envelope) {
	for {
		msg, ok := inbox.Recv()
		if !ok {
			return
		}
		switch m := msg.(type) {
		case protocol.PingRequest:
			out <- protocol.Envelope{
				SessionID: sessionID,
				Payload:   protocol.ServerMsg{M: protocol.PingResponse{Data: m.Data}},
			}
		case protocol.Disconnect:
			return
		}
	}
}
