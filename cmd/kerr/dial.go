/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"
	"github.com/teris-io/shortid"

	"github.com/kerr-project/kerr/connstr"
	"github.com/kerr-project/kerr/netconn"
	"github.com/kerr-project/kerr/protocol"
	"github.com/kerr-project/kerr/session"
)

// openSession decodes connString, dials the host, opens one bidirectional
// stream, drives a session.ClientConn on it in the background, and opens a
// single logical session of sessType on that connection. The caller is
// responsible for eventually calling cc.Close(sessionID) and conn.CloseWithError.
func openSession(ctx context.Context, connString string, sessType protocol.SessionType) (
	conn quic.Connection, cc *session.ClientConn, sessionID string, inbox *session.ServerInbox, runErr <-chan error, err error,
) {
	addr, err := connstr.Decode(connString)
	if err != nil {
		return nil, nil, "", nil, nil, errors.Wrap(err, "decode connection string")
	}

	conn, stream, err := netconn.Dial(ctx, addr.Addr)
	if err != nil {
		return nil, nil, "", nil, nil, errors.Wrap(err, "dial host")
	}

	cc = session.NewClientConn(stream)
	errCh := make(chan error, 1)
	go func() { errCh <- cc.Run(ctx) }()

	sessionID, err = shortid.Generate()
	if err != nil {
		conn.CloseWithError(0, "session id generation failed")
		return nil, nil, "", nil, nil, errors.Wrap(err, "generate session id")
	}

	inbox = cc.Open(sessionID)
	cc.Send(sessionID, protocol.Hello{SessionType: sessType})

	return conn, cc, sessionID, inbox, errCh, nil
}
