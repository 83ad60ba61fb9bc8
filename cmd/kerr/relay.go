/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package main

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/kerr-project/kerr/internal/nlog"
	"github.com/kerr-project/kerr/protocol"
	"github.com/kerr-project/kerr/tcprelay"
)

var relayCmd = cli.Command{
	Name:      "relay",
	Usage:     "forward a local TCP port to a port on the host's loopback",
	ArgsUsage: "<conn_string> <local_port> <remote_port>",
	Action:    runRelay,
}

func runRelay(c *cli.Context) error {
	args := c.Args()
	if len(args) < 3 {
		return errors.New("usage: kerr relay <conn_string> <local_port> <remote_port>")
	}
	connString := args[0]
	localPort, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return errors.Wrap(err, "parse local_port")
	}
	remotePort, err := strconv.ParseUint(args[2], 10, 16)
	if err != nil {
		return errors.Wrap(err, "parse remote_port")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, cc, sid, inbox, runErr, err := openSession(ctx, connString, protocol.TcpRelay)
	if err != nil {
		return err
	}
	defer conn.CloseWithError(0, "relay done")
	defer cc.Close(sid)

	dialer := tcprelay.NewDialer(sid, cc)

	go func() {
		for {
			msg, ok := inbox.Recv()
			if !ok {
				return
			}
			dialer.Dispatch(msg)
		}
	}()

	nlog.Infof("relay: forwarding 127.0.0.1:%d -> host:%d", localPort, remotePort)
	serveErr := make(chan error, 1)
	go func() { serveErr <- dialer.ListenAndServe(uint16(localPort), uint16(remotePort)) }()

	select {
	case err := <-serveErr:
		return err
	case err := <-runErr:
		return err
	}
}
