/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/kerr-project/kerr/metrics"
	"github.com/kerr-project/kerr/protocol"
)

var pingCmd = cli.Command{
	Name:      "ping",
	Usage:     "measure round-trip time to the host",
	ArgsUsage: "<conn_string>",
	Action:    runPing,
}

func runPing(c *cli.Context) error {
	connString := c.Args().First()
	if connString == "" {
		return errors.New("missing <conn_string>")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, cc, sid, inbox, runErr, err := openSession(ctx, connString, protocol.Ping)
	if err != nil {
		return err
	}
	defer conn.CloseWithError(0, "ping done")
	defer cc.Close(sid)

	payload := []byte("kerr-ping")
	start := time.Now()
	cc.Send(sid, protocol.PingRequest{Data: payload})

	msg, ok := inbox.Recv()
	if !ok {
		return <-runErr
	}
	resp, isPong := msg.(protocol.PingResponse)
	if !isPong {
		return errors.Errorf("unexpected response to PingRequest: %T", msg)
	}
	rtt := time.Since(start)
	metrics.PingRTTSeconds.Observe(rtt.Seconds())

	if string(resp.Data) != string(payload) {
		return errors.New("ping response payload mismatch")
	}
	color.New(color.FgGreen).Printf("pong")
	fmt.Printf(" in %s\n", rtt)
	return nil
}
