/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"golang.org/x/term"

	"github.com/kerr-project/kerr/protocol"
	"github.com/kerr-project/kerr/session"
)

var connectCmd = cli.Command{
	Name:      "connect",
	Usage:     "open an interactive shell session",
	ArgsUsage: "<conn_string>",
	Action:    runConnect,
}

func runConnect(c *cli.Context) error {
	connString := c.Args().First()
	if connString == "" {
		return errors.New("missing <conn_string>")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, cc, sid, inbox, runErr, err := openSession(ctx, connString, protocol.Shell)
	if err != nil {
		return err
	}
	defer conn.CloseWithError(0, "session done")
	defer cc.Close(sid)

	fd := int(os.Stdin.Fd())
	if cols, rows, sizeErr := term.GetSize(fd); sizeErr == nil {
		cc.Send(sid, protocol.Resize{Cols: uint16(cols), Rows: uint16(rows)})
	}

	if term.IsTerminal(fd) {
		oldState, rawErr := term.MakeRaw(fd)
		if rawErr == nil {
			defer term.Restore(fd, oldState)
		}
	}

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	go func() {
		for range winch {
			if cols, rows, sizeErr := term.GetSize(fd); sizeErr == nil {
				cc.Send(sid, protocol.Resize{Cols: uint16(cols), Rows: uint16(rows)})
			}
		}
	}()
	defer signal.Stop(winch)

	stdinClosed := make(chan struct{})
	go func() {
		defer close(stdinClosed)
		buf := make([]byte, 4096)
		for {
			n, readErr := os.Stdin.Read(buf)
			if n > 0 {
				cp := make([]byte, n)
				copy(cp, buf[:n])
				cc.Send(sid, protocol.KeyEvent{Data: cp})
			}
			if readErr != nil {
				return
			}
		}
	}()

	serverMsgs := serverInboxChan(inbox)
	for {
		select {
		case msg, ok := <-serverMsgs:
			if !ok {
				cc.Send(sid, protocol.Disconnect{})
				return <-runErr
			}
			switch m := msg.(type) {
			case protocol.Output:
				os.Stdout.Write(m.Data)
			case protocol.Error:
				os.Stdout.Write([]byte(m.Message + "\r\n"))
				cc.Send(sid, protocol.Disconnect{})
				return nil
			}
		case <-stdinClosed:
			cc.Send(sid, protocol.Disconnect{})
			return <-runErr
		}
	}
}

// serverInboxChan adapts a *session.ServerInbox's blocking Recv into a
// channel, spawning exactly one drain goroutine for the inbox's lifetime so
// it can be selected alongside other readiness signals without leaking a
// goroutine per message.
func serverInboxChan(inbox *session.ServerInbox) <-chan protocol.ServerMessage {
	ch := make(chan protocol.ServerMessage)
	go func() {
		defer close(ch)
		for {
			msg, ok := inbox.Recv()
			if !ok {
				return
			}
			ch <- msg
		}
	}()
	return ch
}
