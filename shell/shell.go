// Package shell implements the host side of a PTY-backed interactive shell
// session (§4.4): a pseudo-terminal pair, a spawned login-like child, and
// two pumps moving bytes between the PTY and the session's inbox/outbound
// channel.
/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package shell

import (
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"

	"github.com/kerr-project/kerr/internal/nlog"
	"github.com/kerr-project/kerr/metrics"
	"github.com/kerr-project/kerr/protocol"
	"github.com/kerr-project/kerr/session"
)

const (
	defaultCols = 80
	defaultRows = 24
	readChunk   = 8 << 10
)

// Handle implements session.HandlerFunc for protocol.Shell.
func Handle(ctx context.Context, sessionID string, inbox *session.Inbox, out chan<- protocol.Envelope) {
	cols, rows := uint16(defaultCols), uint16(defaultRows)

	// A leading Resize (already queued by a client that knows its terminal
	// size before the PTY exists) sets the initial geometry instead of the
	// default 80x24 and is not dispatched again; any other first message is
	// kept and dispatched once the PTY exists, ahead of the loop below.
	first, ok := inbox.Recv()
	if !ok {
		return
	}
	pending := first
	if r, isResize := first.(protocol.Resize); isResize {
		cols, rows = r.Cols, r.Rows
		pending = nil
	}

	cmd := loginShellCmd()
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		send(out, sessionID, protocol.Error{Message: "failed to start shell: " + err.Error()})
		nlog.Errorf("shell %s: pty start: %v", sessionID, err)
		return
	}
	defer ptmx.Close()

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go ptyToClientPump(sessionID, ptmx, out, done)

	if pending != nil {
		dispatch(pending, ptmx, cancel)
	}
	// dispatch cancels pumpCtx on Disconnect or a PTY write error; entering
	// the pump then would block in inbox.Recv with nothing left to wake it.
	if pumpCtx.Err() == nil {
		clientToPTYPump(pumpCtx, inbox, ptmx, cancel)
	}

	// The client pump can return on Disconnect/ctx-cancel while the child is
	// still alive; kill it first so the PTY read in ptyToClientPump unblocks
	// with EOF instead of leaving done permanently unclosed.
	_ = cmd.Process.Kill()
	<-done
	_, _ = cmd.Process.Wait()
	nlog.Infof("shell %s: session ended", sessionID)
}

func loginShellCmd() *exec.Cmd {
	shellPath := os.Getenv("SHELL")
	if shellPath == "" {
		shellPath = "/bin/bash"
	}
	cmd := exec.Command(shellPath, "-l")
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	return cmd
}

// ptyToClientPump reads from the PTY master on a dedicated goroutine (the
// read is blocking on every platform this runs on) and emits Output frames
// until EOF or error, then emits one terminal Error frame.
func ptyToClientPump(sessionID string, ptmx *os.File, out chan<- protocol.Envelope, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, readChunk)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			metrics.BytesOut.WithLabelValues(protocol.Shell.String()).Add(float64(n))
			send(out, sessionID, protocol.Output{Data: cp})
		}
		if err != nil {
			reason := err.Error()
			if err == io.EOF {
				reason = "shell exited"
			}
			send(out, sessionID, protocol.Error{Message: "Session ended: " + reason})
			return
		}
	}
}

// clientToPTYPump drains the inbox until Disconnect, ctx cancellation, or
// inbox closure (stream/session teardown), dispatching each message.
func clientToPTYPump(ctx context.Context, inbox *session.Inbox, ptmx *os.File, cancel context.CancelFunc) {
	for {
		msg, ok := inbox.Recv()
		if !ok {
			return
		}
		if _, isDisconnect := msg.(protocol.Disconnect); isDisconnect {
			return
		}
		dispatch(msg, ptmx, cancel)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func dispatch(msg protocol.ClientMessage, ptmx *os.File, cancel context.CancelFunc) {
	switch m := msg.(type) {
	case protocol.KeyEvent:
		if _, err := ptmx.Write(m.Data); err != nil {
			nlog.Warningf("shell: pty write: %v", err)
			cancel()
			return
		}
		metrics.BytesIn.WithLabelValues(protocol.Shell.String()).Add(float64(len(m.Data)))
	case protocol.Resize:
		if err := pty.Setsize(ptmx, &pty.Winsize{Cols: m.Cols, Rows: m.Rows}); err != nil {
			nlog.Warningf("shell: resize: %v", err)
		}
	case protocol.Disconnect:
		cancel()
	default:
		nlog.Warningf("shell: ignoring unexpected message %T", msg)
	}
}

func send(out chan<- protocol.Envelope, sessionID string, m protocol.ServerMessage) {
	out <- protocol.Envelope{SessionID: sessionID, Payload: protocol.ServerMsg{M: m}}
}
