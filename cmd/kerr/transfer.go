/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"

	"github.com/kerr-project/kerr/filexfer"
	"github.com/kerr-project/kerr/protocol"
)

var sendCmd = cli.Command{
	Name:      "send",
	Usage:     "upload a local file to the host",
	ArgsUsage: "<conn_string> <local> <remote>",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "force", Usage: "overwrite an existing remote file without prompting"},
	},
	Action: runSend,
}

var pullCmd = cli.Command{
	Name:      "pull",
	Usage:     "download a file from the host",
	ArgsUsage: "<conn_string> <remote> <local>",
	Action:    runPull,
}

func runSend(c *cli.Context) error {
	args := c.Args()
	if len(args) < 3 {
		return errors.New("usage: kerr send <conn_string> <local> <remote>")
	}
	connString, local, remote := args[0], args[1], args[2]
	force := c.Bool("force")

	info, err := os.Stat(local)
	if err != nil {
		return errors.Wrap(err, "stat local file")
	}
	if info.IsDir() {
		return errors.New("directory upload is not supported: no on-wire file boundary framing defined")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, cc, sid, inbox, runErr, err := openSession(ctx, connString, protocol.FileTransfer)
	if err != nil {
		return err
	}
	defer conn.CloseWithError(0, "transfer done")
	defer cc.Close(sid)

	cc.Send(sid, protocol.StartUpload{Path: remote, Size: uint64(info.Size()), IsDir: false, Force: force})

	msgs := serverInboxChan(inbox)
	stdin := bufio.NewReader(os.Stdin)
waitAck:
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return <-runErr
			}
			switch m := msg.(type) {
			case protocol.ConfirmPrompt:
				fmt.Fprint(os.Stderr, m.Message+" [y/N] ")
				line, _ := stdin.ReadString('\n')
				confirmed := strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y")
				cc.Send(sid, protocol.ConfirmResponse{Confirmed: confirmed})
				if !confirmed {
					return errors.New("upload cancelled")
				}
			case protocol.UploadAck:
				break waitAck
			case protocol.Error:
				return errors.New(m.Message)
			}
		case err := <-runErr:
			return err
		}
	}

	f, err := os.Open(local)
	if err != nil {
		return errors.Wrap(err, "open local file")
	}
	defer f.Close()

	p := mpb.New(mpb.WithWidth(60))
	bar := p.AddBar(info.Size(),
		mpb.PrependDecorators(decor.Name(remote)),
		mpb.AppendDecorators(decor.Percentage()),
	)

	buf := make([]byte, filexfer.ChunkSize)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			cc.Send(sid, protocol.FileChunkC{Data: cp})
			bar.IncrBy(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return errors.Wrap(readErr, "read local file")
		}
	}
	cc.Send(sid, protocol.EndUpload{})
	p.Wait()
	return nil
}

func runPull(c *cli.Context) error {
	args := c.Args()
	if len(args) < 3 {
		return errors.New("usage: kerr pull <conn_string> <remote> <local>")
	}
	connString, remote, local := args[0], args[1], args[2]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, cc, sid, inbox, runErr, err := openSession(ctx, connString, protocol.FileTransfer)
	if err != nil {
		return err
	}
	defer conn.CloseWithError(0, "transfer done")
	defer cc.Close(sid)

	cc.Send(sid, protocol.RequestDownload{Path: remote})

	msgs := serverInboxChan(inbox)

	msg, ok := <-msgs
	if !ok {
		return <-runErr
	}
	start, isStart := msg.(protocol.StartDownload)
	if errm, isErr := msg.(protocol.Error); isErr {
		return errors.New(errm.Message)
	}
	if !isStart {
		return errors.Errorf("unexpected response to RequestDownload: %T", msg)
	}
	if start.IsDir {
		// The host streams directory contents as concatenated chunks with no
		// per-file boundaries, so there is nothing to reassemble a tree from.
		return errors.New("directory pull is not supported: the chunk stream carries no per-file boundaries")
	}

	f, err := os.Create(local)
	if err != nil {
		return errors.Wrap(err, "create local file")
	}
	defer f.Close()

	p := mpb.New(mpb.WithWidth(60))
	bar := p.AddBar(int64(start.Size),
		mpb.PrependDecorators(decor.Name(remote)),
		mpb.AppendDecorators(decor.Percentage()),
	)

	for {
		msg, ok := <-msgs
		if !ok {
			return <-runErr
		}
		switch m := msg.(type) {
		case protocol.FileChunkS:
			if _, err := f.Write(m.Data); err != nil {
				return errors.Wrap(err, "write local file")
			}
			bar.IncrBy(len(m.Data))
		case protocol.EndDownload:
			p.Wait()
			return nil
		case protocol.Error:
			return errors.New(m.Message)
		}
	}
}
