/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/kerr-project/kerr/protocol"
)

var browseCmd = cli.Command{
	Name:      "browse",
	Usage:     "interactively browse the host's filesystem (ls/stat/cat/hash/rm/quit)",
	ArgsUsage: "<conn_string>",
	Action:    runBrowse,
}

func runBrowse(c *cli.Context) error {
	connString := c.Args().First()
	if connString == "" {
		return errors.New("missing <conn_string>")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, cc, sid, inbox, runErr, err := openSession(ctx, connString, protocol.FileBrowser)
	if err != nil {
		return err
	}
	defer conn.CloseWithError(0, "browse done")
	defer cc.Close(sid)

	msgs := serverInboxChan(inbox)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintln(os.Stderr, "kerr browse: ls/stat/cat/hash/rm <path>, quit")
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			cc.Send(sid, protocol.Disconnect{})
			return nil
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmdName, path := fields[0], ""
		if len(fields) > 1 {
			path = fields[1]
		}

		switch cmdName {
		case "quit", "exit":
			cc.Send(sid, protocol.Disconnect{})
			return nil
		case "ls":
			cc.Send(sid, protocol.FsReadDir{Path: path})
		case "stat":
			cc.Send(sid, protocol.FsMetadata{Path: path})
		case "cat":
			cc.Send(sid, protocol.FsReadFile{Path: path})
		case "hash":
			cc.Send(sid, protocol.FsHashFile{Path: path})
		case "rm":
			cc.Send(sid, protocol.FsDelete{Path: path})
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n", cmdName)
			continue
		}

		select {
		case msg, ok := <-msgs:
			if !ok {
				return <-runErr
			}
			printBrowseResponse(msg)
		case err := <-runErr:
			return err
		}
	}
}

func printBrowseResponse(msg protocol.ServerMessage) {
	switch m := msg.(type) {
	case protocol.FsDirListing:
		for _, e := range m.Entries {
			hidden := ""
			if e.IsHidden {
				hidden = " (hidden)"
			}
			fmt.Println(e.Name + hidden)
		}
	case protocol.FsMetadataResponse:
		fmt.Printf("size=%d is_dir=%v modified=%d\n", m.Metadata.Size, m.Metadata.IsDir, m.Metadata.Modified)
	case protocol.FsFileContent:
		os.Stdout.Write(m.Data)
		fmt.Println()
	case protocol.FsHashResponse:
		fmt.Println(m.Hex)
	case protocol.FsDeleteResponse:
		fmt.Println("deleted:", m.Success)
	case protocol.FsError:
		fmt.Fprintln(os.Stderr, "error:", m.Message)
	}
}
