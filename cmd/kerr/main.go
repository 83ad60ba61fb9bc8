// Package main is the kerr CLI: one binary exposing every subcommand the
// protocol core drives (§6 "CLI"). Modeled on the teacher's cmd/cli/cli -
// a thin urfave/cli.App wiring flags and Action funcs to library packages,
// with no protocol logic of its own.
/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/kerr-project/kerr/internal/nlog"
)

var (
	build = "dev" // set via -ldflags at release build time
)

func main() {
	app := cli.NewApp()
	app.Name = "kerr"
	app.Usage = "peer-to-peer remote access: shell, file transfer, file browser, TCP relay, ping"
	app.Version = build
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "server", Usage: "backend registry URL", Value: "https://api.kerr.dev"},
		cli.BoolFlag{Name: "verbose, v", Usage: "enable debug logging"},
		cli.StringFlag{Name: "log-file", Usage: "write logs to this path instead of stderr"},
	}
	app.Before = func(c *cli.Context) error {
		nlog.SetVerbose(c.GlobalBool("verbose"))
		if path := c.GlobalString("log-file"); path != "" {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return err
			}
			nlog.SetOutput(f)
		}
		return nil
	}
	app.Commands = []cli.Command{
		serveCmd,
		connectCmd,
		sendCmd,
		pullCmd,
		browseCmd,
		relayCmd,
		pingCmd,
		loginCmd,
		logoutCmd,
		configCmd,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "kerr:", err)
		nlog.Flush()
		os.Exit(1)
	}
	nlog.Flush()
}
