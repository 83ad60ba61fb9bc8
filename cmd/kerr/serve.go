/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"
	"github.com/urfave/cli"

	"github.com/kerr-project/kerr/auth"
	"github.com/kerr-project/kerr/config"
	"github.com/kerr-project/kerr/connstr"
	"github.com/kerr-project/kerr/filexfer"
	"github.com/kerr-project/kerr/fsbrowse"
	"github.com/kerr-project/kerr/internal/nlog"
	"github.com/kerr-project/kerr/metrics"
	"github.com/kerr-project/kerr/netconn"
	"github.com/kerr-project/kerr/pingsvc"
	"github.com/kerr-project/kerr/protocol"
	"github.com/kerr-project/kerr/session"
	"github.com/kerr-project/kerr/shell"
	"github.com/kerr-project/kerr/tcprelay"
)

var serveCmd = cli.Command{
	Name:      "serve",
	Usage:     "run the host process: bind the transport, print a connection string, and serve sessions",
	ArgsUsage: " ",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "bind", Usage: "address to bind, host:port (port 0 picks any free port)"},
		cli.StringFlag{Name: "metrics-addr", Usage: "if set, serve Prometheus metrics on this address"},
		cli.BoolFlag{Name: "register", Usage: "register the connection string with the backend registry (requires a prior `kerr login`)"},
		cli.StringFlag{Name: "password", Usage: "admin password; required if one was set with `kerr config set-password`"},
	},
	Action: runServe,
}

var handlerTable = map[protocol.SessionType]session.HandlerFunc{
	protocol.Shell:        shell.Handle,
	protocol.FileTransfer: filexfer.Handle,
	protocol.FileBrowser:  fsbrowse.Handle,
	protocol.TcpRelay:     tcprelay.Handle,
	protocol.Ping:         pingsvc.Handle,
}

func runServe(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	if bind := c.String("bind"); bind != "" {
		cfg.BindAddr = bind
	}
	if cfg.AdminPasswordBlake3 != "" && !cfg.VerifyPassword(c.String("password")) {
		return errors.New("wrong or missing --password (set with `kerr config set-password`)")
	}

	acceptor, err := netconn.Listen(cfg.BindAddr)
	if err != nil {
		return errors.Wrap(err, "bind transport")
	}
	defer acceptor.Close()

	connString, err := connstr.Encode(connstr.Address{Addr: acceptor.Addr()})
	if err != nil {
		return errors.Wrap(err, "encode connection string")
	}
	color.New(color.FgCyan, color.Bold).Println(connString)

	if c.Bool("register") {
		sess, loadErr := auth.LoadSession()
		if loadErr != nil {
			return errors.Wrap(loadErr, "load auth session (run `kerr login` first)")
		}
		client := auth.NewClient(c.GlobalString("server"))
		if regErr := client.RegisterConnection(sess.SessionID, connString); regErr != nil {
			return errors.Wrap(regErr, "register connection")
		}
	}

	if addr := c.String("metrics-addr"); addr != "" {
		go func() {
			if err := metrics.Serve(addr); err != nil {
				nlog.Errorf("metrics server: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		nlog.Infoln("serve: shutting down")
		cancel()
	}()

	err = acceptor.Serve(ctx, func(ctx context.Context, stream quic.Stream) {
		router := session.NewRouter(stream, handlerTable)
		if err := router.Run(ctx); err != nil {
			nlog.Infof("serve: stream ended: %v", err)
		}
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
