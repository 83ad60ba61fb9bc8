/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/kerr-project/kerr/config"
)

var configCmd = cli.Command{
	Name:  "config",
	Usage: "inspect or change the persisted server configuration",
	Subcommands: []cli.Command{
		{
			Name:      "set-password",
			Usage:     "set the admin password required to run `kerr serve` (blake3-hashed at rest)",
			ArgsUsage: "[password]",
			Action:    runConfigSetPassword,
		},
	},
}

func runConfigSetPassword(c *cli.Context) error {
	password := c.Args().First()
	if password == "" {
		fmt.Fprint(os.Stderr, "new admin password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return errors.Wrap(err, "read password")
		}
		password = trimNewline(line)
	}
	if password == "" {
		return errors.New("password must not be empty")
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	cfg.AdminPasswordBlake3 = config.HashPassword(password)
	if err := config.Save(cfg); err != nil {
		return errors.Wrap(err, "save config")
	}
	fmt.Println("password updated")
	return nil
}
