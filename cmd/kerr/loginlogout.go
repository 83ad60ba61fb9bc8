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

	"github.com/kerr-project/kerr/auth"
)

var loginCmd = cli.Command{
	Name:      "login",
	Usage:     "sign in with a one-time device code and persist the resulting session",
	ArgsUsage: "[code]",
	Action:    runLogin,
}

var logoutCmd = cli.Command{
	Name:   "logout",
	Usage:  "invalidate and remove the persisted session",
	Action: runLogout,
}

func runLogin(c *cli.Context) error {
	code := c.Args().First()
	if code == "" {
		fmt.Fprint(os.Stderr, "device code: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return errors.Wrap(err, "read device code")
		}
		code = trimNewline(line)
	}

	client := auth.NewClient(c.GlobalString("server"))
	sess, err := client.LoginWithCode(code)
	if err != nil {
		return errors.Wrap(err, "login")
	}
	if err := auth.SaveSession(sess); err != nil {
		return errors.Wrap(err, "save session")
	}
	fmt.Println("logged in")
	return nil
}

func runLogout(c *cli.Context) error {
	sess, err := auth.LoadSession()
	if err != nil {
		return errors.Wrap(err, "load session (are you logged in?)")
	}
	client := auth.NewClient(c.GlobalString("server"))
	if err := client.Logout(sess.SessionID); err != nil {
		return errors.Wrap(err, "logout")
	}
	path, err := auth.SessionPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove session file")
	}
	fmt.Println("logged out")
	return nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
