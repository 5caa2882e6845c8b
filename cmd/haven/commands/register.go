// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/haven-foundation/haven/cmd/haven/cli"
)

func registerCommand() *cli.Command {
	var (
		configPath   string
		locator      string
		passwordFile string
	)
	return &cli.Command{
		Name:    "register",
		Summary: "Create a new account",
		Description: `Create a new account at the locator's derived address.

The password is read from the terminal, or from --password-file
("-" for stdin). Fails if the locator is already registered.`,
		Usage: "haven register --locator <locator> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("register", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "config file (default: HAVEN_CONFIG)")
			flags.StringVar(&locator, "locator", "", "account locator (username, email)")
			flags.StringVar(&passwordFile, "password-file", "", "read the password from this file ('-' for stdin)")
			return flags
		},
		Run: func(args []string) error {
			logger := cli.NewCommandLogger().With("command", "register")
			session, cleanup, err := openSession(
				context.Background(), configPath, locator, passwordFile, true, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Printf("registered %s\n", locator)
			fmt.Printf("account address: %s\n", session.Identity().AccountAddress())
			return nil
		},
	}
}
