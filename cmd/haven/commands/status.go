// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/haven-foundation/haven/account"
	"github.com/haven-foundation/haven/cmd/haven/cli"
)

// sortedGrantNames returns the grant container names in stable order.
func sortedGrantNames(grants map[string]account.Grant) []string {
	names := make([]string, 0, len(grants))
	for name := range grants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func statusCommand() *cli.Command {
	var (
		configPath   string
		locator      string
		passwordFile string
	)
	return &cli.Command{
		Name:    "status",
		Summary: "Show the account's containers, apps, and pending revocations",
		Usage:   "haven status --locator <locator> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "config file (default: HAVEN_CONFIG)")
			flags.StringVar(&locator, "locator", "", "account locator")
			flags.StringVar(&passwordFile, "password-file", "", "read the password from this file ('-' for stdin)")
			return flags
		},
		Run: func(args []string) error {
			ctx := context.Background()
			logger := cli.NewCommandLogger().With("command", "status")
			session, cleanup, err := openSession(ctx, configPath, locator, passwordFile, false, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			container, err := session.Account().Read(ctx)
			if err != nil {
				return err
			}
			pending, err := session.PendingRevocations(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("account: %s\n", session.Identity().AccountAddress())
			fmt.Printf("access container: %s (version %d)\n\n",
				session.Account().AccessAddress(), container.Version)

			names := make([]string, 0, len(container.Registry))
			for name := range container.Registry {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Printf("containers (%d):\n", len(names))
			for _, name := range names {
				fmt.Printf("  %s  %s\n", name, container.Registry[name].Address)
			}

			appIDs := make([]string, 0, len(container.Apps))
			for appID := range container.Apps {
				appIDs = append(appIDs, string(appID))
			}
			sort.Strings(appIDs)
			fmt.Printf("\napplications (%d):\n", len(appIDs))
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			for _, appID := range appIDs {
				entry := container.Apps[account.AppID(appID)]
				for _, name := range sortedGrantNames(entry.Grants) {
					fmt.Fprintf(tw, "  %s\t%s\t%s\n", appID, name, entry.Grants[name].Rights)
				}
			}
			tw.Flush()

			if len(pending) > 0 {
				fmt.Printf("\npending revocations (%d):\n", len(pending))
				for _, appID := range pending {
					fmt.Printf("  %s\n", appID)
				}
				fmt.Println("\nrun 'haven revocation resume' to complete them")
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
