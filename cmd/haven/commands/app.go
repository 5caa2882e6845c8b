// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/haven-foundation/haven/account"
	"github.com/haven-foundation/haven/authority"
	"github.com/haven-foundation/haven/cmd/haven/cli"
)

func appCommand() *cli.Command {
	return &cli.Command{
		Name:    "app",
		Summary: "Authorize, list, and revoke applications",
		Subcommands: []*cli.Command{
			appAuthorizeCommand(),
			appListCommand(),
			appRevokeCommand(),
		},
	}
}

// parseGrant parses a --grant value of the form
// "container:right[,right...]", e.g. "docs:read,insert".
func parseGrant(spec string) (authority.Permission, error) {
	name, rightsSpec, ok := strings.Cut(spec, ":")
	if !ok || name == "" || rightsSpec == "" {
		return authority.Permission{}, fmt.Errorf(
			"invalid grant %q, expected container:right[,right...]", spec)
	}
	var rights account.RightSet
	for _, rightName := range strings.Split(rightsSpec, ",") {
		right, ok := account.ParseRight(rightName)
		if !ok {
			return authority.Permission{}, fmt.Errorf(
				"unknown right %q in grant %q", rightName, spec)
		}
		rights = rights.Union(account.Rights(right))
	}
	return authority.Permission{Container: name, Rights: rights}, nil
}

func appAuthorizeCommand() *cli.Command {
	var (
		configPath   string
		locator      string
		passwordFile string
		appID        string
		grants       []string
		newContainer string
	)
	return &cli.Command{
		Name:    "authorize",
		Summary: "Grant an application access to containers",
		Description: `Grant an application access to named containers.

Each --grant names an existing container and the rights to grant,
e.g. --grant docs:read,insert. --new-container provisions a fresh
dedicated container with full rights. On first authorization the
application's private keys are printed once - they are not stored
anywhere and must be retained by the application.`,
		Usage: "haven app authorize --locator <locator> --app <app-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("authorize", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "config file (default: HAVEN_CONFIG)")
			flags.StringVar(&locator, "locator", "", "account locator")
			flags.StringVar(&passwordFile, "password-file", "", "read the password from this file ('-' for stdin)")
			flags.StringVar(&appID, "app", "", "application identifier (reverse-DNS)")
			flags.StringArrayVar(&grants, "grant", nil, "container:right[,right...] (repeatable)")
			flags.StringVar(&newContainer, "new-container", "", "provision a dedicated container under this name")
			return flags
		},
		Run: func(args []string) error {
			if appID == "" {
				return fmt.Errorf("--app is required")
			}
			request := authority.Request{
				AppID:        account.AppID(appID),
				NewContainer: newContainer,
			}
			for _, spec := range grants {
				permission, err := parseGrant(spec)
				if err != nil {
					return err
				}
				request.Permissions = append(request.Permissions, permission)
			}

			ctx := context.Background()
			logger := cli.NewCommandLogger().With("command", "app/authorize")
			session, cleanup, err := openSession(ctx, configPath, locator, passwordFile, false, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			grant, err := session.Authorize(ctx, request)
			if err != nil {
				return err
			}
			defer grant.Close()

			fmt.Printf("authorized %s\n", grant.AppID)
			fmt.Printf("access container: %s\n", grant.AccessAddress)
			if grant.SignPrivateKey != nil {
				fmt.Printf("sign private key: %x\n", grant.SignPrivateKey.Bytes())
				fmt.Printf("encrypt private key: %s\n", grant.EncryptPrivateKey.String())
				fmt.Println("(first authorization: store these keys now, they are not kept)")
			}
			for _, ref := range grant.Refs {
				fmt.Printf("container %s: %s\n", ref.Name, ref.Address)
			}
			return nil
		},
	}
}

func appListCommand() *cli.Command {
	var (
		configPath   string
		locator      string
		passwordFile string
	)
	return &cli.Command{
		Name:    "list",
		Summary: "List authorized applications and their grants",
		Usage:   "haven app list --locator <locator> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "config file (default: HAVEN_CONFIG)")
			flags.StringVar(&locator, "locator", "", "account locator")
			flags.StringVar(&passwordFile, "password-file", "", "read the password from this file ('-' for stdin)")
			return flags
		},
		Run: func(args []string) error {
			ctx := context.Background()
			logger := cli.NewCommandLogger().With("command", "app/list")
			session, cleanup, err := openSession(ctx, configPath, locator, passwordFile, false, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			container, err := session.Account().Read(ctx)
			if err != nil {
				return err
			}
			for appID, entry := range container.Apps {
				for _, name := range sortedGrantNames(entry.Grants) {
					fmt.Printf("%s\t%s\t%s\n", appID, name, entry.Grants[name].Rights)
				}
			}
			return nil
		},
	}
}

func appRevokeCommand() *cli.Command {
	var (
		configPath   string
		locator      string
		passwordFile string
		appID        string
	)
	return &cli.Command{
		Name:    "revoke",
		Summary: "Revoke an application and re-key its containers",
		Description: `Revoke an application's access.

Every container the application could read is re-keyed and the new
keys re-issued to the remaining applications. Progress is
checkpointed: if the command is interrupted or the network drops
out, re-run it (or 'haven revocation resume') to finish.`,
		Usage: "haven app revoke --locator <locator> --app <app-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("revoke", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "config file (default: HAVEN_CONFIG)")
			flags.StringVar(&locator, "locator", "", "account locator")
			flags.StringVar(&passwordFile, "password-file", "", "read the password from this file ('-' for stdin)")
			flags.StringVar(&appID, "app", "", "application identifier")
			return flags
		},
		Run: func(args []string) error {
			if appID == "" {
				return fmt.Errorf("--app is required")
			}
			ctx := context.Background()
			logger := cli.NewCommandLogger().With("command", "app/revoke")
			session, cleanup, err := openSession(ctx, configPath, locator, passwordFile, false, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := session.Revoke(ctx, account.AppID(appID)); err != nil {
				return err
			}
			fmt.Printf("revoked %s\n", appID)
			return nil
		},
	}
}

func revocationCommand() *cli.Command {
	var (
		configPath   string
		locator      string
		passwordFile string
	)
	return &cli.Command{
		Name:    "revocation",
		Summary: "Inspect and resume interrupted revocations",
		Subcommands: []*cli.Command{
			{
				Name:    "resume",
				Summary: "Complete every pending revocation",
				Usage:   "haven revocation resume --locator <locator> [flags]",
				Flags: func() *pflag.FlagSet {
					flags := pflag.NewFlagSet("resume", pflag.ContinueOnError)
					flags.StringVar(&configPath, "config", "", "config file (default: HAVEN_CONFIG)")
					flags.StringVar(&locator, "locator", "", "account locator")
					flags.StringVar(&passwordFile, "password-file", "", "read the password from this file ('-' for stdin)")
					return flags
				},
				Run: func(args []string) error {
					ctx := context.Background()
					logger := cli.NewCommandLogger().With("command", "revocation/resume")
					session, cleanup, err := openSession(ctx, configPath, locator, passwordFile, false, logger)
					if err != nil {
						return err
					}
					defer cleanup()

					pending, err := session.PendingRevocations(ctx)
					if err != nil {
						return err
					}
					if len(pending) == 0 {
						fmt.Println("no pending revocations")
						return nil
					}
					if err := session.ResumeRevocations(ctx); err != nil {
						return err
					}
					fmt.Printf("completed %d revocation(s)\n", len(pending))
					return nil
				},
			},
		},
	}
}
