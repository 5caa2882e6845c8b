// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/haven-foundation/haven/authority"
	"github.com/haven-foundation/haven/blob"
	"github.com/haven-foundation/haven/cmd/haven/cli"
	"github.com/haven-foundation/haven/lib/secret"
	"github.com/haven-foundation/haven/vault"
)

func blobCommand() *cli.Command {
	return &cli.Command{
		Name:    "blob",
		Summary: "Store and fetch content-addressed blobs",
		Subcommands: []*cli.Command{
			blobPutCommand(),
			blobGetCommand(),
		},
	}
}

// containerBlobStore opens a blob store keyed by the named
// container's registry key.
func containerBlobStore(
	ctx context.Context,
	session *authority.Session,
	containerName string,
	dryRun bool,
) (*blob.Store, *secret.Buffer, error) {
	if containerName == "" {
		return nil, nil, fmt.Errorf("--container is required")
	}
	container, err := session.Account().Read(ctx)
	if err != nil {
		return nil, nil, err
	}
	registry, ok := container.Registry[containerName]
	if !ok {
		return nil, nil, fmt.Errorf("unknown container %q", containerName)
	}
	key, err := secret.NewFromBytes(append([]byte(nil), registry.Key...))
	if err != nil {
		return nil, nil, err
	}
	store, err := blob.NewStore(blob.Config{
		Vault:  session.Account().Vault(),
		Key:    key,
		DryRun: dryRun,
	})
	if err != nil {
		key.Close()
		return nil, nil, err
	}
	return store, key, nil
}

func blobPutCommand() *cli.Command {
	var (
		configPath    string
		locator       string
		passwordFile  string
		containerName string
		dryRun        bool
	)
	return &cli.Command{
		Name:    "put",
		Summary: "Store a file as a blob under a container's key",
		Description: `Store a file as an immutable content-addressed blob.

The blob is compressed, encrypted under the named container's key,
and stored at an address derived from the key and the content.
--dry-run computes the address without writing to the vault.`,
		Usage: "haven blob put <file> --locator <locator> --container <name> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("put", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "config file (default: HAVEN_CONFIG)")
			flags.StringVar(&locator, "locator", "", "account locator")
			flags.StringVar(&passwordFile, "password-file", "", "read the password from this file ('-' for stdin)")
			flags.StringVar(&containerName, "container", "", "container whose key encrypts the blob")
			flags.BoolVar(&dryRun, "dry-run", false, "compute the address without storing")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one file argument")
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			ctx := context.Background()
			logger := cli.NewCommandLogger().With("command", "blob/put")
			session, cleanup, err := openSession(ctx, configPath, locator, passwordFile, false, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			store, key, err := containerBlobStore(ctx, session, containerName, dryRun)
			if err != nil {
				return err
			}
			defer key.Close()

			address, err := store.Put(ctx, content)
			if err != nil {
				return err
			}
			fmt.Println(address)
			return nil
		},
	}
}

func blobGetCommand() *cli.Command {
	var (
		configPath    string
		locator       string
		passwordFile  string
		containerName string
	)
	return &cli.Command{
		Name:    "get",
		Summary: "Fetch a blob and write it to stdout",
		Usage:   "haven blob get <address> --locator <locator> --container <name> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("get", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "config file (default: HAVEN_CONFIG)")
			flags.StringVar(&locator, "locator", "", "account locator")
			flags.StringVar(&passwordFile, "password-file", "", "read the password from this file ('-' for stdin)")
			flags.StringVar(&containerName, "container", "", "container whose key decrypts the blob")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one address argument")
			}
			address, err := vault.ParseAddress(args[0])
			if err != nil {
				return err
			}

			ctx := context.Background()
			logger := cli.NewCommandLogger().With("command", "blob/get")
			session, cleanup, err := openSession(ctx, configPath, locator, passwordFile, false, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			store, key, err := containerBlobStore(ctx, session, containerName, false)
			if err != nil {
				return err
			}
			defer key.Close()

			content, err := store.Get(ctx, address)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(content)
			return err
		},
	}
}
