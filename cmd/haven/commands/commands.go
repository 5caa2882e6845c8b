// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete haven CLI command tree.
package commands

import (
	"github.com/haven-foundation/haven/cmd/haven/cli"
)

// Root builds and returns the complete haven CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "haven",
		Description: `Haven: client-side trust core for encrypted shared storage.

Register an account, authorize applications to access named data
containers, and revoke them again - re-keying everything they could
read - against a local sqlite vault or a haven-vaultd gateway.`,
		Subcommands: []*cli.Command{
			registerCommand(),
			statusCommand(),
			appCommand(),
			revocationCommand(),
			blobCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Register a new account",
				Command:     "haven register --locator alice@example.com",
			},
			{
				Description: "Show the account's containers, apps, and pending revocations",
				Command:     "haven status --locator alice@example.com",
			},
			{
				Description: "Authorize an app with a dedicated container",
				Command:     "haven app authorize --locator alice@example.com --app com.example.notes --new-container docs",
			},
			{
				Description: "Grant an existing container read-only",
				Command:     "haven app authorize --locator alice@example.com --app com.example.viewer --grant docs:read",
			},
			{
				Description: "Revoke an app and re-key its containers",
				Command:     "haven app revoke --locator alice@example.com --app com.example.notes",
			},
			{
				Description: "Store a file in a container's blob space",
				Command:     "haven blob put notes.txt --locator alice@example.com --container docs",
			},
		},
	}
}
