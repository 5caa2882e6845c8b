// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the haven CLI: a
// [Command] tree with pflag flag parsing, structured help output,
// typo suggestions for commands and flags, and exit-code plumbing.
package cli
