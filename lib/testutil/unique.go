// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use this instead of time.Now() when
// tests need unique identifiers for app IDs, container names, or
// locators that must be distinguishable in a shared vault.
//
//	appID := testutil.UniqueID("app")       // "app-1", "app-2", ...
//	locator := testutil.UniqueID("alice")   // "alice-3", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
