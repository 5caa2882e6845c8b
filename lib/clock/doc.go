// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock interface parameter instead of calling
// time.Now, time.After, or time.Sleep directly. In production, Real()
// provides the standard library behavior. In tests, Fake() provides a
// deterministic clock that advances only when Advance is called.
//
// Haven's main time consumer is the vault compare-and-swap retry loop,
// which backs off between conflicting read-modify-write attempts. With
// a FakeClock a test can drive eight retry rounds through their full
// backoff schedule without waiting a single wall-clock millisecond.
//
// # Wiring Pattern
//
// Add a Clock field to structs that use time:
//
//	type Updater struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	u := &Updater{clock: clock.Real()}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	u := &Updater{clock: c}
//	// ... start the operation in a goroutine ...
//	c.WaitForTimers(1)             // wait for the backoff to register
//	c.Advance(500 * time.Millisecond) // fire it deterministically
package clock
