// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/haven-foundation/haven/lib/clock"
)

// ErrNoChange may be returned by a ReadModifyWrite function to report
// that the current record already reflects the desired state. The
// read-modify-write completes successfully without issuing a Mutate,
// so the record's version does not move. Re-authorizing an app with
// permissions it already holds takes this path.
var ErrNoChange = errors.New("vault: no change")

// RetryConfig bounds the read-modify-write retry loop. The zero value
// is usable: defaults are 8 attempts, 25ms base delay, 2s cap, real
// clock, slog.Default().
type RetryConfig struct {
	// Attempts is the maximum number of read-modify-write rounds
	// before giving up with ErrConcurrentModification.
	Attempts int

	// BaseDelay is the backoff before the second attempt. Each
	// further attempt doubles it, up to MaxDelay, with uniform jitter
	// so competing sessions desynchronize.
	BaseDelay time.Duration

	// MaxDelay caps the backoff.
	MaxDelay time.Duration

	// Clock drives the backoff sleeps. Tests inject clock.Fake.
	Clock clock.Clock

	// Logger receives a debug line per conflicted attempt.
	Logger *slog.Logger
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Attempts <= 0 {
		c.Attempts = 8
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 25 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// ReadModifyWrite applies fn to the record at address under the
// vault's optimistic-concurrency discipline: read the current record,
// compute the new payload, Mutate with the read version as expected.
// On ErrVersionConflict the whole round is retried against the fresh
// record, up to config.Attempts rounds, after which it fails with
// ErrConcurrentModification — a lost race is always reported, never
// silently dropped. Exactly one logical update wins per version;
// everyone else observes the winner on their re-read.
//
// fn must be pure with respect to the vault: it may be invoked once
// per round against different record states. Returning ErrNoChange
// completes the update without writing. Any other error from fn
// aborts immediately — fn errors are never retried.
//
// Returns the record's version after the update (unchanged in the
// ErrNoChange case).
func ReadModifyWrite(ctx context.Context, v Vault, address Address, config RetryConfig, fn func(Record) ([]byte, error)) (uint64, error) {
	config = config.withDefaults()

	delay := config.BaseDelay
	for attempt := 1; ; attempt++ {
		record, err := v.Get(ctx, address)
		if err != nil {
			return 0, err
		}

		newPayload, err := fn(record)
		if errors.Is(err, ErrNoChange) {
			return record.Version, nil
		}
		if err != nil {
			return 0, err
		}

		newVersion, err := v.Mutate(ctx, address, record.Version, newPayload)
		if err == nil {
			return newVersion, nil
		}
		if !IsVersionConflict(err) {
			return 0, err
		}

		if attempt >= config.Attempts {
			return 0, fmt.Errorf("%w: %s after %d attempts", ErrConcurrentModification, address, attempt)
		}

		config.Logger.Debug("version conflict, retrying read-modify-write",
			"address", address.String(), "attempt", attempt, "backoff", delay)

		// Uniform jitter over [delay/2, delay) so two sessions that
		// collided do not collide again in lockstep.
		jittered := delay/2 + rand.N(delay/2)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-config.Clock.After(jittered):
		}

		delay *= 2
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}
}
