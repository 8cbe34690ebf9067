// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package retry provides a bounded retry policy with exponential backoff.
package retry // import "github.com/obask/kgmapper/internal/retry"

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config is a retry policy.
type Config struct {
	// MaxAttempts is the maximum number of calls
	// made. Values less than one are treated as one.
	MaxAttempts int `yaml:"max_attempts"`

	// Delay is the wait before the second attempt.
	Delay time.Duration `yaml:"delay"`

	// MaxDelay bounds the wait between attempts.
	// Zero means no bound.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier scales the delay after each
	// failed attempt. Values less than one are
	// treated as one, giving a fixed delay.
	Multiplier float64 `yaml:"multiplier"`
}

// Default is five attempts at a fixed ten second interval.
var Default = Config{MaxAttempts: 5, Delay: 10 * time.Second, Multiplier: 1}

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent wraps err so that Do returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err}
}

// IsPermanent returns whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns a permanent error, the attempts
// in cfg are exhausted or ctx is done. The last error from fn is returned
// wrapped with the number of attempts made.
func Do(ctx context.Context, cfg Config, fn func(attempt int) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	if cfg.Delay < 0 {
		return errors.New("retry: negative delay")
	}

	delay := cfg.Delay
	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err = fn(attempt)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry: cancelled after attempt %d: %w", attempt, ctx.Err())
		case <-t.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return fmt.Errorf("retry: failed after %d attempts: %w", cfg.MaxAttempts, err)
}
