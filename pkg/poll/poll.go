package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidBaseDelay = errors.New("BaseDelay must be greater than 0")

// Config defines parameters for exponential backoff polling.
type Config struct {
	// Initial delay before first retry
	BaseDelay time.Duration
	// Multiplier for delay on each retry
	Factor float64
	// Optional maximum delay between retries
	MaxDelay time.Duration
}

// BackoffWithContext repeatedly calls the operation until it returns true, an
// error, or the context ends. It waits between attempts using exponential
// backoff, starting from Config.BaseDelay and increasing by Config.Factor,
// capped by Config.MaxDelay if set.
func BackoffWithContext(ctx context.Context, cfg Config, opFn func(context.Context) (bool, error)) error {
	delay := cfg.BaseDelay
	if delay <= 0 {
		return fmt.Errorf("invalid Config: %w", ErrInvalidBaseDelay)
	}

	for {
		done, err := opFn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-time.After(delay):
			next := time.Duration(float64(delay) * cfg.Factor)
			if cfg.MaxDelay > 0 && next > cfg.MaxDelay {
				next = cfg.MaxDelay
			}
			delay = next
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
