package utils

import (
	"context"
	"time"
)

// Retry calls fn up to attempts times, sleeping base, 2*base, 4*base ...
// between failures. It stops early when retryable reports false for an error
// or ctx is done, and returns the last error.
func Retry(ctx context.Context, attempts int, base time.Duration, retryable func(error) bool, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	backOff := base
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(backOff):
			backOff *= 2
		}
	}
	return err
}
