package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrPermanent marks errors that must not be retried (4xx responses,
// malformed input). Wrap with Permanent.
var ErrPermanent = errors.New("permanent error")

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() []error {
	return []error{e.err, ErrPermanent}
}

// Permanent wraps err so WithRetry stops immediately. errors.Is matches
// both err and ErrPermanent.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool // Exponential backoff: Delay, 2*Delay, 4*Delay...
	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Default is 3 attempts with exponential backoff starting at 1s.
var Default = RetryConfig{MaxAttempts: 3, Delay: time.Second, Backoff: true}

// Wait returns the pause after the given failed attempt (1-based).
func (c RetryConfig) Wait(attempt int) time.Duration {
	if !c.Backoff || attempt <= 1 {
		return c.Delay
	}
	return c.Delay << (attempt - 1)
}

func WithRetry(ctx context.Context, config RetryConfig, fn func() error) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, ErrPermanent) {
			return err
		}
		if attempt == config.MaxAttempts {
			return fmt.Errorf("failed after %d attempts: %w", config.MaxAttempts, err)
		}

		delay := config.Wait(attempt)
		if config.OnRetry != nil {
			config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return lastErr
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.Code)
}

// CheckStatus returns nil for 2xx, a permanent error for 4xx (except 408
// and 429) and a retryable error otherwise.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err := &StatusError{URL: resp.Request.URL.String(), Code: resp.StatusCode}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
		return Permanent(err)
	}
	return err
}
