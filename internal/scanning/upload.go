package scanning

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/zombor/budget-sync/internal/gateway"
)

const (
	// DefaultMaxRetries is the number of extra attempts after the first one
	DefaultMaxRetries = 2
	// AttemptTimeout bounds every upload attempt; OCR inference is slow
	AttemptTimeout = 60 * time.Second
)

// Uploader runs a network call with a bounded, immediate retry on transient failures.
// Retried attempts carry no idempotency key.
type Uploader struct {
	maxRetries int
	timeout    time.Duration
	classify   func(error) bool
}

// NewUploader creates an Uploader allowing maxRetries extra attempts
func NewUploader(maxRetries int) *Uploader {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Uploader{
		maxRetries: maxRetries,
		timeout:    AttemptTimeout,
		classify:   IsTransient,
	}
}

// MaxAttempts returns the total number of attempts Run may make
func (u *Uploader) MaxAttempts() int {
	return u.maxRetries + 1
}

// Run calls attempt until it succeeds, fails terminally, or the retry
// budget is spent. It returns the number of attempts made and the last error.
func (u *Uploader) Run(ctx context.Context, attempt func(ctx context.Context) error) (int, error) {
	for n := 1; ; n++ {
		attemptCtx, cancel := context.WithTimeout(ctx, u.timeout)
		err := attempt(attemptCtx)
		cancel()
		if err == nil {
			return n, nil
		}

		slog.Warn("Upload attempt failed",
			"attempt", n,
			"max_attempts", u.MaxAttempts(),
			"error", err,
		)

		if ctx.Err() != nil || n > u.maxRetries || !u.classify(err) {
			return n, err
		}
		slog.Info("Retrying upload", "attempt", n+1, "max_attempts", u.MaxAttempts())
	}
}

// Upload is Run for calls that produce a value
func Upload[T any](ctx context.Context, u *Uploader, attempt func(ctx context.Context) (T, error)) (T, int, error) {
	var out T
	n, err := u.Run(ctx, func(ctx context.Context) error {
		v, err := attempt(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, n, err
	}
	return out, n, nil
}

// IsTransient reports whether err is a timeout or an aborted connection,
// i.e. likely to succeed on an immediate retry
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, gateway.ErrTimeout) {
		return true
	}
	if errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
