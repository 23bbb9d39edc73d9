//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/oshokin/server-updater/internal/logger"
)

const (
	// DefaultRetryMax is the number of retries after the first failed attempt.
	DefaultRetryMax = 3
	// DefaultRetryWaitMin is the minimum delay between two attempts.
	DefaultRetryWaitMin = 1 * time.Second
	// DefaultRetryWaitMax is the maximum delay between two attempts.
	DefaultRetryWaitMax = 5 * time.Second
)

// HTTPOption configures the retrying client.
type HTTPOption func(*retryablehttp.Client)

// WithRetryMax overrides the number of retries.
func WithRetryMax(retries int) HTTPOption {
	return func(c *retryablehttp.Client) {
		if retries >= 0 {
			c.RetryMax = retries
		}
	}
}

// WithRetryWait overrides the backoff bounds.
func WithRetryWait(minWait, maxWait time.Duration) HTTPOption {
	return func(c *retryablehttp.Client) {
		c.RetryWaitMin = minWait
		c.RetryWaitMax = maxWait
	}
}

// NewHTTPClient returns a standard client that retries connection errors and 5xx responses.
// A positive timeout bounds the wait for response headers of every attempt; response bodies
// are not bounded, so large artifacts can stream for as long as the context allows.
// Retry attempts are logged at debug level through the logger stored in ctx.
func NewHTTPClient(ctx context.Context, timeout time.Duration, opts ...HTTPOption) *http.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = DefaultRetryMax
	client.RetryWaitMin = DefaultRetryWaitMin
	client.RetryWaitMax = DefaultRetryWaitMax
	client.Logger = leveledLogger{ctx: logger.WithName(ctx, "http")}

	if transport, ok := client.HTTPClient.Transport.(*http.Transport); ok && timeout > 0 {
		transport.ResponseHeaderTimeout = timeout
		transport.TLSHandshakeTimeout = timeout
	}

	for _, opt := range opts {
		opt(client)
	}

	return client.StandardClient()
}

// leveledLogger adapts the context logger to retryablehttp.LeveledLogger.
// Everything is demoted to debug: retries are advisory and the caller reports the final error.
type leveledLogger struct {
	ctx context.Context //nolint:containedctx // Used only to reach the context logger.
}

func (l leveledLogger) Error(msg string, keysAndValues ...any) {
	logger.DebugKV(l.ctx, msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...any) {
	logger.DebugKV(l.ctx, msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...any) {
	logger.DebugKV(l.ctx, msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...any) {
	logger.DebugKV(l.ctx, msg, keysAndValues...)
}
