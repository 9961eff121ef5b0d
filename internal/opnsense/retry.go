package opnsense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy configures bounded exponential backoff for individual remote calls.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns sensible defaults for appliance calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Retrying wraps a FirewallClient and retries each call on its own. It never retries a
// sequence of calls, so a toggle cannot be applied twice by this layer.
type Retrying struct {
	next   FirewallClient
	policy RetryPolicy
	logger *slog.Logger
}

// Ensure Retrying implements FirewallClient and LeaseClient.
var (
	_ FirewallClient = (*Retrying)(nil)
	_ LeaseClient    = (*Retrying)(nil)
)

// WithRetry wraps next with policy.
func WithRetry(next FirewallClient, policy RetryPolicy, logger *slog.Logger) *Retrying {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{next: next, policy: policy, logger: logger}
}

// FetchAliases retries transient fetch failures.
func (r *Retrying) FetchAliases(ctx context.Context) ([]byte, error) {
	var body []byte
	err := r.retry(ctx, OpFetchAliases, func() error {
		var err error
		body, err = r.next.FetchAliases(ctx)
		return err
	})
	return body, err
}

// WriteAlias retries transient write failures. setItem replaces the whole alias, so
// repeating it with the same body is safe.
func (r *Retrying) WriteAlias(ctx context.Context, handle string, body []byte) error {
	return r.retry(ctx, OpWriteAlias, func() error {
		return r.next.WriteAlias(ctx, handle, body)
	})
}

// Reload retries transient reload failures.
func (r *Retrying) Reload(ctx context.Context) error {
	return r.retry(ctx, OpReload, func() error {
		return r.next.Reload(ctx)
	})
}

// SearchLeases retries transient lease listing failures.
func (r *Retrying) SearchLeases(ctx context.Context) ([]byte, error) {
	lc, ok := r.next.(LeaseClient)
	if !ok {
		return nil, fmt.Errorf("%w: client cannot list leases", domain.ErrInvalidInput)
	}
	var body []byte
	err := r.retry(ctx, OpSearchLeases, func() error {
		var err error
		body, err = lc.SearchLeases(ctx)
		return err
	})
	return body, err
}

func (r *Retrying) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.policy.MaxAttempts-1)), ctx)

	return backoff.RetryNotify(func() error {
		err := fn()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		r.logger.Warn("retrying appliance call", "op", op, "wait", wait, "error", err)
	})
}

// retryable accepts transport failures and temporary HTTP statuses.
func retryable(err error) bool {
	var remote *domain.RemoteError
	if errors.As(err, &remote) {
		return remote.Temporary()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, domain.ErrTransport)
}
