// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/util/wait"
	clientretry "k8s.io/client-go/util/retry"
)

// ErrTimeoutReached is an error returned when timeout is reached
type ErrTimeoutReached struct {
	Timeout time.Duration
}

func (e *ErrTimeoutReached) Error() string {
	return fmt.Sprintf("timeout reached after %s", e.Timeout)
}

// UntilSuccess retries the given function f for up to the given timeout,
// by separating each attempt by the given retryInterval.
//
// f is considered successful if it does not return an error.
// In case the timeout is reached before the first failure of f,
// an ErrTimeoutReached is returned.
// Otherwise, the error from the last attempt is returned.
// Cancelling ctx stops the retries and returns the context error.
func UntilSuccess(ctx context.Context, f func(context.Context) error, timeout time.Duration, retryInterval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var lastErr error
	errorToReturn := func() error {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			if lastErr == nil {
				return &ErrTimeoutReached{Timeout: timeout}
			}
			return lastErr
		}
		return ctx.Err()
	}
	for {
		resp := make(chan error, 1)
		go func() {
			resp <- f(ctx)
		}()
		select {
		case <-ctx.Done():
			return errorToReturn()
		case err := <-resp:
			if err == nil {
				return nil
			}
			lastErr = err
			retryTimer := time.NewTimer(retryInterval)
			select {
			case <-retryTimer.C:
				continue
			case <-ctx.Done():
				retryTimer.Stop()
				return errorToReturn()
			}
		}
	}
}

// DefaultBackoff is the bounded exponential backoff applied to transient API errors:
// 5 attempts, 200ms doubling up to a few seconds, with jitter.
var DefaultBackoff = wait.Backoff{
	Steps:    5,
	Duration: 200 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
	Cap:      5 * time.Second,
}

// IsTransient returns true for errors worth retrying: API server throttling, timeouts,
// unavailability, internal errors, optimistic locking conflicts and network failures.
// Everything else (invalid objects, authorization denials, bad requests...) is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case apierrors.IsInvalid(err),
		apierrors.IsForbidden(err),
		apierrors.IsUnauthorized(err),
		apierrors.IsBadRequest(err),
		apierrors.IsMethodNotSupported(err),
		apierrors.IsNotAcceptable(err),
		apierrors.IsRequestEntityTooLargeError(err):
		return false
	case apierrors.IsServerTimeout(err),
		apierrors.IsTimeout(err),
		apierrors.IsTooManyRequests(err),
		apierrors.IsServiceUnavailable(err),
		apierrors.IsInternalError(err),
		apierrors.IsConflict(err),
		apierrors.IsUnexpectedServerError(err):
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// OnTransient runs fn, retrying it with the given backoff as long as it fails with a transient error.
// The last error is returned once the backoff is exhausted, permanent errors are returned immediately.
func OnTransient(ctx context.Context, backoff wait.Backoff, fn func(context.Context) error) error {
	return clientretry.OnError(backoff, func(err error) bool {
		return ctx.Err() == nil && IsTransient(err)
	}, func() error {
		return fn(ctx)
	})
}
