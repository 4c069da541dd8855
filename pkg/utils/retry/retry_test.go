// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/wait"
)

func TestFirstTimeSuccess(t *testing.T) {
	f := func(context.Context) error {
		return nil
	}
	assert.NoError(t, UntilSuccess(context.Background(), f, 10*time.Second, 0*time.Second))
}

func TestLaterSuccess(t *testing.T) {
	nAttempts := 0
	succeedAtAttempt := 2
	f := func(context.Context) error {
		nAttempts++
		if nAttempts == succeedAtAttempt {
			return nil
		}
		return errors.New("not yet")
	}
	assert.NoError(t, UntilSuccess(context.Background(), f, 10*time.Second, 0*time.Second))
}

func TestGlobalTimeoutOnFirstCall(t *testing.T) {
	timeout := 1 * time.Millisecond
	stopChan := make(chan struct{})
	f := func(context.Context) error {
		<-stopChan
		return nil
	}
	assert.EqualError(t, UntilSuccess(context.Background(), f, timeout, 0*time.Second), "timeout reached after 1ms")
	close(stopChan)
}

func TestGlobalTimeoutAfterFailures(t *testing.T) {
	f := func(context.Context) error {
		return errors.New("i keep on failing")
	}
	assert.EqualError(t, UntilSuccess(context.Background(), f, 10*time.Millisecond, 0*time.Second), "i keep on failing")
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := func(context.Context) error {
		return errors.New("never succeeds")
	}
	assert.ErrorIs(t, UntilSuccess(ctx, f, 10*time.Second, time.Millisecond), context.Canceled)
}

func TestIsTransient(t *testing.T) {
	gr := schema.GroupResource{Group: "apps", Resource: "deployments"}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "server timeout", err: apierrors.NewServerTimeout(gr, "update", 1), want: true},
		{name: "throttled", err: apierrors.NewTooManyRequests("slow down", 1), want: true},
		{name: "unavailable", err: apierrors.NewServiceUnavailable("restarting"), want: true},
		{name: "optimistic lock", err: apierrors.NewConflict(gr, "backend", errors.New("modified")), want: true},
		{name: "internal", err: apierrors.NewInternalError(errors.New("etcd")), want: true},
		{name: "forbidden", err: apierrors.NewForbidden(gr, "backend", errors.New("rbac")), want: false},
		{name: "invalid", err: apierrors.NewInvalid(schema.GroupKind{Group: "apps", Kind: "Deployment"}, "backend", nil), want: false},
		{name: "bad request", err: apierrors.NewBadRequest("malformed"), want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestOnTransient(t *testing.T) {
	backoff := wait.Backoff{Steps: 4, Duration: time.Millisecond, Factor: 1}
	gr := schema.GroupResource{Resource: "services"}

	t.Run("retries transient errors until success", func(t *testing.T) {
		calls := 0
		err := OnTransient(context.Background(), backoff, func(context.Context) error {
			calls++
			if calls < 3 {
				return apierrors.NewServiceUnavailable("blip")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after the backoff is exhausted", func(t *testing.T) {
		calls := 0
		err := OnTransient(context.Background(), backoff, func(context.Context) error {
			calls++
			return apierrors.NewServiceUnavailable("down")
		})
		assert.True(t, apierrors.IsServiceUnavailable(err))
		assert.Equal(t, 4, calls)
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		calls := 0
		err := OnTransient(context.Background(), backoff, func(context.Context) error {
			calls++
			return apierrors.NewForbidden(gr, "frontend", errors.New("denied"))
		})
		assert.True(t, apierrors.IsForbidden(err))
		assert.Equal(t, 1, calls)
	})
}
