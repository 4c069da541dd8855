// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package reconciler

import (
	"context"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/utils/retry"
)

// WithRetry runs an apply function, retrying transient API errors with the default backoff,
// and classifies the final error.
func WithRetry(ctx context.Context, apply func(context.Context) (convergence.Action, error)) (convergence.Action, error) {
	var action convergence.Action
	err := retry.OnTransient(ctx, retry.DefaultBackoff, func(ctx context.Context) error {
		var err error
		action, err = apply(ctx)
		return err
	})
	if err != nil {
		return "", Classify(err)
	}
	return action, nil
}

// Classify turns an API error into an ApplyFailure, transient or permanent. Errors that are
// already classified are returned as is.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := convergence.AsError(err); ok {
		return err
	}
	reason := convergence.ReasonPermanent
	if retry.IsTransient(err) {
		reason = convergence.ReasonTransient
	}
	return convergence.NewError(convergence.ApplyFailure, reason, err)
}
