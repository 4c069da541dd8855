// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package workload converges the Services, StatefulSets and Deployments of the application.
package workload

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/utils/keymutex"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/bootstrap/desired"
	"github.com/helixstack/helixctl/pkg/bootstrap/env"
	"github.com/helixstack/helixctl/pkg/controller/common/deployment"
	"github.com/helixstack/helixctl/pkg/controller/common/reconciler"
	"github.com/helixstack/helixctl/pkg/controller/common/service"
	"github.com/helixstack/helixctl/pkg/controller/common/statefulset"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
	ulog "github.com/helixstack/helixctl/pkg/utils/log"
)

// DefaultWorkers bounds the number of concurrent writes within a tier.
const DefaultWorkers = 3

// Tiers is the order in which resource kinds are applied. A tier starts once the previous one
// is fully applied.
var Tiers = [][]desired.Kind{
	{desired.KindService},
	{desired.KindStatefulWorkload},
	{desired.KindWorkload},
}

// Reconciler applies workload resources with a bounded number of concurrent writes.
type Reconciler struct {
	Workers int
	// locks serializes writes to the same identity
	locks keymutex.KeyMutex
}

// NewReconciler returns a Reconciler running at most workers concurrent writes.
func NewReconciler(workers int) *Reconciler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Reconciler{Workers: workers, locks: keymutex.NewHashed(0)}
}

// Apply converges every workload resource of the set, tier by tier. Failures within a tier are
// aggregated, and a failed tier stops the stage before the next one is attempted.
func (r *Reconciler) Apply(ctx context.Context, e *env.Environment, set *desired.Set) convergence.Result {
	c, err := e.Client()
	if err != nil {
		return convergence.FailedWith(convergence.StageWorkloads, err)
	}

	var actions []convergence.ResourceAction
	for _, kinds := range Tiers {
		tierActions, err := r.applyTier(ctx, c, set.OfKind(kinds...))
		actions = append(actions, tierActions...)
		if err != nil {
			res := convergence.FailedWith(convergence.StageWorkloads, err)
			res.Actions = actions
			return res
		}
	}
	return convergence.FromActions(convergence.StageWorkloads, actions)
}

func (r *Reconciler) applyTier(ctx context.Context, c k8s.Client, resources []desired.Resource) ([]convergence.ResourceAction, error) {
	if len(resources) == 0 {
		return nil, nil
	}
	// one slot per resource keeps the report in declaration order
	actions := make([]convergence.ResourceAction, len(resources))
	var (
		mu   sync.Mutex
		errs *multierror.Error
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.Workers)
	for i, res := range resources {
		id := res.Identity()
		actions[i] = convergence.ResourceAction{Kind: string(id.Kind), Namespace: id.Namespace, Name: id.Name}
		g.Go(func() error {
			action, err := r.applyOne(gCtx, c, res)
			actions[i].Action = action
			actions[i].Err = err
			if err != nil {
				mu.Lock()
				errs = multierror.Append(errs, errors.Wrapf(err, "%s", id))
				mu.Unlock()
			}
			// keep applying the rest of the tier so that every failure is reported
			return nil
		})
	}
	_ = g.Wait()
	if err := errs.ErrorOrNil(); err != nil {
		return actions, aggregate(errs)
	}
	return actions, nil
}

// aggregate returns the single error of a one-error aggregation unchanged. With several failures
// the kind of the first one is reported and every cause is kept in the message.
func aggregate(errs *multierror.Error) error {
	if len(errs.Errors) == 1 {
		return errs.Errors[0]
	}
	if convErr, ok := convergence.AsError(errs.Errors[0]); ok {
		return &convergence.Error{Kind: convErr.Kind, Reason: convErr.Reason, Err: errs}
	}
	return errs
}

func (r *Reconciler) applyOne(ctx context.Context, c k8s.Client, res desired.Resource) (convergence.Action, error) {
	key := res.Identity().String()
	r.locks.LockKey(key)
	defer func() {
		_ = r.locks.UnlockKey(key)
	}()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	ulog.FromContext(ctx).V(1).Info("Applying resource", "kind", res.Kind, "namespace", res.Object.GetNamespace(), "name", res.Object.GetName())

	return reconciler.WithRetry(ctx, func(ctx context.Context) (convergence.Action, error) {
		switch obj := res.Object.(type) {
		case *corev1.Service:
			_, action, err := service.Reconcile(ctx, c, *obj)
			return action, err
		case *appsv1.StatefulSet:
			_, action, err := statefulset.Reconcile(ctx, c, *obj)
			return action, err
		case *appsv1.Deployment:
			_, action, err := deployment.Reconcile(ctx, c, *obj)
			return action, err
		default:
			return "", convergence.Errorf(convergence.ApplyFailure, convergence.ReasonInvalidInput,
				"unsupported workload object %T for %s", res.Object, res.Identity())
		}
	})
}
