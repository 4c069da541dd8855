// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package namespace

import (
	"context"

	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/bootstrap/desired"
	"github.com/helixstack/helixctl/pkg/bootstrap/env"
	"github.com/helixstack/helixctl/pkg/bootstrap/label"
	"github.com/helixstack/helixctl/pkg/controller/common/reconciler"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
	ulog "github.com/helixstack/helixctl/pkg/utils/log"
	"github.com/helixstack/helixctl/pkg/utils/metrics"
)

// Ensure creates the namespace if it does not exist and sets its injection label to the desired value.
// Only the labels of the namespace are written: the workloads it contains are left untouched.
func Ensure(ctx context.Context, e *env.Environment, name string, injection bool) convergence.Result {
	c, err := e.Client()
	if err != nil {
		return convergence.FailedWith(convergence.StageNamespace, err)
	}
	action, err := reconciler.WithRetry(ctx, func(ctx context.Context) (convergence.Action, error) {
		return ensure(ctx, c, name, injection)
	})
	if err != nil {
		return convergence.FailedWith(convergence.StageNamespace, err)
	}
	return convergence.FromActions(convergence.StageNamespace, []convergence.ResourceAction{
		{Kind: "Namespace", Name: name, Action: action},
	})
}

func ensure(ctx context.Context, c k8s.Client, name string, injection bool) (convergence.Action, error) {
	log := ulog.FromContext(ctx).WithValues("namespace", name)
	want := label.InjectionValue(injection)

	var ns corev1.Namespace
	err := c.Get(ctx, types.NamespacedName{Name: name}, &ns)
	if apierrors.IsNotFound(err) {
		expected := desired.NewNamespace(name, injection)
		log.Info("Creating namespace", label.InjectionLabelName, want)
		if err := c.Create(ctx, &expected); err != nil {
			return "", errors.Wrapf(err, "while creating namespace %s", name)
		}
		metrics.ResourceActions.WithLabelValues("Namespace", string(convergence.Created)).Inc()
		return convergence.Created, nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "while getting namespace %s", name)
	}

	if ns.Labels[label.InjectionLabelName] == want {
		log.V(1).Info("Namespace injection label already up to date", label.InjectionLabelName, want)
		metrics.ResourceActions.WithLabelValues("Namespace", string(convergence.Unchanged)).Inc()
		return convergence.Unchanged, nil
	}

	log.Info("Updating namespace injection label", "from", ns.Labels[label.InjectionLabelName], "to", want)
	patch := client.MergeFrom(ns.DeepCopy())
	if ns.Labels == nil {
		ns.Labels = map[string]string{}
	}
	ns.Labels[label.InjectionLabelName] = want
	if err := c.Patch(ctx, &ns, patch); err != nil {
		return "", errors.Wrapf(err, "while patching namespace %s", name)
	}
	metrics.ResourceActions.WithLabelValues("Namespace", string(convergence.Updated)).Inc()
	return convergence.Updated, nil
}
