// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package route

import (
	"context"

	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"

	networkingv1beta1 "github.com/helixstack/helixctl/pkg/apis/networking/v1beta1"
	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/bootstrap/env"
	"github.com/helixstack/helixctl/pkg/controller/common/reconciler"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
	ulog "github.com/helixstack/helixctl/pkg/utils/log"
	"github.com/helixstack/helixctl/pkg/utils/maps"
	"github.com/helixstack/helixctl/pkg/utils/retry"
)

// Routes names the VirtualService built from a routing table.
type Routes struct {
	Name  string
	Table Table
}

// Apply converges the ingress Gateway and the VirtualService routing its traffic. Every destination
// Service must already exist: a missing one fails the stage before anything is written.
func Apply(ctx context.Context, e *env.Environment, gateway networkingv1beta1.Gateway, routes Routes) convergence.Result {
	c, err := e.Client()
	if err != nil {
		return convergence.FailedWith(convergence.StageRoutes, err)
	}
	if err := checkDestinations(ctx, c, gateway.Namespace, routes.Table); err != nil {
		return convergence.FailedWith(convergence.StageRoutes, err)
	}

	virtualService := NewVirtualService(gateway.Namespace, routes.Name, gateway.Name, routes.Table)

	var actions []convergence.ResourceAction
	action, err := reconciler.WithRetry(ctx, func(ctx context.Context) (convergence.Action, error) {
		return reconcileGateway(ctx, c, gateway)
	})
	if err != nil {
		return convergence.FailedWith(convergence.StageRoutes, err)
	}
	actions = append(actions, convergence.ResourceAction{Kind: networkingv1beta1.GatewayKind, Namespace: gateway.Namespace, Name: gateway.Name, Action: action})

	action, err = reconciler.WithRetry(ctx, func(ctx context.Context) (convergence.Action, error) {
		return reconcileVirtualService(ctx, c, virtualService)
	})
	if err != nil {
		return convergence.FailedWith(convergence.StageRoutes, err)
	}
	actions = append(actions, convergence.ResourceAction{Kind: networkingv1beta1.VirtualServiceKind, Namespace: virtualService.Namespace, Name: virtualService.Name, Action: action})

	return convergence.FromActions(convergence.StageRoutes, actions)
}

func checkDestinations(ctx context.Context, c k8s.Client, namespace string, table Table) error {
	log := ulog.FromContext(ctx)
	for _, d := range table.Destinations() {
		var svc corev1.Service
		key := types.NamespacedName{Namespace: namespace, Name: d.ServiceName()}
		err := retry.OnTransient(ctx, retry.DefaultBackoff, func(ctx context.Context) error {
			return c.Get(ctx, key, &svc)
		})
		if apierrors.IsNotFound(err) {
			return convergence.NewError(convergence.ReconcileConflict, convergence.ReasonMissingDependency,
				errors.Errorf("route destination %s references Service %s which does not exist", d, key))
		}
		if err != nil {
			return reconciler.Classify(errors.Wrapf(err, "while checking route destination %s", d))
		}
		if _, ok := servicePortNumber(svc, d.Port); !ok {
			return convergence.NewError(convergence.ReconcileConflict, convergence.ReasonMissingDependency,
				errors.Errorf("route destination %s references port %d which Service %s does not expose", d, d.Port, key))
		}
		log.V(1).Info("Route destination checked", "service", key.String(), "port", d.Port)
	}
	return nil
}

func servicePortNumber(svc corev1.Service, port uint32) (corev1.ServicePort, bool) {
	for _, p := range svc.Spec.Ports {
		if uint32(p.Port) == port { //nolint:gosec
			return p, true
		}
	}
	return corev1.ServicePort{}, false
}

func reconcileGateway(ctx context.Context, c k8s.Client, expected networkingv1beta1.Gateway) (convergence.Action, error) {
	_, action, err := reconciler.Converge(ctx, c, reconciler.Spec[*networkingv1beta1.Gateway]{
		Expected: &expected,
		Mutate: func(current, expected *networkingv1beta1.Gateway) {
			current.Labels = maps.Merge(current.Labels, expected.Labels)
			current.Spec = expected.Spec
		},
	})
	return action, err
}

func reconcileVirtualService(ctx context.Context, c k8s.Client, expected networkingv1beta1.VirtualService) (convergence.Action, error) {
	_, action, err := reconciler.Converge(ctx, c, reconciler.Spec[*networkingv1beta1.VirtualService]{
		Expected: &expected,
		Mutate: func(current, expected *networkingv1beta1.VirtualService) {
			current.Labels = maps.Merge(current.Labels, expected.Labels)
			current.Spec = expected.Spec
		},
	})
	return action, err
}
