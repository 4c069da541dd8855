// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package mesh installs the service mesh control plane and its ingress gateway.
package mesh

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/helixstack/helixctl/pkg/bootstrap/cluster"
	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/bootstrap/env"
	"github.com/helixstack/helixctl/pkg/bootstrap/label"
	"github.com/helixstack/helixctl/pkg/bootstrap/tools"
	"github.com/helixstack/helixctl/pkg/config"
	"github.com/helixstack/helixctl/pkg/controller/common/reconciler"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
	ulog "github.com/helixstack/helixctl/pkg/utils/log"
	"github.com/helixstack/helixctl/pkg/utils/maps"
	"github.com/helixstack/helixctl/pkg/utils/metrics"
	"github.com/helixstack/helixctl/pkg/utils/retry"
)

const (
	Namespace      = "istio-system"
	ControlPlane   = "istiod"
	IngressGateway = "istio-ingressgateway"

	// DefaultTimeout bounds the wait for the mesh components when no timeout is configured.
	DefaultTimeout      = 10 * time.Minute
	defaultPollInterval = 2 * time.Second
	meshKind            = "Mesh"
)

// Components are the Deployments that must be Available for the mesh to be ready.
var Components = []string{ControlPlane, IngressGateway}

// Installer converges the mesh to a profile and footprint.
type Installer struct {
	Profile            config.MeshProfile
	Footprint          cluster.Footprint
	IngressServiceType corev1.ServiceType
	// Timeout bounds the wait for the mesh components to become Available.
	Timeout      time.Duration
	PollInterval time.Duration
}

// Overrides returns the istioctl settings derived from the profile and footprint. The ingress
// gateway is enabled whatever the profile. Control plane
// requests scale with the footprint and are capped, so that a small cluster can still schedule it.
func Overrides(profile config.MeshProfile, footprint cluster.Footprint) []string {
	cpu := min(int64(footprint.CPUs)*100, 500)
	memory := min(footprint.MiB()/8, 2048)
	args := []string{
		"--set", "profile=" + string(profile),
		// the minimal profile ships istiod alone, the gateway is what routes attach to
		"--set", "components.ingressGateways[0].name=" + IngressGateway,
		"--set", "components.ingressGateways[0].enabled=true",
	}
	if cpu > 0 {
		args = append(args, "--set", fmt.Sprintf("values.pilot.resources.requests.cpu=%dm", cpu))
	}
	if memory > 0 {
		args = append(args, "--set", fmt.Sprintf("values.pilot.resources.requests.memory=%dMi", memory))
	}
	return args
}

// Ensure installs the mesh unless it is already Available with the requested profile and footprint,
// waits for it to become Available, then converges the exposure of the ingress Service.
func (i Installer) Ensure(ctx context.Context, e *env.Environment) convergence.Result {
	c, err := e.Client()
	if err != nil {
		return convergence.FailedWith(convergence.StageMesh, err)
	}
	log := ulog.FromContext(ctx).WithValues("profile", i.Profile, "footprint", i.Footprint.String())

	var actions []convergence.ResourceAction
	installed, nsExists, err := i.installed(ctx, c)
	if err != nil {
		return convergence.FailedWith(convergence.StageMesh, reconciler.Classify(err))
	}
	meshAction := convergence.Unchanged
	if installed {
		log.V(1).Info("Mesh already installed")
	} else {
		meshAction = convergence.Created
		if nsExists {
			meshAction = convergence.Updated
		}
		if err := i.install(ctx, e); err != nil {
			return convergence.FailedWith(convergence.StageMesh, err)
		}
		if err := i.waitAvailable(ctx, c); err != nil {
			return convergence.FailedWith(convergence.StageMesh, err)
		}
		if err := i.recordInstallation(ctx, c); err != nil {
			return convergence.FailedWith(convergence.StageMesh, reconciler.Classify(err))
		}
		log.Info("Mesh installed")
	}
	metrics.ResourceActions.WithLabelValues(meshKind, string(meshAction)).Inc()
	actions = append(actions, convergence.ResourceAction{Kind: meshKind, Namespace: Namespace, Name: string(i.Profile), Action: meshAction})

	svcAction, err := reconciler.WithRetry(ctx, func(ctx context.Context) (convergence.Action, error) {
		return i.ensureIngressType(ctx, c)
	})
	if err != nil {
		return convergence.FailedWith(convergence.StageMesh, err)
	}
	actions = append(actions, convergence.ResourceAction{Kind: "Service", Namespace: Namespace, Name: IngressGateway, Action: svcAction})
	return convergence.FromActions(convergence.StageMesh, actions)
}

// installed returns true if every component is Available and the namespace records the requested
// profile and footprint.
func (i Installer) installed(ctx context.Context, c k8s.Client) (installed bool, nsExists bool, err error) {
	var ns corev1.Namespace
	err = retry.OnTransient(ctx, retry.DefaultBackoff, func(ctx context.Context) error {
		return c.Get(ctx, types.NamespacedName{Name: Namespace}, &ns)
	})
	if apierrors.IsNotFound(err) {
		return false, false, nil
	}
	if err != nil {
		return false, false, errors.Wrapf(err, "while getting namespace %s", Namespace)
	}
	if !maps.IsSubset(i.annotations(), ns.Annotations) {
		return false, true, nil
	}
	available, err := i.available(ctx, c)
	return available, true, err
}

func (i Installer) annotations() map[string]string {
	return map[string]string{
		label.MeshProfileAnnotation:   string(i.Profile),
		label.MeshFootprintAnnotation: i.Footprint.String(),
	}
}

func (i Installer) available(ctx context.Context, c k8s.Client) (bool, error) {
	for _, name := range Components {
		var d appsv1.Deployment
		err := c.Get(ctx, types.NamespacedName{Namespace: Namespace, Name: name}, &d)
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, errors.Wrapf(err, "while getting deployment %s/%s", Namespace, name)
		}
		if !k8s.IsDeploymentAvailable(d) {
			return false, nil
		}
	}
	return true, nil
}

func (i Installer) install(ctx context.Context, e *env.Environment) error {
	if _, err := e.ToolPath(tools.Istioctl); err != nil {
		return err
	}
	args := []string{"install", "-y"}
	if e.Kubeconfig.Path != "" {
		args = append(args, "--kubeconfig", e.Kubeconfig.Path)
	}
	if e.Kubeconfig.Context != "" {
		args = append(args, "--context", e.Kubeconfig.Context)
	}
	args = append(args, Overrides(i.Profile, i.Footprint)...)
	ulog.FromContext(ctx).Info("Installing mesh", "args", args)
	if err := e.Runner.Run(ctx, tools.Istioctl, args...); err != nil {
		return convergence.NewError(convergence.InstallFailure, convergence.ReasonPermanent, errors.Wrap(err, "while installing the mesh"))
	}
	return nil
}

func (i Installer) waitAvailable(ctx context.Context, c k8s.Client) error {
	interval := i.PollInterval
	if interval == 0 {
		interval = defaultPollInterval
	}
	timeout := i.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	log := ulog.FromContext(ctx)
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		ok, err := i.available(ctx, c)
		if err != nil && retry.IsTransient(err) {
			log.V(1).Info("Transient error while waiting for the mesh", "error", err.Error())
			return false, nil
		}
		return ok, err
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if wait.Interrupted(err) {
		return convergence.NewError(convergence.MeshNotReady, convergence.ReasonTimeout,
			errors.Errorf("%v not available after %s", Components, timeout))
	}
	if err != nil {
		return reconciler.Classify(err)
	}
	return nil
}

func (i Installer) recordInstallation(ctx context.Context, c k8s.Client) error {
	return retry.OnTransient(ctx, retry.DefaultBackoff, func(ctx context.Context) error {
		var ns corev1.Namespace
		if err := c.Get(ctx, types.NamespacedName{Name: Namespace}, &ns); err != nil {
			return err
		}
		patch := client.MergeFrom(ns.DeepCopy())
		ns.Annotations = maps.Merge(ns.Annotations, i.annotations())
		return c.Patch(ctx, &ns, patch)
	})
}

func (i Installer) ensureIngressType(ctx context.Context, c k8s.Client) (convergence.Action, error) {
	var svc corev1.Service
	err := c.Get(ctx, types.NamespacedName{Namespace: Namespace, Name: IngressGateway}, &svc)
	if apierrors.IsNotFound(err) {
		return "", convergence.Errorf(convergence.MeshNotReady, convergence.ReasonMissingDependency,
			"ingress Service %s/%s does not exist", Namespace, IngressGateway)
	}
	if err != nil {
		return "", err
	}
	if svc.Spec.Type == i.IngressServiceType {
		return convergence.Unchanged, nil
	}
	ulog.FromContext(ctx).Info("Updating ingress exposure", "from", svc.Spec.Type, "to", i.IngressServiceType)
	patch := client.MergeFrom(svc.DeepCopy())
	svc.Spec.Type = i.IngressServiceType
	if err := c.Patch(ctx, &svc, patch); err != nil {
		return "", err
	}
	metrics.ResourceActions.WithLabelValues("Service", string(convergence.Updated)).Inc()
	return convergence.Updated, nil
}
