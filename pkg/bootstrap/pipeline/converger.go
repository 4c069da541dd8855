// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package pipeline

import (
	"context"

	corev1 "k8s.io/api/core/v1"

	"github.com/helixstack/helixctl/pkg/bootstrap/access"
	"github.com/helixstack/helixctl/pkg/bootstrap/cluster"
	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/bootstrap/desired"
	"github.com/helixstack/helixctl/pkg/bootstrap/env"
	"github.com/helixstack/helixctl/pkg/bootstrap/mesh"
	"github.com/helixstack/helixctl/pkg/bootstrap/namespace"
	"github.com/helixstack/helixctl/pkg/bootstrap/route"
	"github.com/helixstack/helixctl/pkg/bootstrap/tools"
	"github.com/helixstack/helixctl/pkg/bootstrap/workload"
	"github.com/helixstack/helixctl/pkg/config"
	"github.com/helixstack/helixctl/pkg/utils/exec"
)

// Dependencies are the side-effecting collaborators of a run, replaced by fakes in tests.
type Dependencies struct {
	Prober     cluster.Prober
	Downloader tools.Downloader
	Drivers    map[string]cluster.Driver
}

// DefaultDependencies talk to real clusters and download from the internet.
func DefaultDependencies() Dependencies {
	return Dependencies{
		Prober:     cluster.APIProber{},
		Downloader: tools.GetterDownloader{},
		Drivers:    cluster.Drivers(),
	}
}

// Converger holds everything a converge run needs, built from the configuration.
type Converger struct {
	Config      config.Config
	App         *desired.Application
	Tools       tools.Manager
	Provisioner cluster.Provisioner
	Mesh        mesh.Installer
	Workloads   *workload.Reconciler
	// Endpoints are set by the access stage.
	Endpoints access.Endpoints
}

// NewConverger builds the desired state and the stage components from the configuration.
func NewConverger(cfg config.Config, runner exec.Runner, deps Dependencies) (*Converger, error) {
	spec, err := desired.SpecFromConfig(cfg)
	if err != nil {
		return nil, convergence.NewError(convergence.ApplyFailure, convergence.ReasonInvalidInput, err)
	}
	app, err := desired.Build(spec)
	if err != nil {
		return nil, convergence.NewError(convergence.ApplyFailure, convergence.ReasonInvalidInput, err)
	}
	footprint := cluster.Footprint{CPUs: cfg.CPUs, Memory: cfg.MemoryQuantity()}
	return &Converger{
		Config: cfg,
		App:    app,
		Tools: tools.Manager{
			Prober:    tools.Prober{Runner: runner},
			Installer: tools.Installer{BinDir: cfg.BinDir, Downloader: deps.Downloader},
			Catalogue: tools.Catalogue(cfg),
			Required:  []string{tools.Kubectl, tools.Istioctl},
			Drivers:   cfg.ClusterDrivers,
		},
		Provisioner: cluster.Provisioner{
			Prober:      deps.Prober,
			Drivers:     deps.Drivers,
			Preference:  cfg.ClusterDrivers,
			ClusterName: cfg.ClusterName,
			Footprint:   footprint,
		},
		Mesh: mesh.Installer{
			Profile:            cfg.MeshProfile,
			Footprint:          footprint,
			IngressServiceType: corev1.ServiceType(cfg.IngressServiceType),
			Timeout:            cfg.MeshTimeout,
		},
		Workloads: workload.NewReconciler(cfg.Workers),
	}, nil
}

// Stages returns the stages of a converge run, in order.
func (c *Converger) Stages() []Stage {
	timeout := c.Config.StageTimeout
	return []Stage{
		{Name: convergence.StageTools, Timeout: timeout, Run: c.Tools.Run},
		{Name: convergence.StageCluster, Timeout: timeout, Run: c.Provisioner.Ensure},
		// the install itself is bounded by the stage timeout, the wait by the mesh timeout
		{Name: convergence.StageMesh, Timeout: timeout + c.Config.MeshTimeout, Run: c.Mesh.Ensure},
		{Name: convergence.StageNamespace, Timeout: timeout, Run: func(ctx context.Context, e *env.Environment) convergence.Result {
			return namespace.Ensure(ctx, e, c.App.Spec.Namespace, c.App.Spec.Injection)
		}},
		{Name: convergence.StageWorkloads, Timeout: timeout, Run: func(ctx context.Context, e *env.Environment) convergence.Result {
			return c.Workloads.Apply(ctx, e, c.App.Set)
		}},
		{Name: convergence.StageRoutes, Timeout: timeout, Run: func(ctx context.Context, e *env.Environment) convergence.Result {
			return route.Apply(ctx, e, c.App.Gateway, c.App.Routes)
		}},
		{Name: convergence.StageAccess, Timeout: timeout, Run: func(ctx context.Context, e *env.Environment) convergence.Result {
			endpoints, result := access.Resolve(ctx, e, c.App.Spec)
			c.Endpoints = endpoints
			return result
		}},
	}
}

// Converge runs every stage against the given Environment.
func (c *Converger) Converge(ctx context.Context, e *env.Environment) (convergence.Results, error) {
	return Run(ctx, e, c.Stages())
}
