// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package cluster makes sure a cluster answers behind the configured kubeconfig, creating or
// restarting a local one when it does not.
package cluster

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/bootstrap/env"
	ulog "github.com/helixstack/helixctl/pkg/utils/log"
	"github.com/helixstack/helixctl/pkg/utils/retry"
)

const (
	clusterKind = "Cluster"
	// DefaultReadyTimeout bounds the wait for a created or restarted cluster to answer.
	DefaultReadyTimeout = 3 * time.Minute
	defaultReadyInterval = 2 * time.Second
)

// Provisioner walks the driver preference to provision a cluster when none is reachable.
type Provisioner struct {
	Prober      Prober
	Drivers     map[string]Driver
	Preference  []string
	ClusterName string
	Footprint   Footprint
	// ReadyTimeout bounds the re-probe after a cluster was created or started.
	ReadyTimeout  time.Duration
	ReadyInterval time.Duration
}

// Ensure records a reachable cluster in the Environment. A cluster already answering behind the
// configured context is reused as is, even when degraded, and so is one answering behind the context
// a preferred driver names its cluster with. Otherwise the first preferred driver whose CLI is
// present starts the cluster with the deterministic name if it exists, or creates it.
func (p Provisioner) Ensure(ctx context.Context, e *env.Environment) convergence.Result {
	log := ulog.FromContext(ctx)

	cluster, probeErr := p.Prober.Probe(ctx, e.Kubeconfig)
	if probeErr == nil {
		e.Cluster = cluster
		log.Info("Cluster reachable", "context", e.Kubeconfig.Context, "version", cluster.ServerVersion, "degraded", cluster.Degraded)
		return convergence.FromActions(convergence.StageCluster, []convergence.ResourceAction{
			{Kind: clusterKind, Name: e.Kubeconfig.Context, Action: convergence.Unchanged},
		})
	}
	if adopted, ok := p.adoptProvisioned(ctx, e); ok {
		log.Info("Cluster reachable", "context", e.Kubeconfig.Context, "driver", adopted.Driver, "version", adopted.ServerVersion)
		return convergence.FromActions(convergence.StageCluster, []convergence.ResourceAction{
			{Kind: clusterKind, Name: p.ClusterName, Action: convergence.Unchanged},
		})
	}
	log.Info("Cluster unreachable, provisioning a local one", "context", e.Kubeconfig.Context, "error", probeErr.Error())

	driver, err := p.selectDriver(e)
	if err != nil {
		return convergence.FailedWith(convergence.StageCluster, errors.Wrapf(err, "%s", probeErr))
	}
	log = log.WithValues("driver", driver.Name(), "cluster", p.ClusterName)

	exists, err := driver.Exists(ctx, e.Runner, p.ClusterName)
	if err != nil {
		return convergence.FailedWith(convergence.StageCluster, provisionFailure(driver, "list", err))
	}
	action, op := convergence.Created, "create"
	if exists {
		log.Info("Starting existing cluster")
		action, op = convergence.Updated, "start"
		err = driver.Start(ctx, e.Runner, p.ClusterName)
	} else {
		log.Info("Creating cluster", "footprint", p.Footprint.String())
		err = driver.Create(ctx, e.Runner, p.ClusterName, p.Footprint)
	}
	if err != nil {
		return convergence.FailedWith(convergence.StageCluster, provisionFailure(driver, op, err))
	}

	e.Kubeconfig.Context = driver.Context(p.ClusterName)
	cluster, err = p.waitReachable(ctx, e)
	if err != nil {
		return convergence.FailedWith(convergence.StageCluster, convergence.NewError(convergence.ProvisionFailure, convergence.ReasonTimeout,
			errors.Wrapf(err, "cluster %s provisioned by %s does not answer on context %q", p.ClusterName, driver.Name(), e.Kubeconfig.Context)))
	}
	cluster.Driver = driver.Name()
	e.Cluster = cluster
	return convergence.FromActions(convergence.StageCluster, []convergence.ResourceAction{
		{Kind: clusterKind, Name: p.ClusterName, Action: action},
	})
}

// adoptProvisioned looks for the cluster a previous run provisioned. Drivers do not switch the
// current context, so the context each preferred driver names its cluster with is probed, without
// running any driver command.
func (p Provisioner) adoptProvisioned(ctx context.Context, e *env.Environment) (*env.Cluster, bool) {
	for _, name := range p.Preference {
		driver, ok := p.Drivers[name]
		if !ok {
			continue
		}
		ref := e.Kubeconfig
		ref.Context = driver.Context(p.ClusterName)
		if ref.Context == e.Kubeconfig.Context {
			continue
		}
		cluster, err := p.Prober.Probe(ctx, ref)
		if err != nil {
			ulog.FromContext(ctx).V(1).Info("No provisioned cluster", "context", ref.Context, "error", err.Error())
			continue
		}
		cluster.Driver = driver.Name()
		e.Kubeconfig = ref
		e.Cluster = cluster
		return cluster, true
	}
	return nil, false
}

func (p Provisioner) selectDriver(e *env.Environment) (Driver, error) {
	for _, name := range p.Preference {
		driver, ok := p.Drivers[name]
		if !ok {
			continue
		}
		if e.HasTool(driver.Name()) {
			return driver, nil
		}
	}
	return nil, convergence.Errorf(convergence.ClusterUnreachable, convergence.ReasonMissingDependency,
		"no cluster driver available among %s", strings.Join(p.Preference, ","))
}

func (p Provisioner) waitReachable(ctx context.Context, e *env.Environment) (*env.Cluster, error) {
	timeout := p.ReadyTimeout
	if timeout == 0 {
		timeout = DefaultReadyTimeout
	}
	interval := p.ReadyInterval
	if interval == 0 {
		interval = defaultReadyInterval
	}
	var cluster *env.Cluster
	err := retry.UntilSuccess(ctx, func(ctx context.Context) error {
		c, err := p.Prober.Probe(ctx, e.Kubeconfig)
		if err != nil {
			return err
		}
		cluster = c
		return nil
	}, timeout, interval)
	if err != nil {
		return nil, err
	}
	return cluster, nil
}

func provisionFailure(d Driver, op string, err error) error {
	return convergence.NewError(convergence.ProvisionFailure, convergence.ReasonPermanent,
		errors.Wrapf(err, "%s %s failed", d.Name(), op))
}
