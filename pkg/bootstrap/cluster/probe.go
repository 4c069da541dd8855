// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package cluster

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"k8s.io/client-go/discovery"

	"github.com/helixstack/helixctl/pkg/bootstrap/env"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
	ulog "github.com/helixstack/helixctl/pkg/utils/log"
)

// DefaultProbeTimeout bounds each request of a liveness probe.
const DefaultProbeTimeout = 10 * time.Second

// Prober checks whether the cluster behind a kubeconfig context answers.
type Prober interface {
	Probe(ctx context.Context, ref k8s.KubeconfigRef) (*env.Cluster, error)
}

// APIProber asks the API server for its version, then for its readiness. A server that answers
// the former but not the latter is Degraded, which still counts as reachable.
type APIProber struct {
	Timeout time.Duration
}

var _ Prober = APIProber{}

func (p APIProber) Probe(ctx context.Context, ref k8s.KubeconfigRef) (*env.Cluster, error) {
	timeout := p.Timeout
	if timeout == 0 {
		timeout = DefaultProbeTimeout
	}
	cfg, err := ref.RESTConfig(timeout)
	if err != nil {
		return nil, err
	}
	dc, err := discovery.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "while creating the discovery client")
	}
	version, err := dc.ServerVersion()
	if err != nil {
		return nil, errors.Wrapf(err, "while getting the server version of context %q", ref.Context)
	}

	degraded := false
	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := dc.RESTClient().Get().AbsPath("/readyz").DoRaw(readyCtx); err != nil {
		ulog.FromContext(ctx).Info("API server answers but is not ready", "context", ref.Context, "error", err.Error())
		degraded = true
	}

	c, err := k8s.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &env.Cluster{
		Degraded:      degraded,
		ServerVersion: version.GitVersion,
		RESTConfig:    cfg,
		Client:        c,
	}, nil
}
