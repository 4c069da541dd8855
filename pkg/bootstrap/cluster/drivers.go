// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package cluster

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/helixstack/helixctl/pkg/utils/exec"
	ulog "github.com/helixstack/helixctl/pkg/utils/log"
)

// Footprint is the compute allocated to a local cluster.
type Footprint struct {
	CPUs   int
	Memory resource.Quantity
}

// MiB returns the memory in mebibytes.
func (f Footprint) MiB() int64 {
	return f.Memory.Value() / (1024 * 1024)
}

func (f Footprint) String() string {
	return fmt.Sprintf("cpus=%d,memory=%s", f.CPUs, f.Memory.String())
}

// Driver manages local clusters through the CLI of a local Kubernetes distribution.
type Driver interface {
	// Name is also the name of the CLI binary.
	Name() string
	// Context returns the kubeconfig context the driver writes for a cluster.
	Context(clusterName string) string
	Exists(ctx context.Context, r exec.Runner, clusterName string) (bool, error)
	Create(ctx context.Context, r exec.Runner, clusterName string, footprint Footprint) error
	// Start makes an existing cluster reachable again, and refreshes its kubeconfig context.
	Start(ctx context.Context, r exec.Runner, clusterName string) error
}

// Drivers returns every known driver by name.
func Drivers() map[string]Driver {
	return map[string]Driver{
		KindDriver{}.Name():     KindDriver{},
		K3dDriver{}.Name():      K3dDriver{},
		MinikubeDriver{}.Name(): MinikubeDriver{},
	}
}

// KindDriver runs clusters as containers with kind. Node sizing is left to the container runtime.
type KindDriver struct{}

func (KindDriver) Name() string { return "kind" }

func (KindDriver) Context(clusterName string) string { return "kind-" + clusterName }

func (d KindDriver) Exists(ctx context.Context, r exec.Runner, clusterName string) (bool, error) {
	out, err := r.Output(ctx, d.Name(), "get", "clusters")
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == clusterName {
			return true, nil
		}
	}
	return false, nil
}

func (d KindDriver) Create(ctx context.Context, r exec.Runner, clusterName string, footprint Footprint) error {
	ulog.FromContext(ctx).Info("kind cannot size its nodes, ignoring the requested footprint", "footprint", footprint.String())
	return r.Run(ctx, d.Name(), "create", "cluster", "--name", clusterName, "--wait", "120s")
}

func (d KindDriver) Start(ctx context.Context, r exec.Runner, clusterName string) error {
	// node containers restart with the container runtime, only the context needs refreshing
	return r.Run(ctx, d.Name(), "export", "kubeconfig", "--name", clusterName)
}

// K3dDriver runs k3s clusters in containers with k3d.
type K3dDriver struct{}

func (K3dDriver) Name() string { return "k3d" }

func (K3dDriver) Context(clusterName string) string { return "k3d-" + clusterName }

type k3dCluster struct {
	Name string `yaml:"name"`
}

func (d K3dDriver) Exists(ctx context.Context, r exec.Runner, clusterName string) (bool, error) {
	out, err := r.Output(ctx, d.Name(), "cluster", "list", "--output", "yaml")
	if err != nil {
		return false, err
	}
	var clusters []k3dCluster
	if err := yaml.Unmarshal([]byte(out), &clusters); err != nil {
		return false, errors.Wrap(err, "while parsing k3d cluster list")
	}
	for _, c := range clusters {
		if c.Name == clusterName {
			return true, nil
		}
	}
	return false, nil
}

func (d K3dDriver) Create(ctx context.Context, r exec.Runner, clusterName string, footprint Footprint) error {
	args := []string{"cluster", "create", clusterName, "--wait", "--kubeconfig-update-default", "--kubeconfig-switch-context=false"}
	if mib := footprint.MiB(); mib > 0 {
		args = append(args, "--servers-memory", strconv.FormatInt(mib, 10)+"m")
	}
	return r.Run(ctx, d.Name(), args...)
}

func (d K3dDriver) Start(ctx context.Context, r exec.Runner, clusterName string) error {
	if err := r.Run(ctx, d.Name(), "cluster", "start", clusterName, "--wait"); err != nil {
		return err
	}
	return r.Run(ctx, d.Name(), "kubeconfig", "merge", clusterName, "--kubeconfig-merge-default", "--kubeconfig-switch-context=false")
}

// MinikubeDriver runs a single-node cluster in a VM or container with minikube.
type MinikubeDriver struct{}

func (MinikubeDriver) Name() string { return "minikube" }

// Context is the minikube profile name.
func (MinikubeDriver) Context(clusterName string) string { return clusterName }

type minikubeProfiles struct {
	Valid   []minikubeProfile `yaml:"valid"`
	Invalid []minikubeProfile `yaml:"invalid"`
}

type minikubeProfile struct {
	Name string `yaml:"Name"`
}

func (d MinikubeDriver) Exists(ctx context.Context, r exec.Runner, clusterName string) (bool, error) {
	out, err := r.Output(ctx, d.Name(), "profile", "list", "--output", "json")
	if err != nil {
		return false, err
	}
	// JSON is YAML
	var profiles minikubeProfiles
	if err := yaml.Unmarshal([]byte(out), &profiles); err != nil {
		return false, errors.Wrap(err, "while parsing minikube profile list")
	}
	for _, p := range append(profiles.Valid, profiles.Invalid...) {
		if p.Name == clusterName {
			return true, nil
		}
	}
	return false, nil
}

func (d MinikubeDriver) Create(ctx context.Context, r exec.Runner, clusterName string, footprint Footprint) error {
	args := []string{"start", "--profile", clusterName, "--wait", "all"}
	if footprint.CPUs > 0 {
		args = append(args, "--cpus", strconv.Itoa(footprint.CPUs))
	}
	if mib := footprint.MiB(); mib > 0 {
		args = append(args, "--memory", strconv.FormatInt(mib, 10)+"mb")
	}
	return r.Run(ctx, d.Name(), args...)
}

func (d MinikubeDriver) Start(ctx context.Context, r exec.Runner, clusterName string) error {
	// the footprint of an existing profile cannot be changed
	return r.Run(ctx, d.Name(), "start", "--profile", clusterName, "--wait", "all")
}
