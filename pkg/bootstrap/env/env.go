// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package env holds the facts detected about the host and the target cluster during a run.
// An Environment is built fresh at the start of every run and never persisted: re-probing
// is what makes a run idempotent.
package env

import (
	"github.com/blang/semver/v4"
	"k8s.io/client-go/rest"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/utils/exec"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
)

// ToolState is the tri-state result of probing an external binary.
type ToolState string

const (
	// Absent means the binary was not found.
	Absent ToolState = "Absent"
	// Present means the binary was found at a usable version.
	Present ToolState = "Present"
	// Degraded means the binary was found but its version is unknown or too old.
	Degraded ToolState = "Degraded"
)

// ToolStatus describes one external binary.
type ToolStatus struct {
	State   ToolState
	Version *semver.Version
	Path    string
	// Detail explains a Degraded state.
	Detail string
}

// Cluster describes the target cluster once it is known to be reachable.
type Cluster struct {
	// Driver is the local driver that created or started the cluster, empty for a cluster
	// that was already reachable.
	Driver string
	// Degraded is set when the API server answers but does not report itself as ready.
	Degraded      bool
	ServerVersion string
	RESTConfig    *rest.Config
	Client        k8s.Client
}

// Environment is threaded through every stage. Only the tools and cluster stages mutate it.
type Environment struct {
	BinDir     string
	Kubeconfig k8s.KubeconfigRef
	Runner     exec.Runner
	Tools      map[string]ToolStatus
	Cluster    *Cluster
}

// New returns an Environment with nothing detected yet.
func New(binDir string, kubeconfig k8s.KubeconfigRef, runner exec.Runner) *Environment {
	return &Environment{
		BinDir:     binDir,
		Kubeconfig: kubeconfig,
		Runner:     runner,
		Tools:      map[string]ToolStatus{},
	}
}

// SetTool records the status of a tool.
func (e *Environment) SetTool(name string, status ToolStatus) {
	e.Tools[name] = status
}

// Tool returns the recorded status of a tool, Absent if it was never probed.
func (e *Environment) Tool(name string) ToolStatus {
	if s, ok := e.Tools[name]; ok {
		return s
	}
	return ToolStatus{State: Absent}
}

// HasTool returns true if the tool is Present.
func (e *Environment) HasTool(name string) bool {
	return e.Tool(name).State == Present
}

// ToolPath returns the path of a Present tool, or a MissingTool error.
func (e *Environment) ToolPath(name string) (string, error) {
	s := e.Tool(name)
	if s.State != Present {
		return "", convergence.Errorf(convergence.MissingTool, "", "%s is %s", name, s.State)
	}
	return s.Path, nil
}

// Reachable returns true once a cluster is known to answer.
func (e *Environment) Reachable() bool {
	return e.Cluster != nil && e.Cluster.Client != nil
}

// Client returns the client of the target cluster, or a ClusterUnreachable error.
func (e *Environment) Client() (k8s.Client, error) {
	if !e.Reachable() {
		return nil, convergence.Errorf(convergence.ClusterUnreachable, "", "no reachable cluster for context %q of %s",
			e.Kubeconfig.Context, e.Kubeconfig.Path)
	}
	return e.Cluster.Client, nil
}
