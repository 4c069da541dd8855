// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package cluster

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/bootstrap/env"
	"github.com/helixstack/helixctl/pkg/utils/exec"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
)

// fakeProber answers for the contexts marked reachable.
type fakeProber struct {
	mu        sync.Mutex
	reachable map[string]bool
	degraded  bool
}

func (f *fakeProber) setReachable(kubeContext string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reachable[kubeContext] = true
}

func (f *fakeProber) Probe(_ context.Context, ref k8s.KubeconfigRef) (*env.Cluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.reachable[ref.Context] {
		return nil, errors.New("connection refused")
	}
	return &env.Cluster{ServerVersion: "v1.30.0", Degraded: f.degraded, Client: k8s.NewFakeClient()}, nil
}

var footprint = Footprint{CPUs: 4, Memory: resource.MustParse("8Gi")}

func newEnvironment(runner *exec.FakeRunner, tools ...string) *env.Environment {
	e := env.New("", k8s.KubeconfigRef{Path: "/home/dev/.kube/config", Context: "prod-like"}, runner)
	for _, t := range tools {
		e.SetTool(t, env.ToolStatus{State: env.Present, Path: "/usr/bin/" + t})
	}
	return e
}

func newProvisioner(prober Prober) Provisioner {
	return Provisioner{
		Prober:        prober,
		Drivers:       Drivers(),
		Preference:    []string{"kind", "k3d", "minikube"},
		ClusterName:   "helix",
		Footprint:     footprint,
		ReadyTimeout:  time.Second,
		ReadyInterval: 10 * time.Millisecond,
	}
}

func TestEnsure_ReachableClusterIsReused(t *testing.T) {
	for _, degraded := range []bool{false, true} {
		prober := &fakeProber{reachable: map[string]bool{"prod-like": true}, degraded: degraded}
		runner := exec.NewFakeRunner(nil, map[string]string{"kind": "/usr/bin/kind"})
		e := newEnvironment(runner, "kind")

		result := newProvisioner(prober).Ensure(context.Background(), e)
		require.NoError(t, result.Err)
		assert.Equal(t, convergence.AlreadySatisfied, result.Outcome)
		assert.Empty(t, runner.Calls())
		require.True(t, e.Reachable())
		assert.Equal(t, degraded, e.Cluster.Degraded)
		assert.Equal(t, "prod-like", e.Kubeconfig.Context)
	}
}

func TestEnsure_AdoptsProvisionedCluster(t *testing.T) {
	tests := []struct {
		name        string
		configured  string
		reachable   string
		preference  []string
		wantContext string
		wantDriver  string
	}{
		{name: "no context configured", reachable: "k3d-helix", preference: []string{"k3d"}, wantContext: "k3d-helix", wantDriver: "k3d"},
		{name: "configured context gone", configured: "prod-like", reachable: "kind-helix", preference: []string{"kind", "k3d"}, wantContext: "kind-helix", wantDriver: "kind"},
		{name: "first answering driver wins", configured: "prod-like", reachable: "helix", preference: []string{"kind", "k3d", "minikube"}, wantContext: "helix", wantDriver: "minikube"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &fakeProber{reachable: map[string]bool{tt.reachable: true}}
			runner := exec.NewFakeRunner(nil, map[string]string{"kind": "/usr/bin/kind", "k3d": "/usr/bin/k3d", "minikube": "/usr/bin/minikube"})
			e := newEnvironment(runner, "kind", "k3d", "minikube")
			e.Kubeconfig.Context = tt.configured
			p := newProvisioner(prober)
			p.Preference = tt.preference

			result := p.Ensure(context.Background(), e)
			require.NoError(t, result.Err)
			assert.Equal(t, convergence.AlreadySatisfied, result.Outcome)
			assert.Equal(t, 1, result.Count(convergence.Unchanged))
			// neither listed, created nor started
			assert.Empty(t, runner.Calls())
			require.True(t, e.Reachable())
			assert.Equal(t, tt.wantContext, e.Kubeconfig.Context)
			assert.Equal(t, tt.wantDriver, e.Cluster.Driver)
		})
	}
}

func TestEnsure_CreatesWithFirstAvailableDriver(t *testing.T) {
	prober := &fakeProber{reachable: map[string]bool{}}
	runner := exec.NewFakeRunner(func(name string, args []string) (string, error) {
		cmd := strings.Join(args, " ")
		switch {
		case cmd == "cluster list --output yaml":
			return "[]\n", nil
		case strings.HasPrefix(cmd, "cluster create helix"):
			prober.setReachable("k3d-helix")
		}
		return "", nil
	}, map[string]string{"k3d": "/usr/bin/k3d", "minikube": "/usr/bin/minikube"})
	// kind is preferred but absent
	e := newEnvironment(runner, "k3d", "minikube")

	result := newProvisioner(prober).Ensure(context.Background(), e)
	require.NoError(t, result.Err)
	assert.Equal(t, convergence.Succeeded, result.Outcome)
	assert.Equal(t, 1, result.Count(convergence.Created))
	assert.Equal(t, "k3d-helix", e.Kubeconfig.Context)
	assert.Equal(t, "k3d", e.Cluster.Driver)
	creates := runner.CallsWithPrefix("k3d cluster create")
	require.Len(t, creates, 1)
	assert.Contains(t, creates[0], "--servers-memory 8192m")
	assert.Empty(t, runner.CallsWithPrefix("minikube"))
}

func TestEnsure_StartsExistingCluster(t *testing.T) {
	prober := &fakeProber{reachable: map[string]bool{}}
	runner := exec.NewFakeRunner(func(name string, args []string) (string, error) {
		cmd := strings.Join(args, " ")
		switch cmd {
		case "profile list --output json":
			return `{"invalid":[],"valid":[{"Name":"helix","Status":"Stopped"}]}`, nil
		case "start --profile helix --wait all":
			prober.setReachable("helix")
		}
		return "", nil
	}, map[string]string{"minikube": "/usr/bin/minikube"})
	e := newEnvironment(runner, "minikube")

	result := newProvisioner(prober).Ensure(context.Background(), e)
	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Count(convergence.Updated))
	assert.Equal(t, "helix", e.Kubeconfig.Context)
	// an existing profile is never recreated nor resized
	for _, c := range runner.Calls() {
		assert.NotContains(t, c, "--cpus")
		assert.NotContains(t, c, "delete")
	}
}

func TestEnsure_Failures(t *testing.T) {
	t.Run("no driver available", func(t *testing.T) {
		runner := exec.NewFakeRunner(nil, nil)
		result := newProvisioner(&fakeProber{reachable: map[string]bool{}}).Ensure(context.Background(), newEnvironment(runner))
		assert.Equal(t, convergence.Failed, result.Outcome)
		assert.True(t, convergence.HasReason(result.Err, convergence.ClusterUnreachable, convergence.ReasonMissingDependency))
	})

	t.Run("creation fails", func(t *testing.T) {
		runner := exec.NewFakeRunner(func(_ string, args []string) (string, error) {
			if args[0] == "create" {
				return "", errors.New("docker daemon not running")
			}
			return "", nil
		}, map[string]string{"kind": "/usr/bin/kind"})
		result := newProvisioner(&fakeProber{reachable: map[string]bool{}}).Ensure(context.Background(), newEnvironment(runner, "kind"))
		assert.True(t, convergence.IsKind(result.Err, convergence.ProvisionFailure))
		assert.Contains(t, result.Err.Error(), "docker daemon not running")
	})

	t.Run("created cluster never answers", func(t *testing.T) {
		runner := exec.NewFakeRunner(nil, map[string]string{"kind": "/usr/bin/kind"})
		p := newProvisioner(&fakeProber{reachable: map[string]bool{}})
		p.ReadyTimeout = 50 * time.Millisecond
		result := p.Ensure(context.Background(), newEnvironment(runner, "kind"))
		assert.True(t, convergence.HasReason(result.Err, convergence.ProvisionFailure, convergence.ReasonTimeout))
	})
}

func TestDrivers_Exists(t *testing.T) {
	tests := []struct {
		name   string
		driver Driver
		output string
		want   bool
	}{
		{name: "kind present", driver: KindDriver{}, output: "dev\nhelix\n", want: true},
		{name: "kind absent", driver: KindDriver{}, output: "No kind clusters found.\n", want: false},
		{name: "k3d present", driver: K3dDriver{}, output: "- name: other\n- name: helix\n  serversCount: 1\n", want: true},
		{name: "k3d absent", driver: K3dDriver{}, output: "[]\n", want: false},
		{name: "minikube invalid profile", driver: MinikubeDriver{}, output: `{"invalid":[{"Name":"helix"}],"valid":[]}`, want: true},
		{name: "minikube absent", driver: MinikubeDriver{}, output: `{"invalid":[],"valid":[{"Name":"minikube"}]}`, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := exec.NewFakeRunner(func(string, []string) (string, error) {
				return tt.output, nil
			}, map[string]string{tt.driver.Name(): "/usr/bin/" + tt.driver.Name()})
			got, err := tt.driver.Exists(context.Background(), runner, "helix")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDrivers_Create(t *testing.T) {
	tests := []struct {
		driver  Driver
		context string
		want    string
	}{
		{driver: KindDriver{}, context: "kind-helix", want: "kind create cluster --name helix --wait 120s"},
		{driver: K3dDriver{}, context: "k3d-helix", want: "k3d cluster create helix --wait --kubeconfig-update-default --kubeconfig-switch-context=false --servers-memory 8192m"},
		{driver: MinikubeDriver{}, context: "helix", want: "minikube start --profile helix --wait all --cpus 4 --memory 8192mb"},
	}
	for _, tt := range tests {
		t.Run(tt.driver.Name(), func(t *testing.T) {
			runner := exec.NewFakeRunner(nil, map[string]string{tt.driver.Name(): "/usr/bin/" + tt.driver.Name()})
			require.NoError(t, tt.driver.Create(context.Background(), runner, "helix", footprint))
			assert.Equal(t, []string{tt.want}, runner.Calls())
			assert.Equal(t, tt.context, tt.driver.Context("helix"))
		})
	}
}
