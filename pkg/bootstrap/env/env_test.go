// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package env

import (
	"testing"

	"github.com/blang/semver/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
)

func TestEnvironment_Tools(t *testing.T) {
	e := New("/opt/helix/bin", k8s.KubeconfigRef{Path: "/tmp/kubeconfig"}, nil)

	assert.Equal(t, Absent, e.Tool("istioctl").State)
	_, err := e.ToolPath("istioctl")
	assert.True(t, convergence.IsKind(err, convergence.MissingTool))

	e.SetTool("kubectl", ToolStatus{State: Degraded, Path: "/usr/bin/kubectl", Detail: "version 1.19.0 is older than 1.26.0"})
	assert.False(t, e.HasTool("kubectl"))

	e.SetTool("kubectl", ToolStatus{State: Present, Path: "/opt/helix/bin/kubectl", Version: &semver.Version{Major: 1, Minor: 30, Patch: 2}})
	assert.True(t, e.HasTool("kubectl"))
	path, err := e.ToolPath("kubectl")
	require.NoError(t, err)
	assert.Equal(t, "/opt/helix/bin/kubectl", path)
}

func TestEnvironment_Client(t *testing.T) {
	e := New("", k8s.KubeconfigRef{Path: "/tmp/kubeconfig", Context: "kind-helix"}, nil)
	assert.False(t, e.Reachable())
	_, err := e.Client()
	require.Error(t, err)
	assert.True(t, convergence.IsKind(err, convergence.ClusterUnreachable))
	assert.Contains(t, err.Error(), "kind-helix")

	e.Cluster = &Cluster{Client: k8s.NewFakeClient()}
	c, err := e.Client()
	require.NoError(t, err)
	assert.NotNil(t, c)
}
