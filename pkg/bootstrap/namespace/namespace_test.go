// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package namespace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/bootstrap/env"
	"github.com/helixstack/helixctl/pkg/bootstrap/label"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
)

func environment(c k8s.Client) *env.Environment {
	e := env.New("", k8s.KubeconfigRef{}, nil)
	e.Cluster = &env.Cluster{Client: c}
	return e
}

func getNamespace(t *testing.T, c k8s.Client, name string) corev1.Namespace {
	t.Helper()
	var ns corev1.Namespace
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Name: name}, &ns))
	return ns
}

func TestEnsure_CreatesNamespace(t *testing.T) {
	c := k8s.NewFakeClient()
	result := Ensure(context.Background(), environment(c), "helix", true)
	require.NoError(t, result.Err)
	assert.Equal(t, convergence.Succeeded, result.Outcome)
	assert.Equal(t, 1, result.Count(convergence.Created))
	assert.Equal(t, "enabled", getNamespace(t, c, "helix").Labels[label.InjectionLabelName])

	result = Ensure(context.Background(), environment(c), "helix", true)
	require.NoError(t, result.Err)
	assert.Equal(t, convergence.AlreadySatisfied, result.Outcome)
}

func TestEnsure_TogglesInjectionWithoutTouchingWorkloads(t *testing.T) {
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{
		Name:   "helix",
		Labels: map[string]string{label.InjectionLabelName: "enabled", "team": "payments"},
	}}
	workload := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Namespace: "helix", Name: "backend", Labels: map[string]string{"app": "backend"}},
		Spec:       appsv1.DeploymentSpec{Replicas: ptr.To[int32](2)},
	}
	c := k8s.NewFakeClient(ns, workload)
	var before appsv1.Deployment
	require.NoError(t, c.Get(context.Background(), k8s.ExtractNamespacedName(workload), &before))

	result := Ensure(context.Background(), environment(c), "helix", false)
	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Count(convergence.Updated))

	updated := getNamespace(t, c, "helix")
	assert.Equal(t, "disabled", updated.Labels[label.InjectionLabelName])
	// other labels are preserved
	assert.Equal(t, "payments", updated.Labels["team"])

	var after appsv1.Deployment
	require.NoError(t, c.Get(context.Background(), k8s.ExtractNamespacedName(workload), &after))
	assert.Equal(t, before, after)
}

func TestEnsure_AddsMissingLabel(t *testing.T) {
	c := k8s.NewFakeClient(&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "helix"}})
	result := Ensure(context.Background(), environment(c), "helix", true)
	require.NoError(t, result.Err)
	assert.Equal(t, "enabled", getNamespace(t, c, "helix").Labels[label.InjectionLabelName])
}

func TestEnsure_PermanentFailure(t *testing.T) {
	c := k8s.NewInterceptedFakeClient(interceptor.Funcs{
		Create: func(_ context.Context, _ client.WithWatch, obj client.Object, _ ...client.CreateOption) error {
			return apierrors.NewForbidden(corev1.Resource("namespaces"), obj.GetName(), nil)
		},
	})
	result := Ensure(context.Background(), environment(c), "helix", true)
	assert.Equal(t, convergence.Failed, result.Outcome)
	assert.True(t, convergence.HasReason(result.Err, convergence.ApplyFailure, convergence.ReasonPermanent))
	assert.Equal(t, convergence.StageNamespace, result.Stage)
}
