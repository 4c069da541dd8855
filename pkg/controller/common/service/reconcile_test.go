// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
)

func backendService(port int32) corev1.Service {
	return corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "backend", Namespace: "helix"},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app.kubernetes.io/name": "backend"},
			Ports:    []corev1.ServicePort{{Name: "http", Port: port, TargetPort: intstr.FromInt32(8080)}},
		},
	}
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	c := k8s.NewFakeClient()

	_, action, err := Reconcile(ctx, c, backendService(8080))
	require.NoError(t, err)
	assert.Equal(t, convergence.Created, action)

	// simulate the allocation of a cluster IP by the API server
	var actual corev1.Service
	require.NoError(t, c.Get(ctx, types.NamespacedName{Namespace: "helix", Name: "backend"}, &actual))
	actual.Spec.ClusterIP = "10.96.0.12"
	actual.Spec.ClusterIPs = []string{"10.96.0.12"}
	require.NoError(t, c.Update(ctx, &actual))

	_, action, err = Reconcile(ctx, c, backendService(8080))
	require.NoError(t, err)
	assert.Equal(t, convergence.Unchanged, action)

	reconciled, action, err := Reconcile(ctx, c, backendService(9090))
	require.NoError(t, err)
	assert.Equal(t, convergence.Updated, action)
	assert.Equal(t, int32(9090), reconciled.Spec.Ports[0].Port)
	assert.Equal(t, "10.96.0.12", reconciled.Spec.ClusterIP)
}

func TestApplyServerSideValues(t *testing.T) {
	expected := corev1.ServiceSpec{
		Type:  corev1.ServiceTypeNodePort,
		Ports: []corev1.ServicePort{{Name: "http2", Port: 80}, {Name: "https", Port: 443, NodePort: 30443}},
	}
	actual := corev1.ServiceSpec{
		Type:            corev1.ServiceTypeNodePort,
		ClusterIP:       "10.96.4.2",
		SessionAffinity: corev1.ServiceAffinityNone,
		Ports:           []corev1.ServicePort{{Name: "http2", Port: 80, NodePort: 31380}, {Name: "https", Port: 443, NodePort: 31390}},
	}
	ApplyServerSideValues(&expected, actual)
	assert.Equal(t, "10.96.4.2", expected.ClusterIP)
	assert.Equal(t, corev1.ServiceAffinityNone, expected.SessionAffinity)
	assert.Equal(t, int32(31380), expected.Ports[0].NodePort)
	// explicitly requested node ports are kept
	assert.Equal(t, int32(30443), expected.Ports[1].NodePort)
}
