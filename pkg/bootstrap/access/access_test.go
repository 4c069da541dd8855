// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package access

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/bootstrap/desired"
	"github.com/helixstack/helixctl/pkg/bootstrap/env"
	"github.com/helixstack/helixctl/pkg/bootstrap/mesh"
	"github.com/helixstack/helixctl/pkg/config"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
)

func spec(t *testing.T) desired.Spec {
	t.Helper()
	s, err := desired.SpecFromConfig(config.Default())
	require.NoError(t, err)
	return s
}

func ingress(serviceType corev1.ServiceType, lb ...corev1.LoadBalancerIngress) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Namespace: mesh.Namespace, Name: mesh.IngressGateway},
		Spec: corev1.ServiceSpec{
			Type: serviceType,
			Ports: []corev1.ServicePort{
				{Name: "status-port", Port: 15021, NodePort: 30021},
				{Name: "http2", Port: 80, NodePort: 31380},
			},
		},
		Status: corev1.ServiceStatus{LoadBalancer: corev1.LoadBalancerStatus{Ingress: lb}},
	}
}

func node(name string, addrs ...corev1.NodeAddress) *corev1.Node {
	return &corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: name}, Status: corev1.NodeStatus{Addresses: addrs}}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name         string
		objects      []client.Object
		wantResolved bool
		wantFrontend string
		wantAPI      string
	}{
		{
			name:         "load balancer ip",
			objects:      []client.Object{ingress(corev1.ServiceTypeLoadBalancer, corev1.LoadBalancerIngress{IP: "172.18.255.200"})},
			wantResolved: true,
			wantFrontend: "http://172.18.255.200/",
			wantAPI:      "http://172.18.255.200/api",
		},
		{
			name:         "load balancer hostname",
			objects:      []client.Object{ingress(corev1.ServiceTypeLoadBalancer, corev1.LoadBalancerIngress{Hostname: "helix.example.com"})},
			wantResolved: true,
			wantFrontend: "http://helix.example.com/",
			wantAPI:      "http://helix.example.com/api",
		},
		{
			name:    "load balancer pending",
			objects: []client.Object{ingress(corev1.ServiceTypeLoadBalancer)},
		},
		{
			name: "node port prefers the external ip",
			objects: []client.Object{
				ingress(corev1.ServiceTypeNodePort),
				node("helix-control-plane",
					corev1.NodeAddress{Type: corev1.NodeInternalIP, Address: "10.0.0.2"},
					corev1.NodeAddress{Type: corev1.NodeExternalIP, Address: "203.0.113.7"},
				),
			},
			wantResolved: true,
			wantFrontend: "http://203.0.113.7:31380/",
			wantAPI:      "http://203.0.113.7:31380/api",
		},
		{
			name:    "node port without nodes",
			objects: []client.Object{ingress(corev1.ServiceTypeNodePort)},
		},
		{
			name:    "cluster ip only",
			objects: []client.Object{ingress(corev1.ServiceTypeClusterIP)},
		},
		{
			name: "no ingress",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := env.New("", k8s.KubeconfigRef{}, nil)
			e.Cluster = &env.Cluster{Client: k8s.NewFakeClient(tt.objects...)}
			endpoints, result := Resolve(context.Background(), e, spec(t))
			// an unresolved address is informational
			require.NoError(t, result.Err)
			assert.Equal(t, convergence.AlreadySatisfied, result.Outcome)
			assert.Equal(t, tt.wantResolved, endpoints.Resolved)
			assert.Equal(t, tt.wantFrontend, endpoints.Frontend)
			assert.Equal(t, tt.wantAPI, endpoints.API)
			assert.Equal(t, "datastore.helix.svc.cluster.local:27017", endpoints.Datastore)
			if !tt.wantResolved {
				assert.NotEmpty(t, endpoints.Reason)
			}
		})
	}
}

func TestResolve_APIFailure(t *testing.T) {
	e := env.New("", k8s.KubeconfigRef{}, nil)
	e.Cluster = &env.Cluster{Client: k8s.NewFailingClient(errors.New("boom"))}
	_, result := Resolve(context.Background(), e, spec(t))
	assert.Equal(t, convergence.Failed, result.Outcome)
	assert.True(t, convergence.IsKind(result.Err, convergence.ApplyFailure))
}

func TestWriteReport(t *testing.T) {
	results := convergence.Results{
		{Stage: convergence.StageTools, Outcome: convergence.AlreadySatisfied, Duration: 120 * time.Millisecond},
		{Stage: convergence.StageWorkloads, Outcome: convergence.Succeeded, Actions: []convergence.ResourceAction{
			{Kind: "Service", Name: "backend", Action: convergence.Created},
			{Kind: "Workload", Name: "backend", Action: convergence.Unchanged},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, results, Endpoints{
		Resolved:  true,
		Frontend:  "http://172.18.255.200/",
		API:       "http://172.18.255.200/api",
		Datastore: "datastore.helix.svc.cluster.local:27017",
	}))
	out := buf.String()
	for _, want := range []string{"tools", "workloads", "Succeeded", "http://172.18.255.200/api", "datastore.helix.svc.cluster.local:27017", "120ms"} {
		assert.Contains(t, out, want)
	}

	buf.Reset()
	require.NoError(t, WriteReport(&buf, results, Endpoints{Reason: "no load balancer address assigned to the ingress"}))
	assert.Contains(t, buf.String(), "unresolved: no load balancer address assigned to the ingress")
}
