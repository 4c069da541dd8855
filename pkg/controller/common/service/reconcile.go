// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package service

import (
	"context"

	corev1 "k8s.io/api/core/v1"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/controller/common/reconciler"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
	"github.com/helixstack/helixctl/pkg/utils/maps"
)

// Reconcile creates or updates the given Service, keeping the fields allocated by the API server.
func Reconcile(ctx context.Context, c k8s.Client, expected corev1.Service) (corev1.Service, convergence.Action, error) {
	reconciled, action, err := reconciler.Converge(ctx, c, reconciler.Spec[*corev1.Service]{
		Expected: &expected,
		Mutate: func(current, expected *corev1.Service) {
			current.Labels = maps.Merge(current.Labels, expected.Labels)
			current.Annotations = maps.Merge(current.Annotations, expected.Annotations)
			spec := *expected.Spec.DeepCopy()
			ApplyServerSideValues(&spec, current.Spec)
			current.Spec = spec
		},
	})
	if err != nil {
		return corev1.Service{}, "", err
	}
	return *reconciled, action, nil
}

// ApplyServerSideValues copies into expected the values the API server allocated on the actual spec
// and that were left empty in the expected spec.
func ApplyServerSideValues(expected *corev1.ServiceSpec, actual corev1.ServiceSpec) {
	// ClusterIP might not exist in the expected service,
	// but might have been set after creation by k8s on the actual resource.
	if expected.ClusterIP == "" {
		expected.ClusterIP = actual.ClusterIP
	}
	if len(expected.ClusterIPs) == 0 {
		expected.ClusterIPs = actual.ClusterIPs
	}
	if len(expected.IPFamilies) == 0 {
		expected.IPFamilies = actual.IPFamilies
	}
	if expected.IPFamilyPolicy == nil {
		expected.IPFamilyPolicy = actual.IPFamilyPolicy
	}
	if expected.SessionAffinity == "" {
		expected.SessionAffinity = actual.SessionAffinity
	}
	if expected.InternalTrafficPolicy == nil {
		expected.InternalTrafficPolicy = actual.InternalTrafficPolicy
	}
	// same for the node ports, when the port is unchanged
	for i := range expected.Ports {
		for _, actualPort := range actual.Ports {
			if actualPort.Port == expected.Ports[i].Port && expected.Ports[i].NodePort == 0 {
				expected.Ports[i].NodePort = actualPort.NodePort
			}
		}
	}
}
