// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package deployment

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/controller/common/reconciler"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
	"github.com/helixstack/helixctl/pkg/utils/maps"
)

const defaultRevisionHistoryLimit int32 = 2

// Params to specify a Deployment.
type Params struct {
	Name            string
	Namespace       string
	Selector        map[string]string
	Labels          map[string]string
	PodTemplateSpec corev1.PodTemplateSpec
	Replicas        int32
	Strategy        appsv1.DeploymentStrategyType
}

// New creates a Deployment from the given params.
func New(params Params) appsv1.Deployment {
	return appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      params.Name,
			Namespace: params.Namespace,
			Labels:    params.Labels,
		},
		Spec: appsv1.DeploymentSpec{
			RevisionHistoryLimit: ptr.To(defaultRevisionHistoryLimit),
			Selector: &metav1.LabelSelector{
				MatchLabels: params.Selector,
			},
			Template: params.PodTemplateSpec,
			Replicas: ptr.To(params.Replicas),
			Strategy: appsv1.DeploymentStrategy{
				Type: params.Strategy,
			},
		},
	}
}

// Reconcile creates or updates the given Deployment, restoring a spec edited out of band. The label
// selector of an existing Deployment cannot be changed, such a change is reported as a conflict.
func Reconcile(ctx context.Context, c k8s.Client, expected appsv1.Deployment) (appsv1.Deployment, convergence.Action, error) {
	reconciled, action, err := reconciler.Converge(ctx, c, reconciler.Spec[*appsv1.Deployment]{
		Expected: &expected,
		Drifted:  reconciler.SpecDrifted(func(o *appsv1.Deployment) any { return o.Spec }),
		Immutable: func(current, expected *appsv1.Deployment) error {
			if !equality.Semantic.DeepEqual(current.Spec.Selector, expected.Spec.Selector) {
				return fmt.Errorf("selector changed from %v to %v", current.Spec.Selector, expected.Spec.Selector)
			}
			return nil
		},
		Mutate: func(current, expected *appsv1.Deployment) {
			current.Labels = maps.Merge(current.Labels, expected.Labels)
			current.Annotations = maps.Merge(current.Annotations, expected.Annotations)
			// status is left to the controller manager
			current.Spec = expected.Spec
		},
	})
	if err != nil {
		return appsv1.Deployment{}, "", err
	}
	return *reconciled, action, nil
}
