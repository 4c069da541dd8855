// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package statefulset

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

// Params to specify a StatefulSet.
type Params struct {
	Name                 string
	Namespace            string
	ServiceName          string
	Selector             map[string]string
	Labels               map[string]string
	PodTemplateSpec      corev1.PodTemplateSpec
	VolumeClaimTemplates []corev1.PersistentVolumeClaim
	Replicas             int32
	RevisionHistoryLimit *int32
}

// New creates a StatefulSet from the given params.
func New(params Params) appsv1.StatefulSet {
	return appsv1.StatefulSet{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "StatefulSet"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      params.Name,
			Namespace: params.Namespace,
			Labels:    params.Labels,
		},
		Spec: appsv1.StatefulSetSpec{
			Replicas: ptr.To(params.Replicas),
			Selector: &metav1.LabelSelector{
				MatchLabels: params.Selector,
			},
			Template:             params.PodTemplateSpec,
			VolumeClaimTemplates: params.VolumeClaimTemplates,
			ServiceName:          params.ServiceName,
			RevisionHistoryLimit: params.RevisionHistoryLimit,
			PodManagementPolicy:  appsv1.OrderedReadyPodManagement,
			UpdateStrategy: appsv1.StatefulSetUpdateStrategy{
				Type: appsv1.RollingUpdateStatefulSetStrategyType,
			},
			// volumes outlive the StatefulSet: data is never removed by helixctl
			PersistentVolumeClaimRetentionPolicy: &appsv1.StatefulSetPersistentVolumeClaimRetentionPolicy{
				WhenDeleted: appsv1.RetainPersistentVolumeClaimRetentionPolicyType,
				WhenScaled:  appsv1.RetainPersistentVolumeClaimRetentionPolicyType,
			},
		},
	}
}

// Reconcile creates or updates the given StatefulSet. Changes to fields the API server refuses to
// update (claim templates, selector, service name) are reported as conflicts.
func Reconcile(ctx context.Context, c k8s.Client, expected appsv1.StatefulSet) (appsv1.StatefulSet, convergence.Action, error) {
	reconciled, action, err := reconciler.Converge(ctx, c, reconciler.Spec[*appsv1.StatefulSet]{
		Expected: &expected,
		Drifted:  reconciler.SpecDrifted(func(o *appsv1.StatefulSet) any { return o.Spec }),
		Immutable: func(current, expected *appsv1.StatefulSet) error {
			return checkImmutableFields(*current, *expected)
		},
		Mutate: func(current, expected *appsv1.StatefulSet) {
			current.Labels = maps.Merge(current.Labels, expected.Labels)
			current.Annotations = maps.Merge(current.Annotations, expected.Annotations)
			current.Spec = expected.Spec
		},
	})
	if err != nil {
		return appsv1.StatefulSet{}, "", err
	}
	return *reconciled, action, nil
}

func checkImmutableFields(actual, expected appsv1.StatefulSet) error {
	if !equality.Semantic.DeepEqual(actual.Spec.Selector, expected.Spec.Selector) {
		return fmt.Errorf("selector changed from %v to %v", actual.Spec.Selector, expected.Spec.Selector)
	}
	if actual.Spec.ServiceName != expected.Spec.ServiceName {
		return fmt.Errorf("service name changed from %q to %q", actual.Spec.ServiceName, expected.Spec.ServiceName)
	}
	return ClaimTemplatesConflict(actual.Spec.VolumeClaimTemplates, expected.Spec.VolumeClaimTemplates)
}

// ClaimTemplatesConflict returns an error if the expected volume claim templates differ from the
// actual ones. Only the fields set by helixctl are compared, defaults set by the API server are ignored.
func ClaimTemplatesConflict(actual, expected []corev1.PersistentVolumeClaim) error {
	if len(actual) != len(expected) {
		return fmt.Errorf("volume claim templates count changed from %d to %d", len(actual), len(expected))
	}
	for i := range expected {
		a, e := actual[i], expected[i]
		if a.Name != e.Name {
			return fmt.Errorf("volume claim template %q replaced by %q", a.Name, e.Name)
		}
		if !equality.Semantic.DeepEqual(a.Spec.AccessModes, e.Spec.AccessModes) {
			return fmt.Errorf("volume claim template %q access modes changed from %v to %v", e.Name, a.Spec.AccessModes, e.Spec.AccessModes)
		}
		actualStorage := a.Spec.Resources.Requests[corev1.ResourceStorage]
		expectedStorage := e.Spec.Resources.Requests[corev1.ResourceStorage]
		if actualStorage.Cmp(expectedStorage) != 0 {
			return fmt.Errorf("volume claim template %q storage request changed from %s to %s",
				e.Name, actualStorage.String(), expectedStorage.String())
		}
		if e.Spec.StorageClassName != nil && !equality.Semantic.DeepEqual(a.Spec.StorageClassName, e.Spec.StorageClassName) {
			return fmt.Errorf("volume claim template %q storage class changed to %q", e.Name, *e.Spec.StorageClassName)
		}
	}
	return nil
}
