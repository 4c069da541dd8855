// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
)

func backend() *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: "helix",
			Name:      "backend",
			Labels:    map[string]string{"app": "backend"},
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To[int32](1),
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  "backend",
						Image: "helix/backend:1.0.0",
						Env:   []corev1.EnvVar{{Name: "DATABASE_URL", Value: "mongodb://db:27017/helix"}},
					}},
				},
			},
		},
	}
}

func TestOf(t *testing.T) {
	tests := []struct {
		name  string
		a, b  func() *appsv1.Deployment
		equal bool
	}{
		{
			name:  "equal values behind distinct pointers",
			a:     backend,
			b:     backend,
			equal: true,
		},
		{
			name: "image bump",
			a:    backend,
			b: func() *appsv1.Deployment {
				d := backend()
				d.Spec.Template.Spec.Containers[0].Image = "helix/backend:1.0.1"
				return d
			},
		},
		{
			name: "map insertion order",
			a: func() *appsv1.Deployment {
				d := backend()
				d.Labels = map[string]string{"a": "1", "b": "2", "c": "3"}
				return d
			},
			b: func() *appsv1.Deployment {
				d := backend()
				d.Labels = map[string]string{"c": "3", "b": "2", "a": "1"}
				return d
			},
			equal: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, Of(tt.a()) == Of(tt.b()))
		})
	}
}

func TestStamp(t *testing.T) {
	d := backend()
	Stamp(d)
	first := Get(d)
	require.NotEmpty(t, first)
	assert.Equal(t, "backend", d.Labels["app"])

	// restamping ignores the previous stamp
	Stamp(d)
	assert.Equal(t, first, Get(d))

	nolabels := backend()
	nolabels.Labels = nil
	Stamp(nolabels)
	assert.NotEmpty(t, Get(nolabels))
}

func TestDrifted(t *testing.T) {
	desired := backend()
	Stamp(desired)

	same := backend()
	Stamp(same)
	assert.False(t, Drifted(same, desired))

	changed := backend()
	changed.Spec.Replicas = ptr.To[int32](2)
	Stamp(changed)
	assert.True(t, Drifted(changed, desired))

	// objects never stamped by helixctl are always out of date
	assert.True(t, Drifted(backend(), desired))
}
