// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package k8s

import (
	"context"

	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"
)

// NewFakeClient creates a new fake Kubernetes client.
func NewFakeClient(initObjs ...client.Object) Client {
	return fake.NewClientBuilder().
		WithObjects(initObjs...).
		WithScheme(Scheme()).
		Build()
}

// NewInterceptedFakeClient creates a fake client whose calls go through the given interceptor funcs,
// to simulate API server failures.
func NewInterceptedFakeClient(funcs interceptor.Funcs, initObjs ...client.Object) Client {
	return fake.NewClientBuilder().
		WithObjects(initObjs...).
		WithScheme(Scheme()).
		WithInterceptorFuncs(funcs).
		Build()
}

// NewFailingClient returns a client that always returns the provided error when called.
func NewFailingClient(err error) Client {
	return NewInterceptedFakeClient(interceptor.Funcs{
		Get: func(_ context.Context, _ client.WithWatch, _ client.ObjectKey, _ client.Object, _ ...client.GetOption) error {
			return err
		},
		List: func(_ context.Context, _ client.WithWatch, _ client.ObjectList, _ ...client.ListOption) error {
			return err
		},
		Create: func(_ context.Context, _ client.WithWatch, _ client.Object, _ ...client.CreateOption) error {
			return err
		},
		Update: func(_ context.Context, _ client.WithWatch, _ client.Object, _ ...client.UpdateOption) error {
			return err
		},
		Patch: func(_ context.Context, _ client.WithWatch, _ client.Object, _ client.Patch, _ ...client.PatchOption) error {
			return err
		},
		Delete: func(_ context.Context, _ client.WithWatch, _ client.Object, _ ...client.DeleteOption) error {
			return err
		},
	})
}
