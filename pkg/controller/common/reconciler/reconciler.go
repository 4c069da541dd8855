// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package reconciler

import (
	"context"
	"reflect"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/apiutil"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/controller/common/hash"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
	ulog "github.com/helixstack/helixctl/pkg/utils/log"
	"github.com/helixstack/helixctl/pkg/utils/metrics"
)

// Spec describes how one object converges towards its expected state.
type Spec[T client.Object] struct {
	// Expected is stamped with its fingerprint before being compared or written. It is not modified.
	Expected T
	// Drifted reports whether current must be updated. Defaults to comparing fingerprints.
	Drifted func(current, expected T) bool
	// Immutable returns an error when current cannot be updated in place to match expected.
	// Objects are never deleted and recreated, the conflict is reported instead.
	Immutable func(current, expected T) error
	// Mutate copies the managed fields of expected into current, keeping what others set.
	Mutate func(current, expected T)
}

// SpecDrifted compares fingerprints, then the spec returned by spec. An out-of-band edit of the
// spec leaves the fingerprint label in place. Fields left unset in expected are ignored, so that
// defaults filled in by the API server are not drift.
func SpecDrifted[T client.Object](spec func(T) any) func(current, expected T) bool {
	return func(current, expected T) bool {
		return hash.Drifted(current, expected) || !equality.Semantic.DeepDerivative(spec(expected), spec(current))
	}
}

// Converge creates the expected object if it does not exist, updates it if it drifted, and never
// deletes it. The object as stored by the API server is returned along with the action taken.
func Converge[T client.Object](ctx context.Context, c k8s.Client, s Spec[T]) (T, convergence.Action, error) {
	var zero T
	if s.Mutate == nil {
		return zero, "", errors.New("Mutate must be set")
	}
	expected, ok := s.Expected.DeepCopyObject().(T)
	if !ok {
		return zero, "", errors.Errorf("unexpected copy of %T", s.Expected)
	}
	hash.Stamp(expected)
	drifted := s.Drifted
	if drifted == nil {
		drifted = func(current, expected T) bool { return hash.Drifted(current, expected) }
	}

	gvk, err := apiutil.GVKForObject(expected, k8s.Scheme())
	if err != nil {
		return zero, "", err
	}
	kind := gvk.Kind
	key := k8s.ExtractNamespacedName(expected)
	log := ulog.FromContext(ctx).WithValues("kind", kind, "namespace", key.Namespace, "name", key.Name)

	current := reflect.New(reflect.TypeOf(expected).Elem()).Interface().(T) //nolint:forcetypeassert
	err = c.Get(ctx, key, current)
	switch {
	case apierrors.IsNotFound(err):
		log.Info("Creating resource")
		if err := c.Create(ctx, expected); err != nil {
			return zero, "", errors.Wrapf(err, "while creating %s %s", kind, key)
		}
		metrics.ResourceActions.WithLabelValues(kind, string(convergence.Created)).Inc()
		return expected, convergence.Created, nil
	case err != nil:
		return zero, "", errors.Wrapf(err, "while getting %s %s", kind, key)
	}

	if !drifted(current, expected) {
		log.V(1).Info("Resource already up to date")
		metrics.ResourceActions.WithLabelValues(kind, string(convergence.Unchanged)).Inc()
		return current, convergence.Unchanged, nil
	}
	if s.Immutable != nil {
		if err := s.Immutable(current, expected); err != nil {
			return zero, "", convergence.NewError(convergence.ReconcileConflict, convergence.ReasonImmutableField,
				errors.Wrapf(err, "%s %s cannot be updated in place", kind, key))
		}
	}

	log.Info("Updating resource")
	// the update is conditioned on the version that was read
	resourceVersion := current.GetResourceVersion()
	s.Mutate(current, expected)
	current.SetResourceVersion(resourceVersion)
	if err := c.Update(ctx, current); err != nil {
		return zero, "", errors.Wrapf(err, "while updating %s %s", kind, key)
	}
	metrics.ResourceActions.WithLabelValues(kind, string(convergence.Updated)).Inc()
	return current, convergence.Updated, nil
}
