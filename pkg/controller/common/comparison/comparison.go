// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package comparison compares objects the way tests care about: what helixctl wrote, not what the
// API server added.
package comparison

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// serverSet are the metadata fields filled in by the API server or the fake client.
var serverSet = []string{"ResourceVersion", "UID", "Generation", "CreationTimestamp", "ManagedFields"}

var options = []cmp.Option{
	cmpopts.IgnoreTypes(metav1.TypeMeta{}),
	cmpopts.IgnoreFields(metav1.ObjectMeta{}, serverSet...),
	cmpopts.EquateEmpty(),
}

// Equal is true when a and b only differ in server-set fields.
func Equal(a, b metav1.Object) bool {
	return cmp.Equal(a, b, options...)
}

// Diff is empty when a and b are Equal, a readable report otherwise.
func Diff(a, b metav1.Object) string {
	return cmp.Diff(a, b, options...)
}

// RequireEqual stops the test with the diff when a and b are not Equal.
func RequireEqual(t *testing.T, a, b metav1.Object) {
	t.Helper()
	require.True(t, Equal(a, b), Diff(a, b))
}
