// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package hash fingerprints desired objects so that drift can be detected by comparing a single
// label instead of diffing specs the API server may have defaulted.
package hash

import (
	"hash/fnv"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Label carries the fingerprint of the desired state an object was last converged to.
const Label = "helix.dev/desired-hash"

// spew follows pointers and sorts map keys, two equal values always print the same way.
var printer = spew.ConfigState{
	Indent:         " ",
	SortKeys:       true,
	DisableMethods: true,
	SpewKeys:       true,
}

// Of returns the FNV-1a fingerprint of v, in base 36.
func Of(v any) string {
	h := fnv.New64a()
	printer.Fprintf(h, "%#v", v)
	return strconv.FormatUint(h.Sum64(), 36)
}

// Stamp labels obj with its own fingerprint. A previous stamp is ignored when computing it, so
// stamping twice yields the same label.
func Stamp(obj metav1.Object) {
	labels := make(map[string]string, len(obj.GetLabels())+1)
	for k, v := range obj.GetLabels() {
		if k != Label {
			labels[k] = v
		}
	}
	obj.SetLabels(labels)
	sum := Of(obj)
	labels[Label] = sum
}

// Get returns the fingerprint obj was stamped with, or an empty string.
func Get(obj metav1.Object) string {
	return obj.GetLabels()[Label]
}

// Drifted is true when current was not converged to the desired fingerprint.
func Drifted(current, desired metav1.Object) bool {
	return Get(current) == "" || Get(current) != Get(desired)
}
