// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package desired

import (
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Kind of a desired resource.
type Kind string

const (
	KindNamespace        Kind = "Namespace"
	KindService          Kind = "Service"
	KindStatefulWorkload Kind = "StatefulWorkload"
	KindWorkload         Kind = "Workload"
	KindGateway          Kind = "Gateway"
	KindRouteRule        Kind = "RouteRule"
)

// Identity uniquely identifies a desired resource within a run.
type Identity struct {
	Kind      Kind
	Namespace string
	Name      string
}

func (i Identity) String() string {
	if i.Namespace == "" {
		return fmt.Sprintf("%s %s", i.Kind, i.Name)
	}
	return fmt.Sprintf("%s %s/%s", i.Kind, i.Namespace, i.Name)
}

// Resource is the declarative description of one cluster object.
type Resource struct {
	Kind   Kind
	Object client.Object
}

// Identity returns the identity of the resource.
func (r Resource) Identity() Identity {
	return Identity{Kind: r.Kind, Namespace: r.Object.GetNamespace(), Name: r.Object.GetName()}
}

// Set is an ordered collection of resources with unique identities.
type Set struct {
	resources []Resource
	index     map[Identity]struct{}
}

// NewSet returns a Set containing the given resources.
func NewSet(resources ...Resource) (*Set, error) {
	s := &Set{index: map[Identity]struct{}{}}
	if err := s.Add(resources...); err != nil {
		return nil, err
	}
	return s, nil
}

// Add appends resources to the set, rejecting identities already present.
func (s *Set) Add(resources ...Resource) error {
	for _, r := range resources {
		if r.Object == nil {
			return fmt.Errorf("%s resource has no object", r.Kind)
		}
		id := r.Identity()
		if _, exists := s.index[id]; exists {
			return fmt.Errorf("duplicate desired resource %s", id)
		}
		s.index[id] = struct{}{}
		s.resources = append(s.resources, r)
	}
	return nil
}

// All returns the resources in insertion order.
func (s *Set) All() []Resource {
	return append([]Resource(nil), s.resources...)
}

// OfKind returns the resources of the given kinds, in insertion order.
func (s *Set) OfKind(kinds ...Kind) []Resource {
	var out []Resource
	for _, r := range s.resources {
		for _, k := range kinds {
			if r.Kind == k {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Len returns the number of resources.
func (s *Set) Len() int {
	return len(s.resources)
}
