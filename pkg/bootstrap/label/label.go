// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package label

const (
	NameLabelName      = "app.kubernetes.io/name"
	ComponentLabelName = "app.kubernetes.io/component"
	PartOfLabelName    = "app.kubernetes.io/part-of"
	ManagedByLabelName = "app.kubernetes.io/managed-by"

	// InjectionLabelName toggles mesh sidecar injection for a namespace.
	InjectionLabelName = "istio-injection"
	InjectionEnabled   = "enabled"
	InjectionDisabled  = "disabled"

	// MeshProfileAnnotation records on the mesh namespace the profile it was installed with.
	MeshProfileAnnotation = "helix.dev/mesh-profile"
	// MeshFootprintAnnotation records on the mesh namespace the resource footprint it was installed with.
	MeshFootprintAnnotation = "helix.dev/mesh-footprint"

	PartOf    = "helix"
	ManagedBy = "helixctl"
)

// Selector returns the labels selecting the pods of an application component.
func Selector(name string) map[string]string {
	return map[string]string{
		NameLabelName:   name,
		PartOfLabelName: PartOf,
	}
}

// Labels returns the labels set on every object of an application component.
func Labels(name, component string) map[string]string {
	labels := Selector(name)
	labels[ComponentLabelName] = component
	labels[ManagedByLabelName] = ManagedBy
	return labels
}

// InjectionValue returns the value of the injection label.
func InjectionValue(enabled bool) string {
	if enabled {
		return InjectionEnabled
	}
	return InjectionDisabled
}
