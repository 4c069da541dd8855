// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package v1beta1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// VirtualServiceKind is the kind of the VirtualService resource.
const VirtualServiceKind = "VirtualService"

// VirtualServiceSpec defines the routing rules applied to traffic entering through the listed gateways.
type VirtualServiceSpec struct {
	Hosts    []string `json:"hosts,omitempty"`
	Gateways []string `json:"gateways,omitempty"`
	// HTTP routes are evaluated in order, the first matching route wins.
	HTTP []HTTPRoute `json:"http,omitempty"`
}

// HTTPRoute is an ordered routing rule. A route without Match applies to every request.
type HTTPRoute struct {
	Name  string                 `json:"name,omitempty"`
	Match []HTTPMatchRequest     `json:"match,omitempty"`
	Route []HTTPRouteDestination `json:"route,omitempty"`
}

// HTTPMatchRequest holds the conditions a request must satisfy for the route to apply.
type HTTPMatchRequest struct {
	URI *StringMatch `json:"uri,omitempty"`
}

// StringMatch matches a string either exactly or by prefix.
type StringMatch struct {
	Exact  string `json:"exact,omitempty"`
	Prefix string `json:"prefix,omitempty"`
}

// HTTPRouteDestination is a weighted destination of a route.
type HTTPRouteDestination struct {
	Destination Destination `json:"destination"`
	Weight      int32       `json:"weight,omitempty"`
}

// Destination identifies a service (by its cluster DNS name) and port traffic is forwarded to.
type Destination struct {
	Host string        `json:"host"`
	Port *PortSelector `json:"port,omitempty"`
}

// PortSelector selects a port of the destination service.
type PortSelector struct {
	Number uint32 `json:"number,omitempty"`
}

// +kubebuilder:object:root=true

// VirtualService is the Schema for the virtualservices API.
type VirtualService struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec VirtualServiceSpec `json:"spec,omitempty"`
}

// +kubebuilder:object:root=true

// VirtualServiceList contains a list of VirtualService.
type VirtualServiceList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []VirtualService `json:"items"`
}

func init() {
	SchemeBuilder.Register(&VirtualService{}, &VirtualServiceList{})
}
