// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package v1beta1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// GatewayKind is inferred from the struct name using reflection in SchemeBuilder.Register()
	// we duplicate it as a constant here for practical purposes.
	GatewayKind = "Gateway"

	ProtocolHTTP = "HTTP"
)

// GatewaySpec describes a load balancer operating at the edge of the mesh.
type GatewaySpec struct {
	// Selector matches the ingress proxy pods this gateway configuration applies to.
	Selector map[string]string `json:"selector,omitempty"`
	// Servers lists the ports the proxy listens on and the hosts exposed on each of them.
	Servers []Server `json:"servers,omitempty"`
}

// Server is one listener of a Gateway.
type Server struct {
	Port  Port     `json:"port"`
	Hosts []string `json:"hosts"`
}

// Port describes the properties of a specific listener port.
type Port struct {
	Number   uint32 `json:"number"`
	Protocol string `json:"protocol"`
	Name     string `json:"name"`
}

// +kubebuilder:object:root=true

// Gateway is the Schema for the gateways API.
type Gateway struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec GatewaySpec `json:"spec,omitempty"`
}

// +kubebuilder:object:root=true

// GatewayList contains a list of Gateway.
type GatewayList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Gateway `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Gateway{}, &GatewayList{})
}
