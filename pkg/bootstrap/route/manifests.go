// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package route

import (
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	networkingv1beta1 "github.com/helixstack/helixctl/pkg/apis/networking/v1beta1"
	"github.com/helixstack/helixctl/pkg/bootstrap/label"
)

const (
	// IngressSelectorValue is the istio label value of the mesh ingress proxies.
	IngressSelectorValue = "ingressgateway"
	HTTPPort             = 80
	catchAllRouteName    = "default"
)

// NewGateway builds a Gateway accepting plaintext HTTP traffic for every host on the mesh ingress.
func NewGateway(namespace, name string) networkingv1beta1.Gateway {
	return networkingv1beta1.Gateway{
		TypeMeta: metav1.TypeMeta{APIVersion: networkingv1beta1.GroupVersion.String(), Kind: networkingv1beta1.GatewayKind},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    label.Labels(name, "ingress"),
		},
		Spec: networkingv1beta1.GatewaySpec{
			Selector: map[string]string{"istio": IngressSelectorValue},
			Servers: []networkingv1beta1.Server{{
				Port: networkingv1beta1.Port{
					Number:   HTTPPort,
					Name:     "http",
					Protocol: networkingv1beta1.ProtocolHTTP,
				},
				Hosts: []string{"*"},
			}},
		},
	}
}

// NewVirtualService builds the VirtualService binding the gateway to the destinations of the table,
// preserving the table order.
func NewVirtualService(namespace, name, gateway string, table Table) networkingv1beta1.VirtualService {
	rules := table.Rules()
	routes := make([]networkingv1beta1.HTTPRoute, 0, len(rules))
	for _, r := range rules {
		route := networkingv1beta1.HTTPRoute{
			Name: routeName(r),
			Route: []networkingv1beta1.HTTPRouteDestination{{
				Destination: networkingv1beta1.Destination{
					Host: r.Destination.Host,
					Port: &networkingv1beta1.PortSelector{Number: r.Destination.Port},
				},
			}},
		}
		if !r.IsCatchAll() {
			route.Match = []networkingv1beta1.HTTPMatchRequest{{URI: &networkingv1beta1.StringMatch{Prefix: r.Prefix}}}
		}
		routes = append(routes, route)
	}
	return networkingv1beta1.VirtualService{
		TypeMeta: metav1.TypeMeta{APIVersion: networkingv1beta1.GroupVersion.String(), Kind: networkingv1beta1.VirtualServiceKind},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    label.Labels(name, "routing"),
		},
		Spec: networkingv1beta1.VirtualServiceSpec{
			Hosts:    []string{"*"},
			Gateways: []string{gateway},
			HTTP:     routes,
		},
	}
}

func routeName(r Rule) string {
	if r.IsCatchAll() {
		return catchAllRouteName
	}
	name := strings.Trim(strings.ReplaceAll(r.Prefix, "/", "-"), "-")
	if name == "" {
		return "root"
	}
	return name
}
