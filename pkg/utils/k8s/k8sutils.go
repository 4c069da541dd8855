// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package k8s

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
)

// ToObjectMeta returns an ObjectMeta based on the given NamespacedName.
func ToObjectMeta(namespacedName types.NamespacedName) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Namespace: namespacedName.Namespace,
		Name:      namespacedName.Name,
	}
}

// ExtractNamespacedName returns an NamespacedName based on the given Object.
func ExtractNamespacedName(object metav1.Object) types.NamespacedName {
	return types.NamespacedName{
		Namespace: object.GetNamespace(),
		Name:      object.GetName(),
	}
}

// ServiceDNSName returns the cluster-internal fully qualified DNS name of a service.
func ServiceDNSName(name, namespace string) string {
	return fmt.Sprintf("%s.%s.svc.cluster.local", name, namespace)
}

// IsDeploymentAvailable returns true if the Deployment reports the Available condition
// for its current generation.
func IsDeploymentAvailable(d appsv1.Deployment) bool {
	if d.Status.ObservedGeneration < d.Generation {
		return false
	}
	for _, cond := range d.Status.Conditions {
		if cond.Type == appsv1.DeploymentAvailable {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// LoadBalancerAddress returns the first IP or hostname assigned to a LoadBalancer Service, if any.
func LoadBalancerAddress(svc corev1.Service) (string, bool) {
	for _, ingress := range svc.Status.LoadBalancer.Ingress {
		if ingress.IP != "" {
			return ingress.IP, true
		}
		if ingress.Hostname != "" {
			return ingress.Hostname, true
		}
	}
	return "", false
}

// NodeAddress returns the address under which a node is reachable from outside the cluster,
// preferring the external IP over the internal one.
func NodeAddress(node corev1.Node) (string, bool) {
	for _, addrType := range []corev1.NodeAddressType{corev1.NodeExternalIP, corev1.NodeInternalIP} {
		for _, addr := range node.Status.Addresses {
			if addr.Type == addrType && addr.Address != "" {
				return addr.Address, true
			}
		}
	}
	return "", false
}

// ServicePort returns the port with the given name, or the first port if name is empty.
func ServicePort(svc corev1.Service, name string) (corev1.ServicePort, bool) {
	for _, p := range svc.Spec.Ports {
		if name == "" || p.Name == name {
			return p, true
		}
	}
	return corev1.ServicePort{}, false
}
