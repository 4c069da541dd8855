// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package access resolves where the converged application can be reached from.
package access

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/bootstrap/desired"
	"github.com/helixstack/helixctl/pkg/bootstrap/env"
	"github.com/helixstack/helixctl/pkg/bootstrap/mesh"
	"github.com/helixstack/helixctl/pkg/controller/common/reconciler"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
	ulog "github.com/helixstack/helixctl/pkg/utils/log"
	"github.com/helixstack/helixctl/pkg/utils/retry"
)

// ingressHTTPPortName is the name of the plain HTTP port of the mesh ingress Service.
const ingressHTTPPortName = "http2"

// Endpoints are the addresses reported once the application is converged.
type Endpoints struct {
	// Resolved is false when the ingress has no externally reachable address yet.
	Resolved bool
	// Reason explains why the endpoints are not resolved.
	Reason string
	// Frontend and API are empty when not resolved.
	Frontend string
	API      string
	// Datastore is the cluster-internal address of the datastore, always known.
	Datastore string
}

// Resolve computes the endpoints of the application from the exposure of the mesh ingress. An
// ingress without an address yet is not an error: the endpoints are returned unresolved.
func Resolve(ctx context.Context, e *env.Environment, spec desired.Spec) (Endpoints, convergence.Result) {
	endpoints := Endpoints{Datastore: spec.Datastore.Address(spec.Namespace)}
	c, err := e.Client()
	if err != nil {
		return endpoints, convergence.FailedWith(convergence.StageAccess, err)
	}

	var svc corev1.Service
	err = retry.OnTransient(ctx, retry.DefaultBackoff, func(ctx context.Context) error {
		return c.Get(ctx, types.NamespacedName{Namespace: mesh.Namespace, Name: mesh.IngressGateway}, &svc)
	})
	if apierrors.IsNotFound(err) {
		endpoints.Reason = fmt.Sprintf("ingress Service %s/%s not found", mesh.Namespace, mesh.IngressGateway)
		return unresolved(ctx, endpoints)
	}
	if err != nil {
		return endpoints, convergence.FailedWith(convergence.StageAccess,
			reconciler.Classify(errors.Wrap(err, "while getting the ingress Service")))
	}

	host, port, reason, err := ingressAddress(ctx, c, svc)
	if err != nil {
		return endpoints, convergence.FailedWith(convergence.StageAccess, reconciler.Classify(err))
	}
	if reason != "" {
		endpoints.Reason = reason
		return unresolved(ctx, endpoints)
	}

	base := baseURL(host, port)
	endpoints.Resolved = true
	endpoints.Frontend = base + "/"
	endpoints.API = base + spec.APIPrefix
	return endpoints, convergence.Satisfied(convergence.StageAccess, "endpoints resolved at "+base)
}

func unresolved(ctx context.Context, endpoints Endpoints) (Endpoints, convergence.Result) {
	ulog.FromContext(ctx).Info("Endpoints unresolved", "reason", endpoints.Reason)
	return endpoints, convergence.Satisfied(convergence.StageAccess, "endpoints unresolved: "+endpoints.Reason)
}

// ingressAddress returns the host and port the ingress is reachable on, or the reason it is not.
func ingressAddress(ctx context.Context, c k8s.Client, svc corev1.Service) (string, int32, string, error) {
	port, ok := k8s.ServicePort(svc, ingressHTTPPortName)
	if !ok {
		if port, ok = k8s.ServicePort(svc, ""); !ok {
			return "", 0, "ingress Service exposes no port", nil
		}
	}

	switch svc.Spec.Type {
	case corev1.ServiceTypeLoadBalancer:
		addr, ok := k8s.LoadBalancerAddress(svc)
		if !ok {
			return "", 0, "no load balancer address assigned to the ingress", nil
		}
		return addr, port.Port, "", nil
	case corev1.ServiceTypeNodePort:
		if port.NodePort == 0 {
			return "", 0, "no node port assigned to the ingress", nil
		}
		var nodes corev1.NodeList
		err := retry.OnTransient(ctx, retry.DefaultBackoff, func(ctx context.Context) error {
			return c.List(ctx, &nodes)
		})
		if err != nil {
			return "", 0, "", errors.Wrap(err, "while listing nodes")
		}
		for _, node := range nodes.Items {
			if addr, ok := k8s.NodeAddress(node); ok {
				return addr, port.NodePort, "", nil
			}
		}
		return "", 0, "no node has an address", nil
	default:
		return "", 0, fmt.Sprintf("ingress Service type %s is not reachable from outside the cluster", svc.Spec.Type), nil
	}
}

func baseURL(host string, port int32) string {
	if port == 80 {
		return "http://" + host
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(int(port)))
}
