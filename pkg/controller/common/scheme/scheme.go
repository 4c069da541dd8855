// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package scheme

import (
	"sync"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"

	networkingv1beta1 "github.com/helixstack/helixctl/pkg/apis/networking/v1beta1"
)

var addToSchemeOnce sync.Once

// SetupScheme registers the built-in Kubernetes types and the mesh networking types helixctl manages
// into the client-go scheme. Safe to call multiple times.
func SetupScheme() {
	addToSchemeOnce.Do(func() {
		utilruntime.Must(clientgoscheme.AddToScheme(clientgoscheme.Scheme))
		utilruntime.Must(networkingv1beta1.AddToScheme(clientgoscheme.Scheme))
	})
}

// Scheme returns the scheme shared by every client created by helixctl.
func Scheme() *runtime.Scheme {
	SetupScheme()
	return clientgoscheme.Scheme
}
