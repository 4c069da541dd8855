// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package k8s

import (
	"time"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/helixstack/helixctl/pkg/controller/common/scheme"
)

func Scheme() *runtime.Scheme {
	return scheme.Scheme()
}

type Client = client.Client

// KubeconfigRef designates a kubeconfig file and a context within it. It is always explicit:
// helixctl never relies on the current-context of the ambient kubeconfig implicitly.
type KubeconfigRef struct {
	// Path to the kubeconfig file.
	Path string
	// Context to use. Empty means the current-context recorded in the file.
	Context string
}

// RESTConfig builds a REST config for the referenced kubeconfig context.
func (r KubeconfigRef) RESTConfig(timeout time.Duration) (*rest.Config, error) {
	loadingRules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: r.Path}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: r.Context}
	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
	if err != nil {
		return nil, errors.Wrapf(err, "while loading kubeconfig %s (context %q)", r.Path, r.Context)
	}
	cfg.Timeout = timeout
	return cfg, nil
}

// NewClient creates a client able to handle both the built-in types and the mesh networking types.
func NewClient(cfg *rest.Config) (Client, error) {
	c, err := client.New(cfg, client.Options{Scheme: Scheme()})
	if err != nil {
		return nil, errors.Wrap(err, "while creating Kubernetes client")
	}
	return c, nil
}
