// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package config

const (
	EnvPrefix = "HELIX"

	BackendImageFlag       = "backend-image"
	BinDirFlag             = "bin-dir"
	ClusterDriverFlag      = "cluster-driver"
	ClusterNameFlag        = "cluster-name"
	ConfigFlag             = "config"
	ContextFlag            = "context"
	CPUsFlag               = "cpus"
	DatastoreImageFlag     = "datastore-image"
	DatastoreStorageFlag   = "datastore-storage"
	FrontendImageFlag      = "frontend-image"
	IngressServiceTypeFlag = "ingress-service-type"
	IstioVersionFlag       = "istio-version"
	KubeconfigFlag         = "kubeconfig"
	KubectlVersionFlag     = "kubectl-version"
	MemoryFlag             = "memory"
	MeshInjectionFlag      = "mesh-injection"
	MeshProfileFlag        = "mesh-profile"
	MeshTimeoutFlag        = "mesh-timeout"
	MetricsFileFlag        = "metrics-file"
	NamespaceFlag          = "namespace"
	StageTimeoutFlag       = "stage-timeout"
	WorkersFlag            = "workers"
)
