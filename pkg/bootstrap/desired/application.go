// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package desired

import (
	"fmt"

	"github.com/pkg/errors"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	networkingv1beta1 "github.com/helixstack/helixctl/pkg/apis/networking/v1beta1"
	"github.com/helixstack/helixctl/pkg/bootstrap/label"
	"github.com/helixstack/helixctl/pkg/bootstrap/route"
	"github.com/helixstack/helixctl/pkg/config"
	"github.com/helixstack/helixctl/pkg/controller/common/deployment"
	"github.com/helixstack/helixctl/pkg/controller/common/statefulset"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
)

const (
	// DatastoreURLEnvVar is the only environment variable the backend receives.
	DatastoreURLEnvVar = "DATABASE_URL"
	dataVolumeName     = "data"
)

// Component is a deployable part of the application.
type Component struct {
	Name      string
	Image     string
	Port      int32
	PortName  string
	Replicas  int32
	Resources corev1.ResourceRequirements
}

// Datastore is the stateful component of the application.
type Datastore struct {
	Component
	Protocol  string
	Database  string
	MountPath string
	Storage   resource.Quantity
}

// Address returns the cluster-internal address of the datastore.
func (d Datastore) Address(namespace string) string {
	return fmt.Sprintf("%s:%d", k8s.ServiceDNSName(d.Name, namespace), d.Port)
}

// URL returns the connection string handed to the backend.
func (d Datastore) URL(namespace string) string {
	return fmt.Sprintf("%s://%s/%s", d.Protocol, d.Address(namespace), d.Database)
}

// Spec describes the application to converge.
type Spec struct {
	Namespace   string
	Injection   bool
	Backend     Component
	Frontend    Component
	Datastore   Datastore
	APIPrefix   string
	GatewayName string
	RoutesName  string
}

// SpecFromConfig derives the application spec from the run configuration.
func SpecFromConfig(cfg config.Config) (Spec, error) {
	storage, err := resource.ParseQuantity(cfg.DatastoreStorage)
	if err != nil {
		return Spec{}, errors.Wrapf(err, "invalid datastore storage %q", cfg.DatastoreStorage)
	}
	return Spec{
		Namespace: cfg.Namespace,
		Injection: cfg.InjectionEnabled(),
		Backend: Component{
			Name:      "backend",
			Image:     cfg.BackendImage,
			Port:      8080,
			PortName:  "http",
			Replicas:  1,
			Resources: resources("100m", "128Mi", "500m", "256Mi"),
		},
		Frontend: Component{
			Name:      "frontend",
			Image:     cfg.FrontendImage,
			Port:      80,
			PortName:  "http",
			Replicas:  1,
			Resources: resources("50m", "64Mi", "250m", "128Mi"),
		},
		Datastore: Datastore{
			Component: Component{
				Name:      "datastore",
				Image:     cfg.DatastoreImage,
				Port:      27017,
				PortName:  "mongo",
				Replicas:  1,
				Resources: resources("100m", "256Mi", "1", "512Mi"),
			},
			Protocol:  "mongodb",
			Database:  "helix",
			MountPath: "/data/db",
			Storage:   storage,
		},
		APIPrefix:   "/api",
		GatewayName: "helix-gateway",
		RoutesName:  "helix",
	}, nil
}

func resources(cpuRequest, memoryRequest, cpuLimit, memoryLimit string) corev1.ResourceRequirements {
	return corev1.ResourceRequirements{
		Requests: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse(cpuRequest),
			corev1.ResourceMemory: resource.MustParse(memoryRequest),
		},
		Limits: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse(cpuLimit),
			corev1.ResourceMemory: resource.MustParse(memoryLimit),
		},
	}
}

// Application is the complete desired state of a run.
type Application struct {
	Spec    Spec
	Set     *Set
	Gateway networkingv1beta1.Gateway
	Routes  route.Routes
}

// Build derives every desired resource of the application from its spec.
func Build(spec Spec) (*Application, error) {
	table, err := route.NewTable(
		route.Rule{Destination: route.Destination{Host: spec.Frontend.Name, Port: uint32(spec.Frontend.Port)}}, //nolint:gosec
		route.Rule{Prefix: spec.APIPrefix, Destination: route.Destination{Host: spec.Backend.Name, Port: uint32(spec.Backend.Port)}}, //nolint:gosec
	)
	if err != nil {
		return nil, errors.Wrap(err, "while building the routing table")
	}
	routes := route.Routes{Name: spec.RoutesName, Table: table}
	gateway := route.NewGateway(spec.Namespace, spec.GatewayName)
	virtualService := route.NewVirtualService(spec.Namespace, routes.Name, gateway.Name, table)

	namespace := NewNamespace(spec.Namespace, spec.Injection)
	datastoreSvc := NewService(spec.Namespace, spec.Datastore.Component, "datastore")
	backendSvc := NewService(spec.Namespace, spec.Backend, "api")
	frontendSvc := NewService(spec.Namespace, spec.Frontend, "web")
	datastore := NewDatastore(spec.Namespace, spec.Datastore)
	backend := NewWorkload(spec.Namespace, spec.Backend, "api", []corev1.EnvVar{
		{Name: DatastoreURLEnvVar, Value: spec.Datastore.URL(spec.Namespace)},
	})
	frontend := NewWorkload(spec.Namespace, spec.Frontend, "web", nil)

	set, err := NewSet(
		Resource{Kind: KindNamespace, Object: &namespace},
		Resource{Kind: KindService, Object: &datastoreSvc},
		Resource{Kind: KindService, Object: &backendSvc},
		Resource{Kind: KindService, Object: &frontendSvc},
		Resource{Kind: KindStatefulWorkload, Object: &datastore},
		Resource{Kind: KindWorkload, Object: &backend},
		Resource{Kind: KindWorkload, Object: &frontend},
		Resource{Kind: KindGateway, Object: gateway.DeepCopy()},
		Resource{Kind: KindRouteRule, Object: &virtualService},
	)
	if err != nil {
		return nil, err
	}
	return &Application{Spec: spec, Set: set, Gateway: gateway, Routes: routes}, nil
}

// NewNamespace builds the application namespace.
func NewNamespace(name string, injection bool) corev1.Namespace {
	return corev1.Namespace{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Namespace"},
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
			Labels: map[string]string{
				label.InjectionLabelName: label.InjectionValue(injection),
				label.ManagedByLabelName: label.ManagedBy,
			},
		},
	}
}

// NewService builds the cluster-internal Service of a component.
func NewService(namespace string, c Component, component string) corev1.Service {
	return corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      c.Name,
			Namespace: namespace,
			Labels:    label.Labels(c.Name, component),
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: label.Selector(c.Name),
			Ports: []corev1.ServicePort{{
				Name:       c.PortName,
				Protocol:   corev1.ProtocolTCP,
				Port:       c.Port,
				TargetPort: intstr.FromInt32(c.Port),
			}},
		},
	}
}

func container(c Component, env []corev1.EnvVar) corev1.Container {
	return corev1.Container{
		Name:            c.Name,
		Image:           c.Image,
		ImagePullPolicy: corev1.PullIfNotPresent,
		Ports: []corev1.ContainerPort{{
			Name:          c.PortName,
			ContainerPort: c.Port,
			Protocol:      corev1.ProtocolTCP,
		}},
		Env:       env,
		Resources: c.Resources,
	}
}

func podTemplate(c Component, component string, ctr corev1.Container) corev1.PodTemplateSpec {
	return corev1.PodTemplateSpec{
		ObjectMeta: metav1.ObjectMeta{Labels: label.Labels(c.Name, component)},
		Spec: corev1.PodSpec{
			// a consumer started before the datastore resolves crashes and is restarted until it does
			RestartPolicy: corev1.RestartPolicyAlways,
			Containers:    []corev1.Container{ctr},
		},
	}
}

// NewWorkload builds the Deployment of a stateless component.
func NewWorkload(namespace string, c Component, component string, env []corev1.EnvVar) appsv1.Deployment {
	return deployment.New(deployment.Params{
		Name:            c.Name,
		Namespace:       namespace,
		Selector:        label.Selector(c.Name),
		Labels:          label.Labels(c.Name, component),
		PodTemplateSpec: podTemplate(c, component, container(c, env)),
		Replicas:        c.Replicas,
	})
}

// NewDatastore builds the StatefulSet of the datastore with a single stable claim template.
func NewDatastore(namespace string, d Datastore) appsv1.StatefulSet {
	ctr := container(d.Component, nil)
	ctr.VolumeMounts = []corev1.VolumeMount{{Name: dataVolumeName, MountPath: d.MountPath}}
	return statefulset.New(statefulset.Params{
		Name:            d.Name,
		Namespace:       namespace,
		ServiceName:     d.Name,
		Selector:        label.Selector(d.Name),
		Labels:          label.Labels(d.Name, "datastore"),
		PodTemplateSpec: podTemplate(d.Component, "datastore", ctr),
		VolumeClaimTemplates: []corev1.PersistentVolumeClaim{{
			ObjectMeta: metav1.ObjectMeta{Name: dataVolumeName},
			Spec: corev1.PersistentVolumeClaimSpec{
				AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
				Resources: corev1.VolumeResourceRequirements{
					Requests: corev1.ResourceList{corev1.ResourceStorage: d.Storage},
				},
			},
		}},
		Replicas: d.Replicas,
	})
}
