// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/client-go/tools/clientcmd"
)

// MeshProfile selects the mesh installation profile.
type MeshProfile string

const (
	// ProfileDemo is the full profile: every mesh feature, sidecars injected.
	ProfileDemo MeshProfile = "demo"
	// ProfileMinimal is the resource-constrained profile.
	ProfileMinimal MeshProfile = "minimal"
)

// InjectionMode controls the sidecar injection label of the application namespace.
type InjectionMode string

const (
	InjectionAuto     InjectionMode = "auto"
	InjectionEnabled  InjectionMode = "enabled"
	InjectionDisabled InjectionMode = "disabled"
)

var (
	knownProfiles     = []MeshProfile{ProfileDemo, ProfileMinimal}
	knownInjections   = []InjectionMode{InjectionAuto, InjectionEnabled, InjectionDisabled}
	knownDrivers      = []string{"kind", "k3d", "minikube"}
	knownServiceTypes = []string{"LoadBalancer", "NodePort"}
)

// Config is the configuration of a convergence run.
type Config struct {
	Namespace          string        `mapstructure:"namespace"`
	BackendImage       string        `mapstructure:"backend-image"`
	FrontendImage      string        `mapstructure:"frontend-image"`
	DatastoreImage     string        `mapstructure:"datastore-image"`
	DatastoreStorage   string        `mapstructure:"datastore-storage"`
	MeshProfile        MeshProfile   `mapstructure:"mesh-profile"`
	MeshInjection      InjectionMode `mapstructure:"mesh-injection"`
	ClusterDrivers     []string      `mapstructure:"cluster-driver"`
	ClusterName        string        `mapstructure:"cluster-name"`
	CPUs               int           `mapstructure:"cpus"`
	Memory             string        `mapstructure:"memory"`
	Kubeconfig         string        `mapstructure:"kubeconfig"`
	Context            string        `mapstructure:"context"`
	BinDir             string        `mapstructure:"bin-dir"`
	Workers            int           `mapstructure:"workers"`
	StageTimeout       time.Duration `mapstructure:"stage-timeout"`
	MeshTimeout        time.Duration `mapstructure:"mesh-timeout"`
	IngressServiceType string        `mapstructure:"ingress-service-type"`
	IstioVersion       string        `mapstructure:"istio-version"`
	KubectlVersion     string        `mapstructure:"kubectl-version"`
	MetricsFile        string        `mapstructure:"metrics-file"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Namespace:          "helix",
		BackendImage:       "ghcr.io/helixstack/backend:0.1.0",
		FrontendImage:      "ghcr.io/helixstack/frontend:0.1.0",
		DatastoreImage:     "mongo:7.0",
		DatastoreStorage:   "1Gi",
		MeshProfile:        ProfileDemo,
		MeshInjection:      InjectionAuto,
		ClusterDrivers:     []string{"kind", "k3d", "minikube"},
		ClusterName:        "helix",
		CPUs:               4,
		Memory:             "8Gi",
		Kubeconfig:         defaultKubeconfig(),
		BinDir:             defaultBinDir(),
		Workers:            3,
		StageTimeout:       5 * time.Minute,
		MeshTimeout:        10 * time.Minute,
		IngressServiceType: "LoadBalancer",
		IstioVersion:       "1.22.3",
		KubectlVersion:     "1.30.2",
	}
}

func defaultKubeconfig() string {
	if env := os.Getenv(clientcmd.RecommendedConfigPathEnvVar); env != "" {
		return filepath.SplitList(env)[0]
	}
	return clientcmd.RecommendedHomeFile
}

func defaultBinDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "helix", "bin")
	}
	return filepath.Join(home, ".helix", "bin")
}

// BindFlags registers the configuration flags with their default values.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(NamespaceFlag, d.Namespace, "Namespace the application is deployed to")
	fs.String(BackendImageFlag, d.BackendImage, "Container image of the backend")
	fs.String(FrontendImageFlag, d.FrontendImage, "Container image of the frontend")
	fs.String(DatastoreImageFlag, d.DatastoreImage, "Container image of the datastore")
	fs.String(DatastoreStorageFlag, d.DatastoreStorage, "Size of the datastore volume")
	fs.String(MeshProfileFlag, string(d.MeshProfile), "Mesh profile: demo (full) or minimal (resource-constrained)")
	fs.String(MeshInjectionFlag, string(d.MeshInjection), "Sidecar injection in the application namespace: auto, enabled or disabled. auto follows the mesh profile")
	fs.StringSlice(ClusterDriverFlag, d.ClusterDrivers, "Ordered list of local cluster drivers to try when no cluster is reachable")
	fs.String(ClusterNameFlag, d.ClusterName, "Name of the local cluster created when no cluster is reachable")
	fs.Int(CPUsFlag, d.CPUs, "CPUs allocated to the local cluster, for drivers that support it")
	fs.String(MemoryFlag, d.Memory, "Memory allocated to the local cluster, for drivers that support it")
	fs.String(KubeconfigFlag, d.Kubeconfig, "Path to the kubeconfig file")
	fs.String(ContextFlag, d.Context, "Kubeconfig context to use, defaults to the current context of the kubeconfig file")
	fs.String(BinDirFlag, d.BinDir, "Directory external tools are installed to")
	fs.Int(WorkersFlag, d.Workers, "Maximum number of resources applied concurrently")
	fs.Duration(StageTimeoutFlag, d.StageTimeout, "Timeout of each convergence stage")
	fs.Duration(MeshTimeoutFlag, d.MeshTimeout, "Time to wait for the mesh components to become available")
	fs.String(IngressServiceTypeFlag, d.IngressServiceType, "Exposure of the mesh ingress: LoadBalancer or NodePort")
	fs.String(IstioVersionFlag, d.IstioVersion, "Version of istioctl installed when missing")
	fs.String(KubectlVersionFlag, d.KubectlVersion, "Version of kubectl installed when missing")
	fs.String(MetricsFileFlag, d.MetricsFile, "Write run metrics to this file in the Prometheus text format")
	fs.String(ConfigFlag, "", "Path to a YAML configuration file. Flags and environment variables take precedence")
}

// Load reads the configuration from flags, HELIX_ prefixed environment variables and an optional
// configuration file, in decreasing order of precedence. Unset values are defaulted.
func Load(v *viper.Viper, fs *pflag.FlagSet) (Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, errors.Wrap(err, "while binding flags")
		}
	}

	if path := v.GetString(ConfigFlag); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "while reading configuration file %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "while decoding configuration")
	}
	if err := mergo.Merge(&cfg, Default()); err != nil {
		return Config{}, errors.Wrap(err, "while applying defaults")
	}
	cfg.MeshProfile = MeshProfile(strings.ToLower(string(cfg.MeshProfile)))
	cfg.MeshInjection = InjectionMode(strings.ToLower(string(cfg.MeshInjection)))
	return cfg, cfg.Validate()
}

// Validate returns every problem found in the configuration.
func (c Config) Validate() error {
	var result *multierror.Error
	if errs := validation.IsDNS1123Label(c.Namespace); len(errs) > 0 {
		result = multierror.Append(result, fmt.Errorf("invalid namespace %q: %s", c.Namespace, strings.Join(errs, ", ")))
	}
	if errs := validation.IsDNS1123Label(c.ClusterName); len(errs) > 0 {
		result = multierror.Append(result, fmt.Errorf("invalid cluster name %q: %s", c.ClusterName, strings.Join(errs, ", ")))
	}
	for flag, image := range map[string]string{BackendImageFlag: c.BackendImage, FrontendImageFlag: c.FrontendImage, DatastoreImageFlag: c.DatastoreImage} {
		if image == "" {
			result = multierror.Append(result, fmt.Errorf("%s must not be empty", flag))
		}
	}
	if !slices.Contains(knownProfiles, c.MeshProfile) {
		result = multierror.Append(result, fmt.Errorf("unknown mesh profile %q, expected one of %v", c.MeshProfile, knownProfiles))
	}
	if !slices.Contains(knownInjections, c.MeshInjection) {
		result = multierror.Append(result, fmt.Errorf("unknown mesh injection mode %q, expected one of %v", c.MeshInjection, knownInjections))
	}
	if len(c.ClusterDrivers) == 0 {
		result = multierror.Append(result, errors.New("at least one cluster driver is required"))
	}
	for _, d := range c.ClusterDrivers {
		if !slices.Contains(knownDrivers, d) {
			result = multierror.Append(result, fmt.Errorf("unknown cluster driver %q, expected one of %v", d, knownDrivers))
		}
	}
	if !slices.Contains(knownServiceTypes, c.IngressServiceType) {
		result = multierror.Append(result, fmt.Errorf("unknown ingress service type %q, expected one of %v", c.IngressServiceType, knownServiceTypes))
	}
	if c.Workers < 1 {
		result = multierror.Append(result, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.CPUs < 1 {
		result = multierror.Append(result, fmt.Errorf("cpus must be positive, got %d", c.CPUs))
	}
	if _, err := resource.ParseQuantity(c.Memory); err != nil {
		result = multierror.Append(result, errors.Wrapf(err, "invalid memory %q", c.Memory))
	}
	if _, err := resource.ParseQuantity(c.DatastoreStorage); err != nil {
		result = multierror.Append(result, errors.Wrapf(err, "invalid datastore storage %q", c.DatastoreStorage))
	}
	if c.StageTimeout <= 0 || c.MeshTimeout <= 0 {
		result = multierror.Append(result, errors.New("timeouts must be positive"))
	}
	if c.BinDir == "" {
		result = multierror.Append(result, errors.New("bin-dir must not be empty"))
	}
	return result.ErrorOrNil()
}

// InjectionEnabled resolves the injection mode: explicit modes win, auto enables injection
// for the full profile only.
func (c Config) InjectionEnabled() bool {
	switch c.MeshInjection {
	case InjectionEnabled:
		return true
	case InjectionDisabled:
		return false
	default:
		return c.MeshProfile != ProfileMinimal
	}
}

// MemoryQuantity returns the parsed memory footprint.
func (c Config) MemoryQuantity() resource.Quantity {
	q, err := resource.ParseQuantity(c.Memory)
	if err != nil {
		return resource.Quantity{}
	}
	return q
}
