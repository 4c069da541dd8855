// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package tools

import (
	"bytes"
	"runtime"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/blang/semver/v4"
	"github.com/pkg/errors"

	"github.com/helixstack/helixctl/pkg/config"
)

const (
	Kubectl  = "kubectl"
	Istioctl = "istioctl"
	Kind     = "kind"
	K3d      = "k3d"
	Minikube = "minikube"
)

// driver CLI versions installed when none is found on the host
const (
	kindVersion     = "0.23.0"
	k3dVersion      = "5.6.3"
	minikubeVersion = "1.33.1"
)

// Spec describes how to probe and install an external binary.
type Spec struct {
	Name string
	// Version is the version installed when the binary is absent or degraded.
	Version string
	// MinVersion is the lowest version considered Present.
	MinVersion semver.Version
	// VersionArgs are the arguments printing the version of the binary.
	VersionArgs []string
	// URL is a text/template, with the sprig functions, over Platform.
	URL string
	// ArchivePath is the path of the binary inside the downloaded archive, empty when the URL
	// points at the binary itself. It is a template too.
	ArchivePath string
}

// Platform is the data the URL templates are rendered with.
type Platform struct {
	Version string
	OS      string
	Arch    string
}

// HostPlatform returns the platform of the running binary.
func HostPlatform(version string) Platform {
	return Platform{Version: version, OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// DownloadURL renders the download URL of the binary for the given platform.
func (s Spec) DownloadURL(p Platform) (string, error) {
	return render(s.Name+"-url", s.URL, p)
}

// BinaryPath renders the path of the binary inside its archive.
func (s Spec) BinaryPath(p Platform) (string, error) {
	if s.ArchivePath == "" {
		return "", nil
	}
	return render(s.Name+"-path", s.ArchivePath, p)
}

// IsArchive returns true if the binary is shipped in an archive.
func (s Spec) IsArchive() bool {
	return s.ArchivePath != ""
}

func render(name, text string, p Platform) (string, error) {
	tpl, err := template.New(name).Option("missingkey=error").Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "while parsing template %s", name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, p); err != nil {
		return "", errors.Wrapf(err, "while rendering template %s", name)
	}
	return buf.String(), nil
}

// Catalogue returns the specs of every binary helixctl knows how to install.
func Catalogue(cfg config.Config) map[string]Spec {
	return map[string]Spec{
		Kubectl: {
			Name:        Kubectl,
			Version:     cfg.KubectlVersion,
			MinVersion:  semver.MustParse("1.26.0"),
			VersionArgs: []string{"version", "--client"},
			URL:         `https://dl.k8s.io/release/v{{ .Version | trimPrefix "v" }}/bin/{{ .OS }}/{{ .Arch }}/kubectl`,
		},
		Istioctl: {
			Name:        Istioctl,
			Version:     cfg.IstioVersion,
			MinVersion:  semver.MustParse("1.20.0"),
			VersionArgs: []string{"version", "--remote=false"},
			URL: `https://github.com/istio/istio/releases/download/{{ .Version | trimPrefix "v" }}/` +
				`istioctl-{{ .Version | trimPrefix "v" }}-{{ .OS | replace "darwin" "osx" }}-{{ .Arch }}.tar.gz`,
			ArchivePath: "istioctl",
		},
		Kind: {
			Name:        Kind,
			Version:     kindVersion,
			MinVersion:  semver.MustParse("0.20.0"),
			VersionArgs: []string{"version"},
			URL:         `https://kind.sigs.k8s.io/dl/v{{ .Version }}/kind-{{ .OS }}-{{ .Arch }}`,
		},
		K3d: {
			Name:        K3d,
			Version:     k3dVersion,
			MinVersion:  semver.MustParse("5.0.0"),
			VersionArgs: []string{"version"},
			URL:         `https://github.com/k3d-io/k3d/releases/download/v{{ .Version }}/k3d-{{ .OS }}-{{ .Arch }}`,
		},
		Minikube: {
			Name:        Minikube,
			Version:     minikubeVersion,
			MinVersion:  semver.MustParse("1.30.0"),
			VersionArgs: []string{"version", "--short"},
			URL:         `https://storage.googleapis.com/minikube/releases/v{{ .Version }}/minikube-{{ .OS }}-{{ .Arch }}`,
		},
	}
}
