// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/bootstrap/env"
	"github.com/helixstack/helixctl/pkg/config"
	"github.com/helixstack/helixctl/pkg/utils/exec"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{name: "kubectl", output: "Client Version: v1.30.2\nKustomize Version: v5.0.4-0.20230601165947-6ce0bf390ce3\n", want: "1.30.2"},
		{name: "istioctl", output: "1.22.3\n", want: "1.22.3"},
		{name: "kind", output: "kind v0.23.0 go1.22.2 linux/amd64", want: "0.23.0"},
		{name: "k3d", output: "k3d version v5.6.3\nk3s version v1.28.8-k3s1 (default)\n", want: "5.6.3"},
		{name: "minikube", output: "v1.33.1", want: "1.33.1"},
		{name: "key value", output: `version.Info{GitVersion:"v1.27.1"}`, want: "1.27.1"},
		{name: "two components", output: "tool 1.2", want: "1.2.0"},
		{name: "no version", output: "command not supported", wantErr: true},
		{name: "empty", output: "", wantErr: true},
		{name: "lone number", output: "build 7", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVersion(tt.output)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestCatalogue_DownloadURL(t *testing.T) {
	cfg := config.Default()
	cat := Catalogue(cfg)
	tests := []struct {
		tool     string
		platform Platform
		want     string
	}{
		{
			tool:     Kubectl,
			platform: Platform{Version: "v1.30.2", OS: "linux", Arch: "amd64"},
			want:     "https://dl.k8s.io/release/v1.30.2/bin/linux/amd64/kubectl",
		},
		{
			tool:     Istioctl,
			platform: Platform{Version: "1.22.3", OS: "darwin", Arch: "arm64"},
			want:     "https://github.com/istio/istio/releases/download/1.22.3/istioctl-1.22.3-osx-arm64.tar.gz",
		},
		{
			tool:     Kind,
			platform: Platform{Version: "0.23.0", OS: "linux", Arch: "arm64"},
			want:     "https://kind.sigs.k8s.io/dl/v0.23.0/kind-linux-arm64",
		},
		{
			tool:     K3d,
			platform: Platform{Version: "5.6.3", OS: "linux", Arch: "amd64"},
			want:     "https://github.com/k3d-io/k3d/releases/download/v5.6.3/k3d-linux-amd64",
		},
		{
			tool:     Minikube,
			platform: Platform{Version: "1.33.1", OS: "darwin", Arch: "amd64"},
			want:     "https://storage.googleapis.com/minikube/releases/v1.33.1/minikube-darwin-amd64",
		},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			got, err := cat[tt.tool].DownloadURL(tt.platform)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Spec{Name: "broken", URL: "{{ .Nope }}"}.DownloadURL(Platform{})
	require.Error(t, err)
}

func TestProber_Probe(t *testing.T) {
	spec := Catalogue(config.Default())[Istioctl]
	tests := []struct {
		name    string
		paths   map[string]string
		handler func(string, []string) (string, error)
		want    env.ToolState
	}{
		{
			name: "absent",
			want: env.Absent,
		},
		{
			name:    "present",
			paths:   map[string]string{Istioctl: "/bin/istioctl"},
			handler: func(string, []string) (string, error) { return "1.22.3\n", nil },
			want:    env.Present,
		},
		{
			name:    "version command fails",
			paths:   map[string]string{Istioctl: "/bin/istioctl"},
			handler: func(string, []string) (string, error) { return "", errors.New("exit status 1") },
			want:    env.Degraded,
		},
		{
			name:    "unparsable output",
			paths:   map[string]string{Istioctl: "/bin/istioctl"},
			handler: func(string, []string) (string, error) { return "segmentation fault", nil },
			want:    env.Degraded,
		},
		{
			name:    "too old",
			paths:   map[string]string{Istioctl: "/bin/istioctl"},
			handler: func(string, []string) (string, error) { return "1.12.0", nil },
			want:    env.Degraded,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := Prober{Runner: exec.NewFakeRunner(tt.handler, tt.paths)}.Probe(context.Background(), spec)
			assert.Equal(t, tt.want, status.State)
		})
	}
}

// fakeDownloader writes a binary where go-getter would, and makes it visible to the runner.
type fakeDownloader struct {
	runner *exec.FakeRunner
	binDir string
	err    error
	urls   []string
}

func (f *fakeDownloader) Download(_ context.Context, src, dst string, archive bool) error {
	f.urls = append(f.urls, src)
	if f.err != nil {
		return f.err
	}
	file := dst
	if archive {
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return err
		}
		file = filepath.Join(dst, Istioctl)
	}
	if err := os.WriteFile(file, []byte("#!/bin/sh\n"), 0o600); err != nil {
		return err
	}
	if f.runner != nil {
		// the temporary directory is named after the tool being installed
		name := strings.SplitN(strings.TrimPrefix(filepath.Base(filepath.Dir(dst)), "."), "-", 2)[0]
		f.runner.SetPath(name, filepath.Join(f.binDir, name))
	}
	return nil
}

func TestInstaller_Install(t *testing.T) {
	cat := Catalogue(config.Default())

	t.Run("single binary", func(t *testing.T) {
		binDir := filepath.Join(t.TempDir(), "bin")
		d := &fakeDownloader{}
		path, err := Installer{BinDir: binDir, Downloader: d, OS: "linux", Arch: "amd64"}.Install(context.Background(), cat[Kind])
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(binDir, Kind), path)
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
		assert.Equal(t, []string{"https://kind.sigs.k8s.io/dl/v0.23.0/kind-linux-amd64"}, d.urls)
	})

	t.Run("archive replaces a broken binary", func(t *testing.T) {
		binDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(binDir, Istioctl), []byte("garbage"), 0o644))
		path, err := Installer{BinDir: binDir, Downloader: &fakeDownloader{}}.Install(context.Background(), cat[Istioctl])
		require.NoError(t, err)
		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "#!/bin/sh\n", string(content))
		// the temporary directory is cleaned up
		entries, err := os.ReadDir(binDir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("download failure", func(t *testing.T) {
		_, err := Installer{BinDir: t.TempDir(), Downloader: &fakeDownloader{err: errors.New("404")}}.Install(context.Background(), cat[Kubectl])
		assert.True(t, convergence.IsKind(err, convergence.InstallFailure))
	})
}

func newManager(runner *exec.FakeRunner, d *fakeDownloader, binDir string) Manager {
	return Manager{
		Prober:    Prober{Runner: runner},
		Installer: Installer{BinDir: binDir, Downloader: d},
		Catalogue: Catalogue(config.Default()),
		Required:  []string{Kubectl, Istioctl},
		Drivers:   []string{Kind, K3d, Minikube},
	}
}

func versions(name string, _ []string) (string, error) {
	return map[string]string{
		Kubectl:  "Client Version: v1.30.2",
		Istioctl: "1.22.3",
		Kind:     "kind v0.23.0 go1.22.2 linux/amd64",
		K3d:      "k3d version v5.6.3",
		Minikube: "v1.33.1",
	}[name], nil
}

func TestManager_Run(t *testing.T) {
	t.Run("everything present", func(t *testing.T) {
		runner := exec.NewFakeRunner(versions, map[string]string{
			Kubectl: "/usr/bin/kubectl", Istioctl: "/usr/bin/istioctl", K3d: "/usr/bin/k3d",
		})
		d := &fakeDownloader{}
		e := env.New("", k8s.KubeconfigRef{}, runner)
		result := newManager(runner, d, t.TempDir()).Run(context.Background(), e)
		require.NoError(t, result.Err)
		assert.Equal(t, convergence.AlreadySatisfied, result.Outcome)
		assert.Empty(t, d.urls)
		assert.True(t, e.HasTool(K3d))
		assert.Equal(t, env.Absent, e.Tool(Kind).State)
	})

	t.Run("missing tools are installed", func(t *testing.T) {
		binDir := t.TempDir()
		runner := exec.NewFakeRunner(versions, map[string]string{Kubectl: "/usr/bin/kubectl"})
		d := &fakeDownloader{runner: runner, binDir: binDir}
		e := env.New(binDir, k8s.KubeconfigRef{}, runner)
		result := newManager(runner, d, binDir).Run(context.Background(), e)
		require.NoError(t, result.Err)
		assert.Equal(t, convergence.Succeeded, result.Outcome)
		// istioctl and the preferred driver
		assert.Equal(t, 2, result.Count(convergence.Created))
		assert.True(t, e.HasTool(Istioctl))
		assert.True(t, e.HasTool(Kind))
		path, err := e.ToolPath(Istioctl)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(binDir, Istioctl), path)
	})

	t.Run("still absent after install", func(t *testing.T) {
		runner := exec.NewFakeRunner(versions, map[string]string{Kubectl: "/usr/bin/kubectl"})
		// the downloader does not make the binary visible
		e := env.New("", k8s.KubeconfigRef{}, runner)
		result := newManager(runner, &fakeDownloader{}, t.TempDir()).Run(context.Background(), e)
		assert.Equal(t, convergence.Failed, result.Outcome)
		assert.True(t, convergence.IsKind(result.Err, convergence.InstallFailure))
	})
}
