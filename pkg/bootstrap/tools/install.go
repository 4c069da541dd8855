// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package tools

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-getter"
	"github.com/pkg/errors"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	ulog "github.com/helixstack/helixctl/pkg/utils/log"
)

// Downloader fetches src into dst. Archives are extracted into the dst directory, other sources
// are written to the dst file.
type Downloader interface {
	Download(ctx context.Context, src, dst string, archive bool) error
}

// GetterDownloader downloads with go-getter, which also decompresses archives based on their extension.
type GetterDownloader struct{}

var _ Downloader = GetterDownloader{}

func (GetterDownloader) Download(ctx context.Context, src, dst string, archive bool) error {
	mode := getter.ClientModeFile
	if archive {
		mode = getter.ClientModeDir
	}
	c := getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Mode: mode,
	}
	return c.Get()
}

// Installer puts binaries into a bin directory.
type Installer struct {
	BinDir     string
	Downloader Downloader
	// OS and Arch default to the platform of the running binary.
	OS   string
	Arch string
}

func (i Installer) platform(version string) Platform {
	p := HostPlatform(version)
	if i.OS != "" {
		p.OS = i.OS
	}
	if i.Arch != "" {
		p.Arch = i.Arch
	}
	return p
}

// Install downloads the binary described by spec into a temporary directory next to the bin
// directory, then renames it into place. A previous, possibly broken, binary is replaced.
func (i Installer) Install(ctx context.Context, spec Spec) (string, error) {
	p := i.platform(spec.Version)
	url, err := spec.DownloadURL(p)
	if err != nil {
		return "", convergence.NewError(convergence.InstallFailure, convergence.ReasonInvalidInput, err)
	}
	log := ulog.FromContext(ctx).WithValues("tool", spec.Name, "version", spec.Version)
	log.Info("Installing tool", "url", url, "bin_dir", i.BinDir)

	if err := os.MkdirAll(i.BinDir, 0o755); err != nil {
		return "", installFailure(spec, err)
	}
	// same filesystem as the target so that the final rename is atomic
	tmp, err := os.MkdirTemp(i.BinDir, "."+spec.Name+"-")
	if err != nil {
		return "", installFailure(spec, err)
	}
	defer os.RemoveAll(tmp)

	downloaded := filepath.Join(tmp, "download")
	if err := i.Downloader.Download(ctx, url, downloaded, spec.IsArchive()); err != nil {
		return "", installFailure(spec, errors.Wrapf(err, "while downloading %s", url))
	}
	binary := downloaded
	if spec.IsArchive() {
		inArchive, err := spec.BinaryPath(p)
		if err != nil {
			return "", convergence.NewError(convergence.InstallFailure, convergence.ReasonInvalidInput, err)
		}
		binary = filepath.Join(downloaded, inArchive)
	}
	if err := os.Chmod(binary, 0o755); err != nil {
		return "", installFailure(spec, err)
	}
	target := filepath.Join(i.BinDir, spec.Name)
	if err := os.Rename(binary, target); err != nil {
		return "", installFailure(spec, err)
	}
	log.Info("Tool installed", "path", target)
	return target, nil
}

func installFailure(spec Spec, err error) error {
	return convergence.NewError(convergence.InstallFailure, convergence.ReasonPermanent,
		errors.Wrapf(err, "while installing %s %s", spec.Name, spec.Version))
}
