// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package exec

import (
	"bytes"
	"context"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	ulog "github.com/helixstack/helixctl/pkg/utils/log"
)

// maxErrOutput bounds how much of stderr ends up in an error message.
const maxErrOutput = 2048

// Runner runs external commands.
type Runner interface {
	// LookPath returns the path of the named binary.
	LookPath(name string) (string, error)
	// Output runs the command and returns its standard output.
	Output(ctx context.Context, name string, args ...string) (string, error)
	// Run runs the command, discarding its standard output.
	Run(ctx context.Context, name string, args ...string) error
}

// HostRunner runs commands on the local host. Binaries are looked up in BinDir first, then in PATH.
type HostRunner struct {
	BinDir string
	// Env is appended to the environment of the current process.
	Env []string
}

var _ Runner = HostRunner{}

func (r HostRunner) LookPath(name string) (string, error) {
	if r.BinDir != "" {
		candidate := filepath.Join(r.BinDir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return candidate, nil
		}
	}
	return osexec.LookPath(name)
}

func (r HostRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	path, err := r.LookPath(name)
	if err != nil {
		return "", err
	}
	log := ulog.FromContext(ctx)
	log.V(1).Info("Running command", "command", name, "args", args)

	var stdout, stderr bytes.Buffer
	cmd := osexec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	if err := cmd.Run(); err != nil {
		return stdout.String(), errors.Wrapf(err, "%s %s: %s", name, strings.Join(args, " "), tail(stderr.String()))
	}
	return stdout.String(), nil
}

func (r HostRunner) Run(ctx context.Context, name string, args ...string) error {
	_, err := r.Output(ctx, name, args...)
	return err
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrOutput {
		return "..." + s[len(s)-maxErrOutput:]
	}
	return s
}
