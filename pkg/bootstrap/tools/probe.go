// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/blang/semver/v4"
	"github.com/pkg/errors"

	"github.com/helixstack/helixctl/pkg/bootstrap/env"
	"github.com/helixstack/helixctl/pkg/utils/exec"
)

var semverLike = regexp.MustCompile(`^v?\d+\.\d+(\.\d+)?([-+][0-9A-Za-z.+-]*)?$`)

// ParseVersion returns the first semver-looking token of a version command output.
func ParseVersion(output string) (semver.Version, error) {
	tokens := strings.FieldsFunc(output, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '"' || r == '\'' || r == '(' || r == ')'
	})
	for _, token := range tokens {
		// "GitVersion:v1.30.2" style
		if i := strings.LastIndex(token, ":"); i >= 0 {
			token = token[i+1:]
		}
		if !semverLike.MatchString(token) {
			continue
		}
		if v, err := semver.ParseTolerant(token); err == nil {
			return v, nil
		}
	}
	return semver.Version{}, errors.Errorf("no version found in %q", strings.TrimSpace(output))
}

// Prober detects external binaries.
type Prober struct {
	Runner exec.Runner
}

// Probe returns the tri-state status of a binary: Absent when it cannot be found, Degraded when
// its version cannot be determined or is too old, Present otherwise.
func (p Prober) Probe(ctx context.Context, spec Spec) env.ToolStatus {
	path, err := p.Runner.LookPath(spec.Name)
	if err != nil {
		return env.ToolStatus{State: env.Absent, Detail: err.Error()}
	}
	out, err := p.Runner.Output(ctx, spec.Name, spec.VersionArgs...)
	if err != nil {
		return env.ToolStatus{State: env.Degraded, Path: path, Detail: err.Error()}
	}
	version, err := ParseVersion(out)
	if err != nil {
		return env.ToolStatus{State: env.Degraded, Path: path, Detail: err.Error()}
	}
	if version.LT(spec.MinVersion) {
		return env.ToolStatus{
			State:   env.Degraded,
			Path:    path,
			Version: &version,
			Detail:  fmt.Sprintf("version %s is older than %s", version, spec.MinVersion),
		}
	}
	return env.ToolStatus{State: env.Present, Path: path, Version: &version}
}
