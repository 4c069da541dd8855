// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package tools detects the external binaries a run needs and installs the missing ones.
package tools

import (
	"context"

	"github.com/pkg/errors"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/bootstrap/env"
	ulog "github.com/helixstack/helixctl/pkg/utils/log"
)

const toolKind = "Tool"

// Manager probes and installs tools, recording their status in the Environment.
type Manager struct {
	Prober    Prober
	Installer Installer
	Catalogue map[string]Spec
	// Required tools are always ensured.
	Required []string
	// Drivers are the local cluster CLIs in order of preference. They are all probed, and the
	// first one is installed only if none of them is Present.
	Drivers []string
}

// Ensure makes a single tool Present. It returns the action taken: Unchanged when the tool was
// already Present, Created when it was Absent, Updated when a Degraded binary was replaced.
func (m Manager) Ensure(ctx context.Context, e *env.Environment, spec Spec) (convergence.Action, error) {
	log := ulog.FromContext(ctx).WithValues("tool", spec.Name)
	status := m.Prober.Probe(ctx, spec)
	e.SetTool(spec.Name, status)
	if status.State == env.Present {
		log.V(1).Info("Tool present", "path", status.Path, "version", status.Version.String())
		return convergence.Unchanged, nil
	}
	log.Info("Tool not usable", "state", status.State, "detail", status.Detail)

	action := convergence.Created
	if status.State == env.Degraded {
		action = convergence.Updated
	}
	if _, err := m.Installer.Install(ctx, spec); err != nil {
		return "", err
	}
	status = m.Prober.Probe(ctx, spec)
	e.SetTool(spec.Name, status)
	if status.State != env.Present {
		return "", convergence.Errorf(convergence.InstallFailure, convergence.ReasonPermanent,
			"%s is %s after installation: %s", spec.Name, status.State, status.Detail)
	}
	return action, nil
}

// Run ensures every required tool and at least one driver CLI.
func (m Manager) Run(ctx context.Context, e *env.Environment) convergence.Result {
	var actions []convergence.ResourceAction
	for _, name := range m.Required {
		action, err := m.ensureNamed(ctx, e, name)
		if err != nil {
			return convergence.FailedWith(convergence.StageTools, err)
		}
		actions = append(actions, convergence.ResourceAction{Kind: toolKind, Name: name, Action: action})
	}

	if len(m.Drivers) > 0 {
		for _, name := range m.Drivers {
			spec, err := m.spec(name)
			if err != nil {
				return convergence.FailedWith(convergence.StageTools, err)
			}
			e.SetTool(name, m.Prober.Probe(ctx, spec))
		}
		action, name, err := m.ensureDriver(ctx, e)
		if err != nil {
			return convergence.FailedWith(convergence.StageTools, err)
		}
		actions = append(actions, convergence.ResourceAction{Kind: toolKind, Name: name, Action: action})
	}
	return convergence.FromActions(convergence.StageTools, actions)
}

func (m Manager) ensureDriver(ctx context.Context, e *env.Environment) (convergence.Action, string, error) {
	for _, name := range m.Drivers {
		if e.HasTool(name) {
			return convergence.Unchanged, name, nil
		}
	}
	preferred := m.Drivers[0]
	action, err := m.ensureNamed(ctx, e, preferred)
	return action, preferred, err
}

func (m Manager) ensureNamed(ctx context.Context, e *env.Environment, name string) (convergence.Action, error) {
	spec, err := m.spec(name)
	if err != nil {
		return "", err
	}
	return m.Ensure(ctx, e, spec)
}

func (m Manager) spec(name string) (Spec, error) {
	spec, ok := m.Catalogue[name]
	if !ok {
		return Spec{}, convergence.NewError(convergence.MissingTool, convergence.ReasonInvalidInput,
			errors.Errorf("no installation recipe for %s", name))
	}
	return spec, nil
}
