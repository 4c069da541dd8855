// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package exec

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeRunner is a Runner for tests. Binaries are resolved from Paths, commands are answered by Handler.
type FakeRunner struct {
	mu      sync.Mutex
	paths   map[string]string
	calls   []string
	Handler func(name string, args []string) (string, error)
}

var _ Runner = &FakeRunner{}

// NewFakeRunner returns a FakeRunner knowing the given binaries, as name to path pairs.
func NewFakeRunner(handler func(name string, args []string) (string, error), paths map[string]string) *FakeRunner {
	p := make(map[string]string, len(paths))
	for k, v := range paths {
		p[k] = v
	}
	return &FakeRunner{paths: p, Handler: handler}
}

// SetPath registers or replaces the path of a binary.
func (f *FakeRunner) SetPath(name, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths[name] = path
}

func (f *FakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.paths[name]; ok {
		return p, nil
	}
	return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
}

func (f *FakeRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := f.LookPath(name); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.calls = append(f.calls, strings.Join(append([]string{name}, args...), " "))
	handler := f.Handler
	f.mu.Unlock()
	if handler == nil {
		return "", nil
	}
	return handler(name, args)
}

func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) error {
	_, err := f.Output(ctx, name, args...)
	return err
}

// Calls returns every command line run so far.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallsWithPrefix returns the command lines starting with the given prefix.
func (f *FakeRunner) CallsWithPrefix(prefix string) []string {
	var matching []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			matching = append(matching, c)
		}
	}
	return matching
}
