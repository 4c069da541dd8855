// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package convergence

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a stage could not converge.
type ErrorKind string

const (
	MissingTool        ErrorKind = "MissingTool"
	InstallFailure     ErrorKind = "InstallFailure"
	ClusterUnreachable ErrorKind = "ClusterUnreachable"
	ProvisionFailure   ErrorKind = "ProvisionFailure"
	MeshNotReady       ErrorKind = "MeshNotReady"
	ReconcileConflict  ErrorKind = "ReconcileConflict"
	ApplyFailure       ErrorKind = "ApplyFailure"
)

// Reason refines an ErrorKind.
type Reason string

const (
	ReasonTimeout           Reason = "Timeout"
	ReasonTransient         Reason = "Transient"
	ReasonPermanent         Reason = "Permanent"
	ReasonMissingDependency Reason = "MissingDependency"
	ReasonImmutableField    Reason = "ImmutableField"
	ReasonInvalidInput      Reason = "InvalidInput"
)

// Error is the error type returned by every stage.
type Error struct {
	Kind   ErrorKind
	Stage  Stage
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	kind := string(e.Kind)
	if e.Reason != "" {
		kind = fmt.Sprintf("%s(%s)", e.Kind, e.Reason)
	}
	if e.Err == nil {
		return kind
	}
	return fmt.Sprintf("%s: %s", kind, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError returns a new Error of the given kind wrapping err.
func NewError(kind ErrorKind, reason Reason, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// Errorf returns a new Error of the given kind with a formatted cause.
func Errorf(kind ErrorKind, reason Reason, format string, args ...interface{}) *Error {
	return NewError(kind, reason, fmt.Errorf(format, args...))
}

// AsError returns the first Error found in err's chain.
func AsError(err error) (*Error, bool) {
	var convErr *Error
	if errors.As(err, &convErr) {
		return convErr, true
	}
	return nil, false
}

// IsKind returns true if err carries an Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	convErr, ok := AsError(err)
	return ok && convErr.Kind == kind
}

// HasReason returns true if err carries an Error of the given kind and reason.
func HasReason(err error, kind ErrorKind, reason Reason) bool {
	convErr, ok := AsError(err)
	return ok && convErr.Kind == kind && convErr.Reason == reason
}

// WithStage records the stage on err if it is an Error without a stage, or wraps it into a
// permanent ApplyFailure otherwise so that every stage failure is classified.
func WithStage(err error, stage Stage) error {
	if err == nil {
		return nil
	}
	convErr, ok := AsError(err)
	if !ok {
		return &Error{Kind: ApplyFailure, Stage: stage, Reason: ReasonPermanent, Err: err}
	}
	if convErr.Stage == "" {
		convErr.Stage = stage
	}
	return err
}
