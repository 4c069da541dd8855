// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package convergence

import (
	"fmt"
	"time"
)

// Stage names a step of the convergence pipeline.
type Stage string

const (
	StageTools     Stage = "tools"
	StageCluster   Stage = "cluster"
	StageMesh      Stage = "mesh"
	StageNamespace Stage = "namespace"
	StageWorkloads Stage = "workloads"
	StageRoutes    Stage = "routes"
	StageAccess    Stage = "access"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageTools, StageCluster, StageMesh, StageNamespace, StageWorkloads, StageRoutes, StageAccess}

// Outcome of a stage or of a single resource.
type Outcome string

const (
	Succeeded        Outcome = "Succeeded"
	AlreadySatisfied Outcome = "AlreadySatisfied"
	Failed           Outcome = "Failed"
)

// Action taken on a resource. There is intentionally no deletion action.
type Action string

const (
	Created   Action = "Created"
	Updated   Action = "Updated"
	Unchanged Action = "Unchanged"
)

// ResourceAction records what happened to one object.
type ResourceAction struct {
	Kind      string
	Namespace string
	Name      string
	Action    Action
	Err       error
}

func (r ResourceAction) String() string {
	if r.Namespace == "" {
		return fmt.Sprintf("%s %s: %s", r.Kind, r.Name, r.Action)
	}
	return fmt.Sprintf("%s %s/%s: %s", r.Kind, r.Namespace, r.Name, r.Action)
}

// Result is the outcome of one stage.
type Result struct {
	Stage    Stage
	Outcome  Outcome
	Actions  []ResourceAction
	Message  string
	Err      error
	Duration time.Duration
}

// Satisfied returns a Result for a stage that had nothing to do.
func Satisfied(stage Stage, message string) Result {
	return Result{Stage: stage, Outcome: AlreadySatisfied, Message: message}
}

// Done returns a Result for a stage that changed something.
func Done(stage Stage, message string) Result {
	return Result{Stage: stage, Outcome: Succeeded, Message: message}
}

// FromActions derives the stage outcome from the actions taken: nothing but Unchanged
// means the stage was already satisfied.
func FromActions(stage Stage, actions []ResourceAction) Result {
	outcome := AlreadySatisfied
	for _, a := range actions {
		if a.Action != Unchanged {
			outcome = Succeeded
			break
		}
	}
	return Result{Stage: stage, Outcome: outcome, Actions: actions}
}

// FailedWith returns a failed Result for the given stage.
func FailedWith(stage Stage, err error) Result {
	return Result{Stage: stage, Outcome: Failed, Err: WithStage(err, stage)}
}

// Count returns how many actions of the given type the stage performed.
func (r Result) Count(action Action) int {
	n := 0
	for _, a := range r.Actions {
		if a.Action == action {
			n++
		}
	}
	return n
}

// Results of a pipeline run, in execution order.
type Results []Result

// LastCompleted returns the last stage that did not fail, if any.
func (rs Results) LastCompleted() (Stage, bool) {
	var last Stage
	found := false
	for _, r := range rs {
		if r.Outcome == Failed {
			break
		}
		last = r.Stage
		found = true
	}
	return last, found
}

// Failure returns the failed stage result, if any.
func (rs Results) Failure() (Result, bool) {
	for _, r := range rs {
		if r.Outcome == Failed {
			return r, true
		}
	}
	return Result{}, false
}

// Get returns the result of the given stage, if it ran.
func (rs Results) Get(stage Stage) (Result, bool) {
	for _, r := range rs {
		if r.Stage == stage {
			return r, true
		}
	}
	return Result{}, false
}

// Count returns how many actions of the given type all stages performed.
func (rs Results) Count(action Action) int {
	n := 0
	for _, r := range rs {
		n += r.Count(action)
	}
	return n
}
