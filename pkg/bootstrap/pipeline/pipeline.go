// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package pipeline runs the convergence stages in order, stopping at the first failure.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/bootstrap/env"
	ulog "github.com/helixstack/helixctl/pkg/utils/log"
	"github.com/helixstack/helixctl/pkg/utils/metrics"
)

// Stage is a named step of the pipeline.
type Stage struct {
	Name convergence.Stage
	// Timeout bounds the stage, zero means no bound other than the parent context.
	Timeout time.Duration
	Run     func(ctx context.Context, e *env.Environment) convergence.Result
}

// StageError reports the stage that failed and the last one that completed before it.
type StageError struct {
	Stage         convergence.Stage
	LastCompleted convergence.Stage
	Err           error
}

func (e *StageError) Error() string {
	last := string(e.LastCompleted)
	if last == "" {
		last = "none"
	}
	return fmt.Sprintf("stage %s failed (last completed stage: %s): %v", e.Stage, last, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Run executes the stages in order. Cancellation is checked between stages: a cancelled context
// stops the pipeline before the next stage, without undoing the work of the previous ones.
func Run(ctx context.Context, e *env.Environment, stages []Stage) (convergence.Results, error) {
	log := ulog.FromContext(ctx)
	var results convergence.Results
	for _, stage := range stages {
		last, _ := results.LastCompleted()
		if err := ctx.Err(); err != nil {
			log.Info("Run interrupted", "next_stage", stage.Name)
			return results, &StageError{Stage: stage.Name, LastCompleted: last, Err: err}
		}

		result := runStage(ctx, e, stage)
		results = append(results, result)
		if result.Outcome == convergence.Failed {
			return results, &StageError{Stage: stage.Name, LastCompleted: last, Err: result.Err}
		}
	}
	return results, nil
}

func runStage(ctx context.Context, e *env.Environment, stage Stage) convergence.Result {
	log := ulog.FromContext(ctx).WithValues("stage", stage.Name)
	stageCtx := ulog.IntoContext(ctx, log)
	if stage.Timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(stageCtx, stage.Timeout)
		defer cancel()
	}

	log.Info("Starting stage")
	start := time.Now()
	result := stage.Run(stageCtx, e)
	result.Stage = stage.Name
	result.Duration = time.Since(start)
	metrics.ObserveStage(string(stage.Name), string(result.Outcome), result.Duration)

	if result.Outcome == convergence.Failed {
		log.Error(result.Err, "Stage failed", "duration", result.Duration.String())
	} else {
		log.Info("Stage done", "outcome", result.Outcome, "created", result.Count(convergence.Created),
			"updated", result.Count(convergence.Updated), "duration", result.Duration.String())
	}
	return result
}
