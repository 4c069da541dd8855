// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "helixctl"

	StageLabel   = "stage"
	OutcomeLabel = "outcome"
	KindLabel    = "kind"
	ActionLabel  = "action"
)

// Registry holds every helixctl metric. It is separate from the default Prometheus registry
// so that the textfile only contains what a convergence run produced.
var Registry = prometheus.NewRegistry()

var (
	// StageDuration observes the wall clock time spent in each pipeline stage.
	StageDuration = registerHistogram(prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of a convergence stage in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{StageLabel}))

	// StageOutcomes counts stage outcomes (succeeded, already_satisfied, failed).
	StageOutcomes = registerCounter(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_outcomes_total",
		Help:      "Number of convergence stages by outcome",
	}, []string{StageLabel, OutcomeLabel}))

	// ResourceActions counts actions (created, updated, unchanged) taken on cluster resources.
	ResourceActions = registerCounter(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resource_actions_total",
		Help:      "Number of actions taken on cluster resources",
	}, []string{KindLabel, ActionLabel}))

	// LastRunTimestamp records when the last run finished.
	LastRunTimestamp = registerGauge(prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time at which the last convergence run finished",
	}))
)

// ObserveStage records the duration and outcome of a stage.
func ObserveStage(stage, outcome string, d time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	StageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// WriteTextfile writes the content of the registry to path, in the format expected by the
// node exporter textfile collector.
func WriteTextfile(path string) error {
	LastRunTimestamp.SetToCurrentTime()
	return prometheus.WriteToTextfile(path, Registry)
}

func registerHistogram(h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := Registry.Register(h); err != nil {
		var existsErr prometheus.AlreadyRegisteredError
		if errors.As(err, &existsErr) {
			return existsErr.ExistingCollector.(*prometheus.HistogramVec) //nolint:forcetypeassert
		}
		panic(fmt.Errorf("failed to register histogram: %w", err))
	}
	return h
}

func registerCounter(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := Registry.Register(c); err != nil {
		var existsErr prometheus.AlreadyRegisteredError
		if errors.As(err, &existsErr) {
			return existsErr.ExistingCollector.(*prometheus.CounterVec) //nolint:forcetypeassert
		}
		panic(fmt.Errorf("failed to register counter: %w", err))
	}
	return c
}

func registerGauge(g prometheus.Gauge) prometheus.Gauge {
	if err := Registry.Register(g); err != nil {
		var existsErr prometheus.AlreadyRegisteredError
		if errors.As(err, &existsErr) {
			return existsErr.ExistingCollector.(prometheus.Gauge) //nolint:forcetypeassert
		}
		panic(fmt.Errorf("failed to register gauge: %w", err))
	}
	return g
}
