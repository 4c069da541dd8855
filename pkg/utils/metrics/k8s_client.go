// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package metrics

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	clmetrics "k8s.io/client-go/tools/metrics"
)

var (
	requestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "k8s_client_request_duration_seconds",
			Help:      "Kubernetes client request latency in seconds. Broken down by verb.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1.0, 2.0, 4.0, 8.0, 15.0, 30.0, 60.0},
		},
		[]string{"verb"},
	)

	_ clmetrics.LatencyMetric = &latencyMetrics{}

	registerClientMetricsOnce sync.Once
)

// RegisterClientMetrics hooks the client-go request latency into the helixctl registry.
func RegisterClientMetrics() {
	registerClientMetricsOnce.Do(func() {
		Registry.MustRegister(requestLatency)
		clmetrics.Register(clmetrics.RegisterOpts{
			RequestLatency: &latencyMetrics{requestLatency: requestLatency},
		})
	})
}

// latencyMetrics implements the LatencyMetric interface from k8s client-go package
type latencyMetrics struct {
	requestLatency *prometheus.HistogramVec
}

func (c *latencyMetrics) Observe(_ context.Context, verb string, _ url.URL, latency time.Duration) {
	c.requestLatency.WithLabelValues(verb).Observe(latency.Seconds())
}
