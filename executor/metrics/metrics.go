// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes the Executor's prometheus instrumentation. The
// core never starts an HTTP server or registers a default registry; a host
// process registers these collectors with its own registry and serves
// /metrics itself (spec.md §6 draws that line at the CLI/server boundary).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector the Executor updates during a run.
type Metrics struct {
	TasksTotal           *prometheus.CounterVec
	TaskDurationSeconds   *prometheus.HistogramVec
	LoopIterationsTotal   prometheus.Counter
	ContextBytesRetained  prometheus.Gauge
}

// New constructs a fresh Metrics bundle, unregistered. Call Register to
// attach it to a prometheus.Registerer.
func New() *Metrics {
	return &Metrics{
		TasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow",
			Name:      "tasks_total",
			Help:      "Count of task terminations by final status.",
		}, []string{"status"}),
		TaskDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflow",
			Name:      "task_duration_seconds",
			Help:      "Task execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task_id"}),
		LoopIterationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "workflow",
			Name:      "loop_iterations_total",
			Help:      "Count of loop iterations executed across the run.",
		}),
		ContextBytesRetained: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "workflow",
			Name:      "context_bytes_retained",
			Help:      "Bytes currently retained by the Context Engine's output table.",
		}),
	}
}

// Register attaches every collector to reg. Safe to call once per Metrics
// instance.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.TasksTotal, m.TaskDurationSeconds, m.LoopIterationsTotal, m.ContextBytesRetained} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
