// Copyright 2026 The AppForge Authors
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

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{meter: otel.Meter("noop")}, nil
	}
	return &Meter{meter: otel.Meter(serviceName)}, nil
}

// GetMeter returns the underlying meter
func (m *Meter) GetMeter() metric.Meter {
	return m.meter
}

// EngineMetrics holds the orchestration engine's instruments.
type EngineMetrics struct {
	Workflows        metric.Int64Counter
	WorkflowFailures metric.Int64Counter
	WorkflowSeconds  metric.Float64Histogram
	ActiveForwards   metric.Int64UpDownCounter
}

// NewEngineMetrics registers the engine instruments on the meter.
func (m *Meter) NewEngineMetrics() (*EngineMetrics, error) {
	workflows, err := m.meter.Int64Counter(
		"engine_workflows_total",
		metric.WithDescription("Deployment workflows started, by operation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter engine_workflows_total: %w", err)
	}
	failures, err := m.meter.Int64Counter(
		"engine_workflow_failures_total",
		metric.WithDescription("Deployment workflows ended in a failed state"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter engine_workflow_failures_total: %w", err)
	}
	seconds, err := m.meter.Float64Histogram(
		"engine_workflow_duration_seconds",
		metric.WithDescription("Wall time from workflow start to terminal state"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram engine_workflow_duration_seconds: %w", err)
	}
	forwards, err := m.meter.Int64UpDownCounter(
		"engine_port_forwards_active",
		metric.WithDescription("Port-forward child processes currently supervised"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create up/down counter engine_port_forwards_active: %w", err)
	}

	return &EngineMetrics{
		Workflows:        workflows,
		WorkflowFailures: failures,
		WorkflowSeconds:  seconds,
		ActiveForwards:   forwards,
	}, nil
}

// RecordWorkflow records one finished workflow.
func (em *EngineMetrics) RecordWorkflow(ctx context.Context, operation string, seconds float64, failed bool) {
	if em == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	em.Workflows.Add(ctx, 1, attrs)
	em.WorkflowSeconds.Record(ctx, seconds, attrs)
	if failed {
		em.WorkflowFailures.Add(ctx, 1, attrs)
	}
}
