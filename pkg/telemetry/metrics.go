// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/aegis/pkg/errors"
)

// ControlMetrics tracks the control plane's operational signals: throttle
// waits, oversight decisions, ledger churn, and run outcomes.
type ControlMetrics struct {
	throttleWait    metric.Float64Histogram
	penaltyCounter  metric.Int64Counter
	decisionCounter metric.Int64Counter
	ledgerEvictions metric.Int64Counter
	runCounter      metric.Int64Counter
	turnCounter     metric.Int64Counter
	errorCounter    metric.Int64Counter
}

var (
	controlOnce    sync.Once
	controlMetrics *ControlMetrics
	controlErr     error
)

// Metrics returns the process-wide control metrics, creating the
// instruments on first use.
func Metrics() (*ControlMetrics, error) {
	controlOnce.Do(func() {
		controlMetrics, controlErr = newControlMetrics()
	})
	return controlMetrics, controlErr
}

func newControlMetrics() (*ControlMetrics, error) {
	meter := otel.Meter("aegis/control")

	throttleWait, err := meter.Float64Histogram(
		"aegis.governor.throttle.wait_seconds",
		metric.WithDescription("Observed wait before a throttle check passed"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	penaltyCounter, err := meter.Int64Counter(
		"aegis.governor.penalties",
		metric.WithDescription("Backoff penalties recorded per model"),
	)
	if err != nil {
		return nil, err
	}

	decisionCounter, err := meter.Int64Counter(
		"aegis.oversight.decisions",
		metric.WithDescription("Oversight decisions by outcome"),
	)
	if err != nil {
		return nil, err
	}

	ledgerEvictions, err := meter.Int64Counter(
		"aegis.oversight.ledger.evictions",
		metric.WithDescription("Ledger entries evicted by the FIFO cap"),
	)
	if err != nil {
		return nil, err
	}

	runCounter, err := meter.Int64Counter(
		"aegis.runner.runs",
		metric.WithDescription("Completed runs by outcome"),
	)
	if err != nil {
		return nil, err
	}

	turnCounter, err := meter.Int64Counter(
		"aegis.runner.turns",
		metric.WithDescription("Executed turns"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"aegis.errors.total",
		metric.WithDescription("Typed errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	return &ControlMetrics{
		throttleWait:    throttleWait,
		penaltyCounter:  penaltyCounter,
		decisionCounter: decisionCounter,
		ledgerEvictions: ledgerEvictions,
		runCounter:      runCounter,
		turnCounter:     turnCounter,
		errorCounter:    errorCounter,
	}, nil
}

// RecordThrottleWait records the seconds a run waited inside throttle.
func (m *ControlMetrics) RecordThrottleWait(ctx context.Context, model string, seconds float64) {
	if m == nil {
		return
	}
	m.throttleWait.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("model", model)))
}

// RecordPenalty counts a backoff penalty for a model.
func (m *ControlMetrics) RecordPenalty(ctx context.Context, model string) {
	if m == nil {
		return
	}
	m.penaltyCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("model", model)))
}

// RecordDecision counts an oversight decision outcome
// ("approved", "rejected", "auto_approved", "killed").
func (m *ControlMetrics) RecordDecision(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.decisionCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordLedgerEviction counts n entries evicted from the ledger.
func (m *ControlMetrics) RecordLedgerEviction(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ledgerEvictions.Add(ctx, n)
}

// RecordRun counts a completed run with its outcome ("success" or an
// error code).
func (m *ControlMetrics) RecordRun(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.runCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTurn counts an executed turn for an agent.
func (m *ControlMetrics) RecordTurn(ctx context.Context, agentID string) {
	if m == nil {
		return
	}
	m.turnCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("agent", agentID)))
}

// RecordError counts a typed error against a component.
func (m *ControlMetrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	m.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error.code", string(errors.CodeOf(err))),
			attribute.String("component", component),
		))
}
