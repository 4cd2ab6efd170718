// Package telemetry wires OpenTelemetry metrics for the phase engine.
//
// Telemetry is off by default and installs a no-op meter provider. With
// telemetry.enabled the SDK meter provider exports through stdoutmetric.
package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"phaseline/internal/config"
)

const instrumentationScope = "phaseline"

const exportInterval = 30 * time.Second

// Init installs the global meter provider and returns its shutdown func.
func Init(ctx context.Context, cfg config.TelemetryConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return func(context.Context) error { return nil }, nil
	}
	var w io.Writer = io.Discard
	if cfg.Stdout {
		w = os.Stdout
	}
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w), stdoutmetric.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// Meter returns the phaseline meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(instrumentationScope)
}

// Instruments are the counters and histograms the engine and scheduler
// record into. The zero value records nothing.
type Instruments struct {
	transitions    metric.Int64Counter
	evaluationDur  metric.Float64Histogram
	schedulerRuns  metric.Int64Counter
	schedulerFails metric.Int64Counter
}

func NewInstruments(m metric.Meter) Instruments {
	transitions, _ := m.Int64Counter("phaseline.transitions",
		metric.WithDescription("Phase transition attempts by outcome"),
	)
	evaluationDur, _ := m.Float64Histogram("phaseline.evaluation.duration",
		metric.WithDescription("Transition evaluation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	schedulerRuns, _ := m.Int64Counter("phaseline.scheduler.projects",
		metric.WithDescription("Projects visited by scheduler ticks"),
	)
	schedulerFails, _ := m.Int64Counter("phaseline.scheduler.failures",
		metric.WithDescription("Per-project failures absorbed by scheduler ticks"),
	)
	return Instruments{
		transitions:    transitions,
		evaluationDur:  evaluationDur,
		schedulerRuns:  schedulerRuns,
		schedulerFails: schedulerFails,
	}
}

func (i Instruments) ok() bool { return i.transitions != nil }

func (i Instruments) RecordTransition(ctx context.Context, trigger, outcome, toPhase string) {
	if !i.ok() {
		return
	}
	i.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("outcome", outcome),
		attribute.String("to_phase", toPhase),
	))
}

func (i Instruments) RecordEvaluation(ctx context.Context, started time.Time, fromPhase string) {
	if !i.ok() {
		return
	}
	ms := float64(time.Since(started).Microseconds()) / 1000
	i.evaluationDur.Record(ctx, ms, metric.WithAttributes(attribute.String("from_phase", fromPhase)))
}

func (i Instruments) RecordSchedulerProject(ctx context.Context, failed bool) {
	if !i.ok() {
		return
	}
	i.schedulerRuns.Add(ctx, 1)
	if failed {
		i.schedulerFails.Add(ctx, 1)
	}
}
