package metrics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records pipeline instrumentation on a dedicated registry so
// repeated runs in one process never collide. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	toolInvocations *prometheus.CounterVec
	fixups          prometheus.Counter
	points          *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
}

// New constructs a Metrics with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		toolInvocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arpgen_tool_invocations_total",
				Help: "External tool invocations by operation and status",
			},
			[]string{"op", "status"},
		),
		fixups: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "arpgen_fixups_total",
				Help: "Stray tool outputs relocated back onto their library",
			},
		),
		points: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arpgen_points_total",
				Help: "Grid points by terminal outcome",
			},
			[]string{"outcome"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arpgen_stage_duration_seconds",
				Help:    "Per-point stage durations",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
			},
			[]string{"stage"},
		),
	}
}

// ObserveTool counts one external tool invocation.
func (m *Metrics) ObserveTool(op, status string) {
	if m == nil {
		return
	}
	m.toolInvocations.WithLabelValues(op, status).Inc()
}

// FixupApplied counts one relocated stray output.
func (m *Metrics) FixupApplied() {
	if m == nil {
		return
	}
	m.fixups.Inc()
}

// PointOutcome counts one grid point reaching a terminal state.
func (m *Metrics) PointOutcome(outcome string) {
	if m == nil {
		return
	}
	m.points.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long one stage of one point took.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// Snapshot flattens the registry into "name{label=value,...}" keys.
// Counters report their value, histograms their sample count.
func (m *Metrics) Snapshot() (map[string]float64, error) {
	if m == nil {
		return nil, nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	flat := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := metric.GetLabel()
			parts := make([]string, 0, len(labels))
			for _, label := range labels {
				parts = append(parts, label.GetName()+"="+label.GetValue())
			}
			sort.Strings(parts)
			key := family.GetName()
			if len(parts) > 0 {
				key += "{" + strings.Join(parts, ",") + "}"
			}
			switch {
			case metric.GetCounter() != nil:
				flat[key] = metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				flat[key] = float64(metric.GetHistogram().GetSampleCount())
			case metric.GetGauge() != nil:
				flat[key] = metric.GetGauge().GetValue()
			}
		}
	}
	return flat, nil
}
