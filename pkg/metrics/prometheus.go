package metrics

import (
	"context"
	"fmt"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exports lifecycle events as Prometheus series.
type PrometheusCollector struct {
	runsTotal       *prometheus.CounterVec
	stateExecutions *prometheus.CounterVec
	stateDuration   *prometheus.HistogramVec
	actionDuration  *prometheus.HistogramVec
	runsActive      prometheus.Gauge
}

// NewPrometheusCollector creates the series and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &PrometheusCollector{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weft_runs_total",
				Help: "Total number of finished runs by status",
			},
			[]string{"workflow", "status"},
		),
		stateExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weft_state_executions_total",
				Help: "Total number of state executions",
			},
			[]string{"workflow", "state"},
		),
		stateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weft_state_duration_seconds",
				Help:    "Time spent in a state, including its action",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"workflow", "state"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weft_action_duration_seconds",
				Help:    "Duration of action executions",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300},
			},
			[]string{"kind"},
		),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "weft_runs_active",
			Help: "Number of runs currently executing",
		}),
	}
	for _, col := range []prometheus.Collector{c.runsTotal, c.stateExecutions, c.stateDuration, c.actionDuration, c.runsActive} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return c, nil
}

// Hooks returns lifecycle hooks feeding the Prometheus series.
func (c *PrometheusCollector) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart: func(_ context.Context, e *domain.RunEvent) {
			c.runsActive.Inc()
		},
		OnRunFinish: func(_ context.Context, e *domain.RunEvent) {
			c.runsActive.Dec()
			c.runsTotal.WithLabelValues(string(e.Workflow), string(e.Status)).Inc()
		},
		OnStateLeave: func(_ context.Context, e *domain.StateEvent) {
			c.stateExecutions.WithLabelValues(string(e.Workflow), string(e.State)).Inc()
			c.stateDuration.WithLabelValues(string(e.Workflow), string(e.State)).Observe(e.Duration.Seconds())
		},
		OnActionFinish: func(_ context.Context, e *domain.ActionEvent) {
			c.actionDuration.WithLabelValues(string(e.Kind)).Observe(e.Duration.Seconds())
		},
	}
}
