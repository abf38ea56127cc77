// Package metrics provides Prometheus-compatible engine metrics, ported
// from the teacher's graph/metrics.go (a *PrometheusMetrics struct wrapping
// promauto-registered gauges/counters with a registry passed in by the
// caller, rather than the package-level default registry).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set holds all engine-level metrics (namespaced "bpmn_"):
//
//  1. ticks_total (counter): tick_instance invocations. Labels: outcome
//     (completed/parked/terminated/failed/cancelled).
//  2. fibers_parked (gauge): non-Running fibers of the most recently ticked
//     instance. Labels: wait_kind.
//  3. jobs_enqueued_total / jobs_completed_total (counters): job lifecycle
//     volume, for comparing enqueue vs. completion rate.
//  4. incidents_total (counter): incidents created. Labels: error_class.
//  5. race_resolutions_total (counter): Race arms resolved. Labels: arm_kind.
type Set struct {
	Ticks             *prometheus.CounterVec
	FibersParked      *prometheus.GaugeVec
	JobsEnqueued      prometheus.Counter
	JobsCompleted     prometheus.Counter
	Incidents         *prometheus.CounterVec
	RaceResolutions   *prometheus.CounterVec
}

// New registers the metric set with reg (use prometheus.DefaultRegisterer
// for the global registry).
func New(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)
	return &Set{
		Ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bpmn_ticks_total",
			Help: "Number of tick_instance invocations by outcome.",
		}, []string{"outcome"}),
		FibersParked: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bpmn_fibers_parked",
			Help: "Current number of fibers not in the Running wait state.",
		}, []string{"wait_kind"}),
		JobsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "bpmn_jobs_enqueued_total",
			Help: "Total jobs enqueued by ExecNative.",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "bpmn_jobs_completed_total",
			Help: "Total jobs completed via complete_job.",
		}),
		Incidents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bpmn_incidents_total",
			Help: "Total incidents created, by error class.",
		}, []string{"error_class"}),
		RaceResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bpmn_race_resolutions_total",
			Help: "Total Race wait states resolved, by winning arm kind.",
		}, []string{"arm_kind"}),
	}
}
