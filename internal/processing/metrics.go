// Prometheus instrumentation for pipeline execution. Label cardinality is
// kept bounded: job outcomes by terminal status, step failures by plugin name
// and stage (both come from static configuration, not request data).
package processing

import "github.com/prometheus/client_golang/prometheus"

var (
	// jobsCompleted counts jobs by terminal status.
	jobsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_total",
			Help: "Total number of processing jobs by terminal status.",
		},
		[]string{"status"},
	)

	// stepFailures counts failed plugin invocations by plugin and stage.
	stepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_step_failures_total",
			Help: "Total number of failed pipeline steps by plugin and stage.",
		},
		[]string{"plugin", "stage"},
	)
)

func init() {
	prometheus.MustRegister(jobsCompleted, stepFailures)
}
