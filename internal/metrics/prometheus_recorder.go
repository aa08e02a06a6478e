package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	taskDuration     *prom.HistogramVec
	taskResults      *prom.CounterVec
	commands         *prom.CounterVec
	parseErrors      prom.Counter
	readlineDuration prom.Histogram
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		taskDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "shellcore",
			Name:      "task_duration_seconds",
			Help:      "Wall time of processes started by the shell",
			Buckets:   prom.DefBuckets,
		}, []string{"command"}),
		taskResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "shellcore",
			Name:      "task_results_total",
			Help:      "Process outcomes",
		}, []string{"result"}),
		commands: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "shellcore",
			Name:      "commands_total",
			Help:      "Commands run, by how they were resolved",
		}, []string{"kind"}),
		parseErrors: prom.NewCounter(prom.CounterOpts{
			Namespace: "shellcore",
			Name:      "parse_errors_total",
			Help:      "Command lines rejected by the parser",
		}),
		readlineDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "shellcore",
			Name:      "readline_duration_seconds",
			Help:      "Time spent running a full command line",
			Buckets:   prom.DefBuckets,
		}),
	}
	reg.MustRegister(pr.taskDuration, pr.taskResults, pr.commands, pr.parseErrors, pr.readlineDuration)
	return pr
}

func (p *PrometheusRecorder) ObserveTaskDuration(command string, d time.Duration) {
	if p == nil {
		return
	}
	p.taskDuration.WithLabelValues(command).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskResult(result ResultLabel) {
	if p == nil {
		return
	}
	p.taskResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncCommand(kind CommandKind) {
	if p == nil {
		return
	}
	p.commands.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusRecorder) IncParseError() {
	if p == nil {
		return
	}
	p.parseErrors.Inc()
}

func (p *PrometheusRecorder) ObserveReadlineDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.readlineDuration.Observe(d.Seconds())
}
