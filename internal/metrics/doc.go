// Package metrics exposes counters and histograms about the commands a shell
// runs.
//
// Components receive a Recorder. NoopRecorder is the default and does
// nothing; PrometheusRecorder registers its collectors on a registry that
// HTTPHandler can serve. TaskObserver adapts a Recorder to the task.Observer
// interface so every process a task manager starts is counted.
package metrics
