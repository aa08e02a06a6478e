package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/firefly-engineering/shellcore/internal/task"
)

// counterValue returns the value of the counter series name{label=value}.
func counterValue(t *testing.T, reg *prom.Registry, name, value string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if value == "" && len(m.GetLabel()) == 0 {
				return m.GetCounter().GetValue()
			}
			for _, l := range m.GetLabel() {
				if l.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObserveTaskDuration("ls", 150*time.Millisecond)
	pr.IncTaskResult(ResultSuccess)
	pr.IncTaskResult(ResultFailure)
	pr.IncTaskResult(ResultFailure)
	pr.IncCommand(KindBuiltin)
	pr.IncParseError()
	pr.ObserveReadlineDuration(time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) != 5 {
		t.Fatalf("got %d metric families, want 5", len(mfs))
	}

	if got := counterValue(t, reg, "shellcore_task_results_total", "failure"); got != 2 {
		t.Errorf("failure count = %v, want 2", got)
	}
	if got := counterValue(t, reg, "shellcore_parse_errors_total", ""); got != 1 {
		t.Errorf("parse errors = %v, want 1", got)
	}
}

func TestNilPrometheusRecorder(t *testing.T) {
	var pr *PrometheusRecorder
	pr.IncParseError()
	pr.ObserveTaskDuration("x", time.Second)
}

func TestTaskObserver(t *testing.T) {
	reg := prom.NewRegistry()
	obs := TaskObserver{Recorder: NewPrometheusRecorder(reg)}

	tk := task.New([]string{"/usr/bin/grep", "x"})
	obs.TaskStarted(tk, 1)
	obs.TaskExited(tk, 0, time.Millisecond)
	obs.TaskFailed(task.New([]string{"nope"}), errors.New("not found"))

	if got := counterValue(t, reg, "shellcore_commands_total", "process"); got != 1 {
		t.Errorf("process commands = %v, want 1", got)
	}
	if got := counterValue(t, reg, "shellcore_task_results_total", "start_failed"); got != 1 {
		t.Errorf("start failures = %v, want 1", got)
	}
	mfs, _ := reg.Gather()
	for _, mf := range mfs {
		if mf.GetName() != "shellcore_task_duration_seconds" {
			continue
		}
		labels := mf.GetMetric()[0].GetLabel()
		if len(labels) != 1 || labels[0].GetValue() != "grep" {
			t.Errorf("duration labels = %v, want command=grep", labels)
		}
	}
}

func TestResultFor(t *testing.T) {
	if ResultFor(0) != ResultSuccess || ResultFor(130) != ResultFailure {
		t.Error("ResultFor misclassified exit codes")
	}
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncParseError()

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "shellcore_parse_errors_total 1") {
		t.Errorf("body missing counter:\n%s", rec.Body.String())
	}
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncCommand(KindFunction)
	r.IncTaskResult(ResultSuccess)
}
