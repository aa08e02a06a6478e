package task

import "time"

// Observers fans lifecycle events out to several observers.
type Observers []Observer

var _ Observer = Observers(nil)

func (o Observers) TaskStarted(t *Task, pid int) {
	for _, obs := range o {
		obs.TaskStarted(t, pid)
	}
}

func (o Observers) TaskExited(t *Task, rc uint8, elapsed time.Duration) {
	for _, obs := range o {
		obs.TaskExited(t, rc, elapsed)
	}
}

func (o Observers) TaskFailed(t *Task, err error) {
	for _, obs := range o {
		obs.TaskFailed(t, err)
	}
}
