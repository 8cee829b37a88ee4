package eventbus

import "time"

// Task lifecycle event types.
const (
	TaskScheduled = "task.scheduled" // committed or re-armed by Schedule
	TaskFired     = "task.fired"     // delivered by a timer
	TaskCanceled  = "task.canceled"
	TaskRecovered = "task.recovered" // future task re-armed at start
	TaskOverdue   = "task.overdue"   // due task delivered during start
)

// TaskEvent is the Data carried by task lifecycle events.
type TaskEvent struct {
	Key         string    `json:"key"`
	Tag         string    `json:"tag,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at,omitempty"`
}

// Nop is a Bus that drops everything.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
