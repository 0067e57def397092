package scheduler

import "github.com/KevinKickass/OpenControllerCore/internal/timing"

// MaxTasks is the capacity of the deferred task queue.
const MaxTasks = 8

// Task is a one-shot action run once Delay milliseconds have elapsed since
// registration.
type Task struct {
	ID    int
	Delay uint32
	Fn    func()
}

type slot struct {
	task       Task
	registered uint32
	used       bool
}

// TaskQueue is a fixed-capacity set of deferred tasks keyed by id.
type TaskQueue struct {
	clock timing.Clock
	slots [MaxTasks]slot
}

func NewTaskQueue(clock timing.Clock) *TaskQueue {
	return &TaskQueue{clock: clock}
}

// RegisterTask schedules task. A pending task with the same id is
// superseded and its due time restarts. It returns false when the queue is
// full or the task has no action.
func (q *TaskQueue) RegisterTask(task Task) bool {
	if task.Fn == nil {
		return false
	}

	now := q.clock.Millis()
	free := -1

	for i := range q.slots {
		if q.slots[i].used && q.slots[i].task.ID == task.ID {
			q.slots[i].task = task
			q.slots[i].registered = now
			return true
		}
		if !q.slots[i].used && free < 0 {
			free = i
		}
	}

	if free < 0 {
		return false
	}

	q.slots[free] = slot{task: task, registered: now, used: true}
	return true
}

// Update runs and removes every due task. A slot is released before its
// action runs, so actions may register further tasks.
func (q *TaskQueue) Update() {
	now := q.clock.Millis()

	for i := range q.slots {
		if !q.slots[i].used {
			continue
		}
		if timing.Elapsed(now, q.slots[i].registered) < q.slots[i].task.Delay {
			continue
		}

		fn := q.slots[i].task.Fn
		q.slots[i] = slot{}
		fn()
	}
}

// Pending returns the number of registered tasks.
func (q *TaskQueue) Pending() int {
	n := 0
	for i := range q.slots {
		if q.slots[i].used {
			n++
		}
	}
	return n
}
