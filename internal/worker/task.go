package worker

// TaskType distinguishes a task bound for the shared queue from one
// destined for a specific locked worker's dedicated slot.
type TaskType int

const (
	// TaskUnspecified is the zero value; treated as TaskWorker.
	TaskUnspecified TaskType = iota
	// TaskWorker is a normal task, visible on the shared queue and
	// consumable by any idle worker.
	TaskWorker
	// TaskDedicated is installed directly into a locked worker's
	// dedicated slot and never touches the shared queue.
	TaskDedicated
)

func (t TaskType) String() string {
	switch t {
	case TaskWorker:
		return "WORKER"
	case TaskDedicated:
		return "DEDICATED"
	default:
		return "UNSPECIFIED"
	}
}

// Routine is the shape every task body takes: an opaque argument in,
// an integer status out. A non-zero return latches the worker into
// BLOCKED when block-on-error is enabled.
type Routine func(argument interface{}) int

// Task is a unit of work. The submitter retains ownership of Argument;
// the pool neither copies nor frees it.
type Task struct {
	Routine  Routine
	Argument interface{}
	Type     TaskType
}
