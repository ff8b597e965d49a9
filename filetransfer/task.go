package transfer

// Task is one item in a transfer queue: either a directory to create on
// the target, or a file to stream from source to target. Size is zero
// for directories.
type Task struct {
	SourcePath string
	TargetPath string
	Size       int64
	IsDir      bool
	overwrite  bool

	transferedSize int64
}

func (t *Task) SetOverwrite(overwrite bool) { t.overwrite = overwrite }
func (t *Task) Overwrite() bool             { return t.overwrite }

// TaskList is an ordered, front-consumed queue. Only the front task is
// ever active; the engine never reorders it.
type TaskList struct {
	items []Task
}

func (l *TaskList) Add(t Task) {
	l.items = append(l.items, t)
}

func (l *TaskList) Empty() bool {
	return len(l.items) == 0
}

func (l *TaskList) Len() int {
	return len(l.items)
}

// Front returns a pointer to the active task. Callers must check Empty
// first; Front panics on an empty list the same way slice indexing
// would, since the engine never calls it without checking.
func (l *TaskList) Front() *Task {
	return &l.items[0]
}

// PopFront discards the active task, advancing the queue.
func (l *TaskList) PopFront() {
	if len(l.items) == 0 {
		return
	}
	l.items = l.items[1:]
}

// Clear discards every remaining task, used when a transfer is canceled.
func (l *TaskList) Clear() {
	l.items = nil
}
