package httpd

// Task is a unit of work executed by the WorkerPool.
//
// The pool owns a task from a successful Add until Release returns. Execute
// runs exactly once; Release runs after Execute, also when Execute panics, and
// frees whatever the task captured (connections, buffers).
type Task interface {
	Execute()
	Release()
}

// funcTask adapts a handler/destructor pair to the Task interface.
type funcTask struct {
	handler    func()
	destructor func()
}

// NewTask builds a Task from a handler and an optional destructor.
// A nil destructor makes Release a no-op.
func NewTask(handler func(), destructor func()) Task {
	return &funcTask{handler: handler, destructor: destructor}
}

// Execute calls the handler.
func (t *funcTask) Execute() {
	if t.handler != nil {
		t.handler()
	}
}

// Release calls the destructor, if any.
func (t *funcTask) Release() {
	if t.destructor != nil {
		t.destructor()
	}
}
