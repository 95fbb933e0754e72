package httpd

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// WorkerState is the lifecycle state of one pool worker.
type WorkerState uint32

const (
	// WorkerWaiting means the worker is blocked on the empty queue.
	WorkerWaiting WorkerState = iota
	// WorkerRunning means the worker is inside a task.
	WorkerRunning
	// WorkerTerminated means the worker goroutine has exited.
	WorkerTerminated
)

// String returns the state name.
func (s WorkerState) String() string {
	switch s {
	case WorkerWaiting:
		return "waiting"
	case WorkerRunning:
		return "running"
	case WorkerTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("WorkerState(%d)", uint32(s))
	}
}

// worker is one slot of the pool. A revived worker gets a fresh struct.
type worker struct {
	id       int
	state    atomic.Uint32
	abnormal atomic.Bool   // set when the goroutine died inside a task.
	done     chan struct{} // closed when the goroutine exits.
}

func (w *worker) setState(s WorkerState) {
	w.state.Store(uint32(s))
}

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	Workers  int    // configured worker count.
	Alive    int    // workers whose goroutine has not exited.
	Active   int    // workers currently inside a task.
	Queued   int    // tasks waiting in the queue.
	Revived  uint64 // workers respawned by Supervise or the drain path.
	Executed uint64 // tasks that finished, normally or not.
}

// PoolOption configures a WorkerPool.
type PoolOption func(*WorkerPool)

// WithInactiveCallback registers fn to be called whenever the last active
// worker finishes a task while the queue is empty. fn runs with the queue
// lock held and must not call back into the pool.
func WithInactiveCallback(fn func()) PoolOption {
	return func(p *WorkerPool) {
		p.inactive = fn
	}
}

// WithLogger sets the pool logger.
func WithLogger(l Logger) PoolOption {
	return func(p *WorkerPool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WorkerPool is a fixed set of long-lived workers fed by a TaskQueue.
type WorkerPool struct {
	queue    *TaskQueue
	running  bool   // guarded by queue.mu; true until Destroy.
	active   int    // guarded by queue.mu.
	inactive func() // guarded by queue.mu.

	superviseMu sync.Mutex   // serializes Supervise and Destroy.
	slotMu      sync.RWMutex // guards slots.
	slots       []*worker

	logger      Logger
	revived     atomic.Uint64
	executed    atomic.Uint64
	destroyOnce sync.Once
}

// NewWorkerPool starts a pool of n workers.
func NewWorkerPool(n int, opts ...PoolOption) (*WorkerPool, error) {
	if n <= 0 {
		return nil, ErrInvalidWorkerCount
	}

	p := &WorkerPool{
		queue:   NewTaskQueue(),
		running: true,
		slots:   make([]*worker, n),
		logger:  &NoopLogger{},
	}

	for _, opt := range opts {
		opt(p)
	}

	for i := range p.slots {
		p.slots[i] = p.spawn(i)
	}

	return p, nil
}

// spawn starts a worker goroutine for slot id.
func (p *WorkerPool) spawn(id int) *worker {
	w := &worker{id: id, done: make(chan struct{})}
	w.setState(WorkerWaiting)

	go p.run(w)

	return w
}

// Add submits a task. After Destroy it returns ErrPoolClosed and the caller
// keeps ownership of the task.
func (p *WorkerPool) Add(task Task) error {
	if task == nil {
		return ErrNilTask
	}

	node := &taskNode{task: task}

	p.queue.mu.Lock()
	defer p.queue.mu.Unlock()

	if !p.running {
		return ErrPoolClosed
	}

	p.queue.putLocked(node)
	p.queue.nonEmpty.Signal()

	return nil
}

// AddFunc submits a handler with an optional destructor.
func (p *WorkerPool) AddFunc(handler, destructor func()) error {
	return p.Add(NewTask(handler, destructor))
}

// run is the worker loop.
func (p *WorkerPool) run(w *worker) {
	clean := false

	defer func() {
		if !clean {
			w.abnormal.Store(true)
			p.logger.Errorf("worker %d terminated abnormally", w.id)
		}
		w.setState(WorkerTerminated)
		close(w.done)
	}()

	for {
		task, ok := p.next(w)
		if !ok {
			clean = true
			return
		}

		if !p.execute(task) {
			return
		}
		w.setState(WorkerWaiting)
	}
}

// next blocks until a task is available or the pool is stopped and drained.
func (p *WorkerPool) next(w *worker) (Task, bool) {
	p.queue.mu.Lock()
	defer p.queue.mu.Unlock()

	for p.queue.count == 0 && p.running {
		p.queue.nonEmpty.Wait()
	}

	if !p.running && p.queue.count == 0 {
		return nil, false
	}

	task, _ := p.queue.get()
	p.active++
	w.setState(WorkerRunning)

	return task, true
}

// execute runs one task and reports whether the worker survived it.
// A panic or runtime.Goexit inside the task or its Release ends the worker.
// The task is counted as finished either way.
func (p *WorkerPool) execute(task Task) (survived bool) {
	defer p.finish()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("task panic: %v\n%s", r, debug.Stack())
			survived = false
		}

		if !p.release(task) {
			survived = false
		}
	}()

	task.Execute()

	return true
}

// release calls task.Release and reports whether it returned normally.
func (p *WorkerPool) release(task Task) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("task release panic: %v\n%s", r, debug.Stack())
		}
	}()

	task.Release()

	return true
}

// finish records the end of a task and fires the inactive callback.
func (p *WorkerPool) finish() {
	p.executed.Add(1)

	p.queue.mu.Lock()
	defer p.queue.mu.Unlock()

	p.active--
	if p.active == 0 && p.queue.count == 0 && p.inactive != nil {
		p.inactive()
	}
}

// Supervise respawns every worker whose goroutine has exited and returns how
// many were revived. It does nothing once the pool is stopped.
func (p *WorkerPool) Supervise() int {
	p.superviseMu.Lock()
	defer p.superviseMu.Unlock()

	if !p.isRunning() {
		return 0
	}

	p.slotMu.Lock()
	defer p.slotMu.Unlock()

	revived := 0
	for i, w := range p.slots {
		select {
		case <-w.done:
			p.logger.Warnf("reviving worker %d (abnormal exit: %t)", i, w.abnormal.Load())
			p.slots[i] = p.spawn(i)
			revived++
		default:
		}
	}

	p.revived.Add(uint64(revived))

	return revived
}

// Destroy stops accepting tasks, lets the workers drain the queue and joins
// them. It is safe to call more than once.
func (p *WorkerPool) Destroy() {
	p.destroyOnce.Do(func() {
		p.queue.mu.Lock()
		p.running = false
		p.queue.nonEmpty.Broadcast()
		p.queue.mu.Unlock()

		p.superviseMu.Lock()
		defer p.superviseMu.Unlock()

		for {
			for _, w := range p.snapshot() {
				<-w.done
			}

			// Workers that died mid-drain can leave tasks behind.
			if p.queue.Len() == 0 {
				return
			}

			p.slotMu.Lock()
			for i := range p.slots {
				p.logger.Warnf("respawning worker %d to drain queue", i)
				p.slots[i] = p.spawn(i)
				p.revived.Add(1)
			}
			p.slotMu.Unlock()
		}
	})
}

func (p *WorkerPool) snapshot() []*worker {
	p.slotMu.RLock()
	defer p.slotMu.RUnlock()

	return append([]*worker(nil), p.slots...)
}

func (p *WorkerPool) isRunning() bool {
	p.queue.mu.Lock()
	defer p.queue.mu.Unlock()

	return p.running
}

// Workers returns the state of every worker slot.
func (p *WorkerPool) Workers() []WorkerState {
	slots := p.snapshot()

	states := make([]WorkerState, len(slots))
	for i, w := range slots {
		states[i] = WorkerState(w.state.Load())
	}

	return states
}

// Stats returns current pool statistics.
func (p *WorkerPool) Stats() PoolStats {
	slots := p.snapshot()
	alive := 0
	for _, w := range slots {
		select {
		case <-w.done:
		default:
			alive++
		}
	}

	p.queue.mu.Lock()
	active, queued := p.active, p.queue.count
	p.queue.mu.Unlock()

	return PoolStats{
		Workers:  len(slots),
		Alive:    alive,
		Active:   active,
		Queued:   queued,
		Revived:  p.revived.Load(),
		Executed: p.executed.Load(),
	}
}
