package httpd

import "sync"

// taskNode is one link of the TaskQueue.
type taskNode struct {
	task Task
	next *taskNode
}

// TaskQueue is an unbounded FIFO of tasks guarded by a single mutex.
// The same mutex backs the "non-empty" condition the workers wait on.
type TaskQueue struct {
	mu       sync.Mutex // protects head, tail, count.
	nonEmpty *sync.Cond // signalled on every Put.
	head     *taskNode  // next task to dequeue.
	tail     *taskNode  // last task enqueued.
	count    int        // number of linked nodes.
}

// NewTaskQueue creates an empty TaskQueue.
func NewTaskQueue() *TaskQueue {
	q := &TaskQueue{}
	q.nonEmpty = sync.NewCond(&q.mu)

	return q
}

// Put appends a task at the tail and wakes one waiting worker. It never blocks
// on queue depth.
func (q *TaskQueue) Put(task Task) error {
	if task == nil {
		return ErrNilTask
	}

	node := &taskNode{task: task}

	q.mu.Lock()
	q.putLocked(node)
	q.nonEmpty.Signal()
	q.mu.Unlock()

	return nil
}

// putLocked links a node at the tail. The caller holds q.mu.
func (q *TaskQueue) putLocked(node *taskNode) {
	if q.count == 0 {
		q.head = node
		q.tail = node
	} else {
		q.tail.next = node
		q.tail = node
	}
	q.count++
}

// get removes the head task. The caller holds q.mu. It reports false when the
// queue is empty and never blocks.
func (q *TaskQueue) get() (Task, bool) {
	if q.count == 0 {
		return nil, false
	}

	node := q.head
	if q.count == 1 {
		q.head = nil
		q.tail = nil
	} else {
		q.head = node.next
	}
	q.count--
	node.next = nil

	return node.task, true
}

// Len returns the number of pending tasks.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.count
}
