package jsonrpc

import (
	"context"
	"sync"
	"sync/atomic"
)

// Task is the cancellation token of one inbound request being handled.
type Task struct {
	ID        int64
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// Context returns the context handed to the handler.
func (t *Task) Context() context.Context {
	return t.ctx
}

// Cancelled reports whether the peer cancelled this task.
func (t *Task) Cancelled() bool {
	return t.cancelled.Load()
}

// TaskRegistry tracks in-flight inbound requests by the id the peer gave
// them, so a later $/cancelRequest can reach the right handler.
//
// The peer owns the id space and uniqueness is not enforced: a second
// request with the same id replaces the first in the registry, and the
// first is then no longer cancellable by id.
type TaskRegistry struct {
	tasks map[int64]*Task
	mu    sync.RWMutex
}

// NewTaskRegistry creates an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		tasks: make(map[int64]*Task),
	}
}

// Start registers a task for id whose context derives from parent.
func (r *TaskRegistry) Start(parent context.Context, id int64) *Task {
	ctx, cancel := context.WithCancel(parent)
	task := &Task{
		ID:     id,
		ctx:    ctx,
		cancel: cancel,
	}

	r.mu.Lock()
	r.tasks[id] = task
	r.mu.Unlock()

	return task
}

// Cancel marks the task for id cancelled, cancels its context and removes
// it. It reports false when no task is registered under id.
func (r *TaskRegistry) Cancel(id int64) bool {
	r.mu.Lock()
	task, exists := r.tasks[id]
	if exists {
		delete(r.tasks, id)
	}
	r.mu.Unlock()

	if !exists {
		return false
	}
	task.cancelled.Store(true)
	task.cancel()
	return true
}

// Finish removes task once its handler has returned. An entry that was
// already replaced by a newer task with the same id is left alone.
func (r *TaskRegistry) Finish(task *Task) {
	r.mu.Lock()
	if current, ok := r.tasks[task.ID]; ok && current == task {
		delete(r.tasks, task.ID)
	}
	r.mu.Unlock()

	task.cancel()
}

// Get retrieves the task registered under id.
func (r *TaskRegistry) Get(id int64) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, exists := r.tasks[id]
	return task, exists
}

// CancelAll cancels and removes every registered task.
func (r *TaskRegistry) CancelAll() int {
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = make(map[int64]*Task)
	r.mu.Unlock()

	for _, task := range tasks {
		task.cancelled.Store(true)
		task.cancel()
	}
	return len(tasks)
}

// Len returns the number of registered tasks.
func (r *TaskRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
