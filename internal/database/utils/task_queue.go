// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package utils

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrQueueClosed is returned by Do after Close
var ErrQueueClosed = errors.New("task queue is closed")

type task struct {
	fn   func() error
	done chan error
}

// TaskQueue runs tasks one at a time on a single worker goroutine in
// submission order. A task starts only after the previous one returned.
type TaskQueue struct {
	tasks chan *task
	quit  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// NewTaskQueue starts the worker
func NewTaskQueue() *TaskQueue {
	q := &TaskQueue{
		tasks: make(chan *task),
		quit:  make(chan struct{}),
	}
	q.wg.Add(1)
	go q.work()
	return q
}

func (q *TaskQueue) work() {
	defer q.wg.Done()
	for {
		select {
		case t := <-q.tasks:
			t.done <- run(t.fn)
		case <-q.quit:
			return
		}
	}
}

func run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn()
}

// Do submits fn and waits for it to complete. If ctx is done before the
// worker accepts the task, fn is never run and ctx.Err() is returned.
func (q *TaskQueue) Do(ctx context.Context, fn func() error) error {
	t := &task{fn: fn, done: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.quit:
		return ErrQueueClosed
	case q.tasks <- t:
	}
	return <-t.done
}

// Close stops the worker after the running task completes
func (q *TaskQueue) Close() {
	q.once.Do(func() {
		close(q.quit)
	})
	q.wg.Wait()
}
