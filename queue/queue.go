// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package queue implements the single-consumer task queue that gives each
// object (and the device's COV fan-out) its own cooperative goroutine:
// every operation on an object's data runs serialized on that one goroutine,
// so the core never needs locks to protect its own state.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned by Submit once the queue has been closed.
var ErrClosed = errors.New("queue: closed")

type task struct {
	fn     func() (any, error)
	result chan result
}

type result struct {
	value any
	err   error
}

// Queue runs submitted closures one at a time, in submission order, on a
// single dedicated goroutine.
type Queue struct {
	tasks  chan task
	done   chan struct{}
	closed chan struct{}
}

// New starts a Queue's worker goroutine. capacity bounds how many pending
// submissions may queue up before Submit blocks; 0 means unbuffered
// (Submit blocks until the worker is free to accept it).
func New(capacity int) *Queue {
	q := &Queue{
		tasks:  make(chan task, capacity),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		select {
		case t, ok := <-q.tasks:
			if !ok {
				return
			}
			v, err := t.fn()
			t.result <- result{value: v, err: err}
		case <-q.closed:
			// Drain anything already queued before exiting so callers
			// blocked in Submit don't hang on a queue mid-close.
			q.drain()
			return
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case t := <-q.tasks:
			t.result <- result{err: ErrClosed}
		default:
			return
		}
	}
}

// Submit runs fn on the queue's worker goroutine and returns its result.
// Submit blocks until fn has run (or the queue closes, or ctx is canceled).
func (q *Queue) Submit(ctx context.Context, fn func() (any, error)) (any, error) {
	t := task{fn: fn, result: make(chan result, 1)}

	// Checked on its own first: with buffer space left, the send below could
	// otherwise win the select against an already-closed queue.
	select {
	case <-q.closed:
		return nil, ErrClosed
	default:
	}

	select {
	case q.tasks <- t:
	case <-q.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-t.result:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the worker goroutine once the task it is running (if any) has
// finished; tasks still waiting in the buffer are not run, and their Submit
// calls return ErrClosed.
// Close does not wait for Close's own draining; callers needing that
// guarantee should call Wait afterward.
func (q *Queue) Close() {
	select {
	case <-q.closed:
		// already closed
	default:
		close(q.closed)
	}
}

// Wait blocks until the worker goroutine has fully exited.
func (q *Queue) Wait() {
	<-q.done
}
