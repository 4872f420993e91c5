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

// Package bus implements the small in-process event bus properties and
// objects use to notify listeners of value changes. Dispatch is always
// synchronous and ordered: never parallel, never reordered.
package bus

import (
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/panics"
)

// ErrorPolicy controls what EmitSerial does when a listener returns an
// error.
type ErrorPolicy int

const (
	// Rethrow stops dispatch at the first error and returns it to the
	// caller; later listeners in the chain are not invoked.
	Rethrow ErrorPolicy = iota
	// Swallow logs the error and continues dispatching to the remaining
	// listeners; EmitSerial itself never returns an error under this
	// policy.
	Swallow
)

// Listener receives an event value. A listener that panics is isolated by
// the bus: the panic is recovered and reported as an error, it never
// unwinds into the emitter.
type Listener[T any] func(T) error

// FireAndForgetListener receives an event value with no way to report
// failure. Bus does not take this type: Subscribe, Emit and EmitSerial all
// work with Listener values, and Emit logs and discards their errors and
// panics.
type FireAndForgetListener[T any] func(T)

// Bus is a typed, ordered, single-event-type pub/sub bus. Property and
// object code use one Bus per event kind (beforecov, aftercov, and so on)
// rather than a single bus multiplexing many event types, keeping listener
// signatures concrete.
type Bus[T any] struct {
	mu        sync.Mutex
	listeners []Listener[T]
	logger    *slog.Logger
}

// New creates an empty Bus. A nil logger falls back to slog.Default().
func New[T any](logger *slog.Logger) *Bus[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus[T]{logger: logger}
}

// Subscribe registers a listener and returns an unsubscribe function.
func (b *Bus[T]) Subscribe(l Listener[T]) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
	idx := len(b.listeners) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.listeners) {
			b.listeners[idx] = nil
		}
	}
}

func (b *Bus[T]) snapshot() []Listener[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Listener[T], 0, len(b.listeners))
	for _, l := range b.listeners {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

// Emit dispatches fire-and-forget: every listener runs, in subscription
// order, and both panics and returned errors are logged and discarded. Used
// for aftercov notification, where a failing listener must never undo the
// property write that triggered it; beforecov goes through EmitSerial with
// Rethrow so that a listener can veto the write.
func (b *Bus[T]) Emit(event T) {
	for _, l := range b.snapshot() {
		l := l
		var catcher panics.Catcher
		catcher.Try(func() {
			if err := l(event); err != nil {
				b.logger.Warn("bus listener returned error", "error", err)
			}
		})
		if recovered := catcher.Recovered(); recovered != nil {
			b.logger.Error("bus listener panicked", "panic", recovered.AsError())
		}
	}
}

// EmitSerial dispatches to listeners one at a time, in subscription order,
// applying policy when a listener errors or panics. Under Rethrow the first
// failure stops dispatch and is returned; under Swallow every listener runs
// regardless and EmitSerial always returns nil.
func (b *Bus[T]) EmitSerial(event T, policy ErrorPolicy) error {
	for _, l := range b.snapshot() {
		l := l
		var catcher panics.Catcher
		var callErr error
		catcher.Try(func() {
			callErr = l(event)
		})

		var failure error
		if recovered := catcher.Recovered(); recovered != nil {
			failure = recovered.AsError()
		} else {
			failure = callErr
		}

		if failure == nil {
			continue
		}

		switch policy {
		case Rethrow:
			return failure
		case Swallow:
			b.logger.Warn("bus listener failed, continuing (swallow policy)", "error", failure)
		}
	}
	return nil
}
