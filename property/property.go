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

// Package property implements the readable/writable BACnet property: the
// unit an Object is built out of. A Property owns either a single value or
// an indexed array of values, knows whether it is writable, and fires
// beforecov/aftercov events around any change so COV subscriptions and
// derived properties (STATUS_FLAGS, and so on) can react.
package property

import (
	"context"
	"time"

	"github.com/edgeo-scada/bacnet-device/bacnet"
	"github.com/edgeo-scada/bacnet-device/bus"
	"github.com/edgeo-scada/bacnet-device/queue"
	"github.com/edgeo-scada/bacnet-device/value"
)

// Kind distinguishes a singlet (one value) property from an array property
// (an indexed list of values, plus index 0 reporting the element count).
type Kind int

const (
	KindSinglet Kind = iota
	KindArray
)

// AccessContext carries the ambient information a polled getter may need —
// currently just the wall-clock date used by LOCAL_DATE/LOCAL_TIME-derived
// properties — without forcing every getter to take a context.Context and
// thread time.Now() through unrelated code.
type AccessContext struct {
	Date time.Time
}

// COVEvent is published to the beforecov/aftercov buses around a value
// change. Old is the zero value.Value for a singlet property's very first
// write.
type COVEvent struct {
	Property *Property
	Index    int // 0 for singlets, or the changed array index (1-based)
	Old      value.Value
	New      value.Value
}

// Getter produces a property's current value(s) on demand, used for
// properties backed by a computation or external state (ACTIVE_COV_SUBSCRIPTIONS,
// LOCAL_TIME, and the like) instead of an owned value.
type Getter func(ctx AccessContext) ([]value.Value, error)

// Property is a single named property slot on an Object.
type Property struct {
	id       bacnet.PropertyIdentifier
	kind     Kind
	writable bool

	// Owned storage, used when get is nil.
	values []value.Value

	// Polled storage; mutually exclusive with owned values.
	get Getter

	beforeCOV *bus.Bus[COVEvent]
	afterCOV  *bus.Bus[COVEvent]

	q *queue.Queue
}

// NewSinglet creates a writable or read-only singlet property with an
// owned initial value.
func NewSinglet(id bacnet.PropertyIdentifier, initial value.Value, writable bool) *Property {
	return &Property{
		id:        id,
		kind:      KindSinglet,
		writable:  writable,
		values:    []value.Value{initial},
		beforeCOV: bus.New[COVEvent](nil),
		afterCOV:  bus.New[COVEvent](nil),
	}
}

// NewArray creates a writable or read-only array property with owned
// initial elements (1-indexed on the wire; index 0 is the synthesized
// element count).
func NewArray(id bacnet.PropertyIdentifier, initial []value.Value, writable bool) *Property {
	return &Property{
		id:        id,
		kind:      KindArray,
		writable:  writable,
		values:    append([]value.Value(nil), initial...),
		beforeCOV: bus.New[COVEvent](nil),
		afterCOV:  bus.New[COVEvent](nil),
	}
}

// NewPolled creates a read-only singlet property computed by get on every
// read; it has no owned storage and can never be written.
func NewPolled(id bacnet.PropertyIdentifier, get Getter) *Property {
	return &Property{
		id:        id,
		kind:      KindSinglet,
		writable:  false,
		get:       get,
		beforeCOV: bus.New[COVEvent](nil),
		afterCOV:  bus.New[COVEvent](nil),
	}
}

// NewPolledArray creates a read-only array property computed by get on
// every read — PROPERTY_LIST and OBJECT_LIST are both built this way, so
// ReadIndex(0) returns the element count and ReadIndex(i) one element,
// exactly as a stored array property does.
func NewPolledArray(id bacnet.PropertyIdentifier, get Getter) *Property {
	return &Property{
		id:        id,
		kind:      KindArray,
		writable:  false,
		get:       get,
		beforeCOV: bus.New[COVEvent](nil),
		afterCOV:  bus.New[COVEvent](nil),
	}
}

// ID returns the property identifier.
func (p *Property) ID() bacnet.PropertyIdentifier { return p.id }

// Kind returns whether this is a singlet or array property.
func (p *Property) Kind() Kind { return p.kind }

// Writable reports whether WriteProperty may target this property.
func (p *Property) Writable() bool { return p.writable }

// BeforeCOV returns the bus fired synchronously before a value change is
// committed; a listener returning an error vetoes the write.
func (p *Property) BeforeCOV() *bus.Bus[COVEvent] { return p.beforeCOV }

// AfterCOV returns the bus fired after a value change has committed.
// Listener failures here are always logged-and-swallowed: the write has
// already happened and cannot be undone by a failing notification.
func (p *Property) AfterCOV() *bus.Bus[COVEvent] { return p.afterCOV }

// BindQueue ties this property's mutations to q. Object.addProperty calls
// this when a property is registered; until it has been called,
// ReadData/WriteData reject all access — a property mutated off its owning
// object's queue would break the single-consumer ordering guarantee the
// whole core depends on.
func (p *Property) BindQueue(q *queue.Queue) {
	p.q = q
}

// ReadData reads the whole property (index 0: no array index given).
func (p *Property) ReadData(ctx context.Context, access AccessContext) ([]value.Value, error) {
	if p.q == nil {
		return nil, bacnet.ErrUnknownProperty()
	}
	v, err := p.q.Submit(ctx, func() (any, error) {
		return p.readLocked(access)
	})
	if err != nil {
		return nil, err
	}
	return v.([]value.Value), nil
}

// ReadIndex reads one element of an array property. index is 1-based;
// index 0 reads the element count as a TagUnsigned value.
func (p *Property) ReadIndex(ctx context.Context, access AccessContext, index int) (value.Value, error) {
	if p.q == nil {
		return value.Value{}, bacnet.ErrUnknownProperty()
	}
	v, err := p.q.Submit(ctx, func() (any, error) {
		if p.kind != KindArray {
			return nil, bacnet.ErrPropertyIsNotAnArray()
		}
		vals, err := p.readLocked(access)
		if err != nil {
			return nil, err
		}
		if index == 0 {
			return value.NewUnsigned(uint32(len(vals))), nil
		}
		if index < 1 || index > len(vals) {
			return nil, bacnet.ErrInvalidArrayIndex()
		}
		return vals[index-1], nil
	})
	if err != nil {
		return value.Value{}, err
	}
	return v.(value.Value), nil
}

func (p *Property) readLocked(access AccessContext) ([]value.Value, error) {
	if p.get != nil {
		return p.get(access)
	}
	out := make([]value.Value, len(p.values))
	copy(out, p.values)
	return out, nil
}

// WriteData replaces the whole singlet value, or one element (1-based
// index) of an array property. It never changes an array's length; use
// WriteArray to replace an array property's contents as a whole.
func (p *Property) WriteData(ctx context.Context, index int, newValue value.Value) error {
	if p.q == nil {
		return bacnet.ErrUnknownProperty()
	}
	_, err := p.q.Submit(ctx, func() (any, error) {
		return nil, p.writeLocked(index, newValue)
	})
	return err
}

func (p *Property) writeLocked(index int, newValue value.Value) error {
	if !p.writable {
		return bacnet.ErrWriteAccessDenied()
	}
	if p.get != nil {
		// A polled property is never writable, but guard anyway in case a
		// future preset mistakenly marks one so.
		return bacnet.ErrWriteAccessDenied()
	}

	if p.kind == KindSinglet {
		old := value.NewNull()
		if len(p.values) > 0 {
			old = p.values[0]
		}
		if err := p.fireBeforeCOV(0, old, newValue); err != nil {
			return err
		}
		p.values = []value.Value{newValue}
		p.fireAfterCOV(0, old, newValue)
		return nil
	}

	// Array property: a single indexed element write. index 0 (the element
	// count) is never writable this way — use WriteArray to replace the
	// whole list.
	if index < 1 || index > len(p.values) {
		return bacnet.ErrInvalidArrayIndex()
	}

	old := p.values[index-1]
	if err := p.fireBeforeCOV(index, old, newValue); err != nil {
		return err
	}
	p.values[index-1] = newValue
	p.fireAfterCOV(index, old, newValue)
	return nil
}

// WriteArray replaces an array property's entire contents with vals. Unlike
// WriteData, the new list may have a different length than the current
// one — this is how a BACnet client writes an ARRAY property without an
// index, and the property may grow or shrink as a result.
func (p *Property) WriteArray(ctx context.Context, vals []value.Value) error {
	if p.q == nil {
		return bacnet.ErrUnknownProperty()
	}
	_, err := p.q.Submit(ctx, func() (any, error) {
		return nil, p.writeArrayLocked(vals)
	})
	return err
}

func (p *Property) writeArrayLocked(vals []value.Value) error {
	if !p.writable {
		return bacnet.ErrWriteAccessDenied()
	}
	if p.get != nil {
		return bacnet.ErrWriteAccessDenied()
	}
	if p.kind != KindArray {
		return bacnet.ErrPropertyIsNotAnArray()
	}

	old := value.NewNull()
	if len(p.values) > 0 {
		old = p.values[0]
	}
	newCount := value.NewUnsigned(uint32(len(vals)))
	if err := p.fireBeforeCOV(0, old, newCount); err != nil {
		return err
	}
	p.values = append([]value.Value(nil), vals...)
	p.fireAfterCOV(0, old, newCount)
	return nil
}

func (p *Property) fireBeforeCOV(index int, old, newValue value.Value) error {
	return p.beforeCOV.EmitSerial(COVEvent{Property: p, Index: index, Old: old, New: newValue}, bus.Rethrow)
}

func (p *Property) fireAfterCOV(index int, old, newValue value.Value) {
	p.afterCOV.Emit(COVEvent{Property: p, Index: index, Old: old, New: newValue})
}
