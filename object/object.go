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

// Package object implements the generic BACnet object: a registry of
// properties keyed by identifier, with ReadProperty/WriteProperty/
// ReadPropertyMultiple built over it. Device is a specialization of Object
// built in the sibling device package.
package object

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edgeo-scada/bacnet-device/bacnet"
	"github.com/edgeo-scada/bacnet-device/bus"
	"github.com/edgeo-scada/bacnet-device/property"
	"github.com/edgeo-scada/bacnet-device/queue"
	"github.com/edgeo-scada/bacnet-device/value"
)

// MaxArrayIndex is the BACnet sentinel meaning "the whole array", used both
// in wire property references and in this package's API.
const MaxArrayIndex = 4294967295

// alwaysPresent properties exist on every object and are never listed in
// PROPERTY_LIST.
var alwaysPresentNotListed = map[bacnet.PropertyIdentifier]bool{
	bacnet.PropertyObjectName:       true,
	bacnet.PropertyObjectType:       true,
	bacnet.PropertyObjectIdentifier: true,
	bacnet.PropertyPropertyList:     true,
}

// PropertyRef identifies a property and, for array properties, which
// element within it a request targets.
type PropertyRef struct {
	ID    bacnet.PropertyIdentifier
	Index uint32 // 0 = count (or whole singlet); MaxArrayIndex = whole array
}

// AccessResult is one property's outcome within a ReadPropertyMultiple
// response: either a value or a BACnet error for that property alone.
type AccessResult struct {
	Ref   PropertyRef
	Value []value.Value
	Err   *bacnet.BACnetError
}

// AfterCOVEvent is republished by Object whenever one of its properties
// commits a change, re-framed with the owning object attached so a device
// listening on many objects can tell which one fired.
type AfterCOVEvent struct {
	Object   *Object
	Property *property.Property
	Index    int
	Old      value.Value
	New      value.Value
}

// Object is a registry of properties keyed by identifier, preserving
// insertion order for PROPERTY_LIST.
type Object struct {
	objectType bacnet.ObjectType
	instance   uint32

	order []bacnet.PropertyIdentifier
	props map[bacnet.PropertyIdentifier]*property.Property

	q *queue.Queue

	// AfterCOV republishes every owned property's aftercov as
	// {object, property, value}; the device subscribes here once per child
	// instead of once per property.
	AfterCOV *bus.Bus[AfterCOVEvent]
}

// New constructs an Object with its four always-present properties and the
// common-object defaults (DESCRIPTION, OUT_OF_SERVICE, STATUS_FLAGS,
// EVENT_STATE, RELIABILITY), bound to a freshly started task queue.
func New(objectType bacnet.ObjectType, instance uint32, name string) *Object {
	o := &Object{
		objectType: objectType,
		instance:   instance,
		props:      make(map[bacnet.PropertyIdentifier]*property.Property),
		q:          queue.New(16),
		AfterCOV:   bus.New[AfterCOVEvent](nil),
	}

	oid := bacnet.NewObjectIdentifier(objectType, instance)

	o.addProperty(property.NewSinglet(bacnet.PropertyObjectName, value.NewCharacterString(name, value.EncodingUTF8), false))
	o.addProperty(property.NewSinglet(bacnet.PropertyObjectType, value.NewEnumerated(uint32(objectType)), false))
	o.addProperty(property.NewSinglet(bacnet.PropertyObjectIdentifier, value.NewObjectIdentifier(oid), false))
	o.addProperty(property.NewPolledArray(bacnet.PropertyPropertyList, o.propertyListGetter))

	o.addProperty(property.NewSinglet(bacnet.PropertyDescription, value.NewCharacterString("", value.EncodingUTF8), true))
	o.addProperty(property.NewSinglet(bacnet.PropertyOutOfService, value.NewBoolean(false), true))
	o.addProperty(property.NewSinglet(bacnet.PropertyStatusFlags, value.NewBitString(value.StatusFlags(false, false, false, false)), false))
	o.addProperty(property.NewSinglet(bacnet.PropertyEventState, value.NewEnumerated(uint32(bacnet.EventStateNormal)), false))
	o.addProperty(property.NewSinglet(bacnet.PropertyReliability, value.NewEnumerated(uint32(bacnet.ReliabilityNoFaultDetected)), false))

	return o
}

// Type returns the object's type.
func (o *Object) Type() bacnet.ObjectType { return o.objectType }

// Instance returns the object's instance number.
func (o *Object) Instance() uint32 { return o.instance }

// Identifier returns the object's (type, instance) identifier.
func (o *Object) Identifier() bacnet.ObjectIdentifier {
	return bacnet.NewObjectIdentifier(o.objectType, o.instance)
}

func (o *Object) propertyListGetter(access property.AccessContext) ([]value.Value, error) {
	out := make([]value.Value, 0, len(o.order))
	for _, id := range o.order {
		if alwaysPresentNotListed[id] {
			continue
		}
		out = append(out, value.NewEnumerated(uint32(id)))
	}
	return out, nil
}

// AddProperty registers a new property. It fails if the identifier is
// already present. The property is bound to this object's task queue and
// its aftercov is wired to republish through Object.AfterCOV.
func (o *Object) AddProperty(p *property.Property) error {
	if _, exists := o.props[p.ID()]; exists {
		return fmt.Errorf("object: property %s already registered", p.ID())
	}
	o.addProperty(p)
	return nil
}

// addProperty is the construction-time variant (panics are not possible
// here: callers are this package's own constructors with known-unique IDs).
func (o *Object) addProperty(p *property.Property) {
	p.BindQueue(o.q)
	o.props[p.ID()] = p
	if !alwaysPresentNotListed[p.ID()] {
		o.order = append(o.order, p.ID())
	} else if p.ID() != bacnet.PropertyPropertyList {
		// OBJECT_NAME/TYPE/IDENTIFIER still need stable ordering for
		// internal bookkeeping even though PROPERTY_LIST hides them.
		o.order = append(o.order, p.ID())
	}

	p.AfterCOV().Subscribe(func(e property.COVEvent) error {
		o.AfterCOV.Emit(AfterCOVEvent{Object: o, Property: e.Property, Index: e.Index, Old: e.Old, New: e.New})
		return nil
	})
}

// Property looks up a registered property by identifier.
func (o *Object) Property(id bacnet.PropertyIdentifier) (*property.Property, bool) {
	p, ok := o.props[id]
	return p, ok
}

// ReadProperty reads one property reference, mapping a missing property to
// ErrUnknownProperty.
func (o *Object) ReadProperty(ctx context.Context, ref PropertyRef) ([]value.Value, *bacnet.BACnetError) {
	p, ok := o.props[ref.ID]
	if !ok {
		return nil, bacnet.ErrUnknownProperty()
	}

	access := property.AccessContext{Date: time.Now()}

	switch {
	case p.Kind() == property.KindArray && ref.Index != MaxArrayIndex:
		v, err := p.ReadIndex(ctx, access, int(ref.Index))
		if err != nil {
			return nil, asbacError(err)
		}
		return []value.Value{v}, nil
	default:
		vals, err := p.ReadData(ctx, access)
		if err != nil {
			return nil, asbacError(err)
		}
		return vals, nil
	}
}

// WriteProperty writes one property reference. vals holds a single value
// for a singlet property or an array element write (ref.Index given); it
// holds the whole new list when ref.Index is MaxArrayIndex and the
// property is an array, matching how a BACnet client writes an ARRAY
// property as a whole instead of element by element.
func (o *Object) WriteProperty(ctx context.Context, ref PropertyRef, vals []value.Value) *bacnet.BACnetError {
	p, ok := o.props[ref.ID]
	if !ok {
		return bacnet.ErrUnknownProperty()
	}
	if len(vals) == 0 {
		return bacnet.ErrMissingRequiredParameter()
	}

	if p.Kind() == property.KindArray && ref.Index == MaxArrayIndex {
		if err := p.WriteArray(ctx, vals); err != nil {
			return asbacError(err)
		}
		return nil
	}

	index := 0
	if p.Kind() == property.KindArray {
		index = int(ref.Index)
	}
	if err := p.WriteData(ctx, index, vals[0]); err != nil {
		return asbacError(err)
	}
	return nil
}

// ReadPropertyMultiple reads a batch of property references under a single
// task-queue submission per property so the batch observes each property
// consistently; a lone PropertyAll reference (at any index) expands to every
// registered property, including the ones PROPERTY_LIST leaves out.
// Unknown/omitted properties requested individually are
// simply absent from the result, not reported as errors.
func (o *Object) ReadPropertyMultiple(ctx context.Context, refs []PropertyRef) []AccessResult {
	if len(refs) == 1 && refs[0].ID == bacnet.PropertyAll {
		all := make([]PropertyRef, 0, len(o.props))
		for _, id := range o.listedAndUnlistedOrder() {
			all = append(all, PropertyRef{ID: id, Index: MaxArrayIndex})
		}
		return o.readEach(ctx, all)
	}
	return o.readEach(ctx, refs)
}

// listedAndUnlistedOrder returns every registered property in insertion
// order for RPM's {ALL} expansion: o.order already carries OBJECT_NAME,
// OBJECT_TYPE and OBJECT_IDENTIFIER (added first, in New) even though they
// are excluded from PROPERTY_LIST itself; PROPERTY_LIST is appended last
// since it alone is never walked into o.order.
func (o *Object) listedAndUnlistedOrder() []bacnet.PropertyIdentifier {
	out := make([]bacnet.PropertyIdentifier, 0, len(o.props))
	out = append(out, o.order...)
	out = append(out, bacnet.PropertyPropertyList)
	return out
}

func (o *Object) readEach(ctx context.Context, refs []PropertyRef) []AccessResult {
	out := make([]AccessResult, 0, len(refs))
	for _, ref := range refs {
		if _, ok := o.props[ref.ID]; !ok {
			// Unknown properties within an RPM batch are silently omitted,
			// matching the taught behavior rather than surfacing a
			// per-property access error.
			continue
		}
		vals, err := o.ReadProperty(ctx, ref)
		out = append(out, AccessResult{Ref: PropertyRef{ID: ref.ID, Index: MaxArrayIndex}, Value: vals, Err: err})
	}
	return out
}

func asbacError(err error) *bacnet.BACnetError {
	var bacErr *bacnet.BACnetError
	if errors.As(err, &bacErr) {
		return bacErr
	}
	return bacnet.NewBACnetError(bacnet.ErrorClassDevice, bacnet.ErrorCodeOther)
}
