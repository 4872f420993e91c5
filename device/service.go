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

package device

import (
	"context"
	"net"
	"time"

	"github.com/edgeo-scada/bacnet-device/bacnet"
	"github.com/edgeo-scada/bacnet-device/object"
	"github.com/edgeo-scada/bacnet-device/value"
)

// wireServiceDispatch registers every confirmed and unconfirmed service
// handler this device answers, and declines everything else.
func (d *Device) wireServiceDispatch() {
	d.server.OnConfirmedService(bacnet.ServiceReadProperty, d.handleReadProperty)
	d.server.OnConfirmedService(bacnet.ServiceReadPropertyMultiple, d.handleReadPropertyMultiple)
	d.server.OnConfirmedService(bacnet.ServiceWriteProperty, d.handleWriteProperty)
	d.server.OnConfirmedService(bacnet.ServiceSubscribeCOV, d.handleSubscribeCOV)
	d.server.OnUnhandledConfirmedService(d.handleUnsupportedConfirmed)

	d.server.OnUnconfirmedService(bacnet.ServiceWhoIs, d.handleWhoIs)
	d.server.OnUnconfirmedService(bacnet.ServiceIHave, func(*net.UDPAddr, bacnet.UnconfirmedServiceChoice, []byte) {})
}

func (d *Device) handleUnsupportedConfirmed(addr *net.UDPAddr, invokeID uint8, service bacnet.ConfirmedServiceChoice, _ []byte) {
	_ = d.server.ErrorResponse(addr, invokeID, service, bacnet.ErrServiceDenied())
}

// --- Who-Is / I-Am ---------------------------------------------------------

func (d *Device) handleWhoIs(addr *net.UDPAddr, _ bacnet.UnconfirmedServiceChoice, data []byte) {
	low, high, ok := decodeWhoIsRange(data)
	if ok {
		instance := d.Instance()
		if instance < low || instance > high {
			return
		}
	}
	d.sendIAm()
}

func decodeWhoIsRange(data []byte) (low, high uint32, ok bool) {
	l, rest, lok := tryDecodeContextUnsigned(data, 0)
	if !lok {
		return 0, 0, false
	}
	h, _, hok := tryDecodeContextUnsigned(rest, 1)
	if !hok {
		return 0, 0, false
	}
	return l, h, true
}

func (d *Device) sendIAm() {
	var buf []byte
	buf = append(buf, bacnet.EncodeObjectIdentifierTag(d.Identifier())...)
	buf = append(buf, bacnet.EncodeUnsignedTag(d.cfg.MaxAPDULengthAccepted)...)
	buf = append(buf, bacnet.EncodeEnumeratedTag(uint32(bacnet.SegmentationNone))...)
	buf = append(buf, bacnet.EncodeUnsignedTag(d.cfg.VendorIdentifier)...)
	if err := d.server.IAmResponse(d.cfg.Port, buf); err != nil {
		d.logger.Warn("failed to send I-Am", "error", err)
	}
}

// --- ReadProperty ------------------------------------------------------------

func (d *Device) handleReadProperty(addr *net.UDPAddr, invokeID uint8, service bacnet.ConfirmedServiceChoice, data []byte) {
	oid, ref, err := decodeReadPropertyRequest(data)
	if err != nil {
		_ = d.server.ErrorResponse(addr, invokeID, service, bacnet.ErrInvalidDataType())
		return
	}

	obj, ok := d.ChildObject(oid)
	if !ok {
		_ = d.server.ErrorResponse(addr, invokeID, service, bacnet.ErrUnknownObject())
		return
	}

	vals, berr := obj.ReadProperty(context.Background(), ref)
	if berr != nil {
		_ = d.server.ErrorResponse(addr, invokeID, service, berr)
		return
	}

	resp := encodeReadPropertyAck(oid, ref, vals)
	if err := d.server.ReadPropertyResponse(addr, invokeID, resp); err != nil {
		d.logger.Warn("failed to send ReadProperty ack", "error", err)
	}
}

func decodeReadPropertyRequest(data []byte) (bacnet.ObjectIdentifier, object.PropertyRef, error) {
	oid, rest, err := decodeContextObjectIdentifier(data, 0)
	if err != nil {
		return bacnet.ObjectIdentifier{}, object.PropertyRef{}, err
	}
	propID, rest, err := decodeContextEnumerated(rest, 1)
	if err != nil {
		return bacnet.ObjectIdentifier{}, object.PropertyRef{}, err
	}
	ref := object.PropertyRef{ID: bacnet.PropertyIdentifier(propID), Index: object.MaxArrayIndex}
	if idx, _, ok := tryDecodeContextUnsigned(rest, 2); ok {
		ref.Index = idx
	}
	return oid, ref, nil
}

func encodeReadPropertyAck(oid bacnet.ObjectIdentifier, ref object.PropertyRef, vals []value.Value) []byte {
	var buf []byte
	buf = append(buf, bacnet.EncodeContextObjectIdentifier(0, oid)...)
	buf = append(buf, bacnet.EncodeContextEnumerated(1, uint32(ref.ID))...)
	if ref.Index != object.MaxArrayIndex {
		buf = append(buf, bacnet.EncodeContextUnsigned(2, ref.Index)...)
	}
	buf = append(buf, bacnet.EncodeOpeningTag(3)...)
	for _, v := range vals {
		buf = append(buf, v.Encode()...)
	}
	buf = append(buf, bacnet.EncodeClosingTag(3)...)
	return buf
}

// --- WriteProperty -----------------------------------------------------------

func (d *Device) handleWriteProperty(addr *net.UDPAddr, invokeID uint8, service bacnet.ConfirmedServiceChoice, data []byte) {
	oid, ref, vals, hasValue, err := decodeWritePropertyRequest(data)
	if err != nil {
		_ = d.server.ErrorResponse(addr, invokeID, service, bacnet.ErrInvalidDataType())
		return
	}
	if !hasValue {
		_ = d.server.ErrorResponse(addr, invokeID, service, bacnet.ErrMissingRequiredParameter())
		return
	}

	obj, ok := d.ChildObject(oid)
	if !ok {
		_ = d.server.ErrorResponse(addr, invokeID, service, bacnet.ErrUnknownObject())
		return
	}

	if berr := obj.WriteProperty(context.Background(), ref, vals); berr != nil {
		_ = d.server.ErrorResponse(addr, invokeID, service, berr)
		return
	}

	if err := d.server.WritePropertyAck(addr, invokeID); err != nil {
		d.logger.Warn("failed to send WriteProperty ack", "error", err)
	}
}

// decodeWritePropertyRequest decodes a WriteProperty request. vals holds
// every application-tagged value found inside propertyValue: one for a
// singlet or single-indexed-element write, or the whole new list when the
// client wrote an ARRAY property without an index.
func decodeWritePropertyRequest(data []byte) (bacnet.ObjectIdentifier, object.PropertyRef, []value.Value, bool, error) {
	oid, rest, err := decodeContextObjectIdentifier(data, 0)
	if err != nil {
		return bacnet.ObjectIdentifier{}, object.PropertyRef{}, nil, false, err
	}
	propID, rest, err := decodeContextEnumerated(rest, 1)
	if err != nil {
		return bacnet.ObjectIdentifier{}, object.PropertyRef{}, nil, false, err
	}
	ref := object.PropertyRef{ID: bacnet.PropertyIdentifier(propID), Index: object.MaxArrayIndex}
	if idx, r2, ok := tryDecodeContextUnsigned(rest, 2); ok {
		ref.Index = idx
		rest = r2
	}

	opened, body, _, ok := tryUnwrapOpeningTag(rest, 3)
	if !ok || !opened {
		return oid, ref, nil, false, nil
	}
	vals, err := decodeApplicationValues(body)
	if err != nil {
		return oid, ref, nil, false, err
	}
	if len(vals) == 0 {
		return oid, ref, nil, false, nil
	}
	return oid, ref, vals, true, nil
}

// --- ReadPropertyMultiple -----------------------------------------------------

func (d *Device) handleReadPropertyMultiple(addr *net.UDPAddr, invokeID uint8, service bacnet.ConfirmedServiceChoice, data []byte) {
	specs, err := decodeRPMRequest(data)
	if err != nil {
		_ = d.server.ErrorResponse(addr, invokeID, service, bacnet.ErrInvalidDataType())
		return
	}

	var buf []byte
	for _, spec := range specs {
		obj, ok := d.ChildObject(spec.oid)
		buf = append(buf, bacnet.EncodeContextObjectIdentifier(0, spec.oid)...)
		buf = append(buf, bacnet.EncodeOpeningTag(1)...)
		if !ok {
			buf = append(buf, encodeRPMError(spec.refs, bacnet.ErrUnknownObject())...)
		} else {
			results := obj.ReadPropertyMultiple(context.Background(), spec.refs)
			buf = append(buf, encodeRPMResults(results)...)
		}
		buf = append(buf, bacnet.EncodeClosingTag(1)...)
	}

	if err := d.server.ReadPropertyMultipleResponse(addr, invokeID, buf); err != nil {
		d.logger.Warn("failed to send ReadPropertyMultiple ack", "error", err)
	}
}

type rpmSpec struct {
	oid  bacnet.ObjectIdentifier
	refs []object.PropertyRef
}

func decodeRPMRequest(data []byte) ([]rpmSpec, error) {
	var specs []rpmSpec
	rest := data
	for len(rest) > 0 {
		oid, r, err := decodeContextObjectIdentifier(rest, 0)
		if err != nil {
			return nil, err
		}
		rest = r

		opened, body, after, ok := tryUnwrapOpeningTag(rest, 1)
		if !ok || !opened {
			return nil, bacnet.ErrInvalidAPDU
		}
		rest = after

		var refs []object.PropertyRef
		b := body
		for len(b) > 0 {
			propID, b2, err := decodeContextEnumerated(b, 0)
			if err != nil {
				break
			}
			ref := object.PropertyRef{ID: bacnet.PropertyIdentifier(propID), Index: object.MaxArrayIndex}
			if idx, b3, ok := tryDecodeContextUnsigned(b2, 1); ok {
				ref.Index = idx
				b2 = b3
			}
			refs = append(refs, ref)
			b = b2
		}
		specs = append(specs, rpmSpec{oid: oid, refs: refs})
	}
	return specs, nil
}

func encodeRPMResults(results []object.AccessResult) []byte {
	var buf []byte
	for _, r := range results {
		buf = append(buf, bacnet.EncodeContextEnumerated(2, uint32(r.Ref.ID))...)
		if r.Ref.Index != object.MaxArrayIndex {
			buf = append(buf, bacnet.EncodeContextUnsigned(3, r.Ref.Index)...)
		}
		if r.Err != nil {
			buf = append(buf, bacnet.EncodeOpeningTag(5)...)
			buf = append(buf, bacnet.EncodeEnumeratedTag(uint32(r.Err.Class))...)
			buf = append(buf, bacnet.EncodeEnumeratedTag(uint32(r.Err.Code))...)
			buf = append(buf, bacnet.EncodeClosingTag(5)...)
			continue
		}
		buf = append(buf, bacnet.EncodeOpeningTag(4)...)
		for _, v := range r.Value {
			buf = append(buf, v.Encode()...)
		}
		buf = append(buf, bacnet.EncodeClosingTag(4)...)
	}
	return buf
}

func encodeRPMError(refs []object.PropertyRef, berr *bacnet.BACnetError) []byte {
	var buf []byte
	for _, ref := range refs {
		buf = append(buf, bacnet.EncodeContextEnumerated(2, uint32(ref.ID))...)
		buf = append(buf, bacnet.EncodeOpeningTag(5)...)
		buf = append(buf, bacnet.EncodeEnumeratedTag(uint32(berr.Class))...)
		buf = append(buf, bacnet.EncodeEnumeratedTag(uint32(berr.Code))...)
		buf = append(buf, bacnet.EncodeClosingTag(5)...)
	}
	return buf
}

// --- SubscribeCOV --------------------------------------------------------------

const defaultCOVLifetime = 300 * time.Second

func (d *Device) handleSubscribeCOV(addr *net.UDPAddr, invokeID uint8, service bacnet.ConfirmedServiceChoice, data []byte) {
	processID, oid, confirmed, lifetime, hasLifetime, err := decodeSubscribeCOVRequest(data)
	if err != nil {
		_ = d.server.ErrorResponse(addr, invokeID, service, bacnet.ErrInvalidDataType())
		return
	}

	obj, ok := d.ChildObject(oid)
	if !ok {
		_ = d.server.ErrorResponse(addr, invokeID, service, bacnet.ErrCOVSubscriptionFailed())
		return
	}
	presentValue, pvOK := obj.Property(bacnet.PropertyPresentValue)
	if !pvOK {
		_ = d.server.ErrorResponse(addr, invokeID, service, bacnet.ErrCOVSubscriptionFailed())
		return
	}

	ttl := defaultCOVLifetime
	if hasLifetime {
		ttl = time.Duration(lifetime) * time.Second
	}

	d.mu.Lock()
	set := d.subs.setFor(oid)
	key := keyOf(addr, processID)
	set[key] = &Subscription{
		SubscriberProcessID:          processID,
		MonitoredObjectID:            oid,
		MonitoredProperty:            object.PropertyRef{ID: presentValue.ID(), Index: object.MaxArrayIndex},
		SubscriberAddress:            addr,
		IssueConfirmedNotifications:  confirmed,
		ExpiresAt:                    time.Now().Add(ttl),
		lifetimeSeconds:              lifetime,
	}
	d.mu.Unlock()

	if err := d.server.SimpleAckResponse(addr, invokeID, service); err != nil {
		d.logger.Warn("failed to send SubscribeCOV ack", "error", err)
	}

	vals, berr := obj.ReadProperty(context.Background(), object.PropertyRef{ID: presentValue.ID(), Index: object.MaxArrayIndex})
	if berr == nil {
		d.enqueueCOV(obj, presentValue.ID(), vals)
	}
}

func decodeSubscribeCOVRequest(data []byte) (processID uint32, oid bacnet.ObjectIdentifier, confirmed bool, lifetime uint32, hasLifetime bool, err error) {
	processID, rest, err := decodeContextUnsigned(data, 0)
	if err != nil {
		return 0, bacnet.ObjectIdentifier{}, false, 0, false, err
	}
	oid, rest, err = decodeContextObjectIdentifier(rest, 1)
	if err != nil {
		return 0, bacnet.ObjectIdentifier{}, false, 0, false, err
	}
	confirmed = true
	if b, r2, ok := tryDecodeContextBoolean(rest, 2); ok {
		confirmed = b
		rest = r2
	}
	if l, _, ok := tryDecodeContextUnsigned(rest, 3); ok {
		return processID, oid, confirmed, l, true, nil
	}
	return processID, oid, confirmed, 0, false, nil
}
