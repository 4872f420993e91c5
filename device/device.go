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

// Package device implements the BACnet device object: the specialization
// of object.Object that owns child objects, the COV subscription registry,
// the COV worker, and the service dispatch wired onto a bacnet.Server.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/edgeo-scada/bacnet-device/bacnet"
	"github.com/edgeo-scada/bacnet-device/object"
	"github.com/edgeo-scada/bacnet-device/property"
	"github.com/edgeo-scada/bacnet-device/queue"
	"github.com/edgeo-scada/bacnet-device/value"
)

// MaxInstance is the largest legal BACnet device/object instance number.
const MaxInstance = 4194303

// covNotification is one item of pending work for the COV worker.
type covNotification struct {
	object   *object.Object
	property bacnet.PropertyIdentifier
	values   []value.Value
}

// Device is the root object of this server: it embeds the generic object
// machinery and adds the child registry, subscription registry, COV
// pipeline, maintenance ticker, and transport service dispatch.
type Device struct {
	*object.Object

	cfg    Config
	server *bacnet.Server
	logger *slog.Logger

	mu       sync.RWMutex
	children map[bacnet.ObjectType]map[uint32]*object.Object
	childIDs []bacnet.ObjectIdentifier // insertion order, for OBJECT_LIST

	subs registry

	covQueue *queue.Queue

	databaseRevision atomic.Uint32
	invokeID         atomic.Uint32

	maintenanceCancel context.CancelFunc
	maintenanceDone   chan struct{}
}

// New constructs a Device from cfg and wires its service dispatch onto
// server. The device registers itself as its own first child.
func New(cfg Config, server *bacnet.Server, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Instance = clamp(cfg.Instance, 0, MaxInstance)

	d := &Device{
		Object:   object.New(bacnet.ObjectTypeDevice, cfg.Instance, cfg.Name),
		cfg:      cfg,
		server:   server,
		logger:   logger,
		children: make(map[bacnet.ObjectType]map[uint32]*object.Object),
		subs:     newRegistry(),
		covQueue: queue.New(64),
	}
	d.databaseRevision.Store(cfg.DatabaseRevision)
	d.installRequiredProperties()
	d.mustAddObject(d.Object)
	d.wireServiceDispatch()
	if cfg.BroadcastAddress != "" {
		if ip := net.ParseIP(cfg.BroadcastAddress); ip != nil {
			server.SetBroadcastAddress(ip)
		} else {
			d.logger.Warn("ignoring invalid broadcast address", "address", cfg.BroadcastAddress)
		}
	}
	return d
}

func (d *Device) installRequiredProperties() {
	cfg := d.cfg
	add := func(p *property.Property) {
		if err := d.Object.AddProperty(p); err != nil {
			panic(fmt.Sprintf("device: duplicate required property %s", p.ID()))
		}
	}

	add(property.NewSinglet(bacnet.PropertySystemStatus, value.NewEnumerated(uint32(bacnet.DeviceStatusOperational)), false))
	add(property.NewSinglet(bacnet.PropertyVendorIdentifier, value.NewUnsigned(cfg.VendorIdentifier), false))
	add(property.NewSinglet(bacnet.PropertyVendorName, value.NewCharacterString(cfg.VendorName, value.EncodingUTF8), false))
	add(property.NewSinglet(bacnet.PropertyModelName, value.NewCharacterString(cfg.ModelName, value.EncodingUTF8), false))
	add(property.NewSinglet(bacnet.PropertyFirmwareRevision, value.NewCharacterString(cfg.FirmwareRevision, value.EncodingUTF8), false))
	add(property.NewSinglet(bacnet.PropertyApplicationSoftwareVersion, value.NewCharacterString(cfg.ApplicationSoftwareVersion, value.EncodingUTF8), false))
	add(property.NewSinglet(bacnet.PropertyProtocolVersion, value.NewUnsigned(1), false))
	add(property.NewSinglet(bacnet.PropertyProtocolRevision, value.NewUnsigned(28), false))
	add(property.NewSinglet(bacnet.PropertyProtocolServicesSupported, value.NewBitString(supportedServicesBitstring()), false))
	add(property.NewSinglet(bacnet.PropertyProtocolObjectTypesSupported, value.NewBitString(value.ProtocolObjectTypesSupported(
		bacnet.ObjectTypeDevice,
		bacnet.ObjectTypeAnalogInput,
		bacnet.ObjectTypeAnalogOutput,
		bacnet.ObjectTypeAnalogValue,
		bacnet.ObjectTypeBinaryInput,
		bacnet.ObjectTypeBinaryOutput,
		bacnet.ObjectTypeBinaryValue,
		bacnet.ObjectTypeIntegerValue,
	)), false))
	add(property.NewPolledArray(bacnet.PropertyObjectList, d.objectListGetter))
	add(property.NewPolled(bacnet.PropertyStructuredObjectList, func(property.AccessContext) ([]value.Value, error) { return nil, nil }))
	add(property.NewSinglet(bacnet.PropertySegmentationSupported, value.NewEnumerated(uint32(bacnet.SegmentationNone)), false))
	add(property.NewSinglet(bacnet.PropertyMaxApduLengthAccepted, value.NewUnsigned(cfg.MaxAPDULengthAccepted), false))
	add(property.NewSinglet(bacnet.PropertyApduTimeout, value.NewUnsigned(uint32(cfg.APDUTimeout.Milliseconds())), false))
	add(property.NewSinglet(bacnet.PropertyNumberOfApduRetries, value.NewUnsigned(cfg.APDURetries), false))
	add(property.NewSinglet(bacnet.PropertyApduSegmentTimeout, value.NewUnsigned(uint32(cfg.APDUSegmentTimeout.Milliseconds())), false))
	add(property.NewPolled(bacnet.PropertyDatabaseRevision, func(property.AccessContext) ([]value.Value, error) {
		return []value.Value{value.NewUnsigned(d.databaseRevision.Load())}, nil
	}))
	add(property.NewPolled(bacnet.PropertyDeviceAddressBinding, func(property.AccessContext) ([]value.Value, error) { return nil, nil }))
	add(property.NewPolled(bacnet.PropertyActiveCOVSubscriptions, d.activeCOVSubscriptionsGetter))
	add(property.NewSinglet(bacnet.PropertyLocation, value.NewCharacterString(cfg.Location, value.EncodingUTF8), true))
	add(property.NewSinglet(bacnet.PropertySerialNumber, value.NewCharacterString(cfg.SerialNumber, value.EncodingUTF8), true))
	add(property.NewPolled(bacnet.PropertyUtcOffset, func(access property.AccessContext) ([]value.Value, error) {
		_, offset := access.Date.Zone()
		return []value.Value{value.NewSigned(int32(-offset / 60))}, nil
	}))
	add(property.NewPolled(bacnet.PropertyLocalDate, func(access property.AccessContext) ([]value.Value, error) {
		y, m, dd := access.Date.Date()
		wd := int(access.Date.Weekday())
		if wd == 0 {
			wd = 7
		}
		return []value.Value{value.NewDate(value.Date{Year: y, YearRaw: uint8(y - 1900), Month: uint8(m), Day: uint8(dd), DayOfWeek: uint8(wd)})}, nil
	}))
	add(property.NewPolled(bacnet.PropertyLocalTime, func(access property.AccessContext) ([]value.Value, error) {
		h, m, s := access.Date.Clock()
		return []value.Value{value.NewTime(value.TimeOfDay{Hour: uint8(h), Minute: uint8(m), Second: uint8(s), Hundredths: uint8(access.Date.Nanosecond() / 10000000)})}, nil
	}))
	add(property.NewPolled(bacnet.PropertyDaylightSavingsStatus, func(access property.AccessContext) ([]value.Value, error) {
		return []value.Value{value.NewBoolean(isDaylightSavings(access.Date))}, nil
	}))
}

// supportedServicesBitstring advertises exactly the services this device
// answers: Who-Is/I-Am, ReadProperty, WriteProperty, SubscribeCOV,
// Confirmed-COV-Notification (as both initiator and responder),
// Unconfirmed-COV-Notification, and ReadPropertyMultiple.
func supportedServicesBitstring() value.Bitstring {
	b := value.NewBitstring(64)
	set := func(choice int) { b.Set(choice, true) }
	set(int(bacnet.ServiceConfirmedCOVNotification))
	set(int(bacnet.ServiceSubscribeCOV))
	set(int(bacnet.ServiceReadProperty))
	set(int(bacnet.ServiceReadPropertyMultiple))
	set(int(bacnet.ServiceWriteProperty))
	// Unconfirmed services follow the 26 confirmed ones in the bit string:
	// I-Am is bit 26, Unconfirmed-COV-Notification 28, Who-Is 34.
	set(26 + int(bacnet.ServiceIAm))
	set(26 + int(bacnet.ServiceUnconfirmedCOVNotification))
	set(26 + int(bacnet.ServiceWhoIs))
	return b
}

func (d *Device) objectListGetter(property.AccessContext) ([]value.Value, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]value.Value, len(d.childIDs))
	for i, oid := range d.childIDs {
		out[i] = value.NewObjectIdentifier(oid)
	}
	return out, nil
}

func (d *Device) activeCOVSubscriptionsGetter(property.AccessContext) ([]value.Value, error) {
	d.mu.RLock()
	subs := d.subs.all()
	d.mu.RUnlock()

	now := time.Now()
	out := make([]value.Value, len(subs))
	for i, s := range subs {
		out[i] = value.NewConstructedSequence(encodeActiveCOVSubscription(s, now))
	}
	return out, nil
}

// encodeActiveCOVSubscription builds one ACTIVE_COV_SUBSCRIPTIONS entry
// (BACnetCOVSubscription): the subscriber process id, the monitored
// object/property pair, whether notifications are confirmed, and the
// seconds remaining before the lease expires.
func encodeActiveCOVSubscription(s *Subscription, now time.Time) []byte {
	var buf []byte
	buf = append(buf, bacnet.EncodeOpeningTag(0)...)
	buf = append(buf, bacnet.EncodeContextUnsigned(0, s.SubscriberProcessID)...)
	buf = append(buf, bacnet.EncodeClosingTag(0)...)

	buf = append(buf, bacnet.EncodeOpeningTag(1)...)
	buf = append(buf, bacnet.EncodeContextObjectIdentifier(0, s.MonitoredObjectID)...)
	buf = append(buf, bacnet.EncodeContextEnumerated(1, uint32(s.MonitoredProperty.ID))...)
	buf = append(buf, bacnet.EncodeClosingTag(1)...)

	buf = append(buf, bacnet.EncodeContextBoolean(2, s.IssueConfirmedNotifications)...)
	buf = append(buf, bacnet.EncodeContextUnsigned(3, s.TimeRemaining(now))...)
	return buf
}

func (d *Device) mustAddObject(o *object.Object) {
	if err := d.AddObject(o); err != nil {
		panic(err)
	}
}

// AddObject registers a child object (including, once, the device itself).
// It fails if (type, instance) is already registered.
func (d *Device) AddObject(o *object.Object) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	byInstance, ok := d.children[o.Type()]
	if !ok {
		byInstance = make(map[uint32]*object.Object)
		d.children[o.Type()] = byInstance
	}
	if _, exists := byInstance[o.Instance()]; exists {
		return fmt.Errorf("device: duplicate object identifier %s", o.Identifier())
	}
	byInstance[o.Instance()] = o
	d.childIDs = append(d.childIDs, o.Identifier())

	o.AfterCOV.Subscribe(func(e object.AfterCOVEvent) error {
		d.enqueueCOV(e.Object, e.Property.ID(), []value.Value{e.New})
		return nil
	})

	return nil
}

// ChildObject looks up a child by identifier.
func (d *Device) ChildObject(oid bacnet.ObjectIdentifier) (*object.Object, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	byInstance, ok := d.children[oid.Type]
	if !ok {
		return nil, false
	}
	o, ok := byInstance[oid.Instance]
	return o, ok
}

// NextInvokeID returns the next outbound invoke ID this device should use
// for a confirmed request it originates (currently, only confirmed COV
// notifications).
func (d *Device) NextInvokeID() uint8 {
	return uint8(d.invokeID.Inc() % 256)
}

// Run starts the 1-second maintenance ticker (the COV worker's queue already
// runs from New); it blocks until ctx is canceled.
func (d *Device) Run(ctx context.Context) {
	maintCtx, cancel := context.WithCancel(ctx)
	d.maintenanceCancel = cancel
	d.maintenanceDone = make(chan struct{})
	go d.maintenanceLoop(maintCtx)
	<-ctx.Done()
}

// Stop halts the maintenance ticker, waits for it to exit, and closes the
// COV queue.
func (d *Device) Stop() {
	if d.maintenanceCancel != nil {
		d.maintenanceCancel()
	}
	if d.maintenanceDone != nil {
		<-d.maintenanceDone
	}
	d.covQueue.Close()
}

func (d *Device) maintenanceLoop(ctx context.Context) {
	defer close(d.maintenanceDone)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runMaintenance(time.Now())
		}
	}
}

// runMaintenance sweeps expired subscriptions; tests call it directly with a
// chosen time instead of waiting on the real ticker.
func (d *Device) runMaintenance(now time.Time) {
	d.mu.Lock()
	removed := d.subs.prune(now)
	d.mu.Unlock()

	for _, s := range removed {
		d.logger.Debug("COV subscription expired", "object", s.MonitoredObjectID, "process_id", s.SubscriberProcessID)
	}
}

func (d *Device) enqueueCOV(o *object.Object, propID bacnet.PropertyIdentifier, values []value.Value) {
	n := covNotification{object: o, property: propID, values: values}
	_, err := d.covQueue.Submit(context.Background(), func() (any, error) {
		d.deliverCOV(n)
		return nil, nil
	})
	if err != nil {
		d.logger.Warn("COV queue submission failed", "error", err)
	}
}

func (d *Device) deliverCOV(n covNotification) {
	oid := n.object.Identifier()
	d.mu.RLock()
	set := d.subs.subscriptionsFor(oid)
	subs := make([]*Subscription, 0, len(set))
	for _, s := range set {
		subs = append(subs, s)
	}
	d.mu.RUnlock()

	now := time.Now()
	for _, s := range subs {
		if s.MonitoredProperty.ID != n.property {
			continue
		}
		if !now.Before(s.ExpiresAt) {
			continue
		}
		d.sendCOVNotification(s, n)
	}
}

func (d *Device) sendCOVNotification(s *Subscription, n covNotification) {
	data := encodeCOVNotification(s, d.Identifier(), n)
	var err error
	if s.IssueConfirmedNotifications {
		err = d.server.ConfirmedCOVNotification(s.SubscriberAddress, d.NextInvokeID(), data)
	} else {
		err = d.server.UnconfirmedCOVNotification(s.SubscriberAddress, data)
	}
	s.COVIncrement++
	if err != nil {
		d.logger.Warn("COV notification send failed", "subscriber", s.SubscriberAddress, "error", err)
	}
}

func encodeCOVNotification(s *Subscription, deviceID bacnet.ObjectIdentifier, n covNotification) []byte {
	var buf []byte
	buf = append(buf, bacnet.EncodeContextUnsigned(0, s.SubscriberProcessID)...)
	buf = append(buf, bacnet.EncodeContextObjectIdentifier(1, deviceID)...)
	buf = append(buf, bacnet.EncodeContextObjectIdentifier(2, n.object.Identifier())...)
	buf = append(buf, bacnet.EncodeContextUnsigned(3, s.TimeRemaining(time.Now()))...)

	buf = append(buf, bacnet.EncodeOpeningTag(4)...)
	buf = append(buf, bacnet.EncodeContextEnumerated(0, uint32(n.property))...)
	buf = append(buf, bacnet.EncodeOpeningTag(2)...)
	for _, v := range n.values {
		buf = append(buf, v.Encode()...)
	}
	buf = append(buf, bacnet.EncodeClosingTag(2)...)
	buf = append(buf, bacnet.EncodeClosingTag(4)...)

	return buf
}
