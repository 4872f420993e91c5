package device

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/bacnet-device/bacnet"
	"github.com/edgeo-scada/bacnet-device/object"
	"github.com/edgeo-scada/bacnet-device/objects"
	"github.com/edgeo-scada/bacnet-device/property"
	"github.com/edgeo-scada/bacnet-device/queue"
	"github.com/edgeo-scada/bacnet-device/value"
)

func TestDecodeWhoIsRangeAbsent(t *testing.T) {
	_, _, ok := decodeWhoIsRange(nil)
	require.False(t, ok)
}

func TestDecodeWhoIsRangePresent(t *testing.T) {
	var data []byte
	data = append(data, bacnet.EncodeContextUnsigned(0, 10)...)
	data = append(data, bacnet.EncodeContextUnsigned(1, 20)...)

	low, high, ok := decodeWhoIsRange(data)
	require.True(t, ok)
	require.Equal(t, uint32(10), low)
	require.Equal(t, uint32(20), high)
}

func TestDecodeReadPropertyRequest(t *testing.T) {
	oid := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)
	var data []byte
	data = append(data, bacnet.EncodeContextObjectIdentifier(0, oid)...)
	data = append(data, bacnet.EncodeContextEnumerated(1, uint32(bacnet.PropertyPresentValue))...)

	gotOID, ref, err := decodeReadPropertyRequest(data)
	require.NoError(t, err)
	require.Equal(t, oid, gotOID)
	require.Equal(t, bacnet.PropertyPresentValue, ref.ID)
	require.Equal(t, uint32(object.MaxArrayIndex), ref.Index)
}

func TestDecodeWritePropertyRequestWithValue(t *testing.T) {
	oid := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogValue, 1)
	var data []byte
	data = append(data, bacnet.EncodeContextObjectIdentifier(0, oid)...)
	data = append(data, bacnet.EncodeContextEnumerated(1, uint32(bacnet.PropertyPresentValue))...)
	data = append(data, bacnet.EncodeOpeningTag(3)...)
	data = append(data, value.NewReal(21.5).Encode()...)
	data = append(data, bacnet.EncodeClosingTag(3)...)

	gotOID, ref, vals, hasValue, err := decodeWritePropertyRequest(data)
	require.NoError(t, err)
	require.True(t, hasValue)
	require.Equal(t, oid, gotOID)
	require.Equal(t, bacnet.PropertyPresentValue, ref.ID)
	require.Len(t, vals, 1)
	got, ok := vals[0].Real()
	require.True(t, ok)
	require.Equal(t, float32(21.5), got)
}

func TestDecodeWritePropertyRequestWholeArray(t *testing.T) {
	oid := bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 1)
	var data []byte
	data = append(data, bacnet.EncodeContextObjectIdentifier(0, oid)...)
	data = append(data, bacnet.EncodeContextEnumerated(1, uint32(bacnet.PropertyPropertyList))...)
	data = append(data, bacnet.EncodeOpeningTag(3)...)
	data = append(data, value.NewEnumerated(1).Encode()...)
	data = append(data, value.NewEnumerated(2).Encode()...)
	data = append(data, value.NewEnumerated(3).Encode()...)
	data = append(data, bacnet.EncodeClosingTag(3)...)

	_, ref, vals, hasValue, err := decodeWritePropertyRequest(data)
	require.NoError(t, err)
	require.True(t, hasValue)
	require.Equal(t, uint32(object.MaxArrayIndex), ref.Index)
	require.Len(t, vals, 3)
}

func TestDecodeWritePropertyRequestMissingValue(t *testing.T) {
	oid := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogValue, 1)
	var data []byte
	data = append(data, bacnet.EncodeContextObjectIdentifier(0, oid)...)
	data = append(data, bacnet.EncodeContextEnumerated(1, uint32(bacnet.PropertyPresentValue))...)

	_, _, _, hasValue, err := decodeWritePropertyRequest(data)
	require.NoError(t, err)
	require.False(t, hasValue)
}

func TestArrayPropertyWholeListReplace(t *testing.T) {
	p := property.NewArray(bacnet.PropertyPriorityArray, []value.Value{value.NewReal(1), value.NewReal(2)}, true)
	p.BindQueue(queue.New(4))

	err := p.WriteArray(context.Background(), []value.Value{value.NewReal(9), value.NewReal(8), value.NewReal(7)})
	require.NoError(t, err)

	count, err := p.ReadIndex(context.Background(), property.AccessContext{}, 0)
	require.NoError(t, err)
	n, ok := count.Unsigned()
	require.True(t, ok)
	require.Equal(t, uint32(3), n)

	third, err := p.ReadIndex(context.Background(), property.AccessContext{}, 3)
	require.NoError(t, err)
	got, ok := third.Real()
	require.True(t, ok)
	require.Equal(t, float32(7), got)
}

func TestHandleSubscribeCOVCreatesSubscription(t *testing.T) {
	d := testDevice(t)
	ai := objects.NewAnalogInput(1, "ai-1")
	require.NoError(t, d.AddObject(ai))
	oid := ai.Identifier()

	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 47808}

	var data []byte
	data = append(data, bacnet.EncodeContextUnsigned(0, 7)...)
	data = append(data, bacnet.EncodeContextObjectIdentifier(1, oid)...)
	data = append(data, bacnet.EncodeContextBoolean(2, false)...)
	data = append(data, bacnet.EncodeContextUnsigned(3, 120)...)

	d.handleSubscribeCOV(addr, 1, bacnet.ServiceSubscribeCOV, data)

	d.mu.RLock()
	set := d.subs.subscriptionsFor(oid)
	d.mu.RUnlock()
	require.Len(t, set, 1)
	for _, s := range set {
		require.Equal(t, uint32(7), s.SubscriberProcessID)
		require.False(t, s.IssueConfirmedNotifications)
	}
}

func TestChildWritePropertyDeniedOnReadOnlyPresentValue(t *testing.T) {
	d := testDevice(t)
	ai := objects.NewAnalogInput(1, "ai-1")
	require.NoError(t, d.AddObject(ai))

	berr := ai.WriteProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyPresentValue}, []value.Value{value.NewReal(1)})
	require.NotNil(t, berr)
	require.Equal(t, bacnet.ErrorCodeWriteAccessDenied, berr.Code)
}
