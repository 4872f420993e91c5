package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/bacnet-device/bacnet"
	"github.com/edgeo-scada/bacnet-device/object"
	"github.com/edgeo-scada/bacnet-device/objects"
)

func testDevice(t *testing.T) *Device {
	t.Helper()
	cfg := DefaultConfig(10, "test-device")
	cfg.VendorName = "Acme"
	cfg.ModelName = "Simulator"
	server := bacnet.NewServer("127.0.0.1:0", nil)
	return New(cfg, server, nil)
}

func TestNewDeviceRegistersItself(t *testing.T) {
	d := testDevice(t)

	vals, err := d.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyObjectName, Index: object.MaxArrayIndex})
	require.Nil(t, err)
	name, _, ok := vals[0].CharacterString()
	require.True(t, ok)
	require.Equal(t, "test-device", name)

	obj, ok := d.ChildObject(d.Identifier())
	require.True(t, ok)
	require.Same(t, d.Object, obj)
}

func TestDeviceProtocolProperties(t *testing.T) {
	d := testDevice(t)

	vals, err := d.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyProtocolVersion, Index: object.MaxArrayIndex})
	require.Nil(t, err)
	v, _ := vals[0].Unsigned()
	require.Equal(t, uint32(1), v)

	vals, err = d.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyVendorName, Index: object.MaxArrayIndex})
	require.Nil(t, err)
	vendor, _, _ := vals[0].CharacterString()
	require.Equal(t, "Acme", vendor)
}

func TestAddObjectAppearsInObjectList(t *testing.T) {
	d := testDevice(t)
	ai := objects.NewAnalogInput(1, "ai-1")
	require.NoError(t, d.AddObject(ai))

	obj, ok := d.ChildObject(ai.Identifier())
	require.True(t, ok)
	require.Same(t, ai, obj)

	vals, err := d.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyObjectList, Index: object.MaxArrayIndex})
	require.Nil(t, err)
	require.Len(t, vals, 2) // the device itself, plus ai-1

	found := false
	for _, v := range vals {
		oid, ok := v.ObjectIdentifier()
		require.True(t, ok)
		if oid == ai.Identifier() {
			found = true
		}
	}
	require.True(t, found)
}

func TestObjectListIsIndexable(t *testing.T) {
	d := testDevice(t)
	ai := objects.NewAnalogInput(1, "ai-1")
	require.NoError(t, d.AddObject(ai))

	countVals, err := d.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyObjectList, Index: 0})
	require.Nil(t, err)
	count, ok := countVals[0].Unsigned()
	require.True(t, ok)
	require.Equal(t, uint32(2), count)

	elemVals, err := d.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyObjectList, Index: 1})
	require.Nil(t, err)
	require.Len(t, elemVals, 1)
	_, ok = elemVals[0].ObjectIdentifier()
	require.True(t, ok, "element 1 of OBJECT_LIST must be a single object identifier, not the whole list")
}

func TestAddObjectDuplicateFails(t *testing.T) {
	d := testDevice(t)
	ai := objects.NewAnalogInput(1, "ai-1")
	require.NoError(t, d.AddObject(ai))
	require.Error(t, d.AddObject(objects.NewAnalogInput(1, "ai-1-dup")))
}

func TestUnknownObjectReadFails(t *testing.T) {
	d := testDevice(t)
	_, ok := d.ChildObject(bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 999))
	require.False(t, ok)
}

func TestActiveCOVSubscriptionsOneEntryPerSubscription(t *testing.T) {
	d := testDevice(t)
	ai := objects.NewAnalogInput(1, "ai-1")
	require.NoError(t, d.AddObject(ai))
	oid := ai.Identifier()

	d.mu.Lock()
	set := d.subs.setFor(oid)
	set[subscriptionKey{addr: "10.0.0.5:47808", processID: 1}] = &Subscription{
		SubscriberProcessID: 1,
		MonitoredObjectID:   oid,
		MonitoredProperty:   object.PropertyRef{ID: bacnet.PropertyPresentValue},
		ExpiresAt:           time.Now().Add(time.Hour),
	}
	set[subscriptionKey{addr: "10.0.0.6:47808", processID: 2}] = &Subscription{
		SubscriberProcessID: 2,
		MonitoredObjectID:   oid,
		MonitoredProperty:   object.PropertyRef{ID: bacnet.PropertyPresentValue},
		ExpiresAt:           time.Now().Add(time.Hour),
	}
	d.mu.Unlock()

	vals, err := d.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyActiveCOVSubscriptions, Index: object.MaxArrayIndex})
	require.Nil(t, err)
	require.Len(t, vals, 2, "one entry per active subscription, not a collapsed count")
	for _, v := range vals {
		require.NotEmpty(t, v.Encode(), "each entry must carry its own encoded constructed sequence")
	}
}

func TestRunMaintenanceExpiresSubscriptions(t *testing.T) {
	d := testDevice(t)
	ai := objects.NewAnalogInput(1, "ai-1")
	require.NoError(t, d.AddObject(ai))

	oid := ai.Identifier()
	now := time.Now()
	past := now.Add(-time.Hour)

	d.mu.Lock()
	set := d.subs.setFor(oid)
	set[subscriptionKey{addr: "10.0.0.5:47808", processID: 1}] = &Subscription{
		SubscriberProcessID: 1,
		MonitoredObjectID:   oid,
		ExpiresAt:           past,
	}
	d.mu.Unlock()

	d.runMaintenance(now)

	d.mu.RLock()
	remaining := d.subs.subscriptionsFor(oid)
	d.mu.RUnlock()
	require.Empty(t, remaining)
}
