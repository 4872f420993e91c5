package object

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/bacnet-device/bacnet"
	"github.com/edgeo-scada/bacnet-device/property"
	"github.com/edgeo-scada/bacnet-device/value"
)

func TestObjectNameReadsBack(t *testing.T) {
	o := New(bacnet.ObjectTypeDevice, 1234, "X")
	vals, err := o.ReadProperty(context.Background(), PropertyRef{ID: bacnet.PropertyObjectName, Index: MaxArrayIndex})
	require.Nil(t, err)
	require.Len(t, vals, 1)
	s, _, ok := vals[0].CharacterString()
	require.True(t, ok)
	require.Equal(t, "X", s)
}

func TestPropertyListExcludesAlwaysPresent(t *testing.T) {
	o := New(bacnet.ObjectTypeAnalogInput, 1, "ai-1")
	vals, err := o.ReadProperty(context.Background(), PropertyRef{ID: bacnet.PropertyPropertyList, Index: MaxArrayIndex})
	require.Nil(t, err)

	for _, v := range vals {
		e, ok := v.Enumerated()
		require.True(t, ok)
		id := bacnet.PropertyIdentifier(e)
		require.NotEqual(t, bacnet.PropertyObjectName, id)
		require.NotEqual(t, bacnet.PropertyObjectType, id)
		require.NotEqual(t, bacnet.PropertyObjectIdentifier, id)
		require.NotEqual(t, bacnet.PropertyPropertyList, id)
	}
	require.Contains(t, enumsOf(vals), uint32(bacnet.PropertyDescription))
}

func enumsOf(vals []value.Value) []uint32 {
	out := make([]uint32, len(vals))
	for i, v := range vals {
		e, _ := v.Enumerated()
		out[i] = e
	}
	return out
}

func TestPropertyListIsIndexable(t *testing.T) {
	o := New(bacnet.ObjectTypeAnalogInput, 1, "ai-1")

	countVals, err := o.ReadProperty(context.Background(), PropertyRef{ID: bacnet.PropertyPropertyList, Index: 0})
	require.Nil(t, err)
	require.Len(t, countVals, 1)
	count, ok := countVals[0].Unsigned()
	require.True(t, ok)
	require.True(t, count > 0)

	elemVals, err := o.ReadProperty(context.Background(), PropertyRef{ID: bacnet.PropertyPropertyList, Index: 1})
	require.Nil(t, err)
	require.Len(t, elemVals, 1)
	_, ok = elemVals[0].Enumerated()
	require.True(t, ok, "element 1 of PROPERTY_LIST must be a single enumerated property identifier, not the whole list")
}

func TestUnknownPropertyReadFails(t *testing.T) {
	o := New(bacnet.ObjectTypeAnalogInput, 1, "ai-1")
	_, err := o.ReadProperty(context.Background(), PropertyRef{ID: bacnet.PropertyPresentValue, Index: MaxArrayIndex})
	require.NotNil(t, err)
	require.Equal(t, bacnet.ErrorCodeUnknownProperty, err.Code)
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	o := New(bacnet.ObjectTypeAnalogValue, 1, "av-1")
	require.NoError(t, o.AddProperty(property.NewSinglet(bacnet.PropertyPresentValue, value.NewReal(0), true)))

	werr := o.WriteProperty(context.Background(), PropertyRef{ID: bacnet.PropertyPresentValue}, []value.Value{value.NewReal(21.5)})
	require.Nil(t, werr)

	vals, err := o.ReadProperty(context.Background(), PropertyRef{ID: bacnet.PropertyPresentValue, Index: MaxArrayIndex})
	require.Nil(t, err)
	got, ok := vals[0].Real()
	require.True(t, ok)
	require.Equal(t, float32(21.5), got)
}

func TestDuplicatePropertyRegistrationFails(t *testing.T) {
	o := New(bacnet.ObjectTypeAnalogValue, 1, "av-1")
	err := o.AddProperty(property.NewSinglet(bacnet.PropertyDescription, value.NewCharacterString("", value.EncodingUTF8), true))
	require.Error(t, err)
}

func TestReadPropertyMultipleAllWrapsEveryProperty(t *testing.T) {
	o := New(bacnet.ObjectTypeAnalogInput, 1, "ai-1")
	results := o.ReadPropertyMultiple(context.Background(), []PropertyRef{{ID: bacnet.PropertyAll, Index: MaxArrayIndex}})

	require.NotEmpty(t, results)
	for _, r := range results {
		require.Equal(t, uint32(MaxArrayIndex), r.Ref.Index)
		require.Nil(t, r.Err)
	}
}

func TestReadPropertyMultipleOmitsUnknown(t *testing.T) {
	o := New(bacnet.ObjectTypeAnalogInput, 1, "ai-1")
	results := o.ReadPropertyMultiple(context.Background(), []PropertyRef{
		{ID: bacnet.PropertyDescription, Index: MaxArrayIndex},
		{ID: bacnet.PropertyPresentValue, Index: MaxArrayIndex}, // not registered on this bare object
	})
	require.Len(t, results, 1)
	require.Equal(t, bacnet.PropertyDescription, results[0].Ref.ID)
}
