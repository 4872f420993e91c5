package objects

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/bacnet-device/bacnet"
	"github.com/edgeo-scada/bacnet-device/object"
	"github.com/edgeo-scada/bacnet-device/value"
)

func TestIntegerValueWritable(t *testing.T) {
	iv := NewIntegerValue(1, "iv-1", WithIntegerInitialValue(-5))

	vals, err := iv.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyPresentValue, Index: object.MaxArrayIndex})
	require.Nil(t, err)
	got, ok := vals[0].Signed()
	require.True(t, ok)
	require.Equal(t, int32(-5), got)

	werr := iv.WriteProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyPresentValue}, []value.Value{value.NewSigned(42)})
	require.Nil(t, werr)

	vals, err = iv.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyPresentValue, Index: object.MaxArrayIndex})
	require.Nil(t, err)
	got, _ = vals[0].Signed()
	require.Equal(t, int32(42), got)
}

func TestIntegerValueRange(t *testing.T) {
	iv := NewIntegerValue(2, "iv-2", WithIntegerPresValueRange(-10, 10))

	vals, err := iv.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyMinPresValue, Index: object.MaxArrayIndex})
	require.Nil(t, err)
	min, _ := vals[0].Signed()
	require.Equal(t, int32(-10), min)
}
