package objects

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/bacnet-device/bacnet"
	"github.com/edgeo-scada/bacnet-device/object"
	"github.com/edgeo-scada/bacnet-device/value"
)

func TestBinaryInputNotWritable(t *testing.T) {
	bi := NewBinaryInput(1, "bi-1", WithBinaryInitialValue(true))

	vals, err := bi.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyPresentValue, Index: object.MaxArrayIndex})
	require.Nil(t, err)
	e, ok := vals[0].Enumerated()
	require.True(t, ok)
	require.Equal(t, uint32(1), e)

	werr := bi.WriteProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyPresentValue}, []value.Value{value.NewEnumerated(0)})
	require.NotNil(t, werr)
	require.Equal(t, bacnet.ErrorCodeWriteAccessDenied, werr.Code)
}

func TestBinaryOutputHasPolarity(t *testing.T) {
	bo := NewBinaryOutput(2, "bo-1", WithPolarity(PolarityReverse))
	vals, err := bo.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyPolarity, Index: object.MaxArrayIndex})
	require.Nil(t, err)
	e, ok := vals[0].Enumerated()
	require.True(t, ok)
	require.Equal(t, uint32(PolarityReverse), e)
}

func TestBinaryValueHasNoPolarity(t *testing.T) {
	bv := NewBinaryValue(3, "bv-1")
	_, err := bv.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyPolarity, Index: object.MaxArrayIndex})
	require.NotNil(t, err)
	require.Equal(t, bacnet.ErrorCodeUnknownProperty, err.Code)
}

func TestBinaryActiveInactiveText(t *testing.T) {
	bv := NewBinaryValue(4, "bv-2", WithActiveText("Open"), WithInactiveText("Closed"))

	vals, err := bv.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyActiveText, Index: object.MaxArrayIndex})
	require.Nil(t, err)
	s, _, _ := vals[0].CharacterString()
	require.Equal(t, "Open", s)

	vals, err = bv.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyInactiveText, Index: object.MaxArrayIndex})
	require.Nil(t, err)
	s, _, _ = vals[0].CharacterString()
	require.Equal(t, "Closed", s)
}
