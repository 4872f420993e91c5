package objects

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/bacnet-device/bacnet"
	"github.com/edgeo-scada/bacnet-device/object"
	"github.com/edgeo-scada/bacnet-device/value"
)

func TestAnalogInputPresentValueNotWritable(t *testing.T) {
	ai := NewAnalogInput(1, "ai-1", WithInitialValue(21.5), WithUnits(bacnet.UnitsDegreesCelsius))

	vals, err := ai.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyPresentValue, Index: object.MaxArrayIndex})
	require.Nil(t, err)
	got, ok := vals[0].Real()
	require.True(t, ok)
	require.Equal(t, float32(21.5), got)

	werr := ai.WriteProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyPresentValue}, []value.Value{value.NewReal(30)})
	require.NotNil(t, werr)
	require.Equal(t, bacnet.ErrorCodeWriteAccessDenied, werr.Code)
}

func TestAnalogOutputPresentValueWritable(t *testing.T) {
	ao := NewAnalogOutput(2, "ao-1")

	werr := ao.WriteProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyPresentValue}, []value.Value{value.NewReal(12)})
	require.Nil(t, werr)

	vals, err := ao.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyPresentValue, Index: object.MaxArrayIndex})
	require.Nil(t, err)
	got, ok := vals[0].Real()
	require.True(t, ok)
	require.Equal(t, float32(12), got)
}

func TestAnalogValuePresValueRange(t *testing.T) {
	av := NewAnalogValue(3, "av-1", WithPresValueRange(0, 100))

	vals, err := av.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyMinPresValue, Index: object.MaxArrayIndex})
	require.Nil(t, err)
	min, _ := vals[0].Real()
	require.Equal(t, float32(0), min)

	vals, err = av.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyMaxPresValue, Index: object.MaxArrayIndex})
	require.Nil(t, err)
	max, _ := vals[0].Real()
	require.Equal(t, float32(100), max)
}

func TestAnalogPresetDescriptionOverride(t *testing.T) {
	ai := NewAnalogInput(4, "ai-2", WithDescription("zone temperature"))
	vals, err := ai.ReadProperty(context.Background(), object.PropertyRef{ID: bacnet.PropertyDescription, Index: object.MaxArrayIndex})
	require.Nil(t, err)
	s, _, ok := vals[0].CharacterString()
	require.True(t, ok)
	require.Equal(t, "zone temperature", s)
}
