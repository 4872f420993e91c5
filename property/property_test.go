package property

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/bacnet-device/bacnet"
	"github.com/edgeo-scada/bacnet-device/queue"
	"github.com/edgeo-scada/bacnet-device/value"
)

func newBoundSinglet(id bacnet.PropertyIdentifier, initial value.Value, writable bool) (*Property, *queue.Queue) {
	p := NewSinglet(id, initial, writable)
	q := queue.New(1)
	p.BindQueue(q)
	return p, q
}

func TestUnboundPropertyRejectsAccess(t *testing.T) {
	p := NewSinglet(bacnet.PropertyPresentValue, value.NewReal(0), true)
	_, err := p.ReadData(context.Background(), AccessContext{})
	require.Error(t, err)
}

func TestWriteReadOnlyPropertyDenied(t *testing.T) {
	p, q := newBoundSinglet(bacnet.PropertyPresentValue, value.NewReal(1), false)
	defer q.Close()

	err := p.WriteData(context.Background(), 0, value.NewReal(2))
	var bacErr *bacnet.BACnetError
	require.ErrorAs(t, err, &bacErr)
	require.Equal(t, bacnet.ErrorCodeWriteAccessDenied, bacErr.Code)
}

func TestWriteFiresBeforeAndAfterCOV(t *testing.T) {
	p, q := newBoundSinglet(bacnet.PropertyPresentValue, value.NewReal(1), true)
	defer q.Close()

	var beforeOld, beforeNew, afterOld, afterNew value.Value
	p.BeforeCOV().Subscribe(func(e COVEvent) error {
		beforeOld, beforeNew = e.Old, e.New
		return nil
	})
	p.AfterCOV().Subscribe(func(e COVEvent) error {
		afterOld, afterNew = e.Old, e.New
		return nil
	})

	err := p.WriteData(context.Background(), 0, value.NewReal(42))
	require.NoError(t, err)

	got, err := p.ReadData(context.Background(), AccessContext{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	gotReal, ok := got[0].Real()
	require.True(t, ok)
	require.Equal(t, float32(42), gotReal)

	oldReal, _ := beforeOld.Real()
	require.Equal(t, float32(1), oldReal)
	newReal, _ := beforeNew.Real()
	require.Equal(t, float32(42), newReal)
	afterOldReal, _ := afterOld.Real()
	require.Equal(t, float32(1), afterOldReal)
	afterNewReal, _ := afterNew.Real()
	require.Equal(t, float32(42), afterNewReal)
}

func TestBeforeCOVVetoesWrite(t *testing.T) {
	p, q := newBoundSinglet(bacnet.PropertyPresentValue, value.NewReal(1), true)
	defer q.Close()

	vetoErr := errors.New("out of range")
	p.BeforeCOV().Subscribe(func(e COVEvent) error { return vetoErr })

	err := p.WriteData(context.Background(), 0, value.NewReal(99))
	require.ErrorIs(t, err, vetoErr)

	got, err := p.ReadData(context.Background(), AccessContext{})
	require.NoError(t, err)
	gotReal, _ := got[0].Real()
	require.Equal(t, float32(1), gotReal, "vetoed write must not change the stored value")
}

func TestArrayPropertyIndexedAccess(t *testing.T) {
	p := NewArray(bacnet.PropertyPriorityArray, []value.Value{
		value.NewNull(), value.NewNull(), value.NewReal(50),
	}, true)
	q := queue.New(1)
	defer q.Close()
	p.BindQueue(q)

	ctx := context.Background()
	count, err := p.ReadIndex(ctx, AccessContext{}, 0)
	require.NoError(t, err)
	n, ok := count.Unsigned()
	require.True(t, ok)
	require.Equal(t, uint32(3), n)

	err = p.WriteData(ctx, 1, value.NewReal(75))
	require.NoError(t, err)

	elem, err := p.ReadIndex(ctx, AccessContext{}, 1)
	require.NoError(t, err)
	elemReal, ok := elem.Real()
	require.True(t, ok)
	require.Equal(t, float32(75), elemReal)

	_, err = p.ReadIndex(ctx, AccessContext{}, 99)
	var bacErr *bacnet.BACnetError
	require.ErrorAs(t, err, &bacErr)
	require.Equal(t, bacnet.ErrorCodeInvalidArrayIndex, bacErr.Code)
}

func TestArrayPropertyWholeListReplace(t *testing.T) {
	p := NewArray(bacnet.PropertyPriorityArray, []value.Value{
		value.NewReal(1), value.NewReal(2),
	}, true)
	q := queue.New(1)
	defer q.Close()
	p.BindQueue(q)

	ctx := context.Background()
	err := p.WriteArray(ctx, []value.Value{value.NewReal(9), value.NewReal(8), value.NewReal(7)})
	require.NoError(t, err)

	count, err := p.ReadIndex(ctx, AccessContext{}, 0)
	require.NoError(t, err)
	n, ok := count.Unsigned()
	require.True(t, ok)
	require.Equal(t, uint32(3), n, "whole-list write must be able to grow the array")

	third, err := p.ReadIndex(ctx, AccessContext{}, 3)
	require.NoError(t, err)
	got, ok := third.Real()
	require.True(t, ok)
	require.Equal(t, float32(7), got)
}

func TestWriteArrayRejectsSinglet(t *testing.T) {
	p, q := newBoundSinglet(bacnet.PropertyPresentValue, value.NewReal(1), true)
	defer q.Close()

	err := p.WriteArray(context.Background(), []value.Value{value.NewReal(1), value.NewReal(2)})
	var bacErr *bacnet.BACnetError
	require.ErrorAs(t, err, &bacErr)
	require.Equal(t, bacnet.ErrorCodePropertyIsNotAnArray, bacErr.Code)
}

func TestPolledPropertyIsNeverWritable(t *testing.T) {
	p := NewPolled(bacnet.PropertyLocalTime, func(access AccessContext) ([]value.Value, error) {
		return []value.Value{value.NewCharacterString("12:00:00.00", value.EncodingUTF8)}, nil
	})
	q := queue.New(1)
	defer q.Close()
	p.BindQueue(q)

	err := p.WriteData(context.Background(), 0, value.NewCharacterString("nope", value.EncodingUTF8))
	require.Error(t, err)
}
