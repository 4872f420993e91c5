package bus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmitFireAndForgetOrder(t *testing.T) {
	b := New[int](nil)
	var order []int
	b.Subscribe(func(v int) error { order = append(order, v); return nil })
	b.Subscribe(func(v int) error { order = append(order, v*10); return nil })

	b.Emit(1)
	require.Equal(t, []int{1, 10}, order)
}

func TestEmitSwallowsPanicsAndErrors(t *testing.T) {
	b := New[int](nil)
	var ran []int
	b.Subscribe(func(v int) error { panic("boom") })
	b.Subscribe(func(v int) error { return errors.New("nope") })
	b.Subscribe(func(v int) error { ran = append(ran, v); return nil })

	require.NotPanics(t, func() { b.Emit(7) })
	require.Equal(t, []int{7}, ran)
}

func TestEmitSerialRethrowStopsDispatch(t *testing.T) {
	b := New[int](nil)
	var ran []int
	b.Subscribe(func(v int) error { ran = append(ran, v); return errors.New("stop here") })
	b.Subscribe(func(v int) error { ran = append(ran, v*2); return nil })

	err := b.EmitSerial(5, Rethrow)
	require.Error(t, err)
	require.Equal(t, []int{5}, ran)
}

func TestEmitSerialSwallowRunsAllListeners(t *testing.T) {
	b := New[int](nil)
	var ran []int
	b.Subscribe(func(v int) error { ran = append(ran, v); return errors.New("ignored") })
	b.Subscribe(func(v int) error { ran = append(ran, v*2); return nil })

	err := b.EmitSerial(5, Swallow)
	require.NoError(t, err)
	require.Equal(t, []int{5, 10}, ran)
}

func TestUnsubscribeRemovesListener(t *testing.T) {
	b := New[int](nil)
	var ran []int
	unsub := b.Subscribe(func(v int) error { ran = append(ran, v); return nil })
	unsub()

	b.Emit(1)
	require.Empty(t, ran)
}
