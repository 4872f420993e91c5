package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmitRunsInOrder(t *testing.T) {
	q := New(4)
	defer q.Close()

	var order []int
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		i := i
		_, err := q.Submit(ctx, func() (any, error) {
			order = append(order, i)
			return nil, nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestSubmitReturnsResultAndError(t *testing.T) {
	q := New(1)
	defer q.Close()

	ctx := context.Background()
	v, err := q.Submit(ctx, func() (any, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, v)

	wantErr := errors.New("submitted task failed")
	_, err = q.Submit(ctx, func() (any, error) { return nil, wantErr })
	require.ErrorIs(t, err, wantErr)
}

func TestSubmitAfterCloseFails(t *testing.T) {
	q := New(1)
	q.Close()
	q.Wait()

	_, err := q.Submit(context.Background(), func() (any, error) { return nil, nil })
	require.ErrorIs(t, err, ErrClosed)
}

func TestSubmitRespectsContextCancellation(t *testing.T) {
	q := New(0)
	defer q.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	go q.Submit(context.Background(), func() (any, error) {
		close(started)
		<-block
		return nil, nil
	})
	<-started
	// The worker is now busy with the blocked task; a second submission on
	// an unbuffered queue should observe the context deadline rather than
	// hang forever waiting for a free worker slot.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Submit(ctx, func() (any, error) { return nil, nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(block)
}
