package sensor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDeviceGrantsInRequestOrder(t *testing.T) {
	d := NewDevice()
	first, err := d.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, d.Busy())

	order := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		go func(i int) {
			l, err := d.Acquire(context.Background())
			if err != nil {
				return
			}
			order <- i
			l.Release()
		}(i)
		waitFor(t, func() bool { return d.Waiting() == i })
	}

	first.Release()
	for want := 1; want <= 3; want++ {
		select {
		case got := <-order:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatal("lease not granted")
		}
	}
	waitFor(t, func() bool { return !d.Busy() })
}

func TestDeviceCancelledWaiterLeavesQueue(t *testing.T) {
	d := NewDevice()
	held, err := d.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := d.Acquire(ctx)
		errc <- err
	}()
	waitFor(t, func() bool { return d.Waiting() == 1 })

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.Equal(t, 0, d.Waiting())

	held.Release()
	assert.False(t, d.Busy())

	again, err := d.Acquire(context.Background())
	require.NoError(t, err)
	again.Release()
}

func TestLeaseReleaseIsIdempotent(t *testing.T) {
	d := NewDevice()
	l, err := d.Acquire(context.Background())
	require.NoError(t, err)

	other := make(chan *Lease, 1)
	go func() {
		l2, _ := d.Acquire(context.Background())
		other <- l2
	}()
	waitFor(t, func() bool { return d.Waiting() == 1 })

	l.Release()
	l2 := <-other
	// a second release of the old lease must not free the new holder
	l.Release()
	assert.True(t, d.Busy())
	l2.Release()
	assert.False(t, d.Busy())
}
