package sensor

import (
	"context"
	"slices"
	"sync"
)

// Device is the single physical sensor shared by every session. Captures
// must hold a Lease; leases are granted one at a time in request order.
type Device struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

// NewDevice returns an idle Device.
func NewDevice() *Device {
	return &Device{}
}

// Lease is exclusive ownership of the Device until Release.
type Lease struct {
	d    *Device
	once sync.Once
}

// Acquire blocks until the device is free and every earlier caller has had
// its turn. If ctx is cancelled first the caller leaves the queue and
// ctx.Err() is returned.
func (d *Device) Acquire(ctx context.Context) (*Lease, error) {
	d.mu.Lock()
	if !d.held && len(d.waiters) == 0 {
		d.held = true
		d.mu.Unlock()
		return &Lease{d: d}, nil
	}
	ch := make(chan struct{})
	d.waiters = append(d.waiters, ch)
	d.mu.Unlock()

	select {
	case <-ch:
		return &Lease{d: d}, nil
	case <-ctx.Done():
		d.mu.Lock()
		if i := slices.Index(d.waiters, ch); i >= 0 {
			d.waiters = slices.Delete(d.waiters, i, i+1)
			d.mu.Unlock()
			return nil, ctx.Err()
		}
		d.mu.Unlock()
		// granted while cancelling: pass it on
		d.release()
		return nil, ctx.Err()
	}
}

// Waiting returns the number of callers queued behind the current holder.
func (d *Device) Waiting() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.waiters)
}

// Busy reports whether a lease is currently held.
func (d *Device) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.held
}

func (d *Device) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.waiters) > 0 {
		next := d.waiters[0]
		d.waiters = d.waiters[1:]
		close(next)
		return
	}
	d.held = false
}

// Release returns the device. Calling it more than once is a no-op.
func (l *Lease) Release() {
	l.once.Do(l.d.release)
}
