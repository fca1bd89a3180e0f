package socketio

import (
	"sync"
	"time"
)

// PushDebouncer collapses bursts of refresh results into batched pushes.
// A poll tick and a client-triggered refresh landing inside the same
// window produce a single state push, and availability edges additionally
// fire the availability callback once.
type PushDebouncer struct {
	window               time.Duration
	stateCallback        func()
	availabilityCallback func()

	mu                  sync.Mutex
	pendingState        bool
	pendingAvailability bool
	timer               *time.Timer
	stopped             bool
}

// NewPushDebouncer creates a debouncer with the given window duration.
// stateCallback is called when the device state needs broadcasting.
// availabilityCallback is called when an availability edge needs broadcasting.
func NewPushDebouncer(window time.Duration, stateCallback, availabilityCallback func()) *PushDebouncer {
	return &PushDebouncer{
		window:               window,
		stateCallback:        stateCallback,
		availabilityCallback: availabilityCallback,
	}
}

// TriggerState records that the device state changed. The actual push is
// deferred until the debounce window elapses without further triggers.
func (d *PushDebouncer) TriggerState() {
	d.trigger(false)
}

// TriggerAvailability records an availability edge. Edges also imply a
// state push because the reported state resets across them.
func (d *PushDebouncer) TriggerAvailability() {
	d.trigger(true)
}

func (d *PushDebouncer) trigger(availability bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pendingState = true
	if availability {
		d.pendingAvailability = true
	}

	// Reset the timer
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush fires callbacks for any pending flags and resets them.
func (d *PushDebouncer) flush() {
	d.mu.Lock()
	doState := d.pendingState
	doAvailability := d.pendingAvailability
	d.pendingState = false
	d.pendingAvailability = false
	d.mu.Unlock()

	if doState && d.stateCallback != nil {
		d.stateCallback()
	}
	if doAvailability && d.availabilityCallback != nil {
		d.availabilityCallback()
	}
}

// Stop prevents any further callbacks from firing.
func (d *PushDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pendingState = false
	d.pendingAvailability = false
}
