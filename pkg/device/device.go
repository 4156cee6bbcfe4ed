// Package device provides a simulated exclusive device fulfilling the
// gate.Resource contract.
package device

import (
	"sync"

	"github.com/perjons/gatequeue/pkg/gate"
	"github.com/rs/zerolog/log"
)

// Device is an exclusive resource with a busy flag and edge-triggered free
// notifications. MarkBusy and MarkFree flip the flag; MarkFree dispatches
// subscribed handlers on fresh goroutines, mirroring hosts where the free
// signal lags the flag transition.
type Device struct {
	name string

	mu       sync.Mutex
	busy     bool
	nextID   int
	handlers map[int]func()
}

func New(name string) *Device {
	return &Device{
		name:     name,
		handlers: make(map[int]func()),
	}
}

func (device *Device) Name() string {
	return device.name
}

func (device *Device) Busy() bool {
	device.mu.Lock()
	defer device.mu.Unlock()
	return device.busy
}

// SubscribeFree registers a handler for busy to free transitions. The
// returned cancel function is safe to call more than once; a cancelled
// handler receives no further notifications.
func (device *Device) SubscribeFree(fn func()) gate.CancelFunc {
	device.mu.Lock()
	defer device.mu.Unlock()

	id := device.nextID
	device.nextID++
	device.handlers[id] = fn
	log.Debug().Str("device", device.name).Int("handler", id).Msg("subscribed free handler")

	return func() {
		device.mu.Lock()
		defer device.mu.Unlock()
		delete(device.handlers, id)
	}
}

// MarkBusy flags the device as occupied. Reports whether the call actually
// changed the flag.
func (device *Device) MarkBusy() bool {
	device.mu.Lock()
	defer device.mu.Unlock()

	was := device.busy
	device.busy = true
	return !was
}

// MarkFree clears the busy flag. On an actual busy to free edge the
// subscribed handlers are dispatched asynchronously; marking an already free
// device notifies nobody.
func (device *Device) MarkFree() {
	device.mu.Lock()
	if !device.busy {
		device.mu.Unlock()
		return
	}
	device.busy = false
	handlers := make([]func(), 0, len(device.handlers))
	for _, fn := range device.handlers {
		handlers = append(handlers, fn)
	}
	device.mu.Unlock()

	log.Debug().Str("device", device.name).Msg("device free, notifying")
	for _, fn := range handlers {
		go fn()
	}
}
