// Package gate serializes operations against resources that report busy.
//
// A submission against a free resource runs at once, in the calling
// goroutine. Submissions against a busy resource are deferred and later run
// strictly in submission order, one at a time, driven by the resource's
// became-free notifications. The notification is an edge trigger delivered
// asynchronously relative to the busy flag transition, so the gate drains
// opportunistically whenever it observes a free resource with queued work
// rather than waiting for one notification per operation.
package gate

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var (
	pendingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gatequeue_pending_operations",
		Help: "The number of operations waiting for their resource to become free",
	})
	immediateCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatequeue_immediate_runs",
		Help: "The number of operations run directly on submission",
	})
	deferredCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatequeue_deferred_operations",
		Help: "The number of operations deferred because their resource was busy",
	})
	drainedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatequeue_drained_operations",
		Help: "The number of deferred operations run by the drain routine",
	})
	warningCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatequeue_warnings",
		Help: "The number of warnings emitted, by reason",
	}, []string{"reason"})
)

// Operation is a unit of work submitted to a gate. It takes no arguments and
// returns nothing; an operation run against a free resource is expected,
// though not required, to make the resource busy again.
type Operation func()

// CancelFunc undoes a notification subscription.
type CancelFunc func()

// Resource is the contract a tracked resource fulfils towards the gate.
// Busy may be read at any time. SubscribeFree registers a handler invoked
// each time the resource transitions from busy to free; delivery is
// asynchronous relative to the flag transition, and the resource must not
// hold locks needed by Busy while invoking handlers.
type Resource interface {
	Busy() bool
	SubscribeFree(fn func()) CancelFunc
}

// Gate admits operations against tracked resources, running them directly
// when possible and queueing them per resource when not. The zero value is
// not usable, call New.
type Gate struct {
	mu      sync.Mutex
	entries map[Resource]*entry
	warn    WarnFunc
}

// Options exposes the possible options to pass to a new Gate instance.
type Options struct {
	// Warning sink for submissions that do not bring their own. Leave nil
	// for the standard sink, which logs at warn level.
	Warn WarnFunc
}

func New(options *Options) *Gate {
	gate := &Gate{
		entries: make(map[Resource]*entry),
		warn:    logSink,
	}
	if options != nil && options.Warn != nil {
		gate.warn = options.Warn
	}

	return gate
}

// Submit hands an operation to the gate using the gate's default warning
// sink. See SubmitWarn.
func (gate *Gate) Submit(resource Resource, operation Operation) {
	gate.SubmitWarn(resource, operation, nil)
}

// SubmitWarn hands an operation to the gate. If the resource is free with no
// work pending or in flight, the operation runs synchronously before the
// call returns. Otherwise it is put at the end of the resource's queue and
// runs once every operation ahead of it has run and the resource reports
// free. Submission order is execution order, always. A nil warn falls back
// to the gate's default sink; pass Silence to suppress warnings entirely.
func (gate *Gate) SubmitWarn(resource Resource, operation Operation, warn WarnFunc) {
	if warn == nil {
		warn = gate.warn
	}

	gate.mu.Lock()
	e := gate.entries[resource]
	if e != nil && (e.inFlight || e.pending.Len() > 0) {
		gate.waitlist(resource, e, &pendingOp{operation: operation, warn: warn})
		gate.mu.Unlock()
		return
	}

	if !resource.Busy() {
		if e == nil {
			e = &entry{}
			gate.entries[resource] = e
		}
		e.inFlight = true
		gate.mu.Unlock()

		log.Debug().Msg("resource free, running operation directly")
		immediateCounter.Inc()
		invoke(operation, warn)

		gate.settle(resource, e)
		return
	}

	// Busy with nothing queued yet: the first deferred submission creates
	// the queue and the free subscription along with it.
	if e == nil {
		e = &entry{}
		gate.entries[resource] = e
	}
	gate.waitlist(resource, e, &pendingOp{operation: operation, warn: warn})
	gate.mu.Unlock()
}

// Appends an operation to the resource's queue and makes sure the free
// subscription is active. Must be called with the gate lock held.
func (gate *Gate) waitlist(resource Resource, e *entry, p *pendingOp) {
	e.pending.PushBack(p)
	pendingGauge.Inc()
	deferredCounter.Inc()
	log.Debug().Int("pending", e.pending.Len()).Msg("deferred operation")

	if e.cancelFree == nil {
		e.cancelFree = resource.SubscribeFree(func() {
			gate.onFree(resource)
		})
	}
}

// Called after an operation ran directly on submission. Normally there is
// nothing left to do, but submissions may have queued up behind the running
// operation, in which case they are drained right away or left to the free
// subscription created when they were waitlisted.
func (gate *Gate) settle(resource Resource, e *entry) {
	gate.mu.Lock()
	defer gate.mu.Unlock()

	if gate.entries[resource] != e {
		// Forgotten while the operation ran; a fresh entry may already be
		// in place for a later submission and is not ours to touch.
		return
	}
	e.inFlight = false

	if e.pending.Len() == 0 {
		delete(gate.entries, resource)
		return
	}
	if resource.Busy() {
		return
	}
	gate.drain(resource, e)
}

// Handler for a resource's became-free notification.
func (gate *Gate) onFree(resource Resource) {
	gate.mu.Lock()
	defer gate.mu.Unlock()

	e := gate.entries[resource]
	if e == nil || e.pending.Len() == 0 {
		// Stale notification, the queue emptied before delivery.
		return
	}
	if e.inFlight {
		// The gate's own operation is running on another goroutine,
		// whichever path runs it resumes draining once it returns.
		return
	}
	if resource.Busy() {
		// Some other actor made the resource busy again between the
		// transition and this handler running. The gate has no way to
		// regain exclusive control, so back off and wait for the next
		// notification.
		warningCounter.With(prometheus.Labels{"reason": "external_busy"}).Inc()
		e.pending.Front().warn(
			"resource busy on free notification, expected exclusive control; waiting for the next one",
		)
		return
	}

	gate.drain(resource, e)
}

// Runs queued operations from the front until the queue empties or the
// resource reports busy. The free-and-nonempty condition is rechecked after
// every operation: the notification only fires on a busy to free edge, so an
// operation that leaves the resource free must not make the gate wait for a
// notification that will never come. Must be called with the gate lock held
// and the resource observed free; the lock is released around each
// operation.
func (gate *Gate) drain(resource Resource, e *entry) {
	for {
		p := e.pending.PopFront()
		pendingGauge.Dec()
		e.inFlight = true
		gate.mu.Unlock()

		invoke(p.operation, p.warn)
		drainedCounter.Inc()

		gate.mu.Lock()
		e.inFlight = false
		if gate.entries[resource] != e {
			// Forgotten while the operation ran.
			return
		}

		busy := resource.Busy()
		if !busy {
			warningCounter.With(prometheus.Labels{"reason": "left_free"}).Inc()
			p.warn("operation left the resource free, draining on without a notification")
		}
		if e.pending.Len() == 0 {
			if e.cancelFree != nil {
				e.cancelFree()
				e.cancelFree = nil
			}
			delete(gate.entries, resource)
			log.Debug().Msg("queue drained, unsubscribed from free notifications")
			return
		}
		if busy {
			log.Debug().
				Int("pending", e.pending.Len()).
				Msg("resource busy again, waiting for free notification")
			return
		}
	}
}

// Runs a single operation, containing panics: a panicking operation is
// reported through the warning sink and otherwise treated like one that
// failed to make the resource busy, so draining carries on behind it.
func invoke(operation Operation, warn WarnFunc) {
	defer func() {
		if r := recover(); r != nil {
			warningCounter.With(prometheus.Labels{"reason": "panic"}).Inc()
			warn(fmt.Sprintf("operation panicked: %v", r))
		}
	}()
	operation()
}
