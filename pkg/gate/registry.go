package gate

import (
	"fmt"

	"github.com/gammazero/deque"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// A single deferred submission: the operation together with the warning sink
// it was submitted with.
type pendingOp struct {
	operation Operation
	warn      WarnFunc
}

// Registry entry for one tracked resource. An entry exists only while its
// queue is non-empty or an operation is in flight, so an idle resource is
// never referenced by the gate at all. Lookup is by resource identity, two
// distinct resources never share an entry whatever their state looks like.
type entry struct {
	pending    deque.Deque[*pendingOp]
	inFlight   bool
	cancelFree CancelFunc
}

// Forget drops all state held for a resource: the free subscription is
// cancelled and any pending operations are discarded with a warning through
// the sink of the operation at the front of the queue. Meant as a teardown
// hook for the resource's owner; there is no way to cancel a single
// operation.
func (gate *Gate) Forget(resource Resource) {
	gate.mu.Lock()
	defer gate.mu.Unlock()

	e := gate.entries[resource]
	if e == nil {
		return
	}
	if e.cancelFree != nil {
		e.cancelFree()
		e.cancelFree = nil
	}
	if n := e.pending.Len(); n > 0 {
		pendingGauge.Sub(float64(n))
		warningCounter.With(prometheus.Labels{"reason": "forgotten"}).Inc()
		e.pending.Front().warn(
			fmt.Sprintf("resource forgotten with %d pending operations, discarding them", n),
		)
	}
	delete(gate.entries, resource)
	log.Debug().Msg("dropped resource from the registry")
}
