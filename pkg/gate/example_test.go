package gate_test

import (
	"fmt"

	"github.com/perjons/gatequeue/pkg/gate"
)

// A minimal resource for the example: a till that is busy while it has a
// customer and rings a bell when it frees up.
type till struct {
	customer bool
	bell     []func()
}

func (t *till) Busy() bool {
	return t.customer
}

func (t *till) SubscribeFree(fn func()) gate.CancelFunc {
	t.bell = append(t.bell, fn)
	return func() { t.bell = nil }
}

func (t *till) finish() {
	t.customer = false
	for _, fn := range t.bell {
		fn()
	}
}

func Example() {
	gt := gate.New(nil)
	t := &till{}

	// The till is free, the first customer is served on the spot and
	// occupies it; the second has to queue.
	gt.Submit(t, func() {
		fmt.Println("serving first customer")
		t.customer = true
	})
	gt.Submit(t, func() {
		fmt.Println("serving second customer")
		t.customer = true
	})

	fmt.Println("first customer done")
	t.finish()

	// Output:
	// serving first customer
	// first customer done
	// serving second customer
}
