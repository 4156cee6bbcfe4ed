package device

import (
	"sync"
	"testing"
	"time"

	"github.com/perjons/gatequeue/pkg/gate"
)

func Test_BusyReflectsMarks(t *testing.T) {
	d := New("test")

	if d.Busy() {
		t.Fatal("Expected a new device to be free")
	}
	if !d.MarkBusy() {
		t.Fatal("Expected MarkBusy on a free device to report an edge")
	}
	if !d.Busy() {
		t.Fatal("Expected the device to read busy")
	}
	if d.MarkBusy() {
		t.Fatal("Expected MarkBusy on a busy device to report no edge")
	}

	d.MarkFree()
	if d.Busy() {
		t.Error("Expected the device to read free again")
	}
}

func Test_NotifyOnFreeEdgeOnly(t *testing.T) {
	d := New("test")
	notified := make(chan struct{}, 10)
	d.SubscribeFree(func() { notified <- struct{}{} })

	// Not busy, no edge, no notification.
	d.MarkFree()

	d.MarkBusy()
	d.MarkFree()
	<-notified

	// A second MarkFree without an intervening MarkBusy is not an edge.
	d.MarkFree()

	d.MarkBusy()
	d.MarkFree()
	<-notified

	select {
	case <-notified:
		t.Error("Got a notification for a redundant MarkFree")
	default:
	}
}

func Test_CancelStopsNotifications(t *testing.T) {
	d := New("test")
	cancelled := make(chan struct{}, 10)
	kept := make(chan struct{}, 10)

	cancel := d.SubscribeFree(func() { cancelled <- struct{}{} })
	d.SubscribeFree(func() { kept <- struct{}{} })

	cancel()
	cancel() // safe to call again

	d.MarkBusy()
	d.MarkFree()

	<-kept
	select {
	case <-cancelled:
		t.Error("Got a notification on a cancelled subscription")
	default:
	}
}

// End to end: a gate draining deferred jobs against a device whose free
// notifications come from timer goroutines.
func Test_SerializesThroughGate(t *testing.T) {
	d := New("test")
	gt := gate.New(&gate.Options{Warn: gate.Silence})

	mu := sync.Mutex{}
	order := make([]int, 0, 5)

	wg := sync.WaitGroup{}
	wg.Add(5)
	for i := 0; i < 5; i++ {
		job := i
		gt.Submit(d, func() {
			mu.Lock()
			order = append(order, job)
			mu.Unlock()

			d.MarkBusy()
			time.AfterFunc(time.Millisecond, func() {
				d.MarkFree()
				wg.Done()
			})
		})
	}
	wg.Wait()

	if len(order) != 5 {
		t.Fatal("Expected all 5 jobs to have run, got:", order)
	}
	for i, job := range order {
		if job != i {
			t.Fatal("Expected jobs to run in submission order, got:", order)
		}
	}
}
