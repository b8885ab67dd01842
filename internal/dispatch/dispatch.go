// Package dispatch implements the single-threaded event loop described by
// §4.7 "Suspension points": "only the dispatcher itself suspends (waiting
// on readiness). Handlers run to completion with respect to the shared data
// model." This removes the need for locks across the lease table and pools
// but imposes a latency contract: no handler may perform unbounded work.
//
// No pack repo implements a timer wheel or readiness dispatcher of this
// shape (AdGuardHome's DHCP server runs one goroutine per socket read loop
// with no lease-expiry timer), so the min-heap scheduling here is built
// directly on the standard library's container/heap — a justified
// stdlib choice: no example repo's third-party stack offers a timer
// priority queue, and hand-rolling one over heap.Interface is the
// idiomatic Go way to get one (see e.g. net/http's internal timers, same
// pattern).
package dispatch

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Func is a unit of deferred work: a single-shot wakeup callback.
type Func func(ctx context.Context)

// timer is one scheduled wakeup.
type timer struct {
	at    time.Time
	owner string
	fn    Func
	index int
}

// timerHeap is a container/heap.Interface ordering timers earliest-first.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]

	return t
}

// Dispatcher is the single-threaded readiness/timer loop: the sole
// goroutine that may block waiting for work, per §4.7's "Suspension
// points" invariant.
type Dispatcher struct {
	mu sync.Mutex

	heap timerHeap
	// byOwner deduplicates timers by owner tag: re-registering the same
	// owner's timer (e.g. rescheduling a lease's expiry wakeup after a
	// renewal) replaces the pending entry instead of stacking a second one.
	byOwner map[string]*timer

	logger *slog.Logger
	wake   chan struct{}
}

// New returns a new, empty Dispatcher.
func New(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		byOwner: map[string]*timer{},
		logger:  logger,
		wake:    make(chan struct{}, 1),
	}
}

// Register schedules fn to run at at, tagged with owner for dedup. A second
// Register call with the same owner cancels and replaces the first.
func (d *Dispatcher) Register(owner string, at time.Time, fn Func) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.byOwner[owner]; ok {
		heap.Remove(&d.heap, existing.index)
	}

	t := &timer{at: at, owner: owner, fn: fn}
	heap.Push(&d.heap, t)
	d.byOwner[owner] = t

	d.signal()
}

// Cancel removes owner's pending timer, if any.
func (d *Dispatcher) Cancel(owner string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.byOwner[owner]; ok {
		heap.Remove(&d.heap, existing.index)
		delete(d.byOwner, owner)
	}
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// nextFire returns the earliest pending timer's fire time, and whether one
// exists.
func (d *Dispatcher) nextFire() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.heap.Len() == 0 {
		return time.Time{}, false
	}

	return d.heap[0].at, true
}

// popDue removes and returns every timer whose fire time is at or before
// now.
func (d *Dispatcher) popDue(now time.Time) []*timer {
	d.mu.Lock()
	defer d.mu.Unlock()

	var due []*timer
	for d.heap.Len() > 0 && !d.heap[0].at.After(now) {
		t := heap.Pop(&d.heap).(*timer)
		delete(d.byOwner, t.owner)
		due = append(due, t)
	}

	return due
}

// Wake returns the channel a newly-registered timer signals on.
// internal/server's combined packet/timer loop selects on this alongside its
// own readiness channels instead of calling [Dispatcher.Run] directly, so
// that packet handling and timer firing stay interleaved on one goroutine
// per §4.7's single suspension point invariant.
func (d *Dispatcher) Wake() <-chan struct{} {
	return d.wake
}

// NextFire returns the earliest pending timer's fire time, and whether one
// exists — exported for callers building their own combined select loop.
func (d *Dispatcher) NextFire() (time.Time, bool) {
	return d.nextFire()
}

// PopDue fires every timer due at or before now, in earliest-first order,
// and returns how many ran.
func (d *Dispatcher) PopDue(ctx context.Context, now time.Time) int {
	due := d.popDue(now)
	for _, t := range due {
		t.fn(ctx)
	}

	return len(due)
}

// Run blocks, firing due timers as they come due, until ctx is canceled.
// This is the one blocking loop in the server (§4.7): every handler it
// invokes must return promptly, or the whole dispatcher — and every other
// pending timer and readiness notification — stalls behind it.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		wait := time.Hour

		if at, ok := d.nextFire(); ok {
			if remaining := time.Until(at); remaining > 0 {
				wait = remaining
			} else {
				wait = 0
			}
		}

		timerC := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timerC.Stop()

			return
		case <-timerC.C:
		case <-d.wake:
			timerC.Stop()
		}

		now := time.Now()
		for _, t := range d.popDue(now) {
			t.fn(ctx)
		}
	}
}
