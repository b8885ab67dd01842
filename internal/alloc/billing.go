// Billing implements the per-class lease-count cap described by §3 "Class"
// ("a per-subclass lease limit enforced by a bounded circular billing
// array") and §4.4 step 6 ("reserve a slot in its circular billing array;
// failure to reserve rejects the allocation"), and supplement 3 (§C) of the
// expanded specification.
//
// No pack repo implements a class billing cache; this is grounded on the
// *shape* of the ISC dhcpd original's billing_class circular array
// (original_source), reimplemented here as a fixed-capacity slot table
// rather than a linked list, since Go slices make a bounded ring trivial
// and the original's pointer-chasing motivation (arena allocation in C)
// doesn't apply.
package alloc

import (
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"

	"github.com/dhcpcore/dhcpd/internal/confparse"
)

// ErrBillingFull is returned by [BillingLedger.Reserve] when a class's
// circular billing array has no free slot.
const ErrBillingFull errors.Error = "billing class lease limit reached"

// billingRing is one class's fixed-capacity circular reservation array.
type billingRing struct {
	slots []netip.Addr
	// occupied[i] reports whether slots[i] currently holds a reservation.
	occupied []bool
	// next is the next slot index Reserve will try, advancing circularly so
	// that repeated reserve/release cycles spread across the whole ring
	// rather than always reusing slot 0.
	next int
	// count is the number of occupied slots, kept alongside occupied for an
	// O(1) fullness check.
	count int
}

func newBillingRing(capacity int) *billingRing {
	return &billingRing{
		slots:    make([]netip.Addr, capacity),
		occupied: make([]bool, capacity),
	}
}

func (r *billingRing) reserve(ip netip.Addr) bool {
	if r.count >= len(r.slots) {
		return false
	}

	for range r.slots {
		i := r.next
		r.next = (r.next + 1) % len(r.slots)

		if !r.occupied[i] {
			r.slots[i] = ip
			r.occupied[i] = true
			r.count++

			return true
		}
	}

	return false
}

func (r *billingRing) release(ip netip.Addr) {
	for i, addr := range r.slots {
		if r.occupied[i] && addr == ip {
			r.occupied[i] = false
			r.count--

			return
		}
	}
}

// BillingLedger tracks one billingRing per lease-limited class (§4.4 step
// 6).
type BillingLedger struct {
	rings map[string]*billingRing
}

// NewBillingLedger builds a ledger from the set of declared classes,
// allocating a ring only for classes with a nonzero LeaseLimit.
func NewBillingLedger(classes []*confparse.Class) *BillingLedger {
	l := &BillingLedger{rings: map[string]*billingRing{}}
	for _, c := range classes {
		if c.LeaseLimit > 0 {
			l.rings[c.Name] = newBillingRing(c.LeaseLimit)
		}
	}

	return l
}

// Reserve attempts to bill ip against class. Classes with no configured
// limit always succeed. Returns [ErrBillingFull] if the class's ring has no
// free slot.
func (l *BillingLedger) Reserve(class string, ip netip.Addr) error {
	ring, limited := l.rings[class]
	if !limited {
		return nil
	}

	if !ring.reserve(ip) {
		return ErrBillingFull
	}

	return nil
}

// Release frees ip's slot in class's ring, if any. Releasing an address not
// currently reserved is a no-op.
func (l *BillingLedger) Release(class string, ip netip.Addr) {
	if ring, limited := l.rings[class]; limited {
		ring.release(ip)
	}
}
