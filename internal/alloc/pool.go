package alloc

import (
	"net/netip"
	"slices"

	"github.com/dhcpcore/dhcpd/internal/confparse"
	"github.com/dhcpcore/dhcpd/internal/lease"
)

// Pool is the runtime counterpart of a confparse.Pool: its address ranges
// resolved to netip.Addr, a leased-offset bitset per range, and a
// least-recently-used free list ordered by Ends (§3 "Pool", §4.4 tie-break
// rule: "within a pool, free leases are stored in LRU order by `ends`
// timestamp").
type Pool struct {
	Decl *confparse.Pool

	ranges   []addrRange
	leased   []*offsetSet
	permit   []string
	prohibit []string

	// freeLRU holds free leases ordered oldest-Ends-first; the head is the
	// next one [Pool.TakeLRUFree] returns.
	freeLRU []*lease.Lease
	// abandonedLRU holds leases in the Abandoned state, oldest first
	// (§4.4 step 4.4).
	abandonedLRU []*lease.Lease

	byIP map[netip.Addr]*lease.Lease
}

// NewPoolFromBounds builds a runtime Pool from a single (start, end)
// address pair, the common case of a `range <start> <end>;` pool body
// already resolved to netip.Addr by internal/config.
func NewPoolFromBounds(decl *confparse.Pool, start, end netip.Addr) (*Pool, error) {
	r, err := newAddrRange(start, end)
	if err != nil {
		return nil, err
	}

	return NewPool(decl, []addrRange{r}), nil
}

// NewPool builds a runtime Pool from its declaration and resolved address
// ranges (resolution — name/CIDR to netip.Addr — is internal/config's job,
// since it requires the interface's subnet context).
func NewPool(decl *confparse.Pool, ranges []addrRange) *Pool {
	p := &Pool{
		Decl:     decl,
		ranges:   ranges,
		permit:   decl.Permit,
		prohibit: decl.Prohibit,
		byIP:     map[netip.Addr]*lease.Lease{},
	}

	p.leased = make([]*offsetSet, len(ranges))
	for i := range ranges {
		p.leased[i] = newOffsetSet()
	}

	return p
}

// Contains reports whether ip lies within any of p's ranges.
func (p *Pool) Contains(ip netip.Addr) bool {
	for _, r := range p.ranges {
		if r.contains(ip) {
			return true
		}
	}

	return false
}

// markLeased marks ip as in-use within whichever range contains it.
func (p *Pool) markLeased(ip netip.Addr, leased bool) {
	for i, r := range p.ranges {
		if off, ok := r.offset(ip); ok {
			p.leased[i].set(off, leased)

			return
		}
	}
}

// Admit evaluates p's permit/prohibit lists against tester, per §3 "Pool":
// "iteration over permit ∪ ¬prohibit decides admittance."
func (p *Pool) Admit(tester *RequestClassTester) (bool, error) {
	for _, name := range p.prohibit {
		member, err := classMember(tester, name)
		if err != nil {
			return false, err
		}

		if member {
			return false, nil
		}
	}

	if len(p.permit) == 0 {
		return true, nil
	}

	for _, name := range p.permit {
		member, err := classMember(tester, name)
		if err != nil {
			return false, err
		}

		if member {
			return true, nil
		}
	}

	return false, nil
}

// classMember resolves one permit/prohibit list entry, which is either a
// built-in pseudo-class name or `members of <class>`.
func classMember(tester *RequestClassTester, entry string) (bool, error) {
	const membersPrefix = "members of "
	if len(entry) > len(membersPrefix) && entry[:len(membersPrefix)] == membersPrefix {
		return tester.TestClass(entry[len(membersPrefix):])
	}

	return tester.TestClass(entry)
}

// AddFree inserts l (which must be Free) at the tail of the free-LRU list —
// the newest-expired entry goes to the tail so the oldest is always the
// head, per the LRU-by-Ends tie-break rule.
func (p *Pool) AddFree(l *lease.Lease) {
	p.freeLRU = append(p.freeLRU, l)
	p.sortFreeLRU()
	p.byIP[l.IP] = l
}

// sortFreeLRU keeps freeLRU ordered oldest-Ends-first. A linear re-sort is
// adequate here: pools are reshuffled once per allocation, not per packet
// byte, so this isn't on the dispatcher's no-unbounded-work latency budget
// (§4.7 "Suspension points").
func (p *Pool) sortFreeLRU() {
	slices.SortFunc(p.freeLRU, func(a, b *lease.Lease) int {
		return a.Ends.Compare(b.Ends)
	})
}

// TakeLRUFree removes and returns the least-recently-used free lease whose
// pool Admit()s tester, or nil if none qualifies (§4.4 step 4.3).
func (p *Pool) TakeLRUFree(tester *RequestClassTester) (*lease.Lease, error) {
	ok, err := p.Admit(tester)
	if err != nil || !ok || len(p.freeLRU) == 0 {
		return nil, err
	}

	l := p.freeLRU[0]
	p.freeLRU = p.freeLRU[1:]
	delete(p.byIP, l.IP)

	return l, nil
}

// AddAbandoned inserts l into the abandoned-LRU list (§4.4 step 4.4).
func (p *Pool) AddAbandoned(l *lease.Lease) {
	p.abandonedLRU = append(p.abandonedLRU, l)
}

// TakeLRUAbandoned removes and returns the oldest abandoned lease, or nil.
func (p *Pool) TakeLRUAbandoned() *lease.Lease {
	if len(p.abandonedLRU) == 0 {
		return nil
	}

	l := p.abandonedLRU[0]
	p.abandonedLRU = p.abandonedLRU[1:]

	return l
}

// NextFreeAddr returns the first unleased address in p's ranges, or false
// if the pool is exhausted — the per-pool analogue of
// internal/dhcpsvc/interface.go's netInterface.nextIP.
func (p *Pool) NextFreeAddr() (netip.Addr, bool) {
	for i, r := range p.ranges {
		size, _ := r.offset(r.end)
		for off := uint64(0); off <= size; off++ {
			if !p.leased[i].isSet(off) {
				ip, _ := r.addrAt(off)

				return ip, true
			}
		}
	}

	return netip.Addr{}, false
}
