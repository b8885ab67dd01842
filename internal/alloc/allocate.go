// Package alloc implements the address allocation engine: matching a
// parsed request to a subnet/shared-network, then to a candidate lease by
// host match, uid/hwaddr lookup, or free-pool selection subject to
// permit/prohibit rules (§4.4 "Allocation engine").
package alloc

import (
	"encoding/hex"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/errors"

	"github.com/dhcpcore/dhcpd/internal/binding"
	"github.com/dhcpcore/dhcpd/internal/confparse"
	"github.com/dhcpcore/dhcpd/internal/evalexpr"
	"github.com/dhcpcore/dhcpd/internal/lease"
)

// Allocation failure classes.
const (
	// ErrNoNetwork means step 1 (locate network) failed: neither giaddr nor
	// the receiving interface resolves to a configured shared network.
	ErrNoNetwork errors.Error = "no shared network located for request"
	// ErrExhausted means every dynamic-allocation strategy in step 4 failed
	// to produce a candidate address.
	ErrExhausted errors.Error = "no addresses available to lease"
	// ErrNotPermitted means step 5 rejected every pool that could otherwise
	// have served the client.
	ErrNotPermitted errors.Error = "client not permitted by any candidate pool"
)

// AddrChecker probes a candidate address for an existing occupant before
// reusing an abandoned lease (§4.4 step 4.4, §4.5 "BOOTP"). Grounded on
// internal/dhcpsvc/addresschecker.go's addressChecker interface and
// dhcpd/v4.go's ICMP-based addrAvailable.
type AddrChecker interface {
	// IsAvailable reports whether ip appears unoccupied (no ICMP reply).
	IsAvailable(ip netip.Addr) (bool, error)
}

// NoopAddrChecker always reports an address as available, matching
// internal/dhcpsvc/addresschecker.go's noopAddressChecker — used when ICMP
// probing is disabled (zero timeout) or unavailable (no raw-socket
// privilege).
type NoopAddrChecker struct{}

// IsAvailable implements the AddrChecker interface for NoopAddrChecker.
func (NoopAddrChecker) IsAvailable(netip.Addr) (bool, error) { return true, nil }

// type check
var _ AddrChecker = NoopAddrChecker{}

// Request carries the per-packet facts step 1-6 of §4.4 consume.
type Request struct {
	Giaddr netip.Addr
	HWAddr []byte
	UID    []byte

	// IfaceNetwork is the shared network of the interface that received
	// the packet, used as the giaddr-zero fallback (§4.4 step 1).
	IfaceNetwork *Network

	// Authenticated reports whether the message carried a validated
	// authentication option (§4.4 step 5); resolved by internal/proto.
	Authenticated bool

	Now time.Time
}

// Engine is the allocation engine: the host index, class registry, billing
// ledger, and shared-network locator for one server instance, plus the
// table of non-free leases keyed by client identity used for renewal and
// expired-lease reuse (§4.4 steps 4.1-4.2).
type Engine struct {
	Locator       *Locator
	Hosts         *HostIndex
	Classes       *ClassRegistry
	Billing       *BillingLedger
	AddrChecker   AddrChecker
	GlobalScope   *binding.Scope
	LeaseDuration time.Duration

	// byClientKey indexes every lease not currently Free by the client
	// identity (uid, falling back to hwaddr) that holds it, supporting the
	// renewal and expired-reuse lookups of step 4 without a pool scan.
	byClientKey map[string]*lease.Lease
}

// NewEngine builds an Engine. addrChecker may be [NoopAddrChecker]{} if ICMP
// probing is disabled.
func NewEngine(
	locator *Locator,
	hosts *HostIndex,
	classes *ClassRegistry,
	billing *BillingLedger,
	addrChecker AddrChecker,
	globalScope *binding.Scope,
	leaseDuration time.Duration,
) *Engine {
	return &Engine{
		Locator:       locator,
		Hosts:         hosts,
		Classes:       classes,
		Billing:       billing,
		AddrChecker:   addrChecker,
		GlobalScope:   globalScope,
		LeaseDuration: leaseDuration,
		byClientKey:   map[string]*lease.Lease{},
	}
}

// clientKey returns the identity key used for the renewal/expired-reuse
// lookups: the uid if present (option 61 takes precedence per §4.4 step 2's
// probe order), else the hardware address.
func clientKey(uid, hwaddr []byte) string {
	if len(uid) > 0 {
		return "u:" + hex.EncodeToString(uid)
	}

	return "h:" + hex.EncodeToString(hwaddr)
}

// Track registers l under its client identity so it can be found by a
// later renewal or expired-reuse lookup. internal/proto's handlers call
// this whenever a lease transitions away from Free, and internal/server
// calls it for each replayed active, bootp or expired lease at startup.
func (e *Engine) Track(l *lease.Lease) {
	e.byClientKey[clientKey(l.UID, l.HWAddr)] = l
}

// Untrack removes l from the client-identity table, called when a lease
// returns to Free.
func (e *Engine) Untrack(l *lease.Lease) {
	key := clientKey(l.UID, l.HWAddr)
	if cur, ok := e.byClientKey[key]; ok && cur == l {
		delete(e.byClientKey, key)
	}
}

// Lookup returns the lease currently held by the client identified by uid
// (falling back to hwaddr), if any — used by internal/proto to validate a
// DHCPREQUEST against the lease it claims to renew or select.
func (e *Engine) Lookup(uid, hwaddr []byte) (*lease.Lease, bool) {
	l, ok := e.byClientKey[clientKey(uid, hwaddr)]

	return l, ok
}

// NewClassTester builds the per-request class-membership tester Allocate
// itself uses, exposed so internal/proto can build the same precedence-
// respecting option scope for a request that didn't go through Allocate
// (e.g. DHCPINFORM, which has no allocation step).
func (e *Engine) NewClassTester(ctx *evalexpr.Context, known, authenticated bool) *RequestClassTester {
	return NewRequestClassTester(e.Classes, e.GlobalScope, ctx, known, authenticated)
}

// Allocate runs §4.4 steps 1 through 6 against req, returning the selected
// lease (not yet committed — internal/lease's state machine and journal own
// persistence) and the host declaration that matched, if any.
func (e *Engine) Allocate(req *Request) (l *lease.Lease, host *confparse.Host, err error) {
	network, ok := e.Locator.Locate(req.Giaddr, req.IfaceNetwork)
	if !ok {
		return nil, nil, ErrNoNetwork
	}

	candidates := e.candidateHosts(req)
	known := len(candidates) > 0

	ctx := &evalexpr.Context{Known: known}
	tester := NewRequestClassTester(e.Classes, e.GlobalScope, ctx, known, req.Authenticated)
	ctx.ClassTester = tester

	for _, h := range candidates {
		ip, fixedOK := ResolveFixedAddress(h, network, e.GlobalScope, ctx)
		if !fixedOK {
			continue
		}

		l = &lease.Lease{
			IP:     ip,
			HWAddr: req.HWAddr,
			UID:    req.UID,
			State:  lease.StateFree,
			Bootp:  h.FixedAddress != nil,
		}

		if err = e.billLease(tester, l); err != nil {
			return nil, nil, err
		}

		return l, h, nil
	}

	l, err = e.allocateDynamic(req, network, tester)
	if err != nil {
		return nil, nil, err
	}

	if err = e.billLease(tester, l); err != nil {
		return nil, nil, err
	}

	return l, nil, nil
}

// billLease implements §4.4 step 6: if the client is a member of a
// lease-limited class, reserve a slot in its billing ring, rejecting the
// allocation on overflow. The first matching class in configuration order
// is billed, mirroring the deterministic "selected class" §4.4 assumes.
func (e *Engine) billLease(tester *RequestClassTester, l *lease.Lease) error {
	for _, c := range e.Classes.BillingClasses() {
		member, err := tester.TestClass(c.Name)
		if err != nil {
			return err
		}

		if !member {
			continue
		}

		if err = e.Billing.Reserve(c.Name, l.IP); err != nil {
			return err
		}

		l.BillingClass = c.Name

		return nil
	}

	return nil
}

// allocateDynamic implements §4.4 step 4's four-strategy search in order.
func (e *Engine) allocateDynamic(
	req *Request,
	network *Network,
	tester *RequestClassTester,
) (*lease.Lease, error) {
	key := clientKey(req.UID, req.HWAddr)

	if cur, ok := e.byClientKey[key]; ok && cur.State == lease.StateActive {
		return cur, nil
	}

	if cur, ok := e.byClientKey[key]; ok && cur.State == lease.StateExpired {
		return cur, nil
	}

	pools := network.AllPools()

	for _, p := range pools {
		l, err := p.TakeLRUFree(tester)
		if err != nil {
			return nil, err
		}

		if l == nil {
			continue
		}

		l.HWAddr = req.HWAddr
		l.UID = req.UID
		l.Ends = req.Now.Add(e.LeaseDuration)

		return l, nil
	}

	for _, p := range pools {
		ok, err := p.Admit(tester)
		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		l := p.TakeLRUAbandoned()
		if l == nil {
			continue
		}

		avail, err := e.AddrChecker.IsAvailable(l.IP)
		if err != nil {
			return nil, err
		}

		if !avail {
			p.AddAbandoned(l)

			continue
		}

		l.Abandoned = false
		l.HWAddr = req.HWAddr
		l.UID = req.UID
		l.Ends = req.Now.Add(e.LeaseDuration)

		return l, nil
	}

	for _, p := range pools {
		if ip, ok := p.NextFreeAddr(); ok {
			ok2, err := p.Admit(tester)
			if err != nil {
				return nil, err
			}

			if !ok2 {
				continue
			}

			p.markLeased(ip, true)

			return &lease.Lease{
				IP:     ip,
				HWAddr: req.HWAddr,
				UID:    req.UID,
				State:  lease.StateFree,
				Ends:   req.Now.Add(e.LeaseDuration),
			}, nil
		}
	}

	return nil, ErrExhausted
}

// candidateHosts collects the host declarations matching req by hwaddr,
// then by uid. Hosts declared with `host-identifier option` are not probed:
// a host matched only through its identifier option is never a candidate.
func (e *Engine) candidateHosts(req *Request) []*confparse.Host {
	var hosts []*confparse.Host

	hosts = append(hosts, e.Hosts.ByHWAddr(req.HWAddr)...)
	hosts = append(hosts, e.Hosts.ByUID(req.UID)...)

	return hosts
}
