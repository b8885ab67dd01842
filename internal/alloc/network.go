package alloc

import (
	"net/netip"

	"github.com/dhcpcore/dhcpd/internal/confparse"
)

// Subnet is the runtime counterpart of a confparse.Subnet: its network
// prefix and the pools (including an implicit whole-subnet pool, if the
// declaration has no explicit `pool { … }` blocks) serving it.
type Subnet struct {
	Decl   *confparse.Subnet
	Prefix netip.Prefix
	Pools  []*Pool
}

// Contains reports whether ip falls within s's prefix.
func (s *Subnet) Contains(ip netip.Addr) bool {
	return s.Prefix.Contains(ip)
}

// Network is the runtime counterpart of a confparse.SharedNetwork (or of a
// standalone subnet treated as a one-subnet shared network, per §3 "Shared
// network": "A standalone subnet behaves as a shared network of one.").
type Network struct {
	Decl    *confparse.SharedNetwork
	Subnets []*Subnet
	// Pools holds pools declared directly on the shared network, spanning
	// more than one subnet.
	Pools []*Pool
}

// AllPools returns every pool reachable from n, subnet-level pools first in
// declaration order followed by shared-network-level pools — matching
// §4.4's tie-break rule that "pool list order matches configuration order."
func (n *Network) AllPools() []*Pool {
	var pools []*Pool
	for _, s := range n.Subnets {
		pools = append(pools, s.Pools...)
	}

	return append(pools, n.Pools...)
}

// subnetFor returns the subnet within n containing ip, if any.
func (n *Network) subnetFor(ip netip.Addr) (*Subnet, bool) {
	for _, s := range n.Subnets {
		if s.Contains(ip) {
			return s, true
		}
	}

	return nil, false
}

// SubnetFor returns the subnet within n containing ip, if any — the
// exported counterpart of subnetFor, used by internal/proto to resolve the
// per-subnet option-state layer for a response (§4.7's merge precedence).
func (n *Network) SubnetFor(ip netip.Addr) (*Subnet, bool) {
	return n.subnetFor(ip)
}

// PoolFor returns the pool within n containing ip, if any.
func (n *Network) PoolFor(ip netip.Addr) (*Pool, bool) {
	for _, p := range n.AllPools() {
		if p.Contains(ip) {
			return p, true
		}
	}

	return nil, false
}

// Locator resolves the shared network serving a request (§4.4 step 1:
// "Locate network. If giaddr is non-zero, find the subnet containing
// giaddr and use its shared-network; else use the receiving interface's
// shared-network.").
type Locator struct {
	networks []*Network
}

// NewLocator builds a Locator over the given set of shared networks
// (standalone subnets already normalized to a one-subnet Network by the
// caller, per internal/config).
func NewLocator(networks []*Network) *Locator {
	return &Locator{networks: networks}
}

// LocateByGiaddr returns the shared network containing a subnet with giaddr
// in its prefix.
func (l *Locator) LocateByGiaddr(giaddr netip.Addr) (*Network, bool) {
	for _, n := range l.networks {
		if _, ok := n.subnetFor(giaddr); ok {
			return n, true
		}
	}

	return nil, false
}

// Locate implements §4.4 step 1 in full: giaddr takes precedence over the
// interface's own network, and a zero giaddr falls through to ifaceNetwork.
func (l *Locator) Locate(giaddr netip.Addr, ifaceNetwork *Network) (*Network, bool) {
	if giaddr.IsValid() && !giaddr.IsUnspecified() {
		return l.LocateByGiaddr(giaddr)
	}

	if ifaceNetwork == nil {
		return nil, false
	}

	return ifaceNetwork, true
}
