// Fixed-address resolution implements §4.4 step 3: "For each candidate
// host, evaluate its fixed-address expression to produce a list of IPs;
// select the first IP that lies within the located shared-network."
package alloc

import (
	"net/netip"
	"strings"

	"github.com/dhcpcore/dhcpd/internal/binding"
	"github.com/dhcpcore/dhcpd/internal/confparse"
	"github.com/dhcpcore/dhcpd/internal/evalexpr"
)

// ResolveFixedAddress evaluates host's FixedAddress expression against
// scope/ctx and returns the first resulting address contained in network,
// or false if the host has no fixed address or none of its candidate
// addresses fall within network.
func ResolveFixedAddress(
	host *confparse.Host,
	network *Network,
	scope *binding.Scope,
	ctx *evalexpr.Context,
) (netip.Addr, bool) {
	if host.FixedAddress == nil {
		return netip.Addr{}, false
	}

	res, err := evalexpr.Evaluate(host.FixedAddress, scope, ctx)
	if err != nil || len(res.Data) == 0 {
		return netip.Addr{}, false
	}

	for _, candidate := range candidateAddrs(res.Data) {
		if _, ok := network.subnetFor(candidate); ok {
			return candidate, true
		}
	}

	return netip.Addr{}, false
}

// candidateAddrs parses a fixed-address result, which may be a single
// 4-byte binary address, a space-separated list of dotted-quad strings, or
// a single dotted-quad string — the `fixed-address` grammar (§3 "Host
// declaration") accepts a comma-separated list of hostnames/addresses that
// the parser concatenates into one data expression.
func candidateAddrs(data []byte) []netip.Addr {
	if len(data) == 4 {
		if addr, ok := netip.AddrFromSlice(data); ok {
			return []netip.Addr{addr}
		}
	}

	var out []netip.Addr
	for _, field := range strings.Fields(string(data)) {
		field = strings.Trim(field, ",")
		if addr, err := netip.ParseAddr(field); err == nil {
			out = append(out, addr)
		}
	}

	return out
}
