// Package proto implements the protocol handlers sketched in §4.7:
// DHCPDISCOVER/REQUEST (SELECTING/INIT-REBOOT/RENEWING-REBINDING)/DECLINE/
// RELEASE/INFORM, response construction, and the option-merge precedence
// "per-host, per-class, per-pool, per-subnet, per-shared-network, per-group,
// global option-states."
//
// Grounded directly on internal/dhcpsvc/handler4.go's three-way REQUEST
// split and handleDiscover/handleDecline/handleRelease shape, and v4.go's
// respondOffer/respondACK/respondNAK/buildResponse gopacket-layers
// construction. Addressing (RFC 1542 unicast/giaddr/broadcast destination
// selection) is left to internal/server, consistent with §6's dispatcher
// ABI boundary ("send(interface, bytes, to_addr, to_link)" — this package
// only produces the bytes).
package proto

import (
	"net"
	"net/netip"

	"github.com/google/gopacket/layers"

	"github.com/dhcpcore/dhcpd/internal/alloc"
)

// Interface is the per-listening-interface context a handler needs: the
// shared network it serves and its own address (used as the DHCP server
// identifier).
type Interface struct {
	Network       *alloc.Network
	Address       netip.Addr
	Authoritative bool
}

// dhcpOptClientID is RFC 2132 option 61, not named directly by
// internal/dhcpsvc's options4.go (which never needed it), so it's spelled
// out as the raw standardized code rather than guessed.
const dhcpOptClientID = layers.DHCPOpt(61)

// giaddrOf returns req's relay-agent address, or the zero value if unset.
func giaddrOf(req *layers.DHCPv4) netip.Addr {
	ip, ok := netip.AddrFromSlice(req.RelayAgentIP.To4())
	if !ok {
		return netip.Addr{}
	}

	return ip
}

// ciaddrOf returns req's client IP field, or the zero value if unset.
func ciaddrOf(req *layers.DHCPv4) netip.Addr {
	ip, ok := netip.AddrFromSlice(req.ClientIP.To4())
	if !ok {
		return netip.Addr{}
	}

	return ip
}

// optData returns the raw bytes of the first option in req matching typ.
func optData(req *layers.DHCPv4, typ layers.DHCPOpt) ([]byte, bool) {
	for _, opt := range req.Options {
		if opt.Type == typ {
			return opt.Data, true
		}
	}

	return nil, false
}

// uidOf returns the client-identifier option (61), falling back to nil
// (matched by hwaddr instead) if absent.
func uidOf(req *layers.DHCPv4) []byte {
	data, _ := optData(req, dhcpOptClientID)

	return data
}

// requestedIP returns the requested-IP option (50), if present.
func requestedIP(req *layers.DHCPv4) (netip.Addr, bool) {
	data, ok := optData(req, layers.DHCPOptRequestIP)
	if !ok || len(data) != net.IPv4len {
		return netip.Addr{}, false
	}

	return netip.AddrFromSlice(data)
}

// serverID returns the server-identifier option (54), if present.
func serverID(req *layers.DHCPv4) (netip.Addr, bool) {
	data, ok := optData(req, layers.DHCPOptServerID)
	if !ok || len(data) != net.IPv4len {
		return netip.Addr{}, false
	}

	return netip.AddrFromSlice(data)
}

// hostnameOf returns the hostname option (12), if present.
func hostnameOf(req *layers.DHCPv4) string {
	data, ok := optData(req, layers.DHCPOptHostname)
	if !ok {
		return ""
	}

	return string(data)
}
