//go:build unix

package server

import (
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"

	"github.com/dhcpcore/dhcpd/internal/alloc"
	"github.com/dhcpcore/dhcpd/internal/confparse"
)

func TestMsgType(t *testing.T) {
	req := &layers.DHCPv4{
		Options: layers.DHCPOptions{
			layers.NewDHCPOption(layers.DHCPOptMessageType, []byte{byte(layers.DHCPMsgTypeDiscover)}),
		},
	}

	typ, ok := msgType(req)
	assert.True(t, ok)
	assert.Equal(t, layers.DHCPMsgTypeDiscover, typ)

	_, ok = msgType(&layers.DHCPv4{})
	assert.False(t, ok)
}

func TestResponseAddr(t *testing.T) {
	s := &Server{listener: &listener{serverPort: defaultServerPort, clientPort: defaultClientPort}}

	giaddrReq := &layers.DHCPv4{RelayAgentIP: net.IPv4(198, 51, 100, 1)}
	assert.Equal(t,
		netip.AddrPortFrom(netip.MustParseAddr("198.51.100.1"), defaultServerPort),
		s.responseAddr(giaddrReq),
	)

	ciaddrReq := &layers.DHCPv4{ClientIP: net.IPv4(192, 0, 2, 50)}
	assert.Equal(t,
		netip.AddrPortFrom(netip.MustParseAddr("192.0.2.50"), defaultClientPort),
		s.responseAddr(ciaddrReq),
	)

	assert.Equal(t, s.listener.broadcastAddr(), s.responseAddr(&layers.DHCPv4{}))
}

func TestResolveAuthoritative(t *testing.T) {
	yes, no := true, false

	subnetAuth := &alloc.Subnet{Decl: &confparse.Subnet{Group: &confparse.Group{Authoritative: &yes}}}
	subnetNotAuth := &alloc.Subnet{Decl: &confparse.Subnet{Group: &confparse.Group{Authoritative: &no}}}
	subnetUnset := &alloc.Subnet{Decl: &confparse.Subnet{Group: &confparse.Group{}}}

	netAuth := &alloc.Network{Decl: &confparse.SharedNetwork{Group: &confparse.Group{Authoritative: &yes}}}
	netUnset := &alloc.Network{Decl: &confparse.SharedNetwork{Group: &confparse.Group{}}}

	assert.True(t, resolveAuthoritative(netUnset, subnetAuth), "subnet statement wins outright")
	assert.False(t, resolveAuthoritative(netAuth, subnetNotAuth), "explicit subnet statement overrides network")
	assert.True(t, resolveAuthoritative(netAuth, subnetUnset), "falls back to the owning shared network")
	assert.False(t, resolveAuthoritative(netUnset, subnetUnset), "defaults to false when neither sets it")
	assert.False(t, resolveAuthoritative(nil, nil), "nil network and subnet default to false")
}
