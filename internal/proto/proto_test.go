package proto_test

import (
	"context"
	"io"
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/gopacket/layers"

	"github.com/dhcpcore/dhcpd/internal/alloc"
	"github.com/dhcpcore/dhcpd/internal/binding"
	"github.com/dhcpcore/dhcpd/internal/confparse"
	"github.com/dhcpcore/dhcpd/internal/dispatch"
	"github.com/dhcpcore/dhcpd/internal/lease"
	"github.com/dhcpcore/dhcpd/internal/optionspace"
	"github.com/dhcpcore/dhcpd/internal/proto"
)

func domainNameOption(value string) *confparse.OptionStmt {
	return &confparse.OptionStmt{
		Action: confparse.OptSupersede,
		Name:   "domain-name",
		Values: []confparse.Expr{&confparse.ConstData{Value: []byte(value)}},
	}
}

func newTestHandler(t *testing.T, subnetStmts, hostStmts []confparse.Statement) (
	*proto.Handler, *proto.Interface, *confparse.Host,
) {
	t.Helper()

	poolDecl := &confparse.Pool{}
	pool, err := alloc.NewPoolFromBounds(
		poolDecl,
		netip.MustParseAddr("192.0.2.10"),
		netip.MustParseAddr("192.0.2.12"),
	)
	require.NoError(t, err)

	subnet := &alloc.Subnet{
		Decl:   &confparse.Subnet{Group: &confparse.Group{Stmts: subnetStmts}},
		Prefix: netip.MustParsePrefix("192.0.2.0/24"),
		Pools:  []*alloc.Pool{pool},
	}
	network := &alloc.Network{Subnets: []*alloc.Subnet{subnet}}

	host := &confparse.Host{
		Name:         "known-host",
		HWAddr:       []byte{0, 1, 2, 3, 4, 5},
		Group:        &confparse.Group{Stmts: hostStmts},
		FixedAddress: &confparse.ConstData{Value: []byte{192, 0, 2, 50}},
	}
	hosts := alloc.NewHostIndex([]*confparse.Host{host})

	globalScope := binding.NewRoot()

	engine := alloc.NewEngine(
		alloc.NewLocator([]*alloc.Network{network}),
		hosts,
		alloc.NewClassRegistry(nil),
		alloc.NewBillingLedger(nil),
		alloc.NoopAddrChecker{},
		globalScope,
		time.Hour,
	)

	journalPath := t.TempDir() + "/leases"
	j, err := lease.Open(journalPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	registry := optionspace.NewRegistry()
	registry.Register(optionspace.NewDHCPUniverse())

	h := &proto.Handler{
		Engine:       engine,
		Journal:      j,
		Write:        lease.WriteRecord,
		Options:      registry,
		Dispatch:     dispatch.New(discardLogger()),
		OfferTimeout: 2 * time.Second,
		Logger:       discardLogger(),
	}

	iface := &proto.Interface{
		Network:       network,
		Address:       netip.MustParseAddr("192.0.2.1"),
		Authoritative: true,
	}

	return h, iface, host
}

func newDiscover(hwaddr []byte, xid uint32) *layers.DHCPv4 {
	return &layers.DHCPv4{
		Operation:    layers.DHCPOpRequest,
		Xid:          xid,
		ClientHWAddr: hwaddr,
		Options: layers.DHCPOptions{
			layers.NewDHCPOption(layers.DHCPOptMessageType, []byte{byte(layers.DHCPMsgTypeDiscover)}),
		},
	}
}

func TestHandler_OptionPrecedence_HostOverridesSubnet(t *testing.T) {
	h, iface, host := newTestHandler(
		t,
		[]confparse.Statement{domainNameOption("subnet.example")},
		[]confparse.Statement{domainNameOption("host.example")},
	)

	resp, err := h.HandleDiscover(context.Background(), iface, newDiscover(host.HWAddr, 42))
	require.NoError(t, err)
	require.NotNil(t, resp)

	domain, ok := findOption(resp.Options, 15)
	require.True(t, ok)
	assert.Equal(t, "host.example", string(domain))
}

func TestHandler_OptionPrecedence_SubnetFallsBackWhenNoHostOverride(t *testing.T) {
	h, iface, host := newTestHandler(
		t,
		[]confparse.Statement{domainNameOption("subnet.example")},
		nil,
	)

	resp, err := h.HandleDiscover(context.Background(), iface, newDiscover(host.HWAddr, 7))
	require.NoError(t, err)
	require.NotNil(t, resp)

	domain, ok := findOption(resp.Options, 15)
	require.True(t, ok)
	assert.Equal(t, "subnet.example", string(domain))
}

func TestHandler_DiscoverRequestDecline_FullCycle(t *testing.T) {
	h, iface, host := newTestHandler(t, nil, nil)
	ctx := context.Background()

	offer, err := h.HandleDiscover(ctx, iface, newDiscover(host.HWAddr, 1))
	require.NoError(t, err)
	require.NotNil(t, offer)

	msgType, ok := findOption(offer.Options, uint8(layers.DHCPOptMessageType))
	require.True(t, ok)
	assert.Equal(t, byte(layers.DHCPMsgTypeOffer), msgType[0])

	req := &layers.DHCPv4{
		Operation:    layers.DHCPOpRequest,
		Xid:          1,
		ClientHWAddr: host.HWAddr,
		Options: layers.DHCPOptions{
			layers.NewDHCPOption(layers.DHCPOptMessageType, []byte{byte(layers.DHCPMsgTypeRequest)}),
			layers.NewDHCPOption(layers.DHCPOptRequestIP, []byte{192, 0, 2, 50}),
		},
	}

	ack, err := h.HandleRequest(ctx, iface, req)
	require.NoError(t, err)
	require.NotNil(t, ack)

	ackType, ok := findOption(ack.Options, uint8(layers.DHCPOptMessageType))
	require.True(t, ok)
	assert.Equal(t, byte(layers.DHCPMsgTypeAck), ackType[0])

	decline := &layers.DHCPv4{
		Operation:    layers.DHCPOpRequest,
		ClientHWAddr: host.HWAddr,
		Options: layers.DHCPOptions{
			layers.NewDHCPOption(layers.DHCPOptMessageType, []byte{byte(layers.DHCPMsgTypeDecline)}),
			layers.NewDHCPOption(layers.DHCPOptRequestIP, []byte{192, 0, 2, 50}),
		},
	}

	require.NoError(t, h.HandleDecline(ctx, iface, decline))

	_, stillTracked := h.Engine.Lookup(nil, host.HWAddr)
	assert.False(t, stillTracked)
}

func findOption(opts layers.DHCPOptions, code uint8) ([]byte, bool) {
	for _, o := range opts {
		if uint8(o.Type) == code {
			return o.Data, true
		}
	}

	return nil, false
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
