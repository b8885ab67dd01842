package alloc_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcpcore/dhcpd/internal/alloc"
	"github.com/dhcpcore/dhcpd/internal/binding"
	"github.com/dhcpcore/dhcpd/internal/confparse"
)

func newTestNetwork(t *testing.T, permit, prohibit []string) (*alloc.Network, *alloc.Pool) {
	t.Helper()

	poolDecl := &confparse.Pool{Permit: permit, Prohibit: prohibit}
	pool, err := alloc.NewPoolFromBounds(
		poolDecl,
		netip.MustParseAddr("192.0.2.10"),
		netip.MustParseAddr("192.0.2.12"),
	)
	require.NoError(t, err)

	subnet := &alloc.Subnet{
		Decl:   &confparse.Subnet{},
		Prefix: netip.MustParsePrefix("192.0.2.0/24"),
		Pools:  []*alloc.Pool{pool},
	}

	return &alloc.Network{Subnets: []*alloc.Subnet{subnet}}, pool
}

func TestEngine_DynamicAllocation_FreePool(t *testing.T) {
	network, _ := newTestNetwork(t, nil, nil)

	engine := alloc.NewEngine(
		alloc.NewLocator([]*alloc.Network{network}),
		alloc.NewHostIndex(nil),
		alloc.NewClassRegistry(nil),
		alloc.NewBillingLedger(nil),
		alloc.NoopAddrChecker{},
		binding.NewRoot(),
		time.Hour,
	)

	req := &alloc.Request{
		HWAddr:       []byte{0, 1, 2, 3, 4, 5},
		IfaceNetwork: network,
		Now:          time.Unix(1000, 0),
	}

	l, host, err := engine.Allocate(req)
	require.NoError(t, err)
	assert.Nil(t, host)
	require.NotNil(t, l)
	assert.True(t, l.IP.Is4())
}

func TestEngine_ClassDeny(t *testing.T) {
	network, _ := newTestNetwork(t, nil, []string{"unknown"})

	hosts := []*confparse.Host{
		{Name: "known-host", HWAddr: []byte{0, 1, 2, 3, 4, 5}},
	}

	engine := alloc.NewEngine(
		alloc.NewLocator([]*alloc.Network{network}),
		alloc.NewHostIndex(hosts),
		alloc.NewClassRegistry(nil),
		alloc.NewBillingLedger(nil),
		alloc.NoopAddrChecker{},
		binding.NewRoot(),
		time.Hour,
	)

	// Known client (matches the host by hwaddr) is allowed since the pool
	// only denies "unknown".
	known := &alloc.Request{
		HWAddr:       []byte{0, 1, 2, 3, 4, 5},
		IfaceNetwork: network,
		Now:          time.Unix(1000, 0),
	}
	_, _, err := engine.Allocate(known)
	require.NoError(t, err)

	// Unknown client (no matching host) is denied by the pool.
	unknown := &alloc.Request{
		HWAddr:       []byte{9, 9, 9, 9, 9, 9},
		IfaceNetwork: network,
		Now:          time.Unix(1000, 0),
	}
	_, _, err = engine.Allocate(unknown)
	assert.ErrorIs(t, err, alloc.ErrExhausted)
}

func TestEngine_NoNetworkLocated(t *testing.T) {
	engine := alloc.NewEngine(
		alloc.NewLocator(nil),
		alloc.NewHostIndex(nil),
		alloc.NewClassRegistry(nil),
		alloc.NewBillingLedger(nil),
		alloc.NoopAddrChecker{},
		binding.NewRoot(),
		time.Hour,
	)

	_, _, err := engine.Allocate(&alloc.Request{Now: time.Unix(1, 0)})
	assert.ErrorIs(t, err, alloc.ErrNoNetwork)
}

func TestEngine_FixedAddress(t *testing.T) {
	network, _ := newTestNetwork(t, nil, nil)

	hosts := []*confparse.Host{
		{
			Name:         "fixed-host",
			HWAddr:       []byte{1, 2, 3, 4, 5, 6},
			FixedAddress: &confparse.ConstData{Value: []byte("192.0.2.50")},
		},
	}

	engine := alloc.NewEngine(
		alloc.NewLocator([]*alloc.Network{network}),
		alloc.NewHostIndex(hosts),
		alloc.NewClassRegistry(nil),
		alloc.NewBillingLedger(nil),
		alloc.NoopAddrChecker{},
		binding.NewRoot(),
		time.Hour,
	)

	req := &alloc.Request{
		HWAddr:       []byte{1, 2, 3, 4, 5, 6},
		IfaceNetwork: network,
		Now:          time.Unix(1000, 0),
	}

	l, host, err := engine.Allocate(req)
	require.NoError(t, err)
	require.NotNil(t, host)
	assert.Equal(t, "192.0.2.50", l.IP.String())
}

func TestBillingLedger_Overflow(t *testing.T) {
	classes := []*confparse.Class{{Name: "voip", LeaseLimit: 1}}
	ledger := alloc.NewBillingLedger(classes)

	ip1 := netip.MustParseAddr("192.0.2.1")
	ip2 := netip.MustParseAddr("192.0.2.2")

	require.NoError(t, ledger.Reserve("voip", ip1))
	assert.ErrorIs(t, ledger.Reserve("voip", ip2), alloc.ErrBillingFull)

	ledger.Release("voip", ip1)
	assert.NoError(t, ledger.Reserve("voip", ip2))
}
