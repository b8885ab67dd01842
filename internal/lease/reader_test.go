package lease_test

import (
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcpcore/dhcpd/internal/confparse"
	"github.com/dhcpcore/dhcpd/internal/lease"
)

func TestReadJournal_LeaseRoundTrip(t *testing.T) {
	l := &lease.Lease{
		IP:             netip.MustParseAddr("10.0.0.7"),
		HWAddr:         []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		HWType:         "ethernet",
		UID:            []byte{0x01, 0x02, 0x03},
		ClientHostname: "client1",
		Hostname:       "foo",
		Starts:         time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC),
		Ends:           time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		BillingClass:   "voip",
		Bootp:          true,
		State:          lease.StateBootp,
	}

	var sb strings.Builder
	require.NoError(t, lease.WriteRecord(&sb, l))

	leases, hosts, groups, err := lease.ReadJournal(strings.NewReader(sb.String()), "test")
	require.NoError(t, err)
	assert.Empty(t, hosts)
	assert.Empty(t, groups)

	got, ok := leases[l.IP]
	require.True(t, ok)
	assert.Equal(t, l.HWAddr, got.HWAddr)
	assert.Equal(t, l.HWType, got.HWType)
	assert.Equal(t, l.ClientHostname, got.ClientHostname)
	assert.Equal(t, l.Hostname, got.Hostname)
	assert.Equal(t, l.Starts, got.Starts)
	assert.Equal(t, l.Ends, got.Ends)
	assert.Equal(t, l.BillingClass, got.BillingClass)
	assert.True(t, got.Bootp)
	assert.Equal(t, lease.StateBootp, got.State)
}

func TestReadJournal_LastWriterWinsPerIP(t *testing.T) {
	ip := netip.MustParseAddr("10.0.0.9")
	first := &lease.Lease{IP: ip, Hostname: "first", State: lease.StateActive}
	second := &lease.Lease{IP: ip, Hostname: "second", State: lease.StateExpired}

	var sb strings.Builder
	require.NoError(t, lease.WriteRecord(&sb, first))
	require.NoError(t, lease.WriteRecord(&sb, second))

	leases, _, _, err := lease.ReadJournal(strings.NewReader(sb.String()), "test")
	require.NoError(t, err)

	got, ok := leases[ip]
	require.True(t, ok)
	assert.Equal(t, "second", got.Hostname)
	assert.Equal(t, lease.StateExpired, got.State)
}

func TestReadJournal_HostAndGroupRecords(t *testing.T) {
	h := &confparse.Host{
		Name:     "dynamic-host",
		HWAddr:   []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		HWType:   "ethernet",
		GroupRef: "g1",
		Dynamic:  true,
	}
	g := &confparse.Group{Name: "g1"}

	var sb strings.Builder
	require.NoError(t, lease.WriteHostRecord(&sb, h))
	require.NoError(t, lease.WriteGroupRecord(&sb, g))

	leases, hosts, groups, err := lease.ReadJournal(strings.NewReader(sb.String()), "test")
	require.NoError(t, err)
	assert.Empty(t, leases)

	gotHost, ok := hosts["dynamic-host"]
	require.True(t, ok)
	assert.Equal(t, h.HWAddr, gotHost.HWAddr)
	assert.True(t, gotHost.Dynamic)
	assert.Equal(t, "g1", gotHost.GroupRef)

	_, ok = groups["g1"]
	assert.True(t, ok)
}

func TestReadJournal_DeletedHostTombstone(t *testing.T) {
	h := &confparse.Host{Name: "gone", Deleted: true}

	var sb strings.Builder
	require.NoError(t, lease.WriteHostRecord(&sb, h))

	_, hosts, _, err := lease.ReadJournal(strings.NewReader(sb.String()), "test")
	require.NoError(t, err)

	got, ok := hosts["gone"]
	require.True(t, ok)
	assert.True(t, got.Deleted)
}
