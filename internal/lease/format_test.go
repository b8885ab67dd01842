package lease_test

import (
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcpcore/dhcpd/internal/lease"
)

func TestWriteRecord(t *testing.T) {
	l := &lease.Lease{
		IP:       netip.MustParseAddr("10.0.0.7"),
		HWAddr:   []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		HWType:   "ethernet",
		Hostname: "foo",
		Starts:   time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC),
		Ends:     time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		State:    lease.StateActive,
	}

	var sb strings.Builder
	require.NoError(t, lease.WriteRecord(&sb, l))

	out := sb.String()
	assert.Contains(t, out, "lease 10.0.0.7 {")
	assert.Contains(t, out, "hardware ethernet 00:11:22:33:44:55;")
	assert.Contains(t, out, `hostname "foo";`)
	assert.Contains(t, out, "binding state active;")
	assert.True(t, strings.HasSuffix(out, "}\n"))
}
