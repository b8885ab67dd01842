package config_test

import (
	"io"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcpcore/dhcpd/internal/config"
	"github.com/dhcpcore/dhcpd/internal/confparse"
	"github.com/dhcpcore/dhcpd/internal/lease"
)

const testDSL = `
host foo {
  hardware ethernet 00:11:22:33:44:55;
  fixed-address 10.0.0.7;
}

subnet 10.0.0.0 netmask 255.255.255.0 {
  range 10.0.0.100 10.0.0.101;
  authoritative;
}
`

func writeDSLFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dhcpd.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadNetwork_NoJournal(t *testing.T) {
	dslPath := writeDSLFile(t, testDSL)
	cfg := &config.Config{
		ConfigFile:  dslPath,
		JournalPath: filepath.Join(t.TempDir(), "leases"),
	}

	rt, err := config.LoadNetwork(cfg, testLogger())
	require.NoError(t, err)

	_, ok := rt.Hosts.ByName("foo")
	assert.True(t, ok)

	require.Len(t, rt.Networks, 1)
	subnet, ok := rt.Networks[0].SubnetFor(netip.MustParseAddr("10.0.0.100"))
	require.True(t, ok)
	require.Len(t, subnet.Pools, 1)

	assert.Empty(t, rt.Leases)
}

func TestLoadNetwork_ReplaysJournal(t *testing.T) {
	dslPath := writeDSLFile(t, testDSL)
	journalPath := filepath.Join(t.TempDir(), "leases")

	func() {
		w, err := os.Create(journalPath)
		require.NoError(t, err)
		defer w.Close()

		l := &lease.Lease{IP: netip.MustParseAddr("10.0.0.100"), State: lease.StateActive}
		require.NoError(t, lease.WriteRecord(w, l))
	}()

	cfg := &config.Config{ConfigFile: dslPath, JournalPath: journalPath}

	rt, err := config.LoadNetwork(cfg, testLogger())
	require.NoError(t, err)

	got, ok := rt.Leases[netip.MustParseAddr("10.0.0.100")]
	require.True(t, ok)
	assert.Equal(t, lease.StateActive, got.State)
}

func TestLoadNetwork_JournaledHostOverridesDeclaration(t *testing.T) {
	dslPath := writeDSLFile(t, testDSL)
	journalPath := filepath.Join(t.TempDir(), "leases")

	w, err := os.Create(journalPath)
	require.NoError(t, err)
	h := &confparse.Host{Name: "foo", HWAddr: []byte{0, 0x11, 0x22, 0x33, 0x44, 0x55}, HWType: "ethernet", Dynamic: true}
	require.NoError(t, lease.WriteHostRecord(w, h))
	require.NoError(t, w.Close())

	cfg := &config.Config{ConfigFile: dslPath, JournalPath: journalPath}

	rt, err := config.LoadNetwork(cfg, testLogger())
	require.NoError(t, err)

	h, ok := rt.Hosts.ByName("foo")
	require.True(t, ok)
	assert.True(t, h.Dynamic)
}
