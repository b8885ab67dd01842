package omapi_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcpcore/dhcpd/internal/alloc"
	"github.com/dhcpcore/dhcpd/internal/confparse"
	"github.com/dhcpcore/dhcpd/internal/lease"
	"github.com/dhcpcore/dhcpd/internal/omapi"
)

func newTestManager(t *testing.T) *omapi.Manager {
	t.Helper()

	hosts := alloc.NewHostIndex(nil)

	j, err := lease.Open(filepath.Join(t.TempDir(), "leases"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return omapi.NewManager(hosts, j, nil, logger)
}

func TestManager_CreateHost(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	h, err := m.CreateHost(ctx, omapi.HostSpec{
		Name:   "dynamic-host",
		HWAddr: []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		HWType: "ethernet",
	})
	require.NoError(t, err)
	assert.True(t, h.Dynamic)

	found, ok := m.Hosts.ByName("dynamic-host")
	require.True(t, ok)
	assert.Same(t, h, found)

	_, err = m.CreateHost(ctx, omapi.HostSpec{Name: "dynamic-host"})
	assert.ErrorIs(t, err, alloc.ErrHostExists)
}

func TestManager_UpdateHost(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateHost(ctx, omapi.HostSpec{Name: "h1", HWAddr: []byte{1, 2, 3, 4, 5, 6}})
	require.NoError(t, err)

	updated, err := m.UpdateHost(ctx, "h1", omapi.HostSpec{Name: "h1", HWAddr: []byte{9, 9, 9, 9, 9, 9}})
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 9, 9, 9, 9}, updated.HWAddr)

	hosts := m.Hosts.ByHWAddr([]byte{1, 2, 3, 4, 5, 6})
	assert.Empty(t, hosts)

	hosts = m.Hosts.ByHWAddr([]byte{9, 9, 9, 9, 9, 9})
	require.Len(t, hosts, 1)

	_, err = m.UpdateHost(ctx, "missing", omapi.HostSpec{Name: "missing"})
	assert.ErrorIs(t, err, alloc.ErrHostNotFound)
}

func TestManager_DeleteHost(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateHost(ctx, omapi.HostSpec{Name: "h1", HWAddr: []byte{1, 2, 3, 4, 5, 6}})
	require.NoError(t, err)

	require.NoError(t, m.DeleteHost(ctx, "h1"))

	_, ok := m.Hosts.ByName("h1")
	assert.False(t, ok)

	err = m.DeleteHost(ctx, "h1")
	assert.ErrorIs(t, err, alloc.ErrHostNotFound)
}

func TestManager_GroupLifecycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	g, err := m.CreateGroup(ctx, omapi.GroupSpec{Name: "g1"})
	require.NoError(t, err)
	assert.Same(t, g, m.Groups()["g1"])

	_, err = m.CreateGroup(ctx, omapi.GroupSpec{Name: "g1"})
	assert.ErrorIs(t, err, omapi.ErrGroupExists)

	stmt := &confparse.OptionStmt{Action: confparse.OptSupersede, Name: "domain-name"}
	updated, err := m.UpdateGroup(ctx, "g1", []confparse.Statement{stmt})
	require.NoError(t, err)
	assert.Equal(t, []confparse.Statement{stmt}, updated.Stmts)

	require.NoError(t, m.DeleteGroup(ctx, "g1"))
	_, ok := m.Groups()["g1"]
	assert.False(t, ok)

	_, err = m.UpdateGroup(ctx, "g1", nil)
	assert.ErrorIs(t, err, omapi.ErrGroupNotFound)
}

func TestManager_JournalsEveryMutation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leases")
	j, err := lease.Open(path)
	require.NoError(t, err)

	hosts := alloc.NewHostIndex(nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := omapi.NewManager(hosts, j, nil, logger)

	ctx := context.Background()
	_, err = m.CreateHost(ctx, omapi.HostSpec{Name: "h1", HWAddr: []byte{1, 2, 3, 4, 5, 6}})
	require.NoError(t, err)
	_, err = m.CreateGroup(ctx, omapi.GroupSpec{Name: "g1"})
	require.NoError(t, err)

	require.NoError(t, j.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "host h1 {")
	assert.Contains(t, string(data), `group "g1" {`)
}
