package lease_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dhcpcore/dhcpd/internal/lease"
)

func writeTestRecord(w io.Writer, l *lease.Lease) error {
	_, err := fmt.Fprintf(w, "lease %s { state %s; }\n", l.IP, l.State)

	return err
}

func TestJournal_AppendAndRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dhcpd.leases")

	j, err := lease.Open(path)
	require.NoError(t, err)
	defer j.Close()

	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	l1 := &lease.Lease{IP: netip.MustParseAddr("192.0.2.10"), State: lease.StateActive}
	require.NoError(t, j.Append(ctx, logger, l1, writeTestRecord))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "192.0.2.10")

	require.NoError(t, j.Rewrite([]*lease.Lease{l1}))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "192.0.2.10")

	require.False(t, j.NeedsRewrite())
}
