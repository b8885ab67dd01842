package lease_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcpcore/dhcpd/internal/confparse"
	"github.com/dhcpcore/dhcpd/internal/lease"
)

func TestLease_TransitionTo(t *testing.T) {
	l := &lease.Lease{State: lease.StateFree}

	now := time.Unix(1000, 0)
	require.NoError(t, l.TransitionTo(lease.StateActive, now))
	assert.Equal(t, lease.StateActive, l.State)
	assert.Equal(t, now, l.Timestamp)

	err := l.TransitionTo(lease.StateBackup, now)
	assert.ErrorIs(t, err, lease.ErrIllegalTransition)
}

func TestLease_IsExpired(t *testing.T) {
	now := time.Unix(2000, 0)

	l := &lease.Lease{State: lease.StateActive, Ends: now.Add(-time.Second)}
	assert.True(t, l.IsExpired(now))

	l2 := &lease.Lease{State: lease.StateActive, Ends: now.Add(time.Second)}
	assert.False(t, l2.IsExpired(now))

	static := &lease.Lease{State: lease.StateActive}
	assert.False(t, static.IsExpired(now))
}

func TestLease_InstallHookAndHooksFor(t *testing.T) {
	l := &lease.Lease{}

	body := []confparse.Statement{&confparse.SetStmt{Var: "x", Expr: &confparse.ConstData{Value: []byte("bye")}}}
	l.InstallHook(confparse.OnExpiry, body)

	got := l.HooksFor(confparse.OnExpiry)
	require.Len(t, got, 1)
	assert.Same(t, body[0], got[0][0])

	assert.Empty(t, l.HooksFor(confparse.OnCommit))
}

func TestLease_Clone(t *testing.T) {
	l := &lease.Lease{HWAddr: []byte{1, 2, 3}, UID: []byte{4, 5}}
	c := l.Clone()

	c.HWAddr[0] = 9
	assert.Equal(t, byte(1), l.HWAddr[0])
}

func TestEventForState(t *testing.T) {
	ev, ok := lease.EventForState(lease.StateActive)
	require.True(t, ok)
	assert.Equal(t, confparse.OnCommit, ev)

	ev, ok = lease.EventForState(lease.StateExpired)
	require.True(t, ok)
	assert.Equal(t, confparse.OnExpiry, ev)

	_, ok = lease.EventForState(lease.StateFree)
	assert.False(t, ok)
}
