package dispatch_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcpcore/dhcpd/internal/dispatch"
)

func TestDispatcher_FiresDueTimer(t *testing.T) {
	d := dispatch.New(slog.New(slog.DiscardHandler))

	var fired atomic.Bool
	done := make(chan struct{})

	d.Register("lease:1", time.Now().Add(20*time.Millisecond), func(context.Context) {
		fired.Store(true)
		close(done)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go d.Run(ctx)

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timer never fired")
	}

	assert.True(t, fired.Load())
}

func TestDispatcher_RegisterDedupsByOwner(t *testing.T) {
	d := dispatch.New(slog.New(slog.DiscardHandler))

	var count atomic.Int32

	d.Register("lease:1", time.Now().Add(time.Hour), func(context.Context) { count.Add(1) })
	d.Register("lease:1", time.Now().Add(10*time.Millisecond), func(context.Context) { count.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	d.Run(ctx)

	require.Equal(t, int32(1), count.Load())
}

func TestDispatcher_Cancel(t *testing.T) {
	d := dispatch.New(slog.New(slog.DiscardHandler))

	var fired atomic.Bool
	d.Register("lease:1", time.Now().Add(10*time.Millisecond), func(context.Context) { fired.Store(true) })
	d.Cancel("lease:1")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	d.Run(ctx)

	assert.False(t, fired.Load())
}
