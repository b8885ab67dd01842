package ddns_test

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dhcpcore/dhcpd/internal/ddns"
)

func TestRetryQueue_FlushRequeuesOnFailure(t *testing.T) {
	q := ddns.NewRetryQueue()
	ip := netip.MustParseAddr("192.0.2.5")

	attempts := 0
	q.Defer(ip, ddns.Pending{Apply: func(context.Context, *ddns.Client) error {
		attempts++

		return errors.New("boom")
	}})

	q.Flush(context.Background(), &ddns.Client{}, ip)
	assert.Equal(t, 1, attempts)

	// Still pending: a second flush retries again.
	q.Flush(context.Background(), &ddns.Client{}, ip)
	assert.Equal(t, 2, attempts)
}

func TestRetryQueue_FlushDropsOnSuccess(t *testing.T) {
	q := ddns.NewRetryQueue()
	ip := netip.MustParseAddr("192.0.2.6")

	attempts := 0
	q.Defer(ip, ddns.Pending{Apply: func(context.Context, *ddns.Client) error {
		attempts++

		return nil
	}})

	q.Flush(context.Background(), &ddns.Client{}, ip)
	q.Flush(context.Background(), &ddns.Client{}, ip)

	assert.Equal(t, 1, attempts)
}

func TestRetryQueue_FlushNoop(t *testing.T) {
	q := ddns.NewRetryQueue()
	ip := netip.MustParseAddr("192.0.2.7")

	// Flushing an IP with nothing queued must not panic.
	q.Flush(context.Background(), &ddns.Client{}, ip)
}
