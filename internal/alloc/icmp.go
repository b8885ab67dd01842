package alloc

import (
	"log/slog"
	"net/netip"
	"time"

	ping "github.com/sparrc/go-ping"
)

// ICMPAddrChecker probes a candidate address with a single ICMP echo before
// it is reused out of the abandoned-lease pool, treating a reply as
// evidence of an undeclared occupant (§4.4 step 4.4, §4.5 "BOOTP").
//
// Grounded directly on dhcpd/v4.go's addrAvailable, generalized from a
// package-level helper on the legacy v4Server into a reusable AddrChecker.
type ICMPAddrChecker struct {
	Logger  *slog.Logger
	Timeout time.Duration
}

// IsAvailable implements the AddrChecker interface for ICMPAddrChecker. A
// zero Timeout disables probing and always reports the address available,
// matching internal/dhcpsvc/addresschecker.go's noopAddressChecker
// fallback.
func (c *ICMPAddrChecker) IsAvailable(ip netip.Addr) (bool, error) {
	if c.Timeout == 0 {
		return true, nil
	}

	pinger, err := ping.NewPinger(ip.String())
	if err != nil {
		c.Logger.Error("creating pinger", "error", err)

		return true, nil
	}

	pinger.SetPrivileged(true)
	pinger.Timeout = c.Timeout
	pinger.Count = 1

	replied := false
	pinger.OnRecv = func(*ping.Packet) { replied = true }

	c.Logger.Debug("sending icmp echo", "target", ip)
	pinger.Run()

	if replied {
		c.Logger.Info("ip conflict: address already in use", "target", ip)

		return false, nil
	}

	return true, nil
}

// type check
var _ AddrChecker = (*ICMPAddrChecker)(nil)
