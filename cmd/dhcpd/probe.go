//go:build unix

package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/iana"
)

// discoverProbeTimeout bounds how long checkOtherDHCPServer waits for a
// reply before concluding no other server is listening, grounded on
// internal/dhcpd/check_other_dhcp.go's defaultDiscoverTime.
const discoverProbeTimeout = 3 * time.Second

// checkOtherDHCPServer implements supplement C.1's check_other_dhcp-style
// startup probe: it sends a DHCPDISCOVER out ifaceName and reports whether
// anything answered. A detected foreign server is advisory only — the
// caller logs it and proceeds with startup regardless.
//
// Grounded on internal/dhcpd/check_other_dhcp.go's
// CheckIfOtherDHCPServersPresentV4, simplified to a plain UDP socket
// (matching internal/server/listener.go's own choice not to reach for a
// raw/link-layer send) instead of that function's nclient4.NewRawUDPConn.
func checkOtherDHCPServer(ifaceName string) (found bool, err error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return false, fmt.Errorf("finding interface %q: %w", ifaceName, err)
	}

	req, err := dhcpv4.NewDiscovery(iface.HardwareAddr)
	if err != nil {
		return false, fmt.Errorf("building probe discover: %w", err)
	}

	req.Options.Update(dhcpv4.OptClientIdentifier(iface.HardwareAddr))

	hostname, _ := os.Hostname()
	if hostname != "" {
		req.Options.Update(dhcpv4.OptHostName(hostname))
	}

	conn, err := net.ListenPacket("udp4", ":68")
	if err != nil {
		return false, fmt.Errorf("listening on udp :68: %w", err)
	}
	defer func() { _ = conn.Close() }()

	dst, err := net.ResolveUDPAddr("udp4", "255.255.255.255:67")
	if err != nil {
		return false, fmt.Errorf("resolving broadcast address: %w", err)
	}

	if _, err = conn.WriteTo(req.ToBytes(), dst); err != nil {
		return false, fmt.Errorf("sending probe discover: %w", err)
	}

	if err = conn.SetReadDeadline(time.Now().Add(discoverProbeTimeout)); err != nil {
		return false, fmt.Errorf("setting read deadline: %w", err)
	}

	buf := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if os.IsTimeout(err) {
				return false, nil
			}

			return false, fmt.Errorf("reading probe response: %w", err)
		}

		resp, err := dhcpv4.FromBytes(buf[:n])
		if err != nil {
			continue
		}

		if resp.OpCode == dhcpv4.OpcodeBootReply &&
			resp.HWType == iana.HWTypeEthernet &&
			bytes.Equal(resp.ClientHWAddr, iface.HardwareAddr) &&
			bytes.Equal(resp.TransactionID[:], req.TransactionID[:]) &&
			resp.Options.Has(dhcpv4.OptionDHCPMessageType) {
			return true, nil
		}
	}
}

// probeInterfaces runs checkOtherDHCPServer on every named interface,
// logging (never failing startup over) anything it finds.
func probeInterfaces(ctx context.Context, logger *slog.Logger, ifaces []string) {
	for _, name := range ifaces {
		found, err := checkOtherDHCPServer(name)
		if err != nil {
			logger.WarnContext(ctx, "foreign dhcp server probe failed", "interface", name, "error", err)

			continue
		}

		if found {
			logger.WarnContext(ctx, "another dhcp server appears to be active", "interface", name)
		}
	}
}
