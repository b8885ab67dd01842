//go:build unix

package server

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// defaultServerPort and defaultClientPort are the standard DHCPv4 port pair
// (RFC 2131 §4.1), used unless overridden by the `-p` CLI flag (§6 "CLI").
const (
	defaultServerPort = 67
	defaultClientPort = 68
)

// inboundPacket is one received DHCPv4 message plus the addressing facts
// [listener.Send] needs to reply correctly: which interface it arrived on,
// since a single wildcard socket serves every configured interface.
type inboundPacket struct {
	data    []byte
	ifIndex int
}

// listener is the concrete instantiation of §6's "Dispatcher ABI consumed
// from the platform" (`receive`/`send`) this module's own Non-goals scope
// out as an external collaborator: one wildcard UDP socket bound to port 67,
// with per-packet interface control messages substituting for the
// raw-socket/BPF capture the Non-goals exclude. No pack repo implements a
// DHCP listener this way (AdGuardHome's dhcpsvc/dhcpd packages both capture
// raw ethernet frames via a pcap-backed NetworkDevice, which needs
// libppcap/cgo and a privilege this module doesn't assume), so this follows
// golang.org/x/net/ipv4's own documented ControlMessage/IfIndex pattern —
// golang.org/x/net is already part of the teacher's dependency closure.
type listener struct {
	conn       *ipv4.PacketConn
	serverPort int
	clientPort int
}

// newListener opens the shared wildcard socket on serverPort (0 means
// [defaultServerPort]), enabling SO_REUSEADDR and SO_BROADCAST the same way
// internal/aghnet/interfaces_unix.go's reuseAddrCtrl configures a listening
// socket via a net.ListenConfig.Control callback and golang.org/x/sys/unix.
// The paired client port is serverPort+1 unless serverPort is the default,
// in which case it's the standard 68 — a non-standard serverPort is only
// ever used to run a second, test-only instance alongside a real DHCP
// server on the same host.
func newListener(serverPort int) (*listener, error) {
	if serverPort == 0 {
		serverPort = defaultServerPort
	}

	clientPort := serverPort + 1
	if serverPort == defaultServerPort {
		clientPort = defaultClientPort
	}

	lc := net.ListenConfig{Control: controlSockopts}

	raw, err := lc.ListenPacket(nil, "udp4", fmt.Sprintf(":%d", serverPort))
	if err != nil {
		return nil, fmt.Errorf("listening on udp :%d: %w", serverPort, err)
	}

	pc := ipv4.NewPacketConn(raw)
	if err = pc.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		_ = raw.Close()

		return nil, fmt.Errorf("enabling interface control messages: %w", err)
	}

	return &listener{conn: pc, serverPort: serverPort, clientPort: clientPort}, nil
}

// controlSockopts sets SO_REUSEADDR and SO_BROADCAST on the listening
// socket, grounded on internal/aghnet/interfaces_unix.go's reuseAddrCtrl.
func controlSockopts(_, _ string, c syscall.RawConn) (err error) {
	cerr := c.Control(func(fd uintptr) {
		if err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			err = os.NewSyscallError("setsockopt SO_REUSEADDR", err)

			return
		}

		if err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
			err = os.NewSyscallError("setsockopt SO_BROADCAST", err)
		}
	})
	if err != nil {
		return err
	}

	return cerr
}

// Close closes the underlying socket.
func (l *listener) Close() error {
	return l.conn.Close()
}

// Receive blocks for the next DHCPv4 datagram, returning its payload and the
// index of the interface it arrived on.
func (l *listener) Receive(buf []byte) (inboundPacket, error) {
	n, cm, _, err := l.conn.ReadFrom(buf)
	if err != nil {
		return inboundPacket{}, err
	}

	data := make([]byte, n)
	copy(data, buf[:n])

	ifIndex := 0
	if cm != nil {
		ifIndex = cm.IfIndex
	}

	return inboundPacket{data: data, ifIndex: ifIndex}, nil
}

// Send transmits data out the interface identified by ifIndex to dst,
// implementing the RFC 1542/2131 §4.1 destination-selection rule at the
// granularity this socket model supports: unicast when dst carries a
// specific client or relay address, broadcast to 255.255.255.255:68
// otherwise. Unicasting to an unconfigured client's hardware address
// (RFC 2131's last-resort case, reachable only via a raw link-layer send)
// isn't attempted — this module's Non-goals exclude raw-socket/BPF I/O, so
// that case falls back to broadcast, matching what most clients expect
// anyway since they listen on the broadcast address until configured.
func (l *listener) Send(ifIndex int, data []byte, dst netip.AddrPort) error {
	cm := &ipv4.ControlMessage{IfIndex: ifIndex}

	_, err := l.conn.WriteTo(data, cm, net.UDPAddrFromAddrPort(dst))

	return err
}

// broadcastAddr is the destination used whenever no more specific unicast
// target applies.
func (l *listener) broadcastAddr() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4([4]byte{255, 255, 255, 255}), uint16(l.clientPort))
}
