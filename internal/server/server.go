// Package server wires the runtime graph internal/config resolves, the
// lease journal, the allocation engine, the OMAPI management boundary, and
// the DDNS client into a running DHCPv4 service: the top-level Server type
// cmd/dhcpd starts and stops.
//
// Grounded on internal/dhcpsvc/server.go's DHCPServer (New/Start/Shutdown,
// per-interface goroutines, errors.Join'd teardown) and dhcpd/server.go's
// single-process CLI-facing server shape, generalized from AdGuardHome's
// two designs to the DSL-driven multi-network core this module implements.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/dhcpcore/dhcpd/internal/alloc"
	"github.com/dhcpcore/dhcpd/internal/config"
	"github.com/dhcpcore/dhcpd/internal/ddns"
	"github.com/dhcpcore/dhcpd/internal/dispatch"
	"github.com/dhcpcore/dhcpd/internal/lease"
	"github.com/dhcpcore/dhcpd/internal/omapi"
	"github.com/dhcpcore/dhcpd/internal/proto"
)

// Server is a running DHCPv4 service: one wildcard listening socket shared
// across every configured interface, one allocation engine, one lease
// journal, and the single combined packet/timer event loop §4.7 describes.
type Server struct {
	logger *slog.Logger

	listener *listener
	journal  *lease.Journal
	handler  *proto.Handler
	dispatch *dispatch.Dispatcher
	omapi    *omapi.Manager

	mu         sync.RWMutex
	interfaces map[int]*proto.Interface

	packets chan inboundPacket

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OMAPI returns the management boundary for dynamic host/group objects,
// wired over the same journal and host index the protocol handlers use.
func (s *Server) OMAPI() *omapi.Manager {
	return s.omapi
}

// New builds a Server over rt (as resolved by [config.LoadNetwork]). It
// opens cfg.JournalPath for appending — the caller must have already read
// any existing content via LoadNetwork before calling New, per §4.6's
// replay-then-resume-appending sequencing — and binds a listening socket on
// port (the `-p` CLI flag's value, or 0 for the standard port 67/68 pair).
func New(cfg *config.Config, rt *config.Runtime, logger *slog.Logger, port int) (*Server, error) {
	var addrChecker alloc.AddrChecker = alloc.NoopAddrChecker{}
	if timeout := cfg.ICMPTimeout(); timeout > 0 {
		addrChecker = &alloc.ICMPAddrChecker{Logger: logger, Timeout: timeout}
	}

	engine := alloc.NewEngine(
		rt.Locator, rt.Hosts, rt.Classes, rt.Billing, addrChecker, rt.GlobalScope, cfg.LeaseDuration(),
	)

	// Re-index every replayed Active, Bootp or Expired lease so a renewal or
	// expired-reuse lookup (§4.4 step 4.1-4.2) finds it without a pool scan.
	for _, l := range rt.Leases {
		switch l.State {
		case lease.StateActive, lease.StateBootp, lease.StateExpired:
			engine.Track(l)
		}
	}

	journal, err := lease.Open(cfg.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	var (
		dnsClient *ddns.Client
		zones     ddns.Zones
		retry     *ddns.RetryQueue
	)
	if cfg.DDNS.Enabled() {
		dnsClient = &ddns.Client{
			Server:  cfg.DDNS.Server,
			Net:     cfg.DDNS.Net,
			Timeout: time.Duration(cfg.DDNS.TimeoutMS) * time.Millisecond,
		}
		zones = ddns.Zones{Forward: cfg.DDNS.ForwardZone, Reverse: cfg.DDNS.ReverseZone}
		retry = ddns.NewRetryQueue()
	}

	dispatcher := dispatch.New(logger)
	omapiMgr := omapi.NewManager(rt.Hosts, journal, rt.Groups, logger)

	handler := &proto.Handler{
		Engine:       engine,
		Journal:      journal,
		Write:        lease.WriteRecord,
		Options:      rt.Options,
		Dispatch:     dispatcher,
		Groups:       omapiMgr.Groups(),
		DNS:          dnsClient,
		DNSZones:     zones,
		Retry:        retry,
		OfferTimeout: cfg.OfferTimeout(),
		Logger:       logger,
	}

	ifaces, err := resolveInterfaces(cfg.Interfaces, rt.Locator, logger)
	if err != nil {
		_ = journal.Close()

		return nil, err
	}

	ln, err := newListener(port)
	if err != nil {
		_ = journal.Close()

		return nil, err
	}

	return &Server{
		logger:     logger,
		listener:   ln,
		journal:    journal,
		handler:    handler,
		dispatch:   dispatcher,
		omapi:      omapiMgr,
		interfaces: ifaces,
		packets:    make(chan inboundPacket, 64),
	}, nil
}

// Reload swaps in a freshly loaded runtime's network graph and option
// registry, called from internal/config.Watcher's onChange callback. The
// journal, engine's client-identity table, and in-flight leases are left in
// place — only the declarative graph (host index, locator, classes,
// billing, options, groups) changes, matching §7's permissive reload
// policy of re-parsing the declarations without restarting the server.
func (s *Server) Reload(cfg *config.Config, rt *config.Runtime) error {
	ifaces, err := resolveInterfaces(cfg.Interfaces, rt.Locator, s.logger)
	if err != nil {
		return err
	}

	s.handler.Engine.Locator = rt.Locator
	s.handler.Engine.Hosts = rt.Hosts
	s.handler.Engine.Classes = rt.Classes
	s.handler.Engine.Billing = rt.Billing
	s.handler.Engine.GlobalScope = rt.GlobalScope
	s.handler.Options = rt.Options
	s.handler.Groups = rt.Groups

	s.mu.Lock()
	s.interfaces = ifaces
	s.mu.Unlock()

	return nil
}

// Start launches the read goroutine and the combined packet/timer event
// loop, returning immediately. Shutdown stops both.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.readLoop(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.eventLoop(ctx)
	}()

	return nil
}

// Shutdown stops both loops and closes the listening socket and journal,
// waiting up to ctx's deadline for the loops to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	var errs []error
	if err := s.listener.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing listener: %w", err))
	}

	if err := s.journal.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing journal: %w", err))
	}

	return errors.Join(errs...)
}

// readLoop blocks reading datagrams off the wildcard socket, handing each to
// the event loop over s.packets. This is the one goroutine besides the
// event loop itself; it never touches the shared allocation/lease state.
func (s *Server) readLoop(ctx context.Context) {
	buf := make([]byte, 1500)

	for {
		pkt, err := s.listener.Receive(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.logger.ErrorContext(ctx, "receiving dhcpv4 datagram", "error", err)

				continue
			}
		}

		select {
		case s.packets <- pkt:
		case <-ctx.Done():
			return
		}
	}
}

// eventLoop is the single suspension point §4.7 requires: one iteration
// either handles a readable packet or fires the earliest-due timer, never
// both concurrently, so the allocation engine and pools need no locks of
// their own.
func (s *Server) eventLoop(ctx context.Context) {
	for {
		wait := time.Hour
		if at, ok := s.dispatch.NextFire(); ok {
			if remaining := time.Until(at); remaining > 0 {
				wait = remaining
			} else {
				wait = 0
			}
		}

		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()

			return
		case pkt := <-s.packets:
			timer.Stop()
			s.handlePacket(ctx, pkt)
		case <-timer.C:
		case <-s.dispatch.Wake():
			timer.Stop()
		}

		s.dispatch.PopDue(ctx, time.Now())
	}
}

// handlePacket decodes one datagram, dispatches it by DHCP message type to
// the matching internal/proto.Handler method (the same split
// internal/dhcpsvc/handle.go's serveV4/handleDHCPv4 makes), and sends back
// whatever response it produces.
func (s *Server) handlePacket(ctx context.Context, pkt inboundPacket) {
	parsed := gopacket.NewPacket(pkt.data, layers.LayerTypeDHCPv4, gopacket.NoCopy)

	req, ok := parsed.Layer(layers.LayerTypeDHCPv4).(*layers.DHCPv4)
	if !ok || req.Operation != layers.DHCPOpRequest {
		return
	}

	s.mu.RLock()
	iface, ok := s.interfaces[pkt.ifIndex]
	s.mu.RUnlock()
	if !ok {
		return
	}

	typ, ok := msgType(req)
	if !ok {
		s.logger.DebugContext(ctx, "dhcpv4 message missing type option")

		return
	}

	var (
		resp *layers.DHCPv4
		err  error
	)

	switch typ {
	case layers.DHCPMsgTypeDiscover:
		resp, err = s.handler.HandleDiscover(ctx, iface, req)
	case layers.DHCPMsgTypeRequest:
		resp, err = s.handler.HandleRequest(ctx, iface, req)
	case layers.DHCPMsgTypeDecline:
		err = s.handler.HandleDecline(ctx, iface, req)
	case layers.DHCPMsgTypeRelease:
		err = s.handler.HandleRelease(ctx, iface, req)
	case layers.DHCPMsgTypeInform:
		resp, err = s.handler.HandleInform(ctx, iface, req)
	default:
		s.logger.DebugContext(ctx, "unsupported dhcpv4 message type", "type", typ)

		return
	}

	if err != nil {
		s.logger.ErrorContext(ctx, "handling dhcpv4 message", "type", typ, "error", err)

		return
	}

	if resp != nil {
		s.send(ctx, pkt.ifIndex, req, resp)
	}
}

// msgType returns req's DHCP message type option (53), grounded on
// internal/dhcpsvc/options4.go's msg4Type.
func msgType(req *layers.DHCPv4) (layers.DHCPMsgType, bool) {
	for _, opt := range req.Options {
		if opt.Type == layers.DHCPOptMessageType && len(opt.Data) > 0 {
			return layers.DHCPMsgType(opt.Data[0]), true
		}
	}

	return 0, false
}

// send serializes resp and transmits it out the interface req arrived on.
func (s *Server) send(ctx context.Context, ifIndex int, req, resp *layers.DHCPv4) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}

	if err := gopacket.SerializeLayers(buf, opts, resp); err != nil {
		s.logger.ErrorContext(ctx, "serializing dhcpv4 response", "error", err)

		return
	}

	if err := s.listener.Send(ifIndex, buf.Bytes(), s.responseAddr(req)); err != nil {
		s.logger.ErrorContext(ctx, "sending dhcpv4 response", "error", err)
	}
}

// responseAddr implements the unicast/broadcast half of RFC 2131 §4.1's
// destination-selection rule: a non-zero giaddr takes a unicast reply back
// to the relay's server port, a non-zero ciaddr takes a unicast reply to the
// client's own address and port, otherwise the reply broadcasts. See
// [listener.Send]'s doc comment for the link-layer-unicast case this
// socket model doesn't reach.
func (s *Server) responseAddr(req *layers.DHCPv4) netip.AddrPort {
	if giaddr, ok := netip.AddrFromSlice(req.RelayAgentIP.To4()); ok && !giaddr.IsUnspecified() {
		return netip.AddrPortFrom(giaddr, uint16(s.listener.serverPort))
	}

	if ciaddr, ok := netip.AddrFromSlice(req.ClientIP.To4()); ok && !ciaddr.IsUnspecified() {
		return netip.AddrPortFrom(ciaddr, uint16(s.listener.clientPort))
	}

	return s.listener.broadcastAddr()
}

// resolveInterfaces binds each configured interface name to the network
// serving its locally configured IPv4 address. The DSL has no explicit
// `interface` binding for a subnet (§3); the DHCP server determines which
// subnet an interface serves by matching its own configured address, the
// same way [alloc.Locator.LocateByGiaddr] matches a relay's giaddr.
func resolveInterfaces(
	names []string,
	locator *alloc.Locator,
	logger *slog.Logger,
) (map[int]*proto.Interface, error) {
	out := map[int]*proto.Interface{}

	for _, name := range names {
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", name, err)
		}

		addrs, err := ifi.Addrs()
		if err != nil {
			return nil, fmt.Errorf("interface %q addresses: %w", name, err)
		}

		bound := false
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}

			v4 := ipNet.IP.To4()
			if v4 == nil {
				continue
			}

			addr, ok := netip.AddrFromSlice(v4)
			if !ok {
				continue
			}

			network, ok := locator.LocateByGiaddr(addr)
			if !ok {
				continue
			}

			subnet, _ := network.SubnetFor(addr)

			out[ifi.Index] = &proto.Interface{
				Network:       network,
				Address:       addr,
				Authoritative: resolveAuthoritative(network, subnet),
			}
			bound = true

			break
		}

		if !bound {
			logger.Warn("no configured subnet matches interface address", "interface", name)
		}
	}

	return out, nil
}

// resolveAuthoritative resolves §3's `authoritative`/`not authoritative`
// statement for the subnet (falling back to its shared network) serving an
// interface. Group.Parent chains are never wired by internal/config (dynamic
// host/group resolution happens by direct map lookup instead, per
// internal/omapi's design), so only these two levels are consulted; an
// unset statement at both defaults to false, matching ISC dhcpd's default.
func resolveAuthoritative(network *alloc.Network, subnet *alloc.Subnet) bool {
	if subnet != nil && subnet.Decl != nil && subnet.Decl.Authoritative != nil {
		return *subnet.Decl.Authoritative
	}

	if network != nil && network.Decl != nil && network.Decl.Authoritative != nil {
		return *network.Decl.Authoritative
	}

	return false
}
