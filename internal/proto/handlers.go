package proto

import (
	"context"
	"log/slog"
	"net/netip"
	"time"

	"github.com/google/gopacket/layers"

	"github.com/dhcpcore/dhcpd/internal/alloc"
	"github.com/dhcpcore/dhcpd/internal/binding"
	"github.com/dhcpcore/dhcpd/internal/confparse"
	"github.com/dhcpcore/dhcpd/internal/ddns"
	"github.com/dhcpcore/dhcpd/internal/dispatch"
	"github.com/dhcpcore/dhcpd/internal/evalexpr"
	"github.com/dhcpcore/dhcpd/internal/lease"
	"github.com/dhcpcore/dhcpd/internal/optionspace"
)

// Handler wires the allocation engine, lease journal, dispatcher and DDNS
// client into the five message handlers §4.7 names. One Handler serves
// every interface; per-request addressing context comes in via [Interface].
type Handler struct {
	Engine   *alloc.Engine
	Journal  *lease.Journal
	Write    lease.Writer
	Options  *optionspace.Registry
	Dispatch *dispatch.Dispatcher

	// Groups resolves a host's GroupRef to the declaration internal/config
	// parsed it from, the named-group link of §4.7's precedence chain.
	Groups map[string]*confparse.Group

	// DNS is nil when DDNS is not configured, in which case commit/release
	// never attempt an update.
	DNS      *ddns.Client
	DNSZones ddns.Zones
	Retry    *ddns.RetryQueue

	OfferTimeout time.Duration

	Logger *slog.Logger
}

func offerOwner(ip netip.Addr) string  { return "offer:" + ip.String() }
func expiryOwner(ip netip.Addr) string { return "expiry:" + ip.String() }

// HandleDiscover implements the DHCPDISCOVER path of §4.7: allocate a
// candidate lease (not yet committed) and respond with DHCPOFFER, starting
// a short timer that reclaims the address if the client never follows up
// with a matching DHCPREQUEST.
func (h *Handler) HandleDiscover(ctx context.Context, iface *Interface, req *layers.DHCPv4) (*layers.DHCPv4, error) {
	now := time.Now()

	l, host, err := h.Engine.Allocate(&alloc.Request{
		Giaddr:       giaddrOf(req),
		HWAddr:       req.ClientHWAddr,
		UID:          uidOf(req),
		IfaceNetwork: iface.Network,
		Now:          now,
	})
	if err != nil {
		h.Logger.DebugContext(ctx, "discover: allocation failed", "error", err)

		return nil, nil
	}

	l.ClientHostname = hostnameOf(req)
	h.Engine.Track(l)

	resp, _ := h.buildResponse(iface, req, l, host, layers.DHCPMsgTypeOffer)

	if h.OfferTimeout > 0 {
		h.Dispatch.Register(offerOwner(l.IP), now.Add(h.OfferTimeout), func(context.Context) {
			h.reclaimUnclaimedOffer(iface, l)
		})
	}

	return resp, nil
}

// reclaimUnclaimedOffer returns l to its pool's free list if the client
// never confirmed the offer with a DHCPREQUEST, i.e. l is still Free.
func (h *Handler) reclaimUnclaimedOffer(iface *Interface, l *lease.Lease) {
	if l.State != lease.StateFree {
		return
	}

	h.Engine.Untrack(l)

	if pool, ok := iface.Network.PoolFor(l.IP); ok {
		pool.AddFree(l)
	}
}

// HandleRequest implements the DHCPREQUEST path, dispatching on which of
// server-identifier, requested-IP, or ciaddr is present — the same
// three-way split internal/dhcpsvc/handler4.go's handleRequest makes
// between SELECTING, INIT-REBOOT, and RENEWING/REBINDING.
func (h *Handler) HandleRequest(ctx context.Context, iface *Interface, req *layers.DHCPv4) (*layers.DHCPv4, error) {
	uid := uidOf(req)
	hwaddr := req.ClientHWAddr

	if srvID, ok := serverID(req); ok && srvID.IsValid() && !srvID.IsUnspecified() {
		if srvID != iface.Address {
			// Client selected a different server; stay silent.
			return nil, nil
		}

		reqIP, ok := requestedIP(req)
		if !ok {
			return h.nakOrSilent(iface, req), nil
		}

		return h.commitRequested(ctx, iface, req, reqIP, uid, hwaddr)
	}

	if reqIP, ok := requestedIP(req); ok && reqIP.IsValid() && !reqIP.IsUnspecified() {
		return h.commitRequested(ctx, iface, req, reqIP, uid, hwaddr)
	}

	ciaddr := ciaddrOf(req)
	if !ciaddr.IsValid() || ciaddr.IsUnspecified() {
		return nil, nil
	}

	return h.commitRequested(ctx, iface, req, ciaddr, uid, hwaddr)
}

// commitRequested validates that the client's claimed address matches a
// lease it actually holds (tracked by DISCOVER or a prior REQUEST) and, if
// so, commits it to Active/Bootp and responds with ACK; otherwise NAKs (or
// stays silent, if the interface isn't authoritative).
func (h *Handler) commitRequested(
	ctx context.Context,
	iface *Interface,
	req *layers.DHCPv4,
	claimed netip.Addr,
	uid, hwaddr []byte,
) (*layers.DHCPv4, error) {
	l, ok := h.Engine.Lookup(uid, hwaddr)
	if !ok || l.IP != claimed {
		return h.nakOrSilent(iface, req), nil
	}

	hostDecl := h.matchedHost(iface.Network, l)

	resp, err := h.commit(ctx, iface, req, l, hostDecl)
	if err != nil {
		h.Logger.WarnContext(ctx, "request: commit failed", "ip", l.IP, "error", err)

		return h.nakOrSilent(iface, req), nil
	}

	return resp, nil
}

// matchedHost re-resolves the host declaration backing l, if any, so a
// renewal's option chain includes the same per-host layer a fresh
// allocation would. Fixed-address leases are always host-backed; dynamic
// ones never are.
func (h *Handler) matchedHost(network *alloc.Network, l *lease.Lease) *confparse.Host {
	ctx := &evalexpr.Context{}

	for _, cand := range h.Engine.Hosts.ByHWAddr(l.HWAddr) {
		if ip, ok := alloc.ResolveFixedAddress(cand, network, h.Engine.GlobalScope, ctx); ok && ip == l.IP {
			return cand
		}
	}

	return nil
}

// nakOrSilent builds a DHCPNAK if iface is authoritative, else returns nil
// (RFC 2131's "server not authoritative stays silent" policy, applied
// uniformly across §4.7's failure cases).
func (h *Handler) nakOrSilent(iface *Interface, req *layers.DHCPv4) *layers.DHCPv4 {
	if !iface.Authoritative {
		return nil
	}

	return buildNAK(iface, req)
}

// HandleDecline implements DHCPDECLINE: the client reports the offered
// address is already in use. No response is sent (§4.7); the lease is
// marked Abandoned so it's excluded from the free list until reclaimed by
// a later ICMP-verified allocation attempt.
func (h *Handler) HandleDecline(ctx context.Context, iface *Interface, req *layers.DHCPv4) error {
	reqIP, ok := requestedIP(req)
	if !ok {
		return nil
	}

	l, ok := h.Engine.Lookup(uidOf(req), req.ClientHWAddr)
	if !ok || l.IP != reqIP {
		return nil
	}

	if err := l.TransitionTo(lease.StateAbandoned, time.Now()); err != nil {
		return nil
	}

	l.Abandoned = true
	h.Engine.Untrack(l)
	h.Dispatch.Cancel(expiryOwner(l.IP))

	if pool, ok := iface.Network.PoolFor(l.IP); ok {
		pool.AddAbandoned(l)
	}

	return h.journal(ctx, l)
}

// HandleRelease implements DHCPRELEASE: the client gives up its lease
// voluntarily. No response is sent.
func (h *Handler) HandleRelease(ctx context.Context, iface *Interface, req *layers.DHCPv4) error {
	ciaddr := ciaddrOf(req)
	if !ciaddr.IsValid() || ciaddr.IsUnspecified() {
		return nil
	}

	l, ok := h.Engine.Lookup(uidOf(req), req.ClientHWAddr)
	if !ok || l.IP != ciaddr {
		return nil
	}

	if err := l.TransitionTo(lease.StateReleased, time.Now()); err != nil {
		return nil
	}

	h.runHooks(ctx, l, confparse.OnRelease)
	h.Engine.Untrack(l)
	h.Dispatch.Cancel(expiryOwner(l.IP))

	if pool, ok := iface.Network.PoolFor(l.IP); ok {
		pool.AddFree(l)
	}

	if err := h.journal(ctx, l); err != nil {
		return err
	}

	h.ddnsRemove(ctx, l)

	return nil
}

// HandleInform implements DHCPINFORM: the client already has an address
// (usually statically configured) and wants the rest of its configuration.
// There is no allocation step; the option chain is resolved against
// whatever host declaration matches its identity, or the bare network
// layers if none does.
func (h *Handler) HandleInform(ctx context.Context, iface *Interface, req *layers.DHCPv4) (*layers.DHCPv4, error) {
	ciaddr := ciaddrOf(req)
	if !ciaddr.IsValid() || ciaddr.IsUnspecified() {
		return nil, nil
	}

	var host *confparse.Host
	candidates := h.Engine.Hosts.ByHWAddr(req.ClientHWAddr)
	candidates = append(candidates, h.Engine.Hosts.ByUID(uidOf(req))...)
	if len(candidates) > 0 {
		host = candidates[0]
	}

	ectx := &evalexpr.Context{Known: host != nil}
	tester := h.Engine.NewClassTester(ectx, host != nil, false)
	ectx.ClassTester = tester

	subnet, _ := iface.Network.SubnetFor(ciaddr)
	pool, _ := iface.Network.PoolFor(ciaddr)

	resp := h.buildOptionsResponse(iface, req, host, subnet, pool, ectx, layers.DHCPMsgTypeAck)
	resp.YourClientIP = nil

	return resp, nil
}

// commit transitions l into Active (or Bootp, for a fixed-address/dynamic-
// bootp binding) and journals it (unless it's a non-expiring fixed-address
// binding, which §4.6 notes is not journaled), runs its COMMIT hooks,
// schedules its expiry wakeup, and submits the resulting DDNS updates.
func (h *Handler) commit(
	ctx context.Context,
	iface *Interface,
	req *layers.DHCPv4,
	l *lease.Lease,
	host *confparse.Host,
) (*layers.DHCPv4, error) {
	now := time.Now()

	target := lease.StateActive
	if l.Bootp {
		target = lease.StateBootp
	}

	if err := l.TransitionTo(target, now); err != nil {
		return nil, err
	}

	l.ClientHostname = hostnameOf(req)
	h.Engine.Track(l)

	h.runHooks(ctx, l, confparse.OnCommit)

	fixed := host != nil && host.FixedAddress != nil
	if !fixed {
		if err := h.journal(ctx, l); err != nil {
			return nil, err
		}
	}

	if !l.Ends.IsZero() {
		h.Dispatch.Register(expiryOwner(l.IP), l.Ends, func(wctx context.Context) {
			h.expire(wctx, iface, l)
		})
	}

	h.ddnsUpdate(ctx, l)

	return h.buildResponse(iface, req, l, host, layers.DHCPMsgTypeAck)
}

// expire fires when a lease's scheduled Ends timer elapses unrenewed,
// transitioning it to Expired, running its EXPIRY hooks, returning its
// address to the free pool, and removing its DDNS records.
func (h *Handler) expire(ctx context.Context, iface *Interface, l *lease.Lease) {
	if err := l.TransitionTo(lease.StateExpired, time.Now()); err != nil {
		return
	}

	h.runHooks(ctx, l, confparse.OnExpiry)
	h.Engine.Untrack(l)

	if pool, ok := iface.Network.PoolFor(l.IP); ok {
		pool.AddFree(l)
	}

	if err := h.journal(ctx, l); err != nil {
		h.Logger.WarnContext(ctx, "expiry: journal append failed", "ip", l.IP, "error", err)
	}

	h.ddnsRemove(ctx, l)
}

// runHooks executes l's hooks for event against l's own scope, installing
// the scope lazily the first time a lease needs one.
func (h *Handler) runHooks(ctx context.Context, l *lease.Lease, event confparse.OnEvent) {
	if l.Scope == nil {
		l.Scope = binding.NewChild(h.Engine.GlobalScope)
	}

	ectx := &evalexpr.ExecContext{Context: evalexpr.Context{Known: true}, HookInstaller: l}
	for _, body := range l.HooksFor(event) {
		if err := evalexpr.Exec(body, l.Scope, ectx); err != nil {
			h.Logger.WarnContext(ctx, "hook execution failed", "ip", l.IP, "event", event, "error", err)
		}
	}
}

func (h *Handler) journal(ctx context.Context, l *lease.Lease) error {
	return h.Journal.Append(ctx, h.Logger, l, h.Write)
}

// fqdnFor derives the fully-qualified hostname a lease's DDNS records use:
// its client-supplied hostname (falling back to the server-assigned one)
// joined to the forward zone.
func fqdnFor(zone, name string) (string, bool) {
	if name == "" || zone == "" {
		return "", false
	}

	return name + "." + zone, true
}

// ddnsUpdate submits the forward and reverse records for a just-committed
// lease, per §6. A failure is queued for retry on the lease's next
// transition rather than surfaced to the client.
func (h *Handler) ddnsUpdate(ctx context.Context, l *lease.Lease) {
	if h.DNS == nil {
		return
	}

	h.Retry.Flush(ctx, h.DNS, l.IP)

	name := l.ClientHostname
	if name == "" {
		name = l.Hostname
	}

	fqdn, ok := fqdnFor(h.DNSZones.Forward, name)
	if !ok {
		return
	}

	ttl := uint32(300)

	if err := h.DNS.UpdateA(ctx, h.DNSZones.Forward, fqdn, l.IP, ttl); err != nil {
		h.Retry.Defer(l.IP, ddns.Pending{Apply: func(ctx context.Context, c *ddns.Client) error {
			return c.UpdateA(ctx, h.DNSZones.Forward, fqdn, l.IP, ttl)
		}})
	}

	if err := h.DNS.UpdatePTR(ctx, h.DNSZones.Reverse, l.IP, fqdn, ttl); err != nil {
		h.Retry.Defer(l.IP, ddns.Pending{Apply: func(ctx context.Context, c *ddns.Client) error {
			return c.UpdatePTR(ctx, h.DNSZones.Reverse, l.IP, fqdn, ttl)
		}})
	}
}

// ddnsRemove submits the matching deletes on Release/Expire, per §6.
func (h *Handler) ddnsRemove(ctx context.Context, l *lease.Lease) {
	if h.DNS == nil {
		return
	}

	h.Retry.Flush(ctx, h.DNS, l.IP)

	name := l.ClientHostname
	if name == "" {
		name = l.Hostname
	}

	if fqdn, ok := fqdnFor(h.DNSZones.Forward, name); ok {
		if err := h.DNS.DeleteA(ctx, h.DNSZones.Forward, fqdn); err != nil {
			h.Retry.Defer(l.IP, ddns.Pending{Apply: func(ctx context.Context, c *ddns.Client) error {
				return c.DeleteA(ctx, h.DNSZones.Forward, fqdn)
			}})
		}
	}

	if err := h.DNS.DeletePTR(ctx, h.DNSZones.Reverse, l.IP); err != nil {
		h.Retry.Defer(l.IP, ddns.Pending{Apply: func(ctx context.Context, c *ddns.Client) error {
			return c.DeletePTR(ctx, h.DNSZones.Reverse, l.IP)
		}})
	}
}

// buildResponse assembles an OFFER/ACK for l, resolving the full
// §4.7 option-merge chain for l's network/subnet/pool/host/class context.
func (h *Handler) buildResponse(
	iface *Interface,
	req *layers.DHCPv4,
	l *lease.Lease,
	host *confparse.Host,
	msgType layers.DHCPMsgType,
) (*layers.DHCPv4, error) {
	ectx := &evalexpr.Context{Known: host != nil, Static: l.Bootp, LeaseTime: leaseTimeSeconds(l)}
	tester := h.Engine.NewClassTester(ectx, host != nil, false)
	ectx.ClassTester = tester

	subnet, _ := iface.Network.SubnetFor(l.IP)
	pool, _ := iface.Network.PoolFor(l.IP)

	resp := h.buildOptionsResponse(iface, req, host, subnet, pool, ectx, msgType)
	resp.YourClientIP = netAddrTo4(l.IP)
	resp.Options = append(resp.Options, layers.NewDHCPOption(layers.DHCPOptLeaseTime, uint32Bytes(leaseTimeSeconds(l))))

	return resp, nil
}

// buildOptionsResponse builds the shared skeleton ACK/OFFER/INFORM response
// share: fixed header fields, message-type and server-identifier options,
// then every option resolvable from the merge chain.
func (h *Handler) buildOptionsResponse(
	iface *Interface,
	req *layers.DHCPv4,
	host *confparse.Host,
	subnet *alloc.Subnet,
	pool *alloc.Pool,
	ectx *evalexpr.Context,
	msgType layers.DHCPMsgType,
) *layers.DHCPv4 {
	var group *confparse.Group
	if host != nil && host.GroupRef != "" {
		group = h.Groups[host.GroupRef]
	}

	var classes []*confparse.Class
	for _, c := range h.Engine.Classes.All() {
		if member, err := ectx.ClassTester.TestClass(c.Name); err == nil && member {
			classes = append(classes, c)
		}
	}

	chain := buildChain(h.Engine.GlobalScope, group, iface.Network, subnet, pool, classes, host)
	execCtx := &evalexpr.ExecContext{Context: *ectx}
	leaf := resolveOptions(chain, execCtx)
	if leaf == nil {
		leaf = h.Engine.GlobalScope
	}

	resp := &layers.DHCPv4{
		Operation:    layers.DHCPOpReply,
		HardwareType: req.HardwareType,
		HardwareLen:  req.HardwareLen,
		Xid:          req.Xid,
		ClientHWAddr: req.ClientHWAddr,
		RelayAgentIP: req.RelayAgentIP,
	}

	resp.Options = append(resp.Options,
		layers.NewDHCPOption(layers.DHCPOptMessageType, []byte{byte(msgType)}),
		layers.NewDHCPOption(layers.DHCPOptServerID, netAddrTo4(iface.Address)),
	)

	resp.Options = append(resp.Options, BuildOptions(chain, leaf, h.Options)...)

	return resp
}

// buildNAK builds a minimal DHCPNAK: message type and server identifier
// only, per RFC 2131 §4.3.2 (a NAK carries no lease parameters).
func buildNAK(iface *Interface, req *layers.DHCPv4) *layers.DHCPv4 {
	return &layers.DHCPv4{
		Operation:    layers.DHCPOpReply,
		HardwareType: req.HardwareType,
		HardwareLen:  req.HardwareLen,
		Xid:          req.Xid,
		ClientHWAddr: req.ClientHWAddr,
		Options: layers.DHCPOptions{
			layers.NewDHCPOption(layers.DHCPOptMessageType, []byte{byte(layers.DHCPMsgTypeNak)}),
			layers.NewDHCPOption(layers.DHCPOptServerID, netAddrTo4(iface.Address)),
		},
	}
}

func leaseTimeSeconds(l *lease.Lease) uint32 {
	if l.Ends.IsZero() {
		return 0
	}

	d := time.Until(l.Ends)
	if d < 0 {
		return 0
	}

	return uint32(d.Seconds())
}

func uint32Bytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func netAddrTo4(ip netip.Addr) []byte {
	if !ip.IsValid() {
		return nil
	}

	a4 := ip.As4()

	return a4[:]
}
