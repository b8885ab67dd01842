// Package ddns submits the forward (A) and reverse (PTR) DNS updates a
// lease's COMMIT/RELEASE/EXPIRY transition triggers (§6 "DNS update"): "on
// Active transition, submit an A update for the lease's hostname and a PTR
// update for its address; on Release/Expire, submit matching deletes.
// Updates that fail are retried on the lease's next transition rather than
// immediately."
//
// No pack repo implements DDNS directly; AdGuardHome's DNS-facing packages
// (dnsforward, upstream) all build on github.com/miekg/dns's dns.Client /
// dns.Msg, so this package follows that same style for RFC 2136 updates
// rather than introducing a different DNS library.
package ddns

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/miekg/dns"
)

// Zones carries the forward and reverse zone names an Updater submits
// records into.
type Zones struct {
	Forward string
	Reverse string
}

// Client submits DNS updates to a single authoritative server, grounded on
// upstream/tls_upstream.go's dns.Client/dns.Exchange pattern, generalized
// from a plain query/response exchange to RFC 2136 UPDATE messages.
type Client struct {
	Server  string
	Net     string
	Timeout time.Duration
}

// ErrUpdateRejected is returned when the server's response RCODE isn't
// NOERROR.
const ErrUpdateRejected errors.Error = "dns update rejected"

func (c *Client) exchange(m *dns.Msg) error {
	client := &dns.Client{Net: c.Net, Timeout: c.Timeout}

	resp, _, err := client.Exchange(m, c.Server)
	if err != nil {
		return fmt.Errorf("exchanging dns update: %w", err)
	}

	if resp.Rcode != dns.RcodeSuccess {
		return errors.Annotate(ErrUpdateRejected, "rcode %s: %w", dns.RcodeToString[resp.Rcode])
	}

	return nil
}

// UpdateA submits an RFC 2136 UPDATE replacing fqdn's A record with ip in
// zone, per §6's "submit an A update for the lease's hostname."
func (c *Client) UpdateA(ctx context.Context, zone, fqdn string, ip netip.Addr, ttl uint32) error {
	m := new(dns.Msg)
	m.SetUpdate(dns.Fqdn(zone))

	rr := &dns.A{
		Hdr: dns.RR_Header{Name: dns.Fqdn(fqdn), Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
		A:   net.IP(ip.AsSlice()),
	}

	m.RemoveRRset([]dns.RR{&dns.A{Hdr: dns.RR_Header{Name: dns.Fqdn(fqdn), Rrtype: dns.TypeA, Class: dns.ClassANY}}})
	m.Insert([]dns.RR{rr})

	return c.exchange(m)
}

// DeleteA submits an UPDATE removing fqdn's A RRset, per §6's matching
// delete on Release/Expire.
func (c *Client) DeleteA(ctx context.Context, zone, fqdn string) error {
	m := new(dns.Msg)
	m.SetUpdate(dns.Fqdn(zone))
	m.RemoveRRset([]dns.RR{&dns.A{Hdr: dns.RR_Header{Name: dns.Fqdn(fqdn), Rrtype: dns.TypeA, Class: dns.ClassANY}}})

	return c.exchange(m)
}

// UpdatePTR submits an UPDATE replacing ip's in-addr.arpa PTR record with
// fqdn.
func (c *Client) UpdatePTR(ctx context.Context, zone string, ip netip.Addr, fqdn string, ttl uint32) error {
	arpa, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return fmt.Errorf("computing reverse name: %w", err)
	}

	m := new(dns.Msg)
	m.SetUpdate(dns.Fqdn(zone))

	rr := &dns.PTR{
		Hdr: dns.RR_Header{Name: arpa, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: ttl},
		Ptr: dns.Fqdn(fqdn),
	}

	m.RemoveRRset([]dns.RR{&dns.PTR{Hdr: dns.RR_Header{Name: arpa, Rrtype: dns.TypePTR, Class: dns.ClassANY}}})
	m.Insert([]dns.RR{rr})

	return c.exchange(m)
}

// DeletePTR submits an UPDATE removing ip's PTR RRset.
func (c *Client) DeletePTR(ctx context.Context, zone string, ip netip.Addr) error {
	arpa, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return fmt.Errorf("computing reverse name: %w", err)
	}

	m := new(dns.Msg)
	m.SetUpdate(dns.Fqdn(zone))
	m.RemoveRRset([]dns.RR{&dns.PTR{Hdr: dns.RR_Header{Name: arpa, Rrtype: dns.TypePTR, Class: dns.ClassANY}}})

	return c.exchange(m)
}

// Pending is a DNS update that failed and is queued to retry on the
// lease's next transition, per §6: "Updates that fail are retried on the
// lease's next transition rather than immediately."
type Pending struct {
	Apply func(ctx context.Context, c *Client) error
}

// RetryQueue accumulates failed updates per lease IP for retry on the next
// transition.
type RetryQueue struct {
	byIP map[netip.Addr][]Pending
}

// NewRetryQueue returns an empty RetryQueue.
func NewRetryQueue() *RetryQueue {
	return &RetryQueue{byIP: map[netip.Addr][]Pending{}}
}

// Defer queues p for ip, to be attempted again by [RetryQueue.Flush].
func (q *RetryQueue) Defer(ip netip.Addr, p Pending) {
	q.byIP[ip] = append(q.byIP[ip], p)
}

// Flush retries every pending update queued for ip, dropping each on
// success and re-queuing it (in order) on failure.
func (q *RetryQueue) Flush(ctx context.Context, c *Client, ip netip.Addr) {
	pending := q.byIP[ip]
	if len(pending) == 0 {
		return
	}

	delete(q.byIP, ip)

	for _, p := range pending {
		if err := p.Apply(ctx, c); err != nil {
			q.Defer(ip, p)
		}
	}
}
