package config

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"

	"github.com/dhcpcore/dhcpd/internal/alloc"
	"github.com/dhcpcore/dhcpd/internal/binding"
	"github.com/dhcpcore/dhcpd/internal/confparse"
	"github.com/dhcpcore/dhcpd/internal/evalexpr"
	"github.com/dhcpcore/dhcpd/internal/lease"
	"github.com/dhcpcore/dhcpd/internal/optionspace"
	"github.com/dhcpcore/dhcpd/internal/token"
)

// Runtime is the fully resolved network graph internal/server wires into
// internal/alloc.Engine and internal/proto.Handler: everything
// internal/confparse.File described, plus the journal-replayed live lease
// state it's seeded with at startup.
type Runtime struct {
	Options     *optionspace.Registry
	GlobalScope *binding.Scope
	Classes     *alloc.ClassRegistry
	Billing     *alloc.BillingLedger
	Hosts       *alloc.HostIndex
	Locator     *alloc.Locator
	Networks    []*alloc.Network

	// Groups is the live named-group table, shared verbatim with
	// internal/omapi.Manager so a CreateGroup/UpdateGroup/DeleteGroup there
	// is visible to option resolution without a reload.
	Groups map[string]*confparse.Group

	// Leases is the per-IP lease state replayed from the journal at
	// startup (§4.6), before the journal resumes appending. LoadNetwork
	// seeds each resolved pool's free and abandoned lists from this map
	// (seedLeases); internal/server re-tracks its active, bootp and expired
	// leases with the allocation engine.
	Leases map[netip.Addr]*lease.Lease
}

// LoadNetwork parses the DSL network-declaration file at cfg.ConfigFile,
// replays cfg.JournalPath (if it already exists) to recover live lease and
// dynamic host/group state, and resolves the whole graph into a Runtime.
// It does not open the journal for appending; callers open it separately via
// [lease.Open] once LoadNetwork has finished reading it, per §4.6's
// replay-then-resume-appending sequencing.
func LoadNetwork(cfg *Config, logger *slog.Logger) (*Runtime, error) {
	f, err := os.Open(cfg.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", cfg.ConfigFile, err)
	}
	defer f.Close()

	lx := token.New(f, cfg.ConfigFile)
	p := confparse.New(lx)
	file := p.Parse()

	if p.WarningsOccurred() {
		for _, w := range p.Warnings {
			logger.Warn("config parse warning", "detail", w)
		}
	}

	leases, hosts, groups, err := replayJournal(cfg.JournalPath)
	if err != nil {
		return nil, err
	}

	for name, g := range file.Groups {
		groups[name] = g
	}

	hostIndex := alloc.NewHostIndex(file.Hosts)
	for _, h := range hosts {
		// A journal record always supersedes the declaration loaded from
		// the config file for the same name (§4.6 "later records … super-
		// sede earlier ones"), including tombstones recorded by a prior
		// OMAPI delete.
		if existing, ok := hostIndex.ByName(h.Name); ok {
			_, _ = hostIndex.Remove(existing.Name)
		}

		if h.Deleted {
			continue
		}

		if err = hostIndex.Add(h); err != nil {
			return nil, fmt.Errorf("reconciling journaled host %q: %w", h.Name, err)
		}
	}

	options := optionspace.NewRegistry()
	options.Register(optionspace.NewDHCPUniverse())

	global := binding.NewRoot()
	execCtx := &evalexpr.ExecContext{Context: evalexpr.Context{}}
	if err = evalexpr.Exec(file.Root.Stmts, global, execCtx); err != nil {
		return nil, fmt.Errorf("evaluating global statements: %w", err)
	}

	classes := alloc.NewClassRegistry(file.Classes)
	billing := alloc.NewBillingLedger(file.Classes)

	networks, err := buildNetworks(file)
	if err != nil {
		return nil, err
	}

	locator := alloc.NewLocator(networks)

	seedLeases(networks, leases)

	return &Runtime{
		Options:     options,
		GlobalScope: global,
		Classes:     classes,
		Billing:     billing,
		Hosts:       hostIndex,
		Locator:     locator,
		Networks:    networks,
		Groups:      groups,
		Leases:      leases,
	}, nil
}

// replayJournal reads path's existing content, if any, returning empty maps
// when the journal doesn't exist yet (first run).
func replayJournal(
	path string,
) (leases map[netip.Addr]*lease.Lease, hosts map[string]*confparse.Host, groups map[string]*confparse.Group, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[netip.Addr]*lease.Lease{}, map[string]*confparse.Host{}, map[string]*confparse.Group{}, nil
		}

		return nil, nil, nil, fmt.Errorf("opening journal %q: %w", path, err)
	}
	defer f.Close()

	leases, hosts, groups, err = lease.ReadJournal(f, path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("replaying journal %q: %w", path, err)
	}

	return leases, hosts, groups, nil
}

// buildNetworks resolves every standalone subnet and shared network in f
// into its runtime counterpart (§3 "A standalone subnet behaves as a shared
// network of one.").
func buildNetworks(f *confparse.File) ([]*alloc.Network, error) {
	var networks []*alloc.Network

	for _, decl := range f.Subnets {
		s, err := buildSubnet(decl)
		if err != nil {
			return nil, fmt.Errorf("subnet %s/%s: %w", decl.Network, decl.Netmask, err)
		}

		networks = append(networks, &alloc.Network{Subnets: []*alloc.Subnet{s}})
	}

	for _, decl := range f.SharedNetwork {
		n := &alloc.Network{Decl: decl}

		for _, sd := range decl.Subnets {
			s, err := buildSubnet(sd)
			if err != nil {
				return nil, fmt.Errorf("shared-network %s subnet %s/%s: %w", decl.Name, sd.Network, sd.Netmask, err)
			}

			n.Subnets = append(n.Subnets, s)
		}

		pools, err := buildPools(decl.Pools, nil)
		if err != nil {
			return nil, fmt.Errorf("shared-network %s: %w", decl.Name, err)
		}

		n.Pools = pools

		networks = append(networks, n)
	}

	return networks, nil
}

// buildSubnet resolves decl's network/netmask strings to a [netip.Prefix]
// and its pools, synthesizing a single implicit whole-subnet pool when decl
// declares none (per [alloc.Subnet]'s doc comment).
func buildSubnet(decl *confparse.Subnet) (*alloc.Subnet, error) {
	prefix, err := subnetPrefix(decl.Network, decl.Netmask)
	if err != nil {
		return nil, err
	}

	pools, err := buildPools(decl.Pools, &prefix)
	if err != nil {
		return nil, err
	}

	return &alloc.Subnet{Decl: decl, Prefix: prefix, Pools: pools}, nil
}

// subnetPrefix resolves a dotted-decimal network address and netmask pair
// to a [netip.Prefix], the same net.IPMask.Size-based conversion
// internal/dhcpsvc/v4.go uses for GatewayIP/SubnetMask.
func subnetPrefix(network, netmask string) (netip.Prefix, error) {
	addr, err := netip.ParseAddr(network)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid network address %q: %w", network, err)
	}

	maskAddr, err := netip.ParseAddr(netmask)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid netmask %q: %w", netmask, err)
	}

	ones, bits := net.IPMask(maskAddr.AsSlice()).Size()
	if bits == 0 {
		return netip.Prefix{}, fmt.Errorf("netmask %q is not a contiguous mask", netmask)
	}

	return netip.PrefixFrom(addr, ones).Masked(), nil
}

// buildPools resolves each declared pool's address ranges to runtime
// [alloc.Pool]s. When decls is empty and subnetPrefix is non-nil, it
// synthesizes one implicit pool spanning the subnet's usable host range
// (network and broadcast addresses excluded).
//
// A declared pool with more than one `range` statement becomes one
// [alloc.Pool] per range, sharing the declaration's permit/prohibit lists —
// [alloc.NewPoolFromBounds] only takes a single bound pair, since
// internal/alloc's range type is unexported and multi-range pools are rare
// in practice; each range still enforces the same admission rules.
func buildPools(decls []*confparse.Pool, subnetPrefix *netip.Prefix) ([]*alloc.Pool, error) {
	var pools []*alloc.Pool

	for _, decl := range decls {
		for _, r := range decl.Ranges {
			start, end, err := resolveRange(r)
			if err != nil {
				return nil, fmt.Errorf("range: %w", err)
			}

			p, err := alloc.NewPoolFromBounds(decl, start, end)
			if err != nil {
				return nil, fmt.Errorf("building pool: %w", err)
			}

			pools = append(pools, p)
		}
	}

	if len(pools) == 0 && subnetPrefix != nil {
		start, end, ok := usableRange(*subnetPrefix)
		if ok {
			p, err := alloc.NewPoolFromBounds(&confparse.Pool{Group: &confparse.Group{}}, start, end)
			if err != nil {
				return nil, fmt.Errorf("building implicit pool: %w", err)
			}

			pools = append(pools, p)
		}
	}

	return pools, nil
}

// resolveRange resolves a [confparse.AddrRange]'s start/end dotted-decimal
// strings, treating a bare `range <addr>;` (empty End) as a single-address
// range.
func resolveRange(r confparse.AddrRange) (start, end netip.Addr, err error) {
	start, err = netip.ParseAddr(r.Start)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, fmt.Errorf("invalid start %q: %w", r.Start, err)
	}

	if r.End == "" {
		return start, start, nil
	}

	end, err = netip.ParseAddr(r.End)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, fmt.Errorf("invalid end %q: %w", r.End, err)
	}

	return start, end, nil
}

// usableRange returns the first and last host addresses of p (excluding the
// network and broadcast addresses), or false if p has no usable host range
// (a /31 or /32, per RFC 3021's point-to-point exception not being
// exercised here).
func usableRange(p netip.Prefix) (start, end netip.Addr, ok bool) {
	hostBits := 32 - p.Bits()
	if hostBits < 2 {
		return netip.Addr{}, netip.Addr{}, false
	}

	network := binary.BigEndian.Uint32(p.Addr().As4()[:])

	var hostMask uint32 = (1 << uint(hostBits)) - 1
	broadcast := network | hostMask

	return addrFromUint32(network + 1), addrFromUint32(broadcast - 1), true
}

func addrFromUint32(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)

	return netip.AddrFrom4(b)
}

// seedLeases distributes replayed lease state into the pool owning each
// lease's address, re-establishing the free/abandoned LRU lists the
// allocation engine reads from (§4.4), since the journal only records
// per-lease fields, not pool membership.
func seedLeases(networks []*alloc.Network, leases map[netip.Addr]*lease.Lease) {
	for _, l := range leases {
		for _, n := range networks {
			p, ok := n.PoolFor(l.IP)
			if !ok {
				continue
			}

			switch l.State {
			case lease.StateFree, lease.StateReleased, lease.StateExpired:
				p.AddFree(l)
			case lease.StateAbandoned:
				p.AddAbandoned(l)
			}

			break
		}
	}
}
