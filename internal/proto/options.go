package proto

import (
	"slices"
	"strings"

	"github.com/google/gopacket/layers"

	"github.com/dhcpcore/dhcpd/internal/alloc"
	"github.com/dhcpcore/dhcpd/internal/binding"
	"github.com/dhcpcore/dhcpd/internal/confparse"
	"github.com/dhcpcore/dhcpd/internal/evalexpr"
	"github.com/dhcpcore/dhcpd/internal/optionspace"
)

// layer is one link of the option-merge chain: a declaration's statement
// list plus the scope node it executes into.
type layer struct {
	stmts []confparse.Statement
	scope *binding.Scope
}

// buildChain constructs the option-merge scope chain in the precedence
// order §4.7 names, outermost (lowest precedence) first: global, named
// group (if the host references one), shared network, subnet, pool,
// matched classes (in configuration order), host. Earlier entries become
// outer scopes (checked last by [binding.Scope.Option]'s leaf-to-root
// walk), later entries shadow them, matching "per-host, per-class,
// per-pool, per-subnet, per-shared-network, per-group, global … in that
// precedence" read innermost-first.
func buildChain(
	global *binding.Scope,
	group *confparse.Group,
	network *alloc.Network,
	subnet *alloc.Subnet,
	pool *alloc.Pool,
	classes []*confparse.Class,
	host *confparse.Host,
) []layer {
	var layers []layer

	cur := global
	push := func(stmts []confparse.Statement) {
		cur = binding.NewChild(cur)
		layers = append(layers, layer{stmts: stmts, scope: cur})
	}

	if group != nil {
		push(group.Stmts)
	}

	if network != nil && network.Decl != nil {
		push(network.Decl.Stmts)
	}

	if subnet != nil && subnet.Decl != nil {
		push(subnet.Decl.Stmts)
	}

	if pool != nil && pool.Decl != nil {
		push(pool.Decl.Stmts)
	}

	for _, c := range classes {
		push(c.Stmts)
	}

	if host != nil {
		push(host.Stmts)
	}

	return layers
}

// resolveOptions executes every layer of chain in order (outermost first,
// so inner supersede/default/append/prepend statements see the outer
// layer's already-applied value) and returns the leaf scope, which
// [binding.Scope.Option] then resolves with the full precedence chain.
func resolveOptions(chain []layer, ctx *evalexpr.ExecContext) *binding.Scope {
	var leafScope *binding.Scope
	for _, l := range chain {
		_ = evalexpr.Exec(l.stmts, l.scope, ctx)
		leafScope = l.scope
	}

	return leafScope
}

// optionNames collects the distinct (universe, name) pairs named by
// `option`/`supersede`/`default`/`append`/`prepend` statements anywhere in
// stmts, recursing into if/switch/block bodies — the set of options a
// response might need to emit for this chain.
func optionNames(stmts []confparse.Statement, seen map[[2]string]struct{}) {
	for _, s := range stmts {
		switch n := s.(type) {
		case *confparse.OptionStmt:
			universe := n.Space
			if universe == "" {
				universe = "dhcp"
			}

			seen[[2]string{universe, n.Name}] = struct{}{}
		case *confparse.IfStmt:
			optionNames(n.Then, seen)
			for _, e := range n.Elifs {
				optionNames(e.Body, seen)
			}
			optionNames(n.Else, seen)
		case *confparse.SwitchStmt:
			for _, c := range n.Cases {
				optionNames(c.Body, seen)
			}
			optionNames(n.Default, seen)
		case *confparse.BlockStmt:
			optionNames(n.Body, seen)
		}
	}
}

// BuildOptions renders every option resolvable at leaf (the deepest scope
// [resolveOptions] returned) into wire-form DHCP options, using reg to map
// symbolic names to option codes.
func BuildOptions(chain []layer, leaf *binding.Scope, reg *optionspace.Registry) layers.DHCPOptions {
	univ, ok := reg.Universe("dhcp")
	if !ok {
		return nil
	}

	seen := map[[2]string]struct{}{}
	for _, l := range chain {
		optionNames(l.stmts, seen)
	}

	keys := make([][2]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}

	slices.SortFunc(keys, func(a, b [2]string) int {
		if c := strings.Compare(a[0], b[0]); c != 0 {
			return c
		}

		return strings.Compare(a[1], b[1])
	})

	var opts layers.DHCPOptions
	for _, key := range keys {
		if key[0] != "dhcp" {
			continue
		}

		def, ok := univ.LookupByName(key[1])
		if !ok {
			continue
		}

		v, ok := leaf.Option("dhcp", key[1])
		if !ok {
			continue
		}

		opts = append(opts, layers.NewDHCPOption(layers.DHCPOpt(def.Code), v.Data))
	}

	return opts
}
