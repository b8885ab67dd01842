// Package binding implements the group/scope chain described in §3
// "Group"/"Binding scope": a lexical container carrying inheritable
// parameters and statements, nesting host → shared-network → subnet →
// group → root. Lookups walk leaf-to-root with first-hit semantics;
// statement execution walks root-to-leaf so inner scopes override outer.
//
// Scope storage is built on github.com/AdguardTeam/golibs/container's
// order-preserving KeyValues, the same collection internal/dhcpsvc/server.go
// uses for its device table — reused here because the leaf-to-root lookup
// and root-to-leaf execution order this spec requires depend on
// deterministic iteration order, which a plain Go map does not provide.
package binding

import (
	"github.com/AdguardTeam/golibs/container"
)

// Value is a typed option/variable value: a byte string with a terminated
// bit (§3 "Expression": "typed data value (byte string with a `terminated`
// bit)").
type Value struct {
	Data       []byte
	Terminated bool
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	out := Value{Terminated: v.Terminated}
	if v.Data != nil {
		out.Data = append([]byte(nil), v.Data...)
	}

	return out
}

// Scope is one link of the group chain: a set of named variables, a set of
// option values (keyed "<universe>.<name>"), and a parent link.
type Scope struct {
	parent *Scope

	vars    container.KeyValues[string, Value]
	options container.KeyValues[string, Value]

	// Authoritative gates sending DHCPNAK to unknown clients; nil inherits
	// from the parent.
	Authoritative *bool
}

// kvGet returns the value for key in kv, walking it in order and returning
// the first (i.e. most recently set, since set re-appends) match — the
// same "first hit wins" contract [container.KeyValues.Get] provides.
func kvGet[K comparable, V any](kv container.KeyValues[K, V], key K) (v V, ok bool) {
	for i := len(kv) - 1; i >= 0; i-- {
		if kv[i].Key == key {
			return kv[i].Value, true
		}
	}

	return v, false
}

// kvSet appends (key, value) to kv, shadowing any earlier entry for the same
// key without removing it — kvGet always finds the most recent entry first,
// matching the "last write wins" behavior Scope's API promises.
func kvSet[K comparable, V any](kv container.KeyValues[K, V], key K, value V) container.KeyValues[K, V] {
	return append(kv, container.KeyValue[K, V]{Key: key, Value: value})
}

// kvDelete removes every entry for key from kv.
func kvDelete[K comparable, V any](kv container.KeyValues[K, V], key K) container.KeyValues[K, V] {
	out := kv[:0]
	for _, e := range kv {
		if e.Key != key {
			out = append(out, e)
		}
	}

	return out
}

// NewRoot returns a new root Scope with no parent.
func NewRoot() *Scope {
	return &Scope{}
}

// NewChild returns a new Scope nested under parent.
func NewChild(parent *Scope) *Scope {
	return &Scope{parent: parent}
}

// Parent returns s's parent scope, or nil at the root.
func (s *Scope) Parent() *Scope { return s.parent }

// SetVar sets a binding-scope variable in s directly (§3 "Binding scope",
// `set var = expr`).
func (s *Scope) SetVar(name string, v Value) {
	s.vars = kvSet(s.vars, name, v)
}

// UnsetVar removes a variable from s directly (`unset var`).
func (s *Scope) UnsetVar(name string) {
	s.vars = kvDelete(s.vars, name)
}

// Var looks up a variable by walking s leaf-to-root, returning the first
// hit.
func (s *Scope) Var(name string) (v Value, ok bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok = kvGet(cur.vars, name); ok {
			return v, true
		}
	}

	return Value{}, false
}

// optKey builds the composite key used to index an option by universe and
// name.
func optKey(universe, name string) string { return universe + "." + name }

// SetOption sets an option value directly in s (used by Supersede/Default/
// Prepend/Append below, and directly by internal/proto when constructing
// implicit per-interface options).
func (s *Scope) SetOption(universe, name string, v Value) {
	s.options = kvSet(s.options, optKey(universe, name), v)
}

// Option looks up an option by walking s leaf-to-root, returning the first
// hit — the same precedence order used for variables, matching §4.7's
// "per-host, per-class, per-pool, per-subnet, per-shared-network,
// per-group, global option-states in that precedence" when scopes are
// chained leaf-to-root in that order.
func (s *Scope) Option(universe, name string) (v Value, ok bool) {
	key := optKey(universe, name)
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok = kvGet(cur.options, key); ok {
			return v, true
		}
	}

	return Value{}, false
}

// Supersede replaces any outer value with v (§4.3 "Option-state merge
// semantics").
func (s *Scope) Supersede(universe, name string, v Value) {
	s.SetOption(universe, name, v)
}

// Default supplies v only if no outer layer already has a value for the
// option.
func (s *Scope) Default(universe, name string, v Value) {
	if _, ok := s.parentOption(universe, name); ok {
		return
	}

	s.SetOption(universe, name, v)
}

// Append byte-concatenates v onto the existing (outer) value, with the
// outer value at the head: outer ∥ v. If there is no outer value, Append
// behaves like Supersede.
func (s *Scope) Append(universe, name string, v Value) {
	outer, ok := s.parentOption(universe, name)
	if !ok {
		s.SetOption(universe, name, v)

		return
	}

	s.SetOption(universe, name, Value{
		Data:       append(append([]byte(nil), outer.Data...), v.Data...),
		Terminated: v.Terminated,
	})
}

// Prepend byte-concatenates v onto the existing (outer) value, with v at
// the head: v ∥ outer. If there is no outer value, Prepend behaves like
// Supersede.
func (s *Scope) Prepend(universe, name string, v Value) {
	outer, ok := s.parentOption(universe, name)
	if !ok {
		s.SetOption(universe, name, v)

		return
	}

	s.SetOption(universe, name, Value{
		Data:       append(append([]byte(nil), v.Data...), outer.Data...),
		Terminated: outer.Terminated,
	})
}

// parentOption looks up an option starting at s's parent, i.e. the "outer"
// layers relative to s, per the supersede/default/append/prepend semantics
// which are defined relative to the scope currently being evaluated.
func (s *Scope) parentOption(universe, name string) (v Value, ok bool) {
	if s.parent == nil {
		return Value{}, false
	}

	return s.parent.Option(universe, name)
}

// IsAuthoritative resolves the effective `authoritative` flag by walking
// leaf-to-root, defaulting to false if no scope in the chain sets it.
func (s *Scope) IsAuthoritative() bool {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.Authoritative != nil {
			return *cur.Authoritative
		}
	}

	return false
}

// Chain returns the scopes from s up to (and including) the root, in
// leaf-to-root order — the order lookups use. Callers needing
// root-to-leaf statement-execution order should iterate this slice in
// reverse.
func (s *Scope) Chain() []*Scope {
	var chain []*Scope
	for cur := s; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}

	return chain
}
