package alloc

import (
	"fmt"

	"github.com/dhcpcore/dhcpd/internal/binding"
	"github.com/dhcpcore/dhcpd/internal/confparse"
	"github.com/dhcpcore/dhcpd/internal/evalexpr"
)

// ClassRegistry indexes every configured class by name, including spawned
// subclasses (§3 "Class": "a named predicate plus inheritable group
// settings").
type ClassRegistry struct {
	byName map[string]*confparse.Class
	// ordered preserves configuration order for billing-class resolution,
	// where §4.4 step 6 resolves "the selected class" deterministically.
	ordered []*confparse.Class
}

// NewClassRegistry builds a registry from a flat list of declared classes.
func NewClassRegistry(classes []*confparse.Class) *ClassRegistry {
	r := &ClassRegistry{
		byName:  make(map[string]*confparse.Class, len(classes)),
		ordered: classes,
	}
	for _, c := range classes {
		r.byName[c.Name] = c
	}

	return r
}

// All returns every declared class in configuration order, used by
// internal/proto to resolve the per-class option-merge layer (§4.7:
// "per-class … option-states in that precedence").
func (r *ClassRegistry) All() []*confparse.Class {
	return r.ordered
}

// BillingClasses returns the declared classes with a nonzero LeaseLimit, in
// configuration order.
func (r *ClassRegistry) BillingClasses() []*confparse.Class {
	var out []*confparse.Class
	for _, c := range r.ordered {
		if c.LeaseLimit > 0 {
			out = append(out, c)
		}
	}

	return out
}

// Lookup returns the named class, or false if undeclared.
func (r *ClassRegistry) Lookup(name string) (*confparse.Class, bool) {
	c, ok := r.byName[name]

	return c, ok
}

// RequestClassTester evaluates class membership for a single request,
// caching each class's match result the first time it's asked for — §4.4
// step 5's "class membership by evaluating each class's match expression
// once per client and caching the result," and implements
// evalexpr.ClassTester and evalexpr.ClassAdder so a request's statement
// execution can use `check <class>` and `add <class>` directly.
type RequestClassTester struct {
	registry *ClassRegistry
	scope    *binding.Scope
	ctx      *evalexpr.Context

	// Known/Authenticated back the built-in pseudo-classes (§3 "Pool").
	Known         bool
	Authenticated bool

	cache  map[string]bool
	member map[string]bool
}

// NewRequestClassTester builds a class tester scoped to one request.
func NewRequestClassTester(
	registry *ClassRegistry,
	scope *binding.Scope,
	ctx *evalexpr.Context,
	known, authenticated bool,
) *RequestClassTester {
	return &RequestClassTester{
		registry:      registry,
		scope:         scope,
		ctx:           ctx,
		Known:         known,
		Authenticated: authenticated,
		cache:         map[string]bool{},
		member:        map[string]bool{},
	}
}

// TestClass implements the evalexpr.ClassTester interface.
func (t *RequestClassTester) TestClass(name string) (bool, error) {
	switch name {
	case "all":
		return true, nil
	case "known":
		return t.Known, nil
	case "unknown":
		return !t.Known, nil
	case "authenticated":
		return t.Authenticated, nil
	case "unauthenticated":
		return !t.Authenticated, nil
	}

	if member, ok := t.member[name]; ok {
		return member, nil
	}

	if cached, ok := t.cache[name]; ok {
		return cached, nil
	}

	c, ok := t.registry.Lookup(name)
	if !ok {
		return false, fmt.Errorf("unknown class %q", name)
	}

	if c.Match == nil {
		t.cache[name] = false

		return false, nil
	}

	res, err := evalexpr.Evaluate(c.Match, t.scope, t.ctx)

	member := err == nil && res.Kind == evalexpr.KindBool && res.Bool
	t.cache[name] = member

	return member, nil
}

// AddClass implements the evalexpr.ClassAdder interface: an explicit
// `add <class>;` statement forces membership for the remainder of the
// request regardless of the class's match expression.
func (t *RequestClassTester) AddClass(name string) {
	t.member[name] = true
}

// type checks
var (
	_ evalexpr.ClassTester = (*RequestClassTester)(nil)
	_ evalexpr.ClassAdder  = (*RequestClassTester)(nil)
)
