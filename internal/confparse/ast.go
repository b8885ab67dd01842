// Package confparse implements the recursive-descent parser for the
// DHCP server's configuration and lease-journal language: declarations
// (host, group, shared-network, subnet, pool, class, subclass), parameters,
// and executable statements, built from the token stream produced by
// [github.com/dhcpcore/dhcpd/internal/token].
package confparse

import "github.com/dhcpcore/dhcpd/internal/token"

// Declaration is the common interface satisfied by every top-level or
// nested configuration construct (§3 "Group", "Subnet", "Shared network",
// "Pool", "Host declaration", "Class").
type Declaration interface {
	declNode()
}

// Group is a bag of inheritable parameters and an ordered executable
// statement list (§3 "Group"). Every other declaration embeds one.
type Group struct {
	Name  string
	Stmts []Statement

	// Authoritative gates sending DHCPNAK to unknown clients; nil means
	// "inherit from parent scope".
	Authoritative *bool

	Parent *Group
}

func (*Group) declNode() {}

// Host is a host declaration (§3 "Host declaration").
type Host struct {
	*Group

	Name string

	// HWAddr is the colon-hex hardware address, or nil if matched by UID or
	// a dynamic host-identifier option instead.
	HWAddr []byte
	// HWType is the hardware type keyword (e.g. "ethernet").
	HWType string

	// UID is the client-identifier, either a decoded string or colon-hex
	// bytes, matched verbatim.
	UID []byte

	// HostIdentifierOption names a dynamic host-identifier option
	// (`host-identifier option <name> <expr>`), or "" if unused.
	HostIdentifierOption string
	HostIdentifierExpr   Expr

	// FixedAddress is the expression producing the candidate address list.
	FixedAddress Expr

	// GroupRef is the name of a previously declared group this host links
	// to ("group <name>"), or "" if none.
	GroupRef string

	// Dynamic marks a host object created through the OMAPI boundary; such
	// hosts must be persisted into the lease journal (§4.2).
	Dynamic bool
	// Deleted is a tombstone set on lease-file load (§4.2).
	Deleted bool
}

func (*Host) declNode() {}

// Pool is an address-range partition with permit/prohibit class lists
// (§3 "Pool").
type Pool struct {
	*Group

	Ranges []AddrRange

	// Permit and Prohibit name classes, or one of the built-in pseudo-class
	// names: "unknown", "known", "authenticated", "unauthenticated", "all",
	// "dynamic-bootp".
	Permit   []string
	Prohibit []string

	// DynamicBootp allows BOOTP clients to receive a dynamic lease from
	// this pool (§4.5 "BOOTP").
	DynamicBootp bool

	// FailoverPeer is the referenced failover peer name, or "" if none.
	// Invariant (§3): DynamicBootp and a non-empty FailoverPeer are
	// mutually exclusive; the parser rejects declarations combining both.
	FailoverPeer string
}

func (*Pool) declNode() {}

// AddrRange is a `range <start> <end>;` or `range <start>;` declaration.
type AddrRange struct {
	Start, End string
	// Bootp marks a `range` declared inside a BOOTP-enabled pool as
	// available to dynamic-bootp clients specifically.
	Bootp bool
}

// Subnet is a (network number, netmask, parent shared-network, group)
// declaration (§3 "Subnet").
type Subnet struct {
	*Group

	Network string
	Netmask string

	Pools []*Pool

	SharedNetwork *SharedNetwork
}

func (*Subnet) declNode() {}

// SharedNetwork is a named set of subnets served on one physical segment
// (§3 "Shared network").
type SharedNetwork struct {
	*Group

	Name    string
	Subnets []*Subnet
	Pools   []*Pool

	FailoverPeer string
}

func (*SharedNetwork) declNode() {}

// Class is a named predicate plus inheritable group settings (§3 "Class").
type Class struct {
	*Group

	Name string

	// Match is the boolean `match if <expr>` predicate, or nil.
	Match Expr
	// Spawn is the `spawn with <expr>` data expression for a spawning
	// class, or nil for a plain class.
	Spawn Expr

	// LeaseLimit caps concurrently-held leases billed to this class; 0
	// means unlimited.
	LeaseLimit int
}

func (*Class) declNode() {}

// Statement is the common interface satisfied by every executable
// statement variant (§3 "Executable statement").
type Statement interface {
	stmtNode()
}

// IfStmt is `if/elsif/else`.
type IfStmt struct {
	Cond Expr
	Then []Statement
	// Elifs holds zero or more `elsif` clauses, evaluated in order.
	Elifs []ElifClause
	Else  []Statement
}

func (*IfStmt) stmtNode() {}

// ElifClause is one `elsif <cond> { … }` clause of an [IfStmt].
type ElifClause struct {
	Cond Expr
	Body []Statement
}

// SwitchStmt is `switch/case/default`.
type SwitchStmt struct {
	Subject Expr
	Cases   []SwitchCase
	Default []Statement
}

func (*SwitchStmt) stmtNode() {}

// SwitchCase is one `case <expr>: …` clause.
type SwitchCase struct {
	Value Expr
	Body  []Statement
}

// SetStmt is `set <var> = <expr>;`.
type SetStmt struct {
	Var  string
	Expr Expr
}

func (*SetStmt) stmtNode() {}

// UnsetStmt is `unset <var>;`.
type UnsetStmt struct {
	Var string
}

func (*UnsetStmt) stmtNode() {}

// EvalStmt is `eval <expr>;` — evaluated for side effects (cache priming),
// its result discarded.
type EvalStmt struct {
	Expr Expr
}

func (*EvalStmt) stmtNode() {}

// OptionAction names the merge discipline of an [OptionStmt] (§4.3).
type OptionAction int

// Option merge disciplines.
const (
	OptSupersede OptionAction = iota
	OptDefault
	OptPrepend
	OptAppend
)

// OptionStmt is `supersede|default|prepend|append option <opt> <expr>*;`.
type OptionStmt struct {
	Action OptionAction
	Space  string
	Name   string
	Values []Expr
}

func (*OptionStmt) stmtNode() {}

// AddStmt is `add <class-name>;`.
type AddStmt struct {
	ClassName string
}

func (*AddStmt) stmtNode() {}

// BreakStmt is `break;`.
type BreakStmt struct{}

func (*BreakStmt) stmtNode() {}

// OnEvent names the lease-lifecycle hook an [OnStmt] installs (§4.3, §4.5).
type OnEvent int

// Lease lifecycle hook events.
const (
	OnCommit OnEvent = iota
	OnExpiry
	OnRelease
)

// OnStmt is `on <events> { … }`, installing a deferred statement tree on
// the lease to run at the named transition(s).
type OnStmt struct {
	Events []OnEvent
	Body   []Statement
}

func (*OnStmt) stmtNode() {}

// BlockStmt is `statements { … }`, a plain composition of statements.
type BlockStmt struct {
	Body []Statement
}

func (*BlockStmt) stmtNode() {}

// Pos returns the source position a diagnostic about tok should reference.
func Pos(tok token.Token) token.Position { return tok.Pos }
