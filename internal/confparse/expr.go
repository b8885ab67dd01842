package confparse

// ExprContext restricts the operators and functions acceptable at a given
// point in the grammar (§3 "Expression"). A context mismatch is a parse
// error, not a runtime one.
type ExprContext int

// Expression contexts.
const (
	CtxAny ExprContext = iota
	CtxBoolean
	CtxData
	CtxNumeric
	CtxDNS
)

// Expr is the common interface satisfied by every expression AST node
// (§3 "Expression"). Each node is immutable once constructed.
type Expr interface {
	exprNode()
}

// ConstData is a literal data (byte-string) constant.
type ConstData struct{ Value []byte }

func (*ConstData) exprNode() {}

// ConstNumber is a literal numeric constant.
type ConstNumber struct{ Value uint32 }

func (*ConstNumber) exprNode() {}

// ConstBool is a literal boolean constant.
type ConstBool struct{ Value bool }

func (*ConstBool) exprNode() {}

// VarRef is a reference to a named binding-scope variable.
type VarRef struct{ Name string }

func (*VarRef) exprNode() {}

// OptionRef reads an option from the layered option state (§4.3 "option
// <opt>").
type OptionRef struct {
	Space string
	Name  string
}

func (*OptionRef) exprNode() {}

// ExistsExpr is `exists <opt>`.
type ExistsExpr struct{ Space, Name string }

func (*ExistsExpr) exprNode() {}

// DefinedExpr is `defined <var>`.
type DefinedExpr struct{ Var string }

func (*DefinedExpr) exprNode() {}

// KnownExpr is `known` — true if a host declaration matched the client.
type KnownExpr struct{}

func (*KnownExpr) exprNode() {}

// StaticExpr is `static` — true if the lease has a fixed (non-dynamic)
// address.
type StaticExpr struct{}

func (*StaticExpr) exprNode() {}

// SubstringExpr is `substring(s, off, len)`.
type SubstringExpr struct{ Source, Offset, Length Expr }

func (*SubstringExpr) exprNode() {}

// SuffixExpr is `suffix(s, len)`.
type SuffixExpr struct{ Source, Length Expr }

func (*SuffixExpr) exprNode() {}

// ConcatExpr is `concat(a, b)`.
type ConcatExpr struct{ Left, Right Expr }

func (*ConcatExpr) exprNode() {}

// ReverseExpr is `reverse(width, buf)`.
type ReverseExpr struct {
	Width Expr
	Value Expr
}

func (*ReverseExpr) exprNode() {}

// PickFirstValueExpr is the cons-form `pick-first-value(a, b, …)`: returns
// the first non-empty operand.
type PickFirstValueExpr struct{ Values []Expr }

func (*PickFirstValueExpr) exprNode() {}

// BinToASCIIExpr is `binary-to-ascii(base, width, sep, buf)`.
type BinToASCIIExpr struct {
	Base, Width Expr
	Separator   Expr
	Value       Expr
}

func (*BinToASCIIExpr) exprNode() {}

// ExtractIntExpr is `extract-intN(s)` for N in {8, 16, 32}.
type ExtractIntExpr struct {
	Width int
	Value Expr
}

func (*ExtractIntExpr) exprNode() {}

// EncodeIntExpr is `encode-intN(n)` for N in {8, 16, 32}.
type EncodeIntExpr struct {
	Width int
	Value Expr
}

func (*EncodeIntExpr) exprNode() {}

// PacketExpr is `packet(off, len)`: raw bytes from the received datagram.
type PacketExpr struct{ Offset, Length Expr }

func (*PacketExpr) exprNode() {}

// HardwareExpr is `hardware` — the client's (type, address) pair as data.
type HardwareExpr struct{}

func (*HardwareExpr) exprNode() {}

// LeasedAddressExpr is `leased-address`.
type LeasedAddressExpr struct{}

func (*LeasedAddressExpr) exprNode() {}

// FilenameExpr is `filename` (the boot filename field).
type FilenameExpr struct{}

func (*FilenameExpr) exprNode() {}

// ServerNameExpr is `server-name`.
type ServerNameExpr struct{}

func (*ServerNameExpr) exprNode() {}

// LeaseTimeExpr is `lease-time`.
type LeaseTimeExpr struct{}

func (*LeaseTimeExpr) exprNode() {}

// CheckExpr is `check <class-name>` — a class collection lookup.
type CheckExpr struct{ ClassName string }

func (*CheckExpr) exprNode() {}

// BinOp is the operator of a [BinaryExpr].
type BinOp int

// Binary operators, in precedence order (lowest last): equality, then
// and/or (§4.2 "Expression parsing").
const (
	OpEqual BinOp = iota
	OpNotEqual
	OpAnd
	OpOr
)

// BinaryExpr is a two-operand boolean or equality expression.
type BinaryExpr struct {
	Op          BinOp
	Left, Right Expr
}

func (*BinaryExpr) exprNode() {}

// NotExpr is unary `!`, the highest-precedence operator (§4.2).
type NotExpr struct{ Operand Expr }

func (*NotExpr) exprNode() {}

// NSUpdateKind distinguishes the DNS namespace primitives of a
// [NSExpr] (§3 "Expression").
type NSUpdateKind int

// DNS namespace primitive kinds.
const (
	NSUpdate NSUpdateKind = iota
	NSDelete
	NSExists
	NSNotExists
)

// NSExpr is one of `ns-update`/`ns-delete`/`ns-exists`/`ns-not-exists`,
// carrying a transaction list of (rrtype, name, rdata, ttl) components.
type NSExpr struct {
	Kind NSUpdateKind
	Args []Expr
}

func (*NSExpr) exprNode() {}

// CallExpr is a named function call with a named-argument list, for
// extension functions not covered by a dedicated node above.
type CallExpr struct {
	Name string
	Args []Expr
}

func (*CallExpr) exprNode() {}
