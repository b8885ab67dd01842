// Package evalexpr evaluates the expression and executable-statement trees
// produced by internal/confparse against a layered binding scope
// (§3 "Expression"/"Executable statement", §4.3).
//
// Evaluation never aborts a request: per §7 "Expression evaluation", a
// failure produces the empty data value / false / 0 depending on context
// and evaluation continues — the configuration language is permissive by
// design. [Evaluate] still returns an error alongside a best-effort
// [Result] so callers that want to log the failure (at warning level, per
// the ambient logging policy) can do so without having to inspect Result
// fields to infer what went wrong.
package evalexpr

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/AdguardTeam/golibs/errors"

	"github.com/dhcpcore/dhcpd/internal/binding"
	"github.com/dhcpcore/dhcpd/internal/confparse"
)

// Evaluation error classes (§4.3 "returns either a typed data value … or an
// error classification").
const (
	// ErrUndefined means the expression referenced something that does not
	// exist (an unset variable, an absent option).
	ErrUndefined errors.Error = "undefined"
	// ErrTypeMismatch means the expression's static context does not match
	// the operator or function used.
	ErrTypeMismatch errors.Error = "type mismatch"
	// ErrEvalFailed is a catch-all for a runtime evaluation failure (e.g. a
	// malformed numeric literal).
	ErrEvalFailed errors.Error = "evaluation failed"
)

// ResultKind classifies the dynamic type of a [Result].
type ResultKind int

// Result kinds.
const (
	KindData ResultKind = iota
	KindBool
	KindNumeric
)

// Result is the dynamic value produced by evaluating an [confparse.Expr].
type Result struct {
	Kind    ResultKind
	Data    []byte
	Bool    bool
	Numeric uint32
}

// AsValue converts r to a [binding.Value], coercing bool/numeric results to
// their canonical byte encoding.
func (r Result) AsValue() binding.Value {
	switch r.Kind {
	case KindBool:
		if r.Bool {
			return binding.Value{Data: []byte{1}}
		}

		return binding.Value{Data: []byte{0}}
	case KindNumeric:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, r.Numeric)

		return binding.Value{Data: buf}
	default:
		return binding.Value{Data: r.Data}
	}
}

// ClassTester evaluates whether the client being processed is a member of
// the named class, consulting (and populating) the per-request match-result
// cache described by §4.4 step 5. internal/alloc supplies the concrete
// implementation; evalexpr depends only on this narrow interface to avoid
// an import cycle between the allocation engine (which owns class
// definitions) and the expression evaluator (which class match expressions
// are themselves evaluated through).
type ClassTester interface {
	// TestClass reports whether the current client matches class name,
	// per the "evaluating each class's match expression once per client
	// and caching the result" policy.
	TestClass(name string) (member bool, err error)
}

// Context carries the per-evaluation inputs: the packet (may be nil for
// server-side config evaluation), whether a host declaration matched
// (`known`), whether the current lease has a fixed address (`static`), the
// remaining lease time, and the class-membership tester.
type Context struct {
	Packet      []byte
	Known       bool
	Static      bool
	LeaseTime   uint32
	ClassTester ClassTester
}

// packetSlice returns ctx.Packet[off:off+length], clamped to the packet's
// bounds; out-of-range yields an empty slice, per §4.3 "packet(off, len):
// … out-of-range yields the empty data value."
func (ctx *Context) packetSlice(off, length int) []byte {
	if ctx.Packet == nil || off < 0 || off >= len(ctx.Packet) {
		return nil
	}

	end := off + length
	if end > len(ctx.Packet) {
		end = len(ctx.Packet)
	}

	return ctx.Packet[off:end]
}

// Evaluate evaluates e against scope and ctx.
func Evaluate(e confparse.Expr, scope *binding.Scope, ctx *Context) (Result, error) {
	switch n := e.(type) {
	case *confparse.ConstData:
		return Result{Kind: KindData, Data: n.Value}, nil
	case *confparse.ConstNumber:
		return Result{Kind: KindNumeric, Numeric: n.Value}, nil
	case *confparse.ConstBool:
		return Result{Kind: KindBool, Bool: n.Value}, nil
	case *confparse.VarRef:
		return evalVarRef(n, scope)
	case *confparse.OptionRef:
		return evalOptionRef(n, scope)
	case *confparse.ExistsExpr:
		_, ok := scope.Option(defaultUniverse(n.Space), n.Name)

		return Result{Kind: KindBool, Bool: ok}, nil
	case *confparse.DefinedExpr:
		_, ok := scope.Var(n.Var)

		return Result{Kind: KindBool, Bool: ok}, nil
	case *confparse.KnownExpr:
		return Result{Kind: KindBool, Bool: ctx.Known}, nil
	case *confparse.StaticExpr:
		return Result{Kind: KindBool, Bool: ctx.Static}, nil
	case *confparse.SubstringExpr:
		return evalSubstring(n, scope, ctx)
	case *confparse.SuffixExpr:
		return evalSuffix(n, scope, ctx)
	case *confparse.ConcatExpr:
		return evalConcat(n, scope, ctx)
	case *confparse.ReverseExpr:
		return evalReverse(n, scope, ctx)
	case *confparse.PickFirstValueExpr:
		return evalPickFirstValue(n, scope, ctx)
	case *confparse.BinToASCIIExpr:
		return evalBinToASCII(n, scope, ctx)
	case *confparse.ExtractIntExpr:
		return evalExtractInt(n, scope, ctx)
	case *confparse.EncodeIntExpr:
		return evalEncodeInt(n, scope, ctx)
	case *confparse.PacketExpr:
		return evalPacket(n, scope, ctx)
	case *confparse.LeaseTimeExpr:
		return Result{Kind: KindNumeric, Numeric: ctx.LeaseTime}, nil
	case *confparse.CheckExpr:
		return evalCheck(n, ctx)
	case *confparse.BinaryExpr:
		return evalBinary(n, scope, ctx)
	case *confparse.NotExpr:
		return evalNot(n, scope, ctx)
	case *confparse.HardwareExpr, *confparse.LeasedAddressExpr, *confparse.FilenameExpr,
		*confparse.ServerNameExpr:
		// These read fields carried outside the expression engine (the
		// client hardware address, the allocated lease address, the boot
		// filename/server-name fields). Nothing in this module substitutes
		// them before evaluation, so they always evaluate to empty data
		// with ErrUndefined.
		return Result{Kind: KindData}, ErrUndefined
	case *confparse.NSExpr:
		// DNS namespace primitives are not evaluated by this engine, and
		// no other package evaluates them; they yield false with
		// ErrUndefined.
		return Result{Kind: KindBool}, ErrUndefined
	case *confparse.CallExpr:
		return Result{Kind: KindData}, errors.Annotate(ErrUndefined, "unknown function %q: %w", n.Name)
	default:
		return Result{}, ErrTypeMismatch
	}
}

func defaultUniverse(space string) string {
	if space == "" {
		return "dhcp"
	}

	return space
}

func evalVarRef(n *confparse.VarRef, scope *binding.Scope) (Result, error) {
	v, ok := scope.Var(n.Name)
	if !ok {
		return Result{Kind: KindData}, ErrUndefined
	}

	return Result{Kind: KindData, Data: v.Data}, nil
}

func evalOptionRef(n *confparse.OptionRef, scope *binding.Scope) (Result, error) {
	v, ok := scope.Option(defaultUniverse(n.Space), n.Name)
	if !ok {
		return Result{Kind: KindData}, ErrUndefined
	}

	return Result{Kind: KindData, Data: v.Data}, nil
}

// asData coerces r to a byte slice, matching the permissive "empty data
// value" fallback of §7.
func asData(r Result, err error) []byte {
	if err != nil {
		return nil
	}

	switch r.Kind {
	case KindData:
		return r.Data
	case KindNumeric:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, r.Numeric)

		return buf
	case KindBool:
		if r.Bool {
			return []byte{1}
		}

		return []byte{0}
	default:
		return nil
	}
}

func asNumeric(r Result, err error) uint32 {
	if err != nil {
		return 0
	}

	switch r.Kind {
	case KindNumeric:
		return r.Numeric
	case KindData:
		var n uint32
		for _, b := range r.Data {
			n = n<<8 | uint32(b)
		}

		return n
	default:
		return 0
	}
}

func asBool(r Result, err error) bool {
	if err != nil {
		return false
	}

	switch r.Kind {
	case KindBool:
		return r.Bool
	case KindData:
		return len(r.Data) > 0
	case KindNumeric:
		return r.Numeric != 0
	default:
		return false
	}
}

// clampOffset and clampLength implement §4.3's substring clamp rules:
// "off clamped to [0, |s|]; len clamped to |s|-off."
func clampOffset(off, length int) int {
	if off < 0 {
		return 0
	}

	if off > length {
		return length
	}

	return off
}

func clampLength(length, max int) int {
	if length < 0 {
		return 0
	}

	if length > max {
		return max
	}

	return length
}

func evalSubstring(n *confparse.SubstringExpr, scope *binding.Scope, ctx *Context) (Result, error) {
	s := asData(Evaluate(n.Source, scope, ctx))
	off := int(asNumeric(Evaluate(n.Offset, scope, ctx)))
	length := int(asNumeric(Evaluate(n.Length, scope, ctx)))

	off = clampOffset(off, len(s))
	length = clampLength(length, len(s)-off)

	return Result{Kind: KindData, Data: append([]byte(nil), s[off:off+length]...)}, nil
}

func evalSuffix(n *confparse.SuffixExpr, scope *binding.Scope, ctx *Context) (Result, error) {
	s := asData(Evaluate(n.Source, scope, ctx))
	length := int(asNumeric(Evaluate(n.Length, scope, ctx)))

	if length > len(s) {
		length = len(s)
	}

	if length < 0 {
		length = 0
	}

	return Result{Kind: KindData, Data: append([]byte(nil), s[len(s)-length:]...)}, nil
}

func evalConcat(n *confparse.ConcatExpr, scope *binding.Scope, ctx *Context) (Result, error) {
	a := asData(Evaluate(n.Left, scope, ctx))
	b := asData(Evaluate(n.Right, scope, ctx))

	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)

	return Result{Kind: KindData, Data: out}, nil
}

func evalReverse(n *confparse.ReverseExpr, scope *binding.Scope, ctx *Context) (Result, error) {
	width := int(asNumeric(Evaluate(n.Width, scope, ctx)))
	s := asData(Evaluate(n.Value, scope, ctx))

	if width <= 0 {
		return Result{Kind: KindData, Data: s}, nil
	}

	out := make([]byte, 0, len(s))
	for off := len(s) - len(s)%width; off >= 0; off -= width {
		end := off + width
		if end > len(s) {
			continue
		}

		out = append(out, s[off:end]...)
	}

	return Result{Kind: KindData, Data: out}, nil
}

func evalPickFirstValue(n *confparse.PickFirstValueExpr, scope *binding.Scope, ctx *Context) (Result, error) {
	for _, v := range n.Values {
		r, err := Evaluate(v, scope, ctx)
		if err == nil && len(asData(r, nil)) > 0 {
			return r, nil
		}
	}

	return Result{Kind: KindData}, nil
}

func evalBinToASCII(n *confparse.BinToASCIIExpr, scope *binding.Scope, ctx *Context) (Result, error) {
	base := int(asNumeric(Evaluate(n.Base, scope, ctx)))
	width := int(asNumeric(Evaluate(n.Width, scope, ctx)))
	sep := string(asData(Evaluate(n.Separator, scope, ctx)))
	buf := asData(Evaluate(n.Value, scope, ctx))

	if width <= 0 {
		width = 8
	}

	byteWidth := width / 8
	if byteWidth <= 0 {
		byteWidth = 1
	}

	var parts []string
	for i := 0; i+byteWidth <= len(buf); i += byteWidth {
		var v uint64
		for _, b := range buf[i : i+byteWidth] {
			v = v<<8 | uint64(b)
		}

		parts = append(parts, strconv.FormatUint(v, base))
	}

	return Result{Kind: KindData, Data: []byte(strings.Join(parts, sep))}, nil
}

func evalExtractInt(n *confparse.ExtractIntExpr, scope *binding.Scope, ctx *Context) (Result, error) {
	s := asData(Evaluate(n.Value, scope, ctx))

	var v uint32

	switch n.Width {
	case 8:
		if len(s) < 1 {
			return Result{Kind: KindNumeric}, ErrEvalFailed
		}

		v = uint32(s[0])
	case 16:
		if len(s) < 2 {
			return Result{Kind: KindNumeric}, ErrEvalFailed
		}

		v = uint32(binary.BigEndian.Uint16(s))
	case 32:
		if len(s) < 4 {
			return Result{Kind: KindNumeric}, ErrEvalFailed
		}

		v = binary.BigEndian.Uint32(s)
	default:
		return Result{Kind: KindNumeric}, ErrTypeMismatch
	}

	return Result{Kind: KindNumeric, Numeric: v}, nil
}

func evalEncodeInt(n *confparse.EncodeIntExpr, scope *binding.Scope, ctx *Context) (Result, error) {
	v := asNumeric(Evaluate(n.Value, scope, ctx))

	var buf []byte

	switch n.Width {
	case 8:
		buf = []byte{byte(v)}
	case 16:
		buf = make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(v))
	case 32:
		buf = make([]byte, 4)
		binary.BigEndian.PutUint32(buf, v)
	default:
		return Result{Kind: KindData}, ErrTypeMismatch
	}

	return Result{Kind: KindData, Data: buf}, nil
}

func evalPacket(n *confparse.PacketExpr, scope *binding.Scope, ctx *Context) (Result, error) {
	off := int(asNumeric(Evaluate(n.Offset, scope, ctx)))
	length := int(asNumeric(Evaluate(n.Length, scope, ctx)))

	return Result{Kind: KindData, Data: ctx.packetSlice(off, length)}, nil
}

func evalCheck(n *confparse.CheckExpr, ctx *Context) (Result, error) {
	if ctx.ClassTester == nil {
		return Result{Kind: KindBool}, ErrUndefined
	}

	member, err := ctx.ClassTester.TestClass(n.ClassName)
	if err != nil {
		return Result{Kind: KindBool}, errors.Annotate(err, "checking class %q: %w", n.ClassName)
	}

	return Result{Kind: KindBool, Bool: member}, nil
}

func evalBinary(n *confparse.BinaryExpr, scope *binding.Scope, ctx *Context) (Result, error) {
	switch n.Op {
	case confparse.OpAnd:
		return Result{Kind: KindBool, Bool: asBool(Evaluate(n.Left, scope, ctx)) && asBool(Evaluate(n.Right, scope, ctx))}, nil
	case confparse.OpOr:
		return Result{Kind: KindBool, Bool: asBool(Evaluate(n.Left, scope, ctx)) || asBool(Evaluate(n.Right, scope, ctx))}, nil
	case confparse.OpEqual, confparse.OpNotEqual:
		l := asData(Evaluate(n.Left, scope, ctx))
		r := asData(Evaluate(n.Right, scope, ctx))

		eq := string(l) == string(r)
		if n.Op == confparse.OpNotEqual {
			eq = !eq
		}

		return Result{Kind: KindBool, Bool: eq}, nil
	default:
		return Result{Kind: KindBool}, ErrTypeMismatch
	}
}

func evalNot(n *confparse.NotExpr, scope *binding.Scope, ctx *Context) (Result, error) {
	return Result{Kind: KindBool, Bool: !asBool(Evaluate(n.Operand, scope, ctx))}, nil
}
