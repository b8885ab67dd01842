package evalexpr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcpcore/dhcpd/internal/binding"
	"github.com/dhcpcore/dhcpd/internal/confparse"
	"github.com/dhcpcore/dhcpd/internal/evalexpr"
)

func TestEvaluate_Substring(t *testing.T) {
	scope := binding.NewRoot()
	ctx := &evalexpr.Context{}

	e := &confparse.SubstringExpr{
		Source: &confparse.ConstData{Value: []byte("hello world")},
		Offset: &confparse.ConstNumber{Value: 6},
		Length: &confparse.ConstNumber{Value: 100},
	}

	r, err := evalexpr.Evaluate(e, scope, ctx)
	require.NoError(t, err)
	assert.Equal(t, "world", string(r.Data))
}

func TestEvaluate_SubstringClampsLengthToRemainder(t *testing.T) {
	scope := binding.NewRoot()
	ctx := &evalexpr.Context{}

	e := &confparse.SubstringExpr{
		Source: &confparse.ConstData{Value: []byte("abc")},
		Offset: &confparse.ConstNumber{Value: 0},
		Length: &confparse.ConstNumber{Value: 1000},
	}

	r, err := evalexpr.Evaluate(e, scope, ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(r.Data))
}

func TestEvaluate_Concat(t *testing.T) {
	scope := binding.NewRoot()
	ctx := &evalexpr.Context{}

	e := &confparse.ConcatExpr{
		Left:  &confparse.ConstData{Value: []byte("foo")},
		Right: &confparse.ConstData{Value: []byte("bar")},
	}

	r, _ := evalexpr.Evaluate(e, scope, ctx)
	assert.Equal(t, "foobar", string(r.Data))
}

func TestEvaluate_PickFirstValue(t *testing.T) {
	scope := binding.NewRoot()
	ctx := &evalexpr.Context{}

	e := &confparse.PickFirstValueExpr{Values: []confparse.Expr{
		&confparse.ConstData{Value: nil},
		&confparse.ConstData{Value: []byte("second")},
	}}

	r, err := evalexpr.Evaluate(e, scope, ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(r.Data))
}

func TestEvaluate_ExtractEncodeInt(t *testing.T) {
	scope := binding.NewRoot()
	ctx := &evalexpr.Context{}

	enc := &confparse.EncodeIntExpr{Width: 16, Value: &confparse.ConstNumber{Value: 300}}
	r, err := evalexpr.Evaluate(enc, scope, ctx)
	require.NoError(t, err)

	dec := &confparse.ExtractIntExpr{Width: 16, Value: &confparse.ConstData{Value: r.Data}}
	r2, err := evalexpr.Evaluate(dec, scope, ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 300, r2.Numeric)
}

func TestEvaluate_KnownStatic(t *testing.T) {
	scope := binding.NewRoot()
	ctx := &evalexpr.Context{Known: true, Static: false}

	r, _ := evalexpr.Evaluate(&confparse.KnownExpr{}, scope, ctx)
	assert.True(t, r.Bool)

	r2, _ := evalexpr.Evaluate(&confparse.StaticExpr{}, scope, ctx)
	assert.False(t, r2.Bool)
}

func TestEvaluate_BinaryAndOrNot(t *testing.T) {
	scope := binding.NewRoot()
	ctx := &evalexpr.Context{Known: true}

	e := &confparse.NotExpr{Operand: &confparse.BinaryExpr{
		Op:    confparse.OpAnd,
		Left:  &confparse.KnownExpr{},
		Right: &confparse.ConstBool{Value: false},
	}}

	r, _ := evalexpr.Evaluate(e, scope, ctx)
	assert.True(t, r.Bool)
}

func TestEvaluate_PacketOutOfRange(t *testing.T) {
	scope := binding.NewRoot()
	ctx := &evalexpr.Context{Packet: []byte{1, 2, 3}}

	e := &confparse.PacketExpr{
		Offset: &confparse.ConstNumber{Value: 10},
		Length: &confparse.ConstNumber{Value: 5},
	}

	r, err := evalexpr.Evaluate(e, scope, ctx)
	require.NoError(t, err)
	assert.Empty(t, r.Data)
}

func TestEvaluate_UndefinedVar(t *testing.T) {
	scope := binding.NewRoot()
	ctx := &evalexpr.Context{}

	_, err := evalexpr.Evaluate(&confparse.VarRef{Name: "nope"}, scope, ctx)
	assert.ErrorIs(t, err, evalexpr.ErrUndefined)
}

func TestExec_SetUnset(t *testing.T) {
	scope := binding.NewRoot()
	ctx := &evalexpr.ExecContext{}

	stmts := []confparse.Statement{
		&confparse.SetStmt{Var: "x", Expr: &confparse.ConstData{Value: []byte("v")}},
	}
	require.NoError(t, evalexpr.Exec(stmts, scope, ctx))

	v, ok := scope.Var("x")
	require.True(t, ok)
	assert.Equal(t, "v", string(v.Data))

	require.NoError(t, evalexpr.Exec([]confparse.Statement{&confparse.UnsetStmt{Var: "x"}}, scope, ctx))
	_, ok = scope.Var("x")
	assert.False(t, ok)
}

func TestExec_IfElsif(t *testing.T) {
	scope := binding.NewRoot()
	ctx := &evalexpr.ExecContext{Context: evalexpr.Context{Known: false, Static: true}}

	stmts := []confparse.Statement{&confparse.IfStmt{
		Cond: &confparse.KnownExpr{},
		Then: []confparse.Statement{&confparse.SetStmt{Var: "x", Expr: &confparse.ConstData{Value: []byte("a")}}},
		Elifs: []confparse.ElifClause{{
			Cond: &confparse.StaticExpr{},
			Body: []confparse.Statement{&confparse.SetStmt{Var: "x", Expr: &confparse.ConstData{Value: []byte("b")}}},
		}},
		Else: []confparse.Statement{&confparse.SetStmt{Var: "x", Expr: &confparse.ConstData{Value: []byte("c")}}},
	}}

	require.NoError(t, evalexpr.Exec(stmts, scope, ctx))

	v, ok := scope.Var("x")
	require.True(t, ok)
	assert.Equal(t, "b", string(v.Data))
}

func TestExec_BreakStopsList(t *testing.T) {
	scope := binding.NewRoot()
	ctx := &evalexpr.ExecContext{}

	stmts := []confparse.Statement{
		&confparse.SetStmt{Var: "x", Expr: &confparse.ConstData{Value: []byte("a")}},
		&confparse.BreakStmt{},
		&confparse.SetStmt{Var: "x", Expr: &confparse.ConstData{Value: []byte("b")}},
	}

	require.NoError(t, evalexpr.Exec(stmts, scope, ctx))

	v, _ := scope.Var("x")
	assert.Equal(t, "a", string(v.Data))
}

func TestExec_OptionSupersedeThenAppend(t *testing.T) {
	root := binding.NewRoot()
	ctx := &evalexpr.ExecContext{}

	require.NoError(t, evalexpr.Exec([]confparse.Statement{&confparse.OptionStmt{
		Action: confparse.OptSupersede,
		Name:   "domain-name",
		Values: []confparse.Expr{&confparse.ConstData{Value: []byte("a")}},
	}}, root, ctx))

	child := binding.NewChild(root)
	require.NoError(t, evalexpr.Exec([]confparse.Statement{&confparse.OptionStmt{
		Action: confparse.OptAppend,
		Name:   "domain-name",
		Values: []confparse.Expr{&confparse.ConstData{Value: []byte("b")}},
	}}, child, ctx))

	v, ok := child.Option("dhcp", "domain-name")
	require.True(t, ok)
	assert.Equal(t, "ab", string(v.Data))
}

type classAdderStub struct{ added []string }

func (c *classAdderStub) AddClass(name string) { c.added = append(c.added, name) }

func TestExec_AddClass(t *testing.T) {
	scope := binding.NewRoot()
	adder := &classAdderStub{}
	ctx := &evalexpr.ExecContext{ClassAdder: adder}

	require.NoError(t, evalexpr.Exec([]confparse.Statement{&confparse.AddStmt{ClassName: "voip"}}, scope, ctx))
	assert.Equal(t, []string{"voip"}, adder.added)
}
