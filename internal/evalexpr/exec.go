package evalexpr

import (
	"github.com/dhcpcore/dhcpd/internal/binding"
	"github.com/dhcpcore/dhcpd/internal/confparse"
)

// ClassAdder records that the current client has been added to a named
// class via an `add <class>;` statement (§3 "Executable statement").
type ClassAdder interface {
	AddClass(name string)
}

// HookInstaller installs a deferred statement tree on the current lease to
// run at a later lifecycle transition (§4.3 "on <event> { … }").
type HookInstaller interface {
	InstallHook(event confparse.OnEvent, body []confparse.Statement)
}

// ExecContext extends Context with the side-effecting collaborators a
// statement list may need; most expression-only evaluation (e.g. computing
// a single option's value) uses a bare Context, while a full "evaluate this
// request" pass uses an ExecContext (§4.3 "Executable statement").
type ExecContext struct {
	Context

	ClassAdder    ClassAdder
	HookInstaller HookInstaller
}

// brk is returned by Exec to signal that a `break;` statement fired,
// unwinding the innermost enclosing statement list (§4.3 "`break` exits the
// enclosing statement list").
type brk struct{}

func (brk) Error() string { return "break" }

// Exec runs stmts against scope in order, stopping early if a `break;`
// statement is reached. Evaluation failures inside a single statement are
// logged by the caller (Exec itself never aborts the list), matching the
// permissive policy of §7.
func Exec(stmts []confparse.Statement, scope *binding.Scope, ctx *ExecContext) error {
	for _, s := range stmts {
		if err := execOne(s, scope, ctx); err != nil {
			if _, ok := err.(brk); ok {
				return nil
			}

			return err
		}
	}

	return nil
}

func execOne(s confparse.Statement, scope *binding.Scope, ctx *ExecContext) error {
	switch n := s.(type) {
	case *confparse.IfStmt:
		return execIf(n, scope, ctx)
	case *confparse.SwitchStmt:
		return execSwitch(n, scope, ctx)
	case *confparse.SetStmt:
		r, _ := Evaluate(n.Expr, scope, &ctx.Context)
		scope.SetVar(n.Var, r.AsValue())

		return nil
	case *confparse.UnsetStmt:
		scope.UnsetVar(n.Var)

		return nil
	case *confparse.EvalStmt:
		_, _ = Evaluate(n.Expr, scope, &ctx.Context)

		return nil
	case *confparse.OptionStmt:
		return execOption(n, scope, ctx)
	case *confparse.AddStmt:
		if ctx.ClassAdder != nil {
			ctx.ClassAdder.AddClass(n.ClassName)
		}

		return nil
	case *confparse.BreakStmt:
		return brk{}
	case *confparse.OnStmt:
		if ctx.HookInstaller != nil {
			for _, ev := range n.Events {
				ctx.HookInstaller.InstallHook(ev, n.Body)
			}
		}

		return nil
	case *confparse.BlockStmt:
		return Exec(n.Body, scope, ctx)
	default:
		return nil
	}
}

func execIf(n *confparse.IfStmt, scope *binding.Scope, ctx *ExecContext) error {
	if asBool(Evaluate(n.Cond, scope, &ctx.Context)) {
		return Exec(n.Then, scope, ctx)
	}

	for _, elif := range n.Elifs {
		if asBool(Evaluate(elif.Cond, scope, &ctx.Context)) {
			return Exec(elif.Body, scope, ctx)
		}
	}

	if n.Else != nil {
		return Exec(n.Else, scope, ctx)
	}

	return nil
}

func execSwitch(n *confparse.SwitchStmt, scope *binding.Scope, ctx *ExecContext) error {
	subject := asData(Evaluate(n.Subject, scope, &ctx.Context))

	for _, c := range n.Cases {
		if string(asData(Evaluate(c.Value, scope, &ctx.Context))) == string(subject) {
			return Exec(c.Body, scope, ctx)
		}
	}

	return Exec(n.Default, scope, ctx)
}

// execOption applies an option merge statement to scope, dispatching to the
// binding.Scope method matching the statement's action (§4.3 "Option-state
// merge semantics").
func execOption(n *confparse.OptionStmt, scope *binding.Scope, ctx *ExecContext) error {
	universe := defaultUniverse(n.Space)

	var data []byte
	for _, ve := range n.Values {
		data = append(data, asData(Evaluate(ve, scope, &ctx.Context))...)
	}

	v := binding.Value{Data: data}

	switch n.Action {
	case confparse.OptSupersede:
		scope.Supersede(universe, n.Name, v)
	case confparse.OptDefault:
		scope.Default(universe, n.Name, v)
	case confparse.OptPrepend:
		scope.Prepend(universe, n.Name, v)
	case confparse.OptAppend:
		scope.Append(universe, n.Name, v)
	}

	return nil
}
