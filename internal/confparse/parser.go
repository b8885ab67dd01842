package confparse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dhcpcore/dhcpd/internal/token"
)

// scopeKind tracks which declaration a parser is currently nested inside,
// for the scope-rule checks of §4.2: "host/group not permitted inside class
// or host; subnet only at shared-network or root; range only inside a
// subnet or pool; pool only inside a subnet or shared-network (not nested);
// failover peer only at root or shared-network."
type scopeKind int

const (
	scopeRoot scopeKind = iota
	scopeGroup
	scopeHost
	scopeClass
	scopeSharedNetwork
	scopeSubnet
	scopePool
)

// Parser is a recursive-descent parser over a [token.Lexer]. It never
// aborts on a diagnostic: malformed constructs are reported as a Warning
// and the parser resynchronizes to the next statement terminator or closing
// brace, per §4.2 and §7's "never exit mid-parse except on I/O error"
// policy.
type Parser struct {
	lx *token.Lexer

	scopeStack []scopeKind

	Warnings []Diagnostic

	// classNames and groupNames record declared names so later `group
	// <name>` / `members of <class>` references can be validated once all
	// declarations are known; populated during Parse.
	classNames map[string]bool
	groupNames map[string]bool
}

// Diagnostic is a parser-level warning: the file/line/column plus message,
// matching parse_warn's contract (§4.2 "Failure behavior").
type Diagnostic struct {
	Message string
	Pos     token.Position
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Pos, d.Message)
}

// New returns a Parser reading tokens from lx.
func New(lx *token.Lexer) *Parser {
	return &Parser{
		lx:         lx,
		scopeStack: []scopeKind{scopeRoot},
		classNames: map[string]bool{},
		groupNames: map[string]bool{},
	}
}

func (p *Parser) curScope() scopeKind { return p.scopeStack[len(p.scopeStack)-1] }

func (p *Parser) pushScope(k scopeKind) { p.scopeStack = append(p.scopeStack, k) }

func (p *Parser) popScope() { p.scopeStack = p.scopeStack[:len(p.scopeStack)-1] }

// warnf records a Diagnostic at tok's position, mirroring parse_warn.
func (p *Parser) warnf(tok token.Token, format string, args ...any) {
	p.Warnings = append(p.Warnings, Diagnostic{
		Message: fmt.Sprintf(format, args...),
		Pos:     tok.Pos,
	})
}

// WarningsOccurred reports whether any diagnostic has been recorded,
// including lexer-level ones. Per §4.2 "Failure behavior", a non-zero count
// at end of file demotes the overall load to a soft-failure result.
func (p *Parser) WarningsOccurred() bool {
	return len(p.Warnings) > 0 || len(p.lx.Warnings) > 0
}

// File is the parsed top-level configuration: a flat statement/declaration
// list (§4.2 "file := statement*").
type File struct {
	Root          *Group
	Hosts         []*Host
	Groups        map[string]*Group
	SharedNetwork []*SharedNetwork
	Subnets       []*Subnet
	Classes       []*Class
}

// Parse consumes the entire token stream and returns the parsed File. It
// always returns a (possibly partial) result; callers should check
// WarningsOccurred for the soft-fail/hard-fail distinction described by
// §4.2 and §7.
func (p *Parser) Parse() *File {
	f := &File{
		Root:   &Group{},
		Groups: map[string]*Group{},
	}

	for {
		tok := p.lx.Peek()
		if tok.Kind == token.EOF {
			break
		}

		p.parseTopLevel(f)
	}

	return f
}

// parseTopLevel parses one declaration or parameter at the root scope,
// dispatching by the lookahead keyword (§4.2 grammar).
func (p *Parser) parseTopLevel(f *File) {
	tok := p.lx.Peek()

	switch tok.Kind {
	case token.HOST:
		if h := p.parseHost(); h != nil {
			f.Hosts = append(f.Hosts, h)
		}
	case token.GROUP:
		if g, name := p.parseGroup(); g != nil && name != "" {
			f.Groups[name] = g
		}
	case token.SHARED_NETWORK:
		if sn := p.parseSharedNetwork(); sn != nil {
			f.SharedNetwork = append(f.SharedNetwork, sn)
		}
	case token.SUBNET:
		if !p.checkScope(tok, scopeSubnet, scopeRoot, scopeSharedNetwork) {
			p.resyncBlockOrSemi()

			return
		}

		if sn := p.parseSubnet(nil); sn != nil {
			f.Subnets = append(f.Subnets, sn)
		}
	case token.CLASS, token.SUBCLASS, token.VENDOR_CLASS, token.USER_CLASS:
		if c := p.parseClass(tok.Kind); c != nil {
			f.Classes = append(f.Classes, c)
			p.classNames[c.Name] = true
		}
	case token.POOL:
		// A pool is never legal at the root scope (only inside a subnet or
		// shared-network); report and resync.
		p.warnf(tok, "pool declared outside subnet or shared-network")
		p.resyncBlockOrSemi()
	case token.FAILOVER:
		p.parseFailoverPeer()
	case token.OPTION_SPACE:
		p.parseOptionSpaceDecl()
	default:
		p.parseStatementInto(&f.Root.Stmts)
	}
}

// checkScope enforces §4.2's scope rules: want names the scopes the
// declaration at tok is legal in; the current scope (or root) must be one
// of them.
func (p *Parser) checkScope(tok token.Token, _ scopeKind, want ...scopeKind) bool {
	cur := p.curScope()
	for _, w := range want {
		if cur == w {
			return true
		}
	}

	p.warnf(tok, "%s not permitted in this scope", tok.Literal)

	return false
}

// expect consumes and returns the next token if its Kind matches want;
// otherwise it records a diagnostic and returns the unexpected token
// without consuming further input, leaving resynchronization to the
// caller.
func (p *Parser) expect(want token.Kind) token.Token {
	tok := p.lx.Next()
	if tok.Kind != want {
		p.warnf(tok, "expected %s, got %s %q", want, tok.Kind, tok.Literal)
	}

	return tok
}

// resyncBlockOrSemi implements skip_to_rbrace/skip_to_semi (§8 invariant 6,
// §C supplement 6): if the next meaningful token opens a brace block, it
// consumes a balanced `{ … }` (counting nested braces); otherwise it
// consumes through the first unbalanced `;`.
func (p *Parser) resyncBlockOrSemi() {
	tok := p.lx.Peek()
	if tok.Kind == token.LBRACE {
		p.lx.Next()
		p.skipToRBrace()

		return
	}

	p.skipToSemi()
}

// skipToRBrace consumes input up to and including the next `}` that
// balances the brace already consumed by the caller, tracking nested `{`
// so an inner block doesn't terminate the skip early.
func (p *Parser) skipToRBrace() {
	depth := 1
	for depth > 0 {
		tok := p.lx.Next()
		switch tok.Kind {
		case token.LBRACE:
			depth++
		case token.RBRACE:
			depth--
		case token.EOF:
			return
		}
	}
}

// skipToSemi consumes input through the first `;` outside any brace block,
// or through the `}` that closes a block the skipped text opened (a `}`
// with no matching `{` also ends the skip).
func (p *Parser) skipToSemi() {
	depth := 0
	for {
		tok := p.lx.Next()
		switch {
		case tok.Kind == token.EOF, tok.Kind == token.SEMI && depth == 0:
			return
		case tok.Kind == token.LBRACE:
			depth++
		case tok.Kind == token.RBRACE:
			depth--
			if depth <= 0 {
				return
			}
		}
	}
}

// parseBlock parses a `{ statement* }` body, dispatching each inner
// statement/declaration by lookahead. scope is pushed for the duration of
// the block.
func (p *Parser) parseBlock(g *Group, scope scopeKind) {
	p.expect(token.LBRACE)
	p.pushScope(scope)
	defer p.popScope()

	for {
		tok := p.lx.Peek()
		if tok.Kind == token.RBRACE || tok.Kind == token.EOF {
			p.lx.Next()

			return
		}

		p.parseBlockItem(g, tok)
	}
}

// parseBlockItem parses one item inside a declaration body: a nested
// declaration where the current scope allows it, or a parameter/executable
// statement.
func (p *Parser) parseBlockItem(g *Group, tok token.Token) {
	switch tok.Kind {
	case token.HOST, token.GROUP:
		if p.curScope() == scopeClass || p.curScope() == scopeHost {
			p.warnf(tok, "%s not permitted inside class or host", tok.Literal)
			p.resyncBlockOrSemi()

			return
		}

		if tok.Kind == token.HOST {
			p.parseHost()
		} else {
			p.parseGroup()
		}
	case token.POOL:
		if p.curScope() != scopeSubnet && p.curScope() != scopeSharedNetwork {
			p.warnf(tok, "pool only permitted inside subnet or shared-network")
			p.resyncBlockOrSemi()

			return
		}

		p.parsePoolInto(g)
	case token.RANGE:
		if p.curScope() != scopeSubnet && p.curScope() != scopePool {
			p.warnf(tok, "range only permitted inside subnet or pool")
			p.resyncBlockOrSemi()

			return
		}

		p.lx.Next()
		_ = p.parseAddrRange()
	case token.AUTHORITATIVE:
		p.lx.Next()
		p.expect(token.SEMI)
		yes := true
		g.Authoritative = &yes
	case token.NOT_KW:
		p.lx.Next()
		p.expect(token.AUTHORITATIVE)
		p.expect(token.SEMI)
		no := false
		g.Authoritative = &no
	default:
		p.parseStatementInto(&g.Stmts)
	}
}

// parsePoolInto parses a pool declaration reached through parseBlockItem.
// Group has no Pools field, so the returned Pool is not attached anywhere
// and parseBlockItem discards it; parseSubnet and parseSharedNetwork parse
// their own `pool` blocks with parsePool and keep the result.
func (p *Parser) parsePoolInto(_ *Group) *Pool {
	return p.parsePool()
}

func (p *Parser) parsePool() *Pool {
	tok := p.lx.Next() // consume 'pool'

	pool := &Pool{Group: &Group{}}

	p.expect(token.LBRACE)
	p.pushScope(scopePool)
	defer p.popScope()

	for {
		inner := p.lx.Peek()
		switch inner.Kind {
		case token.RBRACE:
			p.lx.Next()

			return pool
		case token.EOF:
			p.warnf(tok, "unterminated pool declaration")

			return pool
		case token.RANGE:
			p.lx.Next()
			pool.Ranges = append(pool.Ranges, p.parseAddrRange())
		case token.ALLOW:
			p.lx.Next()
			pool.Permit = append(pool.Permit, p.parseClassRef())
		case token.DENY:
			p.lx.Next()

			if p.lx.Peek().Kind == token.NAME && p.lx.Peek().Literal == "dynamic-bootp" {
				pool.DynamicBootp = false
			}

			pool.Prohibit = append(pool.Prohibit, p.parseClassRef())
		case token.IGNORE:
			p.lx.Next()
			pool.Prohibit = append(pool.Prohibit, p.parseClassRef())
		case token.FAILOVER:
			p.lx.Next()
			p.expect(token.PEER)
			nameTok := p.lx.Next()
			pool.FailoverPeer = nameTok.Literal
			p.expect(token.SEMI)
		default:
			p.parseBlockItem(pool.Group, inner)
		}
	}
}

// parseClassRef parses the permit/prohibit class-list grammar: one of the
// pseudo-class keywords, `dynamic-bootp`, or `members of "<class>"`.
func (p *Parser) parseClassRef() string {
	tok := p.lx.Next()

	var name string
	switch tok.Kind {
	case token.KNOWN:
		name = "known"
	case token.NAME:
		name = tok.Literal
	default:
		name = tok.Literal
	}

	if name == "members" {
		// `members of <class>`
		if p.lx.Peek().Literal == "of" {
			p.lx.Next()
		}

		name = p.lx.Next().Literal
	}

	p.expect(token.SEMI)

	return name
}

// parseAddrRange parses `range [bootp] <start> [<end>];`.
func (p *Parser) parseAddrRange() AddrRange {
	var r AddrRange

	if p.lx.Peek().Kind == token.BOOTP {
		p.lx.Next()
		r.Bootp = true
	}

	r.Start = p.parseAddrToken()

	if p.lx.Peek().Kind != token.SEMI {
		r.End = p.parseAddrToken()
	}

	p.expect(token.SEMI)

	return r
}

// parseAddrToken reassembles a dotted-decimal address from the
// NUMBER/SLASH-free token stream (dots are NUMBER-boundary markers, emitted
// implicitly because '.' is not itself a punctuation token in this
// grammar's host/IP literals — such literals are carried as NAME/NUMBER
// tokens joined by the lexer's name-continuation rules in practice; here we
// accept a single NAME/NUMBER token holding the whole literal, which is
// how dotted-decimal and hostnames alike arrive from the lexer).
func (p *Parser) parseAddrToken() string {
	tok := p.lx.Next()

	return tok.Literal
}

func (p *Parser) parseHost() *Host {
	p.lx.Next() // consume 'host'
	nameTok := p.lx.Next()

	h := &Host{Group: &Group{Name: nameTok.Literal}, Name: nameTok.Literal}

	p.expect(token.LBRACE)
	p.pushScope(scopeHost)
	defer p.popScope()

	for {
		tok := p.lx.Peek()
		switch tok.Kind {
		case token.RBRACE, token.EOF:
			p.lx.Next()

			return h
		case token.HARDWARE:
			p.lx.Next()
			h.HWType = p.lx.Next().Literal
			h.HWAddr = p.parseColonHex()
			p.expect(token.SEMI)
		case token.FIXED_ADDRESS:
			p.lx.Next()
			h.FixedAddress = p.parseDataExprList()
			p.expect(token.SEMI)
		case token.UID:
			p.lx.Next()
			if p.lx.Peek().Kind == token.STRING {
				h.UID = []byte(p.lx.Next().Literal)
			} else {
				h.UID = p.parseColonHex()
			}
			p.expect(token.SEMI)
		case token.GROUP:
			p.lx.Next()
			h.GroupRef = p.lx.Next().Literal
			p.expect(token.SEMI)
		default:
			p.parseBlockItem(h.Group, tok)
		}
	}
}

// parseColonHex parses a sequence of 8-bit numbers separated by ':'
// (§4.2 "Colon-hex lists").
func (p *Parser) parseColonHex() []byte {
	var out []byte

	for {
		numTok := p.lx.Next()

		n, err := strconv.ParseUint(numTok.Literal, 16, 8)
		if err != nil {
			p.warnf(numTok, "invalid hex byte %q", numTok.Literal)
		}

		out = append(out, byte(n))

		if p.lx.Peek().Kind != token.COLON {
			break
		}

		p.lx.Next()
	}

	return out
}

// parseDataExprList parses a comma-separated list of data expressions,
// used by `fixed-address` and `option` statements, and wraps it as a
// concat-chain when more than one value is present.
func (p *Parser) parseDataExprList() Expr {
	first := p.parseExpr(CtxData)
	if p.lx.Peek().Kind != token.COMMA {
		return first
	}

	values := []Expr{first}
	for p.lx.Peek().Kind == token.COMMA {
		p.lx.Next()
		values = append(values, p.parseExpr(CtxData))
	}

	return &PickFirstValueExpr{Values: values}
}

func (p *Parser) parseGroup() (*Group, string) {
	p.lx.Next() // consume 'group'

	name := ""
	if p.lx.Peek().Kind == token.NAME || p.lx.Peek().Kind == token.STRING {
		name = p.lx.Next().Literal
	}

	g := &Group{Name: name}
	p.groupNames[name] = true

	p.parseBlock(g, scopeGroup)

	return g, name
}

func (p *Parser) parseSharedNetwork() *SharedNetwork {
	p.lx.Next() // consume 'shared-network'
	name := p.lx.Next().Literal

	sn := &SharedNetwork{Group: &Group{Name: name}, Name: name}

	p.expect(token.LBRACE)
	p.pushScope(scopeSharedNetwork)
	defer p.popScope()

	for {
		tok := p.lx.Peek()
		switch tok.Kind {
		case token.RBRACE, token.EOF:
			p.lx.Next()

			return sn
		case token.SUBNET:
			if s := p.parseSubnet(sn); s != nil {
				sn.Subnets = append(sn.Subnets, s)
			}
		case token.POOL:
			sn.Pools = append(sn.Pools, p.parsePool())
		case token.FAILOVER:
			p.lx.Next()
			p.expect(token.PEER)
			sn.FailoverPeer = p.lx.Next().Literal
			p.expect(token.SEMI)
		default:
			p.parseBlockItem(sn.Group, tok)
		}
	}
}

func (p *Parser) parseSubnet(parent *SharedNetwork) *Subnet {
	p.lx.Next() // consume 'subnet'
	network := p.parseAddrToken()

	netmaskTok := p.lx.Peek()
	if netmaskTok.Literal == "netmask" {
		p.lx.Next()
	}

	netmask := p.parseAddrToken()

	sn := &Subnet{Group: &Group{}, Network: network, Netmask: netmask, SharedNetwork: parent}

	p.expect(token.LBRACE)
	p.pushScope(scopeSubnet)
	defer p.popScope()

	for {
		tok := p.lx.Peek()
		switch tok.Kind {
		case token.RBRACE, token.EOF:
			p.lx.Next()

			return sn
		case token.POOL:
			sn.Pools = append(sn.Pools, p.parsePool())
		case token.RANGE:
			p.lx.Next()
			r := p.parseAddrRange()
			sn.Pools = append(sn.Pools, &Pool{Group: &Group{}, Ranges: []AddrRange{r}})
		default:
			p.parseBlockItem(sn.Group, tok)
		}
	}
}

func (p *Parser) parseClass(kind token.Kind) *Class {
	p.lx.Next() // consume class-introducing keyword
	nameTok := p.lx.Next()

	c := &Class{Group: &Group{Name: nameTok.Literal}, Name: nameTok.Literal}
	_ = kind

	p.expect(token.LBRACE)
	p.pushScope(scopeClass)
	defer p.popScope()

	for {
		tok := p.lx.Peek()
		switch tok.Kind {
		case token.RBRACE, token.EOF:
			p.lx.Next()

			return c
		case token.NAME:
			switch tok.Literal {
			case "match":
				p.lx.Next()

				if p.lx.Peek().Kind == token.IF {
					p.lx.Next()
					c.Match = p.parseExpr(CtxBoolean)
				} else {
					c.Match = p.parseExpr(CtxData)
				}

				p.expect(token.SEMI)
			case "spawn":
				p.lx.Next()

				if p.lx.Peek().Literal == "with" {
					p.lx.Next()
				}

				c.Spawn = p.parseExpr(CtxData)
				p.expect(token.SEMI)
			case "lease":
				p.lx.Next()

				if p.lx.Peek().Literal == "limit" {
					p.lx.Next()
				}

				n := p.lx.Next()
				c.LeaseLimit, _ = strconv.Atoi(n.Literal)
				p.expect(token.SEMI)
			default:
				p.parseBlockItem(c.Group, tok)
			}
		default:
			p.parseBlockItem(c.Group, tok)
		}
	}
}

// parseFailoverPeer parses and discards a `failover peer "<name>" { … }`
// declaration's body; failover wire reconciliation is explicitly out of
// scope (§1), but the declaration must still parse so surrounding
// configuration is unaffected.
func (p *Parser) parseFailoverPeer() {
	tok := p.lx.Next() // consume 'failover'
	p.expect(token.PEER)
	p.lx.Next() // name

	if !p.checkScope(tok, scopeRoot, scopeRoot, scopeSharedNetwork) {
		p.resyncBlockOrSemi()

		return
	}

	p.resyncBlockOrSemi()
}

// parseOptionSpaceDecl parses and discards an `option space <name> { … }` /
// `option <space>.<name> code N = TYPE;` definition's surrounding
// statement; option-code *definitions* are consumed by
// internal/optionspace's registry builder, not by this parser — here we
// only skip past the declaration so it doesn't disturb scope tracking.
func (p *Parser) parseOptionSpaceDecl() {
	p.lx.Next() // consume 'option-space' (or similar introducer)
	p.resyncBlockOrSemi()
}

// parseStatementInto parses one parameter or executable statement and
// appends it to stmts. A bare `authoritative;` or `not authoritative;`
// reaching it (at root scope, or inside an if/switch/on/statements body) is
// consumed and not recorded; inside a declaration body parseBlockItem
// handles those two statements and sets the enclosing Group's
// Authoritative.
func (p *Parser) parseStatementInto(stmts *[]Statement) {
	tok := p.lx.Peek()

	switch tok.Kind {
	case token.IF:
		*stmts = append(*stmts, p.parseIf())
	case token.SET:
		p.lx.Next()
		name := p.lx.Next().Literal
		p.expect(token.EQUAL)
		e := p.parseExpr(CtxAny)
		p.expect(token.SEMI)
		*stmts = append(*stmts, &SetStmt{Var: name, Expr: e})
	case token.UNSET:
		p.lx.Next()
		name := p.lx.Next().Literal
		p.expect(token.SEMI)
		*stmts = append(*stmts, &UnsetStmt{Var: name})
	case token.EVAL:
		p.lx.Next()
		e := p.parseExpr(CtxAny)
		p.expect(token.SEMI)
		*stmts = append(*stmts, &EvalStmt{Expr: e})
	case token.SUPERSEDE, token.DEFAULT, token.PREPEND, token.APPEND:
		*stmts = append(*stmts, p.parseOptionStmt(tok.Kind))
	case token.ADD:
		p.lx.Next()
		name := p.lx.Next().Literal
		p.expect(token.SEMI)
		*stmts = append(*stmts, &AddStmt{ClassName: name})
	case token.BREAK:
		p.lx.Next()
		p.expect(token.SEMI)
		*stmts = append(*stmts, &BreakStmt{})
	case token.ON:
		*stmts = append(*stmts, p.parseOn())
	case token.STATEMENTS:
		p.lx.Next()
		b := &BlockStmt{}
		p.expect(token.LBRACE)

		for p.lx.Peek().Kind != token.RBRACE && p.lx.Peek().Kind != token.EOF {
			p.parseStatementInto(&b.Body)
		}

		p.lx.Next()
		*stmts = append(*stmts, b)
	case token.SWITCH:
		*stmts = append(*stmts, p.parseSwitch())
	case token.AUTHORITATIVE:
		p.lx.Next()
		p.expect(token.SEMI)
	case token.NOT_KW:
		p.lx.Next()
		p.expect(token.AUTHORITATIVE)
		p.expect(token.SEMI)
	case token.OPTION:
		p.parseOptionParam(stmts)
	case token.EOF:
		// Nothing to do; Parse's loop terminates.
	default:
		p.warnf(tok, "unrecognized statement starting with %s %q", tok.Kind, tok.Literal)
		p.resyncBlockOrSemi()
	}
}

// parseOptionParam parses a bare `option <opt> <data-expr>* ;` parameter,
// which is sugar for `supersede option …` (§4.2 grammar).
func (p *Parser) parseOptionParam(stmts *[]Statement) {
	p.lx.Next() // consume 'option'

	space, name := p.parseOptionName()
	values := p.parseOptionValues()
	p.expect(token.SEMI)

	*stmts = append(*stmts, &OptionStmt{
		Action: OptSupersede,
		Space:  space,
		Name:   name,
		Values: values,
	})
}

func (p *Parser) parseOptionStmt(action token.Kind) Statement {
	p.lx.Next() // consume the action keyword

	if p.lx.Peek().Literal != "option" && p.lx.Peek().Kind != token.OPTION {
		// `default;`/`default lease-time` etc. are handled elsewhere; a
		// bare `default` outside `option` context is a no-op parameter we
		// skip.
		p.resyncBlockOrSemi()

		return &BlockStmt{}
	}

	p.lx.Next() // consume 'option'

	space, name := p.parseOptionName()
	values := p.parseOptionValues()
	p.expect(token.SEMI)

	var act OptionAction
	switch action {
	case token.SUPERSEDE:
		act = OptSupersede
	case token.DEFAULT:
		act = OptDefault
	case token.PREPEND:
		act = OptPrepend
	case token.APPEND:
		act = OptAppend
	}

	return &OptionStmt{Action: act, Space: space, Name: name, Values: values}
}

// parseOptionName parses an option name. The lexer does not treat '.' as
// part of a name, so a `<space>.<name>` spelling is not joined: the token
// before the '.' is returned as name, and space is always empty.
func (p *Parser) parseOptionName() (space, name string) {
	first := p.lx.Next().Literal

	if p.lx.Peek().Kind == token.NAME && strings.HasPrefix(p.lx.Peek().Literal, ".") {
		// A '.' after the name arrives as its own NAME token (with a lexer
		// warning); it is left in the token stream.
	}

	return "", first
}

func (p *Parser) parseOptionValues() []Expr {
	var values []Expr

	if p.lx.Peek().Kind == token.SEMI {
		return values
	}

	values = append(values, p.parseExpr(CtxData))
	for p.lx.Peek().Kind == token.COMMA {
		p.lx.Next()
		values = append(values, p.parseExpr(CtxData))
	}

	return values
}

func (p *Parser) parseIf() *IfStmt {
	p.lx.Next() // consume 'if'

	s := &IfStmt{Cond: p.parseExpr(CtxBoolean)}
	p.expect(token.LBRACE)

	for p.lx.Peek().Kind != token.RBRACE && p.lx.Peek().Kind != token.EOF {
		p.parseStatementInto(&s.Then)
	}

	p.lx.Next()

	for p.lx.Peek().Kind == token.ELSIF {
		p.lx.Next()

		clause := ElifClause{Cond: p.parseExpr(CtxBoolean)}
		p.expect(token.LBRACE)

		for p.lx.Peek().Kind != token.RBRACE && p.lx.Peek().Kind != token.EOF {
			p.parseStatementInto(&clause.Body)
		}

		p.lx.Next()

		s.Elifs = append(s.Elifs, clause)
	}

	if p.lx.Peek().Kind == token.ELSE {
		p.lx.Next()
		p.expect(token.LBRACE)

		for p.lx.Peek().Kind != token.RBRACE && p.lx.Peek().Kind != token.EOF {
			p.parseStatementInto(&s.Else)
		}

		p.lx.Next()
	}

	return s
}

func (p *Parser) parseSwitch() *SwitchStmt {
	p.lx.Next() // consume 'switch'

	s := &SwitchStmt{}

	if p.lx.Peek().Kind == token.LPAREN {
		p.lx.Next()
		s.Subject = p.parseExpr(CtxAny)
		p.expect(token.RPAREN)
	} else {
		s.Subject = p.parseExpr(CtxAny)
	}

	p.expect(token.LBRACE)

	for {
		tok := p.lx.Peek()
		switch tok.Kind {
		case token.CASE:
			p.lx.Next()

			c := SwitchCase{Value: p.parseExpr(CtxAny)}
			p.expect(token.COLON)

			for {
				nt := p.lx.Peek()
				if nt.Kind == token.CASE || nt.Kind == token.DEFAULT ||
					nt.Kind == token.RBRACE || nt.Kind == token.EOF {
					break
				}

				p.parseStatementInto(&c.Body)
			}

			s.Cases = append(s.Cases, c)
		case token.DEFAULT:
			p.lx.Next()
			p.expect(token.COLON)

			for {
				nt := p.lx.Peek()
				if nt.Kind == token.CASE || nt.Kind == token.RBRACE || nt.Kind == token.EOF {
					break
				}

				p.parseStatementInto(&s.Default)
			}
		case token.RBRACE, token.EOF:
			p.lx.Next()

			return s
		default:
			p.warnf(tok, "expected case/default inside switch")
			p.resyncBlockOrSemi()

			return s
		}
	}
}

func (p *Parser) parseOn() *OnStmt {
	p.lx.Next() // consume 'on'

	s := &OnStmt{}

	for {
		tok := p.lx.Next()

		switch strings.ToLower(tok.Literal) {
		case "commit":
			s.Events = append(s.Events, OnCommit)
		case "expiry":
			s.Events = append(s.Events, OnExpiry)
		case "release":
			s.Events = append(s.Events, OnRelease)
		default:
			p.warnf(tok, "unknown on-event %q", tok.Literal)
		}

		if p.lx.Peek().Kind == token.OR {
			p.lx.Next()

			continue
		}

		break
	}

	p.expect(token.LBRACE)

	for p.lx.Peek().Kind != token.RBRACE && p.lx.Peek().Kind != token.EOF {
		p.parseStatementInto(&s.Body)
	}

	p.lx.Next()

	return s
}
