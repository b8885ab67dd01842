package confparse

import (
	"strconv"

	"github.com/dhcpcore/dhcpd/internal/token"
)

// parseExpr parses a full expression in ctx, implementing the
// precedence-climbing grammar of §4.2: unary `!` highest, then `=`/`!=`
// (chained left-to-right), then `and`, then `or` lowest.
func (p *Parser) parseExpr(ctx ExprContext) Expr {
	return p.parseOr(ctx)
}

func (p *Parser) parseOr(ctx ExprContext) Expr {
	left := p.parseAnd(ctx)

	for p.lx.Peek().Kind == token.OR {
		p.lx.Next()

		right := p.parseAnd(ctx)
		left = &BinaryExpr{Op: OpOr, Left: left, Right: right}
	}

	return left
}

func (p *Parser) parseAnd(ctx ExprContext) Expr {
	left := p.parseEquality(ctx)

	for p.lx.Peek().Kind == token.AND {
		p.lx.Next()

		right := p.parseEquality(ctx)
		left = &BinaryExpr{Op: OpAnd, Left: left, Right: right}
	}

	return left
}

func (p *Parser) parseEquality(ctx ExprContext) Expr {
	left := p.parseUnary(ctx)

	for {
		tok := p.lx.Peek()

		var op BinOp
		switch tok.Kind {
		case token.EQUAL:
			op = OpEqual
		case token.NOT_EQUAL:
			op = OpNotEqual
		default:
			return left
		}

		p.lx.Next()

		right := p.parseUnary(ctx)
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary(ctx ExprContext) Expr {
	if p.lx.Peek().Kind == token.NOT {
		p.lx.Next()

		return &NotExpr{Operand: p.parseUnary(CtxBoolean)}
	}

	return p.parsePrimary(ctx)
}

// parsePrimary parses a literal, variable, or named function-call form.
// Most of §3's "Expression" variants are leaf forms recognized by keyword
// or identifier, each followed by a parenthesized argument list where
// applicable.
func (p *Parser) parsePrimary(ctx ExprContext) Expr {
	tok := p.lx.Next()

	switch tok.Kind {
	case token.STRING:
		return &ConstData{Value: []byte(tok.Literal)}
	case token.NUMBER, token.NUMBER_OR_NAME:
		n, err := strconv.ParseUint(tok.Literal, 0, 32)
		if err != nil {
			p.warnf(tok, "invalid numeric literal %q", tok.Literal)
		}

		return &ConstNumber{Value: uint32(n)}
	case token.KNOWN:
		return &KnownExpr{}
	case token.STATIC:
		return &StaticExpr{}
	case token.EXISTS:
		space, name := p.parseOptionName()

		return &ExistsExpr{Space: space, Name: name}
	case token.DEFINED:
		p.expectParenOpen()
		name := p.lx.Next().Literal
		p.expectParenClose()

		return &DefinedExpr{Var: name}
	case token.OPTION:
		space, name := p.parseOptionName()

		return &OptionRef{Space: space, Name: name}
	case token.SUBSTRING:
		p.expectParenOpen()
		src := p.parseExpr(CtxData)
		p.expect(token.COMMA)
		off := p.parseExpr(CtxNumeric)
		p.expect(token.COMMA)
		length := p.parseExpr(CtxNumeric)
		p.expectParenClose()

		return &SubstringExpr{Source: src, Offset: off, Length: length}
	case token.SUFFIX:
		p.expectParenOpen()
		src := p.parseExpr(CtxData)
		p.expect(token.COMMA)
		length := p.parseExpr(CtxNumeric)
		p.expectParenClose()

		return &SuffixExpr{Source: src, Length: length}
	case token.CONCAT:
		p.expectParenOpen()
		a := p.parseExpr(CtxData)
		p.expect(token.COMMA)
		b := p.parseExpr(CtxData)
		p.expectParenClose()

		return &ConcatExpr{Left: a, Right: b}
	case token.REVERSE:
		p.expectParenOpen()
		width := p.parseExpr(CtxNumeric)
		p.expect(token.COMMA)
		val := p.parseExpr(CtxData)
		p.expectParenClose()

		return &ReverseExpr{Width: width, Value: val}
	case token.PICK_FIRST_VALUE:
		p.expectParenOpen()

		vals := []Expr{p.parseExpr(CtxData)}
		for p.lx.Peek().Kind == token.COMMA {
			p.lx.Next()
			vals = append(vals, p.parseExpr(CtxData))
		}

		p.expectParenClose()

		return &PickFirstValueExpr{Values: vals}
	case token.BINARY_TO_ASCII:
		p.expectParenOpen()
		base := p.parseExpr(CtxNumeric)
		p.expect(token.COMMA)
		width := p.parseExpr(CtxNumeric)
		p.expect(token.COMMA)
		sep := p.parseExpr(CtxData)
		p.expect(token.COMMA)
		val := p.parseExpr(CtxData)
		p.expectParenClose()

		return &BinToASCIIExpr{Base: base, Width: width, Separator: sep, Value: val}
	case token.EXTRACT_INT:
		p.expectParenOpen()
		val := p.parseExpr(CtxData)
		p.expect(token.COMMA)
		width := p.parseIntLiteral()
		p.expectParenClose()

		return &ExtractIntExpr{Width: width, Value: val}
	case token.ENCODE_INT:
		p.expectParenOpen()
		val := p.parseExpr(CtxNumeric)
		p.expect(token.COMMA)
		width := p.parseIntLiteral()
		p.expectParenClose()

		return &EncodeIntExpr{Width: width, Value: val}
	case token.NS_UPDATE, token.NS_DELETE, token.NS_EXISTS, token.NS_NOT_EXISTS:
		return p.parseNSExpr(tok.Kind)
	case token.NAME:
		return p.parseNameExpr(tok)
	default:
		p.warnf(tok, "unexpected token in expression: %s %q", tok.Kind, tok.Literal)

		return &ConstData{}
	}
}

// parseNameExpr handles identifier-led primaries not covered by a
// dedicated keyword: `hardware`, `leased-address`, `filename`,
// `server-name`, `lease-time`, `packet(off,len)`, `check <class>`, and
// otherwise a bare variable reference or an extension function call.
func (p *Parser) parseNameExpr(tok token.Token) Expr {
	switch tok.Literal {
	case "hardware":
		return &HardwareExpr{}
	case "leased-address":
		return &LeasedAddressExpr{}
	case "filename":
		return &FilenameExpr{}
	case "server-name":
		return &ServerNameExpr{}
	case "lease-time":
		return &LeaseTimeExpr{}
	case "packet":
		p.expectParenOpen()
		off := p.parseExpr(CtxNumeric)
		p.expect(token.COMMA)
		length := p.parseExpr(CtxNumeric)
		p.expectParenClose()

		return &PacketExpr{Offset: off, Length: length}
	case "check":
		name := p.lx.Next().Literal

		return &CheckExpr{ClassName: name}
	}

	if p.lx.Peek().Kind == token.LPAREN {
		p.lx.Next()

		call := &CallExpr{Name: tok.Literal}
		if p.lx.Peek().Kind != token.RPAREN {
			call.Args = append(call.Args, p.parseExpr(CtxAny))
			for p.lx.Peek().Kind == token.COMMA {
				p.lx.Next()
				call.Args = append(call.Args, p.parseExpr(CtxAny))
			}
		}

		p.expectParenClose()

		return call
	}

	return &VarRef{Name: tok.Literal}
}

func (p *Parser) parseNSExpr(kind token.Kind) Expr {
	var k NSUpdateKind

	switch kind {
	case token.NS_UPDATE:
		k = NSUpdate
	case token.NS_DELETE:
		k = NSDelete
	case token.NS_EXISTS:
		k = NSExists
	case token.NS_NOT_EXISTS:
		k = NSNotExists
	}

	e := &NSExpr{Kind: k}

	if p.lx.Peek().Kind != token.LPAREN {
		return e
	}

	p.lx.Next()

	if p.lx.Peek().Kind != token.RPAREN {
		e.Args = append(e.Args, p.parseExpr(CtxAny))
		for p.lx.Peek().Kind == token.COMMA {
			p.lx.Next()
			e.Args = append(e.Args, p.parseExpr(CtxAny))
		}
	}

	p.expectParenClose()

	return e
}

func (p *Parser) expectParenOpen()  { p.expect(token.LPAREN) }
func (p *Parser) expectParenClose() { p.expect(token.RPAREN) }

func (p *Parser) parseIntLiteral() int {
	tok := p.lx.Next()

	n, err := strconv.Atoi(tok.Literal)
	if err != nil {
		p.warnf(tok, "expected integer literal, got %q", tok.Literal)
	}

	return n
}
