package token_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcpcore/dhcpd/internal/token"
)

func collect(t *testing.T, src string) (kinds []token.Kind, lits []string) {
	t.Helper()

	lx := token.New(strings.NewReader(src), "test")
	for {
		tok := lx.Next()
		kinds = append(kinds, tok.Kind)
		lits = append(lits, tok.Literal)
		if tok.Kind == token.EOF {
			break
		}
	}

	return kinds, lits
}

func TestLexer_Keywords(t *testing.T) {
	kinds, lits := collect(t, `subnet 10.0.0.0 netmask 255.255.255.0 { }`)

	require.NotEmpty(t, kinds)
	assert.Equal(t, token.SUBNET, kinds[0])
	assert.Equal(t, "subnet", lits[0])
	assert.Equal(t, token.LBRACE, kinds[len(kinds)-3])
	assert.Equal(t, token.RBRACE, kinds[len(kinds)-2])
	assert.Equal(t, token.EOF, kinds[len(kinds)-1])
}

func TestLexer_Strings(t *testing.T) {
	kinds, lits := collect(t, `"hello \"world\""`)

	require.Len(t, kinds, 2)
	assert.Equal(t, token.STRING, kinds[0])
	assert.Equal(t, `hello "world"`, lits[0])
}

func TestLexer_UnterminatedString(t *testing.T) {
	lx := token.New(strings.NewReader(`"unterminated`), "test")

	tok := lx.Next()
	assert.Equal(t, token.STRING, tok.Kind)
	assert.Equal(t, "unterminated", tok.Literal)
	require.Len(t, lx.Warnings, 1)
}

func TestLexer_NumberPromotion(t *testing.T) {
	kinds, lits := collect(t, `123 1a2b deadbeef foo-bar -5`)

	require.Len(t, kinds, 6)
	assert.Equal(t, token.NUMBER, kinds[0])
	assert.Equal(t, token.NUMBER_OR_NAME, kinds[1])
	assert.Equal(t, token.NUMBER_OR_NAME, kinds[2])
	assert.Equal(t, token.NAME, kinds[3])
	assert.Equal(t, "foo-bar", lits[3])
	assert.Equal(t, token.NUMBER, kinds[4])
	assert.Equal(t, "-5", lits[4])
}

func TestLexer_ColonHex(t *testing.T) {
	kinds, _ := collect(t, `00:11:22:33:44:55`)

	// Alternating NUMBER_OR_NAME/NUMBER and COLON tokens; the parser
	// reassembles them.
	assert.Equal(t, token.NUMBER, kinds[0])
	assert.Equal(t, token.COLON, kinds[1])
}

func TestLexer_CommentsAndWhitespace(t *testing.T) {
	kinds, _ := collect(t, "# a comment\n  host foo {}  # trailing\n")

	assert.Equal(t, token.HOST, kinds[0])
}

func TestLexer_PeekDoesNotConsume(t *testing.T) {
	lx := token.New(strings.NewReader(`host foo`), "test")

	p1 := lx.Peek()
	p2 := lx.Peek()
	n1 := lx.Next()

	assert.Equal(t, p1, p2)
	assert.Equal(t, p1, n1)
	assert.Equal(t, token.NAME, lx.Next().Kind)
}

func TestLexer_NotEqual(t *testing.T) {
	kinds, _ := collect(t, `a != b ! c`)

	assert.Equal(t, token.NAME, kinds[0])
	assert.Equal(t, token.NOT_EQUAL, kinds[1])
	assert.Equal(t, token.NAME, kinds[2])
	assert.Equal(t, token.NOT, kinds[3])
}
