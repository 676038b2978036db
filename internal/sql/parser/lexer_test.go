package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize_Basics(t *testing.T) {
	toks, err := Tokenize("SELECT id, name FROM users WHERE age >= 21;")
	require.NoError(t, err)

	want := []Token{
		{Kind: TokenKeyword, Lit: "SELECT"},
		{Kind: TokenIdent, Lit: "id"},
		{Kind: TokenPunct, Lit: ","},
		{Kind: TokenIdent, Lit: "name"},
		{Kind: TokenKeyword, Lit: "FROM"},
		{Kind: TokenIdent, Lit: "users"},
		{Kind: TokenKeyword, Lit: "WHERE"},
		{Kind: TokenIdent, Lit: "age"},
		{Kind: TokenOperator, Lit: ">="},
		{Kind: TokenNumber, Lit: "21"},
		{Kind: TokenPunct, Lit: ";"},
		{Kind: TokenEOF},
	}
	assert.Equal(t, want, toks)
}

func TestTokenize_KeywordsCaseInsensitive(t *testing.T) {
	toks, err := Tokenize("select FroM WhErE")
	require.NoError(t, err)
	require.Len(t, toks, 4)

	assert.Equal(t, Token{Kind: TokenKeyword, Lit: "SELECT"}, toks[0])
	assert.Equal(t, Token{Kind: TokenKeyword, Lit: "FROM"}, toks[1])
	assert.Equal(t, Token{Kind: TokenKeyword, Lit: "WHERE"}, toks[2])
}

func TestTokenize_IdentifierCasePreserved(t *testing.T) {
	toks, err := Tokenize("MyTable _under score9")
	require.NoError(t, err)

	assert.Equal(t, Token{Kind: TokenIdent, Lit: "MyTable"}, toks[0])
	assert.Equal(t, Token{Kind: TokenIdent, Lit: "_under"}, toks[1])
	assert.Equal(t, Token{Kind: TokenIdent, Lit: "score9"}, toks[2])
}

func TestTokenize_StringLiteral(t *testing.T) {
	toks, err := Tokenize("'hello world' ''")
	require.NoError(t, err)

	assert.Equal(t, Token{Kind: TokenString, Lit: "hello world"}, toks[0])
	assert.Equal(t, Token{Kind: TokenString, Lit: ""}, toks[1])
}

func TestTokenize_UnterminatedString(t *testing.T) {
	_, err := Tokenize("SELECT 'oops")
	require.Error(t, err)
	assert.Equal(t, "Unterminated string literal", err.Error())
}

func TestTokenize_Operators(t *testing.T) {
	toks, err := Tokenize("= != < > <= >= *")
	require.NoError(t, err)
	require.Len(t, toks, 8)

	for i, lit := range []string{"=", "!=", "<", ">", "<=", ">=", "*"} {
		assert.Equal(t, Token{Kind: TokenOperator, Lit: lit}, toks[i])
	}
}

func TestTokenize_Booleans(t *testing.T) {
	toks, err := Tokenize("true FALSE True")
	require.NoError(t, err)

	assert.Equal(t, Token{Kind: TokenBool, Lit: "true"}, toks[0])
	assert.Equal(t, Token{Kind: TokenBool, Lit: "false"}, toks[1])
	assert.Equal(t, Token{Kind: TokenBool, Lit: "true"}, toks[2])
}

func TestTokenize_InvalidCharacter(t *testing.T) {
	_, err := Tokenize("SELECT #")
	require.Error(t, err)
	assert.Equal(t, "Invalid character: #", err.Error())

	// bare '!' is only valid as part of '!='
	_, err = Tokenize("a ! b")
	require.Error(t, err)
	assert.Equal(t, "Invalid character: !", err.Error())
}

func TestTokenize_WhitespaceVariants(t *testing.T) {
	toks, err := Tokenize("a\tb\nc\rd")
	require.NoError(t, err)
	require.Len(t, toks, 5)
	assert.Equal(t, "a", toks[0].Lit)
	assert.Equal(t, "d", toks[3].Lit)
}
