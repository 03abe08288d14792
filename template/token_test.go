package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(tokens []Token) []Kind {
	out := make([]Kind, len(tokens))
	for i, t := range tokens {
		out[i] = t.Kind
	}
	return out
}

func texts(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}

func TestTokenize(t *testing.T) {
	tokens, err := Tokenize("SELECT * FROM &post WHERE id = ? AND title = :title")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"SELECT", " ", "*", " ", "FROM", " ", "&post", " ", "WHERE", " ", "id", " ", "=", " ", "?",
		" ", "AND", " ", "title", " ", "=", " ", ":title",
	}, texts(tokens))
	assert.Equal(t, Identifier, tokens[6].Kind)
	assert.Equal(t, "post", tokens[6].Name())
	assert.Equal(t, Positional, tokens[14].Kind)
	assert.Equal(t, Named, tokens[22].Kind)
	assert.Equal(t, "title", tokens[22].Name())
}

func TestTokenizeMarkers(t *testing.T) {
	tests := []struct {
		in    string
		kinds []Kind
	}{
		{"??", []Kind{InlinePositional}},
		{"???", []Kind{InlinePositional, Positional}},
		{"::a", []Kind{InlineNamed}},
		{":a", []Kind{Named}},
		{":::a", []Kind{Other, InlineNamed}},
		{"a::1", []Kind{Other}},
		{"&$x_1", []Kind{Identifier}},
		{"& x", []Kind{Other, Whitespace, Other}},
		{":1", []Kind{Other}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			tokens, err := Tokenize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.kinds, kinds(tokens))
			assert.Equal(t, tt.in, Join(tokens))
		})
	}
}

func TestTokenizeQuotedLiterals(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
	}{
		{`'it''s :not ? a marker'`, SingleQuoted},
		{`"col""umn ::x"`, DoubleQuoted},
		{"`weird``name &t`", BacktickQuoted},
		{"[bracket ?? name]", BracketQuoted},
		{"[a]]b]", BracketQuoted},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			tokens, err := Tokenize(tt.in)
			require.NoError(t, err)
			require.Len(t, tokens, 1)
			assert.Equal(t, tt.kind, tokens[0].Kind)
			assert.Equal(t, tt.in, tokens[0].Text)
		})
	}
}

func TestTokenizeComments(t *testing.T) {
	tokens, err := Tokenize("SELECT 1 -- why ?\n# also :x\n/* ::y */?")
	require.NoError(t, err)
	assert.Equal(t, []Kind{
		Other, Whitespace, Other, Whitespace, LineComment, Whitespace, LineComment, Whitespace, BlockComment, Positional,
	}, kinds(tokens))
	assert.Equal(t, "-- why ?", tokens[4].Text)
	assert.Equal(t, "/* ::y */", tokens[8].Text)
}

func TestTokenizeUnterminatedBlockComment(t *testing.T) {
	tokens, err := Tokenize("SELECT /* ?")
	require.NoError(t, err)
	assert.Equal(t, []Kind{Other, Whitespace, Other, Whitespace, Positional}, kinds(tokens))
	assert.Equal(t, "/*", tokens[2].Text)
}

func TestTokenizeUnterminatedLiteral(t *testing.T) {
	for _, in := range []string{"SELECT 'abc", "SELECT \"abc", "SELECT `abc", "SELECT [abc", "SELECT\n  'it''s"} {
		t.Run(in, func(t *testing.T) {
			_, err := Tokenize(in)
			require.Error(t, err)
			var terr *TokenizeError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, in[terr.Pos.Offset], terr.Delim)
		})
	}
	_, err := Tokenize("SELECT\n  'open")
	var terr *TokenizeError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, Position{Offset: 9, Line: 2, Column: 3}, terr.Pos)
	assert.Equal(t, "template: unterminated ' literal at 2:3", terr.Error())
}

func TestTokenizePositions(t *testing.T) {
	tokens, err := Tokenize("a\n  ?\n\tüb :c")
	require.NoError(t, err)
	var named Token
	for _, tok := range tokens {
		if tok.Kind == Named {
			named = tok
		}
	}
	assert.Equal(t, 3, named.Pos.Line)
	assert.Equal(t, 5, named.Pos.Column)
	assert.Equal(t, Position{Offset: 4, Line: 2, Column: 3}, tokens[2].Pos)
}

func TestTokenizeRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"SELECT ::select FROM ::table WHERE ::where ::orderBy ::limit",
		"INSERT INTO &post (title) VALUES (??) -- done",
		"SELECT x::int, 'a''b', \"c\", `d`, [e] FROM t /* c */ WHERE y = ?",
		"日本語 ? ::名",
	}
	for _, in := range inputs {
		tokens, err := Tokenize(in)
		require.NoError(t, err)
		assert.Equal(t, in, Join(tokens))
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "INLINE_NAMED", InlineNamed.String())
	assert.Equal(t, "OTHER", Other.String())
	assert.Equal(t, "UNKNOWN", Kind(99).String())
	assert.True(t, Identifier.IsMarker())
	assert.False(t, BracketQuoted.IsMarker())
}
