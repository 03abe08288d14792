package template

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind identifies the type of a template token.
type Kind uint8

// Token kinds.
const (
	Other            Kind = iota // Any other text
	Whitespace                   // Run of ASCII whitespace
	LineComment                  // -- or # up to end of line
	BlockComment                 // /* ... */
	SingleQuoted                 // '...'
	DoubleQuoted                 // "..."
	BacktickQuoted               // `...`
	BracketQuoted                // [...]
	Positional                   // ?
	InlinePositional             // ??
	Named                        // :name
	InlineNamed                  // ::name
	Identifier                   // &name
)

var kindNames = [...]string{
	Other:            "OTHER",
	Whitespace:       "WHITESPACE",
	LineComment:      "LINE_COMMENT",
	BlockComment:     "BLOCK_COMMENT",
	SingleQuoted:     "SINGLE_QUOTED",
	DoubleQuoted:     "DOUBLE_QUOTED",
	BacktickQuoted:   "BACKTICK_QUOTED",
	BracketQuoted:    "BRACKET_QUOTED",
	Positional:       "POSITIONAL",
	InlinePositional: "INLINE_POSITIONAL",
	Named:            "NAMED",
	InlineNamed:      "INLINE_NAMED",
	Identifier:       "IDENTIFIER",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN"
}

// IsMarker reports whether tokens of this kind are substituted on resolve.
func (k Kind) IsMarker() bool {
	return k >= Positional
}

// Position is a location in template text. Line and Column are 1-based,
// Column counts runes.
type Position struct {
	Offset int
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is a typed slice of template text.
type Token struct {
	Kind Kind
	Text string
	Pos  Position
}

// Name returns the marker name of Named, InlineNamed and Identifier
// tokens, and the empty string otherwise.
func (t Token) Name() string {
	switch t.Kind {
	case Named, Identifier:
		return t.Text[1:]
	case InlineNamed:
		return t.Text[2:]
	}
	return ""
}

// TokenizeError is returned for a quoted literal that is never closed.
type TokenizeError struct {
	Pos   Position
	Delim byte
}

func (e *TokenizeError) Error() string {
	return fmt.Sprintf("template: unterminated %c literal at %s", e.Delim, e.Pos)
}

// Tokenize splits text into tokens whose texts concatenate back to text.
//
// Quoted literals are matched first, so markers inside them stay text.
// Adjacent characters that start no other token are coalesced into a
// single Other token.
func Tokenize(text string) ([]Token, error) {
	s := &scanner{input: text, line: 1, col: 1}
	return s.scan()
}

// Join concatenates the token texts.
func Join(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}

type scanner struct {
	input     string
	pos       int
	line, col int
	tokens    []Token
	// start of the pending Other run, -1 if none
	other    int
	otherPos Position
}

func (s *scanner) scan() ([]Token, error) {
	s.other = -1
	for s.pos < len(s.input) {
		c := s.input[s.pos]
		switch {
		case c == '\'':
			if err := s.quoted(SingleQuoted, '\'', '\''); err != nil {
				return nil, err
			}
		case c == '"':
			if err := s.quoted(DoubleQuoted, '"', '"'); err != nil {
				return nil, err
			}
		case c == '`':
			if err := s.quoted(BacktickQuoted, '`', '`'); err != nil {
				return nil, err
			}
		case c == '[':
			if err := s.quoted(BracketQuoted, '[', ']'); err != nil {
				return nil, err
			}
		case c == '#' || s.hasPrefix("--"):
			end := strings.IndexByte(s.input[s.pos:], '\n')
			if end < 0 {
				end = len(s.input) - s.pos
			}
			s.emit(LineComment, end)
		case s.hasPrefix("/*"):
			end := strings.Index(s.input[s.pos+2:], "*/")
			if end < 0 {
				// Unterminated comments are plain text.
				s.fallback()
				continue
			}
			s.emit(BlockComment, end+4)
		case isSpace(c):
			n := 1
			for s.pos+n < len(s.input) && isSpace(s.input[s.pos+n]) {
				n++
			}
			s.emit(Whitespace, n)
		case s.hasPrefix("??"):
			s.emit(InlinePositional, 2)
		case c == '?':
			s.emit(Positional, 1)
		case s.hasPrefix("::") && s.nameLen(s.pos+2) > 0:
			s.emit(InlineNamed, 2+s.nameLen(s.pos+2))
		case c == ':' && s.nameLen(s.pos+1) > 0:
			s.emit(Named, 1+s.nameLen(s.pos+1))
		case c == '&' && s.nameLen(s.pos+1) > 0:
			s.emit(Identifier, 1+s.nameLen(s.pos+1))
		default:
			s.fallback()
		}
	}
	s.flush()
	return s.tokens, nil
}

// quoted scans a literal opened by open and closed by close. A doubled
// close character is an escaped delimiter.
func (s *scanner) quoted(kind Kind, open, close byte) error {
	i := s.pos + 1
	for i < len(s.input) {
		if s.input[i] != close {
			i++
			continue
		}
		if i+1 < len(s.input) && s.input[i+1] == close {
			i += 2
			continue
		}
		s.emit(kind, i+1-s.pos)
		return nil
	}
	return &TokenizeError{Pos: s.position(), Delim: open}
}

func (s *scanner) hasPrefix(p string) bool {
	return strings.HasPrefix(s.input[s.pos:], p)
}

// nameLen returns the length of the marker name starting at i.
func (s *scanner) nameLen(i int) int {
	if i >= len(s.input) || !isNameStart(s.input[i]) {
		return 0
	}
	n := 1
	for i+n < len(s.input) && isNamePart(s.input[i+n]) {
		n++
	}
	return n
}

// fallback adds one rune to the pending Other run.
func (s *scanner) fallback() {
	if s.other < 0 {
		s.other = s.pos
		s.otherPos = s.position()
	}
	_, size := utf8.DecodeRuneInString(s.input[s.pos:])
	s.advance(size)
}

func (s *scanner) flush() {
	if s.other < 0 {
		return
	}
	s.tokens = append(s.tokens, Token{Kind: Other, Text: s.input[s.other:s.pos], Pos: s.otherPos})
	s.other = -1
}

func (s *scanner) emit(kind Kind, n int) {
	s.flush()
	tok := Token{Kind: kind, Text: s.input[s.pos : s.pos+n], Pos: s.position()}
	s.advance(n)
	s.tokens = append(s.tokens, tok)
}

func (s *scanner) advance(n int) {
	text := s.input[s.pos : s.pos+n]
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		s.line += strings.Count(text, "\n")
		s.col = 1 + utf8.RuneCountInString(text[i+1:])
	} else {
		s.col += utf8.RuneCountInString(text)
	}
	s.pos += n
}

func (s *scanner) position() Position {
	return Position{Offset: s.pos, Line: s.line, Column: s.col}
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

func isNameStart(c byte) bool {
	return c == '_' || c == '$' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isNamePart(c byte) bool {
	return isNameStart(c) || ('0' <= c && c <= '9')
}
