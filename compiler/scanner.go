package compiler

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Scanner: tokenizer for whitespace-separated Catena source
// ---------------------------------------------------------------------------

// Scanner tokenizes Catena source. Words are separated by whitespace; the
// bracket characters and the string quote are self-delimiting, so `(1 2)`
// scans the same as `( 1 2 )`. A # starts a comment running to end of line.
type Scanner struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewScanner creates a scanner over the given source.
func NewScanner(input string) *Scanner {
	s := &Scanner{input: input, line: 1, col: 0}
	s.readChar()
	return s
}

func (s *Scanner) readChar() {
	if s.readPos >= len(s.input) {
		s.ch = 0
		s.pos = s.readPos
		s.col++
		return
	}
	r, size := utf8.DecodeRuneInString(s.input[s.readPos:])
	if s.ch == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	s.ch = r
	s.pos = s.readPos
	s.readPos += size
}

func (s *Scanner) peekChar() rune {
	if s.readPos >= len(s.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(s.input[s.readPos:])
	return r
}

func (s *Scanner) position() Position {
	return Position{Offset: s.pos, Line: s.line, Column: s.col}
}

func (s *Scanner) skipSpaceAndComments() {
	for {
		for s.ch == ' ' || s.ch == '\t' || s.ch == '\r' || s.ch == '\n' {
			s.readChar()
		}
		if s.ch != '#' {
			return
		}
		for s.ch != 0 && s.ch != '\n' {
			s.readChar()
		}
	}
}

// isDelimiter reports characters that end a bare word without being part
// of it.
func isDelimiter(r rune) bool {
	switch r {
	case 0, ' ', '\t', '\r', '\n', '(', ')', '[', ']', '{', '}', '"', '#':
		return true
	}
	return false
}

// NextToken returns the next token. After EOF it keeps returning EOF.
func (s *Scanner) NextToken() Token {
	s.skipSpaceAndComments()
	pos := s.position()

	switch s.ch {
	case 0:
		return Token{Type: TokenEOF, Pos: pos}
	case '(':
		s.readChar()
		return Token{Type: TokenLParen, Literal: "(", Pos: pos}
	case ')':
		s.readChar()
		return Token{Type: TokenRParen, Literal: ")", Pos: pos}
	case '[':
		s.readChar()
		return Token{Type: TokenLBracket, Literal: "[", Pos: pos}
	case ']':
		s.readChar()
		return Token{Type: TokenRBracket, Literal: "]", Pos: pos}
	case '{':
		s.readChar()
		return Token{Type: TokenLBrace, Literal: "{", Pos: pos}
	case '}':
		s.readChar()
		return Token{Type: TokenRBrace, Literal: "}", Pos: pos}
	case '"':
		return s.scanString(pos)
	}

	word := s.scanWord()
	switch {
	case word == ":":
		return Token{Type: TokenColon, Literal: ":", Pos: pos}
	case word == ";":
		return Token{Type: TokenSemicolon, Literal: ";", Pos: pos}
	case strings.HasPrefix(word, "->"):
		name := word[2:]
		if name == "" {
			return s.errorToken(pos, "-> needs a name")
		}
		return Token{Type: TokenBind, Literal: name, Pos: pos}
	case strings.HasPrefix(word, "&") && len(word) > 1:
		return Token{Type: TokenRef, Literal: word[1:], Pos: pos}
	case isNumber(word):
		return Token{Type: TokenNumber, Literal: word, Pos: pos}
	default:
		return Token{Type: TokenWord, Literal: word, Pos: pos}
	}
}

func (s *Scanner) scanWord() string {
	start := s.pos
	for !isDelimiter(s.ch) {
		s.readChar()
	}
	return s.input[start:s.pos]
}

func (s *Scanner) scanString(pos Position) Token {
	s.readChar() // consume opening quote
	var b strings.Builder
	for {
		switch s.ch {
		case 0, '\n':
			return s.errorToken(pos, "unterminated string")
		case '"':
			s.readChar()
			return Token{Type: TokenString, Literal: b.String(), Pos: pos}
		case '\\':
			s.readChar()
			switch s.ch {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				return s.errorToken(pos, fmt.Sprintf("bad escape \\%c", s.ch))
			}
			s.readChar()
		default:
			b.WriteRune(s.ch)
			s.readChar()
		}
	}
}

func (s *Scanner) errorToken(pos Position, msg string) Token {
	return Token{Type: TokenError, Literal: msg, Pos: pos}
}

// isNumber reports whether a bare word is a numeric literal. Signs alone
// stay words, so - and + keep their operator meaning.
func isNumber(word string) bool {
	if word == "" {
		return false
	}
	i := 0
	if word[0] == '+' || word[0] == '-' {
		i++
	}
	if i == len(word) {
		return false
	}
	digits := false
	for ; i < len(word); i++ {
		c := word[i]
		if c >= '0' && c <= '9' {
			digits = true
			continue
		}
		if c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-' {
			continue
		}
		return false
	}
	return digits
}
