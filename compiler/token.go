package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for Catena source
// ---------------------------------------------------------------------------

// Position is a location in source text.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber // 42, -3.5, 1e3
	TokenString // "hello"

	// Words and prefixed forms
	TokenWord // +, dup, square
	TokenBind // ->name  (pop into a fresh local)
	TokenRef  // &name   (push the dictionary reference)

	// Delimiters
	TokenColon     // : (definition open)
	TokenSemicolon // ; (definition close)
	TokenLParen    // ( list open
	TokenRParen    // ) list close
	TokenLBracket  // [ tuple open
	TokenRBracket  // ] tuple close
	TokenLBrace    // { quotation open
	TokenRBrace    // } quotation close
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "EOF",
	TokenError:     "ERROR",
	TokenNumber:    "NUMBER",
	TokenString:    "STRING",
	TokenWord:      "WORD",
	TokenBind:      "BIND",
	TokenRef:       "REF",
	TokenColon:     ":",
	TokenSemicolon: ";",
	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenLBracket:  "[",
	TokenRBracket:  "]",
	TokenLBrace:    "{",
	TokenRBrace:    "}",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is one lexical unit. For BIND and REF the Literal is the bare name,
// without the -> or & prefix.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}

func (t Token) String() string {
	return fmt.Sprintf("%v(%q)@%v", t.Type, t.Literal, t.Pos)
}
