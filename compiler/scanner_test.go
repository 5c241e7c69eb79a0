package compiler

import "testing"

func scanAll(input string) []Token {
	s := NewScanner(input)
	var toks []Token
	for {
		t := s.NextToken()
		toks = append(toks, t)
		if t.Type == TokenEOF || t.Type == TokenError {
			return toks
		}
	}
}

func TestScanTokenStream(t *testing.T) {
	input := `: square dup * ;  # squares the top
2 square (1 2) [3 4] {5} ->x &square "hi\n"`

	want := []struct {
		typ TokenType
		lit string
	}{
		{TokenColon, ":"},
		{TokenWord, "square"},
		{TokenWord, "dup"},
		{TokenWord, "*"},
		{TokenSemicolon, ";"},
		{TokenNumber, "2"},
		{TokenWord, "square"},
		{TokenLParen, "("},
		{TokenNumber, "1"},
		{TokenNumber, "2"},
		{TokenRParen, ")"},
		{TokenLBracket, "["},
		{TokenNumber, "3"},
		{TokenNumber, "4"},
		{TokenRBracket, "]"},
		{TokenLBrace, "{"},
		{TokenNumber, "5"},
		{TokenRBrace, "}"},
		{TokenBind, "x"},
		{TokenRef, "square"},
		{TokenString, "hi\n"},
		{TokenEOF, ""},
	}

	got := scanAll(input)
	if len(got) != len(want) {
		t.Fatalf("scanned %d tokens, want %d: %v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Type != w.typ || got[i].Literal != w.lit {
			t.Errorf("token %d = %v, want %v(%q)", i, got[i], w.typ, w.lit)
		}
	}
}

func TestScanDelimitersSelfDelimit(t *testing.T) {
	// Brackets need no surrounding whitespace.
	got := scanAll(`(1)(2)`)
	want := []TokenType{
		TokenLParen, TokenNumber, TokenRParen,
		TokenLParen, TokenNumber, TokenRParen, TokenEOF,
	}
	if len(got) != len(want) {
		t.Fatalf("scanned %v", got)
	}
	for i, w := range want {
		if got[i].Type != w {
			t.Errorf("token %d = %v, want %v", i, got[i], w)
		}
	}
}

func TestScanNumbersVersusOperators(t *testing.T) {
	tests := []struct {
		word string
		typ  TokenType
	}{
		{"42", TokenNumber},
		{"-7", TokenNumber},
		{"+7", TokenNumber},
		{"3.25", TokenNumber},
		{"1e3", TokenNumber},
		{"-1.5e-2", TokenNumber},
		{"-", TokenWord},
		{"+", TokenWord},
		{"2dup", TokenWord},
		{"x2", TokenWord},
	}
	for _, tt := range tests {
		got := scanAll(tt.word)[0]
		if got.Type != tt.typ {
			t.Errorf("scan %q = %v, want %v", tt.word, got.Type, tt.typ)
		}
	}
}

func TestScanPositions(t *testing.T) {
	got := scanAll("ab\n  cd")
	if got[0].Pos.Line != 1 || got[0].Pos.Column != 1 {
		t.Errorf("first token at %v, want 1:1", got[0].Pos)
	}
	if got[1].Pos.Line != 2 || got[1].Pos.Column != 3 {
		t.Errorf("second token at %v, want 2:3", got[1].Pos)
	}
}

func TestScanComments(t *testing.T) {
	got := scanAll("1 # everything here is ignored ( ] }\n2")
	if len(got) != 3 || got[0].Literal != "1" || got[1].Literal != "2" {
		t.Errorf("comment not skipped: %v", got)
	}
}

func TestScanErrors(t *testing.T) {
	for _, input := range []string{
		`"unterminated`,
		"\"broken\nstring\"",
		`"bad \q escape"`,
		"->",
	} {
		toks := scanAll(input)
		last := toks[len(toks)-1]
		if last.Type != TokenError {
			t.Errorf("scan %q = %v, want an error token", input, toks)
		}
	}
}

func TestScanEOFIsSticky(t *testing.T) {
	s := NewScanner("x")
	s.NextToken()
	for i := 0; i < 3; i++ {
		if tok := s.NextToken(); tok.Type != TokenEOF {
			t.Fatalf("token after end = %v, want EOF", tok)
		}
	}
}
