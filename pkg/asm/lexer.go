package asm

import (
	"strings"
	"unicode"
)

// TokenType represents the type of a token.
type TokenType uint8

const (
	TokenEOF TokenType = iota
	TokenNewline
	TokenIdent     // mnemonics, registers and label names
	TokenInt       // 42, 0x2A, 0b101010
	TokenChar      // 'a'
	TokenString    // "quoted strings"
	TokenComma     // ,
	TokenColon     // : (for labels)
	TokenDirective // .header
	TokenIllegal
)

// String returns the string representation of a token type.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenNewline:
		return "NEWLINE"
	case TokenIdent:
		return "IDENT"
	case TokenInt:
		return "INT"
	case TokenChar:
		return "CHAR"
	case TokenString:
		return "STRING"
	case TokenComma:
		return "COMMA"
	case TokenColon:
		return "COLON"
	case TokenDirective:
		return "DIRECTIVE"
	case TokenIllegal:
		return "ILLEGAL"
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token.
type Token struct {
	Type  TokenType
	Value string
	Line  int
}

// Lexer tokenizes RSVM assembly source code.
type Lexer struct {
	input  string
	pos    int
	line   int
	tokens []Token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		pos:    0,
		line:   1,
		tokens: []Token{},
	}
}

// Tokenize tokenizes the entire input and returns the tokens.
func (l *Lexer) Tokenize() []Token {
	for l.pos < len(l.input) {
		l.skipWhitespace()
		if l.pos >= len(l.input) {
			break
		}

		ch := l.input[l.pos]

		switch {
		case ch == '\n':
			l.emit(TokenNewline, "\n")
			l.line++
			l.pos++

		case ch == ';' || ch == '#':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}

		case ch == ',':
			l.emit(TokenComma, ",")
			l.pos++

		case ch == ':':
			l.emit(TokenColon, ":")
			l.pos++

		case ch == '"':
			l.scanQuoted('"', TokenString)

		case ch == '\'':
			l.scanQuoted('\'', TokenChar)

		case ch == '.':
			l.pos++
			start := l.pos
			l.scanWord()
			l.emit(TokenDirective, strings.ToLower(l.input[start:l.pos]))

		case unicode.IsDigit(rune(ch)):
			start := l.pos
			l.scanWord()
			l.emit(TokenInt, l.input[start:l.pos])

		case unicode.IsLetter(rune(ch)) || ch == '_':
			start := l.pos
			l.scanWord()
			l.emit(TokenIdent, l.input[start:l.pos])

		default:
			l.emit(TokenIllegal, string(ch))
			l.pos++
		}
	}

	l.emit(TokenEOF, "")
	return l.tokens
}

func (l *Lexer) emit(t TokenType, value string) {
	l.tokens = append(l.tokens, Token{Type: t, Value: value, Line: l.line})
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == ' ' || ch == '\t' || ch == '\r' {
			l.pos++
		} else {
			break
		}
	}
}

// scanWord consumes letters, digits and underscores.
func (l *Lexer) scanWord() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if unicode.IsLetter(rune(ch)) || unicode.IsDigit(rune(ch)) || ch == '_' {
			l.pos++
		} else {
			break
		}
	}
}

// scanQuoted emits the quoted text including its quotes, so the parser can
// unquote escapes with strconv. An unterminated literal stops at the end of
// the line.
func (l *Lexer) scanQuoted(quote byte, t TokenType) {
	start := l.pos
	l.pos++ // opening quote

	for l.pos < len(l.input) && l.input[l.pos] != quote && l.input[l.pos] != '\n' {
		if l.input[l.pos] == '\\' && l.pos+1 < len(l.input) {
			l.pos++
		}
		l.pos++
	}

	if l.pos < len(l.input) && l.input[l.pos] == quote {
		l.pos++
		l.emit(t, l.input[start:l.pos])
		return
	}
	l.emit(TokenIllegal, l.input[start:l.pos])
}
