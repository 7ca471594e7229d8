package asm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/akhildatla/rsvm/pkg/vm"
)

// Parse errors.
var (
	ErrSyntax           = errors.New("syntax error")
	ErrInvalidLiteral   = errors.New("invalid literal")
	ErrDuplicateLabel   = errors.New("duplicate label")
	ErrReservedLabel    = errors.New("label name is a register")
	ErrUnknownDirective = errors.New("unknown directive")
)

// OperandType represents the type of an operand.
type OperandType uint8

const (
	OperandRegister OperandType = iota
	OperandInt
	OperandLabel
)

// Operand represents an instruction operand.
type Operand struct {
	Type   OperandType
	Reg    vm.Register // For registers
	IntVal uint32      // For integer and character literals
	Label  string      // For label references
}

// AsmInstruction represents a parsed assembly instruction.
type AsmInstruction struct {
	Opcode   string
	Operands []Operand
	Line     int
}

// AsmProgram represents a parsed assembly program.
type AsmProgram struct {
	Header       []byte
	Instructions []AsmInstruction
	Labels       map[string]int // label -> instruction index
}

// Parser parses RSVM assembly source code.
type Parser struct {
	tokens  []Token
	pos     int
	program *AsmProgram
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	lexer := NewLexer(input)
	tokens := lexer.Tokenize()
	return &Parser{
		tokens: tokens,
		pos:    0,
		program: &AsmProgram{
			Instructions: []AsmInstruction{},
			Labels:       make(map[string]int),
		},
	}
}

// Parse parses the entire input and returns the program.
func (p *Parser) Parse() (*AsmProgram, error) {
	for {
		tok := p.peek()

		switch tok.Type {
		case TokenEOF:
			return p.program, nil

		case TokenNewline:
			p.pos++

		case TokenInt:
			// Listing offsets such as "000B:" are accepted and ignored.
			if p.peekAt(1).Type != TokenColon {
				return nil, p.errorf(tok, "%w: unexpected %s %q", ErrSyntax, tok.Type, tok.Value)
			}
			p.pos += 2

		case TokenDirective:
			if err := p.parseDirective(); err != nil {
				return nil, err
			}

		case TokenIdent:
			if p.peekAt(1).Type == TokenColon {
				if err := p.defineLabel(tok); err != nil {
					return nil, err
				}
				p.pos += 2
				continue
			}
			inst, err := p.parseInstruction()
			if err != nil {
				return nil, err
			}
			p.program.Instructions = append(p.program.Instructions, inst)

		default:
			return nil, p.errorf(tok, "%w: unexpected %s %q", ErrSyntax, tok.Type, tok.Value)
		}
	}
}

func (p *Parser) peek() Token {
	return p.peekAt(0)
}

func (p *Parser) peekAt(n int) Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) errorf(tok Token, format string, args ...any) error {
	return fmt.Errorf("line %d: "+format, append([]any{tok.Line}, args...)...)
}

func (p *Parser) defineLabel(tok Token) error {
	if _, ok := vm.RegisterFromString(tok.Value); ok {
		return p.errorf(tok, "%w: %s", ErrReservedLabel, tok.Value)
	}
	if _, exists := p.program.Labels[tok.Value]; exists {
		return p.errorf(tok, "%w: %s", ErrDuplicateLabel, tok.Value)
	}
	p.program.Labels[tok.Value] = len(p.program.Instructions)
	return nil
}

// parseDirective handles ".header" followed by a comma-separated list of
// strings and byte values. Repeated directives append to the header.
func (p *Parser) parseDirective() error {
	dir := p.peek()
	p.pos++
	if dir.Value != "header" {
		return p.errorf(dir, "%w: .%s", ErrUnknownDirective, dir.Value)
	}

	for {
		tok := p.peek()
		switch tok.Type {
		case TokenNewline, TokenEOF:
			return nil
		case TokenComma:
			p.pos++
		case TokenString:
			s, err := strconv.Unquote(tok.Value)
			if err != nil {
				return p.errorf(tok, "%w: %s", ErrInvalidLiteral, tok.Value)
			}
			p.program.Header = append(p.program.Header, s...)
			p.pos++
		case TokenInt, TokenChar:
			v, err := parseNumber(tok)
			if err != nil {
				return p.errorf(tok, "%w", err)
			}
			if v > 0xFF {
				return p.errorf(tok, "%w: header byte %s out of range", ErrInvalidLiteral, tok.Value)
			}
			p.program.Header = append(p.program.Header, byte(v))
			p.pos++
		default:
			return p.errorf(tok, "%w: unexpected %s %q in .header", ErrSyntax, tok.Type, tok.Value)
		}
	}
}

func (p *Parser) parseInstruction() (AsmInstruction, error) {
	inst := AsmInstruction{
		Opcode:   p.tokens[p.pos].Value,
		Line:     p.tokens[p.pos].Line,
		Operands: []Operand{},
	}
	p.pos++ // Consume opcode

	expectOperand := true
	for {
		tok := p.peek()

		if tok.Type == TokenNewline || tok.Type == TokenEOF {
			if expectOperand && len(inst.Operands) > 0 {
				return inst, p.errorf(tok, "%w: trailing comma", ErrSyntax)
			}
			return inst, nil
		}

		if tok.Type == TokenComma {
			if expectOperand {
				return inst, p.errorf(tok, "%w: unexpected comma", ErrSyntax)
			}
			expectOperand = true
			p.pos++
			continue
		}

		if !expectOperand {
			return inst, p.errorf(tok, "%w: missing comma before %q", ErrSyntax, tok.Value)
		}

		operand, err := p.parseOperand()
		if err != nil {
			return inst, err
		}
		inst.Operands = append(inst.Operands, operand)
		expectOperand = false
	}
}

func (p *Parser) parseOperand() (Operand, error) {
	tok := p.peek()

	switch tok.Type {
	case TokenIdent:
		p.pos++
		if r, ok := vm.RegisterFromString(tok.Value); ok {
			return Operand{Type: OperandRegister, Reg: r}, nil
		}
		return Operand{Type: OperandLabel, Label: tok.Value}, nil

	case TokenInt, TokenChar:
		v, err := parseNumber(tok)
		if err != nil {
			return Operand{}, p.errorf(tok, "%w", err)
		}
		p.pos++
		return Operand{Type: OperandInt, IntVal: v}, nil

	default:
		return Operand{}, p.errorf(tok, "%w: unexpected %s %q", ErrSyntax, tok.Type, tok.Value)
	}
}

// parseNumber converts an integer or character token to a 32-bit value.
// Integers accept decimal, 0x hex, 0o octal and 0b binary forms.
func parseNumber(tok Token) (uint32, error) {
	if tok.Type == TokenChar {
		s, err := strconv.Unquote(tok.Value)
		if err != nil || len(s) != 1 {
			return 0, fmt.Errorf("%w: character %s", ErrInvalidLiteral, tok.Value)
		}
		return uint32(s[0]), nil
	}

	text := strings.ReplaceAll(tok.Value, "_", "")
	if len(text) > 1 && text[0] == '0' && text[1] >= '0' && text[1] <= '9' {
		text = strings.TrimLeft(text, "0")
		if text == "" {
			text = "0"
		}
	}
	v, err := strconv.ParseUint(text, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidLiteral, tok.Value)
	}
	return uint32(v), nil
}
