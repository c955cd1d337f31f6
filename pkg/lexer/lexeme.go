package lexer

import (
	"fmt"

	"github.com/l3aro/blindtaint/pkg/token"
)

// Tag is the structural role of a lexeme.
type Tag uint8

const (
	TagVariable Tag = iota // assignable identifier, Category is its abstract id
	TagLiteral             // constant value, Category is its abstract id
	TagInput               // untrusted input source
	TagAssign
	TagConcat
	TagQuote // start of an interpolated string
	TagSemi  // statement terminator
	TagComma // call argument separator
	TagCallOpen
	TagCallClose
	TagFuncDecl // followed by parameter variables and TagBody
	TagBody
	TagEndFunc
	TagReturn
	TagImport // Category is the imported unit
	TagIf
	TagElseIf
	TagElse
	TagWhile
	TagFor
	TagForeach
	TagDo
	TagSwitch
	TagCase
	TagDefault
	TagEndBlock
)

var tagNames = [...]string{
	TagVariable:  "VARIABLE",
	TagLiteral:   "LITERAL",
	TagInput:     "INPUT",
	TagAssign:    "ASSIGN",
	TagConcat:    "CONCAT",
	TagQuote:     "QUOTE",
	TagSemi:      "SEMI",
	TagComma:     "COMMA",
	TagCallOpen:  "CALL",
	TagCallClose: "END_CALL",
	TagFuncDecl:  "FUNCTION",
	TagBody:      "BODY",
	TagEndFunc:   "END_FUNCTION",
	TagReturn:    "RETURN",
	TagImport:    "IMPORT",
	TagIf:        "IF",
	TagElseIf:    "ELSEIF",
	TagElse:      "ELSE",
	TagWhile:     "WHILE",
	TagFor:       "FOR",
	TagForeach:   "FOREACH",
	TagDo:        "DO",
	TagSwitch:    "SWITCH",
	TagCase:      "CASE",
	TagDefault:   "DEFAULT",
	TagEndBlock:  "END_BLOCK",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) && tagNames[t] != "" {
		return tagNames[t]
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// IsControlFlow reports whether t opens a nested control-flow block.
func (t Tag) IsControlFlow() bool {
	switch t {
	case TagIf, TagWhile, TagFor, TagForeach, TagDo, TagSwitch:
		return true
	}
	return false
}

// Lexeme is one classified element of a unit's token stream.
type Lexeme struct {
	Tag      Tag
	Kind     token.Kind
	Category string
	Line     int
	Position int64
}

func (l Lexeme) String() string {
	if l.Category == "" {
		return fmt.Sprintf("%s@%d", l.Tag, l.Position)
	}
	return fmt.Sprintf("%s(%s)@%d", l.Tag, l.Category, l.Position)
}

// Source yields the lexemes of one unit in order.
type Source interface {
	Next() (Lexeme, bool)
}

// Stream is a slice-backed Source.
type Stream struct {
	Unit    string
	lexemes []Lexeme
	next    int
}

// NewStream wraps lexemes of unit.
func NewStream(unit string, lexemes []Lexeme) *Stream {
	return &Stream{Unit: unit, lexemes: lexemes}
}

// Next returns the next lexeme, or false at the end of the stream.
func (s *Stream) Next() (Lexeme, bool) {
	if s.next >= len(s.lexemes) {
		return Lexeme{}, false
	}
	l := s.lexemes[s.next]
	s.next++
	return l, true
}

// Len returns the total number of lexemes.
func (s *Stream) Len() int {
	return len(s.lexemes)
}

// Lexemes returns the underlying lexemes.
func (s *Stream) Lexemes() []Lexeme {
	return s.lexemes
}

// Reset rewinds the stream.
func (s *Stream) Reset() {
	s.next = 0
}
