// Package lexer turns PHP source into the classified lexeme stream consumed
// by the correlator. Parsing is done with tree-sitter; the syntax tree is
// flattened into structural markers (control flow, calls, declarations) and
// abstracted values.
package lexer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/php"

	"github.com/l3aro/blindtaint/pkg/knowledge"
)

// phpParserPool is a pool of reusable tree-sitter parsers for PHP.
var phpParserPool = sync.Pool{
	New: func() interface{} {
		parser := sitter.NewParser()
		parser.SetLanguage(php.GetLanguage())
		return parser
	},
}

// Lexer produces lexeme streams for PHP units. It is safe for concurrent use.
type Lexer struct {
	know  *knowledge.Source
	abs   *Abstractor
	units map[string]struct{}
}

// New creates a Lexer classifying names with know and abstracting them
// through abs.
func New(know *knowledge.Source, abs *Abstractor) *Lexer {
	if abs == nil {
		abs = NewAbstractor()
	}
	return &Lexer{know: know, abs: abs}
}

// WithUnits returns a Lexer that resolves include paths against the given
// project units.
func (l *Lexer) WithUnits(units []string) *Lexer {
	set := make(map[string]struct{}, len(units))
	for _, u := range units {
		set[u] = struct{}{}
	}
	return &Lexer{know: l.know, abs: l.abs, units: set}
}

// Abstractor returns the shared identifier table.
func (l *Lexer) Abstractor() *Abstractor {
	return l.abs
}

// LexFile reads and lexes the unit at root/unit. unit is a slash-separated
// path relative to root.
func (l *Lexer) LexFile(root, unit string) (*Stream, error) {
	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(unit)))
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", unit, err)
	}
	return l.Lex(unit, content)
}

// Lex lexes PHP source of the named unit.
func (l *Lexer) Lex(unit string, content []byte) (*Stream, error) {
	parser := phpParserPool.Get().(*sitter.Parser)
	defer phpParserPool.Put(parser)

	tree := parser.Parse(nil, content)
	if tree == nil {
		return nil, fmt.Errorf("parsing file %s failed", unit)
	}
	defer tree.Close()

	w := &walker{
		unit:    unit,
		content: content,
		know:    l.know,
		abs:     l.abs,
		units:   l.units,
	}
	w.statements(tree.RootNode())

	return NewStream(unit, w.out), nil
}
