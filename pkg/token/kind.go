package token

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidVuln is returned for an unsupported vulnerability kind.
var ErrInvalidVuln = errors.New("invalid vulnerability kind")

// Vuln identifies a vulnerability class.
type Vuln string

const (
	XSS  Vuln = "XSS"
	SQLI Vuln = "SQLI"
)

// Vulns lists the supported vulnerability kinds.
var Vulns = []Vuln{XSS, SQLI}

// ParseVuln parses a vulnerability kind case-insensitively.
func ParseVuln(s string) (Vuln, error) {
	switch Vuln(strings.ToUpper(strings.TrimSpace(s))) {
	case XSS:
		return XSS, nil
	case SQLI:
		return SQLI, nil
	}
	return "", fmt.Errorf("%w: %q (expected xss or sqli)", ErrInvalidVuln, s)
}

// Kind is the resolved variant of a token category.
type Kind uint8

const (
	Identifier Kind = iota
	Input
	XSSSink
	XSSSanitizer
	SQLISink
	SQLISanitizer
	FuncCall
	Return
	Args
	Imports
)

// Reserved lists every kind with a fixed category name.
var Reserved = []Kind{Input, XSSSink, XSSSanitizer, SQLISink, SQLISanitizer, FuncCall, Return, Args, Imports}

var kindNames = map[Kind]string{
	Identifier:    "IDENTIFIER",
	Input:         "INPUT",
	XSSSink:       "XSS_SINK",
	XSSSanitizer:  "XSS_SANITIZER",
	SQLISink:      "SQLI_SINK",
	SQLISanitizer: "SQLI_SANITIZER",
	FuncCall:      "FUNC_CALL",
	Return:        "RETURN",
	Args:          "ARGS",
	Imports:       "IMPORTS",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// SinkOf returns the sink kind for v.
func SinkOf(v Vuln) Kind {
	if v == SQLI {
		return SQLISink
	}
	return XSSSink
}

// SanitizerOf returns the sanitizer kind for v.
func SanitizerOf(v Vuln) Kind {
	if v == SQLI {
		return SQLISanitizer
	}
	return XSSSanitizer
}

// IsSink reports whether k is a sink of any vulnerability kind.
func (k Kind) IsSink() bool {
	return k == XSSSink || k == SQLISink
}

// IsSanitizer reports whether k is a sanitizer of any vulnerability kind.
func (k Kind) IsSanitizer() bool {
	return k == XSSSanitizer || k == SQLISanitizer
}

// Vocabulary maps token kinds to the category strings found in a Map and back.
// Plain maps use the reserved names; encoded maps use keyed hashes of them.
type Vocabulary interface {
	Category(k Kind) string
	Classify(category string) Kind
}

// Plain is the plaintext vocabulary.
var Plain Vocabulary = NewTable(func(k Kind) string { return k.String() })

// Table is a Vocabulary backed by a precomputed lookup table.
type Table struct {
	names map[Kind]string
	kinds map[string]Kind
}

// NewTable builds a vocabulary by naming every reserved kind with name.
func NewTable(name func(Kind) string) *Table {
	t := &Table{
		names: make(map[Kind]string, len(Reserved)),
		kinds: make(map[string]Kind, len(Reserved)),
	}
	for _, k := range Reserved {
		n := name(k)
		t.names[k] = n
		t.kinds[n] = k
	}
	return t
}

// Category returns the category string for k.
func (t *Table) Category(k Kind) string {
	return t.names[k]
}

// Classify returns the kind of a category; unknown categories are identifiers.
func (t *Table) Classify(category string) Kind {
	if k, ok := t.kinds[category]; ok {
		return k
	}
	return Identifier
}
