package lexer

import (
	"fmt"
	"strings"
	"sync"
)

// Abstractor replaces source names with stable abstract ids. One Abstractor
// is shared by every unit of a project so that the same variable or function
// name maps to the same id across files.
type Abstractor struct {
	mu     sync.Mutex
	vars   map[string]string
	funcs  map[string]string
	lits   map[string]string
	legend map[string]string
}

// NewAbstractor returns an empty Abstractor.
func NewAbstractor() *Abstractor {
	return &Abstractor{
		vars:   make(map[string]string),
		funcs:  make(map[string]string),
		lits:   make(map[string]string),
		legend: make(map[string]string),
	}
}

// Variable returns the id of a variable or property name.
func (a *Abstractor) Variable(name string) string {
	return a.id(a.vars, "VAR", name, name)
}

// Function returns the id of a function name. Function names are
// case-insensitive.
func (a *Abstractor) Function(name string) string {
	key := strings.ToLower(name)
	return a.id(a.funcs, "FUNC", key, name+"()")
}

// Literal returns the id of a literal value.
func (a *Abstractor) Literal(text string) string {
	return a.id(a.lits, "LIT", text, text)
}

func (a *Abstractor) id(table map[string]string, prefix, key, display string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id, ok := table[key]; ok {
		return id
	}
	id := fmt.Sprintf("%s%d", prefix, len(table)+1)
	table[key] = id
	a.legend[id] = display
	return id
}

// Legend returns a copy of the id to source name table.
func (a *Abstractor) Legend() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]string, len(a.legend))
	for id, name := range a.legend {
		out[id] = name
	}
	return out
}
