package token

import (
	"sort"
	"strings"
)

// Scope maps a category to its ordered list of assignors.
type Scope map[string][]Token

// Map is the Correlation Map: scope name to Scope.
type Map map[string]Scope

// Path is a chain of tokens from a sink back to its origin.
type Path []Token

// Ensure returns the named scope, creating it with an empty parameter list
// if it does not exist yet.
func (m Map) Ensure(name, argsCategory string) Scope {
	s, ok := m[name]
	if !ok {
		s = Scope{argsCategory: []Token{}}
		m[name] = s
	}
	return s
}

// Names returns the scope names in lexical order.
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge appends every list of other into m. Scopes are owned by a single
// unit, so lists rarely overlap; when they do, other's tokens follow m's.
func (m Map) Merge(other Map) {
	for name, scope := range other {
		dst, ok := m[name]
		if !ok {
			m[name] = scope
			continue
		}
		for cat, list := range scope {
			dst[cat] = append(dst[cat], list...)
		}
	}
}

// TokenCount returns the number of stored assignor tokens.
func (m Map) TokenCount() int {
	n := 0
	for _, scope := range m {
		for _, list := range scope {
			n += len(list)
		}
	}
	return n
}

// Append adds tokens to a category list. Appending nothing leaves an absent
// category absent.
func (s Scope) Append(category string, tokens ...Token) {
	if len(tokens) == 0 {
		return
	}
	s[category] = append(s[category], tokens...)
}

// Categories returns the categories of s in lexical order.
func (s Scope) Categories() []string {
	cats := make([]string, 0, len(s))
	for cat := range s {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats
}

// Head returns the sink token of p.
func (p Path) Head() Token {
	return p[0]
}

// Tail returns the origin token of p.
func (p Path) Tail() Token {
	return p[len(p)-1]
}

// Equal reports whether p and q hold the same tokens.
func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i].Key() != q[i].Key() {
			return false
		}
	}
	return true
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, t := range p {
		parts[i] = t.String()
	}
	return strings.Join(parts, " <- ")
}
