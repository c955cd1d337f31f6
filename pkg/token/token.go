// Package token defines the shared data model of the taint analysis: tokens
// stamped with their control-flow context, the per-scope Correlation Map and
// the category vocabulary used to interpret it.
package token

import (
	"fmt"
	"strings"
)

// ScopeSeparator joins a unit name and a function id into a function scope name.
const ScopeSeparator = "::"

// Token is a single classified lexeme after correlation.
//
// Numeric fields hold plaintext values or order-preserving ciphertexts; Line,
// Category and Scope hold plaintext or deterministic ciphertexts. Tokens are
// values: they are copied, never mutated after being stored in a Map.
type Token struct {
	Category string `json:"category"`
	Line     string `json:"line"`
	Position int64  `json:"position"`
	Depth    int64  `json:"depth"`
	Order    int64  `json:"order"`
	FlowType int64  `json:"flow_type"`
	Split    int64  `json:"split"`
	Scope    string `json:"scope"`
	Call     *Call  `json:"call,omitempty"`
}

// Call is the payload of a scope call token: a function call used as a value
// source. Args holds one token list per call-site argument, in order.
type Call struct {
	Unit     string    `json:"unit"`
	Function string    `json:"function"`
	Args     [][]Token `json:"args"`
}

// Target returns the scope name of the callee declared in Unit.
func (c *Call) Target() string {
	return JoinScope(c.Unit, c.Function)
}

// TargetIn returns the scope name of the callee as declared in another unit.
func (c *Call) TargetIn(unit string) string {
	return JoinScope(unit, c.Function)
}

// Key is the comparable identity of a token.
type Key struct {
	Category string
	Line     string
	Position int64
	Depth    int64
	Order    int64
	FlowType int64
	Split    int64
	Scope    string
	Callee   string
}

// Key returns the comparable identity of t.
func (t Token) Key() Key {
	k := Key{
		Category: t.Category,
		Line:     t.Line,
		Position: t.Position,
		Depth:    t.Depth,
		Order:    t.Order,
		FlowType: t.FlowType,
		Split:    t.Split,
		Scope:    t.Scope,
	}
	if t.Call != nil {
		k.Callee = t.Call.Target()
	}
	return k
}

// IsCall reports whether t is a scope call token.
func (t Token) IsCall() bool {
	return t.Call != nil
}

// SameBranch reports whether t and u were stamped in the same control-flow
// branch and concatenation operand of the same scope.
func (t Token) SameBranch(u Token) bool {
	return t.Depth == u.Depth &&
		t.Order == u.Order &&
		t.FlowType == u.FlowType &&
		t.Scope == u.Scope &&
		t.Split == u.Split
}

// WithFlow returns a copy of t carrying the control-flow stamp of ref.
func (t Token) WithFlow(ref Token) Token {
	t.Depth = ref.Depth
	t.Order = ref.Order
	t.FlowType = ref.FlowType
	return t
}

func (t Token) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s@%d[line=%s depth=%d order=%d flow=%d split=%d scope=%s",
		t.Category, t.Position, t.Line, t.Depth, t.Order, t.FlowType, t.Split, t.Scope)
	if t.Call != nil {
		fmt.Fprintf(&b, " call=%s args=%d", t.Call.Target(), len(t.Call.Args))
	}
	b.WriteByte(']')
	return b.String()
}

// JoinScope builds a function scope name.
func JoinScope(unit, function string) string {
	return unit + ScopeSeparator + function
}

// SplitScope returns the unit and function id of a scope name. Function is
// empty for file-level scopes.
func SplitScope(scope string) (unit, function string) {
	unit, function, _ = strings.Cut(scope, ScopeSeparator)
	return unit, function
}
