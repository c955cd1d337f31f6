package detector

import (
	"github.com/l3aro/blindtaint/pkg/token"
)

// selectPaths reduces the concluded paths of one sink occurrence to the
// relevant ones: every length-1 path, the closest match among the longer
// paths, and the paths readmitted by control-flow and split re-expansion.
func (d *Detector) selectPaths(found []token.Path) []token.Path {
	var (
		selected []token.Path
		longer   []int
	)
	for i, p := range found {
		if len(p) == 1 {
			selected = append(selected, p)
		} else {
			longer = append(longer, i)
		}
	}
	if len(longer) == 0 {
		return selected
	}

	in := make([]bool, len(found))
	best := closest(found, longer)
	in[best] = true

	d.expandControlFlow(found, in, found[best])

	// Split re-expansion runs to a fixed point: a readmitted path may carry
	// operands of its own.
	for changed := true; changed; {
		changed = false
		for i, p := range found {
			if in[i] && d.expandSplit(found, in, p) {
				changed = true
			}
		}
	}

	for i, p := range found {
		if in[i] {
			selected = append(selected, p)
		}
	}
	return selected
}

// closest compares the candidates index by index and keeps those whose
// token at that index lies latest in the sink's scope. Tokens of other
// scopes are not compared. Among remaining ties the last concluded wins.
func closest(found []token.Path, candidates []int) int {
	scope := found[candidates[0]].Head().Scope

	for i := 1; len(candidates) > 1; i++ {
		var (
			latest   int64
			compared bool
			longest  bool
		)
		for _, c := range candidates {
			p := found[c]
			if i >= len(p) {
				continue
			}
			longest = true
			if p[i].Scope != scope {
				continue
			}
			if !compared || p[i].Position > latest {
				latest = p[i].Position
				compared = true
			}
		}
		if !longest {
			break
		}
		if !compared {
			continue
		}

		kept := candidates[:0:0]
		for _, c := range candidates {
			p := found[c]
			if i < len(p) && p[i].Scope == scope && p[i].Position < latest {
				continue
			}
			kept = append(kept, c)
		}
		candidates = kept
	}
	return candidates[len(candidates)-1]
}

// expandControlFlow readmits paths that may hold when a branch of the chosen
// path does not execute: for every token of chosen nested deeper than the
// sink, any path holding a token of the same scope positioned at or before
// it in a different branch.
func (d *Detector) expandControlFlow(found []token.Path, in []bool, chosen token.Path) {
	head := chosen.Head()
	for _, t := range chosen {
		if t.Depth <= head.Depth {
			continue
		}
		for i, q := range found {
			if in[i] {
				continue
			}
			for _, u := range q {
				if u.Scope != t.Scope || u.Position > t.Position {
					continue
				}
				if u.Depth != t.Depth || u.Order != t.Order || u.FlowType != t.FlowType {
					in[i] = true
					break
				}
			}
		}
	}
}

// expandSplit readmits the other operands of a concatenation on p: paths
// diverging from p at or before an operand token of p, where they hold an
// operand token of the same scope and branch. It reports whether any path
// was readmitted.
func (d *Detector) expandSplit(found []token.Path, in []bool, p token.Path) bool {
	changed := false
	headSplit := p.Head().Split
	for idx, t := range p {
		if t.Split == headSplit {
			continue
		}
		for i, q := range found {
			if in[i] {
				continue
			}
			qHead := q.Head().Split
			for j := 1; j <= idx && j < len(q); j++ {
				if q[j].Key() == p[j].Key() {
					continue
				}
				u := q[j]
				if u.Split != qHead && u.Scope == p[j].Scope &&
					u.Depth == p[j].Depth && u.Order == p[j].Order && u.FlowType == p[j].FlowType {
					in[i] = true
					changed = true
				}
				break
			}
		}
	}
	return changed
}

// vulnerable keeps the paths on which an input reaches the sink before any
// sanitizer of v does, scanning from the sink.
func (d *Detector) vulnerable(v token.Vuln, paths []token.Path) []token.Path {
	sanitizer := token.SanitizerOf(v)
	var out []token.Path
	for _, p := range paths {
		for _, t := range p {
			k := d.vocab.Classify(t.Category)
			if k == sanitizer {
				break
			}
			if k == token.Input {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
