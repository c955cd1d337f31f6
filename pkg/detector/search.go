package detector

import (
	"github.com/l3aro/blindtaint/pkg/token"
)

// binding maps the parameters of a callee scope to call-site argument tokens.
type binding struct {
	scope  string
	params map[string][]token.Token
}

// search is the depth-first walk backwards from one sink occurrence.
type search struct {
	d *Detector

	path   token.Path
	onPath map[token.Key]int
	frames []*binding

	found     []token.Path
	concluded int
	steps     int
	truncated bool
}

func newSearch(d *Detector, occ occurrence) *search {
	s := &search{
		d:      d,
		onPath: make(map[token.Key]int),
	}
	if occ.frame != nil {
		s.frames = append(s.frames, occ.frame)
	}
	return s
}

func (s *search) push(t token.Token) {
	s.path = append(s.path, t)
	s.onPath[t.Key()]++
}

func (s *search) pop() {
	t := s.path[len(s.path)-1]
	s.path = s.path[:len(s.path)-1]
	if s.onPath[t.Key()]--; s.onPath[t.Key()] <= 0 {
		delete(s.onPath, t.Key())
	}
}

func (s *search) visit(t token.Token) {
	if s.steps >= s.d.opts.MaxSteps {
		s.truncated = true
		return
	}
	s.steps++

	s.push(t)
	defer s.pop()

	kind := s.d.vocab.Classify(t.Category)
	if kind == token.Input {
		s.conclude()
		return
	}
	if len(s.path) >= s.d.opts.MaxPathLength {
		s.truncated = true
		s.conclude()
		return
	}

	if t.IsCall() {
		s.visitCall(t)
		return
	}
	if kind == token.FuncCall || kind == token.Return || kind == token.Args || kind == token.Imports {
		s.conclude()
		return
	}

	next, resolved := s.assignors(t)
	if !resolved {
		s.conclude()
		return
	}
	// Every assignor may have been pruned by the position or cycle guard;
	// such a branch ends unresolved and yields no path.
	for _, u := range next {
		s.visit(u)
	}
}

// visitCall continues through a scope call token: into the return values of
// every candidate callee with its parameters bound to this call's arguments,
// or through the arguments themselves when the callee is unknown.
func (s *search) visitCall(t token.Token) {
	targets := s.d.resolveCall(t)
	if len(targets) == 0 {
		if len(t.Call.Args) == 0 {
			s.conclude()
			return
		}
		for _, arg := range t.Call.Args {
			for _, u := range s.admissible(arg) {
				s.visit(u)
			}
		}
		return
	}

	returning := false
	for _, target := range targets {
		if len(s.d.m[target][s.d.catReturn]) > 0 {
			returning = true
			s.visitCallee(t, target)
		}
	}
	if !returning {
		s.conclude()
	}
}

// visitCallee follows the return values of target with a frame binding its
// parameters to the arguments of t.
func (s *search) visitCallee(t token.Token, target string) {
	callee := s.d.m[target]
	s.frames = append(s.frames, &binding{
		scope:  target,
		params: s.d.bind(callee[s.d.catArgs], t.Call.Args),
	})
	defer func() { s.frames = s.frames[:len(s.frames)-1] }()

	for _, u := range s.admissible(callee[s.d.catReturn]) {
		s.visit(u)
	}
}

// assignors returns the tokens t may take its value from. resolved is false
// when nothing defines t's category: t is then an unexplained terminal.
func (s *search) assignors(t token.Token) (next []token.Token, resolved bool) {
	list, local := s.d.m[t.Scope][t.Category]
	next = s.admissible(list)

	if unit, fn := token.SplitScope(t.Scope); fn == "" {
		// An import between the closest local definition and t overrides
		// the local one.
		var after *int64
		for _, u := range next {
			if after == nil || u.Position > *after {
				pos := u.Position
				after = &pos
			}
		}
		imported := s.d.findImported(unit, after, t.Position, func(u string) bool {
			_, ok := s.d.m[u][t.Category]
			return ok
		})
		if imported != "" {
			next = s.admissible(s.d.m[imported][t.Category])
			local = true
		}
	}

	bound, isParam := s.bound(t)
	next = append(next, s.admissible(bound)...)

	return next, local || isParam
}

// bound returns the arguments bound to t's category by the innermost call
// frame of t's scope.
func (s *search) bound(t token.Token) ([]token.Token, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		if f.scope != t.Scope {
			continue
		}
		args, ok := f.params[t.Category]
		return args, ok
	}
	return nil, false
}

// admissible filters candidates already on the path and candidates not
// strictly earlier than every path token of the same scope.
func (s *search) admissible(candidates []token.Token) []token.Token {
	var out []token.Token
next:
	for _, u := range candidates {
		if s.onPath[u.Key()] > 0 {
			continue
		}
		for _, a := range s.path {
			if a.Scope == u.Scope && u.Position >= a.Position {
				continue next
			}
		}
		out = append(out, u)
	}
	return out
}

// conclude records the current path. When it diverges from an already
// concluded path at a token of the same branch, only the path whose
// divergent token comes first is kept; on a tie the new path wins.
func (s *search) conclude() {
	s.concluded++
	p := make(token.Path, len(s.path))
	copy(p, s.path)

	var replaced []int
	for i, q := range s.found {
		at := divergence(p, q)
		if at < 0 {
			if len(p) == len(q) {
				return
			}
			continue
		}
		if !p[at].SameBranch(q[at]) {
			continue
		}
		if q[at].Position < p[at].Position {
			return
		}
		replaced = append(replaced, i)
	}

	if len(replaced) > 0 {
		kept := s.found[:0]
		r := 0
		for i, q := range s.found {
			if r < len(replaced) && replaced[r] == i {
				r++
				continue
			}
			kept = append(kept, q)
		}
		s.found = kept
	}
	s.found = append(s.found, p)
}

// divergence returns the first index where p and q hold different tokens,
// or -1 when one is a prefix of the other.
func divergence(p, q token.Path) int {
	n := min(len(p), len(q))
	for i := 0; i < n; i++ {
		if p[i].Key() != q[i].Key() {
			return i
		}
	}
	return -1
}
