// Package detector searches a Correlation Map for flows from untrusted
// inputs to sensitive sinks.
//
// The detector only compares categories and scopes for equality and numeric
// fields for order, so it runs unchanged over plaintext maps and over maps
// whose fields were encrypted with deterministic and order-preserving
// schemes. Reserved categories are recognized through a token.Vocabulary.
package detector

import (
	"fmt"

	"github.com/l3aro/blindtaint/pkg/token"
)

const (
	// DefaultMaxPathLength bounds the length of a single path.
	DefaultMaxPathLength = 128
	// DefaultMaxSteps bounds the search work per sink occurrence.
	DefaultMaxSteps = 200000
)

// Options configures a Detector.
type Options struct {
	// MaxPathLength bounds path length and therefore recursion depth.
	MaxPathLength int
	// MaxSteps bounds the tokens visited while searching one sink
	// occurrence. A search that hits the bound keeps the paths found so far.
	MaxSteps int
}

// DefaultOptions returns the default detector options.
func DefaultOptions() Options {
	return Options{
		MaxPathLength: DefaultMaxPathLength,
		MaxSteps:      DefaultMaxSteps,
	}
}

// Stats summarizes a detection run.
type Stats struct {
	Sinks     int `json:"sinks"`
	Concluded int `json:"concluded"`
	Selected  int `json:"selected"`
	Reported  int `json:"reported"`
	Steps     int `json:"steps"`
	Truncated int `json:"truncated"`
}

// Result holds the vulnerable paths found for one vulnerability kind.
type Result struct {
	Vuln  token.Vuln   `json:"vuln"`
	Paths []token.Path `json:"paths"`
	Stats Stats        `json:"stats"`
}

// Detector runs taint searches over one Correlation Map. The map is only
// read; a Detector may be reused for several vulnerability kinds.
type Detector struct {
	m     token.Map
	vocab token.Vocabulary
	opts  Options

	catArgs    string
	catReturn  string
	catImports string

	// functions maps a function id to the scopes declaring it.
	functions map[string][]string
}

// New creates a Detector for m. vocab must match the encoding of m.
func New(m token.Map, vocab token.Vocabulary, opts Options) *Detector {
	if opts.MaxPathLength <= 0 {
		opts.MaxPathLength = DefaultMaxPathLength
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}

	d := &Detector{
		m:          m,
		vocab:      vocab,
		opts:       opts,
		catArgs:    vocab.Category(token.Args),
		catReturn:  vocab.Category(token.Return),
		catImports: vocab.Category(token.Imports),
		functions:  make(map[string][]string),
	}
	for _, name := range m.Names() {
		if _, fn := token.SplitScope(name); fn != "" {
			d.functions[fn] = append(d.functions[fn], name)
		}
	}
	return d
}

// occurrence is one sink token searched with an optional initial binding of
// the enclosing function's parameters.
type occurrence struct {
	sink  token.Token
	frame *binding
}

// Detect returns the vulnerable paths for v.
func (d *Detector) Detect(v token.Vuln) (*Result, error) {
	if v != token.XSS && v != token.SQLI {
		return nil, fmt.Errorf("%w: %q", token.ErrInvalidVuln, v)
	}

	res := &Result{Vuln: v}
	seen := make(map[string]struct{})

	for _, occ := range d.occurrences(v) {
		s := newSearch(d, occ)
		s.visit(occ.sink)

		res.Stats.Sinks++
		res.Stats.Concluded += s.concluded
		res.Stats.Steps += s.steps
		if s.truncated {
			res.Stats.Truncated++
		}
		if len(s.found) == 0 {
			continue
		}

		selected := d.selectPaths(s.found)
		res.Stats.Selected += len(selected)

		for _, p := range d.vulnerable(v, selected) {
			key := p.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			res.Paths = append(res.Paths, p)
		}
	}

	res.Stats.Reported = len(res.Paths)
	return res, nil
}

// occurrences lists every sink token of every scope, then every sink token
// of a function scope once more per resolved call site, with the function's
// parameters bound to that call's arguments.
func (d *Detector) occurrences(v token.Vuln) []occurrence {
	sinkCat := d.vocab.Category(token.SinkOf(v))
	names := d.m.Names()

	var out []occurrence
	for _, name := range names {
		for _, t := range d.m[name][sinkCat] {
			out = append(out, occurrence{sink: t})
		}
	}

	callers := d.callSites()
	for _, name := range names {
		scope := d.m[name]
		sinks := scope[sinkCat]
		if len(sinks) == 0 || len(scope[d.catArgs]) == 0 {
			continue
		}
		for _, call := range callers[name] {
			frame := &binding{scope: name, params: d.bind(scope[d.catArgs], call.Call.Args)}
			for _, t := range sinks {
				out = append(out, occurrence{sink: t, frame: frame})
			}
		}
	}
	return out
}

// callSites maps each callee scope to the call tokens resolving to it.
func (d *Detector) callSites() map[string][]token.Token {
	catCall := d.vocab.Category(token.FuncCall)
	out := make(map[string][]token.Token)
	for _, name := range d.m.Names() {
		for _, t := range d.m[name][catCall] {
			if !t.IsCall() {
				continue
			}
			for _, target := range d.resolveCall(t) {
				out[target] = append(out[target], t)
			}
		}
	}
	return out
}

// bind pairs declared parameters with call arguments. Argument tokens keep
// their identity but take the control-flow stamp of the parameter. A
// parameter without a matching argument stays unbound.
func (d *Detector) bind(params []token.Token, args [][]token.Token) map[string][]token.Token {
	out := make(map[string][]token.Token, len(params))
	for i, p := range params {
		if i >= len(args) {
			break
		}
		bound := make([]token.Token, len(args[i]))
		for j, a := range args[i] {
			bound[j] = a.WithFlow(p)
		}
		out[p.Category] = append(out[p.Category], bound...)
	}
	return out
}

// resolveCall returns the scopes the function called by t may resolve to,
// or nil when the function is not declared anywhere. A declaration in the
// calling unit wins, then one reachable through the unit's imports,
// preferring the latest import before the call. Otherwise every declaration
// of the function in the project is a candidate.
func (d *Detector) resolveCall(t token.Token) []string {
	if target := t.Call.Target(); d.m[target] != nil {
		return []string{target}
	}

	unit, fn := token.SplitScope(t.Scope)
	before := t.Position
	if fn != "" {
		before = maxPosition
	}
	if u := d.findImported(unit, nil, before, func(u string) bool {
		return d.m[t.Call.TargetIn(u)] != nil
	}); u != "" {
		return []string{t.Call.TargetIn(u)}
	}

	return d.functions[t.Call.Function]
}

const maxPosition = int64(^uint64(0) >> 1)

// findImported walks the imports of unit, latest first, and returns the
// first imported unit accepted by match. Only imports positioned strictly
// between after (when set) and before are considered at the first level;
// imports of imported units are followed regardless of position.
func (d *Detector) findImported(unit string, after *int64, before int64, match func(unit string) bool) string {
	visited := map[string]bool{unit: true}

	var queue []string
	imports := d.m[unit][d.catImports]
	for i := len(imports) - 1; i >= 0; i-- {
		imp := imports[i]
		if imp.Position >= before || (after != nil && imp.Position <= *after) {
			continue
		}
		queue = append(queue, imp.Category)
	}

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		if visited[u] {
			continue
		}
		visited[u] = true
		if match(u) {
			return u
		}
		nested := d.m[u][d.catImports]
		for i := len(nested) - 1; i >= 0; i-- {
			queue = append(queue, nested[i].Category)
		}
	}
	return ""
}
