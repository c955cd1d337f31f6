package audit

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/l3aro/blindtaint/pkg/detector"
	"github.com/l3aro/blindtaint/pkg/token"
)

// NoPathsMessage is printed when a report holds no path.
const NoPathsMessage = "No vulnerable paths detected."

// Report is a legible set of vulnerable paths.
type Report struct {
	Vuln  token.Vuln
	Paths []token.Path
	Stats detector.Stats

	// Names maps abstract ids to source names. It may be nil.
	Names map[string]string
}

// Write renders the report as numbered paths, sink first.
func (r *Report) Write(w io.Writer) error {
	if len(r.Paths) == 0 {
		_, err := fmt.Fprintln(w, NoPathsMessage)
		return err
	}

	fmt.Fprintf(w, "%d vulnerable %s path(s) found.\n", len(r.Paths), r.Vuln)
	fmt.Fprintln(w, "The first token in each path reaches a vulnerable sink; the last one is its origin.")

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, p := range r.Paths {
		fmt.Fprintf(tw, "\nPath %d:\n", i+1)
		for _, t := range p {
			fmt.Fprintf(tw, "  %s\tline %s\t%s\n", r.name(t), t.Line, r.scope(t.Scope))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if r.Stats.Truncated > 0 {
		_, err := fmt.Fprintln(w, "\nWarning: the search was truncated; some paths may be missing.")
		return err
	}
	return nil
}

// name renders the token's category, or its callee for a call token.
func (r *Report) name(t token.Token) string {
	if t.IsCall() {
		return r.lookup(t.Call.Function)
	}
	return r.lookup(t.Category)
}

// scope renders a scope name, resolving the function part of function
// scopes.
func (r *Report) scope(s string) string {
	unit, function := token.SplitScope(s)
	if function == "" {
		return unit
	}
	return unit + token.ScopeSeparator + r.lookup(function)
}

func (r *Report) lookup(id string) string {
	if name, ok := r.Names[id]; ok {
		return name
	}
	return id
}

// WriteMap prints a plaintext Correlation Map, one scope per block.
func WriteMap(w io.Writer, m token.Map, names map[string]string) error {
	r := &Report{Names: names}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range m.Names() {
		fmt.Fprintf(tw, "%s\n", r.scope(name))
		scope := m[name]
		for _, cat := range scope.Categories() {
			parts := make([]string, 0, len(scope[cat]))
			for _, t := range scope[cat] {
				parts = append(parts, fmt.Sprintf("%s@%d", r.name(t), t.Position))
			}
			fmt.Fprintf(tw, "  %s\t<- %s\n", r.lookup(cat), strings.Join(parts, ", "))
		}
	}
	return tw.Flush()
}
