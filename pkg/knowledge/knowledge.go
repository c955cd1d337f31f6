// Package knowledge loads the taint knowledge source: which variables are
// untrusted inputs and which functions are sensitive sinks or sanitizers for
// each vulnerability kind.
package knowledge

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/blindtaint/pkg/token"
)

//go:embed default.yaml
var defaultYAML []byte

var (
	// ErrUnknownVulnerability is returned for a vulnerability entry whose name
	// is not a supported kind.
	ErrUnknownVulnerability = errors.New("unknown vulnerability")

	// ErrConflict is returned when one function is listed under two roles.
	ErrConflict = errors.New("conflicting classification")
)

// File is the on-disk layout of a knowledge source.
type File struct {
	Input           []string        `yaml:"input"`
	Vulnerabilities []Vulnerability `yaml:"vulnerabilities"`
}

// Vulnerability lists the sinks and sanitizers of one vulnerability kind.
type Vulnerability struct {
	Name                  string   `yaml:"name"`
	SensitiveSinks        []string `yaml:"sensitive_sinks"`
	SanitizationFunctions []string `yaml:"sanitization_functions"`
}

// Source is an immutable, loaded knowledge source. It is safe for
// concurrent use.
type Source struct {
	inputs    map[string]struct{}
	functions map[string]token.Kind
}

// Default returns the built-in knowledge source.
func Default() *Source {
	s, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("knowledge: invalid built-in source: %v", err))
	}
	return s
}

// Load reads a knowledge source from path. An empty path selects the
// built-in source.
func Load(path string) (*Source, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading knowledge source %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing knowledge source %s: %w", path, err)
	}
	return s, nil
}

// Parse builds a Source from YAML.
func Parse(data []byte) (*Source, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return FromFile(f)
}

// FromFile builds a Source from an already decoded File.
func FromFile(f File) (*Source, error) {
	s := &Source{
		inputs:    make(map[string]struct{}, len(f.Input)),
		functions: make(map[string]token.Kind),
	}

	for _, in := range f.Input {
		in = strings.TrimSpace(in)
		if in == "" {
			continue
		}
		if !strings.HasPrefix(in, "$") {
			in = "$" + in
		}
		s.inputs[in] = struct{}{}
	}

	for _, v := range f.Vulnerabilities {
		vuln, err := token.ParseVuln(v.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownVulnerability, v.Name)
		}
		if err := s.register(v.SensitiveSinks, token.SinkOf(vuln)); err != nil {
			return nil, err
		}
		if err := s.register(v.SanitizationFunctions, token.SanitizerOf(vuln)); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Source) register(names []string, kind token.Kind) error {
	for _, name := range names {
		key := normalize(name)
		if key == "" {
			continue
		}
		if prev, ok := s.functions[key]; ok && prev != kind {
			return fmt.Errorf("%w: %s is both %s and %s", ErrConflict, name, prev, kind)
		}
		s.functions[key] = kind
	}
	return nil
}

// IsInput reports whether a variable name, including its leading "$", is an
// untrusted input.
func (s *Source) IsInput(variable string) bool {
	_, ok := s.inputs[variable]
	return ok
}

// Classify returns the sink or sanitizer kind of a function or language
// construct name, or token.Identifier when it has no role.
func (s *Source) Classify(name string) token.Kind {
	if k, ok := s.functions[normalize(name)]; ok {
		return k
	}
	return token.Identifier
}

// Inputs returns the input variable names in lexical order.
func (s *Source) Inputs() []string {
	out := make([]string, 0, len(s.inputs))
	for in := range s.inputs {
		out = append(out, in)
	}
	sort.Strings(out)
	return out
}

// Functions returns the names classified as kind in lexical order.
func (s *Source) Functions(kind token.Kind) []string {
	var out []string
	for name, k := range s.functions {
		if k == kind {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// PHP function names are case-insensitive; namespaced calls keep only the
// final segment.
func normalize(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}
