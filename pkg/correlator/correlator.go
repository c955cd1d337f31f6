// Package correlator builds the Correlation Map of a unit: for every scope,
// which tokens can flow into each category. Tokens are stamped with the
// depth, order and flow type of the control-flow branch they appear in and
// with the concatenation operand (split) they belong to.
package correlator

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/l3aro/blindtaint/pkg/lexer"
	"github.com/l3aro/blindtaint/pkg/token"
)

// ErrNestingTooDeep is returned when blocks and declarations nest deeper
// than Options.MaxNesting.
var ErrNestingTooDeep = errors.New("nesting too deep")

// DefaultMaxNesting bounds block and declaration nesting.
const DefaultMaxNesting = 512

// Options configures correlation.
type Options struct {
	// MaxNesting bounds recursion over nested blocks and declarations.
	// 0 selects DefaultMaxNesting.
	MaxNesting int
}

var (
	catArgs     = token.Plain.Category(token.Args)
	catFuncCall = token.Plain.Category(token.FuncCall)
	catReturn   = token.Plain.Category(token.Return)
	catImports  = token.Plain.Category(token.Imports)
)

// Correlate consumes the lexemes of one unit and returns its Correlation Map.
// The map holds the file-level scope named unit and one scope per declared
// function, named token.JoinScope(unit, functionID).
func Correlate(src lexer.Source, unit string, opts Options) (token.Map, error) {
	if opts.MaxNesting <= 0 {
		opts.MaxNesting = DefaultMaxNesting
	}
	b := &builder{
		src:  src,
		unit: unit,
		m:    token.Map{},
		opts: opts,
	}
	root := &frame{
		b:       b,
		scope:   unit,
		s:       b.m.Ensure(unit, catArgs),
		counter: new(int64),
	}
	if err := root.correlate(lexer.TagEndFunc); err != nil {
		return nil, fmt.Errorf("correlating %s: %w", unit, err)
	}
	return b.m, nil
}

// builder holds the state shared by every frame of one unit.
type builder struct {
	src    lexer.Source
	unit   string
	m      token.Map
	opts   Options
	splits int64
	level  int
	pushed []lexer.Lexeme
}

func (b *builder) next() (lexer.Lexeme, bool) {
	if n := len(b.pushed); n > 0 {
		l := b.pushed[n-1]
		b.pushed = b.pushed[:n-1]
		return l, true
	}
	return b.src.Next()
}

func (b *builder) unread(l lexer.Lexeme) {
	b.pushed = append(b.pushed, l)
}

func (b *builder) nextSplit() int64 {
	b.splits++
	return b.splits
}

func (b *builder) enter() error {
	b.level++
	if b.level > b.opts.MaxNesting {
		return fmt.Errorf("%w: more than %d levels", ErrNestingTooDeep, b.opts.MaxNesting)
	}
	return nil
}

func (b *builder) leave() {
	b.level--
}

// frame correlates one control-flow branch of a scope. Every branch gets
// a fresh frame; frames of the same scope share its control-flow counter
// so that no two conditionals of a scope share an order.
type frame struct {
	b       *builder
	scope   string
	s       token.Scope
	depth   int64
	order   int64
	flow    int64
	counter *int64
}

func (f *frame) stamp(l lexer.Lexeme) token.Token {
	category := l.Category
	if category == "" {
		category = token.Plain.Category(l.Kind)
	}
	return token.Token{
		Category: category,
		Line:     strconv.Itoa(l.Line),
		Position: l.Position,
		Depth:    f.depth,
		Order:    f.order,
		FlowType: f.flow,
		Scope:    f.scope,
	}
}

// correlate consumes statements until the end marker of this frame. An
// end marker belonging to an enclosing frame is left for it.
func (f *frame) correlate(end lexer.Tag) error {
	var (
		last    lexer.Lexeme
		hasLast bool
		elseifs int64
	)

	for {
		l, ok := f.b.next()
		if !ok {
			return nil
		}

		switch l.Tag {
		case lexer.TagEndBlock, lexer.TagEndFunc:
			if l.Tag != end {
				f.b.unread(l)
			}
			return nil

		case lexer.TagAssign:
			if hasLast && last.Tag == lexer.TagVariable {
				if err := f.assign(last); err != nil {
					return err
				}
			}

		case lexer.TagIf:
			*f.counter++
			elseifs = 1
			if err := f.branch(*f.counter, 1); err != nil {
				return err
			}
		case lexer.TagElseIf:
			elseifs++
			if err := f.branch(*f.counter, elseifs); err != nil {
				return err
			}
		case lexer.TagElse:
			if err := f.branch(*f.counter, -1); err != nil {
				return err
			}
		case lexer.TagWhile, lexer.TagFor, lexer.TagForeach, lexer.TagDo:
			*f.counter++
			if err := f.branch(*f.counter, 1); err != nil {
				return err
			}
		case lexer.TagSwitch:
			*f.counter++
			if err := f.switchBlock(*f.counter); err != nil {
				return err
			}

		case lexer.TagCallOpen:
			if _, err := f.call(l); err != nil {
				return err
			}
		case lexer.TagReturn:
			values, _, err := f.collect(isSemi)
			if err != nil {
				return err
			}
			f.s.Append(catReturn, values...)
		case lexer.TagImport:
			f.s.Append(catImports, f.stamp(l))
		case lexer.TagFuncDecl:
			if err := f.function(l); err != nil {
				return err
			}
		}

		last, hasLast = l, true
	}
}

// branch correlates a nested block in a fresh child frame.
func (f *frame) branch(order, flow int64) error {
	if err := f.b.enter(); err != nil {
		return err
	}
	defer f.b.leave()

	child := &frame{
		b:       f.b,
		scope:   f.scope,
		s:       f.s,
		depth:   f.depth + 1,
		order:   order,
		flow:    flow,
		counter: f.counter,
	}
	return child.correlate(lexer.TagEndBlock)
}

// switchBlock correlates the cases of a switch as branches of one
// conditional: cases count up from 1, default is the else branch.
func (f *frame) switchBlock(order int64) error {
	var cases int64
	for {
		l, ok := f.b.next()
		if !ok {
			return nil
		}
		switch l.Tag {
		case lexer.TagCase:
			cases++
			if err := f.branch(order, cases); err != nil {
				return err
			}
		case lexer.TagDefault:
			if err := f.branch(order, -1); err != nil {
				return err
			}
		case lexer.TagEndBlock:
			return nil
		case lexer.TagEndFunc:
			f.b.unread(l)
			return nil
		}
	}
}

// function registers the parameters of a declaration and correlates its body
// as an independent scope.
func (f *frame) function(decl lexer.Lexeme) error {
	if err := f.b.enter(); err != nil {
		return err
	}
	defer f.b.leave()

	scope := token.JoinScope(f.b.unit, decl.Category)
	fn := &frame{
		b:       f.b,
		scope:   scope,
		s:       f.b.m.Ensure(scope, catArgs),
		counter: new(int64),
	}

	redeclared := len(fn.s[catArgs]) > 0
	for {
		l, ok := f.b.next()
		if !ok {
			return nil
		}
		if l.Tag == lexer.TagBody {
			break
		}
		if l.Tag == lexer.TagVariable && !redeclared {
			fn.s[catArgs] = append(fn.s[catArgs], fn.stamp(l))
		}
	}

	return fn.correlate(lexer.TagEndFunc)
}

// assign appends the right-hand side of a statement to target's assignors.
func (f *frame) assign(target lexer.Lexeme) error {
	values, _, err := f.collect(isSemi)
	if err != nil {
		return err
	}
	f.s.Append(target.Category, values...)
	return nil
}
