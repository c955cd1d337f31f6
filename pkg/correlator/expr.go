package correlator

import (
	"github.com/l3aro/blindtaint/pkg/lexer"
	"github.com/l3aro/blindtaint/pkg/token"
)

func isSemi(t lexer.Tag) bool {
	return t == lexer.TagSemi
}

func isArgEnd(t lexer.Tag) bool {
	return t == lexer.TagComma || t == lexer.TagCallClose
}

// operands tracks the concatenation operands of one expression. Until the
// first concatenation every value keeps split 0; from then on each operand,
// including the prefix collected before the fork, gets a fresh split id.
type operands struct {
	b       *builder
	values  []token.Token
	split   int64
	forked  bool
	pending bool
}

func (o *operands) add(t token.Token) {
	if o.pending {
		o.split = o.b.nextSplit()
		o.pending = false
	}
	t.Split = o.split
	o.values = append(o.values, t)
}

func (o *operands) fork() {
	if !o.forked {
		o.forked = true
		if len(o.values) > 0 {
			id := o.b.nextSplit()
			for i := range o.values {
				o.values[i].Split = id
			}
		}
	}
	o.pending = true
}

// collect gathers the values of one expression up to a lexeme accepted by
// stop, which is consumed and returned. Markers that belong to an enclosing
// construct end the expression without being consumed.
func (f *frame) collect(stop func(lexer.Tag) bool) ([]token.Token, *lexer.Lexeme, error) {
	ops := &operands{b: f.b}
	var prev lexer.Lexeme

	for {
		l, ok := f.b.next()
		if !ok {
			return ops.values, nil, nil
		}
		if stop(l.Tag) {
			return ops.values, &l, nil
		}

		switch l.Tag {
		case lexer.TagVariable, lexer.TagLiteral, lexer.TagInput:
			ops.add(f.stamp(l))

		case lexer.TagCallOpen:
			t, err := f.call(l)
			if err != nil {
				return nil, nil, err
			}
			ops.add(t)

		case lexer.TagConcat, lexer.TagQuote:
			ops.fork()

		case lexer.TagAssign:
			// Chained assignment: the variable just collected is itself
			// assigned the rest of the expression, which also flows here.
			if prev.Tag != lexer.TagVariable || len(ops.values) == 0 {
				break
			}
			target := ops.values[len(ops.values)-1]
			ops.values = ops.values[:len(ops.values)-1]
			if err := f.b.enter(); err != nil {
				return nil, nil, err
			}
			rest, term, err := f.collect(stop)
			f.b.leave()
			if err != nil {
				return nil, nil, err
			}
			f.s.Append(target.Category, rest...)
			ops.values = append(ops.values, rest...)
			return ops.values, term, nil

		case lexer.TagImport:
			f.s.Append(catImports, f.stamp(l))

		case lexer.TagComma:
			// operand separator outside a call, e.g. a for header

		default:
			f.b.unread(l)
			return ops.values, nil, nil
		}

		prev = l
	}
}

// call correlates a call whose opening lexeme has been consumed and returns
// the token standing for its value. Sink and sanitizer arguments become
// assignors of the sink or sanitizer category; any other call is recorded
// as a scope call token under FUNC_CALL.
func (f *frame) call(open lexer.Lexeme) (token.Token, error) {
	if err := f.b.enter(); err != nil {
		return token.Token{}, err
	}
	defer f.b.leave()

	var args [][]token.Token
	t := f.stamp(open)

	for {
		values, term, err := f.collect(isArgEnd)
		if err != nil {
			return token.Token{}, err
		}
		if term == nil {
			break
		}
		if len(values) > 0 || term.Tag == lexer.TagComma || len(args) > 0 {
			args = append(args, values)
		}
		if term.Tag == lexer.TagCallClose {
			t.Position = term.Position
			break
		}
	}

	if open.Kind.IsSink() || open.Kind.IsSanitizer() {
		t.Category = token.Plain.Category(open.Kind)
		for _, arg := range args {
			f.s.Append(t.Category, arg...)
		}
		return t, nil
	}

	t.Category = catFuncCall
	t.Call = &token.Call{
		Unit:     f.b.unit,
		Function: open.Category,
		Args:     args,
	}
	f.s.Append(catFuncCall, t)
	return t, nil
}
