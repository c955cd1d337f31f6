package lexer

import (
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/blindtaint/pkg/knowledge"
	"github.com/l3aro/blindtaint/pkg/token"
)

type walker struct {
	unit     string
	content  []byte
	know     *knowledge.Source
	abs      *Abstractor
	units    map[string]struct{}
	out      []Lexeme
	echoNext bool
}

func (w *walker) text(n *sitter.Node) string {
	return n.Content(w.content)
}

func (w *walker) emit(tag Tag, n *sitter.Node) {
	w.out = append(w.out, Lexeme{Tag: tag, Line: lineOf(n), Position: int64(n.StartByte())})
}

func (w *walker) emitValue(tag Tag, kind token.Kind, category string, n *sitter.Node) {
	w.out = append(w.out, Lexeme{
		Tag:      tag,
		Kind:     kind,
		Category: category,
		Line:     lineOf(n),
		Position: int64(n.StartByte()),
	})
}

func (w *walker) statements(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.statement(n.NamedChild(i))
	}
}

func (w *walker) statement(n *sitter.Node) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "php_tag":
		w.echoNext = strings.HasPrefix(w.text(n), "<?=")
		return
	case "text_interpolation":
		w.statements(n)
		return
	case "text", "comment":
		return
	}

	echo := w.echoNext
	w.echoNext = false

	switch n.Type() {
	case "expression_statement":
		expr := firstNamed(n)
		if expr == nil {
			return
		}
		if echo {
			w.construct("echo", n, []*sitter.Node{expr})
		} else {
			w.expression(expr)
		}
		w.emit(TagSemi, n)
	case "echo_statement":
		w.construct("echo", n, w.sequence(n))
		w.emit(TagSemi, n)
	case "exit_statement":
		w.construct("exit", n, w.sequence(n))
		w.emit(TagSemi, n)
	case "return_statement":
		w.emit(TagReturn, n)
		if expr := firstNamed(n); expr != nil {
			w.expression(expr)
		}
		w.emit(TagSemi, n)
	case "compound_statement", "colon_block", "declaration_list", "namespace_definition":
		w.statements(n)
	case "if_statement":
		w.ifStatement(n)
	case "while_statement":
		w.condition(n.ChildByFieldName("condition"))
		w.emit(TagWhile, n)
		w.block(n.ChildByFieldName("body"))
		w.emit(TagEndBlock, n)
	case "do_statement":
		w.emit(TagDo, n)
		w.block(n.ChildByFieldName("body"))
		w.condition(n.ChildByFieldName("condition"))
		w.emit(TagEndBlock, n)
	case "for_statement":
		w.forStatement(n)
	case "foreach_statement":
		w.foreachStatement(n)
	case "switch_statement":
		w.switchStatement(n)
	case "try_statement":
		w.block(n.ChildByFieldName("body"))
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() == "catch_clause" || c.Type() == "finally_clause" {
				body := c.ChildByFieldName("body")
				if body == nil {
					body = lastNamed(c)
				}
				w.block(body)
			}
		}
	case "function_definition", "method_declaration":
		w.function(n)
	case "class_declaration", "trait_declaration", "enum_declaration":
		if body := n.ChildByFieldName("body"); body != nil {
			for i := 0; i < int(body.NamedChildCount()); i++ {
				if m := body.NamedChild(i); m.Type() == "method_declaration" {
					w.function(m)
				}
			}
		}
	case "interface_declaration", "global_declaration", "function_static_declaration",
		"unset_statement", "const_declaration", "namespace_use_declaration",
		"use_declaration", "break_statement", "continue_statement", "goto_statement",
		"named_label_statement", "empty_statement", "declare_statement":
	default:
		w.statements(n)
	}
}

func (w *walker) block(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "compound_statement", "colon_block":
		w.statements(n)
	default:
		w.statement(n)
	}
}

// condition emits an expression evaluated for its side effects as a
// statement of the enclosing block.
func (w *walker) condition(n *sitter.Node) {
	if n == nil {
		return
	}
	mark := len(w.out)
	w.expression(n)
	if len(w.out) > mark {
		w.emit(TagSemi, n)
	}
}

func (w *walker) ifStatement(n *sitter.Node) {
	w.condition(n.ChildByFieldName("condition"))
	w.emit(TagIf, n)
	w.block(n.ChildByFieldName("body"))
	w.emit(TagEndBlock, n)

	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "else_if_clause":
			w.condition(c.ChildByFieldName("condition"))
			w.emit(TagElseIf, c)
			w.block(c.ChildByFieldName("body"))
			w.emit(TagEndBlock, c)
		case "else_clause":
			w.emit(TagElse, c)
			w.block(c.ChildByFieldName("body"))
			w.emit(TagEndBlock, c)
		}
	}
}

// forStatement splits the header on its semicolons: initializers run before
// the loop, the condition is evaluated at loop entry and updates at the end
// of the body.
func (w *walker) forStatement(n *sitter.Node) {
	var header [3][]*sitter.Node
	var body []*sitter.Node
	section, closed := 0, false

	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch {
		case !c.IsNamed():
			if closed {
				continue
			}
			switch c.Type() {
			case ";":
				if section < 2 {
					section++
				}
			case ")":
				closed = true
			}
		case closed:
			body = append(body, c)
		default:
			header[section] = append(header[section], c)
		}
	}

	for _, c := range header[0] {
		w.condition(c)
	}
	for _, c := range header[1] {
		w.condition(c)
	}
	w.emit(TagFor, n)
	for _, c := range body {
		w.block(c)
	}
	for _, c := range header[2] {
		w.condition(c)
	}
	w.emit(TagEndBlock, n)
}

func (w *walker) foreachStatement(n *sitter.Node) {
	body := n.ChildByFieldName("body")
	var parts []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "comment" {
			continue
		}
		if body != nil && c.StartByte() >= body.StartByte() {
			break
		}
		parts = append(parts, c)
	}
	if body == nil && len(parts) > 0 {
		body = parts[len(parts)-1]
		parts = parts[:len(parts)-1]
	}

	w.emit(TagForeach, n)
	if len(parts) > 0 {
		iterable := parts[0]
		var target *sitter.Node
		if len(parts) > 1 {
			target = parts[1]
			if target.Type() == "pair" {
				target = lastNamed(target)
			}
		}
		if target != nil && w.assignable(target) {
			w.emit(TagAssign, target)
		}
		w.condition(iterable)
	}
	w.block(body)
	w.emit(TagEndBlock, n)
}

func (w *walker) switchStatement(n *sitter.Node) {
	w.condition(n.ChildByFieldName("condition"))
	w.emit(TagSwitch, n)

	if body := n.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			c := body.NamedChild(i)
			var tag Tag
			var skip *sitter.Node
			switch c.Type() {
			case "case_statement":
				tag = TagCase
				skip = c.ChildByFieldName("value")
				if skip == nil {
					skip = firstNamed(c)
				}
			case "default_statement":
				tag = TagDefault
			default:
				continue
			}
			w.emit(tag, c)
			for j := 0; j < int(c.NamedChildCount()); j++ {
				s := c.NamedChild(j)
				if skip != nil && sameNode(s, skip) {
					continue
				}
				w.statement(s)
			}
			w.emit(TagEndBlock, c)
		}
	}
	w.emit(TagEndBlock, n)
}

func (w *walker) function(n *sitter.Node) {
	name := n.ChildByFieldName("name")
	if name == nil {
		return
	}
	w.emitValue(TagFuncDecl, token.Identifier, w.abs.Function(w.text(name)), n)

	if params := n.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			switch p.Type() {
			case "simple_parameter", "variadic_parameter", "property_promotion_parameter":
				v := p.ChildByFieldName("name")
				if v == nil {
					v = findType(p, "variable_name")
				}
				if v != nil {
					w.variable(v)
				}
			}
		}
	}

	w.emit(TagBody, n)
	if body := n.ChildByFieldName("body"); body != nil {
		w.block(body)
	}
	w.emit(TagEndFunc, n)
}

func (w *walker) expression(n *sitter.Node) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "variable_name":
		w.variable(n)
	case "subscript_expression":
		w.expression(firstNamed(n))
	case "member_access_expression", "nullsafe_member_access_expression", "scoped_property_access_expression":
		w.property(n)
	case "assignment_expression", "reference_assignment_expression":
		w.assignment(n, false)
	case "augmented_assignment_expression":
		w.assignment(n, true)
	case "binary_expression":
		left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
		if left == nil || right == nil {
			w.children(n)
			return
		}
		w.expression(left)
		if operatorOf(n) == "." {
			w.emit(TagConcat, n)
		}
		w.expression(right)
	case "encapsed_string", "heredoc":
		w.interpolated(n)
	case "string", "integer", "float", "boolean", "null", "nowdoc", "name", "qualified_name",
		"class_constant_access_expression":
		w.emitValue(TagLiteral, token.Identifier, w.abs.Literal(w.text(n)), n)
	case "function_call_expression":
		fn := n.ChildByFieldName("function")
		args := arguments(n.ChildByFieldName("arguments"))
		if fn != nil && (fn.Type() == "name" || fn.Type() == "qualified_name") {
			w.call(w.text(fn), n, args)
			return
		}
		for _, a := range args {
			w.expression(a)
		}
	case "member_call_expression", "nullsafe_member_call_expression", "scoped_call_expression":
		name := n.ChildByFieldName("name")
		args := arguments(n.ChildByFieldName("arguments"))
		if name != nil && name.Type() == "name" {
			w.call(w.text(name), n, args)
			return
		}
		for _, a := range args {
			w.expression(a)
		}
	case "object_creation_expression":
		if args := findType(n, "arguments"); args != nil {
			for _, a := range arguments(args) {
				w.expression(a)
			}
		}
	case "print_intrinsic":
		w.construct("print", n, w.sequence(n))
	case "include_expression", "include_once_expression", "require_expression", "require_once_expression":
		w.include(n)
	case "anonymous_function_creation_expression", "anonymous_function", "arrow_function",
		"update_expression", "cast_type", "comment":
	default:
		w.children(n)
	}
}

func (w *walker) children(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.expression(n.NamedChild(i))
	}
}

func (w *walker) variable(n *sitter.Node) {
	name := w.text(n)
	if w.know.IsInput(name) {
		w.emitValue(TagInput, token.Input, token.Input.String(), n)
		return
	}
	w.emitValue(TagVariable, token.Identifier, w.abs.Variable(name), n)
}

// property abstracts a member access chain as a single variable.
func (w *walker) property(n *sitter.Node) {
	name := strings.Join(strings.Fields(w.text(n)), "")
	name = strings.ReplaceAll(name, "?->", "->")
	w.emitValue(TagVariable, token.Identifier, w.abs.Variable(name), n)
}

// assignable emits the variable written by an assignment target and reports
// whether the target is trackable.
func (w *walker) assignable(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "variable_name":
		w.variable(n)
		return true
	case "member_access_expression", "nullsafe_member_access_expression", "scoped_property_access_expression":
		w.property(n)
		return true
	case "subscript_expression", "by_ref", "parenthesized_expression":
		return w.assignable(firstNamed(n))
	}
	return false
}

// assignment emits "target = value". Compound assignments read the target,
// so it is repeated as the first assignor.
func (w *walker) assignment(n *sitter.Node, augmented bool) {
	left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
	if left == nil || right == nil {
		w.children(n)
		return
	}
	if !w.assignable(left) {
		w.expression(right)
		return
	}
	w.emit(TagAssign, n)
	if augmented {
		w.assignable(left)
		if operatorOf(n) == ".=" {
			w.emit(TagConcat, n)
		}
	}
	w.expression(right)
}

type part struct {
	node *sitter.Node
	lit  strings.Builder
}

// interpolated emits an interpolated string as concatenated operands.
func (w *walker) interpolated(n *sitter.Node) {
	var parts []*part
	var cur *part
	var collect func(n *sitter.Node)
	collect = func(n *sitter.Node) {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			switch c.Type() {
			case "heredoc_body":
				collect(c)
			case "heredoc_start", "heredoc_end":
			case "string_content", "string_value", "escape_sequence", "string":
				if cur == nil {
					cur = &part{node: c}
					parts = append(parts, cur)
				}
				cur.lit.WriteString(w.text(c))
			default:
				cur = nil
				parts = append(parts, &part{node: c})
			}
		}
	}
	collect(n)

	if len(parts) == 0 {
		w.emitValue(TagLiteral, token.Identifier, w.abs.Literal(w.text(n)), n)
		return
	}
	if len(parts) > 1 {
		w.emit(TagQuote, n)
	}
	for i, p := range parts {
		if i > 0 {
			w.emit(TagConcat, p.node)
		}
		if p.lit.Len() > 0 {
			w.emitValue(TagLiteral, token.Identifier, w.abs.Literal(p.lit.String()), p.node)
			continue
		}
		w.expression(p.node)
	}
}

// call emits a function call. Sinks and sanitizers are classified by name;
// any other function gets an abstract id.
func (w *walker) call(name string, n *sitter.Node, args []*sitter.Node) {
	kind := w.know.Classify(name)
	category := kind.String()
	if kind == token.Identifier {
		category = w.abs.Function(name)
	}
	w.callWith(kind, category, n, args)
}

// construct emits a language construct such as echo. Constructs the
// knowledge source does not classify only evaluate their operands.
func (w *walker) construct(name string, n *sitter.Node, args []*sitter.Node) {
	kind := w.know.Classify(name)
	if kind == token.Identifier {
		for _, a := range args {
			w.expression(a)
		}
		return
	}
	w.callWith(kind, kind.String(), n, args)
}

func (w *walker) callWith(kind token.Kind, category string, n *sitter.Node, args []*sitter.Node) {
	w.emitValue(TagCallOpen, kind, category, n)
	for i, a := range args {
		if i > 0 {
			w.emit(TagComma, a)
		}
		w.expression(a)
	}
	end := int64(n.EndByte()) - 1
	if end < int64(n.StartByte()) {
		end = int64(n.StartByte())
	}
	w.out = append(w.out, Lexeme{Tag: TagCallClose, Line: int(n.EndPoint().Row) + 1, Position: end})
}

// sequence returns the operands of a comma-separated construct.
func (w *walker) sequence(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	var flatten func(n *sitter.Node)
	flatten = func(n *sitter.Node) {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			switch c.Type() {
			case "sequence_expression", "parenthesized_expression":
				flatten(c)
			case "comment":
			default:
				out = append(out, c)
			}
		}
	}
	flatten(n)
	return out
}

func (w *walker) include(n *sitter.Node) {
	rel, ok := w.staticPath(firstNamed(n))
	if !ok || strings.Trim(rel, "/") == "" {
		return
	}
	w.emitValue(TagImport, token.Imports, w.resolve(rel), n)
}

// staticPath evaluates an include target built from string literals and
// directory constants.
func (w *walker) staticPath(n *sitter.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case "string", "encapsed_string":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			switch n.NamedChild(i).Type() {
			case "string_content", "string_value", "escape_sequence":
			default:
				return "", false
			}
		}
		return strings.Trim(w.text(n), `'"`), true
	case "parenthesized_expression":
		return w.staticPath(firstNamed(n))
	case "name":
		switch w.text(n) {
		case "__DIR__", "__FILE__":
			return "", true
		}
	case "function_call_expression":
		if fn := n.ChildByFieldName("function"); fn != nil && strings.EqualFold(w.text(fn), "dirname") {
			return "", true
		}
	case "binary_expression":
		if operatorOf(n) != "." {
			return "", false
		}
		l, ok := w.staticPath(n.ChildByFieldName("left"))
		if !ok {
			return "", false
		}
		r, ok := w.staticPath(n.ChildByFieldName("right"))
		if !ok {
			return "", false
		}
		return l + r, true
	}
	return "", false
}

// resolve maps an include path to a unit name. Paths are tried relative to
// the including unit first, then relative to the project root.
func (w *walker) resolve(rel string) string {
	rel = strings.TrimPrefix(strings.TrimPrefix(rel, "./"), "/")
	candidates := []string{
		path.Join(path.Dir(w.unit), rel),
		path.Clean(rel),
	}
	if w.units == nil {
		return candidates[0]
	}
	for _, c := range candidates {
		if _, ok := w.units[c]; ok {
			return c
		}
	}
	for u := range w.units {
		if strings.HasSuffix(u, "/"+path.Clean(rel)) {
			return u
		}
	}
	return candidates[0]
}

func arguments(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "argument":
			if v := lastNamed(c); v != nil {
				out = append(out, v)
			}
		case "comment", "variadic_placeholder":
		default:
			out = append(out, c)
		}
	}
	return out
}

func operatorOf(n *sitter.Node) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return op.Type()
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); !c.IsNamed() {
			return c.Type()
		}
	}
	return ""
}

func firstNamed(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() != "comment" {
			return c
		}
	}
	return nil
}

func lastNamed(n *sitter.Node) *sitter.Node {
	for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
		if c := n.NamedChild(i); c.Type() != "comment" {
			return c
		}
	}
	return nil
}

func findType(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == typ {
			return c
		}
	}
	return nil
}

func sameNode(a, b *sitter.Node) bool {
	return a.Type() == b.Type() && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

func lineOf(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}
