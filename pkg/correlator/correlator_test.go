package correlator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/blindtaint/pkg/lexer"
	"github.com/l3aro/blindtaint/pkg/token"
)

func variable(cat string, pos int64) lexer.Lexeme {
	return lexer.Lexeme{Tag: lexer.TagVariable, Category: cat, Line: 1, Position: pos}
}

func literal(cat string, pos int64) lexer.Lexeme {
	return lexer.Lexeme{Tag: lexer.TagLiteral, Category: cat, Line: 1, Position: pos}
}

func input(pos int64) lexer.Lexeme {
	return lexer.Lexeme{Tag: lexer.TagInput, Kind: token.Input, Category: "INPUT", Line: 1, Position: pos}
}

func open(kind token.Kind, cat string, pos int64) lexer.Lexeme {
	if cat == "" {
		cat = kind.String()
	}
	return lexer.Lexeme{Tag: lexer.TagCallOpen, Kind: kind, Category: cat, Line: 1, Position: pos}
}

func closing(pos int64) lexer.Lexeme {
	return lexer.Lexeme{Tag: lexer.TagCallClose, Line: 1, Position: pos}
}

func mark(tag lexer.Tag) lexer.Lexeme {
	return lexer.Lexeme{Tag: tag}
}

func correlate(t *testing.T, lexemes ...lexer.Lexeme) token.Map {
	t.Helper()
	m, err := Correlate(lexer.NewStream("a.php", lexemes), "a.php", Options{})
	require.NoError(t, err)
	return m
}

func categories(tokens []token.Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Category
	}
	return out
}

func TestCorrelate_Assignment(t *testing.T) {
	m := correlate(t,
		variable("VAR1", 6), mark(lexer.TagAssign), input(11), mark(lexer.TagSemi),
		open(token.XSSSink, "", 25), variable("VAR1", 30), closing(32), mark(lexer.TagSemi),
	)

	scope := m["a.php"]
	require.NotNil(t, scope)
	assert.Contains(t, scope, "ARGS")
	assert.Empty(t, scope["ARGS"])

	require.Len(t, scope["VAR1"], 1)
	assert.Equal(t, "INPUT", scope["VAR1"][0].Category)
	assert.Equal(t, int64(11), scope["VAR1"][0].Position)
	assert.Equal(t, "a.php", scope["VAR1"][0].Scope)

	require.Len(t, scope["XSS_SINK"], 1)
	assert.Equal(t, "VAR1", scope["XSS_SINK"][0].Category)
	assert.Equal(t, int64(30), scope["XSS_SINK"][0].Position)
}

func TestCorrelate_AssignmentCompleteness(t *testing.T) {
	// $x = $a + $_GET['q'] + 3 + f($b);
	m := correlate(t,
		variable("VAR1", 1), mark(lexer.TagAssign),
		variable("VAR2", 5), input(10), literal("LIT1", 20),
		open(token.Identifier, "FUNC1", 24), variable("VAR3", 26), closing(29),
		mark(lexer.TagSemi),
	)

	got := m["a.php"]["VAR1"]
	assert.Equal(t, []string{"VAR2", "INPUT", "LIT1", "FUNC_CALL"}, categories(got))
	assert.Equal(t, int64(29), got[3].Position, "call token is positioned after its arguments")
	require.NotNil(t, got[3].Call)
	assert.Equal(t, "a.php::FUNC1", got[3].Call.Target())
	require.Len(t, got[3].Call.Args, 1)
	assert.Equal(t, []string{"VAR3"}, categories(got[3].Call.Args[0]))

	assert.Len(t, m["a.php"]["FUNC_CALL"], 1)
	assert.NotContains(t, m["a.php"], "VAR3")
}

func TestCorrelate_ControlFlow(t *testing.T) {
	// if (...) { $x = 'a'; } else { $x = $_GET['a']; }
	// if (...) { $y = $x; } elseif (...) { $y = 1; } elseif (...) { $y = 2; }
	m := correlate(t,
		mark(lexer.TagIf),
		variable("VAR1", 10), mark(lexer.TagAssign), literal("LIT1", 15), mark(lexer.TagSemi),
		mark(lexer.TagEndBlock),
		mark(lexer.TagElse),
		variable("VAR1", 30), mark(lexer.TagAssign), input(35), mark(lexer.TagSemi),
		mark(lexer.TagEndBlock),
		mark(lexer.TagIf),
		variable("VAR2", 50), mark(lexer.TagAssign), variable("VAR1", 55), mark(lexer.TagSemi),
		mark(lexer.TagEndBlock),
		mark(lexer.TagElseIf),
		variable("VAR2", 70), mark(lexer.TagAssign), literal("LIT2", 75), mark(lexer.TagSemi),
		mark(lexer.TagEndBlock),
		mark(lexer.TagElseIf),
		variable("VAR2", 90), mark(lexer.TagAssign), literal("LIT3", 95), mark(lexer.TagSemi),
		mark(lexer.TagEndBlock),
	)

	x := m["a.php"]["VAR1"]
	require.Len(t, x, 2)
	assert.Equal(t, [3]int64{1, 1, 1}, [3]int64{x[0].Depth, x[0].Order, x[0].FlowType})
	assert.Equal(t, [3]int64{1, 1, -1}, [3]int64{x[1].Depth, x[1].Order, x[1].FlowType})

	y := m["a.php"]["VAR2"]
	require.Len(t, y, 3)
	for i, want := range []int64{1, 2, 3} {
		assert.Equal(t, int64(2), y[i].Order, "second conditional gets its own order")
		assert.Equal(t, want, y[i].FlowType)
	}
}

func TestCorrelate_NestedBlocksShareScopeCounter(t *testing.T) {
	// while (...) { if (...) { $x = 1; } } if (...) { $x = 2; }
	m := correlate(t,
		mark(lexer.TagWhile),
		mark(lexer.TagIf),
		variable("VAR1", 10), mark(lexer.TagAssign), literal("LIT1", 15), mark(lexer.TagSemi),
		mark(lexer.TagEndBlock),
		mark(lexer.TagEndBlock),
		mark(lexer.TagIf),
		variable("VAR1", 30), mark(lexer.TagAssign), literal("LIT2", 35), mark(lexer.TagSemi),
		mark(lexer.TagEndBlock),
	)

	x := m["a.php"]["VAR1"]
	require.Len(t, x, 2)
	assert.Equal(t, int64(2), x[0].Depth)
	assert.Equal(t, int64(2), x[0].Order)
	assert.Equal(t, int64(1), x[1].Depth)
	assert.Equal(t, int64(3), x[1].Order)
}

func TestCorrelate_Switch(t *testing.T) {
	m := correlate(t,
		mark(lexer.TagSwitch),
		mark(lexer.TagCase),
		variable("VAR1", 10), mark(lexer.TagAssign), literal("LIT1", 15), mark(lexer.TagSemi),
		mark(lexer.TagEndBlock),
		mark(lexer.TagCase),
		variable("VAR1", 20), mark(lexer.TagAssign), literal("LIT2", 25), mark(lexer.TagSemi),
		mark(lexer.TagEndBlock),
		mark(lexer.TagDefault),
		variable("VAR1", 30), mark(lexer.TagAssign), input(35), mark(lexer.TagSemi),
		mark(lexer.TagEndBlock),
		mark(lexer.TagEndBlock),
		variable("VAR2", 40), mark(lexer.TagAssign), variable("VAR1", 45), mark(lexer.TagSemi),
	)

	x := m["a.php"]["VAR1"]
	require.Len(t, x, 3)
	assert.Equal(t, []int64{1, 2, -1}, []int64{x[0].FlowType, x[1].FlowType, x[2].FlowType})
	for _, tok := range x {
		assert.Equal(t, int64(1), tok.Order)
		assert.Equal(t, int64(1), tok.Depth)
	}

	y := m["a.php"]["VAR2"]
	require.Len(t, y, 1)
	assert.Equal(t, int64(0), y[0].Depth)
}

func TestCorrelate_Split(t *testing.T) {
	// $x = $a . "b" . $c; $y = $a;
	m := correlate(t,
		variable("VAR1", 1), mark(lexer.TagAssign),
		variable("VAR2", 5), mark(lexer.TagConcat), literal("LIT1", 10), mark(lexer.TagConcat), variable("VAR3", 16),
		mark(lexer.TagSemi),
		variable("VAR4", 20), mark(lexer.TagAssign), variable("VAR2", 25), mark(lexer.TagSemi),
	)

	x := m["a.php"]["VAR1"]
	require.Len(t, x, 3)
	seen := map[int64]bool{}
	for _, tok := range x {
		assert.NotZero(t, tok.Split)
		assert.False(t, seen[tok.Split], "each operand gets its own split")
		seen[tok.Split] = true
	}

	y := m["a.php"]["VAR4"]
	require.Len(t, y, 1)
	assert.Zero(t, y[0].Split)
}

func TestCorrelate_InterpolatedString(t *testing.T) {
	// $x = "id: $a";
	m := correlate(t,
		variable("VAR1", 1), mark(lexer.TagAssign),
		mark(lexer.TagQuote), literal("LIT1", 6), mark(lexer.TagConcat), variable("VAR2", 10),
		mark(lexer.TagSemi),
	)

	x := m["a.php"]["VAR1"]
	require.Len(t, x, 2)
	assert.NotZero(t, x[0].Split)
	assert.NotZero(t, x[1].Split)
	assert.NotEqual(t, x[0].Split, x[1].Split)
}

func TestCorrelate_FunctionDeclaration(t *testing.T) {
	// function f($p) { return $p; }  $x = f($_GET['a']);
	m := correlate(t,
		lexer.Lexeme{Tag: lexer.TagFuncDecl, Category: "FUNC1", Position: 0},
		variable("VAR2", 11), mark(lexer.TagBody),
		mark(lexer.TagReturn), variable("VAR2", 25), mark(lexer.TagSemi),
		mark(lexer.TagEndFunc),
		variable("VAR1", 40), mark(lexer.TagAssign),
		open(token.Identifier, "FUNC1", 45), input(47), closing(60),
		mark(lexer.TagSemi),
	)

	fn := m["a.php::FUNC1"]
	require.NotNil(t, fn)
	assert.Equal(t, []string{"VAR2"}, categories(fn["ARGS"]))
	assert.Equal(t, []string{"VAR2"}, categories(fn["RETURN"]))
	assert.Equal(t, "a.php::FUNC1", fn["RETURN"][0].Scope)
	assert.Equal(t, int64(0), fn["RETURN"][0].Depth)

	calls := m["a.php"]["FUNC_CALL"]
	require.Len(t, calls, 1)
	assert.Equal(t, int64(60), calls[0].Position)
	assert.Equal(t, []string{"INPUT"}, categories(calls[0].Call.Args[0]))
	assert.Equal(t, []string{"FUNC_CALL"}, categories(m["a.php"]["VAR1"]))
	assert.NotContains(t, m["a.php"], "RETURN")
}

func TestCorrelate_FunctionInsideBranchIsIndependentScope(t *testing.T) {
	m := correlate(t,
		mark(lexer.TagIf),
		lexer.Lexeme{Tag: lexer.TagFuncDecl, Category: "FUNC1"},
		mark(lexer.TagBody),
		mark(lexer.TagIf),
		variable("VAR1", 10), mark(lexer.TagAssign), literal("LIT1", 15), mark(lexer.TagSemi),
		mark(lexer.TagEndBlock),
		mark(lexer.TagEndFunc),
		mark(lexer.TagEndBlock),
		variable("VAR2", 30), mark(lexer.TagAssign), literal("LIT2", 35), mark(lexer.TagSemi),
	)

	inner := m["a.php::FUNC1"]["VAR1"]
	require.Len(t, inner, 1)
	assert.Equal(t, int64(1), inner[0].Depth)
	assert.Equal(t, int64(1), inner[0].Order)

	outer := m["a.php"]["VAR2"]
	require.Len(t, outer, 1)
	assert.Equal(t, int64(0), outer[0].Depth)
}

func TestCorrelate_Sanitizer(t *testing.T) {
	// $x = htmlspecialchars($_GET['a']);
	m := correlate(t,
		variable("VAR1", 1), mark(lexer.TagAssign),
		open(token.XSSSanitizer, "", 5), input(22), closing(34),
		mark(lexer.TagSemi),
	)

	x := m["a.php"]["VAR1"]
	require.Len(t, x, 1)
	assert.Equal(t, "XSS_SANITIZER", x[0].Category)
	assert.Nil(t, x[0].Call)
	assert.Equal(t, int64(34), x[0].Position)
	assert.Equal(t, []string{"INPUT"}, categories(m["a.php"]["XSS_SANITIZER"]))
}

func TestCorrelate_SinkWithSeveralArguments(t *testing.T) {
	// mysqli_query($conn, "SELECT " . $q);
	m := correlate(t,
		open(token.SQLISink, "", 0), variable("VAR1", 13), mark(lexer.TagComma),
		literal("LIT1", 20), mark(lexer.TagConcat), variable("VAR2", 33), closing(35),
		mark(lexer.TagSemi),
	)

	sink := m["a.php"]["SQLI_SINK"]
	assert.Equal(t, []string{"VAR1", "LIT1", "VAR2"}, categories(sink))
	assert.Zero(t, sink[0].Split)
	assert.NotEqual(t, sink[1].Split, sink[2].Split)
}

func TestCorrelate_ChainedAssignment(t *testing.T) {
	// $a = $b = $_GET['x'];
	m := correlate(t,
		variable("VAR1", 1), mark(lexer.TagAssign), variable("VAR2", 6), mark(lexer.TagAssign), input(11),
		mark(lexer.TagSemi),
	)

	assert.Equal(t, []string{"INPUT"}, categories(m["a.php"]["VAR1"]))
	assert.Equal(t, []string{"INPUT"}, categories(m["a.php"]["VAR2"]))
}

func TestCorrelate_Imports(t *testing.T) {
	m := correlate(t,
		lexer.Lexeme{Tag: lexer.TagImport, Kind: token.Imports, Category: "lib/b.php", Position: 6}, mark(lexer.TagSemi),
		lexer.Lexeme{Tag: lexer.TagImport, Kind: token.Imports, Category: "lib/c.php", Position: 30}, mark(lexer.TagSemi),
	)

	imports := m["a.php"]["IMPORTS"]
	assert.Equal(t, []string{"lib/b.php", "lib/c.php"}, categories(imports))
	assert.Less(t, imports[0].Position, imports[1].Position)
}

func TestCorrelate_NestingTooDeep(t *testing.T) {
	var lexemes []lexer.Lexeme
	for i := 0; i < 4; i++ {
		lexemes = append(lexemes, mark(lexer.TagIf))
	}
	for i := 0; i < 4; i++ {
		lexemes = append(lexemes, mark(lexer.TagEndBlock))
	}

	_, err := Correlate(lexer.NewStream("a.php", lexemes), "a.php", Options{MaxNesting: 3})
	require.ErrorIs(t, err, ErrNestingTooDeep)

	_, err = Correlate(lexer.NewStream("a.php", lexemes), "a.php", Options{MaxNesting: 4})
	require.NoError(t, err)
}

func TestCorrelate_NestedCallsTooDeep(t *testing.T) {
	// $x = f(g(h($_GET['a'])));
	lexemes := []lexer.Lexeme{
		variable("VAR1", 1), mark(lexer.TagAssign),
		open(token.Identifier, "FUNC1", 6), open(token.Identifier, "FUNC2", 8), open(token.Identifier, "FUNC3", 10),
		input(12), closing(20), closing(21), closing(22), mark(lexer.TagSemi),
	}

	_, err := Correlate(lexer.NewStream("a.php", lexemes), "a.php", Options{MaxNesting: 2})
	require.ErrorIs(t, err, ErrNestingTooDeep)

	_, err = Correlate(lexer.NewStream("a.php", lexemes), "a.php", Options{MaxNesting: 3})
	require.NoError(t, err)
}

func TestCorrelate_ChainedAssignmentTooDeep(t *testing.T) {
	// $a = $b = $c = $_GET['x'];
	lexemes := []lexer.Lexeme{
		variable("VAR1", 1), mark(lexer.TagAssign),
		variable("VAR2", 6), mark(lexer.TagAssign),
		variable("VAR3", 11), mark(lexer.TagAssign),
		input(16), mark(lexer.TagSemi),
	}

	_, err := Correlate(lexer.NewStream("a.php", lexemes), "a.php", Options{MaxNesting: 1})
	require.ErrorIs(t, err, ErrNestingTooDeep)

	m, err := Correlate(lexer.NewStream("a.php", lexemes), "a.php", Options{MaxNesting: 2})
	require.NoError(t, err)
	for _, v := range []string{"VAR1", "VAR2", "VAR3"} {
		assert.Equal(t, []string{"INPUT"}, categories(m["a.php"][v]), v)
	}
}

func TestCorrelate_StopsAtOwnEnd(t *testing.T) {
	// A stray end of function inside a block belongs to the enclosing
	// declaration, not to the block.
	m := correlate(t,
		lexer.Lexeme{Tag: lexer.TagFuncDecl, Category: "FUNC1"},
		mark(lexer.TagBody),
		mark(lexer.TagIf),
		variable("VAR1", 10), mark(lexer.TagAssign), literal("LIT1", 15), mark(lexer.TagSemi),
		mark(lexer.TagEndFunc),
		variable("VAR2", 30), mark(lexer.TagAssign), literal("LIT2", 35), mark(lexer.TagSemi),
	)

	assert.Contains(t, m["a.php::FUNC1"], "VAR1")
	assert.Contains(t, m["a.php"], "VAR2")
	assert.NotContains(t, m["a.php::FUNC1"], "VAR2")
}
