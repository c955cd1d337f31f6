package lexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/blindtaint/pkg/knowledge"
	"github.com/l3aro/blindtaint/pkg/token"
)

func lex(t *testing.T, src string) []Lexeme {
	t.Helper()
	s, err := New(knowledge.Default(), nil).Lex("a.php", []byte(src))
	require.NoError(t, err)
	return s.Lexemes()
}

func tags(lexemes []Lexeme) []Tag {
	out := make([]Tag, len(lexemes))
	for i, l := range lexemes {
		out[i] = l.Tag
	}
	return out
}

func TestLex_AssignmentAndEcho(t *testing.T) {
	lexemes := lex(t, "<?php\n$x = $_GET['a'];\necho $x;\n")

	assert.Equal(t, []Tag{
		TagVariable, TagAssign, TagInput, TagSemi,
		TagCallOpen, TagVariable, TagCallClose, TagSemi,
	}, tags(lexemes))

	assert.Equal(t, "VAR1", lexemes[0].Category)
	assert.Equal(t, 2, lexemes[0].Line)
	assert.Equal(t, token.Input, lexemes[2].Kind)
	assert.Equal(t, token.XSSSink, lexemes[4].Kind)
	assert.Equal(t, "VAR1", lexemes[5].Category)
	assert.Equal(t, 3, lexemes[5].Line)
	assert.Greater(t, lexemes[6].Position, lexemes[5].Position)
}

func TestLex_Sanitizer(t *testing.T) {
	lexemes := lex(t, "<?php $x = htmlspecialchars($_GET['a']);")

	assert.Equal(t, []Tag{
		TagVariable, TagAssign, TagCallOpen, TagInput, TagCallClose, TagSemi,
	}, tags(lexemes))
	assert.Equal(t, token.XSSSanitizer, lexemes[2].Kind)
	assert.Equal(t, "XSS_SANITIZER", lexemes[2].Category)
}

func TestLex_UnknownCall(t *testing.T) {
	lexemes := lex(t, "<?php $x = Helper($a, 'b');")

	assert.Equal(t, []Tag{
		TagVariable, TagAssign, TagCallOpen, TagVariable, TagComma, TagLiteral, TagCallClose, TagSemi,
	}, tags(lexemes))
	assert.Equal(t, token.Identifier, lexemes[2].Kind)
	assert.Equal(t, "FUNC1", lexemes[2].Category)
}

func TestLex_Concat(t *testing.T) {
	lexemes := lex(t, "<?php $x = 'a' . $y;")

	assert.Equal(t, []Tag{
		TagVariable, TagAssign, TagLiteral, TagConcat, TagVariable, TagSemi,
	}, tags(lexemes))
}

func TestLex_AugmentedConcat(t *testing.T) {
	lexemes := lex(t, "<?php $x .= $y;")

	assert.Equal(t, []Tag{
		TagVariable, TagAssign, TagVariable, TagConcat, TagVariable, TagSemi,
	}, tags(lexemes))
	assert.Equal(t, lexemes[0].Category, lexemes[2].Category)
}

func TestLex_Function(t *testing.T) {
	lexemes := lex(t, "<?php function f($p) { return $p; }")

	assert.Equal(t, []Tag{
		TagFuncDecl, TagVariable, TagBody, TagReturn, TagVariable, TagSemi, TagEndFunc,
	}, tags(lexemes))
	assert.Equal(t, "FUNC1", lexemes[0].Category)
	assert.Equal(t, lexemes[1].Category, lexemes[4].Category)
}

func TestLex_IfElse(t *testing.T) {
	lexemes := lex(t, "<?php if ($c) { $x = 1; } else { $x = 2; }")

	assert.Equal(t, []Tag{
		TagVariable, TagSemi, TagIf,
		TagVariable, TagAssign, TagLiteral, TagSemi,
		TagEndBlock, TagElse,
		TagVariable, TagAssign, TagLiteral, TagSemi,
		TagEndBlock,
	}, tags(lexemes))
}

func TestLex_Include(t *testing.T) {
	l := New(knowledge.Default(), nil).WithUnits([]string{"a.php", "lib/b.php"})
	s, err := l.Lex("a.php", []byte("<?php include 'lib/b.php';"))
	require.NoError(t, err)

	lexemes := s.Lexemes()
	require.NotEmpty(t, lexemes)
	assert.Equal(t, TagImport, lexemes[0].Tag)
	assert.Equal(t, "lib/b.php", lexemes[0].Category)
}

func TestLex_DynamicIncludeIgnored(t *testing.T) {
	lexemes := lex(t, "<?php include $page;")
	for _, l := range lexemes {
		assert.NotEqual(t, TagImport, l.Tag)
	}
}

func TestLexFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "web"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "web", "index.php"), []byte("<?php echo $_POST['q'];"), 0o644))

	s, err := New(knowledge.Default(), nil).LexFile(dir, "web/index.php")
	require.NoError(t, err)
	assert.Equal(t, "web/index.php", s.Unit)
	assert.Equal(t, []Tag{TagCallOpen, TagInput, TagCallClose, TagSemi}, tags(s.Lexemes()))

	_, err = New(knowledge.Default(), nil).LexFile(dir, "missing.php")
	assert.Error(t, err)
}

func TestAbstractor(t *testing.T) {
	a := NewAbstractor()

	assert.Equal(t, "VAR1", a.Variable("$x"))
	assert.Equal(t, "VAR2", a.Variable("$y"))
	assert.Equal(t, "VAR1", a.Variable("$x"))
	assert.Equal(t, "FUNC1", a.Function("Render"))
	assert.Equal(t, "FUNC1", a.Function("render"))
	assert.Equal(t, "LIT1", a.Literal("'a'"))

	legend := a.Legend()
	assert.Equal(t, "$x", legend["VAR1"])
	assert.Equal(t, "Render()", legend["FUNC1"])
	assert.Equal(t, "'a'", legend["LIT1"])

	legend["VAR1"] = "changed"
	assert.Equal(t, "$x", a.Legend()["VAR1"])
}

func TestAbstractor_SharedAcrossUnits(t *testing.T) {
	l := New(knowledge.Default(), nil)
	a, err := l.Lex("a.php", []byte("<?php $x = 1;"))
	require.NoError(t, err)
	b, err := l.Lex("b.php", []byte("<?php $y = 2; $x = 3;"))
	require.NoError(t, err)

	assert.Equal(t, a.Lexemes()[0].Category, b.Lexemes()[4].Category)
}

func TestStream(t *testing.T) {
	s := NewStream("a.php", []Lexeme{{Tag: TagVariable}, {Tag: TagSemi}})
	assert.Equal(t, 2, s.Len())

	l, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, TagVariable, l.Tag)
	_, _ = s.Next()
	_, ok = s.Next()
	assert.False(t, ok)

	s.Reset()
	l, ok = s.Next()
	require.True(t, ok)
	assert.Equal(t, TagVariable, l.Tag)
}
