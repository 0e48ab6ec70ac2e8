package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcc-lang/xcc/internal/ast"
	"github.com/xcc-lang/xcc/internal/lexer"
)

// ----------------------------------------------------------------------------
// Test Helpers
// ----------------------------------------------------------------------------

func parseSource(t *testing.T, source string, isRepl bool) *ast.Block {
	t.Helper()
	tokens, err := lexer.New(source).Tokenize()
	require.NoError(t, err)
	block, err := New(tokens).Parse(isRepl)
	require.NoError(t, err, "source: %s", source)
	return block
}

func parseExprSource(t *testing.T, source string) ast.Node {
	t.Helper()
	block := parseSource(t, source, true)
	require.Len(t, block.Body, 1)
	return block.Body[0]
}

func expectParseError(t *testing.T, source string, isRepl bool) *ParseError {
	t.Helper()
	tokens, err := lexer.New(source).Tokenize()
	require.NoError(t, err)
	_, err = New(tokens).Parse(isRepl)
	require.Error(t, err, "source: %s", source)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	return parseErr
}

// ----------------------------------------------------------------------------
// Expressions
// ----------------------------------------------------------------------------

func TestPrecedenceMulOverAdd(t *testing.T) {
	// 2 + 3 * 4 parses as 2 + (3 * 4)
	expr := parseExprSource(t, "2 + 3 * 4")

	add, ok := expr.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, lexer.TokPlus, add.Op.Kind)

	mul, ok := add.RHS.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, lexer.TokStar, mul.Op.Kind)
}

func TestPrecedenceComparisonOverLogic(t *testing.T) {
	// a < b && c parses as (a < b) && c
	expr := parseExprSource(t, "a < b && c")

	and, ok := expr.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, lexer.TokAndAnd, and.Op.Kind)

	cmp, ok := and.LHS.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, lexer.TokLt, cmp.Op.Kind)
}

func TestLeftAssociativity(t *testing.T) {
	// a - b - c parses as (a - b) - c
	expr := parseExprSource(t, "a - b - c")

	outer, ok := expr.(*ast.Binary)
	require.True(t, ok)
	inner, ok := outer.LHS.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, "a", inner.LHS.(*ast.Identifier).Name)
}

func TestCastBindsTighterThanFactor(t *testing.T) {
	// a * b as i64 parses as a * (b as i64)
	expr := parseExprSource(t, "a * b as i64")

	mul, ok := expr.(*ast.Binary)
	require.True(t, ok)
	_, ok = mul.RHS.(*ast.Cast)
	assert.True(t, ok)
}

func TestUnaryRightAssociative(t *testing.T) {
	expr := parseExprSource(t, "**p")

	outer, ok := expr.(*ast.Unary)
	require.True(t, ok)
	assert.Equal(t, lexer.TokStar, outer.Op.Kind)
	_, ok = outer.RHS.(*ast.Unary)
	assert.True(t, ok)
}

func TestSubscript(t *testing.T) {
	expr := parseExprSource(t, "buf[i + 1]")

	sub, ok := expr.(*ast.Subscript)
	require.True(t, ok)
	assert.Equal(t, "buf", sub.Base.(*ast.Identifier).Name)
	_, ok = sub.Index.(*ast.Binary)
	assert.True(t, ok)
}

func TestNumberBases(t *testing.T) {
	cases := []struct {
		input string
		value int64
	}{
		{"42", 42},
		{"0x2a", 42},
		{"0b101010", 42},
		{"0o52", 42},
		{"052", 42},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			num, ok := parseExprSource(t, tc.input).(*ast.Number)
			require.True(t, ok)
			assert.Equal(t, ast.Integer, num.Tag)
			assert.Equal(t, tc.value, num.Int)
		})
	}
}

func TestFloatLiteral(t *testing.T) {
	num, ok := parseExprSource(t, "3.25").(*ast.Number)
	require.True(t, ok)
	assert.Equal(t, ast.Floating, num.Tag)
	assert.Equal(t, 3.25, num.Float)
}

func TestCharLiteralIsNumber(t *testing.T) {
	num, ok := parseExprSource(t, "'H'").(*ast.Number)
	require.True(t, ok)
	assert.Equal(t, int64('H'), num.Int)
}

// ----------------------------------------------------------------------------
// Member access and calls
// ----------------------------------------------------------------------------

func TestMemberAccessChain(t *testing.T) {
	expr := parseExprSource(t, "a.b->c")

	outer, ok := expr.(*ast.MemberAccess)
	require.True(t, ok)
	assert.Equal(t, ast.ByPointer, outer.Access)
	assert.Equal(t, "c", outer.Member.Name)

	inner, ok := outer.LHS.(*ast.MemberAccess)
	require.True(t, ok)
	assert.Equal(t, ast.ByValue, inner.Access)
	assert.Equal(t, "b", inner.Member.Name)
}

func TestMethodCall(t *testing.T) {
	expr := parseExprSource(t, "c.add(2)")

	call, ok := expr.(*ast.Call)
	require.True(t, ok)
	require.Len(t, call.Args, 1)

	access, ok := call.Callee.(*ast.MemberAccess)
	require.True(t, ok)
	assert.Equal(t, "add", access.Member.Name)
}

func TestFreeCall(t *testing.T) {
	expr := parseExprSource(t, "f(1, 2, 3)")

	call, ok := expr.(*ast.Call)
	require.True(t, ok)
	assert.Equal(t, "f", call.Callee.(*ast.Identifier).Name)
	assert.Len(t, call.Args, 3)
}

// ----------------------------------------------------------------------------
// Assignment and lvalues
// ----------------------------------------------------------------------------

func TestAssignmentLvalueForms(t *testing.T) {
	valid := []string{
		"x = 1",
		"*p = 1",
		"a[0] = 1",
		"s.f = 1",
		"p->f = 1",
		"x += 2",
		"x &&= 1",
	}
	for _, source := range valid {
		t.Run(source, func(t *testing.T) {
			_, ok := parseExprSource(t, source).(*ast.Assign)
			assert.True(t, ok, "expected Assign for %q", source)
		})
	}
}

func TestInvalidAssignmentTargets(t *testing.T) {
	invalid := []string{
		"1 = 2",
		"f() = 3",
		"a + b = 4",
		"x as i32 = 5",
	}
	for _, source := range invalid {
		t.Run(source, func(t *testing.T) {
			expectParseError(t, source, true)
		})
	}
}

// ----------------------------------------------------------------------------
// Declarations
// ----------------------------------------------------------------------------

func TestFunctionDefinition(t *testing.T) {
	block := parseSource(t, "fn add(a: i32, b: i32): i32 { return a + b; }", false)
	require.Len(t, block.Body, 1)

	def, ok := block.Body[0].(*ast.FnDef)
	require.True(t, ok)
	assert.Equal(t, "add", def.Decl.Name.Name)
	assert.Len(t, def.Decl.Args, 2)
	assert.False(t, def.Decl.Extern)
	assert.False(t, def.Decl.Variadic)
	require.Len(t, def.Body.Body, 1)
}

func TestExternVariadicDeclaration(t *testing.T) {
	block := parseSource(t, "extern fn printf(fmt: i8*, ...): i32;", false)

	decl, ok := block.Body[0].(*ast.FnDecl)
	require.True(t, ok)
	assert.True(t, decl.Extern)
	assert.True(t, decl.Variadic)
	require.Len(t, decl.Args, 1)
	assert.True(t, decl.Args[0].Type.Pointer)
}

func TestGlobalVarRequiresSemicolon(t *testing.T) {
	parseSource(t, "var g: i32 = 1;", false)
	expectParseError(t, "var g: i32 = 1", false)
}

func TestStructWithFieldsAndMethods(t *testing.T) {
	source := `struct C {
		n: i32;
		fn add(self, k: i32): i32 { return self->n + k; }
	}`
	block := parseSource(t, source, false)

	st, ok := block.Body[0].(*ast.Struct)
	require.True(t, ok)
	assert.Equal(t, "C", st.Name.Name)
	require.Len(t, st.Fields, 1)
	require.Len(t, st.Methods, 1)

	method := st.Methods[0]
	require.Len(t, method.Decl.Args, 2)
	assert.Equal(t, "self", method.Decl.Args[0].Name.Name)
	assert.True(t, method.Decl.Args[0].Type.Pointer)
	assert.Equal(t, "C", method.Decl.Args[0].Type.Inner.Name.Name)
}

func TestMethodGetsImplicitSelf(t *testing.T) {
	source := `struct P { x: i32; fn get(): i32 { return self->x; } }`
	block := parseSource(t, source, false)

	st := block.Body[0].(*ast.Struct)
	require.Len(t, st.Methods, 1)
	args := st.Methods[0].Decl.Args
	require.Len(t, args, 1)
	assert.Equal(t, "self", args[0].Name.Name)
}

func TestPointerTypeDepth(t *testing.T) {
	block := parseSource(t, "var p: i8**;", false)
	decl := block.Body[0].(*ast.VarDecl)
	require.True(t, decl.Type.Pointer)
	require.True(t, decl.Type.Inner.Pointer)
	assert.Equal(t, "i8", decl.Type.Inner.Inner.Name.Name)
}

// ----------------------------------------------------------------------------
// Statements
// ----------------------------------------------------------------------------

func TestIfElse(t *testing.T) {
	source := "fn f(): i32 { if (x) return 1; else return 2; }"
	block := parseSource(t, source, false)

	body := block.Body[0].(*ast.FnDef).Body
	stmt, ok := body.Body[0].(*ast.If)
	require.True(t, ok)
	assert.NotNil(t, stmt.Else)
}

func TestForLoop(t *testing.T) {
	source := "fn f(): i32 { for (var i: i32 = 0; i < 10; i = i + 1) { } return 0; }"
	block := parseSource(t, source, false)

	body := block.Body[0].(*ast.FnDef).Body
	loop, ok := body.Body[0].(*ast.For)
	require.True(t, ok)
	assert.Equal(t, "i", loop.Init.Name.Name)
	assert.False(t, loop.Init.Global)
}

func TestWhileLoop(t *testing.T) {
	source := "fn f(): i32 { while (x) x = x - 1; return x; }"
	block := parseSource(t, source, false)

	body := block.Body[0].(*ast.FnDef).Body
	_, ok := body.Body[0].(*ast.While)
	assert.True(t, ok)
}

func TestBlockTerminatesStatementWithoutSemicolon(t *testing.T) {
	source := "fn f(): i32 { if (x) { return 1; } return 2; }"
	block := parseSource(t, source, false)
	body := block.Body[0].(*ast.FnDef).Body
	assert.Len(t, body.Body, 2)
}

// ----------------------------------------------------------------------------
// Modes
// ----------------------------------------------------------------------------

func TestTopLevelExpressionRejectedInProgramMode(t *testing.T) {
	expectParseError(t, "1 + 2", false)
}

func TestTopLevelExpressionAcceptedInReplMode(t *testing.T) {
	block := parseSource(t, "1 + 2", true)
	assert.Len(t, block.Body, 1)
}

func TestParseErrorCarriesLine(t *testing.T) {
	err := expectParseError(t, "fn f(): i32 {\n  var;\n}", false)
	assert.Equal(t, 2, err.Line)
}
