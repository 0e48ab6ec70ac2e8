package codegen

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcc-lang/xcc/internal/ir"
	"github.com/xcc-lang/xcc/internal/jit"
	"github.com/xcc-lang/xcc/internal/lexer"
	"github.com/xcc-lang/xcc/internal/types"
)

// ----------------------------------------------------------------------------
// Test Helpers
// ----------------------------------------------------------------------------

func newSession(t *testing.T) (*GlobalContext, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	g, err := NewGlobalContext(jit.WithStdout(&out))
	require.NoError(t, err)
	t.Cleanup(g.Close)
	t.Cleanup(types.ResetCustomTypes)
	return g, &out
}

func runProgram(t *testing.T, g *GlobalContext, source string) jit.GenericValue {
	t.Helper()
	result, err := Run(g, source, false)
	require.NoError(t, err, "source:\n%s", source)
	require.True(t, result.HasValue)
	return result.Value
}

func evalRepl(t *testing.T, g *GlobalContext, source string) RunResult {
	t.Helper()
	result, err := Run(g, source, true)
	require.NoError(t, err, "source:\n%s", source)
	return result
}

func expectRunError(t *testing.T, g *GlobalContext, source string, isRepl bool) error {
	t.Helper()
	_, err := Run(g, source, isRepl)
	require.Error(t, err, "source:\n%s", source)
	return err
}

// ----------------------------------------------------------------------------
// Binary-operation table
// ----------------------------------------------------------------------------

func TestBinOpLookupDeterminism(t *testing.T) {
	query := MetaFromType(lexer.TokPlus, types.I64())
	first := FindBinOp(binOps, query)
	require.NotNil(t, first)

	for i := 0; i < 10; i++ {
		assert.Same(t, first, FindBinOp(binOps, query))
	}
	assert.Equal(t, "addtmp", first.Twine)
}

func TestBinOpSignedness(t *testing.T) {
	signed := FindBinOp(binOps, MetaFromType(lexer.TokSlash, types.I32()))
	require.NotNil(t, signed)
	assert.Equal(t, "divstmp", signed.Twine)

	unsigned := FindBinOp(binOps, MetaFromType(lexer.TokSlash, types.U32()))
	require.NotNil(t, unsigned)
	assert.Equal(t, "divutmp", unsigned.Twine)

	float := FindBinOp(binOps, MetaFromType(lexer.TokSlash, types.F64()))
	require.NotNil(t, float)
	assert.Equal(t, "divftmp", float.Twine)
}

func TestBinOpAnyTypeEntries(t *testing.T) {
	// Logical and bitwise entries carry a NONE mask and accept anything.
	entry := FindBinOp(binOps, MetaFromType(lexer.TokAndAnd, types.F32()))
	require.NotNil(t, entry)
	assert.Equal(t, "landtmp", entry.Twine)

	entry = FindBinOp(binOps, MetaFromType(lexer.TokAmp, types.U8()))
	require.NotNil(t, entry)
	assert.Equal(t, "andtmp", entry.Twine)
}

func TestBinOpNoMatch(t *testing.T) {
	// Division of a pointer matches no entry.
	assert.Nil(t, FindBinOp(binOps, MetaFromType(lexer.TokSlash, types.Pointer(types.I8()))))
}

// ----------------------------------------------------------------------------
// Cast matrix
// ----------------------------------------------------------------------------

func castContext(t *testing.T, g *GlobalContext) *ModuleContext {
	t.Helper()
	mc := g.CreateModule("cast-test")
	fn := ir.NewFunction("f", ir.FuncType{Ret: ir.Void}, nil, ir.LinkOnce)
	mc.Module.AddFunction(fn)
	mc.B.SetInsertPoint(fn.NewBlock("entry"))
	return mc
}

func TestCastMatrix(t *testing.T) {
	g, _ := newSession(t)
	mc := castContext(t, g)

	intVal := ir.ConstInt(ir.I64, 42)

	f, err := CastValue(mc, intVal, ir.F64)
	require.NoError(t, err)
	assert.Equal(t, ir.F64, f.Type())

	narrowed, err := CastValue(mc, intVal, ir.I8)
	require.NoError(t, err)
	assert.Equal(t, ir.I8, narrowed.Type())

	ptr, err := CastValue(mc, intVal, ir.PointerTo(ir.I8))
	require.NoError(t, err)
	assert.True(t, ir.IsPointer(ptr.Type()))
}

func TestCastFloatToPointerFails(t *testing.T) {
	g, _ := newSession(t)
	mc := castContext(t, g)

	_, err := CastValue(mc, ir.ConstFloat(ir.F64, 1.0), ir.PointerTo(ir.I8))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't perform cast")
}

func TestCastIfNotSameSkipsIdentity(t *testing.T) {
	g, _ := newSession(t)
	mc := castContext(t, g)

	v := ir.ConstInt(ir.I32, 1)
	out, err := CastIfNotSame(mc, v, ir.I32)
	require.NoError(t, err)
	assert.Same(t, ir.Value(v), out)
}

// ----------------------------------------------------------------------------
// End-to-end scenarios
// ----------------------------------------------------------------------------

func TestArithmeticReturn(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, "fn main(): i32 { return 2 + 3 * 4; }")
	assert.Equal(t, jit.GenericSigned, value.Tag)
	assert.Equal(t, int64(14), value.Signed)
}

func TestPointerRoundTrip(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, `
		fn main(): i64 {
			var x: i64 = 7;
			var p: i64* = &x;
			*p = *p + 35;
			return x;
		}`)
	assert.Equal(t, int64(42), value.Signed)
}

func TestStructMember(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, `
		struct P { x: i32; y: i32; }
		fn main(): i32 {
			var p: P;
			p.x = 10;
			p.y = 32;
			return p.x + p.y;
		}`)
	assert.Equal(t, int64(42), value.Signed)
}

func TestMethodCallWithSelf(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, `
		struct C {
			n: i32;
			fn add(self, k: i32): i32 { return self->n + k; }
		}
		fn main(): i32 {
			var c: C;
			c.n = 40;
			return c.add(2);
		}`)
	assert.Equal(t, int64(42), value.Signed)

	// Method registration uses the mangled name.
	assert.NotNil(t, g.GetMetaFunction("C_add"))
}

func TestExternCall(t *testing.T) {
	g, out := newSession(t)
	value := runProgram(t, g, `
		extern fn putchar(c: i32): i32;
		fn main(): i32 {
			putchar(72);
			putchar(105);
			putchar(10);
			return 0;
		}`)
	assert.Equal(t, int64(0), value.Signed)
	assert.Equal(t, "Hi\n", out.String())
}

func TestReplContinuity(t *testing.T) {
	g, _ := newSession(t)

	evalRepl(t, g, "fn add(a:i32,b:i32):i32{return a+b;}")
	evalRepl(t, g, "var g: i32 = 100;")

	result := evalRepl(t, g, "add(g, 5)")
	require.True(t, result.HasValue)
	assert.Equal(t, int64(105), result.Value.Signed)

	// The wrapper symbol is gone once the turn's tracker is released.
	_, err := g.JIT.Lookup(AnonymousExprName)
	assert.Error(t, err)

	// add and g remain resolvable on later turns.
	again := evalRepl(t, g, "add(g, 7)")
	assert.Equal(t, int64(107), again.Value.Signed)
}

func TestReplDefinitionOnlyTurnHasNoValue(t *testing.T) {
	g, _ := newSession(t)
	result := evalRepl(t, g, "fn f(): i32 { return 1; }")
	assert.False(t, result.HasValue)
}

func TestPointerMemberAccess(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, `
		struct A { v: i64; }
		fn main(): i64 {
			var a: A;
			a.v = 7;
			var pa: A* = &a;
			return pa->v + 35;
		}`)
	assert.Equal(t, int64(42), value.Signed)
}

func TestNestedMemberChain(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, `
		struct Inner { v: i32; }
		struct Outer { in: Inner; }
		fn main(): i32 {
			var o: Outer;
			o.in.v = 42;
			return o.in.v;
		}`)
	assert.Equal(t, int64(42), value.Signed)
}

func TestMethodCallThroughPointer(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, `
		struct C {
			n: i32;
			fn get(self): i32 { return self->n; }
		}
		fn main(): i32 {
			var c: C;
			c.n = 13;
			var p: C* = &c;
			return p->get();
		}`)
	assert.Equal(t, int64(13), value.Signed)
}

func TestScopeShadowingInForLoop(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, `
		fn main(): i64 {
			var i: i64 = 100;
			for (var i: i64 = 0; i < 3; i = i + 1) { }
			return i;
		}`)
	assert.Equal(t, int64(100), value.Signed)
}

func TestForLoopRunsBodyAndStep(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, `
		fn main(): i64 {
			var sum: i64 = 0;
			for (var i: i64 = 1; i < 5; i = i + 1) {
				sum = sum + i;
			}
			return sum;
		}`)
	// Body-first loop shape: body and step run before the condition, so
	// i walks 1..4 with the body seeing 1, 2, 3, 4.
	assert.Equal(t, int64(10), value.Signed)
}

func TestWhileLoop(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, `
		fn main(): i64 {
			var i: i64 = 0;
			while (i < 5) { i = i + 1; }
			return i;
		}`)
	assert.Equal(t, int64(5), value.Signed)
}

func TestWhileFalseNeverRuns(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, `
		fn main(): i64 {
			var i: i64 = 3;
			while (0) { i = 99; }
			return i;
		}`)
	assert.Equal(t, int64(3), value.Signed)
}

func TestIfElseValue(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, `
		fn pick(c: i64): i64 {
			if (c) { return 10; } else { return 20; }
		}
		fn main(): i64 { return pick(1) + pick(0); }`)
	assert.Equal(t, int64(30), value.Signed)
}

func TestCompoundAssignment(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, `
		fn main(): i64 {
			var x: i64 = 40;
			x += 4;
			x -= 2;
			return x;
		}`)
	assert.Equal(t, int64(42), value.Signed)
}

func TestCastExpression(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, `
		fn main(): i32 {
			var f: f64 = 3.9;
			return f as i32;
		}`)
	assert.Equal(t, int64(3), value.Signed)
}

func TestFloatArithmetic(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, "fn main(): f64 { return 1.5 + 2.25; }")
	assert.Equal(t, jit.GenericFloating, value.Tag)
	assert.Equal(t, 3.75, value.Floating)
}

func TestSignedDivision(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, `
		fn main(): i64 {
			var a: i64 = 0 - 6;
			return a / 2;
		}`)
	assert.Equal(t, int64(-3), value.Signed)
}

func TestStringLiteralThroughPuts(t *testing.T) {
	g, out := newSession(t)
	runProgram(t, g, `
		extern fn puts(s: i8*): i32;
		fn main(): i32 {
			puts("Hi\n");
			return 0;
		}`)
	assert.Equal(t, "Hi\n", out.String())
}

func TestStringSubscript(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, `
		fn main(): i32 {
			var s: i8* = "ABC";
			return s[1] as i32;
		}`)
	assert.Equal(t, int64('B'), value.Signed)
}

func TestGlobalVariable(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, `
		var counter: i64 = 40;
		fn main(): i64 { return counter + 2; }`)
	assert.Equal(t, int64(42), value.Signed)
}

func TestRecursion(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, `
		fn fib(n: i64): i64 {
			if (n < 2) { return n; }
			return fib(n - 1) + fib(n - 2);
		}
		fn main(): i64 { return fib(10); }`)
	assert.Equal(t, int64(55), value.Signed)
}

func TestCharLiteralValue(t *testing.T) {
	g, _ := newSession(t)
	value := runProgram(t, g, "fn main(): i32 { return 'H' as i32; }")
	assert.Equal(t, int64(72), value.Signed)
}

// ----------------------------------------------------------------------------
// Errors
// ----------------------------------------------------------------------------

func TestUnknownIdentifier(t *testing.T) {
	g, _ := newSession(t)
	err := expectRunError(t, g, "fn main(): i32 { return nope; }", false)
	var cgErr *CodegenError
	require.ErrorAs(t, err, &cgErr)
	assert.Contains(t, cgErr.Message, "undeclared value referenced: 'nope'")
}

func TestUnknownTypeName(t *testing.T) {
	g, _ := newSession(t)
	err := expectRunError(t, g, "fn main(): Bogus { return 0; }", false)
	assert.Contains(t, err.Error(), "unknown type 'Bogus'")
}

func TestArgumentCountMismatch(t *testing.T) {
	g, _ := newSession(t)
	err := expectRunError(t, g, `
		fn f(a: i32): i32 { return a; }
		fn main(): i32 { return f(1, 2); }`, false)
	assert.Contains(t, err.Error(), "argument mismatch")
}

func TestUnknownStructField(t *testing.T) {
	g, _ := newSession(t)
	err := expectRunError(t, g, `
		struct P { x: i32; }
		fn main(): i32 {
			var p: P;
			return p.z;
		}`, false)
	assert.Contains(t, err.Error(), "doesn't have member 'z'")
}

func TestUnknownFunction(t *testing.T) {
	g, _ := newSession(t)
	err := expectRunError(t, g, "fn main(): i32 { return missing(); }", false)
	assert.Contains(t, err.Error(), "unknown function to call ('missing')")
}

func TestSubscriptOfNonPointer(t *testing.T) {
	g, _ := newSession(t)
	err := expectRunError(t, g, `
		fn main(): i32 {
			var x: i32 = 1;
			return x[0];
		}`, false)
	assert.Contains(t, err.Error(), "not subscriptable")
}

func TestMissingMain(t *testing.T) {
	g, _ := newSession(t)
	err := expectRunError(t, g, "fn not_main(): i32 { return 0; }", false)
	assert.Contains(t, err.Error(), "unable to resolve symbol main")
}

func TestTopLevelExpressionRejectedOutsideRepl(t *testing.T) {
	g, _ := newSession(t)
	expectRunError(t, g, "1 + 2", false)
}

// ----------------------------------------------------------------------------
// Metadata
// ----------------------------------------------------------------------------

func TestFunctionMetaRendering(t *testing.T) {
	g, _ := newSession(t)
	evalRepl(t, g, "fn add(a:i32,b:i32):i32{return a+b;}")

	meta := g.GetMetaFunction("add")
	require.NotNil(t, meta)
	assert.Equal(t, "fn add(a: i32, b: i32): i32", meta.String())
}

func TestVariadicMetaRendering(t *testing.T) {
	g, _ := newSession(t)
	evalRepl(t, g, "extern fn printf(fmt: i8*, ...): i32;")

	meta := g.GetMetaFunction("printf")
	require.NotNil(t, meta)
	assert.True(t, meta.Variadic())
	assert.Equal(t, "fn printf(fmt: i8*, ...): i32", meta.String())
}

func TestOrderedMapPreservesOrder(t *testing.T) {
	m := NewOrderedMap[string, int]()
	m.Set("b", 2)
	m.Set("a", 1)
	m.Set("c", 3)
	m.Set("a", 10)

	assert.Equal(t, []string{"b", "a", "c"}, m.Keys())
	key, value := m.At(1)
	assert.Equal(t, "a", key)
	assert.Equal(t, 10, value)
	assert.Equal(t, 3, m.Len())
}
