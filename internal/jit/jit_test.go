package jit

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcc-lang/xcc/internal/ir"
)

// ----------------------------------------------------------------------------
// Memory
// ----------------------------------------------------------------------------

func TestMemoryGlobals(t *testing.T) {
	m := NewMemory()

	addr := m.AllocGlobal(8)
	require.NoError(t, m.Write(addr, 8, 0xdeadbeef))

	v, err := m.Read(addr, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xdeadbeef), v)

	// Narrow reads see the little-endian low bytes.
	v, err = m.Read(addr, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xbeef), v)
}

func TestMemoryNullGuard(t *testing.T) {
	m := NewMemory()
	_, err := m.Read(0, 8)
	assert.Error(t, err)
}

func TestMemoryStackUnwind(t *testing.T) {
	m := NewMemory()

	mark := m.StackMark()
	addr, _, err := m.Frame(16)
	require.NoError(t, err)
	require.NoError(t, m.Write(addr, 8, 7))

	m.Unwind(mark)
	addr2, _, err := m.Frame(16)
	require.NoError(t, err)
	assert.Equal(t, addr, addr2)

	// Frames come back zeroed.
	v, err := m.Read(addr2, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)
}

func TestMemoryCString(t *testing.T) {
	m := NewMemory()
	addr := m.AllocGlobal(4)
	require.NoError(t, m.WriteBytes(addr, []byte("Hi\x00")))

	s, err := m.ReadCString(addr)
	require.NoError(t, err)
	assert.Equal(t, "Hi", s)
}

// ----------------------------------------------------------------------------
// Engine
// ----------------------------------------------------------------------------

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(opts...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

// constFn builds "fn name(): i64 { return v; }" by hand.
func constFn(name string, v int64) *ir.Function {
	fn := ir.NewFunction(name, ir.FuncType{Ret: ir.I64}, nil, ir.LinkOnce)
	b := ir.NewBuilder()
	b.SetInsertPoint(fn.NewBlock("entry"))
	b.CreateRet(ir.ConstInt(ir.I64, v))
	return fn
}

func TestAddModuleAndCall(t *testing.T) {
	e := newTestEngine(t)

	m := ir.NewModule("m1")
	m.AddFunction(constFn("forty_two", 42))
	require.NoError(t, e.AddModule(m, nil))

	sym, err := e.Lookup("forty_two")
	require.NoError(t, err)

	result, err := e.Call(sym, RetSigned)
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.Signed)
}

func TestAddModuleRejectsBrokenFunctions(t *testing.T) {
	e := newTestEngine(t)

	fn := ir.NewFunction("broken", ir.FuncType{Ret: ir.I64}, nil, ir.LinkOnce)
	fn.NewBlock("entry") // no terminator

	m := ir.NewModule("bad")
	m.AddFunction(fn)
	assert.Error(t, e.AddModule(m, nil))

	_, err := e.Lookup("broken")
	assert.Error(t, err)
}

func TestCrossModuleCall(t *testing.T) {
	e := newTestEngine(t)

	// Module 1 defines callee.
	m1 := ir.NewModule("m1")
	m1.AddFunction(constFn("callee", 7))
	require.NoError(t, e.AddModule(m1, nil))

	// Module 2 calls it through an external declaration.
	m2 := ir.NewModule("m2")
	decl := ir.NewFunction("callee", ir.FuncType{Ret: ir.I64}, nil, ir.External)
	m2.AddFunction(decl)

	caller := ir.NewFunction("caller", ir.FuncType{Ret: ir.I64}, nil, ir.LinkOnce)
	b := ir.NewBuilder()
	b.SetInsertPoint(caller.NewBlock("entry"))
	call := b.CreateCall(decl, nil, "calltmp")
	sum := b.CreateAdd(call, ir.ConstInt(ir.I64, 35), "sum")
	b.CreateRet(sum)
	m2.AddFunction(caller)
	require.NoError(t, e.AddModule(m2, nil))

	sym, err := e.Lookup("caller")
	require.NoError(t, err)
	result, err := e.Call(sym, RetSigned)
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.Signed)
}

func TestHostSymbolResolution(t *testing.T) {
	var out bytes.Buffer
	e := newTestEngine(t, WithStdout(&out))

	m := ir.NewModule("m")
	putchar := ir.NewFunction("putchar", ir.FuncType{Params: []ir.Type{ir.I32}, Ret: ir.I32}, nil, ir.External)
	m.AddFunction(putchar)

	fn := ir.NewFunction("greet", ir.FuncType{Ret: ir.I32}, nil, ir.LinkOnce)
	b := ir.NewBuilder()
	b.SetInsertPoint(fn.NewBlock("entry"))
	b.CreateCall(putchar, []ir.Value{ir.ConstInt(ir.I32, 'H')}, "")
	b.CreateCall(putchar, []ir.Value{ir.ConstInt(ir.I32, 'i')}, "")
	b.CreateRet(ir.ConstInt(ir.I32, 0))
	m.AddFunction(fn)
	require.NoError(t, e.AddModule(m, nil))

	sym, err := e.Lookup("greet")
	require.NoError(t, err)
	_, err = e.Call(sym, RetSigned)
	require.NoError(t, err)
	assert.Equal(t, "Hi", out.String())
}

func TestUnresolvableSymbol(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Lookup("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to resolve symbol nope")
}

func TestRegisterHostSymbol(t *testing.T) {
	e := newTestEngine(t)

	called := false
	e.RegisterHostSymbol("custom", func(env *Env, args []uint64) (uint64, error) {
		called = true
		return 9, nil
	})

	sym, err := e.Lookup("custom")
	require.NoError(t, err)
	result, err := e.Call(sym, RetSigned)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, int64(9), result.Signed)
}

func TestResourceTrackerRelease(t *testing.T) {
	e := newTestEngine(t)

	rt := e.CreateResourceTracker()
	assert.NotEmpty(t, rt.ID)

	m := ir.NewModule("turn")
	m.AddFunction(constFn("__anonymous__", 1))
	require.NoError(t, e.AddModule(m, rt))

	_, err := e.Lookup("__anonymous__")
	require.NoError(t, err)

	require.NoError(t, rt.Remove())
	_, err = e.Lookup("__anonymous__")
	assert.Error(t, err)

	// Double release fails cleanly.
	assert.Error(t, rt.Remove())
}

func TestTrackerReleaseKeepsOtherFunctions(t *testing.T) {
	e := newTestEngine(t)

	persistent := ir.NewModule("persistent")
	persistent.AddFunction(constFn("keep", 5))
	require.NoError(t, e.AddModule(persistent, nil))

	rt := e.CreateResourceTracker()
	turn := ir.NewModule("turn")
	turn.AddFunction(constFn("__anonymous__", 1))
	require.NoError(t, e.AddModule(turn, rt))
	require.NoError(t, rt.Remove())

	sym, err := e.Lookup("keep")
	require.NoError(t, err)
	result, err := e.Call(sym, RetSigned)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Signed)
}

func TestGlobalMaterialization(t *testing.T) {
	e := newTestEngine(t)

	m := ir.NewModule("m")
	m.AddGlobal(&ir.Global{
		GlobalName: "g",
		Elem:       ir.I32,
		Init:       ir.ScalarInit{Value: ir.ConstInt(ir.I32, 100)},
	})

	fn := ir.NewFunction("read_g", ir.FuncType{Ret: ir.I32}, nil, ir.LinkOnce)
	b := ir.NewBuilder()
	b.SetInsertPoint(fn.NewBlock("entry"))
	v := b.CreateLoad(ir.I32, m.GetGlobal("g"), "g")
	b.CreateRet(v)
	m.AddFunction(fn)
	require.NoError(t, e.AddModule(m, nil))

	sym, err := e.Lookup("read_g")
	require.NoError(t, err)
	result, err := e.Call(sym, RetSigned)
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.Signed)
}

func TestGenericValueRendering(t *testing.T) {
	assert.Equal(t, "42", GenericValue{Tag: GenericSigned, Signed: 42}.String())
	assert.Equal(t, "7", GenericValue{Tag: GenericUnsigned, Unsigned: 7}.String())
	assert.Equal(t, "1.5", GenericValue{Tag: GenericFloating, Floating: 1.5}.String())
	assert.Equal(t, "", GenericValue{Tag: GenericVoid}.String())
}
