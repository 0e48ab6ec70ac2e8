// Package codegen lowers the AST to IR and manages the shared semantic
// state of a compilation session: the function and global registries, the
// per-module builders, and the JIT handle.
package codegen

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/xcc-lang/xcc/internal/ast"
	"github.com/xcc-lang/xcc/internal/ir"
	"github.com/xcc-lang/xcc/internal/jit"
	"github.com/xcc-lang/xcc/internal/types"
)

// AnonymousExprName is the symbol REPL expressions are wrapped under.
const AnonymousExprName = "__anonymous__"

const defaultModuleName = "<module>"

// CodegenError is a lowering failure; Line is 0 when the failing construct
// carries no token.
type CodegenError struct {
	Line    int
	Message string
}

func (e *CodegenError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%d: %s", e.Line, e.Message)
	}
	return e.Message
}

func errf(format string, args ...any) error {
	return &CodegenError{Message: fmt.Sprintf(format, args...)}
}

func errOnLine(line int, format string, args ...any) error {
	return &CodegenError{Line: line, Message: fmt.Sprintf(format, args...)}
}

// TypedValue pairs a meta type with the stack slot holding a local.
type TypedValue struct {
	Type *types.Type
	Slot ir.Value
}

// NewTypedValue allocates a stack slot in the function's entry block.
func NewTypedValue(mc *ModuleContext, fn *ir.Function, t *types.Type, name string) *TypedValue {
	return &TypedValue{
		Type: t,
		Slot: mc.B.CreateEntryAlloca(fn, t.IRType(), name),
	}
}

// GlobalContext is the cross-module state of a session: the JIT, the
// function and global registries, the current-function cursor, and the
// perpetual global module.
type GlobalContext struct {
	JIT *jit.Engine

	functions map[string]*Function
	globals   map[string]*types.Type

	currentFunction string

	// GlobalModule holds top-level globals, string literal constants,
	// struct types and REPL expression wrappers. It is re-created after a
	// REPL execution consumes it.
	GlobalModule *ModuleContext

	// PrintIR dumps each module's disassembly to the log before it is
	// handed to the JIT.
	PrintIR bool

	moduleSeq int
	log       *logrus.Entry
}

// NewGlobalContext creates a session with its own JIT.
func NewGlobalContext(opts ...jit.Option) (*GlobalContext, error) {
	engine, err := jit.NewEngine(opts...)
	if err != nil {
		return nil, err
	}

	g := &GlobalContext{
		JIT:       engine,
		functions: make(map[string]*Function),
		globals:   make(map[string]*types.Type),
		log:       logrus.WithField("component", "codegen"),
	}
	g.GlobalModule = g.CreateModule("<global>")
	return g, nil
}

// Close releases the JIT.
func (g *GlobalContext) Close() {
	g.JIT.Close()
}

// CreateModule creates a fresh module context bound to this session.
func (g *GlobalContext) CreateModule(name string) *ModuleContext {
	if name == "" {
		name = defaultModuleName
	}
	g.moduleSeq++
	return &ModuleContext{
		Global: g,
		Module: ir.NewModule(fmt.Sprintf("%s#%d", name, g.moduleSeq)),
		B:      ir.NewBuilder(),
		Locals: make(map[string]*TypedValue),
	}
}

// AddModule hands a module context's module to the JIT.
func (g *GlobalContext) AddModule(mc *ModuleContext) error {
	m := mc.take()
	if g.PrintIR {
		fmt.Println(m)
	}
	return g.JIT.AddModule(m, nil)
}

// AddFunction registers function metadata under its symbol name.
func (g *GlobalContext) AddFunction(name string, fn *Function) {
	g.functions[name] = fn
}

// GetMetaFunction returns registered function metadata, or nil.
func (g *GlobalContext) GetMetaFunction(name string) *Function {
	return g.functions[name]
}

// FunctionNames returns all registered function names, sorted.
func (g *GlobalContext) FunctionNames() []string {
	names := make([]string, 0, len(g.functions))
	for name := range g.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetCurrentFunction positions the cursor used by return-type coercion.
func (g *GlobalContext) SetCurrentFunction(name string) {
	g.currentFunction = name
}

// ClearCurrentFunction resets the cursor.
func (g *GlobalContext) ClearCurrentFunction() {
	g.currentFunction = ""
}

// GetCurrentFunction returns the metadata of the function being lowered,
// or nil outside function bodies.
func (g *GlobalContext) GetCurrentFunction() *Function {
	if g.currentFunction == "" {
		return nil
	}
	return g.functions[g.currentFunction]
}

// HasGlobal reports whether a global variable is registered.
func (g *GlobalContext) HasGlobal(name string) bool {
	_, ok := g.globals[name]
	return ok
}

// GetGlobalType returns a registered global's type.
func (g *GlobalContext) GetGlobalType(name string) (*types.Type, error) {
	t, ok := g.globals[name]
	if !ok {
		return nil, errf("unknown global variable '%s'", name)
	}
	return t, nil
}

func (g *GlobalContext) registerGlobal(name string, t *types.Type) {
	g.globals[name] = t
}

// refreshGlobalModule replaces a consumed global module with an empty one.
// Previously registered globals and types stay in the registries and are
// re-imported into modules that reference them.
func (g *GlobalContext) refreshGlobalModule() {
	g.GlobalModule = g.CreateModule("<global>")
}

// RunFunction transfers the global module into the JIT under a fresh
// resource tracker, looks the function up, invokes it, and releases the
// tracker so the next REPL turn starts clean.
func (g *GlobalContext) RunFunction(name string) (jit.GenericValue, error) {
	rt := g.JIT.CreateResourceTracker()

	m := g.GlobalModule.take()
	if g.PrintIR {
		fmt.Println(m)
	}

	if err := g.JIT.AddModule(m, rt); err != nil {
		g.refreshGlobalModule()
		return jit.GenericValue{}, err
	}
	defer g.refreshGlobalModule()

	sym, err := g.JIT.Lookup(name)
	if err != nil {
		return jit.GenericValue{}, &CodegenError{Message: err.Error()}
	}

	class := jit.RetSigned
	if meta := g.GetMetaFunction(name); meta != nil {
		class = returnClass(meta.Return)
	}

	result, callErr := g.JIT.Call(sym, class)

	if err := rt.Remove(); err != nil {
		return jit.GenericValue{}, err
	}
	return result, callErr
}

// RunExpr wraps a top-level expression in a synthetic function inside the
// global module and runs it.
func (g *GlobalContext) RunExpr(expr ast.Node) (jit.GenericValue, error) {
	var body *ast.Block

	switch node := expr.(type) {
	case *ast.Block:
		if n := len(node.Body); n > 0 {
			if last := node.Body[n-1]; last.Kind() != ast.KindReturn {
				node.Body[n-1] = &ast.Return{Value: last}
			}
		}
		body = node
	case *ast.Return:
		body = &ast.Block{Body: []ast.Node{node}}
	default:
		body = &ast.Block{Body: []ast.Node{&ast.Return{Value: node}}}
	}

	exprType, err := genType(g.GlobalModule, expr, nil)
	if err != nil || exprType == nil {
		g.log.Warnf("can't infer %s return type, resorting to i32", AnonymousExprName)
		exprType = types.I32()
	}

	decl := &ast.FnDecl{
		Name:   &ast.Identifier{Name: AnonymousExprName},
		Return: typeExprOf(exprType),
	}

	if _, err := genFunction(g.GlobalModule, &ast.FnDef{Decl: decl, Body: body}); err != nil {
		return jit.GenericValue{}, err
	}

	return g.RunFunction(AnonymousExprName)
}

func returnClass(t *types.Type) jit.ReturnClass {
	switch {
	case t.IsVoid():
		return jit.RetVoid
	case t.IsFloat():
		return jit.RetFloating
	case t.IsSigned():
		return jit.RetSigned
	default:
		return jit.RetUnsigned
	}
}

// typeExprOf reconstructs a type expression for a meta type, used when
// synthesizing the REPL wrapper declaration.
func typeExprOf(t *types.Type) *ast.TypeExpr {
	if t.IsPointer() {
		return ast.PointerType(typeExprOf(t.Pointee()))
	}
	return ast.NamedType(t.Name())
}

// ModuleContext owns one compilation unit: its module, its IR builder and
// its local symbol table.
type ModuleContext struct {
	Global *GlobalContext
	Module *ir.Module
	B      *ir.Builder
	Locals map[string]*TypedValue
}

// take transfers the module out of the context; the context must not emit
// afterwards.
func (mc *ModuleContext) take() *ir.Module {
	m := mc.Module
	mc.Module = nil
	return m
}

// HasLocal reports whether a local is in scope.
func (mc *ModuleContext) HasLocal(name string) bool {
	_, ok := mc.Locals[name]
	return ok
}

// GetFunction resolves a callable: the local module's function if already
// declared there, else a declaration regenerated from the global registry
// into this module.
func (mc *ModuleContext) GetFunction(name string) (*ir.Function, error) {
	if fn := mc.Module.GetFunction(name); fn != nil {
		return fn, nil
	}

	meta := mc.Global.GetMetaFunction(name)
	if meta == nil {
		return nil, nil
	}

	return declareFunction(mc, meta), nil
}

// declareFunction emits an external declaration for a registered function
// into the given module.
func declareFunction(mc *ModuleContext, meta *Function) *ir.Function {
	params := make([]ir.Type, 0, meta.Args.Len())
	names := make([]string, 0, meta.Args.Len())
	for i := 0; i < meta.Args.Len(); i++ {
		argName, argType := meta.Args.At(i)
		params = append(params, argType.IRType())
		names = append(names, argName)
	}

	sig := ir.FuncType{Params: params, Ret: meta.Return.IRType(), Variadic: meta.Variadic()}
	fn := ir.NewFunction(meta.Name, sig, names, ir.External)
	mc.Module.AddFunction(fn)
	return fn
}
