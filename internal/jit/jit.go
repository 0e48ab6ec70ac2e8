// Package jit provides the execution engine behind the code generator: an
// ORC-style session that accepts IR modules, tracks their symbols, and
// resolves lookups against previously added modules and the host process.
//
// Modules handed to AddModule are finalized on a worker pool (function
// verification fans out through an errgroup, globals are materialized into
// the engine's memory) before the call returns, so definitions become
// visible to lookups exactly when AddModule reports success.
package jit

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/xcc-lang/xcc/internal/ir"
)

// DefaultPoolSize bounds concurrent module finalization.
const DefaultPoolSize = 4

// Symbol is a resolved definition: either a JITted function or a host
// function.
type Symbol struct {
	Name string
	Func *ir.Function
	Host HostFunc
}

// ResourceTracker groups modules added through it so their symbols can be
// released together.
type ResourceTracker struct {
	ID    string
	eng   *Engine
	names []string
}

// Remove dematerializes the tracker's function symbols from the engine.
// Data symbols stay: addresses of globals and string constants may be held
// by live pointers in other modules.
func (rt *ResourceTracker) Remove() error {
	if rt.eng == nil {
		return fmt.Errorf("resource tracker %s already removed", rt.ID)
	}
	rt.eng.removeTracker(rt)
	rt.eng = nil
	return nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithStdout redirects output of host print functions.
func WithStdout(w io.Writer) Option {
	return func(e *Engine) { e.stdout = w }
}

// WithPoolSize sets the finalization pool size.
func WithPoolSize(n int) Option {
	return func(e *Engine) { e.poolSize = n }
}

// Engine is the JIT session.
type Engine struct {
	mu sync.Mutex

	mem      *Memory
	funcs    map[string]*ir.Function
	globals  map[string]uint64
	host     map[string]HostFunc
	bindings map[string]Symbol // installed resolutions, absolute

	pool     *ants.Pool
	poolSize int

	stdout io.Writer
	log    *logrus.Entry
}

// NewEngine creates a JIT session with the default host symbols loaded.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		mem:      NewMemory(),
		funcs:    make(map[string]*ir.Function),
		globals:  make(map[string]uint64),
		host:     defaultHostSymbols(),
		bindings: make(map[string]Symbol),
		poolSize: DefaultPoolSize,
		stdout:   os.Stdout,
		log:      logrus.WithField("component", "jit"),
	}

	for _, opt := range opts {
		opt(e)
	}

	pool, err := ants.NewPool(e.poolSize)
	if err != nil {
		return nil, fmt.Errorf("creating compile pool: %w", err)
	}
	e.pool = pool

	return e, nil
}

// Close releases the compile pool.
func (e *Engine) Close() {
	e.pool.Release()
}

// RegisterHostSymbol installs a native function under the given name.
func (e *Engine) RegisterHostSymbol(name string, fn HostFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.host[name] = fn
}

// CreateResourceTracker returns a tracker that groups subsequently added
// modules for joint release.
func (e *Engine) CreateResourceTracker() *ResourceTracker {
	return &ResourceTracker{ID: "rt-" + uuid.NewString(), eng: e}
}

// AddModule hands a module to the engine. Ownership transfers: the caller
// must not emit into the module afterwards. When rt is nil the module's
// symbols live for the session.
func (e *Engine) AddModule(m *ir.Module, rt *ResourceTracker) error {
	done := make(chan error, 1)

	submitErr := e.pool.Submit(func() {
		done <- e.finalize(m, rt)
	})
	if submitErr != nil {
		return fmt.Errorf("submitting module %s: %w", m.ModuleName, submitErr)
	}

	return <-done
}

func (e *Engine) finalize(m *ir.Module, rt *ResourceTracker) error {
	// Verify defined functions concurrently; any failure rejects the
	// whole module before symbols become visible.
	var g errgroup.Group
	for _, fn := range m.Functions() {
		fn := fn
		g.Go(func() error {
			return ir.VerifyFunction(fn)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, gv := range m.Globals() {
		if gv.External {
			continue
		}
		if _, exists := e.globals[gv.GlobalName]; exists {
			// A re-added definition reuses the original storage so
			// addresses held across REPL turns stay valid.
			continue
		}
		addr := e.mem.AllocGlobal(gv.Elem.Size())
		if err := e.mem.materialize(addr, gv.Init); err != nil {
			return fmt.Errorf("materializing global %s: %w", gv.GlobalName, err)
		}
		e.globals[gv.GlobalName] = addr
	}

	for _, fn := range m.Functions() {
		if fn.IsDeclaration() {
			continue
		}
		e.funcs[fn.FuncName] = fn
		delete(e.bindings, fn.FuncName)
		if rt != nil {
			rt.names = append(rt.names, fn.FuncName)
		}
	}

	return nil
}

func (e *Engine) removeTracker(rt *ResourceTracker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, name := range rt.names {
		delete(e.funcs, name)
		delete(e.bindings, name)
	}
	rt.names = nil
}

// Lookup resolves a symbol by name against the session's own definitions
// first, then the host process.
func (e *Engine) Lookup(name string) (Symbol, error) {
	return e.resolve(name)
}

// resolve implements the generator chain: dylib-defined symbols first (for
// functions defined by other JITted modules), then host-process symbols.
// Successful host resolutions are installed as absolute bindings.
func (e *Engine) resolve(name string) (Symbol, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sym, ok := e.bindings[name]; ok {
		return sym, nil
	}
	if fn, ok := e.funcs[name]; ok {
		return Symbol{Name: name, Func: fn}, nil
	}
	if host, ok := e.host[name]; ok {
		sym := Symbol{Name: name, Host: host}
		e.bindings[name] = sym
		e.log.Debugf("resolved '%s' against host process", name)
		return sym, nil
	}

	return Symbol{}, fmt.Errorf("unable to resolve symbol %s", name)
}

func (e *Engine) globalAddr(g *ir.Global) (uint64, error) {
	e.mu.Lock()
	addr, ok := e.globals[g.GlobalName]
	e.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("unable to resolve symbol %s", g.GlobalName)
	}
	return addr, nil
}

// ----------------------------------------------------------------------------
// Invocation
// ----------------------------------------------------------------------------

// ReturnClass tells Call how to interpret the raw return payload.
type ReturnClass uint8

const (
	RetVoid ReturnClass = iota
	RetSigned
	RetUnsigned
	RetFloating
)

// GenericTag discriminates GenericValue.
type GenericTag uint8

const (
	GenericVoid GenericTag = iota
	GenericSigned
	GenericUnsigned
	GenericFloating
)

// GenericValue is a typed function result.
type GenericValue struct {
	Tag      GenericTag
	Signed   int64
	Unsigned uint64
	Floating float64
}

func (v GenericValue) String() string {
	switch v.Tag {
	case GenericSigned:
		return fmt.Sprintf("%d", v.Signed)
	case GenericUnsigned:
		return fmt.Sprintf("%d", v.Unsigned)
	case GenericFloating:
		return fmt.Sprintf("%g", v.Floating)
	}
	return ""
}

// Call invokes a previously looked-up symbol with no arguments and
// interprets the result according to class.
func (e *Engine) Call(sym Symbol, class ReturnClass) (GenericValue, error) {
	x := &executor{eng: e, env: &Env{Mem: e.mem, Stdout: e.stdout}}

	var raw uint64
	var retType ir.Type = ir.Void
	var err error

	switch {
	case sym.Func != nil:
		raw, err = x.run(sym.Func, nil)
		retType = sym.Func.Sig.Ret
	case sym.Host != nil:
		raw, err = sym.Host(x.env, nil)
		retType = ir.I64
	default:
		err = fmt.Errorf("cannot call unresolved symbol %s", sym.Name)
	}
	if err != nil {
		return GenericValue{}, err
	}

	switch class {
	case RetSigned:
		width := 64
		if it, ok := retType.(ir.IntType); ok {
			width = it.Bits
		}
		return GenericValue{Tag: GenericSigned, Signed: int64(ir.SignExtend(raw, width))}, nil
	case RetUnsigned:
		return GenericValue{Tag: GenericUnsigned, Unsigned: raw}, nil
	case RetFloating:
		return GenericValue{Tag: GenericFloating, Floating: floatOf(raw, retType)}, nil
	}
	return GenericValue{Tag: GenericVoid}, nil
}
