// Package api provides the public API for embedding the xcc compiler and
// evaluator. For CLI usage, see cmd/xcc.
package api

import (
	"fmt"

	"github.com/xcc-lang/xcc/internal/codegen"
	"github.com/xcc-lang/xcc/internal/jit"
	"github.com/xcc-lang/xcc/internal/lexer"
	"github.com/xcc-lang/xcc/internal/parser"
	"github.com/xcc-lang/xcc/internal/printer"
)

// Options configures a session.
type Options struct {
	// PrintTokens dumps the token stream of each evaluated unit.
	PrintTokens bool

	// PrintAST dumps the parsed tree of each evaluated unit.
	PrintAST bool

	// PrintIR dumps each module's IR before it reaches the JIT.
	PrintIR bool

	// PoolSize bounds the JIT's module finalization pool; 0 uses the
	// engine default.
	PoolSize int
}

// ValueKind discriminates evaluation results.
type ValueKind uint8

const (
	ValueNone ValueKind = iota
	ValueSigned
	ValueUnsigned
	ValueFloating
)

// Value is the typed result of an evaluation.
type Value struct {
	Kind     ValueKind
	Signed   int64
	Unsigned uint64
	Floating float64
}

// String renders the value the way the REPL prints it.
func (v Value) String() string {
	switch v.Kind {
	case ValueSigned:
		return fmt.Sprintf("%d", v.Signed)
	case ValueUnsigned:
		return fmt.Sprintf("%d", v.Unsigned)
	case ValueFloating:
		return fmt.Sprintf("%g", v.Floating)
	}
	return ""
}

// Session is a compilation session: functions, globals and types defined
// by earlier evaluations stay visible to later ones.
type Session struct {
	global *codegen.GlobalContext
	opts   Options
}

// NewSession creates a session with a fresh JIT.
func NewSession(opts Options) (*Session, error) {
	var jitOpts []jit.Option
	if opts.PoolSize > 0 {
		jitOpts = append(jitOpts, jit.WithPoolSize(opts.PoolSize))
	}

	global, err := codegen.NewGlobalContext(jitOpts...)
	if err != nil {
		return nil, err
	}
	global.PrintIR = opts.PrintIR

	return &Session{global: global, opts: opts}, nil
}

// Close releases the session's JIT.
func (s *Session) Close() {
	s.global.Close()
}

// Eval compiles one REPL entry, retaining definitions across calls, and
// returns the value of any trailing expression.
func (s *Session) Eval(source string) (Value, bool, error) {
	return s.run(source, true)
}

// RunProgram compiles a whole program and invokes its main function.
func (s *Session) RunProgram(source string) (Value, bool, error) {
	return s.run(source, false)
}

func (s *Session) run(source string, isRepl bool) (Value, bool, error) {
	if err := s.debugDump(source, isRepl); err != nil {
		return Value{}, false, err
	}

	result, err := codegen.Run(s.global, source, isRepl)
	if err != nil {
		return Value{}, false, err
	}
	return fromGeneric(result.Value), result.HasValue, nil
}

// Functions returns the declared signature of every registered function,
// sorted by name. The REPL's /list command prints these.
func (s *Session) Functions() []string {
	names := s.global.FunctionNames()
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, s.global.GetMetaFunction(name).String())
	}
	return out
}

func (s *Session) debugDump(source string, isRepl bool) error {
	if !s.opts.PrintTokens && !s.opts.PrintAST {
		return nil
	}

	tokens, err := lexer.New(source).Tokenize()
	if err != nil {
		return err
	}

	if s.opts.PrintTokens {
		for _, tok := range tokens {
			fmt.Printf("%-12s %q\n", tok.Kind, tok.String())
		}
	}

	if s.opts.PrintAST {
		tree, err := parser.New(tokens).Parse(isRepl)
		if err != nil {
			return err
		}
		fmt.Print(printer.Dump(tree))
	}

	return nil
}

func fromGeneric(v jit.GenericValue) Value {
	switch v.Tag {
	case jit.GenericSigned:
		return Value{Kind: ValueSigned, Signed: v.Signed}
	case jit.GenericUnsigned:
		return Value{Kind: ValueUnsigned, Unsigned: v.Unsigned}
	case jit.GenericFloating:
		return Value{Kind: ValueFloating, Floating: v.Floating}
	}
	return Value{Kind: ValueNone}
}
