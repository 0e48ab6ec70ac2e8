package codegen

import (
	"github.com/xcc-lang/xcc/internal/ast"
	"github.com/xcc-lang/xcc/internal/jit"
	"github.com/xcc-lang/xcc/internal/lexer"
	"github.com/xcc-lang/xcc/internal/parser"
)

// RunResult is the outcome of one driver run.
type RunResult struct {
	// Value is the evaluated result: main's return value in whole-program
	// mode, the wrapped expression's value in REPL mode.
	Value jit.GenericValue
	// HasValue is false for REPL turns that only define things.
	HasValue bool
}

// Run compiles and executes one source unit against the session.
//
// Top-level items partition into function declarations/definitions (each
// compiled into its own module and handed to the JIT), globals and struct
// definitions (materialized into the global module), and, in REPL mode,
// leftover statements (wrapped into a synthetic function and executed).
// Whole-program mode finishes by invoking main.
func Run(g *GlobalContext, source string, isRepl bool) (RunResult, error) {
	tokens, err := lexer.New(source).Tokenize()
	if err != nil {
		return RunResult{}, err
	}

	tree, err := parser.New(tokens).Parse(isRepl)
	if err != nil {
		return RunResult{}, err
	}

	var fnNodes []ast.Node
	var exprNodes []ast.Node

	for _, node := range tree.Body {
		switch node.Kind() {
		case ast.KindFnDecl, ast.KindFnDef:
			fnNodes = append(fnNodes, node)

		case ast.KindVarDecl:
			if _, err := genValue(g.GlobalModule, node, nil); err != nil {
				return RunResult{}, err
			}

		case ast.KindStruct:
			if _, err := genType(g.GlobalModule, node, nil); err != nil {
				return RunResult{}, err
			}

		default:
			if !isRepl {
				return RunResult{}, errf("unexpected node at top-level scope: %s", node.Kind())
			}
			exprNodes = append(exprNodes, node)
		}
	}

	for _, node := range fnNodes {
		mc := g.CreateModule(functionName(node))
		if _, err := genFunction(mc, node); err != nil {
			return RunResult{}, err
		}
		if err := g.AddModule(mc); err != nil {
			return RunResult{}, err
		}
	}

	if isRepl {
		if len(exprNodes) == 0 {
			return RunResult{}, nil
		}
		value, err := g.RunExpr(&ast.Block{Body: exprNodes})
		if err != nil {
			return RunResult{}, err
		}
		return RunResult{Value: value, HasValue: true}, nil
	}

	value, err := g.RunFunction("main")
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{Value: value, HasValue: true}, nil
}

func functionName(n ast.Node) string {
	switch node := n.(type) {
	case *ast.FnDecl:
		return node.Name.Name
	case *ast.FnDef:
		return node.Decl.Name.Name
	}
	return defaultModuleName
}
