// Package printer outputs xcc source from an AST.
//
// The output is canonical: parenthesized expressions and normalized
// whitespace, so printing a parsed tree and re-parsing the result yields a
// structurally equal tree.
package printer

import (
	"fmt"
	"strings"

	"github.com/xcc-lang/xcc/internal/ast"
)

// Printer outputs xcc source code.
type Printer struct {
	buf    strings.Builder
	indent int
}

// New creates a new printer.
func New() *Printer {
	return &Printer{}
}

// Print renders a top-level block as source text.
func (p *Printer) Print(block *ast.Block) string {
	p.buf.Reset()
	for _, node := range block.Body {
		p.printTopLevel(node)
	}
	return p.buf.String()
}

// PrintNode renders a single node.
func (p *Printer) PrintNode(n ast.Node) string {
	p.buf.Reset()
	p.printStmt(n)
	return p.buf.String()
}

func (p *Printer) print(s string) {
	p.buf.WriteString(s)
}

func (p *Printer) printIndent() {
	p.buf.WriteString(strings.Repeat("    ", p.indent))
}

func (p *Printer) printTopLevel(n ast.Node) {
	switch node := n.(type) {
	case *ast.VarDecl:
		p.printVarDecl(node)
		p.print(";\n")
	case *ast.FnDecl:
		p.printFnDecl(node)
		p.print(";\n")
	case *ast.FnDef:
		p.printFnDef(node)
	case *ast.Struct:
		p.printStruct(node)
	default:
		p.printStmt(n)
		if !strings.HasSuffix(p.buf.String(), "}") {
			p.print(";")
		}
		p.print("\n")
	}
}

// ----------------------------------------------------------------------------
// Declarations
// ----------------------------------------------------------------------------

func (p *Printer) printVarDecl(n *ast.VarDecl) {
	p.print("var " + n.Name.Name)
	if n.Type != nil {
		p.print(": ")
		p.printType(n.Type)
	}
	if n.Value != nil {
		p.print(" = ")
		p.printExpr(n.Value)
	}
}

func (p *Printer) printFnDecl(n *ast.FnDecl) {
	if n.Extern {
		p.print("extern ")
	}
	p.print("fn " + n.Name.Name + "(")
	for i, arg := range n.Args {
		if i > 0 {
			p.print(", ")
		}
		p.print(arg.Name.Name)
		if arg.Type != nil {
			p.print(": ")
			p.printType(arg.Type)
		}
	}
	if n.Variadic {
		if len(n.Args) > 0 {
			p.print(", ")
		}
		p.print("...")
	}
	p.print("): ")
	p.printType(n.Return)
}

func (p *Printer) printFnDef(n *ast.FnDef) {
	p.printFnDecl(n.Decl)
	p.print(" ")
	p.printBlock(n.Body)
	p.print("\n")
}

func (p *Printer) printStruct(n *ast.Struct) {
	p.print("struct " + n.Name.Name + " {\n")
	p.indent++
	for _, field := range n.Fields {
		p.printIndent()
		p.print(field.Name.Name)
		if field.Type != nil {
			p.print(": ")
			p.printType(field.Type)
		}
		p.print(";\n")
	}
	for _, method := range n.Methods {
		p.printIndent()
		p.printFnDef(method)
	}
	p.indent--
	p.print("}\n")
}

func (p *Printer) printType(t *ast.TypeExpr) {
	if t.Pointer {
		p.printType(t.Inner)
		p.print("*")
		return
	}
	p.print(t.Name.Name)
}

// ----------------------------------------------------------------------------
// Statements
// ----------------------------------------------------------------------------

func (p *Printer) printStmt(n ast.Node) {
	switch node := n.(type) {
	case *ast.VarDecl:
		p.printVarDecl(node)
	case *ast.Block:
		p.printBlock(node)
	case *ast.If:
		p.print("if (")
		p.printExpr(node.Cond)
		p.print(") ")
		p.printStmt(node.Then)
		if node.Else != nil {
			p.print(" else ")
			p.printStmt(node.Else)
		}
	case *ast.For:
		p.print("for (")
		p.printVarDecl(node.Init)
		p.print("; ")
		p.printExpr(node.Cond)
		p.print("; ")
		p.printExpr(node.Step)
		p.print(") ")
		p.printStmt(node.Body)
	case *ast.While:
		p.print("while (")
		p.printExpr(node.Cond)
		p.print(") ")
		p.printStmt(node.Body)
	case *ast.Return:
		p.print("return")
		if node.Value != nil {
			p.print(" ")
			p.printExpr(node.Value)
		}
	default:
		p.printExpr(n)
	}
}

func (p *Printer) printBlock(n *ast.Block) {
	p.print("{\n")
	p.indent++
	for _, stmt := range n.Body {
		p.printIndent()
		p.printStmt(stmt)
		// A statement ending in '}' terminates itself without ';'.
		if rendered := p.buf.String(); strings.HasSuffix(rendered, "}") {
			p.print("\n")
		} else {
			p.print(";\n")
		}
	}
	p.indent--
	p.printIndent()
	p.print("}")
}

// ----------------------------------------------------------------------------
// Expressions
// ----------------------------------------------------------------------------

func (p *Printer) printExpr(n ast.Node) {
	switch node := n.(type) {
	case *ast.Number:
		if node.Tag == ast.Floating {
			s := fmt.Sprintf("%g", node.Float)
			if !strings.ContainsAny(s, ".e") {
				s += ".0"
			}
			p.print(s)
		} else {
			p.print(fmt.Sprintf("%d", node.Int))
		}

	case *ast.String:
		p.print(quote(node.Value))

	case *ast.Identifier:
		p.print(node.Name)

	case *ast.Binary:
		p.print("(")
		p.printExpr(node.LHS)
		p.print(" " + node.Op.Kind.String() + " ")
		p.printExpr(node.RHS)
		p.print(")")

	case *ast.Unary:
		p.print(node.Op.Kind.String())
		p.printExpr(node.RHS)

	case *ast.Assign:
		p.printExpr(node.LHS)
		p.print(" " + node.Op.Kind.String() + " ")
		p.printExpr(node.RHS)

	case *ast.Cast:
		p.print("(")
		p.printExpr(node.Expr)
		p.print(" as ")
		p.printType(node.Type)
		p.print(")")

	case *ast.Subscript:
		p.printExpr(node.Base)
		p.print("[")
		p.printExpr(node.Index)
		p.print("]")

	case *ast.MemberAccess:
		p.printExpr(node.LHS)
		if node.Access == ast.ByPointer {
			p.print("->")
		} else {
			p.print(".")
		}
		p.print(node.Member.Name)

	case *ast.Call:
		p.printExpr(node.Callee)
		p.print("(")
		for i, arg := range node.Args {
			if i > 0 {
				p.print(", ")
			}
			p.printExpr(arg)
		}
		p.print(")")

	default:
		p.print("/*" + n.Kind().String() + "*/")
	}
}

func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\n':
			sb.WriteString("\\n")
		case '\r':
			sb.WriteString("\\r")
		case '\t':
			sb.WriteString("\\t")
		case '\b':
			sb.WriteString("\\b")
		case 0:
			sb.WriteString("\\0")
		case '"':
			sb.WriteString("\\\"")
		case '\\':
			sb.WriteString("\\\\")
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// Dump renders a node tree with kind labels, one node per line, for the
// --print-ast debugging surface.
func Dump(n ast.Node) string {
	var sb strings.Builder
	dumpNode(&sb, n, 0)
	return sb.String()
}

func dumpNode(sb *strings.Builder, n ast.Node, depth int) {
	if n == nil {
		return
	}

	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(n.Kind().String())

	switch node := n.(type) {
	case *ast.Identifier:
		sb.WriteString(" " + node.Name)
	case *ast.Number:
		if node.Tag == ast.Floating {
			fmt.Fprintf(sb, " %g", node.Float)
		} else {
			fmt.Fprintf(sb, " %d", node.Int)
		}
	case *ast.String:
		sb.WriteString(" " + quote(node.Value))
	case *ast.Binary:
		sb.WriteString(" " + node.Op.Kind.String())
	case *ast.Unary:
		sb.WriteString(" " + node.Op.Kind.String())
	case *ast.Assign:
		sb.WriteString(" " + node.Op.Kind.String())
	case *ast.VarDecl:
		sb.WriteString(" " + node.Name.Name)
	case *ast.Struct:
		sb.WriteString(" " + node.Name.Name)
	case *ast.FnDecl:
		sb.WriteString(" " + node.Name.Name)
	case *ast.FnDef:
		sb.WriteString(" " + node.Decl.Name.Name)
	}
	sb.WriteByte('\n')

	for _, child := range children(n) {
		dumpNode(sb, child, depth+1)
	}
}

func children(n ast.Node) []ast.Node {
	switch node := n.(type) {
	case *ast.Binary:
		return []ast.Node{node.LHS, node.RHS}
	case *ast.Unary:
		return []ast.Node{node.RHS}
	case *ast.Assign:
		return []ast.Node{node.LHS, node.RHS}
	case *ast.Cast:
		return []ast.Node{node.Expr}
	case *ast.Subscript:
		return []ast.Node{node.Base, node.Index}
	case *ast.MemberAccess:
		return []ast.Node{node.LHS, node.Member}
	case *ast.Call:
		out := []ast.Node{node.Callee}
		out = append(out, node.Args...)
		return out
	case *ast.Block:
		return node.Body
	case *ast.VarDecl:
		if node.Value != nil {
			return []ast.Node{node.Value}
		}
	case *ast.FnDef:
		return []ast.Node{node.Decl, node.Body}
	case *ast.Struct:
		var out []ast.Node
		for _, m := range node.Methods {
			out = append(out, m)
		}
		return out
	case *ast.If:
		out := []ast.Node{node.Cond, node.Then}
		if node.Else != nil {
			out = append(out, node.Else)
		}
		return out
	case *ast.For:
		return []ast.Node{node.Init, node.Cond, node.Step, node.Body}
	case *ast.While:
		return []ast.Node{node.Cond, node.Body}
	case *ast.Return:
		if node.Value != nil {
			return []ast.Node{node.Value}
		}
	}
	return nil
}
