package codegen

import (
	"fmt"
	"hash/fnv"

	"github.com/sirupsen/logrus"

	"github.com/xcc-lang/xcc/internal/ast"
	"github.com/xcc-lang/xcc/internal/ir"
	"github.com/xcc-lang/xcc/internal/lexer"
	"github.com/xcc-lang/xcc/internal/types"
)

var lowerLog = logrus.WithField("component", "codegen")

// The lowering hooks. Each dispatches on the node kind; the payload list
// carries node-addressed hints (currently only the Number bit-width hint).
//
//   genValue     - rvalue of an expression
//   genAddr      - lvalue (address), for assignment targets and '&'
//   genType      - meta type of genValue without emitting
//   genAddrType  - meta type of the address
//   genFunction  - backend function, FnDecl/FnDef only

// mustValue unwraps a lowered operand, turning a nil value into an error.
func mustValue(v ir.Value, err error) (ir.Value, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errf("expression generated no value")
	}
	return v, nil
}

// mustType unwraps a lowered operand type, turning nil into an error.
func mustType(t *types.Type, err error) (*types.Type, error) {
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errf("expression has no type")
	}
	return t, nil
}

// ----------------------------------------------------------------------------
// genValue
// ----------------------------------------------------------------------------

func genValue(mc *ModuleContext, n ast.Node, payload []ast.Payload) (ir.Value, error) {
	switch node := n.(type) {
	case *ast.Number:
		return numberValue(node, payload)
	case *ast.String:
		return stringValue(mc, node)
	case *ast.Identifier:
		return identifierValue(mc, node)
	case *ast.Binary:
		return binaryValue(mc, node)
	case *ast.Unary:
		return unaryValue(mc, node)
	case *ast.Subscript:
		return subscriptValue(mc, node)
	case *ast.MemberAccess:
		return memberValue(mc, node)
	case *ast.Assign:
		return assignValue(mc, node)
	case *ast.Call:
		return callValue(mc, node)
	case *ast.Cast:
		return castNodeValue(mc, node)
	case *ast.Block:
		return blockValue(mc, node)
	case *ast.VarDecl:
		return varDeclValue(mc, node)
	case *ast.If:
		return ifValue(mc, node)
	case *ast.For:
		return forValue(mc, node)
	case *ast.While:
		return whileValue(mc, node)
	case *ast.Return:
		return returnValue(mc, node)
	}

	lowerLog.Warnf("no value lowering for %s node", n.Kind())
	return nil, nil
}

// ----------------------------------------------------------------------------
// genAddr
// ----------------------------------------------------------------------------

func genAddr(mc *ModuleContext, n ast.Node, payload []ast.Payload) (ir.Value, error) {
	switch node := n.(type) {
	case *ast.Identifier:
		return identifierAddr(mc, node)
	case *ast.Unary:
		return unaryAddr(mc, node)
	case *ast.Subscript:
		return subscriptAddr(mc, node)
	case *ast.MemberAccess:
		return memberAddr(mc, node)
	case *ast.String:
		return stringValue(mc, node)
	case *ast.Number:
		return numberValue(node, payload)
	}

	lowerLog.Warnf("no address lowering for %s node", n.Kind())
	return nil, nil
}

// ----------------------------------------------------------------------------
// genType
// ----------------------------------------------------------------------------

func genType(mc *ModuleContext, n ast.Node, payload []ast.Payload) (*types.Type, error) {
	switch node := n.(type) {
	case *ast.Number:
		return numberType(node, payload), nil
	case *ast.String:
		return types.Pointer(types.I8()), nil
	case *ast.Identifier:
		return identifierType(mc, node)
	case *ast.Binary:
		return binaryType(mc, node)
	case *ast.Unary:
		return unaryType(mc, node)
	case *ast.Subscript:
		return subscriptType(mc, node)
	case *ast.MemberAccess:
		return memberType(mc, node)
	case *ast.Assign:
		return genAddrType(mc, node.LHS, nil)
	case *ast.Call:
		return callType(mc, node)
	case *ast.Cast:
		return typeFromExpr(node.Type)
	case *ast.Block:
		if len(node.Body) == 0 {
			return types.Void(), nil
		}
		return genType(mc, node.Body[len(node.Body)-1], nil)
	case *ast.VarDecl:
		return varDeclType(mc, node)
	case *ast.TypedIdent:
		if node.Type == nil {
			return nil, errf("argument '%s' has no declared type", node.Name.Name)
		}
		return typeFromExpr(node.Type)
	case *ast.TypeExpr:
		return typeFromExpr(node)
	case *ast.If:
		return ifType(mc, node)
	case *ast.Return:
		if node.Value == nil {
			return types.Void(), nil
		}
		return genType(mc, node.Value, nil)
	case *ast.Struct:
		return structType(mc, node)
	}

	lowerLog.Warnf("no type lowering for %s node", n.Kind())
	return nil, nil
}

// ----------------------------------------------------------------------------
// genAddrType
// ----------------------------------------------------------------------------

func genAddrType(mc *ModuleContext, n ast.Node, payload []ast.Payload) (*types.Type, error) {
	switch node := n.(type) {
	case *ast.Identifier:
		return identifierType(mc, node)
	case *ast.Unary:
		// *p as an lvalue types as the pointee.
		t, err := mustType(genType(mc, node.RHS, nil))
		if err != nil {
			return nil, err
		}
		if !t.IsPointer() {
			return nil, errOnLine(node.Op.Line, "value is not a pointer (unary '*' operator)")
		}
		return t.Pointee(), nil
	case *ast.Subscript:
		return subscriptType(mc, node)
	case *ast.MemberAccess:
		return memberType(mc, node)
	}

	return genType(mc, n, payload)
}

// ----------------------------------------------------------------------------
// Literals
// ----------------------------------------------------------------------------

func numberBits(payload []ast.Payload) int {
	if p, ok := ast.SelectPayload(payload, ast.KindNumber); ok {
		return p.(ast.NumberBits).Bits
	}
	return 64
}

func numberValue(n *ast.Number, payload []ast.Payload) (ir.Value, error) {
	bits := numberBits(payload)

	if n.Tag == ast.Floating {
		if bits == 32 {
			return ir.ConstFloat(ir.F32, n.Float), nil
		}
		return ir.ConstFloat(ir.F64, n.Float), nil
	}
	return ir.ConstInt(ir.IntType{Bits: bits}, n.Int), nil
}

func numberType(n *ast.Number, payload []ast.Payload) *types.Type {
	bits := numberBits(payload)
	if n.Tag == ast.Floating {
		return types.Floating(bits)
	}
	return types.Signed(bits)
}

// stringValue lowers a string literal by content-addressed deduplication:
// the decoded bytes become a NUL-terminated constant array in the global
// module, named by content hash; the referencing module declares the same
// name as an external global and takes the address of element 0.
func stringValue(mc *ModuleContext, n *ast.String) (ir.Value, error) {
	h := fnv.New64a()
	h.Write([]byte(n.Value))
	name := fmt.Sprintf(".str.%x", h.Sum64())

	data := append([]byte(n.Value), 0)
	arrayType := ir.ArrayType{Elem: ir.I8, Len: len(data)}

	globalModule := mc.Global.GlobalModule.Module
	if globalModule.GetGlobal(name) == nil {
		globalModule.AddGlobal(&ir.Global{
			GlobalName: name,
			Elem:       arrayType,
			Init:       ir.BytesInit{Data: data},
		})
	}

	extern := mc.Module.GetOrInsertGlobal(name, arrayType)
	return mc.B.CreateInBoundsGEP(ir.I8, extern, ir.ConstInt(ir.I32, 0), "str_ptr"), nil
}

// ----------------------------------------------------------------------------
// Identifier
// ----------------------------------------------------------------------------

func identifierAddr(mc *ModuleContext, n *ast.Identifier) (ir.Value, error) {
	if local, ok := mc.Locals[n.Name]; ok {
		return local.Slot, nil
	}
	if mc.Global.HasGlobal(n.Name) {
		t, err := mc.Global.GetGlobalType(n.Name)
		if err != nil {
			return nil, err
		}
		return mc.Module.GetOrInsertGlobal(n.Name, t.IRType()), nil
	}
	return nil, errf("undeclared value referenced: '%s'", n.Name)
}

func identifierValue(mc *ModuleContext, n *ast.Identifier) (ir.Value, error) {
	addr, err := identifierAddr(mc, n)
	if err != nil {
		return nil, err
	}
	t, err := identifierType(mc, n)
	if err != nil {
		return nil, err
	}
	return mc.B.CreateLoad(t.IRType(), addr, n.Name), nil
}

func identifierType(mc *ModuleContext, n *ast.Identifier) (*types.Type, error) {
	if local, ok := mc.Locals[n.Name]; ok {
		return local.Type, nil
	}
	if mc.Global.HasGlobal(n.Name) {
		return mc.Global.GetGlobalType(n.Name)
	}
	return nil, errf("undeclared value referenced: '%s'", n.Name)
}

// ----------------------------------------------------------------------------
// Binary
// ----------------------------------------------------------------------------

func binaryValue(mc *ModuleContext, n *ast.Binary) (ir.Value, error) {
	common, err := binaryType(mc, n)
	if err != nil {
		return nil, err
	}

	// Pointer arithmetic and comparison widen to u64.
	if common.IsPointer() {
		common = types.U64()
	}

	lhs, err := mustValue(genValue(mc, n.LHS, nil))
	if err != nil {
		return nil, err
	}
	if lhs, err = CastIfNotSame(mc, lhs, common.IRType()); err != nil {
		return nil, err
	}

	rhs, err := mustValue(genValue(mc, n.RHS, nil))
	if err != nil {
		return nil, err
	}
	if rhs, err = CastIfNotSame(mc, rhs, common.IRType()); err != nil {
		return nil, err
	}

	entry := FindBinOp(binOps, MetaFromType(n.Op.Kind, common))
	if entry == nil {
		return nil, errOnLine(n.Op.Line,
			"unsupported binary expression operator or type (op=%s type=%s)", n.Op, common)
	}

	return entry.Emit(mc.B, lhs, rhs, entry.Twine), nil
}

func binaryType(mc *ModuleContext, n *ast.Binary) (*types.Type, error) {
	lhs, err := mustType(genType(mc, n.LHS, nil))
	if err != nil {
		return nil, err
	}
	rhs, err := mustType(genType(mc, n.RHS, nil))
	if err != nil {
		return nil, err
	}
	return types.Align(lhs, rhs), nil
}

// ----------------------------------------------------------------------------
// Unary
// ----------------------------------------------------------------------------

func unaryValue(mc *ModuleContext, n *ast.Unary) (ir.Value, error) {
	switch n.Op.Kind {
	case lexer.TokStar:
		t, err := genAddrType(mc, n, nil)
		if err != nil {
			return nil, err
		}
		addr, err := unaryAddr(mc, n)
		if err != nil {
			return nil, err
		}
		return mc.B.CreateLoad(t.IRType(), addr, "dereferenced"), nil

	case lexer.TokAmp:
		return unaryAddr(mc, n)

	case lexer.TokMinus:
		v, err := mustValue(genValue(mc, n.RHS, nil))
		if err != nil {
			return nil, err
		}
		if ir.IsFloat(v.Type()) {
			return mc.B.CreateFNeg(v, "negftmp"), nil
		}
		return mc.B.CreateNeg(v, "negtmp"), nil

	case lexer.TokBang:
		v, err := mustValue(genValue(mc, n.RHS, nil))
		if err != nil {
			return nil, err
		}
		return mc.B.CreateNot(v, "nottmp"), nil
	}

	return nil, errOnLine(n.Op.Line, "unsupported unary expression operator '%s'", n.Op)
}

func unaryAddr(mc *ModuleContext, n *ast.Unary) (ir.Value, error) {
	switch n.Op.Kind {
	case lexer.TokAmp:
		id, ok := n.RHS.(*ast.Identifier)
		if !ok {
			return nil, errOnLine(n.Op.Line, "invalid RHS node for unary operator '&'")
		}
		return identifierAddr(mc, id)

	case lexer.TokStar:
		t, err := mustType(genType(mc, n.RHS, nil))
		if err != nil {
			return nil, err
		}
		if !t.IsPointer() {
			return nil, errOnLine(n.Op.Line, "value is not a pointer (unary '*' operator)")
		}
		return mustValue(genValue(mc, n.RHS, nil))
	}

	return nil, errOnLine(n.Op.Line, "unsupported unary operator '%s' for address generation", n.Op)
}

func unaryType(mc *ModuleContext, n *ast.Unary) (*types.Type, error) {
	inner, err := mustType(genType(mc, n.RHS, nil))
	if err != nil {
		return nil, err
	}

	switch n.Op.Kind {
	case lexer.TokAmp:
		return types.Pointer(inner), nil
	case lexer.TokStar:
		if !inner.IsPointer() {
			return nil, errOnLine(n.Op.Line, "value is not a pointer (unary '*' operator)")
		}
		return inner.Pointee(), nil
	}
	return inner, nil
}

// ----------------------------------------------------------------------------
// Subscript
// ----------------------------------------------------------------------------

func subscriptAddr(mc *ModuleContext, n *ast.Subscript) (ir.Value, error) {
	baseType, err := mustType(genType(mc, n.Base, nil))
	if err != nil {
		return nil, err
	}
	indexType, err := mustType(genType(mc, n.Index, nil))
	if err != nil {
		return nil, err
	}

	if !baseType.IsPointer() {
		return nil, errf("type '%s' is not subscriptable", baseType)
	}
	if !indexType.IsInteger() {
		return nil, errf("type '%s' is not valid for subscript index", indexType)
	}

	base, err := mustValue(genValue(mc, n.Base, nil))
	if err != nil {
		return nil, err
	}
	index, err := mustValue(genValue(mc, n.Index, nil))
	if err != nil {
		return nil, err
	}

	return mc.B.CreateGEP(baseType.Pointee().IRType(), base, index, "element_ptr"), nil
}

func subscriptValue(mc *ModuleContext, n *ast.Subscript) (ir.Value, error) {
	elemType, err := subscriptType(mc, n)
	if err != nil {
		return nil, err
	}
	addr, err := subscriptAddr(mc, n)
	if err != nil {
		return nil, err
	}
	return mc.B.CreateLoad(elemType.IRType(), addr, "element"), nil
}

func subscriptType(mc *ModuleContext, n *ast.Subscript) (*types.Type, error) {
	baseType, err := mustType(genType(mc, n.Base, nil))
	if err != nil {
		return nil, err
	}
	if !baseType.IsPointer() {
		return nil, errf("type '%s' is not subscriptable", baseType)
	}
	return baseType.Pointee(), nil
}

// ----------------------------------------------------------------------------
// MemberAccess
// ----------------------------------------------------------------------------

// memberBase resolves the struct type and base address of a member access.
// By-value access uses the lhs lvalue directly; by-pointer access loads
// the lhs once, so chained '->' steps insert one dereference each.
func memberBase(mc *ModuleContext, n *ast.MemberAccess) (*types.Type, ir.Value, error) {
	if n.Access == ast.ByValue {
		t, err := mustType(genAddrType(mc, n.LHS, nil))
		if err != nil {
			return nil, nil, err
		}
		base, err := mustValue(genAddr(mc, n.LHS, nil))
		if err != nil {
			return nil, nil, err
		}
		return t, base, nil
	}

	t, err := mustType(genType(mc, n.LHS, nil))
	if err != nil {
		return nil, nil, err
	}
	if !t.IsPointer() {
		return nil, nil, errf("type '%s' is not a pointer ('->' member access)", t)
	}
	base, err := mustValue(genValue(mc, n.LHS, nil))
	if err != nil {
		return nil, nil, err
	}
	return t.Pointee(), base, nil
}

// memberStructType resolves only the struct type of the access base.
func memberStructType(mc *ModuleContext, n *ast.MemberAccess) (*types.Type, error) {
	if n.Access == ast.ByValue {
		return mustType(genAddrType(mc, n.LHS, nil))
	}

	t, err := mustType(genType(mc, n.LHS, nil))
	if err != nil {
		return nil, err
	}
	if !t.IsPointer() {
		return nil, errf("type '%s' is not a pointer ('->' member access)", t)
	}
	return t.Pointee(), nil
}

func memberAddr(mc *ModuleContext, n *ast.MemberAccess) (ir.Value, error) {
	st, base, err := memberBase(mc, n)
	if err != nil {
		return nil, err
	}

	if !st.IsStruct() || !st.HasMember(n.Member.Name) {
		return nil, errf("type '%s' doesn't have member '%s'", st, n.Member.Name)
	}

	idx, err := st.MemberIndex(n.Member.Name)
	if err != nil {
		return nil, err
	}

	return mc.B.CreateStructGEP(st.IRType().(ir.StructType), base, idx, "member_ptr"), nil
}

func memberValue(mc *ModuleContext, n *ast.MemberAccess) (ir.Value, error) {
	t, err := memberType(mc, n)
	if err != nil {
		return nil, err
	}
	addr, err := memberAddr(mc, n)
	if err != nil {
		return nil, err
	}
	return mc.B.CreateLoad(t.IRType(), addr, "member"), nil
}

func memberType(mc *ModuleContext, n *ast.MemberAccess) (*types.Type, error) {
	st, err := memberStructType(mc, n)
	if err != nil {
		return nil, err
	}
	if !st.IsStruct() || !st.HasMember(n.Member.Name) {
		return nil, errf("type '%s' doesn't have member '%s'", st, n.Member.Name)
	}
	return st.MemberType(n.Member.Name)
}

// ----------------------------------------------------------------------------
// Assign
// ----------------------------------------------------------------------------

// compoundOps maps a compound assignment operator to the binary operator
// its rewrite uses.
var compoundOps = map[lexer.TokenKind]lexer.TokenKind{
	lexer.TokPlusEq:  lexer.TokPlus,
	lexer.TokMinusEq: lexer.TokMinus,
	lexer.TokStarEq:  lexer.TokStar,
	lexer.TokSlashEq: lexer.TokSlash,
	lexer.TokAmpEq:   lexer.TokAmp,
	lexer.TokPipeEq:  lexer.TokPipe,
	lexer.TokAndEq:   lexer.TokAndAnd,
	lexer.TokOrEq:    lexer.TokOrOr,
}

func assignValue(mc *ModuleContext, n *ast.Assign) (ir.Value, error) {
	var val ir.Value
	var err error

	if op, ok := compoundOps[n.Op.Kind]; ok {
		// Rewrite "lhs op= rhs" as "lhs op rhs" and lower that.
		synthetic := &ast.Binary{
			Op:  lexer.Token{Kind: op, Line: n.Op.Line},
			LHS: n.LHS,
			RHS: n.RHS,
		}
		val, err = mustValue(genValue(mc, synthetic, nil))
	} else {
		val, err = mustValue(genValue(mc, n.RHS, nil))
	}
	if err != nil {
		return nil, err
	}

	lhsType, err := mustType(genAddrType(mc, n.LHS, nil))
	if err != nil {
		return nil, err
	}

	if val, err = CastIfNotSame(mc, val, lhsType.IRType()); err != nil {
		return nil, err
	}

	addr, err := mustValue(genAddr(mc, n.LHS, nil))
	if err != nil {
		return nil, err
	}

	mc.B.CreateStore(val, addr)
	return val, nil
}

// ----------------------------------------------------------------------------
// Call
// ----------------------------------------------------------------------------

// calleeInfo extracts the callable symbol name. Method calls mangle to
// "<StructName>_<methodName>" from the lhs type.
func calleeInfo(mc *ModuleContext, n *ast.Call) (name string, isMethod bool, err error) {
	switch callee := n.Callee.(type) {
	case *ast.Identifier:
		return callee.Name, false, nil

	case *ast.MemberAccess:
		t, err := mustType(genType(mc, callee.LHS, nil))
		if err != nil {
			return "", false, err
		}
		if t.IsPointer() {
			t = t.Pointee()
		}
		return t.Name() + "_" + callee.Member.Name, true, nil
	}

	return "", false, errf("can't retrieve function name (invalid callee type %s)", n.Callee.Kind())
}

func callValue(mc *ModuleContext, n *ast.Call) (ir.Value, error) {
	name, isMethod, err := calleeInfo(mc, n)
	if err != nil {
		return nil, err
	}

	fn, err := mc.GetFunction(name)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, errf("unknown function to call ('%s')", name)
	}

	meta := mc.Global.GetMetaFunction(name)
	if meta == nil {
		return nil, errf("unknown function to call ('%s')", name)
	}

	args := n.Args
	if isMethod {
		// The implicit 'self' is the lhs of the callee's access chain.
		args = append([]ast.Node{n.Callee.(*ast.MemberAccess).LHS}, args...)
	}

	if !meta.Variadic() && len(fn.Params) != len(args) {
		return nil, errf("argument mismatch (function: '%s', expected: %d, got: %d)",
			name, len(fn.Params), len(args))
	}

	vals := make([]ir.Value, 0, len(args))
	for i, arg := range args {
		var val ir.Value
		var err error

		if isMethod && i == 0 {
			// 'self' is always passed as a pointer: by-value access takes
			// the lhs address, by-pointer access passes the pointer value.
			if n.Callee.(*ast.MemberAccess).Access == ast.ByValue {
				val, err = mustValue(genAddr(mc, arg, nil))
			} else {
				val, err = mustValue(genValue(mc, arg, nil))
			}
		} else {
			val, err = mustValue(genValue(mc, arg, nil))
		}
		if err != nil {
			return nil, err
		}

		// Only the fixed prefix of a variadic call is type-checked.
		if i < meta.Args.Len() {
			if val, err = CastIfNotSame(mc, val, meta.ArgAt(i).IRType()); err != nil {
				return nil, err
			}
		}

		vals = append(vals, val)
	}

	if meta.Return.IsVoid() {
		return mc.B.CreateCall(fn, vals, ""), nil
	}
	return mc.B.CreateCall(fn, vals, "calltmp"), nil
}

func callType(mc *ModuleContext, n *ast.Call) (*types.Type, error) {
	name, _, err := calleeInfo(mc, n)
	if err != nil {
		return nil, err
	}
	meta := mc.Global.GetMetaFunction(name)
	if meta == nil {
		return nil, errf("unknown function to call ('%s')", name)
	}
	return meta.Return, nil
}

// ----------------------------------------------------------------------------
// Cast expression
// ----------------------------------------------------------------------------

func castNodeValue(mc *ModuleContext, n *ast.Cast) (ir.Value, error) {
	target, err := typeFromExpr(n.Type)
	if err != nil {
		return nil, err
	}
	val, err := mustValue(genValue(mc, n.Expr, nil))
	if err != nil {
		return nil, err
	}
	return CastIfNotSame(mc, val, target.IRType())
}

// ----------------------------------------------------------------------------
// Block
// ----------------------------------------------------------------------------

func blockValue(mc *ModuleContext, n *ast.Block) (ir.Value, error) {
	var val ir.Value

	for _, child := range n.Body {
		// A return terminates the current basic block; anything after it
		// in the same block is unreachable and must not be emitted.
		if bb := mc.B.GetInsertBlock(); bb != nil && bb.IsTerminated() {
			break
		}

		v, err := genValue(mc, child, nil)
		if err != nil {
			return nil, err
		}
		val = v
	}

	return val, nil
}

// ----------------------------------------------------------------------------
// VarDecl
// ----------------------------------------------------------------------------

func varDeclType(mc *ModuleContext, n *ast.VarDecl) (*types.Type, error) {
	if n.Type != nil {
		return typeFromExpr(n.Type)
	}
	if n.Value != nil {
		return mustType(genType(mc, n.Value, nil))
	}
	return nil, errf("variable '%s' needs a type annotation or an initializer", n.Name.Name)
}

func varDeclValue(mc *ModuleContext, n *ast.VarDecl) (ir.Value, error) {
	t, err := varDeclType(mc, n)
	if err != nil {
		return nil, err
	}

	if n.Global {
		return nil, globalVarDecl(mc, n, t)
	}

	fn := mc.B.GetInsertBlock().Parent()

	var init ir.Value
	if n.Value != nil {
		payload := []ast.Payload{ast.NumberBits{Bits: numberPayloadBits(t)}}
		if init, err = mustValue(genValue(mc, n.Value, payload)); err != nil {
			return nil, err
		}
		if init, err = CastIfNotSame(mc, init, t.IRType()); err != nil {
			return nil, err
		}
	} else {
		init = t.DefaultValue()
	}

	tv := NewTypedValue(mc, fn, t, n.Name.Name)
	if init != nil && !ir.IsAggregate(init.Type()) {
		mc.B.CreateStore(init, tv.Slot)
	}
	mc.Locals[n.Name.Name] = tv

	return init, nil
}

// globalVarDecl materializes a global into the global module: a private
// global with a constant initializer (or the type's default) registered in
// the global registry.
func globalVarDecl(mc *ModuleContext, n *ast.VarDecl, t *types.Type) error {
	init := t.Default()

	if n.Value != nil {
		c, err := constInitializer(n.Value, t)
		if err != nil {
			return err
		}
		init = c
	}

	mc.Global.GlobalModule.Module.AddGlobal(&ir.Global{
		GlobalName: n.Name.Name,
		Elem:       t.IRType(),
		Init:       init,
	})
	mc.Global.registerGlobal(n.Name.Name, t)
	return nil
}

// constInitializer folds a global initializer expression to a constant;
// the number bit-width hint comes from the declared type.
func constInitializer(n ast.Node, t *types.Type) (ir.Constant, error) {
	switch node := n.(type) {
	case *ast.Number:
		bits := numberPayloadBits(t)
		if node.Tag == ast.Floating {
			ft := ir.F64
			if bits == 32 {
				ft = ir.F32
			}
			return ir.ScalarInit{Value: ir.ConstFloat(ft, node.Float)}, nil
		}
		return ir.ScalarInit{Value: ir.ConstInt(ir.IntType{Bits: bits}, node.Int)}, nil

	case *ast.Unary:
		if node.Op.Is(lexer.TokMinus) {
			if num, ok := node.RHS.(*ast.Number); ok {
				neg := &ast.Number{Tag: num.Tag, Int: -num.Int, Float: -num.Float}
				return constInitializer(neg, t)
			}
		}
	}

	return nil, errf("global initializer must be a constant expression")
}

func numberPayloadBits(t *types.Type) int {
	if bits := t.BitWidth(); bits != 0 {
		return bits
	}
	return 64
}

// ----------------------------------------------------------------------------
// If
// ----------------------------------------------------------------------------

func ifType(mc *ModuleContext, n *ast.If) (*types.Type, error) {
	thenType, err := mustType(genType(mc, n.Then, nil))
	if err != nil {
		return nil, err
	}

	elseType := types.Void()
	if n.Else != nil {
		if elseType, err = mustType(genType(mc, n.Else, nil)); err != nil {
			return nil, err
		}
	}

	return types.Align(thenType, elseType), nil
}

// truthValue casts a condition to i64 and compares it against zero.
func truthValue(mc *ModuleContext, cond ir.Value, name string) (ir.Value, error) {
	if !cond.Type().Equal(ir.I64) {
		var err error
		if cond, err = CastValue(mc, cond, ir.I64); err != nil {
			return nil, err
		}
	}
	return mc.B.CreateICmpNE(cond, ir.ConstInt(ir.I64, 0), name), nil
}

func ifValue(mc *ModuleContext, n *ast.If) (ir.Value, error) {
	cond, err := mustValue(genValue(mc, n.Cond, nil))
	if err != nil {
		return nil, err
	}
	cond, err = truthValue(mc, cond, "ifcond")
	if err != nil {
		return nil, err
	}

	common, err := ifType(mc, n)
	if err != nil {
		return nil, err
	}

	fn := mc.B.GetInsertBlock().Parent()
	thenBB := fn.NewBlock("then")
	elseBB := fn.NewBlock("else")
	mergeBB := fn.NewBlock("ifcont")

	mc.B.CreateCondBr(cond, thenBB, elseBB)

	// Then branch.
	mc.B.SetInsertPoint(thenBB)
	thenVal, err := genValue(mc, n.Then, nil)
	if err != nil {
		return nil, err
	}
	if !common.IsVoid() && thenVal != nil {
		if thenVal, err = CastIfNotSame(mc, thenVal, common.IRType()); err != nil {
			return nil, err
		}
	}
	thenReaches := !mc.B.GetInsertBlock().IsTerminated()
	if thenReaches {
		mc.B.CreateBr(mergeBB)
	}
	thenPred := mc.B.GetInsertBlock()

	// Else branch; when absent the else edge carries the common type's
	// default value.
	mc.B.SetInsertPoint(elseBB)
	var elseVal ir.Value
	if n.Else != nil {
		if elseVal, err = genValue(mc, n.Else, nil); err != nil {
			return nil, err
		}
		if !common.IsVoid() && elseVal != nil {
			if elseVal, err = CastIfNotSame(mc, elseVal, common.IRType()); err != nil {
				return nil, err
			}
		}
	} else if !common.IsVoid() {
		elseVal = common.DefaultValue()
	}
	elseReaches := !mc.B.GetInsertBlock().IsTerminated()
	if elseReaches {
		mc.B.CreateBr(mergeBB)
	}
	elsePred := mc.B.GetInsertBlock()

	// Merge: phi over the predecessors that actually reach it.
	mc.B.SetInsertPoint(mergeBB)

	if common.IsVoid() || (!thenReaches && !elseReaches) {
		return nil, nil
	}

	phi := mc.B.CreatePHI(common.IRType(), "iftmp")
	if thenVal == nil {
		thenVal = common.DefaultValue()
	}
	if elseVal == nil {
		elseVal = common.DefaultValue()
	}
	if thenReaches && thenVal != nil {
		phi.AddIncoming(thenVal, thenPred)
	}
	if elseReaches && elseVal != nil {
		phi.AddIncoming(elseVal, elsePred)
	}

	return phi, nil
}

// ----------------------------------------------------------------------------
// Loops
// ----------------------------------------------------------------------------

// forValue lowers the loop with the body emitted before the step and the
// condition inside the loop block, i.e. the body always runs at least
// once. The induction variable shadows any outer binding of the same name
// for the loop's extent.
func forValue(mc *ModuleContext, n *ast.For) (ir.Value, error) {
	name := n.Init.Name.Name
	outer, shadowed := mc.Locals[name]

	if _, err := genValue(mc, n.Init, nil); err != nil {
		return nil, err
	}

	fn := mc.B.GetInsertBlock().Parent()
	loopBB := fn.NewBlock("for_loop")

	mc.B.CreateBr(loopBB)
	mc.B.SetInsertPoint(loopBB)

	if _, err := genValue(mc, n.Body, nil); err != nil {
		return nil, err
	}
	if _, err := genValue(mc, n.Step, nil); err != nil {
		return nil, err
	}

	cond, err := mustValue(genValue(mc, n.Cond, nil))
	if err != nil {
		return nil, err
	}
	cond, err = truthValue(mc, cond, "for_cond")
	if err != nil {
		return nil, err
	}

	afterBB := fn.NewBlock("after_loop")
	mc.B.CreateCondBr(cond, loopBB, afterBB)
	mc.B.SetInsertPoint(afterBB)

	if shadowed {
		mc.Locals[name] = outer
	} else {
		delete(mc.Locals, name)
	}

	return types.I64().DefaultValue(), nil
}

func whileValue(mc *ModuleContext, n *ast.While) (ir.Value, error) {
	fn := mc.B.GetInsertBlock().Parent()
	condBB := fn.NewBlock("while_cond")
	bodyBB := fn.NewBlock("while_body")
	endBB := fn.NewBlock("while_end")

	mc.B.CreateBr(condBB)

	mc.B.SetInsertPoint(condBB)
	cond, err := mustValue(genValue(mc, n.Cond, nil))
	if err != nil {
		return nil, err
	}
	cond, err = truthValue(mc, cond, "while_cond")
	if err != nil {
		return nil, err
	}
	mc.B.CreateCondBr(cond, bodyBB, endBB)

	mc.B.SetInsertPoint(bodyBB)
	if _, err := genValue(mc, n.Body, nil); err != nil {
		return nil, err
	}
	if !mc.B.GetInsertBlock().IsTerminated() {
		mc.B.CreateBr(condBB)
	}

	mc.B.SetInsertPoint(endBB)
	return nil, nil
}

// ----------------------------------------------------------------------------
// Return
// ----------------------------------------------------------------------------

func returnValue(mc *ModuleContext, n *ast.Return) (ir.Value, error) {
	if n.Value == nil {
		mc.B.CreateRetVoid()
		return nil, nil
	}

	val, err := mustValue(genValue(mc, n.Value, nil))
	if err != nil {
		return nil, err
	}

	if cur := mc.Global.GetCurrentFunction(); cur != nil {
		if val, err = CastIfNotSame(mc, val, cur.Return.IRType()); err != nil {
			return nil, err
		}
	}

	mc.B.CreateRet(val)
	return val, nil
}

// ----------------------------------------------------------------------------
// Types and structs
// ----------------------------------------------------------------------------

// typeFromExpr resolves a type expression against the primitive table and
// the user-type registry.
func typeFromExpr(t *ast.TypeExpr) (*types.Type, error) {
	if t == nil {
		return nil, errf("missing type expression")
	}
	if t.Pointer {
		inner, err := typeFromExpr(t.Inner)
		if err != nil {
			return nil, err
		}
		return types.Pointer(inner), nil
	}

	resolved, err := types.FromName(t.Name.Name)
	if err != nil {
		return nil, &CodegenError{Message: err.Error()}
	}
	return resolved, nil
}

// structType registers the struct in the user-type registry, then compiles
// each method under its mangled name into its own module so the symbols
// survive REPL turns the way top-level functions do.
func structType(mc *ModuleContext, n *ast.Struct) (*types.Type, error) {
	fields := make([]types.Field, 0, len(n.Fields))
	for _, f := range n.Fields {
		if f.Type == nil {
			return nil, errf("struct field '%s.%s' needs a type", n.Name.Name, f.Name.Name)
		}
		ft, err := typeFromExpr(f.Type)
		if err != nil {
			return nil, err
		}
		fields = append(fields, types.Field{Name: f.Name.Name, Type: ft})
	}

	t := types.Struct(n.Name.Name, fields)
	types.RegisterCustomType(n.Name.Name, t)

	for _, method := range n.Methods {
		mangled := n.Name.Name + "_" + method.Decl.Name.Name
		def := &ast.FnDef{
			Decl: &ast.FnDecl{
				Name:     &ast.Identifier{Name: mangled},
				Return:   method.Decl.Return,
				Args:     method.Decl.Args,
				Extern:   method.Decl.Extern,
				Variadic: method.Decl.Variadic,
			},
			Body: method.Body,
		}

		methodModule := mc.Global.CreateModule(mangled)
		if _, err := genFunction(methodModule, def); err != nil {
			return nil, err
		}
		if err := mc.Global.AddModule(methodModule); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// ----------------------------------------------------------------------------
// Functions
// ----------------------------------------------------------------------------

// genFunction lowers FnDecl and FnDef nodes to backend functions.
func genFunction(mc *ModuleContext, n ast.Node) (*ir.Function, error) {
	switch node := n.(type) {
	case *ast.FnDecl:
		return fnDeclFunction(mc, node)
	case *ast.FnDef:
		return fnDefFunction(mc, node)
	}
	return nil, errf("node %s is not a function", n.Kind())
}

// fnDeclFunction registers a backend function with the declared signature
// and records its metadata in the global registry.
func fnDeclFunction(mc *ModuleContext, n *ast.FnDecl) (*ir.Function, error) {
	name := n.Name.Name

	argTypes := NewOrderedMap[string, *types.Type]()
	params := make([]ir.Type, 0, len(n.Args))
	names := make([]string, 0, len(n.Args))

	for _, arg := range n.Args {
		t, err := genType(mc, arg, nil)
		if err != nil {
			return nil, err
		}
		argTypes.Set(arg.Name.Name, t)
		params = append(params, t.IRType())
		names = append(names, arg.Name.Name)
	}

	retType, err := typeFromExpr(n.Return)
	if err != nil {
		return nil, err
	}

	linkage := ir.LinkOnce
	if n.Extern {
		linkage = ir.External
	}

	sig := ir.FuncType{Params: params, Ret: retType.IRType(), Variadic: n.Variadic}
	fn := ir.NewFunction(name, sig, names, linkage)
	mc.Module.AddFunction(fn)

	mc.Global.AddFunction(name, NewFunction(name, retType, argTypes, n))
	return fn, nil
}

// fnDefFunction lowers a function body: entry block, argument spill slots,
// the body itself, an implicit return when the body doesn't end with one,
// and backend verification.
func fnDefFunction(mc *ModuleContext, n *ast.FnDef) (*ir.Function, error) {
	if _, err := fnDeclFunction(mc, n.Decl); err != nil {
		return nil, err
	}

	name := n.Decl.Name.Name
	meta := mc.Global.GetMetaFunction(name)

	fn, err := mc.GetFunction(name)
	if err != nil || fn == nil {
		return nil, errf("error generating function object for '%s'", name)
	}

	entry := fn.NewBlock("entry")
	mc.B.SetInsertPoint(entry)

	mc.Locals = make(map[string]*TypedValue)
	for i, param := range fn.Params {
		argType := meta.ArgAt(i)
		tv := NewTypedValue(mc, fn, argType, param.ParamName)
		mc.B.CreateStore(param, tv.Slot)
		mc.Locals[param.ParamName] = tv
	}

	mc.Global.SetCurrentFunction(name)
	lastVal, err := genValue(mc, n.Body, nil)
	if err != nil {
		mc.Global.ClearCurrentFunction()
		return nil, err
	}

	if !mc.B.GetInsertBlock().IsTerminated() {
		if meta.Return.IsVoid() {
			mc.B.CreateRetVoid()
		} else {
			if lastVal == nil {
				lastVal = meta.Return.DefaultValue()
			}
			if lastVal, err = CastIfNotSame(mc, lastVal, meta.Return.IRType()); err != nil {
				mc.Global.ClearCurrentFunction()
				return nil, err
			}
			mc.B.CreateRet(lastVal)
		}
	}

	mc.Global.ClearCurrentFunction()

	if err := ir.VerifyFunction(fn); err != nil {
		return nil, errf("function '%s' didn't pass validation\n%s", name, err)
	}

	return fn, nil
}
