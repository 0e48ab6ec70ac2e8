// Package ir implements the typed SSA-style intermediate representation
// the code generator emits into and the JIT executes.
//
// The design follows the usual shape: a Module holds functions and
// globals, a Function holds basic blocks, a block holds instructions in
// order and ends with a terminator. Instructions that produce a value also
// implement Value, so they can be used directly as operands.
package ir

import (
	"fmt"
	"math"
	"strings"
)

// Value is anything an instruction can take as an operand.
type Value interface {
	// Type returns the value's type.
	Type() Type
	// Name returns the value's printed operand form.
	Name() string
}

// ----------------------------------------------------------------------------
// Constants
// ----------------------------------------------------------------------------

// Const is a scalar constant. Bits holds the raw 64-bit payload: integers
// are stored directly, floats as their IEEE bit pattern, null pointers as
// zero.
type Const struct {
	typ  Type
	Bits uint64
}

// ConstInt creates an integer constant of the given type.
func ConstInt(t IntType, v int64) *Const {
	return &Const{typ: t, Bits: uint64(v) & widthMask(t.Bits)}
}

// ConstFloat creates a floating constant of the given type.
func ConstFloat(t FloatType, v float64) *Const {
	if t.Bits == 32 {
		return &Const{typ: t, Bits: uint64(math.Float32bits(float32(v)))}
	}
	return &Const{typ: t, Bits: math.Float64bits(v)}
}

// ConstNull creates the zero value of a pointer type.
func ConstNull(t PointerType) *Const {
	return &Const{typ: t}
}

// ConstZero creates the zero value of any scalar type.
func ConstZero(t Type) *Const {
	return &Const{typ: t}
}

func (c *Const) Type() Type { return c.typ }

func (c *Const) Name() string {
	switch t := c.typ.(type) {
	case IntType:
		return fmt.Sprintf("%d", int64(signExtend(c.Bits, t.Bits)))
	case FloatType:
		return fmt.Sprintf("%g", c.Float())
	case PointerType:
		if c.Bits == 0 {
			return "null"
		}
		return fmt.Sprintf("%#x", c.Bits)
	}
	return "0"
}

// Int returns the constant as a sign-extended integer.
func (c *Const) Int() int64 {
	if t, ok := c.typ.(IntType); ok {
		return int64(signExtend(c.Bits, t.Bits))
	}
	return int64(c.Bits)
}

// Float returns the constant as a float.
func (c *Const) Float() float64 {
	if t, ok := c.typ.(FloatType); ok && t.Bits == 32 {
		return float64(math.Float32frombits(uint32(c.Bits)))
	}
	return math.Float64frombits(c.Bits)
}

func widthMask(bits int) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bits) - 1
}

func signExtend(bits uint64, width int) uint64 {
	if width >= 64 || width <= 0 {
		return bits
	}
	sign := uint64(1) << (width - 1)
	if bits&sign != 0 {
		return bits | ^widthMask(width)
	}
	return bits & widthMask(width)
}

// SignExtend widens a raw payload of the given width to 64 bits preserving
// the sign bit.
func SignExtend(bits uint64, width int) uint64 { return signExtend(bits, width) }

// WidthMask returns the bit mask covering the given width.
func WidthMask(bits int) uint64 { return widthMask(bits) }

// ----------------------------------------------------------------------------
// Constant initializers for globals
// ----------------------------------------------------------------------------

// Constant is a global-variable initializer.
type Constant interface {
	ConstType() Type
}

// ScalarInit initializes a scalar global.
type ScalarInit struct {
	Value *Const
}

func (s ScalarInit) ConstType() Type { return s.Value.Type() }

// BytesInit initializes an array global from raw bytes (string data).
type BytesInit struct {
	Data []byte
}

func (b BytesInit) ConstType() Type { return ArrayType{Elem: I8, Len: len(b.Data)} }

// StructInit initializes a struct global field by field.
type StructInit struct {
	Struct StructType
	Fields []Constant
}

func (s StructInit) ConstType() Type { return s.Struct }

// ZeroInit zero-fills a global of any type.
type ZeroInit struct {
	Of Type
}

func (z ZeroInit) ConstType() Type { return z.Of }

// ----------------------------------------------------------------------------
// Params and globals
// ----------------------------------------------------------------------------

// Param is an incoming function parameter.
type Param struct {
	ParamName string
	typ       Type
	Index     int
}

func (p *Param) Type() Type   { return p.typ }
func (p *Param) Name() string { return "%" + p.ParamName }

// Global is a module-level variable. As a Value it evaluates to the
// address of its storage, so its type is a pointer to Elem.
type Global struct {
	GlobalName string
	Elem       Type
	Init       Constant // nil for external declarations
	External   bool
}

func (g *Global) Type() Type   { return PointerTo(g.Elem) }
func (g *Global) Name() string { return "@" + g.GlobalName }

// ----------------------------------------------------------------------------
// Instructions
// ----------------------------------------------------------------------------

// Instruction is a single operation inside a basic block.
type Instruction interface {
	String() string
	isInstr()
}

// reg is the common part of value-producing instructions.
type reg struct {
	id   int
	name string
	typ  Type
}

func (r *reg) Type() Type { return r.typ }

func (r *reg) Name() string {
	if r.name == "" {
		return fmt.Sprintf("%%t%d", r.id)
	}
	return fmt.Sprintf("%%%s%d", r.name, r.id)
}

// BinOpKind enumerates binary operations, including comparisons.
type BinOpKind uint8

const (
	OpAdd BinOpKind = iota
	OpSub
	OpMul
	OpSDiv
	OpUDiv
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpAnd
	OpOr
	OpLogicalAnd
	OpLogicalOr
	OpICmpEQ
	OpICmpNE
	OpICmpULT
	OpICmpULE
	OpICmpUGT
	OpICmpUGE
	OpFCmpUEQ
	OpFCmpUNE
	OpFCmpULT
	OpFCmpULE
	OpFCmpUGT
	OpFCmpUGE
)

var binOpNames = [...]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpSDiv: "sdiv", OpUDiv: "udiv",
	OpFAdd: "fadd", OpFSub: "fsub", OpFMul: "fmul", OpFDiv: "fdiv",
	OpAnd: "and", OpOr: "or", OpLogicalAnd: "land", OpLogicalOr: "lor",
	OpICmpEQ: "icmp eq", OpICmpNE: "icmp ne",
	OpICmpULT: "icmp ult", OpICmpULE: "icmp ule", OpICmpUGT: "icmp ugt", OpICmpUGE: "icmp uge",
	OpFCmpUEQ: "fcmp ueq", OpFCmpUNE: "fcmp une",
	OpFCmpULT: "fcmp ult", OpFCmpULE: "fcmp ule", OpFCmpUGT: "fcmp ugt", OpFCmpUGE: "fcmp uge",
}

func (k BinOpKind) String() string { return binOpNames[k] }

// IsComparison reports whether the operation yields an i1.
func (k BinOpKind) IsComparison() bool { return k >= OpICmpEQ }

// BinOp computes X op Y.
type BinOp struct {
	reg
	Op BinOpKind
	X  Value
	Y  Value
}

func (b *BinOp) String() string {
	return fmt.Sprintf("%s = %s %s %s, %s", b.Name(), b.Op, b.X.Type(), b.X.Name(), b.Y.Name())
}
func (*BinOp) isInstr() {}

// Alloca reserves a stack slot in the current frame.
type Alloca struct {
	reg
	Elem Type
}

func (a *Alloca) String() string {
	return fmt.Sprintf("%s = alloca %s", a.Name(), a.Elem)
}
func (*Alloca) isInstr() {}

// Load reads a value of type Elem through Addr.
type Load struct {
	reg
	Elem Type
	Addr Value
}

func (l *Load) String() string {
	return fmt.Sprintf("%s = load %s, %s", l.Name(), l.Elem, l.Addr.Name())
}
func (*Load) isInstr() {}

// Store writes Val through Addr.
type Store struct {
	Val  Value
	Addr Value
}

func (s *Store) String() string {
	return fmt.Sprintf("store %s %s, %s", s.Val.Type(), s.Val.Name(), s.Addr.Name())
}
func (*Store) isInstr() {}

// GEP computes Base + Index*sizeof(Elem); the result points at Elem.
type GEP struct {
	reg
	Elem     Type
	Base     Value
	Index    Value
	Inbounds bool
}

func (g *GEP) String() string {
	return fmt.Sprintf("%s = getelementptr %s, %s, %s", g.Name(), g.Elem, g.Base.Name(), g.Index.Name())
}
func (*GEP) isInstr() {}

// FieldGEP computes the address of a struct field.
type FieldGEP struct {
	reg
	Struct StructType
	Base   Value
	Field  int
}

func (g *FieldGEP) String() string {
	return fmt.Sprintf("%s = getelementptr %s, %s, 0, %d", g.Name(), g.Struct, g.Base.Name(), g.Field)
}
func (*FieldGEP) isInstr() {}

// CastKind enumerates conversions.
type CastKind uint8

const (
	CastTrunc CastKind = iota
	CastZExt
	CastSIToFP
	CastFPToSI
	CastFP
	CastPtrToInt
	CastIntToPtr
	CastPtr
	CastBit
)

var castNames = [...]string{
	CastTrunc: "trunc", CastZExt: "zext", CastSIToFP: "sitofp", CastFPToSI: "fptosi",
	CastFP: "fpcast", CastPtrToInt: "ptrtoint", CastIntToPtr: "inttoptr",
	CastPtr: "ptrcast", CastBit: "bitcast",
}

func (k CastKind) String() string { return castNames[k] }

// Cast converts Val to the instruction's result type.
type Cast struct {
	reg
	Op  CastKind
	Val Value
}

func (c *Cast) String() string {
	return fmt.Sprintf("%s = %s %s %s to %s", c.Name(), c.Op, c.Val.Type(), c.Val.Name(), c.typ)
}
func (*Cast) isInstr() {}

// Call invokes Callee with Args. For void callees the instruction produces
// no usable value.
type Call struct {
	reg
	Callee *Function
	Args   []Value
}

func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.Name()
	}
	if IsVoid(c.typ) {
		return fmt.Sprintf("call void @%s(%s)", c.Callee.FuncName, strings.Join(args, ", "))
	}
	return fmt.Sprintf("%s = call %s @%s(%s)", c.Name(), c.typ, c.Callee.FuncName, strings.Join(args, ", "))
}
func (*Call) isInstr() {}

// Ret returns from the function; Val is nil for void returns.
type Ret struct {
	Val Value
}

func (r *Ret) String() string {
	if r.Val == nil {
		return "ret void"
	}
	return fmt.Sprintf("ret %s %s", r.Val.Type(), r.Val.Name())
}
func (*Ret) isInstr() {}

// Br jumps unconditionally.
type Br struct {
	Target *BasicBlock
}

func (b *Br) String() string { return "br label %" + b.Target.BlockName }
func (*Br) isInstr()         {}

// CondBr jumps to Then when Cond is nonzero, else to Else.
type CondBr struct {
	Cond Value
	Then *BasicBlock
	Else *BasicBlock
}

func (b *CondBr) String() string {
	return fmt.Sprintf("br %s, label %%%s, label %%%s", b.Cond.Name(), b.Then.BlockName, b.Else.BlockName)
}
func (*CondBr) isInstr() {}

// PhiIncoming pairs a value with the predecessor it flows from.
type PhiIncoming struct {
	Val   Value
	Block *BasicBlock
}

// Phi selects a value based on the executed predecessor.
type Phi struct {
	reg
	Incoming []PhiIncoming
}

// AddIncoming appends an edge to the phi.
func (p *Phi) AddIncoming(v Value, bb *BasicBlock) {
	p.Incoming = append(p.Incoming, PhiIncoming{Val: v, Block: bb})
}

func (p *Phi) String() string {
	parts := make([]string, len(p.Incoming))
	for i, in := range p.Incoming {
		parts[i] = fmt.Sprintf("[ %s, %%%s ]", in.Val.Name(), in.Block.BlockName)
	}
	return fmt.Sprintf("%s = phi %s %s", p.Name(), p.typ, strings.Join(parts, ", "))
}
func (*Phi) isInstr() {}

// IsTerminator reports whether in ends a basic block.
func IsTerminator(in Instruction) bool {
	switch in.(type) {
	case *Ret, *Br, *CondBr:
		return true
	}
	return false
}
