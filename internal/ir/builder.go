package ir

// Builder emits instructions into a basic block. The surface mirrors the
// usual IR-builder shape: position it with SetInsertPoint and call the
// Create methods. Every value-producing method takes a short name used for
// the printed temporary.
type Builder struct {
	block *BasicBlock
}

// NewBuilder creates an unpositioned builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// SetInsertPoint positions the builder at the end of bb.
func (b *Builder) SetInsertPoint(bb *BasicBlock) {
	b.block = bb
}

// GetInsertBlock returns the block the builder appends to.
func (b *Builder) GetInsertBlock() *BasicBlock {
	return b.block
}

func (b *Builder) newReg(name string, t Type) reg {
	return reg{id: b.block.fn.nextValueID(), name: name, typ: t}
}

func (b *Builder) binOp(op BinOpKind, x, y Value, name string) Value {
	t := x.Type()
	if op.IsComparison() {
		t = I1
	}
	in := &BinOp{reg: b.newReg(name, t), Op: op, X: x, Y: y}
	b.block.Append(in)
	return in
}

// ----------------------------------------------------------------------------
// Arithmetic
// ----------------------------------------------------------------------------

func (b *Builder) CreateAdd(x, y Value, name string) Value  { return b.binOp(OpAdd, x, y, name) }
func (b *Builder) CreateSub(x, y Value, name string) Value  { return b.binOp(OpSub, x, y, name) }
func (b *Builder) CreateMul(x, y Value, name string) Value  { return b.binOp(OpMul, x, y, name) }
func (b *Builder) CreateSDiv(x, y Value, name string) Value { return b.binOp(OpSDiv, x, y, name) }
func (b *Builder) CreateUDiv(x, y Value, name string) Value { return b.binOp(OpUDiv, x, y, name) }
func (b *Builder) CreateFAdd(x, y Value, name string) Value { return b.binOp(OpFAdd, x, y, name) }
func (b *Builder) CreateFSub(x, y Value, name string) Value { return b.binOp(OpFSub, x, y, name) }
func (b *Builder) CreateFMul(x, y Value, name string) Value { return b.binOp(OpFMul, x, y, name) }
func (b *Builder) CreateFDiv(x, y Value, name string) Value { return b.binOp(OpFDiv, x, y, name) }
func (b *Builder) CreateAnd(x, y Value, name string) Value  { return b.binOp(OpAnd, x, y, name) }
func (b *Builder) CreateOr(x, y Value, name string) Value   { return b.binOp(OpOr, x, y, name) }

// CreateLogicalAnd yields 1 when both operands are nonzero, else 0.
func (b *Builder) CreateLogicalAnd(x, y Value, name string) Value {
	return b.binOp(OpLogicalAnd, x, y, name)
}

// CreateLogicalOr yields 1 when either operand is nonzero, else 0.
func (b *Builder) CreateLogicalOr(x, y Value, name string) Value {
	return b.binOp(OpLogicalOr, x, y, name)
}

// ----------------------------------------------------------------------------
// Comparisons
// ----------------------------------------------------------------------------

func (b *Builder) CreateICmpEQ(x, y Value, name string) Value  { return b.binOp(OpICmpEQ, x, y, name) }
func (b *Builder) CreateICmpNE(x, y Value, name string) Value  { return b.binOp(OpICmpNE, x, y, name) }
func (b *Builder) CreateICmpULT(x, y Value, name string) Value { return b.binOp(OpICmpULT, x, y, name) }
func (b *Builder) CreateICmpULE(x, y Value, name string) Value { return b.binOp(OpICmpULE, x, y, name) }
func (b *Builder) CreateICmpUGT(x, y Value, name string) Value { return b.binOp(OpICmpUGT, x, y, name) }
func (b *Builder) CreateICmpUGE(x, y Value, name string) Value { return b.binOp(OpICmpUGE, x, y, name) }
func (b *Builder) CreateFCmpUEQ(x, y Value, name string) Value { return b.binOp(OpFCmpUEQ, x, y, name) }
func (b *Builder) CreateFCmpUNE(x, y Value, name string) Value { return b.binOp(OpFCmpUNE, x, y, name) }
func (b *Builder) CreateFCmpULT(x, y Value, name string) Value { return b.binOp(OpFCmpULT, x, y, name) }
func (b *Builder) CreateFCmpULE(x, y Value, name string) Value { return b.binOp(OpFCmpULE, x, y, name) }
func (b *Builder) CreateFCmpUGT(x, y Value, name string) Value { return b.binOp(OpFCmpUGT, x, y, name) }
func (b *Builder) CreateFCmpUGE(x, y Value, name string) Value { return b.binOp(OpFCmpUGE, x, y, name) }

// ----------------------------------------------------------------------------
// Negation helpers
// ----------------------------------------------------------------------------

// CreateNeg computes 0 - x for integers.
func (b *Builder) CreateNeg(x Value, name string) Value {
	return b.CreateSub(ConstZero(x.Type()), x, name)
}

// CreateFNeg computes 0 - x for floats.
func (b *Builder) CreateFNeg(x Value, name string) Value {
	return b.CreateFSub(ConstZero(x.Type()), x, name)
}

// CreateNot computes x == 0.
func (b *Builder) CreateNot(x Value, name string) Value {
	return b.CreateICmpEQ(x, ConstZero(x.Type()), name)
}

// ----------------------------------------------------------------------------
// Memory
// ----------------------------------------------------------------------------

// CreateAlloca reserves a stack slot at the current insert point.
func (b *Builder) CreateAlloca(elem Type, name string) Value {
	in := &Alloca{reg: b.newReg(name, PointerTo(elem)), Elem: elem}
	b.block.Append(in)
	return in
}

// CreateEntryAlloca reserves a stack slot at the start of the function's
// entry block, regardless of the current insert point. Local variables go
// through here so a slot exists before any loop re-enters its block.
func (b *Builder) CreateEntryAlloca(fn *Function, elem Type, name string) Value {
	entry := fn.Entry()
	in := &Alloca{reg: reg{id: fn.nextValueID(), name: name, typ: PointerTo(elem)}, Elem: elem}
	entry.Instrs = append([]Instruction{in}, entry.Instrs...)
	return in
}

// CreateLoad reads a value of type elem through addr.
func (b *Builder) CreateLoad(elem Type, addr Value, name string) Value {
	in := &Load{reg: b.newReg(name, elem), Elem: elem, Addr: addr}
	b.block.Append(in)
	return in
}

// CreateStore writes val through addr.
func (b *Builder) CreateStore(val, addr Value) {
	b.block.Append(&Store{Val: val, Addr: addr})
}

// CreateGEP computes addr + index*sizeof(elem).
func (b *Builder) CreateGEP(elem Type, base, index Value, name string) Value {
	in := &GEP{reg: b.newReg(name, PointerTo(elem)), Elem: elem, Base: base, Index: index}
	b.block.Append(in)
	return in
}

// CreateInBoundsGEP is CreateGEP for addresses known to stay inside their
// object; used for array-to-element-0 decay.
func (b *Builder) CreateInBoundsGEP(elem Type, base, index Value, name string) Value {
	in := &GEP{reg: b.newReg(name, PointerTo(elem)), Elem: elem, Base: base, Index: index, Inbounds: true}
	b.block.Append(in)
	return in
}

// CreateStructGEP computes the address of field i of a struct.
func (b *Builder) CreateStructGEP(st StructType, base Value, field int, name string) Value {
	in := &FieldGEP{reg: b.newReg(name, PointerTo(st.Fields[field])), Struct: st, Base: base, Field: field}
	b.block.Append(in)
	return in
}

// ----------------------------------------------------------------------------
// Casts
// ----------------------------------------------------------------------------

func (b *Builder) cast(op CastKind, v Value, to Type, name string) Value {
	in := &Cast{reg: b.newReg(name, to), Op: op, Val: v}
	b.block.Append(in)
	return in
}

func (b *Builder) CreateTrunc(v Value, to Type) Value    { return b.cast(CastTrunc, v, to, "trunc") }
func (b *Builder) CreateZExt(v Value, to Type) Value     { return b.cast(CastZExt, v, to, "zext") }
func (b *Builder) CreateSIToFP(v Value, to Type) Value   { return b.cast(CastSIToFP, v, to, "sitofp") }
func (b *Builder) CreateFPToSI(v Value, to Type) Value   { return b.cast(CastFPToSI, v, to, "fptosi") }
func (b *Builder) CreateFPCast(v Value, to Type) Value   { return b.cast(CastFP, v, to, "fpcast") }
func (b *Builder) CreatePtrToInt(v Value, to Type) Value { return b.cast(CastPtrToInt, v, to, "p2i") }
func (b *Builder) CreateIntToPtr(v Value, to Type) Value { return b.cast(CastIntToPtr, v, to, "i2p") }
func (b *Builder) CreateBitCast(v Value, to Type) Value  { return b.cast(CastBit, v, to, "bc") }

// CreatePointerCast reinterprets a pointer as another pointer type.
func (b *Builder) CreatePointerCast(v Value, to Type) Value {
	return b.cast(CastPtr, v, to, "pc")
}

// CreateTruncOrBitCast truncates when narrowing, otherwise reinterprets.
func (b *Builder) CreateTruncOrBitCast(v Value, to Type) Value {
	from, okFrom := v.Type().(IntType)
	target, okTo := to.(IntType)
	if okFrom && okTo && from.Bits > target.Bits {
		return b.CreateTrunc(v, to)
	}
	if v.Type().Equal(to) {
		return v
	}
	return b.CreateBitCast(v, to)
}

// CreateZExtOrBitCast zero-extends when widening, otherwise reinterprets.
func (b *Builder) CreateZExtOrBitCast(v Value, to Type) Value {
	from, okFrom := v.Type().(IntType)
	target, okTo := to.(IntType)
	if okFrom && okTo && from.Bits < target.Bits {
		return b.CreateZExt(v, to)
	}
	if v.Type().Equal(to) {
		return v
	}
	return b.CreateBitCast(v, to)
}

// ----------------------------------------------------------------------------
// Control flow
// ----------------------------------------------------------------------------

// CreateCall emits a call; void callees get no temporary name.
func (b *Builder) CreateCall(fn *Function, args []Value, name string) Value {
	in := &Call{reg: b.newReg(name, fn.Sig.Ret), Callee: fn, Args: args}
	b.block.Append(in)
	return in
}

// CreateRet returns v from the function.
func (b *Builder) CreateRet(v Value) {
	b.block.Append(&Ret{Val: v})
}

// CreateRetVoid returns without a value.
func (b *Builder) CreateRetVoid() {
	b.block.Append(&Ret{})
}

// CreateBr jumps to target.
func (b *Builder) CreateBr(target *BasicBlock) {
	b.block.Append(&Br{Target: target})
}

// CreateCondBr branches on cond.
func (b *Builder) CreateCondBr(cond Value, then, els *BasicBlock) {
	b.block.Append(&CondBr{Cond: cond, Then: then, Else: els})
}

// CreatePHI emits a phi of the given type; edges are added with
// AddIncoming.
func (b *Builder) CreatePHI(t Type, name string) *Phi {
	in := &Phi{reg: b.newReg(name, t)}
	b.block.Append(in)
	return in
}
