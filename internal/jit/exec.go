package jit

import (
	"fmt"
	"math"

	"github.com/xcc-lang/xcc/internal/ir"
)

// executor interprets IR functions. Register values are raw 64-bit
// payloads masked to their type width; floats travel as IEEE bit
// patterns; pointers and aggregates travel as addresses.
type executor struct {
	eng *Engine
	env *Env
}

type frame struct {
	args []uint64
	regs map[ir.Value]uint64
	mark int
}

func (x *executor) run(fn *ir.Function, args []uint64) (uint64, error) {
	if fn.IsDeclaration() {
		return 0, fmt.Errorf("cannot execute declaration '%s'", fn.FuncName)
	}

	fr := &frame{
		args: args,
		regs: make(map[ir.Value]uint64),
		mark: x.env.Mem.StackMark(),
	}
	defer x.env.Mem.Unwind(fr.mark)

	block := fn.Entry()
	var prev *ir.BasicBlock

	for {
		next, ret, done, err := x.runBlock(fr, block, prev)
		if err != nil {
			return 0, fmt.Errorf("in %s: %w", fn.FuncName, err)
		}
		if done {
			return ret, nil
		}
		prev, block = block, next
	}
}

// runBlock executes one basic block. It returns the next block, or the
// function's return value when done.
func (x *executor) runBlock(fr *frame, bb, prev *ir.BasicBlock) (next *ir.BasicBlock, ret uint64, done bool, err error) {
	// Phis at the head of the block read their incoming edges against the
	// predecessor, all at once, before any other instruction runs.
	if err := x.runPhis(fr, bb, prev); err != nil {
		return nil, 0, false, err
	}

	for _, in := range bb.Instrs {
		switch t := in.(type) {
		case *ir.Phi:
			// handled above

		case *ir.Ret:
			if t.Val == nil {
				return nil, 0, true, nil
			}
			v, err := x.value(fr, t.Val)
			return nil, v, true, err

		case *ir.Br:
			return t.Target, 0, false, nil

		case *ir.CondBr:
			c, err := x.value(fr, t.Cond)
			if err != nil {
				return nil, 0, false, err
			}
			if c != 0 {
				return t.Then, 0, false, nil
			}
			return t.Else, 0, false, nil

		default:
			if err := x.runInstr(fr, in); err != nil {
				return nil, 0, false, err
			}
		}
	}

	return nil, 0, false, fmt.Errorf("block %s fell through without terminator", bb.BlockName)
}

func (x *executor) runPhis(fr *frame, bb, prev *ir.BasicBlock) error {
	var pending []struct {
		phi *ir.Phi
		val uint64
	}

	for _, in := range bb.Instrs {
		phi, ok := in.(*ir.Phi)
		if !ok {
			break
		}

		matched := false
		for _, inc := range phi.Incoming {
			if inc.Block == prev {
				v, err := x.value(fr, inc.Val)
				if err != nil {
					return err
				}
				pending = append(pending, struct {
					phi *ir.Phi
					val uint64
				}{phi, v})
				matched = true
				break
			}
		}
		if !matched {
			pending = append(pending, struct {
				phi *ir.Phi
				val uint64
			}{phi, 0})
		}
	}

	for _, p := range pending {
		fr.regs[p.phi] = p.val
	}
	return nil
}

func (x *executor) runInstr(fr *frame, in ir.Instruction) error {
	switch t := in.(type) {
	case *ir.BinOp:
		v, err := x.binOp(fr, t)
		if err != nil {
			return err
		}
		fr.regs[t] = v

	case *ir.Alloca:
		addr, _, err := x.env.Mem.Frame(t.Elem.Size())
		if err != nil {
			return err
		}
		fr.regs[t] = addr

	case *ir.Load:
		addr, err := x.value(fr, t.Addr)
		if err != nil {
			return err
		}
		if ir.IsAggregate(t.Elem) {
			fr.regs[t] = addr
			return nil
		}
		v, err := x.env.Mem.Read(addr, t.Elem.Size())
		if err != nil {
			return err
		}
		fr.regs[t] = v

	case *ir.Store:
		addr, err := x.value(fr, t.Addr)
		if err != nil {
			return err
		}
		v, err := x.value(fr, t.Val)
		if err != nil {
			return err
		}
		if ir.IsAggregate(t.Val.Type()) {
			return x.env.Mem.Copy(addr, v, t.Val.Type().Size())
		}
		return x.env.Mem.Write(addr, t.Val.Type().Size(), v)

	case *ir.GEP:
		base, err := x.value(fr, t.Base)
		if err != nil {
			return err
		}
		idx, err := x.value(fr, t.Index)
		if err != nil {
			return err
		}
		off := int64(signedOf(idx, t.Index.Type())) * int64(t.Elem.Size())
		fr.regs[t] = base + uint64(off)

	case *ir.FieldGEP:
		base, err := x.value(fr, t.Base)
		if err != nil {
			return err
		}
		fr.regs[t] = base + uint64(t.Struct.FieldOffset(t.Field))

	case *ir.Cast:
		v, err := x.castOp(fr, t)
		if err != nil {
			return err
		}
		fr.regs[t] = v

	case *ir.Call:
		v, err := x.call(fr, t)
		if err != nil {
			return err
		}
		fr.regs[t] = v

	default:
		return fmt.Errorf("unsupported instruction %T", in)
	}

	return nil
}

func (x *executor) call(fr *frame, c *ir.Call) (uint64, error) {
	args := make([]uint64, len(c.Args))
	for i, a := range c.Args {
		v, err := x.value(fr, a)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}

	callee := c.Callee
	if callee.IsDeclaration() {
		sym, err := x.eng.resolve(callee.FuncName)
		if err != nil {
			return 0, err
		}
		if sym.Host != nil {
			return sym.Host(x.env, args)
		}
		callee = sym.Func
	}

	return x.run(callee, args)
}

func (x *executor) value(fr *frame, v ir.Value) (uint64, error) {
	switch t := v.(type) {
	case *ir.Const:
		return t.Bits, nil
	case *ir.Param:
		if t.Index >= len(fr.args) {
			return 0, fmt.Errorf("missing argument %d", t.Index)
		}
		return fr.args[t.Index], nil
	case *ir.Global:
		return x.eng.globalAddr(t)
	default:
		if bits, ok := fr.regs[v]; ok {
			return bits, nil
		}
		return 0, fmt.Errorf("use of undefined value %s", v.Name())
	}
}

// ----------------------------------------------------------------------------
// Operation semantics
// ----------------------------------------------------------------------------

func signedOf(bits uint64, t ir.Type) int64 {
	if it, ok := t.(ir.IntType); ok {
		return int64(ir.SignExtend(bits, it.Bits))
	}
	return int64(bits)
}

func floatOf(bits uint64, t ir.Type) float64 {
	if ft, ok := t.(ir.FloatType); ok && ft.Bits == 32 {
		return float64(math.Float32frombits(uint32(bits)))
	}
	return math.Float64frombits(bits)
}

func floatBits(v float64, t ir.Type) uint64 {
	if ft, ok := t.(ir.FloatType); ok && ft.Bits == 32 {
		return uint64(math.Float32bits(float32(v)))
	}
	return math.Float64bits(v)
}

func boolBits(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (x *executor) binOp(fr *frame, op *ir.BinOp) (uint64, error) {
	a, err := x.value(fr, op.X)
	if err != nil {
		return 0, err
	}
	b, err := x.value(fr, op.Y)
	if err != nil {
		return 0, err
	}

	t := op.X.Type()
	width := 64
	if it, ok := t.(ir.IntType); ok {
		width = it.Bits
	}
	mask := ir.WidthMask(width)

	switch op.Op {
	case ir.OpAdd:
		return (a + b) & mask, nil
	case ir.OpSub:
		return (a - b) & mask, nil
	case ir.OpMul:
		return (a * b) & mask, nil
	case ir.OpSDiv:
		if b == 0 {
			return 0, fmt.Errorf("integer division by zero")
		}
		return uint64(signedOf(a, t)/signedOf(b, t)) & mask, nil
	case ir.OpUDiv:
		if b == 0 {
			return 0, fmt.Errorf("integer division by zero")
		}
		return (a / b) & mask, nil
	case ir.OpAnd:
		return a & b & mask, nil
	case ir.OpOr:
		return (a | b) & mask, nil
	case ir.OpLogicalAnd:
		return boolBits(a != 0 && b != 0), nil
	case ir.OpLogicalOr:
		return boolBits(a != 0 || b != 0), nil
	case ir.OpICmpEQ:
		return boolBits(a == b), nil
	case ir.OpICmpNE:
		return boolBits(a != b), nil
	case ir.OpICmpULT:
		return boolBits(a < b), nil
	case ir.OpICmpULE:
		return boolBits(a <= b), nil
	case ir.OpICmpUGT:
		return boolBits(a > b), nil
	case ir.OpICmpUGE:
		return boolBits(a >= b), nil
	case ir.OpFAdd:
		return floatBits(floatOf(a, t)+floatOf(b, t), t), nil
	case ir.OpFSub:
		return floatBits(floatOf(a, t)-floatOf(b, t), t), nil
	case ir.OpFMul:
		return floatBits(floatOf(a, t)*floatOf(b, t), t), nil
	case ir.OpFDiv:
		return floatBits(floatOf(a, t)/floatOf(b, t), t), nil
	}

	// Unordered float comparisons: NaN operands compare true.
	fa, fb := floatOf(a, t), floatOf(b, t)
	if math.IsNaN(fa) || math.IsNaN(fb) {
		return 1, nil
	}

	switch op.Op {
	case ir.OpFCmpUEQ:
		return boolBits(fa == fb), nil
	case ir.OpFCmpUNE:
		return boolBits(fa != fb), nil
	case ir.OpFCmpULT:
		return boolBits(fa < fb), nil
	case ir.OpFCmpULE:
		return boolBits(fa <= fb), nil
	case ir.OpFCmpUGT:
		return boolBits(fa > fb), nil
	case ir.OpFCmpUGE:
		return boolBits(fa >= fb), nil
	}

	return 0, fmt.Errorf("unsupported binary op %s", op.Op)
}

func (x *executor) castOp(fr *frame, c *ir.Cast) (uint64, error) {
	v, err := x.value(fr, c.Val)
	if err != nil {
		return 0, err
	}

	from := c.Val.Type()
	to := c.Type()

	switch c.Op {
	case ir.CastTrunc:
		return v & ir.WidthMask(to.(ir.IntType).Bits), nil
	case ir.CastZExt:
		return v, nil
	case ir.CastSIToFP:
		return floatBits(float64(signedOf(v, from)), to), nil
	case ir.CastFPToSI:
		i := int64(floatOf(v, from))
		if it, ok := to.(ir.IntType); ok {
			return uint64(i) & ir.WidthMask(it.Bits), nil
		}
		return uint64(i), nil
	case ir.CastFP:
		return floatBits(floatOf(v, from), to), nil
	case ir.CastPtrToInt:
		if it, ok := to.(ir.IntType); ok {
			return v & ir.WidthMask(it.Bits), nil
		}
		return v, nil
	case ir.CastIntToPtr, ir.CastPtr, ir.CastBit:
		return v, nil
	}

	return 0, fmt.Errorf("unsupported cast %s", c.Op)
}
