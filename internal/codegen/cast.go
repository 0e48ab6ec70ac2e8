package codegen

import "github.com/xcc-lang/xcc/internal/ir"

// CastValue converts a value to a backend target type following the
// coercion matrix: integer widths truncate or zero-extend, ints and floats
// convert through signed conversions, pointers convert to and from
// integers and other pointers, arrays decay to a pointer to element 0.
func CastValue(mc *ModuleContext, val ir.Value, target ir.Type) (ir.Value, error) {
	if val == nil || target == nil {
		return nil, errf("cast received no value")
	}

	from := val.Type()
	b := mc.B

	switch {
	case ir.IsInteger(from) && ir.IsFloat(target):
		return b.CreateSIToFP(val, target), nil

	case ir.IsFloat(from) && ir.IsInteger(target):
		return b.CreateFPToSI(val, target), nil

	case ir.IsFloat(from) && ir.IsFloat(target):
		return b.CreateFPCast(val, target), nil

	case ir.IsInteger(from) && ir.IsInteger(target):
		if from.(ir.IntType).Bits > target.(ir.IntType).Bits {
			return b.CreateTruncOrBitCast(val, target), nil
		}
		return b.CreateZExtOrBitCast(val, target), nil

	case ir.IsPointer(from) && ir.IsInteger(target):
		return b.CreatePtrToInt(val, target), nil

	case ir.IsInteger(from) && ir.IsPointer(target):
		return b.CreateIntToPtr(val, target), nil

	case ir.IsPointer(from) && ir.IsPointer(target):
		return b.CreatePointerCast(val, target), nil

	case ir.IsArray(from) && ir.IsPointer(target):
		elem := target.(ir.PointerType).Elem
		return b.CreateInBoundsGEP(elem, val, ir.ConstInt(ir.I32, 0), "decay"), nil
	}

	return nil, errf("can't perform cast (%s to %s)", from, target)
}

// CastIfNotSame converts only when the types differ.
func CastIfNotSame(mc *ModuleContext, val ir.Value, target ir.Type) (ir.Value, error) {
	if val != nil && val.Type().Equal(target) {
		return val, nil
	}
	return CastValue(mc, val, target)
}
