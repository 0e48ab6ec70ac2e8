// Package types provides the xcc value-type system: primitives, pointers
// and named record types, with the widening order used for implicit casts
// and a process-wide registry of user-defined types.
package types

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xcc-lang/xcc/internal/ir"
)

// Tag identifies a type. The declaration order is the widening order:
// aligning two types picks the one with the larger tag.
type Tag uint8

const (
	TagVoid Tag = iota
	TagU8
	TagI8
	TagU16
	TagI16
	TagU32
	TagI32
	TagU64
	TagI64
	TagF32
	TagF64
	TagPointer
	TagStruct
)

// Field is a named struct member.
type Field struct {
	Name string
	Type *Type
}

// Type is an xcc value type. Instances are immutable after construction.
type Type struct {
	tag     Tag
	pointee *Type   // TagPointer
	name    string  // TagStruct
	fields  []Field // TagStruct
}

// ----------------------------------------------------------------------------
// Constructors
// ----------------------------------------------------------------------------

var (
	voidType = &Type{tag: TagVoid}
	u8Type   = &Type{tag: TagU8}
	i8Type   = &Type{tag: TagI8}
	u16Type  = &Type{tag: TagU16}
	i16Type  = &Type{tag: TagI16}
	u32Type  = &Type{tag: TagU32}
	i32Type  = &Type{tag: TagI32}
	u64Type  = &Type{tag: TagU64}
	i64Type  = &Type{tag: TagI64}
	f32Type  = &Type{tag: TagF32}
	f64Type  = &Type{tag: TagF64}
)

func Void() *Type { return voidType }
func U8() *Type   { return u8Type }
func I8() *Type   { return i8Type }
func U16() *Type  { return u16Type }
func I16() *Type  { return i16Type }
func U32() *Type  { return u32Type }
func I32() *Type  { return i32Type }
func U64() *Type  { return u64Type }
func I64() *Type  { return i64Type }
func F32() *Type  { return f32Type }
func F64() *Type  { return f64Type }

// Signed returns the signed integer type of the given bit width; widths
// other than 8/16/32 fall back to 64.
func Signed(bits int) *Type {
	switch bits {
	case 8:
		return i8Type
	case 16:
		return i16Type
	case 32:
		return i32Type
	default:
		return i64Type
	}
}

// Unsigned returns the unsigned integer type of the given bit width.
func Unsigned(bits int) *Type {
	switch bits {
	case 8:
		return u8Type
	case 16:
		return u16Type
	case 32:
		return u32Type
	default:
		return u64Type
	}
}

// Floating returns f32 for 32 bits, otherwise f64.
func Floating(bits int) *Type {
	if bits == 32 {
		return f32Type
	}
	return f64Type
}

// Pointer returns a pointer type to inner.
func Pointer(inner *Type) *Type {
	return &Type{tag: TagPointer, pointee: inner}
}

// Struct returns a named record type with ordered fields.
func Struct(name string, fields []Field) *Type {
	return &Type{tag: TagStruct, name: name, fields: fields}
}

// ----------------------------------------------------------------------------
// Inspection
// ----------------------------------------------------------------------------

func (t *Type) Tag() Tag { return t.tag }

func (t *Type) IsVoid() bool    { return t.tag == TagVoid }
func (t *Type) IsPointer() bool { return t.tag == TagPointer }
func (t *Type) IsStruct() bool  { return t.tag == TagStruct }

func (t *Type) IsSigned() bool {
	switch t.tag {
	case TagI8, TagI16, TagI32, TagI64:
		return true
	}
	return false
}

func (t *Type) IsUnsigned() bool {
	switch t.tag {
	case TagU8, TagU16, TagU32, TagU64:
		return true
	}
	return false
}

func (t *Type) IsInteger() bool { return t.IsSigned() || t.IsUnsigned() }

func (t *Type) IsFloat() bool { return t.tag == TagF32 || t.tag == TagF64 }

// Pointee returns the pointed-at type, or nil for non-pointers.
func (t *Type) Pointee() *Type { return t.pointee }

// BitWidth returns the numeric bit width, or 0 for non-numeric types.
func (t *Type) BitWidth() int {
	switch t.tag {
	case TagU8, TagI8:
		return 8
	case TagU16, TagI16:
		return 16
	case TagU32, TagI32, TagF32:
		return 32
	case TagU64, TagI64, TagF64:
		return 64
	}
	return 0
}

// Equal compares structurally.
func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.tag != o.tag {
		return false
	}
	switch t.tag {
	case TagPointer:
		return t.pointee.Equal(o.pointee)
	case TagStruct:
		if t.name != o.name || len(t.fields) != len(o.fields) {
			return false
		}
		for i := range t.fields {
			if t.fields[i].Name != o.fields[i].Name || !t.fields[i].Type.Equal(o.fields[i].Type) {
				return false
			}
		}
		return true
	}
	return true
}

// Name returns the declared struct name, or the spelled form for other
// types.
func (t *Type) Name() string {
	if t.tag == TagStruct {
		return t.name
	}
	return t.String()
}

func (t *Type) String() string {
	switch t.tag {
	case TagVoid:
		return "void"
	case TagU8:
		return "u8"
	case TagI8:
		return "i8"
	case TagU16:
		return "u16"
	case TagI16:
		return "i16"
	case TagU32:
		return "u32"
	case TagI32:
		return "i32"
	case TagU64:
		return "u64"
	case TagI64:
		return "i64"
	case TagF32:
		return "f32"
	case TagF64:
		return "f64"
	case TagPointer:
		return t.pointee.String() + "*"
	case TagStruct:
		parts := make([]string, len(t.fields))
		for i, f := range t.fields {
			parts[i] = f.Name + ": " + f.Type.String()
		}
		return "struct {" + strings.Join(parts, ", ") + "}"
	}
	return "<?>"
}

// ----------------------------------------------------------------------------
// Struct members
// ----------------------------------------------------------------------------

// Fields returns the ordered field list of a struct type.
func (t *Type) Fields() []Field { return t.fields }

// HasMember reports whether a struct type has a field of the given name.
func (t *Type) HasMember(name string) bool {
	for _, f := range t.fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// MemberIndex returns the positional slot of a field.
func (t *Type) MemberIndex(name string) (int, error) {
	for i, f := range t.fields {
		if f.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("struct '%s' has no member '%s'", t.Name(), name)
}

// MemberType returns the type of a field.
func (t *Type) MemberType(name string) (*Type, error) {
	for _, f := range t.fields {
		if f.Name == name {
			return f.Type, nil
		}
	}
	return nil, fmt.Errorf("struct '%s' has no member '%s'", t.Name(), name)
}

// ----------------------------------------------------------------------------
// Registry
// ----------------------------------------------------------------------------

var (
	customMu    sync.RWMutex
	customTypes = make(map[string]*Type)
)

// RegisterCustomType records a user-defined type under its declared name.
// The registry is process-wide and lives across REPL turns.
func RegisterCustomType(name string, t *Type) {
	customMu.Lock()
	defer customMu.Unlock()
	customTypes[name] = t
}

// FromName resolves a type name: first the built-in primitives, then the
// user-type registry.
func FromName(name string) (*Type, error) {
	switch name {
	case "void":
		return voidType, nil
	case "i8":
		return i8Type, nil
	case "i16":
		return i16Type, nil
	case "i32":
		return i32Type, nil
	case "i64":
		return i64Type, nil
	case "u8":
		return u8Type, nil
	case "u16":
		return u16Type, nil
	case "u32":
		return u32Type, nil
	case "u64":
		return u64Type, nil
	case "f32":
		return f32Type, nil
	case "f64":
		return f64Type, nil
	}

	customMu.RLock()
	defer customMu.RUnlock()
	if t, ok := customTypes[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("unknown type '%s'", name)
}

// ResetCustomTypes clears the user-type registry. Tests only.
func ResetCustomTypes() {
	customMu.Lock()
	defer customMu.Unlock()
	customTypes = make(map[string]*Type)
}

// ----------------------------------------------------------------------------
// Alignment
// ----------------------------------------------------------------------------

// Align returns the operand with the larger widening ordinal. Binary
// arithmetic implicitly widens both operands to this common type.
func Align(a, b *Type) *Type {
	if a.tag >= b.tag {
		return a
	}
	return b
}

// ----------------------------------------------------------------------------
// Backend mapping
// ----------------------------------------------------------------------------

// IRType maps a meta type to its backend representation.
func (t *Type) IRType() ir.Type {
	switch t.tag {
	case TagVoid:
		return ir.Void
	case TagU8, TagI8:
		return ir.I8
	case TagU16, TagI16:
		return ir.I16
	case TagU32, TagI32:
		return ir.I32
	case TagU64, TagI64:
		return ir.I64
	case TagF32:
		return ir.F32
	case TagF64:
		return ir.F64
	case TagPointer:
		return ir.PointerTo(t.pointee.IRType())
	case TagStruct:
		fields := make([]ir.Type, len(t.fields))
		for i, f := range t.fields {
			fields[i] = f.Type.IRType()
		}
		return ir.StructType{Name: t.name, Fields: fields}
	}
	return ir.Void
}

// Default returns the zero value of the type as a constant initializer:
// null for pointers, a field-wise default for structs, nothing for void.
func (t *Type) Default() ir.Constant {
	switch t.tag {
	case TagVoid:
		return nil
	case TagF32, TagF64:
		return ir.ScalarInit{Value: ir.ConstFloat(t.IRType().(ir.FloatType), 0)}
	case TagPointer:
		return ir.ScalarInit{Value: ir.ConstNull(t.IRType().(ir.PointerType))}
	case TagStruct:
		st := t.IRType().(ir.StructType)
		fields := make([]ir.Constant, len(t.fields))
		for i, f := range t.fields {
			fields[i] = f.Type.Default()
		}
		return ir.StructInit{Struct: st, Fields: fields}
	}
	return ir.ScalarInit{Value: ir.ConstInt(t.IRType().(ir.IntType), 0)}
}

// DefaultValue returns the zero value as an operand for use inside a
// function body; nil for void.
func (t *Type) DefaultValue() ir.Value {
	switch t.tag {
	case TagVoid:
		return nil
	default:
		return ir.ConstZero(t.IRType())
	}
}
