package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcc-lang/xcc/internal/ir"
)

func TestPrimitiveNameBijection(t *testing.T) {
	names := []string{"void", "i8", "i16", "i32", "i64", "u8", "u16", "u32", "u64", "f32", "f64"}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			typ, err := FromName(name)
			require.NoError(t, err)
			assert.Equal(t, name, typ.String())
		})
	}
}

func TestUnknownTypeName(t *testing.T) {
	_, err := FromName("NoSuchType")
	assert.Error(t, err)
}

func TestCustomTypeRegistry(t *testing.T) {
	defer ResetCustomTypes()

	point := Struct("RegPoint", []Field{
		{Name: "x", Type: I32()},
		{Name: "y", Type: I32()},
	})
	RegisterCustomType("RegPoint", point)

	first, err := FromName("RegPoint")
	require.NoError(t, err)
	second, err := FromName("RegPoint")
	require.NoError(t, err)

	// The registry hands back the same metadata reference every time.
	assert.Same(t, first, second)
	assert.Same(t, point, first)
}

func TestAlignCommutative(t *testing.T) {
	all := []*Type{
		Void(), U8(), I8(), U16(), I16(), U32(), I32(), U64(), I64(), F32(), F64(),
		Pointer(I8()), Struct("S", nil),
	}

	for _, a := range all {
		for _, b := range all {
			assert.Same(t, Align(a, b), Align(b, a), "Align(%s, %s)", a, b)
		}
	}
}

func TestWideningOrder(t *testing.T) {
	ptr := Pointer(I8())
	cases := []struct {
		a, b, want *Type
	}{
		{U8(), I8(), I8()},
		{I8(), U16(), U16()},
		{I32(), I64(), I64()},
		{I64(), F32(), F32()},
		{F32(), F64(), F64()},
		{F64(), ptr, ptr},
		{I32(), I32(), I32()},
	}

	for _, tc := range cases {
		assert.Same(t, tc.want, Align(tc.a, tc.b), "Align(%s, %s)", tc.a, tc.b)
	}
}

func TestSignednessPredicates(t *testing.T) {
	assert.True(t, I32().IsSigned())
	assert.False(t, I32().IsUnsigned())
	assert.True(t, U64().IsUnsigned())
	assert.True(t, U8().IsInteger())
	assert.False(t, F32().IsInteger())
	assert.True(t, F64().IsFloat())
	assert.False(t, Pointer(I8()).IsInteger())
}

func TestSelectors(t *testing.T) {
	assert.Same(t, I16(), Signed(16))
	assert.Same(t, I64(), Signed(64))
	assert.Same(t, I64(), Signed(0))
	assert.Same(t, U32(), Unsigned(32))
	assert.Same(t, F32(), Floating(32))
	assert.Same(t, F64(), Floating(64))
}

func TestPointerType(t *testing.T) {
	p := Pointer(I64())
	assert.True(t, p.IsPointer())
	assert.Same(t, I64(), p.Pointee())
	assert.Equal(t, "i64*", p.String())
	assert.Equal(t, "i8**", Pointer(Pointer(I8())).String())
}

func TestStructMembers(t *testing.T) {
	st := Struct("P", []Field{
		{Name: "x", Type: I32()},
		{Name: "y", Type: I64()},
	})

	assert.True(t, st.HasMember("x"))
	assert.False(t, st.HasMember("z"))

	idx, err := st.MemberIndex("y")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	typ, err := st.MemberType("y")
	require.NoError(t, err)
	assert.Same(t, I64(), typ)

	_, err = st.MemberIndex("z")
	assert.Error(t, err)
}

func TestIRTypeMapping(t *testing.T) {
	assert.Equal(t, ir.I32, I32().IRType())
	assert.Equal(t, ir.I32, U32().IRType())
	assert.Equal(t, ir.F64, F64().IRType())
	assert.Equal(t, ir.PointerTo(ir.I8), Pointer(I8()).IRType())

	st := Struct("P", []Field{
		{Name: "x", Type: I32()},
		{Name: "y", Type: I32()},
	})
	irType, ok := st.IRType().(ir.StructType)
	require.True(t, ok)
	assert.Equal(t, 8, irType.Size())
}

func TestDefaults(t *testing.T) {
	assert.Nil(t, Void().Default())

	scalar, ok := I32().Default().(ir.ScalarInit)
	require.True(t, ok)
	assert.Equal(t, uint64(0), scalar.Value.Bits)

	ptr, ok := Pointer(I8()).Default().(ir.ScalarInit)
	require.True(t, ok)
	assert.Equal(t, uint64(0), ptr.Value.Bits)

	st := Struct("P", []Field{{Name: "x", Type: I32()}})
	structInit, ok := st.Default().(ir.StructInit)
	require.True(t, ok)
	assert.Len(t, structInit.Fields, 1)
}
