package jit

import (
	"fmt"

	"github.com/xcc-lang/xcc/internal/ir"
)

// Memory is the executor's flat address space. Globals grow up from a
// small guard offset (so address 0 stays an observable null), the stack
// lives in its own region above stackBase and is wound back frame by
// frame.
type Memory struct {
	globals []byte
	stack   []byte
	sp      int
}

const (
	nullGuard = 4096
	stackBase = uint64(1) << 32
	stackSize = 8 << 20
)

// NewMemory creates an empty address space.
func NewMemory() *Memory {
	return &Memory{
		globals: make([]byte, nullGuard),
		stack:   make([]byte, stackSize),
	}
}

// AllocGlobal reserves size bytes of global storage and returns its
// address.
func (m *Memory) AllocGlobal(size int) uint64 {
	if size < 1 {
		size = 1
	}
	addr := uint64(len(m.globals))
	m.globals = append(m.globals, make([]byte, size)...)
	return addr
}

// Frame reserves size bytes of stack storage. The returned mark restores
// the stack pointer when the frame unwinds.
func (m *Memory) Frame(size int) (addr uint64, mark int, err error) {
	if m.sp+size > len(m.stack) {
		return 0, 0, fmt.Errorf("stack overflow (%d bytes requested)", size)
	}
	addr = stackBase + uint64(m.sp)
	mark = m.sp
	m.sp += size
	clear(m.stack[mark:m.sp])
	return addr, mark, nil
}

// Unwind releases stack storage down to a mark.
func (m *Memory) Unwind(mark int) {
	m.sp = mark
}

// StackMark returns the current stack pointer.
func (m *Memory) StackMark() int { return m.sp }

func (m *Memory) slice(addr uint64, size int) ([]byte, error) {
	if addr >= stackBase {
		off := int(addr - stackBase)
		if off+size > len(m.stack) {
			return nil, fmt.Errorf("out-of-bounds stack access at %#x", addr)
		}
		return m.stack[off : off+size], nil
	}
	if addr < nullGuard {
		return nil, fmt.Errorf("null pointer access at %#x", addr)
	}
	if int(addr)+size > len(m.globals) {
		return nil, fmt.Errorf("out-of-bounds access at %#x", addr)
	}
	return m.globals[addr : int(addr)+size], nil
}

// Read loads size bytes at addr as a little-endian integer.
func (m *Memory) Read(addr uint64, size int) (uint64, error) {
	buf, err := m.slice(addr, size)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, nil
}

// Write stores the low size bytes of v at addr, little endian.
func (m *Memory) Write(addr uint64, size int, v uint64) error {
	buf, err := m.slice(addr, size)
	if err != nil {
		return err
	}
	for i := 0; i < size; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	return nil
}

// Copy moves size bytes from src to dst.
func (m *Memory) Copy(dst, src uint64, size int) error {
	from, err := m.slice(src, size)
	if err != nil {
		return err
	}
	to, err := m.slice(dst, size)
	if err != nil {
		return err
	}
	copy(to, from)
	return nil
}

// WriteBytes stores raw bytes at addr.
func (m *Memory) WriteBytes(addr uint64, data []byte) error {
	buf, err := m.slice(addr, len(data))
	if err != nil {
		return err
	}
	copy(buf, data)
	return nil
}

// ReadCString reads a NUL-terminated byte string at addr.
func (m *Memory) ReadCString(addr uint64) (string, error) {
	var out []byte
	for {
		b, err := m.Read(addr, 1)
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(out), nil
		}
		out = append(out, byte(b))
		addr++
	}
}

// materialize encodes a constant initializer at addr.
func (m *Memory) materialize(addr uint64, init ir.Constant) error {
	switch c := init.(type) {
	case ir.ScalarInit:
		return m.Write(addr, c.Value.Type().Size(), c.Value.Bits)
	case ir.BytesInit:
		return m.WriteBytes(addr, c.Data)
	case ir.StructInit:
		for i, f := range c.Fields {
			if f == nil {
				continue
			}
			if err := m.materialize(addr+uint64(c.Struct.FieldOffset(i)), f); err != nil {
				return err
			}
		}
		return nil
	case ir.ZeroInit:
		return m.WriteBytes(addr, make([]byte, c.Of.Size()))
	case nil:
		return nil
	}
	return fmt.Errorf("unsupported initializer %T", init)
}
