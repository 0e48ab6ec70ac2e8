package api

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(Options{})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestRunProgram(t *testing.T) {
	s := newTestSession(t)

	value, hasValue, err := s.RunProgram("fn main(): i32 { return 2 + 3 * 4; }")
	require.NoError(t, err)
	require.True(t, hasValue)
	assert.Equal(t, ValueSigned, value.Kind)
	assert.Equal(t, int64(14), value.Signed)
	assert.Equal(t, "14", value.String())
}

func TestEvalRetainsDefinitions(t *testing.T) {
	s := newTestSession(t)

	_, hasValue, err := s.Eval("fn twice(x: i64): i64 { return x * 2; }")
	require.NoError(t, err)
	assert.False(t, hasValue)

	value, hasValue, err := s.Eval("twice(21)")
	require.NoError(t, err)
	require.True(t, hasValue)
	assert.Equal(t, int64(42), value.Signed)
}

func TestFunctionsListing(t *testing.T) {
	s := newTestSession(t)

	_, _, err := s.Eval("fn one(): i32 { return 1; }")
	require.NoError(t, err)

	listing := s.Functions()
	assert.Contains(t, listing, "fn one(): i32")
}

func TestEvalReportsErrors(t *testing.T) {
	s := newTestSession(t)

	_, _, err := s.Eval("fn broken(): i32 { return nope; }")
	assert.Error(t, err)
}

func TestValueRendering(t *testing.T) {
	assert.Equal(t, "-7", Value{Kind: ValueSigned, Signed: -7}.String())
	assert.Equal(t, "3.5", Value{Kind: ValueFloating, Floating: 3.5}.String())
	assert.Equal(t, "", Value{Kind: ValueNone}.String())
}

func TestReadSourceFilePlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.xcc")
	require.NoError(t, os.WriteFile(path, []byte("fn main(): i32 { return 0; }"), 0o644))

	source, err := ReadSourceFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fn main(): i32 { return 0; }", source)
}

func TestReadSourceFileUTF16(t *testing.T) {
	// "var x" encoded as UTF-16 LE with a BOM.
	data := []byte{0xff, 0xfe}
	for _, r := range "var x" {
		data = append(data, byte(r), 0)
	}

	path := filepath.Join(t.TempDir(), "utf16.xcc")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	source, err := ReadSourceFile(path)
	require.NoError(t, err)
	assert.Equal(t, "var x", source)
}

func TestReadSourceFileUTF8BOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bom.xcc")
	require.NoError(t, os.WriteFile(path, []byte("\xef\xbb\xbfvar x"), 0o644))

	source, err := ReadSourceFile(path)
	require.NoError(t, err)
	assert.Equal(t, "var x", source)
}

func TestReadSourceFileMissing(t *testing.T) {
	_, err := ReadSourceFile(filepath.Join(t.TempDir(), "missing.xcc"))
	assert.Error(t, err)
}
