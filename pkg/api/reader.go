package api

import (
	"io"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// newUnicodeReader wraps a reader so UTF-16 sources with a BOM decode to
// UTF-8; plain UTF-8 input passes through unchanged.
func newUnicodeReader(r io.Reader) io.Reader {
	decoder := unicode.UTF8.NewDecoder()
	return transform.NewReader(r, unicode.BOMOverride(decoder))
}

// ReadSourceFile reads a source file, normalizing its encoding to UTF-8.
func ReadSourceFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(newUnicodeReader(f))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
