package jit

import (
	"fmt"
	"io"
	"os"
)

// HostFunc is a native function callable from JITted code. Arguments and
// the result travel as raw 64-bit payloads; Env gives access to the
// executor's memory for pointer arguments.
type HostFunc func(env *Env, args []uint64) (uint64, error)

// Env is the execution environment handed to host functions.
type Env struct {
	Mem    *Memory
	Stdout io.Writer
}

// defaultHostSymbols is the extern surface resolved against the "host
// process". Any name declared `extern fn` and not defined by a module
// resolves here when first called.
func defaultHostSymbols() map[string]HostFunc {
	return map[string]HostFunc{
		"putchar": func(env *Env, args []uint64) (uint64, error) {
			fmt.Fprintf(env.Stdout, "%c", byte(args[0]))
			return uint64(args[0]), nil
		},
		"getchar": func(env *Env, args []uint64) (uint64, error) {
			var buf [1]byte
			if _, err := os.Stdin.Read(buf[:]); err != nil {
				return ^uint64(0), nil // EOF reads as -1
			}
			return uint64(buf[0]), nil
		},
		"puts": func(env *Env, args []uint64) (uint64, error) {
			s, err := env.Mem.ReadCString(args[0])
			if err != nil {
				return 0, err
			}
			fmt.Fprint(env.Stdout, s)
			return 0, nil
		},
		"putd": func(env *Env, args []uint64) (uint64, error) {
			fmt.Fprintf(env.Stdout, "%d", int32(args[0]))
			return 0, nil
		},
		"putud": func(env *Env, args []uint64) (uint64, error) {
			fmt.Fprintf(env.Stdout, "%d", uint32(args[0]))
			return 0, nil
		},
		"putux": func(env *Env, args []uint64) (uint64, error) {
			fmt.Fprintf(env.Stdout, "%x", uint32(args[0]))
			return 0, nil
		},
		"abs": func(env *Env, args []uint64) (uint64, error) {
			v := int32(args[0])
			if v < 0 {
				v = -v
			}
			return uint64(uint32(v)), nil
		},
		"exit": func(env *Env, args []uint64) (uint64, error) {
			os.Exit(int(int32(args[0])))
			return 0, nil
		},
	}
}
