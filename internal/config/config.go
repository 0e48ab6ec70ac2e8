// Package config loads xcc driver configuration from xcc.json files.
//
// Load searches the starting directory and its parents; CLI flags override
// config file settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFileNames are the recognized config file names, in priority order.
var ConfigFileNames = []string{"xcc.json", ".xccrc"}

// Config holds driver options.
type Config struct {
	// PrintTokens dumps the token stream of every compiled unit.
	PrintTokens bool `json:"printTokens"`

	// PrintAST dumps the parsed tree of every compiled unit.
	PrintAST bool `json:"printAst"`

	// PrintIR dumps every module's IR before it is handed to the JIT.
	PrintIR bool `json:"printIr"`

	// PoolSize bounds the JIT's module finalization pool.
	PoolSize int `json:"poolSize"`

	// Prompt overrides the REPL prompt.
	Prompt string `json:"prompt"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		PoolSize: 0, // engine default
		Prompt:   "-> ",
	}
}

// LoadFile reads a specific config file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Load searches startDir and its parents for a config file. It returns the
// defaults and an empty path when none is found.
func Load(startDir string) (*Config, string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, "", err
	}

	for {
		for _, name := range ConfigFileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				cfg, err := LoadFile(path)
				if err != nil {
					return nil, "", err
				}
				return cfg, path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), "", nil
		}
		dir = parent
	}
}

// MergeFlags describes CLI overrides; nil pointers leave the config value
// untouched.
type MergeFlags struct {
	PrintTokens *bool
	PrintAST    *bool
	PrintIR     *bool
	PoolSize    *int
}

// Merge applies CLI overrides on top of the config.
func (c *Config) Merge(flags MergeFlags) *Config {
	out := *c
	if flags.PrintTokens != nil {
		out.PrintTokens = *flags.PrintTokens
	}
	if flags.PrintAST != nil {
		out.PrintAST = *flags.PrintAST
	}
	if flags.PrintIR != nil {
		out.PrintIR = *flags.PrintIR
	}
	if flags.PoolSize != nil {
		out.PoolSize = *flags.PoolSize
	}
	return &out
}
