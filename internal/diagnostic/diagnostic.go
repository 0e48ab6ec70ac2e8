// Package diagnostic provides error classification and source-context
// formatting for compiler failures reported to the user.
package diagnostic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xcc-lang/xcc/internal/codegen"
	"github.com/xcc-lang/xcc/internal/lexer"
	"github.com/xcc-lang/xcc/internal/parser"
)

// Severity represents the severity level of a diagnostic.
type Severity uint8

const (
	// Error aborts a whole-program run.
	Error Severity = iota
	// Warning is a non-blocking issue.
	Warning
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		return "unknown"
	}
}

// Stage identifies which pipeline stage produced a diagnostic.
type Stage uint8

const (
	StageUnknown Stage = iota
	StageLex
	StageParse
	StageCodegen
)

func (s Stage) String() string {
	switch s {
	case StageLex:
		return "lex"
	case StageParse:
		return "parse"
	case StageCodegen:
		return "codegen"
	default:
		return "xcc"
	}
}

// Diagnostic is a classified compiler failure.
type Diagnostic struct {
	Severity Severity
	Stage    Stage
	Line     int // 1-based; 0 when unknown
	Message  string
}

// FromError classifies an error from the pipeline into a diagnostic.
func FromError(err error) Diagnostic {
	var lexErr *lexer.LexError
	if errors.As(err, &lexErr) {
		return Diagnostic{Severity: Error, Stage: StageLex, Line: lexErr.Line, Message: lexErr.Message}
	}

	var parseErr *parser.ParseError
	if errors.As(err, &parseErr) {
		return Diagnostic{Severity: Error, Stage: StageParse, Line: parseErr.Line, Message: parseErr.Message}
	}

	var cgErr *codegen.CodegenError
	if errors.As(err, &cgErr) {
		return Diagnostic{Severity: Error, Stage: StageCodegen, Line: cgErr.Line, Message: cgErr.Message}
	}

	return Diagnostic{Severity: Error, Message: err.Error()}
}

// Format renders the diagnostic, with the offending source line when the
// diagnostic carries one and source is available.
func (d Diagnostic) Format(source string) string {
	var sb strings.Builder

	if d.Line > 0 {
		fmt.Fprintf(&sb, "%s: %d: %s", d.Severity, d.Line, d.Message)
	} else {
		fmt.Fprintf(&sb, "%s: %s", d.Severity, d.Message)
	}

	if line := sourceLine(source, d.Line); line != "" {
		sb.WriteByte('\n')
		sb.WriteString("    " + line)
	}

	return sb.String()
}

func (d Diagnostic) Error() string {
	return d.Format("")
}

// sourceLine returns the 1-based source line, trimmed of trailing CR.
func sourceLine(source string, line int) string {
	if line < 1 || source == "" {
		return ""
	}
	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return ""
	}
	return strings.TrimRight(lines[line-1], "\r")
}
