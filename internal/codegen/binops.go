package codegen

import (
	"github.com/xcc-lang/xcc/internal/ir"
	"github.com/xcc-lang/xcc/internal/lexer"
	"github.com/xcc-lang/xcc/internal/types"
)

// Cond is the type-class bitmask used to match binary-operation table
// entries against operand types.
type Cond uint8

const (
	CondNone     Cond = 0
	CondInteger  Cond = 1 << 0
	CondFloat    Cond = 1 << 1
	CondSigned   Cond = 1 << 2
	CondUnsigned Cond = 1 << 3
)

// BinOpMeta is the lookup key: an operator and the type classes of the
// (already aligned) operands.
type BinOpMeta struct {
	Op   lexer.TokenKind
	Cond Cond
}

// MetaFromType builds a lookup key from an operator token and the common
// operand type.
func MetaFromType(op lexer.TokenKind, t *types.Type) BinOpMeta {
	var cond Cond
	if t.IsInteger() {
		cond |= CondInteger
	}
	if t.IsFloat() {
		cond |= CondFloat
	}
	if t.IsSigned() {
		cond |= CondSigned
	}
	if t.IsUnsigned() {
		cond |= CondUnsigned
	}
	return BinOpMeta{Op: op, Cond: cond}
}

// check reports whether a table entry accepts the query: operators must be
// equal; a NONE entry matches any type; an INTEGER entry additionally pins
// signedness when it carries SIGNED or UNSIGNED; other masks match on any
// shared bit.
func (m BinOpMeta) check(query BinOpMeta) bool {
	if m.Op != query.Op {
		return false
	}
	if m.Cond == CondNone {
		return true
	}

	if m.Cond&CondInteger != 0 && query.Cond&CondInteger != 0 {
		switch {
		case m.Cond&CondSigned != 0:
			return query.Cond&CondSigned != 0
		case m.Cond&CondUnsigned != 0:
			return query.Cond&CondUnsigned != 0
		default:
			return true
		}
	}

	return m.Cond&query.Cond != 0
}

// BinOpEntry binds an operator/type-class pattern to the builder method
// that implements it and the temporary's debug name.
type BinOpEntry struct {
	Meta  BinOpMeta
	Emit  func(*ir.Builder, ir.Value, ir.Value, string) ir.Value
	Twine string
}

// binOps is the fixed dispatch table. Order matters: FindBinOp returns the
// first match.
var binOps = []BinOpEntry{
	{BinOpMeta{lexer.TokPlus, CondInteger}, (*ir.Builder).CreateAdd, "addtmp"},
	{BinOpMeta{lexer.TokPlus, CondFloat}, (*ir.Builder).CreateFAdd, "addftmp"},
	{BinOpMeta{lexer.TokMinus, CondInteger}, (*ir.Builder).CreateSub, "subtmp"},
	{BinOpMeta{lexer.TokMinus, CondFloat}, (*ir.Builder).CreateFSub, "subftmp"},
	{BinOpMeta{lexer.TokStar, CondInteger}, (*ir.Builder).CreateMul, "multmp"},
	{BinOpMeta{lexer.TokStar, CondFloat}, (*ir.Builder).CreateFMul, "mulftmp"},
	{BinOpMeta{lexer.TokSlash, CondInteger | CondSigned}, (*ir.Builder).CreateSDiv, "divstmp"},
	{BinOpMeta{lexer.TokSlash, CondInteger | CondUnsigned}, (*ir.Builder).CreateUDiv, "divutmp"},
	{BinOpMeta{lexer.TokSlash, CondFloat}, (*ir.Builder).CreateFDiv, "divftmp"},
	{BinOpMeta{lexer.TokEqEq, CondInteger}, (*ir.Builder).CreateICmpEQ, "eqcmptmp"},
	{BinOpMeta{lexer.TokEqEq, CondFloat}, (*ir.Builder).CreateFCmpUEQ, "eqcmpftmp"},
	{BinOpMeta{lexer.TokBangEq, CondInteger}, (*ir.Builder).CreateICmpNE, "neqcmptmp"},
	{BinOpMeta{lexer.TokBangEq, CondFloat}, (*ir.Builder).CreateFCmpUNE, "neqcmpftmp"},
	{BinOpMeta{lexer.TokGtEq, CondInteger}, (*ir.Builder).CreateICmpUGE, "gecmptmp"},
	{BinOpMeta{lexer.TokGtEq, CondFloat}, (*ir.Builder).CreateFCmpUGE, "gecmpftmp"},
	{BinOpMeta{lexer.TokGt, CondInteger}, (*ir.Builder).CreateICmpUGT, "gtcmptmp"},
	{BinOpMeta{lexer.TokGt, CondFloat}, (*ir.Builder).CreateFCmpUGT, "gtcmpftmp"},
	{BinOpMeta{lexer.TokLtEq, CondInteger}, (*ir.Builder).CreateICmpULE, "lecmptmp"},
	{BinOpMeta{lexer.TokLtEq, CondFloat}, (*ir.Builder).CreateFCmpULE, "lecmpftmp"},
	{BinOpMeta{lexer.TokLt, CondInteger}, (*ir.Builder).CreateICmpULT, "ltcmptmp"},
	{BinOpMeta{lexer.TokLt, CondFloat}, (*ir.Builder).CreateFCmpULT, "ltcmpftmp"},
	{BinOpMeta{lexer.TokAndAnd, CondNone}, (*ir.Builder).CreateLogicalAnd, "landtmp"},
	{BinOpMeta{lexer.TokOrOr, CondNone}, (*ir.Builder).CreateLogicalOr, "lortmp"},
	{BinOpMeta{lexer.TokAmp, CondNone}, (*ir.Builder).CreateAnd, "andtmp"},
	{BinOpMeta{lexer.TokPipe, CondNone}, (*ir.Builder).CreateOr, "ortmp"},
}

// FindBinOp scans the table in order and returns the first entry accepting
// the query, or nil.
func FindBinOp(table []BinOpEntry, query BinOpMeta) *BinOpEntry {
	for i := range table {
		if table[i].Meta.check(query) {
			return &table[i]
		}
	}
	return nil
}
