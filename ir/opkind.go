package ir

// OpKind enumerates the binary operators of the IR.
type OpKind int

//go:generate go tool enumer -type=OpKind -trimprefix=Op opkind.go

const (
	InvalidOp OpKind = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpFloorDiv
	OpFloorMod
	OpMin
	OpMax
	OpEQ
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
	OpAnd
	OpOr
)

// infixSymbols used both by the IR printer and by the C code generators.
var infixSymbols = map[OpKind]string{
	OpAdd: "+",
	OpSub: "-",
	OpMul: "*",
	OpDiv: "/",
	OpMod: "%",
	OpEQ:  "==",
	OpNE:  "!=",
	OpLT:  "<",
	OpLE:  "<=",
	OpGT:  ">",
	OpGE:  ">=",
	OpAnd: "&&",
	OpOr:  "||",
}

// InfixSymbol returns the C-like infix operator for op, or "" if op is printed
// as a function call (floordiv, floormod, min, max).
func (op OpKind) InfixSymbol() string {
	return infixSymbols[op]
}

// IsComparison returns whether the operator yields a boolean from two numbers.
func (op OpKind) IsComparison() bool {
	return op >= OpEQ && op <= OpGE
}

// IsLogical returns whether the operator combines two booleans.
func (op OpKind) IsLogical() bool {
	return op == OpAnd || op == OpOr
}
