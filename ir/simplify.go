package ir

import "math"

// Simplify folds constants and removes arithmetic identities (x+0, x*1, floordiv(x, 1), ...).
//
// It is a local rewriter: it never reorders non-constant terms, except to merge the
// constants of chained additions and subtractions like "(x + 63) - 1".
func Simplify(e Expr) Expr {
	return MutateExpr(e, simplifyNode)
}

// SimplifyStmt simplifies all expressions in the statement and removes branches
// whose condition is a known constant.
func SimplifyStmt(s Stmt) Stmt {
	return MutateStmt(s, simplifyNode, func(s Stmt) Stmt {
		ite, ok := s.(*IfThenElse)
		if !ok {
			return nil
		}
		cond := ite.Cond
		if call, ok := cond.(*Call); ok && call.Op == BuiltinLikely {
			cond = call.Args[0]
		}
		if v, ok := IsConstInt(cond); ok {
			if v != 0 {
				return ite.Then
			}
			if ite.Else != nil {
				return ite.Else
			}
			return NoOp()
		}
		return nil
	})
}

func isZero(e Expr) bool {
	switch n := e.(type) {
	case *IntImm:
		return n.Value == 0
	case *FloatImm:
		return n.Value == 0
	}
	return false
}

func isOne(e Expr) bool {
	switch n := e.(type) {
	case *IntImm:
		return n.Value == 1
	case *FloatImm:
		return n.Value == 1
	}
	return false
}

func floorDivInt(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorModInt(a, b int64) int64 {
	return a - floorDivInt(a, b)*b
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// foldInts returns the folded constant, or nil if it cannot be folded (e.g. division by zero).
func foldInts(op OpKind, dtype DataType, a, b int64) Expr {
	var v int64
	switch op {
	case OpAdd:
		v = a + b
	case OpSub:
		v = a - b
	case OpMul:
		v = a * b
	case OpDiv:
		if b == 0 {
			return nil
		}
		v = a / b
	case OpMod:
		if b == 0 {
			return nil
		}
		v = a % b
	case OpFloorDiv:
		if b == 0 {
			return nil
		}
		v = floorDivInt(a, b)
	case OpFloorMod:
		if b == 0 {
			return nil
		}
		v = floorModInt(a, b)
	case OpMin:
		v = min(a, b)
	case OpMax:
		v = max(a, b)
	case OpEQ:
		return MakeInt(Bool(), boolInt(a == b))
	case OpNE:
		return MakeInt(Bool(), boolInt(a != b))
	case OpLT:
		return MakeInt(Bool(), boolInt(a < b))
	case OpLE:
		return MakeInt(Bool(), boolInt(a <= b))
	case OpGT:
		return MakeInt(Bool(), boolInt(a > b))
	case OpGE:
		return MakeInt(Bool(), boolInt(a >= b))
	case OpAnd:
		return MakeInt(Bool(), boolInt(a != 0 && b != 0))
	case OpOr:
		return MakeInt(Bool(), boolInt(a != 0 || b != 0))
	default:
		return nil
	}
	return MakeInt(dtype, v)
}

func foldFloats(op OpKind, dtype DataType, a, b float64) Expr {
	switch op {
	case OpAdd:
		return MakeFloat(dtype, a+b)
	case OpSub:
		return MakeFloat(dtype, a-b)
	case OpMul:
		return MakeFloat(dtype, a*b)
	case OpDiv:
		if b == 0 {
			return nil
		}
		return MakeFloat(dtype, a/b)
	case OpMin:
		return MakeFloat(dtype, math.Min(a, b))
	case OpMax:
		return MakeFloat(dtype, math.Max(a, b))
	case OpEQ:
		return MakeInt(Bool(), boolInt(a == b))
	case OpNE:
		return MakeInt(Bool(), boolInt(a != b))
	case OpLT:
		return MakeInt(Bool(), boolInt(a < b))
	case OpLE:
		return MakeInt(Bool(), boolInt(a <= b))
	case OpGT:
		return MakeInt(Bool(), boolInt(a > b))
	case OpGE:
		return MakeInt(Bool(), boolInt(a >= b))
	}
	return nil
}

func simplifyNode(e Expr) Expr {
	switch n := e.(type) {
	case *Binary:
		return simplifyBinary(n)
	case *Not:
		if v, ok := IsConstInt(n.A); ok {
			return MakeBool(v == 0)
		}
		if inner, ok := n.A.(*Not); ok {
			return inner.A
		}
	case *Select:
		if v, ok := IsConstInt(n.Cond); ok {
			if v != 0 {
				return n.True
			}
			return n.False
		}
	case *Cast:
		if n.Value.DataType() == n.DType {
			return n.Value
		}
		switch v := n.Value.(type) {
		case *IntImm:
			if n.DType.IsIntegral() {
				return MakeInt(n.DType, v.Value)
			}
			if n.DType.IsFloat() {
				return MakeFloat(n.DType, float64(v.Value))
			}
		case *FloatImm:
			if n.DType.IsFloat() {
				return MakeFloat(n.DType, v.Value)
			}
		}
	}
	return nil
}

func simplifyBinary(n *Binary) Expr {
	dtype := n.DataType()
	ca, aIsInt := IsConstInt(n.A)
	cb, bIsInt := IsConstInt(n.B)
	if aIsInt && bIsInt {
		if folded := foldInts(n.Op, dtype, ca, cb); folded != nil {
			return folded
		}
	}
	if fa, ok := n.A.(*FloatImm); ok {
		if fb, ok := n.B.(*FloatImm); ok {
			if folded := foldFloats(n.Op, dtype, fa.Value, fb.Value); folded != nil {
				return folded
			}
		}
	}

	switch n.Op {
	case OpAdd:
		if isZero(n.B) {
			return n.A
		}
		if isZero(n.A) {
			return n.B
		}
		if bIsInt {
			if merged := mergeConstOffset(n.A, cb); merged != nil {
				return merged
			}
		}
	case OpSub:
		if isZero(n.B) {
			return n.A
		}
		if bIsInt {
			if merged := mergeConstOffset(n.A, -cb); merged != nil {
				return merged
			}
		}
	case OpMul:
		if isOne(n.B) {
			return n.A
		}
		if isOne(n.A) {
			return n.B
		}
		if dtype.IsIntegral() && (isZero(n.A) || isZero(n.B)) {
			return MakeInt(dtype, 0)
		}
	case OpDiv, OpFloorDiv:
		if isOne(n.B) {
			return n.A
		}
		if n.Op == OpFloorDiv && bIsInt && cb > 0 {
			// floordiv(x*c, c) -> x
			if mul, ok := n.A.(*Binary); ok && mul.Op == OpMul {
				if c, ok := IsConstInt(mul.B); ok && c == cb {
					return mul.A
				}
			}
		}
	case OpMod, OpFloorMod:
		if dtype.IsIntegral() && isOne(n.B) {
			return MakeInt(dtype, 0)
		}
		if n.Op == OpFloorMod && bIsInt && cb > 0 {
			if mul, ok := n.A.(*Binary); ok && mul.Op == OpMul {
				if c, ok := IsConstInt(mul.B); ok && c == cb {
					return MakeInt(dtype, 0)
				}
			}
		}
	case OpAnd:
		if aIsInt {
			if ca != 0 {
				return n.B
			}
			return MakeBool(false)
		}
		if bIsInt {
			if cb != 0 {
				return n.A
			}
			return MakeBool(false)
		}
	case OpOr:
		if aIsInt {
			if ca != 0 {
				return MakeBool(true)
			}
			return n.B
		}
		if bIsInt {
			if cb != 0 {
				return MakeBool(true)
			}
			return n.A
		}
	}
	return nil
}

// mergeConstOffset rewrites "(x + c1) + c2" and "(x - c1) + c2" into "x + (c1+c2)".
// It returns nil if x is not such a sum.
func mergeConstOffset(x Expr, c int64) Expr {
	inner, ok := x.(*Binary)
	if !ok || (inner.Op != OpAdd && inner.Op != OpSub) {
		return nil
	}
	c1, ok := IsConstInt(inner.B)
	if !ok {
		return nil
	}
	if inner.Op == OpSub {
		c1 = -c1
	}
	total := c1 + c
	dtype := inner.DataType()
	switch {
	case total == 0:
		return inner.A
	case total > 0:
		return Add(inner.A, MakeInt(dtype, total))
	default:
		return Sub(inner.A, MakeInt(dtype, -total))
	}
}
