// Package typeinference calculates the data type resulting from IR expressions and validates
// their operands.
//
// It defines a BinaryOp function for the binary operators: operands must have the same data
// type, comparisons yield booleans and the remaining operators keep the operands data type.
//
// Check walks a whole expression tree, and is used by the front-end to validate user
// provided compute bodies before they are lowered.
package typeinference

import (
	"github.com/gomlx/tegen/internal/utils"
	"github.com/gomlx/tegen/ir"
	"github.com/pkg/errors"
)

var (
	// ArithmeticOperations take numbers (integer or float) and return the same data type.
	ArithmeticOperations = utils.SetWith(
		ir.OpAdd,
		ir.OpSub,
		ir.OpMul,
		ir.OpDiv,
		ir.OpMin,
		ir.OpMax,
	)

	// IntegerOperations only accept integers.
	IntegerOperations = utils.SetWith(
		ir.OpMod,
		ir.OpFloorDiv,
		ir.OpFloorMod,
	)

	// ComparisonOperations take two numbers and return a boolean.
	ComparisonOperations = utils.SetWith(
		ir.OpEQ,
		ir.OpNE,
		ir.OpLT,
		ir.OpLE,
		ir.OpGT,
		ir.OpGE,
	)

	// LogicalOperations take two booleans and return a boolean.
	LogicalOperations = utils.SetWith(
		ir.OpAnd,
		ir.OpOr,
	)
)

func isNumber(dtype ir.DataType) bool {
	return dtype.IsIntegral() || dtype.IsFloat() || dtype.IsBFloat()
}

// BinaryOp returns the data type of the result of a binary operator.
//
// It returns an error if the data types are invalid for the operation -- e.g.: non-matching
// dtypes, or And not having booleans as input.
func BinaryOp(op ir.OpKind, lhs, rhs ir.DataType) (output ir.DataType, err error) {
	if op == ir.InvalidOp || !op.IsAOpKind() {
		err = errors.Errorf("invalid binary operator %s", op)
		return
	}
	if lhs.IsVoid() || rhs.IsVoid() || lhs.IsHandle() || rhs.IsHandle() {
		err = errors.Errorf("operands of %s must be values, got %s and %s", op, lhs, rhs)
		return
	}
	if lhs != rhs {
		err = errors.Errorf("data types for %s must match, got %s and %s", op, lhs, rhs)
		return
	}
	switch {
	case LogicalOperations.Has(op):
		if !lhs.IsBool() {
			err = errors.Errorf("logical %s must have boolean data types as input, got %s", op, lhs)
			return
		}
		return lhs, nil
	case ComparisonOperations.Has(op):
		if !isNumber(lhs) && !(lhs.IsBool() && (op == ir.OpEQ || op == ir.OpNE)) {
			err = errors.Errorf("comparison %s must have numbers as input, got %s", op, lhs)
			return
		}
		return ir.Bool().WithLanes(lhs.Lanes), nil
	case IntegerOperations.Has(op):
		if !lhs.IsIntegral() {
			err = errors.Errorf("integer %s must have an integer (Int8, Int32, ...) data type as input, got %s", op, lhs)
			return
		}
		return lhs, nil
	case ArithmeticOperations.Has(op):
		if !isNumber(lhs) {
			err = errors.Errorf("numeric %s must have a number (Int32, Float32, ...) data type as input, got %s", op, lhs)
			return
		}
		return lhs, nil
	}
	err = errors.Errorf("binary operator %s not supported by type inference", op)
	return
}

// Check validates the whole expression tree and returns its data type.
func Check(e ir.Expr) (ir.DataType, error) {
	switch n := e.(type) {
	case nil:
		return ir.DataType{}, errors.New("nil expression")
	case *ir.IntImm, *ir.FloatImm, *ir.StringImm, *ir.Var:
		return e.DataType(), nil
	case *ir.Binary:
		lhs, err := Check(n.A)
		if err != nil {
			return lhs, err
		}
		rhs, err := Check(n.B)
		if err != nil {
			return rhs, err
		}
		output, err := BinaryOp(n.Op, lhs, rhs)
		if err != nil {
			return output, errors.WithMessagef(err, "in expression %s", n)
		}
		return output, nil
	case *ir.Not:
		operand, err := Check(n.A)
		if err != nil {
			return operand, err
		}
		if !operand.IsBool() {
			return operand, errors.Errorf("logical not must have a boolean operand, got %s in %s", operand, n)
		}
		return operand, nil
	case *ir.Cast:
		operand, err := Check(n.Value)
		if err != nil {
			return operand, err
		}
		if !isNumber(operand) && !operand.IsBool() {
			return operand, errors.Errorf("cannot cast %s to %s in %s", operand, n.DType, n)
		}
		return n.DType, nil
	case *ir.Select:
		cond, err := Check(n.Cond)
		if err != nil {
			return cond, err
		}
		if !cond.IsBool() {
			return cond, errors.Errorf("select condition must be boolean, got %s in %s", cond, n)
		}
		onTrue, err := Check(n.True)
		if err != nil {
			return onTrue, err
		}
		onFalse, err := Check(n.False)
		if err != nil {
			return onFalse, err
		}
		if onTrue != onFalse {
			return onTrue, errors.Errorf("select branches must have the same data type, got %s and %s in %s", onTrue, onFalse, n)
		}
		return onTrue, nil
	case *ir.ProducerLoad:
		shape := n.Producer.ProducerShape()
		if len(n.Indices) != len(shape) {
			return n.DataType(), errors.Errorf("tensor %s has rank %d, but it was indexed with %d indices",
				n.Producer.ProducerName(), len(shape), len(n.Indices))
		}
		for _, idx := range n.Indices {
			dtype, err := Check(idx)
			if err != nil {
				return dtype, err
			}
			if !dtype.IsIntegral() {
				return dtype, errors.Errorf("index %s of tensor %s must be an integer, got %s",
					idx, n.Producer.ProducerName(), dtype)
			}
		}
		return n.DataType(), nil
	case *ir.BufferLoad:
		if _, err := Check(n.Index); err != nil {
			return n.DataType(), err
		}
		return n.DataType(), nil
	case *ir.Call:
		for _, arg := range n.Args {
			if _, err := Check(arg); err != nil {
				return n.DType, err
			}
		}
		return n.DType, nil
	}
	return e.DataType(), errors.Errorf("unknown expression type %T", e)
}
