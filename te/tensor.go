// Package te is the tensor expression front-end: it declares symbolic tensors and the
// element-wise computations that produce them, and schedules how the computation loops are
// split, reordered and bound to the device thread axes.
//
// A schedule is lowered to an ir.PrimFunc with Schedule.Lower, and compiled to a runtime
// module with tegen.Build.
//
// Example:
//
//	n := te.Var("n")
//	A := must.M1(te.Placeholder("A", dtypes.Float32, n))
//	B := must.M1(te.Placeholder("B", dtypes.Float32, n))
//	C := must.M1(te.Compute("C", A.Shape, func(i ...*ir.Var) ir.Expr {
//		return ir.Add(A.At(i[0]), B.At(i[0]))
//	}))
//	s := te.CreateSchedule(C.Op)
package te

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tegen/ir"
	"github.com/gomlx/tegen/typeinference"
	"github.com/pkg/errors"
)

// Var creates a symbolic int32 size variable.
func Var(name string) *ir.Var {
	return ir.NewVar(name, ir.Int32())
}

// Operation produces a tensor: either a PlaceholderOp (an input) or a ComputeOp.
type Operation interface {
	fmt.Stringer

	// Name of the operation, the same as its output tensor.
	Name() string

	// Output tensor produced by the operation.
	Output() *Tensor

	// InputTensors read by the operation, in order of first use.
	InputTensors() []*Tensor
}

// Tensor is a symbolic multi-dimensional array, the output of an Operation.
type Tensor struct {
	Op    Operation
	Shape []ir.Expr
	DType ir.DataType
	Name  string
}

// At returns the expression reading the tensor element at the given indices.
// The number of indices must match the tensor rank: this is validated by Compute.
func (t *Tensor) At(indices ...ir.Expr) ir.Expr {
	return &ir.ProducerLoad{Producer: t, Indices: indices}
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.Shape) }

func (t *Tensor) ProducerName() string       { return t.Name }
func (t *Tensor) ProducerDType() ir.DataType { return t.DType }
func (t *Tensor) ProducerShape() []ir.Expr   { return t.Shape }

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, op.name=%s)", t.Shape, t.Name)
}

// PlaceholderOp declares an input tensor.
type PlaceholderOp struct {
	name   string
	output *Tensor
}

func (op *PlaceholderOp) Name() string            { return op.name }
func (op *PlaceholderOp) Output() *Tensor         { return op.output }
func (op *PlaceholderOp) InputTensors() []*Tensor { return nil }
func (op *PlaceholderOp) String() string          { return fmt.Sprintf("placeholder(%s, %s)", op.name, op.output.DType) }

// Placeholder declares an input tensor of the given dtype and shape.
// Dimensions can be constants or symbolic variables (see Var).
func Placeholder(name string, dtype dtypes.DType, shape ...ir.Expr) (*Tensor, error) {
	irDType, err := ir.FromDType(dtype)
	if err != nil {
		return nil, errors.WithMessagef(err, "te.Placeholder(%q)", name)
	}
	if err := checkShape(name, shape); err != nil {
		return nil, err
	}
	op := &PlaceholderOp{name: name}
	op.output = &Tensor{Op: op, Shape: shape, DType: irDType, Name: name}
	return op.output, nil
}

func checkShape(name string, shape []ir.Expr) error {
	for axis, dim := range shape {
		if dim == nil {
			return errors.Errorf("tensor %q has a nil dimension for axis #%d", name, axis)
		}
		if !dim.DataType().IsIntegral() {
			return errors.Errorf("tensor %q dimension #%d (%s) must be an integer, got %s", name, axis, dim, dim.DataType())
		}
		if v, ok := ir.IsConstInt(dim); ok && v <= 0 {
			return errors.Errorf("tensor %q dimension #%d must be positive, got %d", name, axis, v)
		}
	}
	return nil
}

// ComputeOp computes each element of its output with Body, an expression of the Axis variables.
type ComputeOp struct {
	name   string
	Axis   []*ir.IterVar
	Body   ir.Expr
	output *Tensor
}

func (op *ComputeOp) Name() string    { return op.name }
func (op *ComputeOp) Output() *Tensor { return op.output }
func (op *ComputeOp) String() string  { return fmt.Sprintf("compute(%s, body=%s)", op.name, op.Body) }

// InputTensors returns the tensors loaded by Body, in order of first use.
func (op *ComputeOp) InputTensors() []*Tensor {
	var inputs []*Tensor
	seen := make(map[*Tensor]bool)
	ir.Visit(op.Body, func(node any) bool {
		if load, ok := node.(*ir.ProducerLoad); ok {
			if t, ok := load.Producer.(*Tensor); ok && !seen[t] {
				seen[t] = true
				inputs = append(inputs, t)
			}
		}
		return true
	})
	return inputs
}

var axisNames = []string{"i", "j", "k", "l"}

func axisName(axis int) string {
	if axis < len(axisNames) {
		return axisNames[axis]
	}
	return fmt.Sprintf("ax%d", axis)
}

// Compute declares a tensor of the given shape whose elements are defined by fcompute.
//
// fcompute receives one index variable per dimension and returns the value of the element
// at those indices. The returned expression is type checked: loads must use as many indices
// as the loaded tensor's rank, and operands must have matching data types.
func Compute(name string, shape []ir.Expr, fcompute func(indices ...*ir.Var) ir.Expr) (*Tensor, error) {
	if err := checkShape(name, shape); err != nil {
		return nil, err
	}
	op := &ComputeOp{name: name}
	indices := make([]*ir.Var, len(shape))
	for axis, dim := range shape {
		iv := ir.NewIterVar(axisName(axis), ir.RangeFromExtent(dim), ir.DataPar, "")
		op.Axis = append(op.Axis, iv)
		indices[axis] = iv.Var
	}
	op.Body = fcompute(indices...)
	if op.Body == nil {
		return nil, errors.Errorf("te.Compute(%q): fcompute returned nil", name)
	}
	dtype, err := typeinference.Check(op.Body)
	if err != nil {
		return nil, errors.WithMessagef(err, "te.Compute(%q)", name)
	}
	if dtype.IsVoid() || dtype.IsHandle() {
		return nil, errors.Errorf("te.Compute(%q): body must produce a value, got %s", name, dtype)
	}
	var badProducer ir.DataProducer
	ir.Visit(op.Body, func(node any) bool {
		if load, ok := node.(*ir.ProducerLoad); ok {
			if _, isTensor := load.Producer.(*Tensor); !isTensor && badProducer == nil {
				badProducer = load.Producer
			}
		}
		return true
	})
	if badProducer != nil {
		return nil, errors.Errorf("te.Compute(%q): can only read te.Tensor values, got %T", name, badProducer)
	}
	op.output = &Tensor{Op: op, Shape: shape, DType: dtype, Name: name}
	return op.output, nil
}
