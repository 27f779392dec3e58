package typeinference

import (
	"testing"

	"github.com/gomlx/tegen/ir"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Aliases
var (
	Bool = ir.Bool()
	I32  = ir.Int32()
	I64  = ir.Int64()
	F32  = ir.Float32()
)

func TestBinaryOp(t *testing.T) {
	// Invalid data types check.
	var err error
	_, err = BinaryOp(ir.OpAnd, F32, F32)
	require.Error(t, err, "And(F32, F32)")
	_, err = BinaryOp(ir.OpMul, Bool, Bool)
	require.Error(t, err, "Mul(Bool, Bool)")
	_, err = BinaryOp(ir.OpFloorDiv, F32, F32)
	require.Error(t, err, "FloorDiv(F32, F32)")
	_, err = BinaryOp(ir.OpAdd, F32, I32)
	require.Error(t, err, "Add(F32, I32)")
	_, err = BinaryOp(ir.OpAdd, ir.Handle(), ir.Handle())
	require.Error(t, err, "Add(handle, handle)")
	_, err = BinaryOp(ir.InvalidOp, F32, F32)
	require.Error(t, err)
	_, err = BinaryOp(ir.OpKind(100), F32, F32)
	require.Error(t, err)

	assert.Equal(t, F32, must.M1(BinaryOp(ir.OpAdd, F32, F32)))
	assert.Equal(t, I64, must.M1(BinaryOp(ir.OpFloorMod, I64, I64)))
	assert.Equal(t, Bool, must.M1(BinaryOp(ir.OpLT, F32, F32)))
	assert.Equal(t, Bool, must.M1(BinaryOp(ir.OpEQ, Bool, Bool)))
	assert.Equal(t, Bool, must.M1(BinaryOp(ir.OpOr, Bool, Bool)))
}

type fakeTensor struct {
	name  string
	dtype ir.DataType
	shape []ir.Expr
}

func (f *fakeTensor) ProducerName() string       { return f.name }
func (f *fakeTensor) ProducerDType() ir.DataType { return f.dtype }
func (f *fakeTensor) ProducerShape() []ir.Expr   { return f.shape }

func TestCheck(t *testing.T) {
	n := ir.NewVar("n", I32)
	i := ir.NewVar("i", I32)
	a := &fakeTensor{name: "A", dtype: F32, shape: []ir.Expr{n}}
	b := &fakeTensor{name: "B", dtype: ir.Float(64), shape: []ir.Expr{n}}

	loadA := &ir.ProducerLoad{Producer: a, Indices: []ir.Expr{i}}
	loadB := &ir.ProducerLoad{Producer: b, Indices: []ir.Expr{i}}
	assert.Equal(t, F32, must.M1(Check(ir.Add(loadA, loadA))))

	_, err := Check(ir.Add(loadA, loadB))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must match")

	// Rank mismatch.
	_, err = Check(&ir.ProducerLoad{Producer: a, Indices: []ir.Expr{i, i}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rank 1")

	// Float index.
	_, err = Check(&ir.ProducerLoad{Producer: a, Indices: []ir.Expr{ir.MakeFloat(F32, 1)}})
	require.Error(t, err)

	sel := &ir.Select{Cond: ir.LT(i, n), True: loadA, False: ir.MakeFloat(F32, 0)}
	assert.Equal(t, F32, must.M1(Check(sel)))
	_, err = Check(&ir.Select{Cond: i, True: loadA, False: loadA})
	require.Error(t, err)

	assert.Equal(t, ir.Float(64), must.M1(Check(&ir.Cast{DType: ir.Float(64), Value: loadA})))
	_, err = Check(&ir.Not{A: i})
	require.Error(t, err)
}
