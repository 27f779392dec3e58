package te

import (
	"fmt"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tegen/ir"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorAdd(t *testing.T, n ir.Expr) (a, b, c *Tensor) {
	a = must.M1(Placeholder("A", dtypes.Float32, n))
	b = must.M1(Placeholder("B", dtypes.Float32, n))
	c, err := Compute("C", a.Shape, func(i ...*ir.Var) ir.Expr {
		return ir.Add(a.At(i[0]), b.At(i[0]))
	})
	require.NoError(t, err)
	return
}

func TestCompute(t *testing.T) {
	n := Var("n")
	a, b, c := vectorAdd(t, n)
	assert.Equal(t, "C", c.Op.Name())
	assert.Equal(t, ir.Float32(), c.DType)
	assert.Equal(t, []*Tensor{a, b}, c.Op.InputTensors())
	assert.Equal(t, "Tensor(shape=[n], op.name=C)", c.String())
	assert.Equal(t, "*te.Tensor", fmt.Sprintf("%T", c))

	// Wrong number of indices.
	_, err := Compute("D", a.Shape, func(i ...*ir.Var) ir.Expr {
		return a.At(i[0], i[0])
	})
	require.Error(t, err)

	// Mismatched dtypes.
	d := must.M1(Placeholder("D", dtypes.Int32, n))
	_, err = Compute("E", a.Shape, func(i ...*ir.Var) ir.Expr {
		return ir.Add(a.At(i[0]), d.At(i[0]))
	})
	require.Error(t, err)

	_, err = Placeholder("F", dtypes.Float32, ir.I32(0))
	require.Error(t, err)
	_, err = Placeholder("F", dtypes.Float32, ir.MakeFloat(ir.Float32(), 3))
	require.Error(t, err)
}

func TestScheduleTransforms(t *testing.T) {
	n := Var("n")
	a, _, c := vectorAdd(t, n)
	s := CreateSchedule(c.Op)
	require.Len(t, s.Stages, 1)
	_, err := s.Stage(a)
	require.Error(t, err)
	stage := must.M1(s.Stage(c))

	root := c.Op.(*ComputeOp).Axis[0]
	_, _, err = stage.Split(root, 0)
	require.Error(t, err)
	bx, tx := must.M1(ThreadAxis("blockIdx.x")), must.M1(ThreadAxis("threadIdx.x"))
	_, err = ThreadAxis("warp.x")
	require.Error(t, err)

	// Binding a non-leaf fails.
	outer, inner := must.M2(stage.Split(root, 64))
	assert.Equal(t, "i.outer", outer.Var.Name)
	assert.Equal(t, "i.inner", inner.Var.Name)
	require.Error(t, stage.Bind(root, bx))
	_, _, err = stage.Split(root, 32)
	require.Error(t, err)

	require.NoError(t, stage.Bind(outer, bx))
	require.Error(t, stage.Bind(outer, tx), "leaf already bound")
	require.Error(t, stage.Bind(inner, bx), "thread tag already bound")
	require.Error(t, stage.Bind(inner, inner), "not a thread axis")
	require.NoError(t, stage.Bind(inner, tx))
	assert.Equal(t, []*ir.IterVar{outer, inner}, stage.LeafIterVars)
}

func TestFuseAndReorder(t *testing.T) {
	a := must.M1(Placeholder("A", dtypes.Float32, ir.I32(8), ir.I32(4)))
	c := must.M1(Compute("C", a.Shape, func(i ...*ir.Var) ir.Expr {
		return ir.Mul(a.At(i[0], i[1]), ir.MakeFloat(ir.Float32(), 2))
	}))
	s := CreateSchedule(c.Op)
	stage := must.M1(s.Stage(c))
	i, j := c.Op.(*ComputeOp).Axis[0], c.Op.(*ComputeOp).Axis[1]

	require.NoError(t, stage.Reorder(j, i))
	assert.Equal(t, []*ir.IterVar{j, i}, stage.LeafIterVars)
	require.Error(t, stage.Reorder(i, i))
	_, err := stage.Fuse(i, j)
	require.Error(t, err, "i is not immediately outside j anymore")
	require.NoError(t, stage.Reorder(i, j))

	fused := must.M1(stage.Fuse(i, j))
	assert.Equal(t, "i.j.fused", fused.Var.Name)
	outer, inner := must.M2(stage.Split(fused, 16))
	require.NoError(t, stage.Bind(outer, must.M1(ThreadAxis("blockIdx.x"))))
	require.NoError(t, stage.Bind(inner, must.M1(ThreadAxis("threadIdx.x"))))

	fn := must.M1(s.Lower([]*Tensor{a, c}, "scale"))
	text := fn.String()
	fmt.Printf("%s\n", text)
	assert.Contains(t, text, `"thread_extent" = 2`)
	assert.Contains(t, text, `"thread_extent" = 16`)
	assert.NotContains(t, text, "likely", "32 = 2*16 needs no guard")
	assert.Contains(t, text, "floordiv(((blockIdx.x * 16) + threadIdx.x), 4)")
}

func TestLower(t *testing.T) {
	n := Var("n")
	a, b, c := vectorAdd(t, n)
	s := CreateSchedule(c.Op)
	stage := must.M1(s.Stage(c))
	outer, inner := must.M2(stage.Split(c.Op.(*ComputeOp).Axis[0], 64))
	require.NoError(t, stage.Bind(outer, must.M1(ThreadAxis("blockIdx.x"))))
	require.NoError(t, stage.Bind(inner, must.M1(ThreadAxis("threadIdx.x"))))

	_, err := s.Lower([]*Tensor{a, c}, "myadd")
	require.Error(t, err, "B is missing")
	_, err = s.Lower([]*Tensor{a, b}, "myadd")
	require.Error(t, err, "C is missing")

	fn := must.M1(s.Lower([]*Tensor{a, b, c}, "myadd"))
	assert.Equal(t, "myadd", fn.GlobalSymbol())
	require.Len(t, fn.Params, 3)
	assert.Equal(t, `primfn myadd(A: handle, B: handle, C: handle) -> void {
  attr = {"global_symbol": "myadd", "tir.noalias": True}
  buffers = {A: Buffer(A, float32, [n], []), B: Buffer(B, float32, [n], []), C: Buffer(C, float32, [n], [])}
  attr [IterVar(blockIdx.x: int32, (nullptr), "ThreadIndex", "blockIdx.x")] "thread_extent" = floordiv((n + 63), 64)
  attr [IterVar(threadIdx.x: int32, (nullptr), "ThreadIndex", "threadIdx.x")] "thread_extent" = 64
  if @tir.likely((((blockIdx.x * 64) + threadIdx.x) < n), dtype=bool) {
    C[((blockIdx.x * 64) + threadIdx.x)] = (A[((blockIdx.x * 64) + threadIdx.x)] + B[((blockIdx.x * 64) + threadIdx.x)])
  }
}
`, fn.String())
}

func TestLowerSerial(t *testing.T) {
	a, b, c := vectorAdd(t, ir.I32(128))
	s := CreateSchedule(c.Op)
	stage := must.M1(s.Stage(c))
	must.M2(stage.SplitNParts(c.Op.(*ComputeOp).Axis[0], 4))
	fn := must.M1(s.Lower([]*Tensor{a, b, c}, "add128"))
	text := fn.String()
	assert.Contains(t, text, "for (i.outer, 0, 4) {")
	assert.Contains(t, text, "for (i.inner, 0, 32) {")
	assert.NotContains(t, text, "likely")
}
