package runtime

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/LynnColeArt/guda"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tegen/ir"
	"github.com/gomlx/tegen/target"
	"github.com/gomlx/tegen/te"
	"github.com/gomlx/tegen/transform"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestNDArray(t *testing.T) {
	a := must.M1(FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3))
	assert.Equal(t, dtypes.Float32, a.DType())
	assert.Equal(t, []int{2, 3}, a.Shape())
	assert.Equal(t, 6, a.Size())
	assert.Equal(t, 2, a.Rank())
	assert.Equal(t, "NDArray(float32[2 3])", a.String())

	_, err := FromSlice([]float32{1, 2, 3}, 2, 2)
	require.Error(t, err)
	_, err = Data[int32](a)
	require.Error(t, err)

	h := must.M1(Empty(dtypes.Float16, 4))
	assert.Equal(t, dtypes.Float16, h.DType())
	data := must.M1(Data[float16.Float16](h))
	assert.Len(t, data, 4)

	_, err = Empty(dtypes.Complex64, 2)
	require.Error(t, err)
	_, err = Empty(dtypes.Float32, -1)
	require.Error(t, err)
}

func TestInterpreterArithmetic(t *testing.T) {
	v := must.M1(intOp(ir.OpFloorDiv, ir.Int32(), -7, 2))
	assert.Equal(t, int64(-4), v)
	v = must.M1(intOp(ir.OpFloorMod, ir.Int32(), -7, 2))
	assert.Equal(t, int64(1), v)
	v = must.M1(intOp(ir.OpAdd, ir.Int32(), 1<<31-1, 1))
	assert.Equal(t, int64(-1<<31), v)
	v = must.M1(intOp(ir.OpLT, ir.Int32(), 1, 2))
	assert.Equal(t, int64(1), v)
	_, err := intOp(ir.OpDiv, ir.Int32(), 1, 0)
	require.Error(t, err)

	f := must.M1(floatOp(ir.OpAdd, ir.Float32(), 0.1, 0))
	assert.Equal(t, float64(float32(0.1)), f)

	c := must.M1(convert(ir.Int32(), 3.7))
	assert.Equal(t, int64(3), c)
	c = must.M1(convert(ir.Float(64), int64(3)))
	assert.Equal(t, 3.0, c)
}

func TestInterpreterStatements(t *testing.T) {
	// for (i, 0, 5) { if i < 3 { X[i] = i * 2 } }
	i := ir.NewVar("i", ir.Int32())
	buf := ir.NewBuffer("X", ir.Int32(), []ir.Expr{ir.I32(5)})
	body := &ir.For{
		LoopVar: i, Min: ir.I32(0), Extent: ir.I32(5),
		Body: &ir.IfThenElse{
			Cond: ir.Likely(ir.LT(i, ir.I32(3))),
			Then: buf.Store(ir.Mul(i, ir.I32(2)), i),
		},
	}
	x := make([]int32, 5)
	it := newInterpreter(nil)
	it.env[buf.Data] = x
	require.NoError(t, it.exec(body))
	assert.Equal(t, []int32{0, 2, 4, 0, 0}, x)

	// Out of bounds.
	it.env[buf.Data] = x[:2]
	err := it.exec(body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of bounds")

	// Asserts fail with their message.
	err = it.exec(&ir.AssertStmt{Cond: ir.EQ(ir.I32(1), ir.I32(2)), Message: "one is not two", Body: ir.NoOp()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "one is not two")

	// Thread axes are only defined within kernels.
	tx := ir.NewIterVar("threadIdx.x", nil, ir.ThreadIndex, "threadIdx.x")
	err = it.exec(&ir.AttrStmt{Node: tx, Key: ir.AttrThreadExtent, Value: ir.I32(4), Body: ir.NoOp()})
	require.Error(t, err)

	// Only serial loops are executed.
	vectorized := *body
	vectorized.Kind = ir.ForVectorized
	it.env[buf.Data] = x
	err = it.exec(&vectorized)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vectorized loop over i cannot be executed")
}

func TestInterpreterBuiltinOperands(t *testing.T) {
	it := newInterpreter(nil)
	stack := ir.NewVar("stack", ir.Handle())
	it.env[stack] = make(valueStack, 2)
	f := ir.MakeFloat(ir.Float32(), 1.5)
	for _, call := range []*ir.Call{
		{DType: ir.Handle(), Op: ir.BuiltinStructGet, Args: []ir.Expr{stack, f, ir.I32(int(ir.FieldTVMValueContent))}},
		{DType: ir.Int32(), Op: ir.BuiltinStructSet, Args: []ir.Expr{stack, ir.I32(0), f, ir.I32(1)}},
		{DType: ir.Handle(), Op: ir.BuiltinStackAlloca, Args: []ir.Expr{&ir.StringImm{Value: "arg_value"}, f}},
		{DType: ir.Int32(), Op: ir.BuiltinCallPackedLowered, Args: []ir.Expr{&ir.StringImm{Value: "fn"}, stack, stack, f, ir.I32(1)}},
	} {
		_, err := it.eval(call)
		require.Error(t, err, "%s", call.Op)
		assert.Contains(t, err.Error(), "must be an integer")
	}

	_, err := it.eval(&ir.Call{DType: ir.Handle(), Op: ir.BuiltinStructGet, Args: []ir.Expr{stack}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "takes 3 arguments, got 1")
	_, err = it.eval(&ir.Call{DType: ir.Int32(), Op: "tvm_unknown"})
	require.Error(t, err)
}

func TestLaunchDims(t *testing.T) {
	grid, block, err := launchDims([]string{"blockIdx.x", "threadIdx.x"}, []any{int64(16), int64(64)})
	require.NoError(t, err)
	assert.Equal(t, guda.Dim3{X: 16, Y: 1, Z: 1}, grid)
	assert.Equal(t, guda.Dim3{X: 64, Y: 1, Z: 1}, block)

	_, _, err = launchDims([]string{"vthread"}, []any{int64(2)})
	require.Error(t, err)
	_, _, err = launchDims([]string{"threadIdx.x"}, []any{int64(0)})
	require.Error(t, err)
}

// buildVectorAdd lowers C = A + B bound to the GPU threads, and wraps the host function and the
// kernel into modules, without generating code.
func buildVectorAdd(t *testing.T) Module {
	n := te.Var("n")
	a := must.M1(te.Placeholder("A", dtypes.Float32, n))
	b := must.M1(te.Placeholder("B", dtypes.Float32, n))
	c := must.M1(te.Compute("C", a.Shape, func(i ...*ir.Var) ir.Expr {
		return ir.Add(a.At(i[0]), b.At(i[0]))
	}))
	s := te.CreateSchedule(c.Op)
	stage := must.M1(s.Stage(c))
	outer, inner := must.M2(stage.Split(c.Op.(*te.ComputeOp).Axis[0], 64))
	require.NoError(t, stage.Bind(outer, must.M1(te.ThreadAxis("blockIdx.x"))))
	require.NoError(t, stage.Bind(inner, must.M1(te.ThreadAxis("threadIdx.x"))))
	fn := must.M1(s.Lower([]*te.Tensor{a, b, c}, "myadd"))
	mod := ir.NewIRModule()
	require.NoError(t, mod.Add("myadd", fn))
	mod = transform.AttachTarget(mod, must.M1(target.New("cuda", "rawc")))
	mod = must.M1(transform.Default().Run(mod))
	mods, _ := must.M2(transform.SplitByTarget(mod))

	host := NewCSourceModule("// host", []string{"myadd"}, mods["rawc"])
	device := NewDeviceSourceModule("cuda", "// device", []string{"cu", "cuda"}, []string{"myadd_kernel0"}, mods["cuda"])
	host.Import(device)
	return host
}

func TestVectorAdd(t *testing.T) {
	host := buildVectorAdd(t)
	assert.Equal(t, "Module(c, myadd)", host.String())
	require.Len(t, host.ImportedModules(), 1)
	assert.Equal(t, "Module(cuda, myadd_kernel0)", host.ImportedModules()[0].String())

	const n = 1000
	aData, bData := make([]float32, n), make([]float32, n)
	for i := range n {
		aData[i] = float32(i)
		bData[i] = 2 * float32(i)
	}
	a := must.M1(FromSlice(aData))
	b := must.M1(FromSlice(bData))
	c := must.M1(Empty(dtypes.Float32, n))
	myadd := must.M1(host.Function("myadd"))
	require.NoError(t, myadd(a, b, c))
	cData := must.M1(Data[float32](c))
	for i := range n {
		require.Equal(t, 3*float32(i), cData[i], "element %d", i)
	}

	// The kernel can also be launched directly from the device module.
	kernel := must.M1(host.ImportedModules()[0].Function("myadd_kernel0"))
	clear(cData)
	require.NoError(t, kernel(aData, bData, cData, n, 16, 64))
	assert.Equal(t, float32(3*(n-1)), cData[n-1])
	require.Error(t, kernel(aData, bData, cData, n))
}

func TestVectorAddErrors(t *testing.T) {
	host := buildVectorAdd(t)
	myadd := must.M1(host.Function("myadd"))
	a := must.M1(Empty(dtypes.Float32, 10))
	b := must.M1(Empty(dtypes.Float32, 10))

	err := myadd(a, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "num_args should be 3")

	err = myadd(a, b, must.M1(Empty(dtypes.Float32, 11)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsatisfied constraint")

	err = myadd(a, b, must.M1(Empty(dtypes.Int32, 10)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arg.C.dtype is expected to be float32")

	err = myadd(a, b, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expect arg[2] to be pointer")

	_, err = host.Function("unknown")
	require.Error(t, err)
	_, err = host.Function("myadd_kernel0")
	require.Error(t, err)
}

func TestSource(t *testing.T) {
	host := buildVectorAdd(t)
	assert.Equal(t, "// host", must.M1(host.Source("")))
	assert.Equal(t, "// host", must.M1(host.Source("c")))
	_, err := host.Source("ptx")
	require.Error(t, err)
	assert.Equal(t, "// device", must.M1(host.ImportedModules()[0].Source("cu")))

	dir := t.TempDir()
	require.NoError(t, SaveToFile(host, filepath.Join(dir, "mod.c")))
	assert.Equal(t, "// host", string(must.M1(os.ReadFile(filepath.Join(dir, "mod.c")))))
	require.Error(t, SaveToFile(host, filepath.Join(dir, "mod.ll")))
}
