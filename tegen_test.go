package tegen

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tegen/ir"
	"github.com/gomlx/tegen/runtime"
	"github.com/gomlx/tegen/target"
	"github.com/gomlx/tegen/te"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vectorAdd declares C = A + B and splits its axis by factor, binding it to the GPU threads
// if bind is set.
func vectorAdd(t *testing.T, factor int, bind bool) (*te.Schedule, []*te.Tensor) {
	n := te.Var("n")
	a := must.M1(te.Placeholder("A", dtypes.Float32, n))
	b := must.M1(te.Placeholder("B", dtypes.Float32, n))
	c := must.M1(te.Compute("C", a.Shape, func(i ...*ir.Var) ir.Expr {
		return ir.Add(a.At(i[0]), b.At(i[0]))
	}))
	s := te.CreateSchedule(c.Op)
	stage := must.M1(s.Stage(c))
	outer, inner := must.M2(stage.Split(c.Op.(*te.ComputeOp).Axis[0], factor))
	if bind {
		require.NoError(t, stage.Bind(outer, must.M1(te.ThreadAxis("blockIdx.x"))))
		require.NoError(t, stage.Bind(inner, must.M1(te.ThreadAxis("threadIdx.x"))))
	}
	return s, []*te.Tensor{a, b, c}
}

// runVectorAdd calls myadd with vectors of size n and checks the result.
func runVectorAdd(t *testing.T, m runtime.Module, n int) {
	aData, bData := make([]float32, n), make([]float32, n)
	for i := range n {
		aData[i] = float32(i)
		bData[i] = 0.5
	}
	a := must.M1(runtime.FromSlice(aData))
	b := must.M1(runtime.FromSlice(bData))
	c := must.M1(runtime.Empty(dtypes.Float32, n))
	myadd := must.M1(m.Function("myadd"))
	require.NoError(t, myadd(a, b, c))
	cData := must.M1(runtime.Data[float32](c))
	for i := range n {
		require.Equal(t, float32(i)+0.5, cData[i], "element %d", i)
	}
}

func TestBuildCUDA(t *testing.T) {
	s, args := vectorAdd(t, 64, true)
	tgt := must.M1(target.New("cuda", "rawc"))
	m, err := Build(s, args, tgt, "myadd")
	require.NoError(t, err)

	assert.Equal(t, "Module(c, myadd)", m.String())
	assert.Equal(t, []string{"myadd"}, m.FunctionNames())
	imported := m.ImportedModules()
	require.Len(t, imported, 1)
	assert.Equal(t, "Module(cuda, myadd_kernel0)", imported[0].String())
	assert.Equal(t, "cuda", imported[0].TypeKey())

	hostCode := must.M1(m.Source("c"))
	assert.Contains(t, hostCode, "// tvm target: rawc")
	assert.Contains(t, hostCode, "TVM_DLL int32_t myadd(")
	deviceCode := must.M1(imported[0].Source("cu"))
	assert.Contains(t, deviceCode, `extern "C" __global__ void __launch_bounds__(64) myadd_kernel0(`)
	assert.Contains(t, deviceCode, "((int)blockIdx.x)")

	runVectorAdd(t, m, 1000)
	runVectorAdd(t, m, 64)
	runVectorAdd(t, m, 1)
}

func TestBuildHostOnly(t *testing.T) {
	s, args := vectorAdd(t, 8, false)
	m, err := Build(s, args, must.M1(target.New("c", "")), "myadd")
	require.NoError(t, err)
	assert.Equal(t, "Module(c, myadd)", m.String())
	assert.Empty(t, m.ImportedModules())
	runVectorAdd(t, m, 30)
}

func TestBuildErrors(t *testing.T) {
	// Device code must have its loops bound to the GPU threads.
	s, args := vectorAdd(t, 64, false)
	_, err := Build(s, args, must.M1(target.New("cuda", "rawc")), "myadd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Did you forget to bind?")

	// The output tensor must be an argument.
	s, args = vectorAdd(t, 64, true)
	_, err = Build(s, args[:2], must.M1(target.New("cuda", "rawc")), "myadd")
	require.Error(t, err)
}

func TestLower(t *testing.T) {
	s, args := vectorAdd(t, 64, true)
	mod := must.M1(Lower(s, args, "myadd"))
	assert.Equal(t, []string{"myadd"}, mod.Names())
	f := mod.Functions["myadd"]
	assert.Len(t, f.Params, 3)

	// Building the same lowered module for two targets.
	cuda := must.M1(BuildModule(mod, must.M1(target.New("cuda", "c"))))
	assert.Contains(t, must.M1(cuda.Source("")), "TVMFuncCall(")
	rawc := must.M1(BuildModule(mod, must.M1(target.New("cuda", "rawc"))))
	assert.NotContains(t, must.M1(rawc.Source("")), "TVMFuncCall(")
	runVectorAdd(t, rawc, 100)
}
