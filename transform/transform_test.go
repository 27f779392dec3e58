package transform

import (
	"fmt"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tegen/ir"
	"github.com/gomlx/tegen/target"
	"github.com/gomlx/tegen/te"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vectorAddModule lowers C = A + B, split by factor and optionally bound to threads.
func vectorAddModule(t *testing.T, factor int, bind bool, tgt *target.Target) *ir.IRModule {
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
	fn := must.M1(s.Lower([]*te.Tensor{a, b, c}, "myadd"))
	mod := ir.NewIRModule()
	require.NoError(t, mod.Add("myadd", fn))
	return AttachTarget(mod, tgt)
}

func TestVerifyMemory(t *testing.T) {
	cuda := must.M1(target.New("cuda", "rawc"))
	_, err := VerifyMemory(vectorAddModule(t, 64, false, cuda))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Did you forget to bind?")
	assert.Contains(t, err.Error(), "Variable `C`")

	_, err = VerifyMemory(vectorAddModule(t, 64, true, cuda))
	require.NoError(t, err)

	// Host targets can access memory anywhere.
	_, err = VerifyMemory(vectorAddModule(t, 64, false, must.M1(target.New("c", ""))))
	require.NoError(t, err)

	// Missing target.
	mod := vectorAddModule(t, 64, true, cuda)
	mod.Functions["myadd"].Attrs = map[string]any{}
	_, err = VerifyMemory(mod)
	require.Error(t, err)
}

func TestVerifyGPUCode(t *testing.T) {
	_, err := VerifyGPUCode(vectorAddModule(t, 64, true, must.M1(target.New("cuda", "rawc"))))
	require.NoError(t, err)
	_, err = VerifyGPUCode(vectorAddModule(t, 2048, true, must.M1(target.New("cuda", "rawc"))))
	require.Error(t, err)
	_, err = VerifyGPUCode(vectorAddModule(t, 256, true, must.M1(target.New("cuda -max_num_threads=128", "rawc"))))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_num_threads=128")
}

func TestSplitHostDevice(t *testing.T) {
	cuda := must.M1(target.New("cuda", "rawc"))
	mod := must.M1(SplitHostDevice(vectorAddModule(t, 64, true, cuda)))
	assert.Equal(t, []string{"myadd", "myadd_kernel0"}, mod.Names())

	kernel := mod.Functions["myadd_kernel0"]
	assert.Equal(t, ir.CallingConvDeviceKernelLaunch, kernel.CallingConv())
	assert.Equal(t, []string{"blockIdx.x", "threadIdx.x"}, kernel.LaunchParams())
	assert.Equal(t, "cuda", FuncTarget(kernel).Kind.Name)
	assert.Nil(t, FuncTarget(kernel).Host)
	var names []string
	for _, p := range kernel.Params {
		names = append(names, fmt.Sprintf("%s: %s", p.Name, p.DType))
	}
	assert.Equal(t, []string{"A: handle", "B: handle", "C: handle", "n: int32"}, names)

	host := mod.Functions["myadd"]
	assert.Equal(t, "rawc", FuncTarget(host).Kind.Name)
	assert.Equal(t, `@tvm_call_packed("myadd_kernel0", A, B, C, n, floordiv((n + 63), 64), 64, dtype=int32)`+"\n",
		host.Body.String())
}

func TestMakePackedAPI(t *testing.T) {
	cuda := must.M1(target.New("cuda", "rawc"))
	mod := vectorAddModule(t, 64, true, cuda)
	mod = must.M1(SplitHostDevice(mod))
	mod = must.M1(MakePackedAPI(mod))
	host := mod.Functions["myadd"]
	assert.Equal(t, ir.CallingConvCPackedFunc, host.CallingConv())
	assert.Equal(t, ir.Int32(), host.RetType)
	require.Len(t, host.Params, 6)
	assert.Equal(t, PackedArgs, host.Params[0].Name)
	assert.Equal(t, PackedResourceHandle, host.Params[5].Name)

	text := host.String()
	fmt.Printf("%s\n", text)
	assert.Contains(t, text, `assert((num_args == 3), "myadd: num_args should be 3")`)
	assert.Contains(t, text, "n: int32 = int32(arg.A.shape[0])")
	assert.Contains(t, text, `"myadd: Argument arg.B.shape[0] has an unsatisfied constraint: n == int32(arg.B.shape[0])"`)
	assert.Contains(t, text, `"myadd: arg.C.dtype is expected to be float32"`)
	assert.Contains(t, text, `attr [0] "compute_scope" = "myadd_compute_"`)

	// Kernels are left alone.
	assert.Equal(t, ir.CallingConvDeviceKernelLaunch, mod.Functions["myadd_kernel0"].CallingConv())
}

func TestLowerTVMBuiltin(t *testing.T) {
	cuda := must.M1(target.New("cuda", "rawc"))
	mod := must.M1(Default().Run(vectorAddModule(t, 64, true, cuda)))
	text := mod.Functions["myadd"].String()
	fmt.Printf("%s\n", text)
	assert.NotContains(t, text, "@tvm_call_packed(")
	assert.Contains(t, text, `stack_value: handle = @tvm_stack_alloca("arg_value", 6, dtype=handle)`)
	assert.Contains(t, text, `stack_tcode: handle = @tvm_stack_alloca("arg_tcode", 6, dtype=handle)`)
	assert.Contains(t, text, `@tvm_call_packed_lowered("myadd_kernel0", stack_value, stack_tcode, 0, 6, dtype=int32)`)
	assert.Contains(t, text, "stack_tcode[0] = 3")
	assert.Contains(t, text, "stack_tcode[3] = 0")
	assert.Contains(t, text, "@tvm_struct_set(stack_value, 3, 12, int64(n), dtype=int32)")

	// C packed calls get the null resource handle.
	call := &ir.Call{DType: ir.Int32(), Op: ir.BuiltinCallCPacked, Args: []ir.Expr{&ir.StringImm{Value: "f"}, ir.I32(1)}}
	lowered := must.M1(lowerPackedCall(call)).String()
	assert.Contains(t, lowered, `@tvm_call_cpacked_lowered("f", stack_value, stack_tcode, 0, 2, @reinterpret(int64(0), dtype=handle), dtype=int32)`)

	_, err := lowerPackedCall(&ir.Call{DType: ir.Int32(), Op: ir.BuiltinCallPacked, Args: []ir.Expr{ir.I32(1)}})
	require.Error(t, err)
}

func TestSimplifyPass(t *testing.T) {
	c := must.M1(target.New("c", ""))
	i := ir.NewVar("i", ir.Int32())
	buf := ir.NewBuffer("X", ir.Float32(), []ir.Expr{ir.I32(4)})
	f := ir.NewPrimFunc([]*ir.Var{buf.Data}, map[*ir.Var]*ir.Buffer{buf.Data: buf},
		&ir.For{LoopVar: i, Min: ir.I32(0), Extent: ir.Add(ir.I32(2), ir.I32(2)), Body: buf.Store(ir.MakeFloat(ir.Float32(), 0), ir.Add(i, ir.I32(0)))})
	mod := ir.NewIRModule()
	require.NoError(t, mod.Add("zero", f))
	mod = must.M1(Simplify(AttachTarget(mod, c)))
	assert.Equal(t, "for (i, 0, 4) {\n  X[i] = 0.0f\n}\n", mod.Functions["zero"].Body.String())
	// The input is not modified.
	assert.Contains(t, f.Body.String(), "(2 + 2)")
}
