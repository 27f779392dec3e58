package codegen

import (
	"fmt"
	"strings"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tegen/ir"
	"github.com/gomlx/tegen/target"
	"github.com/gomlx/tegen/te"
	"github.com/gomlx/tegen/transform"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostType(t *testing.T) {
	for _, tc := range []struct {
		dtype ir.DataType
		want  string
	}{
		{ir.Handle(), "void*"},
		{ir.Void(), "void"},
		{ir.Bool(), "bool"},
		{ir.Float(16), "half"},
		{ir.Float32(), "float"},
		{ir.Float(64), "double"},
		{ir.Float32().WithLanes(4), "float4"},
		{ir.Int(8), "int8_t"},
		{ir.UInt(16), "uint16_t"},
		{ir.Int32(), "int32_t"},
		{ir.UInt(64), "uint64_t"},
		{ir.Int(1), "int32_t"},
		{ir.Int32().WithLanes(16), "int32_t16"},
	} {
		got, err := HostType(tc.dtype)
		require.NoError(t, err, "dtype %s", tc.dtype)
		assert.Equal(t, tc.want, got, "dtype %s", tc.dtype)
	}
	for _, dtype := range []ir.DataType{ir.Float(8), ir.Int(4), ir.Float32().WithLanes(32), ir.Handle().WithLanes(2)} {
		_, err := HostType(dtype)
		require.Error(t, err, "dtype %s", dtype)
	}
}

func TestStackAllocaSize(t *testing.T) {
	for _, tc := range []struct {
		kind      string
		num, want int64
	}{
		{"shape", 3, 3},
		{"arg_value", 6, 6},
		{"arg_tcode", 6, 3},
		{"arg_tcode", 5, 3},
		{"array", 2, 12},
	} {
		assert.Equal(t, tc.want, must.M1(StackAllocaSize(tc.kind, tc.num)), "%s[%d]", tc.kind, tc.num)
	}
	_, err := StackAllocaSize("heap", 1)
	require.Error(t, err)
}

func packedCall(op string, args ...ir.Expr) *ir.Call {
	return &ir.Call{DType: ir.Int32(), Op: op, Args: args}
}

func TestPackedFunctionInfo(t *testing.T) {
	values, tcodes := ir.NewVar("stack_value", ir.Handle()), ir.NewVar("stack_tcode", ir.Handle())
	name := &ir.StringImm{Value: "f"}

	info := must.M1(packedFunctionInfo(packedCall(ir.BuiltinCallPackedLowered, name, values, tcodes, ir.I32(0), ir.I32(4)), false))
	assert.Equal(t, packedCallInfo{funcName: "f", numArgs: 4, resourceHandle: "NULL"}, info)

	null := &ir.Call{DType: ir.Handle(), Op: ir.BuiltinReinterpret, Args: []ir.Expr{ir.MakeInt(ir.Int64(), 0)}}
	info = must.M1(packedFunctionInfo(packedCall(ir.BuiltinCallCPackedLowered, name, values, tcodes, ir.I32(0), ir.I32(4), null), true))
	assert.Equal(t, packedCallInfo{funcName: "f", numArgs: 3, resourceHandle: "NULL"}, info)

	info = must.M1(packedFunctionInfo(packedCall(ir.BuiltinCallCPackedLowered, name, values, tcodes, ir.I32(1), ir.I32(4),
		&ir.StringImm{Value: "ctx"}), true))
	assert.Equal(t, packedCallInfo{funcName: "f", numArgs: 2, resourceHandle: "ctx"}, info)

	// Errors.
	_, err := packedFunctionInfo(packedCall(ir.BuiltinCallPackedLowered, ir.I32(1), values, tcodes, ir.I32(0), ir.I32(4)), false)
	require.Error(t, err)
	_, err = packedFunctionInfo(packedCall(ir.BuiltinCallPackedLowered, name, values, tcodes, ir.I32(4), ir.I32(0)), false)
	require.Error(t, err)
	notNull := &ir.Call{DType: ir.Handle(), Op: ir.BuiltinReinterpret, Args: []ir.Expr{ir.MakeInt(ir.Int64(), 1)}}
	_, err = packedFunctionInfo(packedCall(ir.BuiltinCallCPackedLowered, name, values, tcodes, ir.I32(0), ir.I32(4), notNull), true)
	require.Error(t, err)
	_, err = packedFunctionInfo(packedCall(ir.BuiltinCallCPackedLowered, name, values, tcodes, ir.I32(0), ir.I32(4)), true)
	require.Error(t, err)
}

// vectorAdd returns the modules of C = A + B lowered for the cuda target with the given host,
// split by target kind.
func vectorAdd(t *testing.T, host string) map[string]*ir.IRModule {
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
	mod = transform.AttachTarget(mod, must.M1(target.New("cuda", host)))
	mod = must.M1(transform.Default().Run(mod))
	mods, _ := must.M2(transform.SplitByTarget(mod))
	return mods
}

func TestBuildRawC(t *testing.T) {
	tgt := must.M1(target.New("rawc", ""))
	m := must.M1(BuildRawC(vectorAdd(t, "rawc")["rawc"], tgt))
	assert.Equal(t, "c", m.TypeKey())
	assert.Equal(t, []string{"myadd"}, m.FunctionNames())
	code := must.M1(m.Source(""))
	fmt.Println(code)

	assert.True(t, strings.HasPrefix(code, "// tvm target: rawc -keys=cpu\n"))
	for _, want := range []string{
		"static void* myadd_kernel0_packed = NULL;\n",
		"#ifdef __cplusplus\nextern \"C\"\n#endif\n" +
			"TVM_DLL int32_t myadd(void* args, int32_t* arg_type_ids, int32_t num_args, void* out_ret_value, " +
			"int32_t* out_ret_tcode, void* resource_handle) {\n",
		"  if (!((num_args == 3))) {\n    TVMAPISetLastError(\"myadd: num_args should be 3\");\n    return -1;\n  }\n",
		"  int32_t arg_A_code = arg_type_ids[0];\n",
		"  void* arg_A = (((TVMValue*)args)[0].v_handle);\n",
		"  void* arg_A_shape = (((DLTensor*)arg_A)[0].shape);\n",
		"  int32_t n = ((int32_t)((int64_t*)arg_A_shape)[0]);\n",
		"  void* A = (((DLTensor*)arg_A)[0].data);\n",
		"  TVMValue stack[6];\n  void* stack_value = stack;\n",
		"  TVMValue stack_1[3];\n  void* stack_tcode = stack_1;\n",
		"  (((TVMValue*)stack_value)[0].v_handle) = A;\n",
		"  ((int32_t*)stack_tcode)[0] = 3;\n",
		"  (((TVMValue*)stack_value)[3].v_int64) = ((int64_t)n);\n",
		"  (((TVMValue*)stack_value)[5].v_int64) = ((int64_t)64);\n",
		"  // Call packed function\n  return 0;\n}\n",
	} {
		assert.Contains(t, code, want)
	}
	assert.NotContains(t, code, "TVMFuncCall")
	assert.Equal(t, 1, strings.Count(code, "myadd_kernel0_packed"))
}

func TestBuildC(t *testing.T) {
	tgt := must.M1(target.New("c", ""))
	m := must.M1(BuildC(vectorAdd(t, "c")["c"], tgt))
	code := must.M1(m.Source("c"))
	fmt.Println(code)
	for _, want := range []string{
		"static void* myadd_kernel0_packed = NULL;\n",
		"void* __tvm_module_ctx = NULL;\n",
		"  if (myadd_kernel0_packed == NULL) {\n" +
			"    if (TVMBackendGetFuncFromEnv(__tvm_module_ctx, \"myadd_kernel0\", &myadd_kernel0_packed) != 0) {\n" +
			"      return -1;\n    }\n  }\n",
		"  if (TVMFuncCall(myadd_kernel0_packed, (((TVMValue*)stack_value) + 0), (((int*)stack_tcode) + 0), 6, &ret_val, &ret_type_code) != 0) {\n",
	} {
		assert.Contains(t, code, want)
	}
}

func TestBuildCUDA(t *testing.T) {
	mods := vectorAdd(t, "rawc")
	tgt := must.M1(target.New("cuda -arch=sm_80", ""))
	m := must.M1(BuildCUDA(mods["cuda"], tgt.WithoutHost()))
	assert.Equal(t, "cuda", m.TypeKey())
	assert.Equal(t, []string{"myadd_kernel0"}, m.FunctionNames())
	code := must.M1(m.Source("cu"))
	fmt.Println(code)

	assert.True(t, strings.HasPrefix(code, "// tvm target: cuda -keys=cuda,gpu -arch=sm_80\n"))
	index := "((((int)blockIdx.x) * 64) + ((int)threadIdx.x))"
	for _, want := range []string{
		`extern "C" __global__ void __launch_bounds__(64) myadd_kernel0(float* __restrict__ A, ` +
			"float* __restrict__ B, float* __restrict__ C, int n) {\n",
		"  if ((" + index + " < n)) {\n",
		"    C[" + index + "] = (A[" + index + "] + B[" + index + "]);\n",
	} {
		assert.Contains(t, code, want)
	}
	assert.NotContains(t, code, "cuda_fp16.h")

	// Host functions are not kernels.
	_, err := BuildCUDA(mods["rawc"], tgt)
	require.Error(t, err)
	// Kernels are not host functions.
	_, err = BuildRawC(mods["cuda"], must.M1(target.New("rawc", "")))
	require.Error(t, err)
}

// hostFunction creates a function writing value into the first element of its buffer.
func hostFunction(name string, value float64) *ir.PrimFunc {
	buf := ir.NewBuffer("X", ir.Float32(), []ir.Expr{ir.I32(1)})
	f := ir.NewPrimFunc([]*ir.Var{buf.Data}, map[*ir.Var]*ir.Buffer{buf.Data: buf},
		buf.Store(ir.MakeFloat(ir.Float32(), value), ir.I32(0)))
	return f.WithAttr(ir.AttrGlobalSymbol, name)
}

func TestHostFunctionOrder(t *testing.T) {
	mod := ir.NewIRModule()
	require.NoError(t, mod.Add("b", hostFunction("b", 2)))
	require.NoError(t, mod.Add("main", hostFunction("main", 0).WithAttr(ir.AttrRunnerFunction, true)))
	require.NoError(t, mod.Add("a", hostFunction("a", 1)))
	m := must.M1(BuildRawC(mod, must.M1(target.New("rawc", ""))))
	assert.Equal(t, []string{"a", "b", "main"}, m.FunctionNames())
	code := must.M1(m.Source(""))
	assert.Contains(t, code, "TVM_DLL void a(float* X) {\n  X[0] = 1.000000e+00f;\n}\n")
	assert.Less(t, strings.Index(code, "TVM_DLL void b("), strings.Index(code, "TVM_DLL void main("))

	// Only one runner function.
	require.NoError(t, mod.Add("main2", hostFunction("main2", 0).WithAttr(ir.AttrRunnerFunction, true)))
	_, err := BuildRawC(mod, must.M1(target.New("rawc", "")))
	require.Error(t, err)
}

func TestHostTargetAttributes(t *testing.T) {
	mod := ir.NewIRModule()
	require.NoError(t, mod.Add("a", hostFunction("a", 1)))

	_, err := BuildRawC(mod, must.M1(target.New("rawc -system-lib", "")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only supports generating C runtime SystemLibs")
	_, err = BuildRawC(mod, must.M1(target.New("rawc -system-lib -runtime=c", "")))
	require.NoError(t, err)

	_, err = BuildRawC(mod, must.M1(target.New("rawc -constants-byte-alignment=12", "")))
	require.Error(t, err)
	_, err = BuildRawC(mod, must.M1(target.New("rawc -constants-byte-alignment=32", "")))
	require.NoError(t, err)
}

func TestFloorDivCode(t *testing.T) {
	g := NewCodeGenC(&hostDialect{target: must.M1(target.New("c", ""))})
	x, y := ir.NewVar("x", ir.Int32()), ir.NewVar("y", ir.Int32())
	g.varNames[x], g.varNames[y] = "x", "y"
	assert.Equal(t, "((x >= 0) ? (x / 4) : (((x + 1) / 4) - 1))", g.Expr(ir.FloorDiv(x, ir.I32(4))))
	assert.Equal(t, "(((x % 4) + 4) % 4)", g.Expr(ir.FloorMod(x, ir.I32(4))))
	assert.Equal(t, "((((x % y) != 0) && ((x < 0) != (y < 0))) ? ((x / y) - 1) : (x / y))", g.Expr(ir.FloorDiv(x, y)))
	g.nonNegative.Insert(x)
	assert.Equal(t, "(x / 4)", g.Expr(ir.FloorDiv(x, ir.I32(4))))
	assert.Equal(t, "(x % 4)", g.Expr(ir.FloorMod(x, ir.I32(4))))
	assert.Equal(t, "min(x, y)", g.Expr(ir.Min(x, y)))
	require.NoError(t, g.Err())

	// Undefined variables are reported.
	g.Expr(ir.NewVar("z", ir.Int32()))
	require.Error(t, g.Err())
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"target.build.c", "target.build.cuda", "target.build.rawc"}, Registered())
	require.Error(t, Register("target.build.rawc", BuildRawC))
	_, found := Lookup("target.build.rawc")
	assert.True(t, found)

	m := must.M1(Build(vectorAdd(t, "rawc")["rawc"], must.M1(target.New("rawc", ""))))
	assert.Equal(t, "Module(c, myadd)", m.String())

	_, err := Build(ir.NewIRModule(), &target.Target{Kind: &target.Kind{Name: "metal"}})
	require.Error(t, err)
}

func TestNonSerialLoops(t *testing.T) {
	buf := ir.NewBuffer("X", ir.Float32(), []ir.Expr{ir.I32(4)})
	i := ir.NewVar("i", ir.Int32())
	for _, kind := range []ir.ForKind{ir.ForParallel, ir.ForVectorized, ir.ForUnrolled, ir.ForThreadBinding} {
		loop := &ir.For{LoopVar: i, Min: ir.I32(0), Extent: ir.I32(4), Kind: kind,
			Body: buf.Store(ir.MakeFloat(ir.Float32(), 0), i)}
		f := ir.NewPrimFunc([]*ir.Var{buf.Data}, map[*ir.Var]*ir.Buffer{buf.Data: buf}, loop).
			WithAttr(ir.AttrGlobalSymbol, "fill")
		mod := ir.NewIRModule()
		require.NoError(t, mod.Add("fill", f))
		_, err := BuildRawC(mod, must.M1(target.New("rawc", "")))
		require.Error(t, err, "loop kind %s", kind)
		assert.Contains(t, err.Error(), "only serial loops can be generated")
	}
}
