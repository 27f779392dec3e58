package codegen

import (
	"fmt"

	"github.com/gomlx/tegen/ir"
	"github.com/gomlx/tegen/runtime"
	"github.com/gomlx/tegen/target"
	"github.com/pkg/errors"
)

// Size of the TVMValue union, the unit of tvm_stack_alloca, and of the structures stored in the
// stacks.
const (
	sizeOfTVMValue = 8
	sizeOfIndex    = 8
	sizeOfInt      = 4
	sizeOfDLTensor = 48
)

// StackAllocaSize returns the number of TVMValue elements needed for num elements of the
// given tvm_stack_alloca kind.
func StackAllocaSize(kind string, num int64) (int64, error) {
	var elementSize int64
	switch kind {
	case "shape":
		elementSize = sizeOfIndex
	case "arg_value":
		elementSize = sizeOfTVMValue
	case "arg_tcode":
		elementSize = sizeOfInt
	case "array":
		elementSize = sizeOfDLTensor
	default:
		return 0, errors.Errorf("unknown stack alloca type %q", kind)
	}
	return (num*elementSize + sizeOfTVMValue - 1) / sizeOfTVMValue, nil
}

// HostType maps t to the C type used in host code.
func HostType(t ir.DataType) (string, error) {
	lanes := t.Lanes
	switch {
	case t.IsVoid():
		return "void", nil
	case t.IsHandle():
		if lanes != 1 {
			return "", errors.Errorf("handle type %s does not support vector types", t)
		}
		return "void*", nil
	case t == ir.Bool():
		return "bool", nil
	}
	var name string
	switch {
	case t.IsFloat():
		switch t.Bits {
		case 16:
			name = "half"
		case 32:
			name = "float"
		case 64:
			name = "double"
		}
	case t.IsInt() || t.IsUInt() || t.IsBool():
		switch t.Bits {
		case 8:
			name = "int8_t"
		case 16:
			name = "int16_t"
		case 32, 1:
			name = "int32_t"
		case 64:
			name = "int64_t"
		}
		if name != "" && t.Code == ir.CodeUInt {
			name = "u" + name
		}
	}
	if name != "" {
		if lanes == 1 {
			return name, nil
		}
		if lanes >= 2 && lanes <= 16 {
			return fmt.Sprintf("%s%d", name, lanes), nil
		}
	}
	return "", errors.Errorf("cannot convert type %s to C type", t)
}

// packedCallInfo describes a tvm_call_[c]packed_lowered call.
type packedCallInfo struct {
	funcName       string
	numArgs        int64
	resourceHandle string
}

// packedFunctionInfo extracts the callee and the number of arguments of a lowered packed call.
// With hasResourceHandle the last argument is either the name of the resource handle variable
// or reinterpret(0), for a null resource handle. It is not counted among the arguments.
func packedFunctionInfo(call *ir.Call, hasResourceHandle bool) (packedCallInfo, error) {
	if len(call.Args) < 5 {
		return packedCallInfo{}, errors.Errorf("%s expects at least 5 arguments, got %d", call.Op, len(call.Args))
	}
	name, ok := call.Args[0].(*ir.StringImm)
	if !ok {
		return packedCallInfo{}, errors.Errorf("%s expects the function name as first argument, got %s", call.Op, call.Args[0])
	}
	begin, okBegin := ir.IsConstInt(call.Args[3])
	end, okEnd := ir.IsConstInt(call.Args[4])
	if !okBegin || !okEnd {
		return packedCallInfo{}, errors.Errorf("%s(%q) expects constant argument bounds, got %s and %s",
			call.Op, name.Value, call.Args[3], call.Args[4])
	}
	info := packedCallInfo{funcName: name.Value, numArgs: end - begin, resourceHandle: "NULL"}
	if info.numArgs < 0 {
		return packedCallInfo{}, errors.Errorf("%s(%q) has a negative number of arguments [%d, %d)", call.Op, name.Value, begin, end)
	}
	if !hasResourceHandle {
		return info, nil
	}
	if len(call.Args) < 6 {
		return packedCallInfo{}, errors.Errorf("%s(%q) expects the resource handle as 6th argument", call.Op, name.Value)
	}
	info.numArgs--
	switch handle := call.Args[5].(type) {
	case *ir.StringImm:
		info.resourceHandle = handle.Value
		return info, nil
	case *ir.Call:
		if handle.Op == ir.BuiltinReinterpret && len(handle.Args) == 1 {
			if v, isConst := ir.IsConstInt(handle.Args[0]); isConst && v == 0 {
				return info, nil
			}
		}
	}
	return packedCallInfo{}, errors.Errorf("%s(%q) argument 5: expected either the name of the resource_handle "+
		"variable or reinterpret(0), got %s", call.Op, name.Value, call.Args[5])
}

// hostDialect generates host functions in C.
//
// The "rawc" flavor leaves the packed calls as a comment, while the "c" flavor emits the
// calls through the TVM C runtime API.
type hostDialect struct {
	target    *target.Target
	emitCalls bool
}

var _ Dialect = (*hostDialect)(nil)

func (d *hostDialect) Type(t ir.DataType) (string, error) { return HostType(t) }

func (d *hostDialect) FunctionHead(g *CodeGenC, name string, f *ir.PrimFunc) (string, error) {
	if f.CallingConv() == ir.CallingConvDeviceKernelLaunch {
		return "", errors.Errorf("device kernel %q cannot be generated as host code", name)
	}
	retType, err := d.Type(f.RetType)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("#ifdef __cplusplus\nextern \"C\"\n#endif\nTVM_DLL %s %s", retType, name), nil
}

func (d *hostDialect) RestrictPointers(*ir.PrimFunc) bool { return false }

func (d *hostDialect) ThreadIndex(tag string, _ ir.DataType) (string, error) {
	return "", errors.Errorf("thread index %s used in host code, the function was not split into kernels", tag)
}

func (d *hostDialect) Preamble() string {
	return fmt.Sprintf("// tvm target: %s\n"+
		"#define TVM_EXPORTS\n"+
		"#include \"tvm/runtime/c_runtime_api.h\"\n"+
		"#include \"tvm/runtime/c_backend_api.h\"\n"+
		"#include <math.h>\n"+
		"#include <stdbool.h>\n", d.target)
}

func (d *hostDialect) VisitCall(g *CodeGenC, call *ir.Call) (string, bool, error) {
	switch call.Op {
	case ir.BuiltinStackAlloca:
		if len(call.Args) != 2 {
			return "", true, errors.Errorf("expected 2 arguments, got %d", len(call.Args))
		}
		kind, ok := call.Args[0].(*ir.StringImm)
		num, isConst := ir.IsConstInt(call.Args[1])
		if !ok || !isConst {
			return "", true, errors.Errorf("expected a constant kind and size, got %s and %s", call.Args[0], call.Args[1])
		}
		size, err := StackAllocaSize(kind.Value, num)
		if err != nil {
			return "", true, err
		}
		name := g.FreshName("stack")
		g.Line("TVMValue %s[%d];", name, size)
		return name, true, nil

	case ir.BuiltinCallPackedLowered:
		info, err := packedFunctionInfo(call, false)
		if err != nil {
			return "", true, err
		}
		packedName := g.DeclareGlobal(info.funcName+"_packed", func(name string) {
			g.Decl("static void* %s = NULL;\n", name)
		})
		g.Comment("Call packed function")
		if d.emitCalls {
			d.callPacked(g, call, info, packedName)
		}
		return "", true, nil

	case ir.BuiltinCallCPackedLowered:
		info, err := packedFunctionInfo(call, true)
		if err != nil {
			return "", true, err
		}
		g.Comment("Call packed function")
		if d.emitCalls {
			d.callCPacked(g, call, info)
		}
		return "", true, nil

	case ir.BuiltinThrowLastError:
		g.Line("return -1;")
		return "", true, nil
	}
	return "", false, nil
}

// argStacks returns the expressions of the value and type code stacks, offset by the first
// argument index.
func argStacks(g *CodeGenC, call *ir.Call) (values, tcodes string) {
	values, tcodes = g.Expr(call.Args[1]), g.Expr(call.Args[2])
	begin := g.Expr(call.Args[3])
	return fmt.Sprintf("(((TVMValue*)%s) + %s)", values, begin), fmt.Sprintf("(((int*)%s) + %s)", tcodes, begin)
}

func (d *hostDialect) callPacked(g *CodeGenC, call *ir.Call, info packedCallInfo, packedName string) {
	moduleCtx := g.DeclareGlobal("__tvm_module_ctx", func(name string) {
		g.Decl("void* %s = NULL;\n", name)
	})
	g.Line("if (%s == NULL) {", packedName)
	g.indent++
	g.Line("if (TVMBackendGetFuncFromEnv(%s, %s, &%s) != 0) {", moduleCtx, quoteC(info.funcName), packedName)
	g.indent++
	g.Line("return -1;")
	g.indent--
	g.Line("}")
	g.indent--
	g.Line("}")
	values, tcodes := argStacks(g, call)
	retValue, retCode := g.FreshName("ret_val"), g.FreshName("ret_type_code")
	g.Line("TVMValue %s;", retValue)
	g.Line("int %s;", retCode)
	g.Line("if (TVMFuncCall(%s, %s, %s, %d, &%s, &%s) != 0) {", packedName, values, tcodes, info.numArgs, retValue, retCode)
	g.indent++
	g.Line("return -1;")
	g.indent--
	g.Line("}")
}

func (d *hostDialect) callCPacked(g *CodeGenC, call *ir.Call, info packedCallInfo) {
	g.DeclareGlobal(info.funcName+"_decl", func(string) {
		g.Decl("#ifdef __cplusplus\nextern \"C\"\n#endif\n"+
			"TVM_DLL int32_t %s(void* args, int32_t* arg_type_ids, int32_t num_args, "+
			"void* out_ret_value, int32_t* out_ret_tcode, void* resource_handle);\n", info.funcName)
	})
	values, tcodes := argStacks(g, call)
	retValue, retCode := g.FreshName("ret_val"), g.FreshName("ret_type_code")
	g.Line("TVMValue %s;", retValue)
	g.Line("int32_t %s;", retCode)
	g.Line("if (%s(%s, %s, %d, &%s, &%s, %s) != 0) {",
		info.funcName, values, tcodes, info.numArgs, retValue, retCode, info.resourceHandle)
	g.indent++
	g.Line("return -1;")
	g.indent--
	g.Line("}")
}

// BuildRawC generates the C source of the host functions of mod. Packed calls are left as a
// comment naming the call site.
//
// Functions are generated in name order, except for the one marked with the "runner_function"
// attribute, generated last so all the other symbols are available to it.
func BuildRawC(mod *ir.IRModule, tgt *target.Target) (runtime.Module, error) {
	return buildHost(mod, tgt, false)
}

// BuildC is like BuildRawC, but it also generates the packed calls, through the TVM C runtime API.
func BuildC(mod *ir.IRModule, tgt *target.Target) (runtime.Module, error) {
	return buildHost(mod, tgt, true)
}

func buildHost(mod *ir.IRModule, tgt *target.Target, emitCalls bool) (runtime.Module, error) {
	alignment := tgt.IntAttr("constants-byte-alignment")
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return nil, errors.Errorf("target %q: constants-byte-alignment must be a positive power of 2, got %d", tgt, alignment)
	}
	if tgt.BoolAttr("system-lib") && tgt.StringAttr("runtime") != "c" {
		return nil, errors.Errorf("target %q: %s target only supports generating C runtime SystemLibs", tgt, tgt.Kind.Name)
	}

	g := NewCodeGenC(&hostDialect{target: tgt, emitCalls: emitCalls})
	runner := ""
	for _, name := range mod.Names() {
		f := mod.Functions[name]
		if f.BoolAttr(ir.AttrRunnerFunction, false) {
			if runner != "" {
				return nil, errors.Errorf("functions %q and %q are both marked as %q", runner, name, ir.AttrRunnerFunction)
			}
			runner = name
			continue
		}
		g.AddFunction(symbolName(name, f), f)
	}
	if runner != "" {
		g.AddFunction(symbolName(runner, mod.Functions[runner]), mod.Functions[runner])
	}
	code, err := g.Finish()
	if err != nil {
		return nil, errors.WithMessagef(err, "generating %s code", tgt.Kind.Name)
	}
	return runtime.NewCSourceModule(code, g.FunctionNames(), mod), nil
}

// symbolName returns the exported name of f, defaulting to its name in the module.
func symbolName(name string, f *ir.PrimFunc) string {
	if symbol := f.GlobalSymbol(); symbol != "" {
		return symbol
	}
	return name
}
