package codegen

import (
	"fmt"
	"strings"

	"github.com/gomlx/tegen/ir"
	"github.com/gomlx/tegen/runtime"
	"github.com/gomlx/tegen/target"
	"github.com/pkg/errors"
)

// cudaDialect generates CUDA C kernels.
type cudaDialect struct {
	target   *target.Target
	usesHalf bool
}

var _ Dialect = (*cudaDialect)(nil)

var cudaIntTypes = map[ir.DataType]string{
	ir.Int(8):   "int8_t",
	ir.Int(16):  "short",
	ir.Int(32):  "int",
	ir.Int(64):  "int64_t",
	ir.UInt(8):  "uint8_t",
	ir.UInt(16): "ushort",
	ir.UInt(32): "uint",
	ir.UInt(64): "uint64_t",
}

func (d *cudaDialect) Type(t ir.DataType) (string, error) {
	switch {
	case t.IsVoid():
		return "void", nil
	case t.Lanes != 1:
		return "", errors.Errorf("vector type %s is not supported by the CUDA code generator", t)
	case t.IsHandle():
		return "void*", nil
	case t.IsBool():
		return "bool", nil
	case t.IsFloat():
		switch t.Bits {
		case 16:
			d.usesHalf = true
			return "half", nil
		case 32:
			return "float", nil
		case 64:
			return "double", nil
		}
	}
	if name, found := cudaIntTypes[t]; found {
		return name, nil
	}
	return "", errors.Errorf("cannot convert type %s to CUDA type", t)
}

// launchBounds returns the number of threads per block used by the kernel, or 0 if it is not
// a constant.
func launchBounds(f *ir.PrimFunc) int64 {
	threads := int64(1)
	seen := make(map[string]bool)
	ir.Visit(f.Body, func(node any) bool {
		attr, ok := node.(*ir.AttrStmt)
		if !ok || attr.Key != ir.AttrThreadExtent {
			return true
		}
		iv, ok := attr.Node.(*ir.IterVar)
		if !ok || !strings.HasPrefix(iv.ThreadTag, "threadIdx.") || seen[iv.ThreadTag] {
			return true
		}
		seen[iv.ThreadTag] = true
		extent, isConst := ir.IsConstInt(attr.Value)
		if !isConst || threads == 0 {
			threads = 0
			return true
		}
		threads *= extent
		return true
	})
	return threads
}

func (d *cudaDialect) FunctionHead(_ *CodeGenC, name string, f *ir.PrimFunc) (string, error) {
	if f.CallingConv() != ir.CallingConvDeviceKernelLaunch {
		return "", errors.Errorf("function %q is not a device kernel", name)
	}
	if !f.RetType.IsVoid() {
		return "", errors.Errorf("kernel %q must return void, it returns %s", name, f.RetType)
	}
	head := `extern "C" __global__ void`
	if threads := launchBounds(f); threads > 0 {
		head = fmt.Sprintf("%s __launch_bounds__(%d)", head, threads)
	}
	return head + " " + name, nil
}

func (d *cudaDialect) RestrictPointers(f *ir.PrimFunc) bool {
	return f.BoolAttr(ir.AttrNoAlias, false)
}

func (d *cudaDialect) ThreadIndex(tag string, dtype ir.DataType) (string, error) {
	scope, axis, _ := strings.Cut(tag, ".")
	if (scope != "blockIdx" && scope != "threadIdx") || (axis != "x" && axis != "y" && axis != "z") {
		return "", errors.Errorf("unknown thread tag %q", tag)
	}
	typeName, err := d.Type(dtype)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("((%s)%s)", typeName, tag), nil
}

func (d *cudaDialect) Preamble() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "// tvm target: %s\n", d.target)
	if d.usesHalf {
		sb.WriteString("#include <cuda_fp16.h>\n")
	}
	sb.WriteString("#include <stdint.h>\n\n")
	return sb.String()
}

func (d *cudaDialect) VisitCall(_ *CodeGenC, call *ir.Call) (string, bool, error) {
	switch call.Op {
	case ir.BuiltinCallPacked, ir.BuiltinCallCPacked, ir.BuiltinCallPackedLowered, ir.BuiltinCallCPackedLowered,
		ir.BuiltinStackAlloca, ir.BuiltinStructGet, ir.BuiltinStructSet:
		return "", true, errors.Errorf("%s cannot be used in device code", call.Op)
	}
	return "", false, nil
}

// BuildCUDA generates the CUDA source of the kernels in mod, in name order.
func BuildCUDA(mod *ir.IRModule, tgt *target.Target) (runtime.Module, error) {
	d := &cudaDialect{target: tgt}
	g := NewCodeGenC(d)
	for _, name := range mod.Names() {
		f := mod.Functions[name]
		g.AddFunction(symbolName(name, f), f)
	}
	code, err := g.Finish()
	if err != nil {
		return nil, errors.WithMessagef(err, "generating CUDA code")
	}
	return runtime.NewDeviceSourceModule("cuda", code, []string{"cu", "cuda"}, g.FunctionNames(), mod), nil
}
