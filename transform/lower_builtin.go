package transform

import (
	"github.com/gomlx/tegen/ir"
	"github.com/pkg/errors"
)

// Stack kinds accepted by tvm_stack_alloca.
const (
	StackShape    = "shape"
	StackArgValue = "arg_value"
	StackArgTCode = "arg_tcode"
	StackArray    = "array"
)

// StackAlloca allocates num elements of the given stack kind, see the Stack* constants.
func StackAlloca(kind string, num int) ir.Expr {
	return &ir.Call{DType: ir.Handle(), Op: ir.BuiltinStackAlloca, Args: []ir.Expr{&ir.StringImm{Value: kind}, ir.I32(num)}}
}

// LowerTVMBuiltin lowers tvm_call_packed (and tvm_call_cpacked) calls in host functions into
// explicit argument stacks: the values and the type codes of the arguments are stored in
// tvm_stack_alloca'ed arrays, and the call becomes
// tvm_call_packed_lowered(name, stack_value, stack_tcode, 0, num_args).
//
// The C packed variant also passes a null resource handle, as reinterpret(0), counted as one
// more argument.
func LowerTVMBuiltin(mod *ir.IRModule) (*ir.IRModule, error) {
	newMod := copyModule(mod)
	for _, name := range mod.Names() {
		f := mod.Functions[name]
		tgt, err := requireTarget(name, f)
		if err != nil {
			return nil, err
		}
		if tgt.IsDevice() {
			continue
		}
		var lowerErr error
		body := ir.TransformStmt(f.Body, func(s ir.Stmt) ir.Stmt {
			eval, ok := s.(*ir.Evaluate)
			if !ok {
				return nil
			}
			call, ok := eval.Value.(*ir.Call)
			if !ok || (call.Op != ir.BuiltinCallPacked && call.Op != ir.BuiltinCallCPacked) {
				return nil
			}
			lowered, err := lowerPackedCall(call)
			if err != nil && lowerErr == nil {
				lowerErr = err
			}
			return lowered
		})
		if lowerErr != nil {
			return nil, errors.WithMessagef(lowerErr, "LowerTVMBuiltin(%q)", name)
		}
		newF := f.ShallowCopy()
		newF.Body = body
		newMod.Update(name, newF)
	}
	return newMod, nil
}

// packedArg converts a call argument to the value stored in the TVMValue stack, and its type code.
func packedArg(arg ir.Expr) (ir.Expr, int, error) {
	dtype := arg.DataType()
	switch {
	case dtype.IsHandle():
		return arg, ir.TypeCodeOpaqueHandle, nil
	case dtype.IsInt() || dtype.IsBool():
		if dtype != ir.Int64() {
			arg = &ir.Cast{DType: ir.Int64(), Value: arg}
		}
		return arg, ir.TypeCodeInt, nil
	case dtype.IsUInt():
		if dtype != ir.Int64() {
			arg = &ir.Cast{DType: ir.Int64(), Value: arg}
		}
		return arg, ir.TypeCodeUInt, nil
	case dtype.IsFloat():
		if dtype != ir.Float(64) {
			arg = &ir.Cast{DType: ir.Float(64), Value: arg}
		}
		return arg, ir.TypeCodeFloat, nil
	}
	return nil, 0, errors.Errorf("cannot pass %s of type %s to a packed function", arg, dtype)
}

func lowerPackedCall(call *ir.Call) (ir.Stmt, error) {
	if len(call.Args) == 0 {
		return nil, errors.Errorf("%s without the function name", call.Op)
	}
	if _, ok := call.Args[0].(*ir.StringImm); !ok {
		return nil, errors.Errorf("%s expects the function name as first argument, got %s", call.Op, call.Args[0])
	}
	args := call.Args[1:]
	numArgs := len(args)
	stackValue := ir.NewVar("stack_value", ir.Handle())
	stackTCode := ir.NewVar("stack_tcode", ir.Handle())
	tcodes := &ir.Buffer{Name: "stack_tcode", Data: stackTCode, DType: ir.Int32(), Shape: []ir.Expr{ir.I32(numArgs)}}

	stmts := make([]ir.Stmt, 0, 2*numArgs+1)
	for i, arg := range args {
		value, code, err := packedArg(arg)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts,
			&ir.Evaluate{Value: ir.StructSet(stackValue, i, ir.FieldTVMValueContent, value)},
			tcodes.Store(ir.I32(code), ir.I32(i)))
	}
	loweredOp := ir.BuiltinCallPackedLowered
	loweredArgs := []ir.Expr{call.Args[0], stackValue, stackTCode, ir.I32(0), ir.I32(numArgs)}
	if call.Op == ir.BuiltinCallCPacked {
		loweredOp = ir.BuiltinCallCPackedLowered
		loweredArgs[4] = ir.I32(numArgs + 1)
		loweredArgs = append(loweredArgs, &ir.Call{DType: ir.Handle(), Op: ir.BuiltinReinterpret, Args: []ir.Expr{ir.MakeInt(ir.Int64(), 0)}})
	}
	stmts = append(stmts, &ir.Evaluate{Value: &ir.Call{DType: ir.Int32(), Op: loweredOp, Args: loweredArgs}})

	return &ir.LetStmt{
		Var:   stackValue,
		Value: StackAlloca(StackArgValue, numArgs),
		Body: &ir.LetStmt{
			Var:   stackTCode,
			Value: StackAlloca(StackArgTCode, numArgs),
			Body:  ir.Seq(stmts...),
		},
	}, nil
}
