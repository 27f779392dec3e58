package transform

import (
	"fmt"

	"github.com/gomlx/tegen/ir"
	"github.com/pkg/errors"
)

// Names of the parameters of functions using the packed calling convention.
const (
	PackedArgs           = "args"
	PackedArgTypeIDs     = "arg_type_ids"
	PackedNumArgs        = "num_args"
	PackedOutRetValue    = "out_ret_value"
	PackedOutRetTCode    = "out_ret_tcode"
	PackedResourceHandle = "resource_handle"
)

// MakePackedAPI converts the exported host functions to the packed calling convention:
//
//	int32_t name(void* args, int32_t* arg_type_ids, int32_t num_args,
//	             void* out_ret_value, int32_t* out_ret_tcode, void* resource_handle)
//
// The new body checks the number of arguments and their type codes, unpacks the DLTensor
// of every buffer parameter, checks its rank and data type, and binds the symbolic shape
// variables from the first tensor whose shape names them: later uses are asserted to match.
func MakePackedAPI(mod *ir.IRModule) (*ir.IRModule, error) {
	newMod := copyModule(mod)
	for _, name := range mod.Names() {
		f := mod.Functions[name]
		tgt, err := requireTarget(name, f)
		if err != nil {
			return nil, err
		}
		if tgt.IsDevice() || f.CallingConv() != ir.CallingConvDefault || f.GlobalSymbol() == "" {
			continue
		}
		packed, err := makePackedAPI(f)
		if err != nil {
			return nil, errors.WithMessagef(err, "MakePackedAPI(%q)", name)
		}
		newMod.Update(name, packed)
	}
	return newMod, nil
}

// argBinder accumulates the lets and asserts that precede the body, in order.
type argBinder struct {
	funcName string
	steps    []ir.Stmt // *ir.LetStmt or *ir.AssertStmt with a nil Body.
	bound    map[*ir.Var]bool
}

func (b *argBinder) let(v *ir.Var, value ir.Expr) {
	b.steps = append(b.steps, &ir.LetStmt{Var: v, Value: value})
	b.bound[v] = true
}

func (b *argBinder) assert(cond ir.Expr, format string, args ...any) {
	b.steps = append(b.steps, &ir.AssertStmt{Cond: cond, Message: b.funcName + ": " + fmt.Sprintf(format, args...)})
}

// bind a parameter expression to the value read from the arguments: the first time a
// variable is seen it is defined, otherwise the two are asserted to be equal.
func (b *argBinder) bind(expr, value ir.Expr, label string) {
	if v, ok := expr.(*ir.Var); ok && !b.bound[v] {
		b.let(v, value)
		return
	}
	b.assert(ir.EQ(expr, value), "Argument %s has an unsatisfied constraint: %s == %s", label, expr, value)
}

// wrap nests body under the accumulated steps.
func (b *argBinder) wrap(body ir.Stmt) ir.Stmt {
	for i := len(b.steps) - 1; i >= 0; i-- {
		switch step := b.steps[i].(type) {
		case *ir.LetStmt:
			body = &ir.LetStmt{Var: step.Var, Value: step.Value, Body: body}
		case *ir.AssertStmt:
			body = &ir.AssertStmt{Cond: step.Cond, Message: step.Message, Body: body}
		}
	}
	return body
}

func makePackedAPI(f *ir.PrimFunc) (*ir.PrimFunc, error) {
	name := f.GlobalSymbol()
	numParams := len(f.Params)
	vArgs := ir.NewVar(PackedArgs, ir.Handle())
	vTypeIDs := ir.NewVar(PackedArgTypeIDs, ir.Handle())
	vNumArgs := ir.NewVar(PackedNumArgs, ir.Int32())
	vRetValue := ir.NewVar(PackedOutRetValue, ir.Handle())
	vRetTCode := ir.NewVar(PackedOutRetTCode, ir.Handle())
	vResource := ir.NewVar(PackedResourceHandle, ir.Handle())
	typeIDs := &ir.Buffer{Name: PackedArgTypeIDs, Data: vTypeIDs, DType: ir.Int32(), Shape: []ir.Expr{vNumArgs}}
	retTCode := &ir.Buffer{Name: PackedOutRetTCode, Data: vRetTCode, DType: ir.Int32(), Shape: []ir.Expr{ir.I32(1)}}

	b := &argBinder{funcName: name, bound: make(map[*ir.Var]bool)}
	b.assert(ir.EQ(vNumArgs, ir.I32(numParams)), "num_args should be %d", numParams)

	argValues := make([]*ir.Var, numParams)
	typeCodes := make([]*ir.Var, numParams)
	for i, p := range f.Params {
		typeCodes[i] = ir.NewVar("arg."+p.Name+".code", ir.Int32())
		b.let(typeCodes[i], typeIDs.Load(ir.I32(i)))
		switch {
		case p.DType.IsHandle():
			argValues[i] = ir.NewVar("arg."+p.Name, ir.Handle())
			b.let(argValues[i], ir.StructGet(ir.Handle(), vArgs, i, ir.FieldTVMValueContent))
		case p.DType.IsIntegral() || p.DType.IsBool():
			argValues[i] = ir.NewVar("arg."+p.Name, p.DType)
			b.let(argValues[i], &ir.Cast{DType: p.DType, Value: ir.StructGet(ir.Int64(), vArgs, i, ir.FieldTVMValueContent)})
		case p.DType.IsFloat():
			argValues[i] = ir.NewVar("arg."+p.Name, p.DType)
			b.let(argValues[i], &ir.Cast{DType: p.DType, Value: ir.StructGet(ir.Float(64), vArgs, i, ir.FieldTVMValueContent)})
		default:
			return nil, errors.Errorf("parameter %q has unsupported data type %s", p.Name, p.DType)
		}
	}

	for i, p := range f.Params {
		code := typeCodes[i]
		switch {
		case p.DType.IsHandle():
			b.assert(ir.Or(ir.Or(ir.EQ(code, ir.I32(ir.TypeCodeOpaqueHandle)), ir.EQ(code, ir.I32(ir.TypeCodeNDArrayHandle))),
				ir.Or(ir.EQ(code, ir.I32(ir.TypeCodeDLTensorHandle)), ir.EQ(code, ir.I32(ir.TypeCodeNull)))),
				"Expect arg[%d] to be pointer", i)
		case p.DType.IsFloat():
			b.assert(ir.EQ(code, ir.I32(ir.TypeCodeFloat)), "Expect arg[%d] to be float", i)
		default:
			b.assert(ir.EQ(code, ir.I32(ir.TypeCodeInt)), "Expect arg[%d] to be int", i)
		}
	}

	for i, p := range f.Params {
		buf, isBuffer := f.BufferMap[p]
		if !isBuffer {
			b.bind(p, argValues[i], "arg."+p.Name)
			continue
		}
		bindBuffer(b, buf, argValues[i])
	}

	body := &ir.AttrStmt{
		Node:  ir.I32(0),
		Key:   ir.AttrComputeScope,
		Value: &ir.StringImm{Value: name + "_compute_"},
		Body:  f.Body,
	}
	packed := ir.NewPrimFunc(
		[]*ir.Var{vArgs, vTypeIDs, vNumArgs, vRetValue, vRetTCode, vResource},
		map[*ir.Var]*ir.Buffer{vTypeIDs: typeIDs, vRetTCode: retTCode},
		b.wrap(body))
	packed.RetType = ir.Int32()
	for k, v := range f.Attrs {
		packed.Attrs[k] = v
	}
	packed.WithAttr(ir.AttrCallingConv, ir.CallingConvCPackedFunc)
	return packed, nil
}

// bindBuffer unpacks the DLTensor handle into the buffer: checks the rank and data type,
// binds (or checks) the shape and finally defines the buffer data pointer.
func bindBuffer(b *argBinder, buf *ir.Buffer, handle *ir.Var) {
	prefix := handle.Name
	rank := buf.Rank()
	b.assert(ir.EQ(ir.StructGet(ir.Int32(), handle, 0, ir.FieldArrNDim), ir.I32(rank)),
		"%s.ndim is expected to equal %d", prefix, rank)

	u8, u16 := ir.UInt(8), ir.UInt(16)
	dtypeCond := ir.And(
		ir.And(
			ir.EQ(ir.StructGet(u8, handle, 0, ir.FieldArrTypeCode), ir.MakeInt(u8, int64(buf.DType.Code))),
			ir.EQ(ir.StructGet(u8, handle, 0, ir.FieldArrTypeBits), ir.MakeInt(u8, int64(buf.DType.Bits)))),
		ir.EQ(ir.StructGet(u16, handle, 0, ir.FieldArrTypeLanes), ir.MakeInt(u16, int64(buf.DType.Lanes))))
	b.assert(dtypeCond, "%s.dtype is expected to be %s", prefix, buf.DType)

	if rank > 0 {
		shape := &ir.Buffer{
			Name:  prefix + ".shape",
			Data:  ir.NewVar(prefix+".shape", ir.Handle()),
			DType: ir.Int64(),
			Shape: []ir.Expr{ir.I32(rank)},
		}
		b.let(shape.Data, ir.StructGet(ir.Handle(), handle, 0, ir.FieldArrShape))
		for k, dim := range buf.Shape {
			value := &ir.Cast{DType: dim.DataType(), Value: shape.Load(ir.I32(k))}
			b.bind(dim, value, fmt.Sprintf("%s.shape[%d]", prefix, k))
		}
	}
	if len(buf.Strides) > 0 {
		strides := &ir.Buffer{
			Name:  prefix + ".strides",
			Data:  ir.NewVar(prefix+".strides", ir.Handle()),
			DType: ir.Int64(),
			Shape: []ir.Expr{ir.I32(rank)},
		}
		b.let(strides.Data, ir.StructGet(ir.Handle(), handle, 0, ir.FieldArrStrides))
		for k, stride := range buf.Strides {
			value := &ir.Cast{DType: stride.DataType(), Value: strides.Load(ir.I32(k))}
			b.bind(stride, value, fmt.Sprintf("%s.strides[%d]", prefix, k))
		}
	}
	b.bind(buf.Data, ir.StructGet(ir.Handle(), handle, 0, ir.FieldArrData), prefix+".data")
}
