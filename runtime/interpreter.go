package runtime

import (
	"math"

	"github.com/gomlx/tegen/ir"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// valueStack is the runtime form of a TVMValue array: the packed arguments and the
// "arg_value" stacks.
type valueStack []any

// Stack kinds of tvm_stack_alloca.
const (
	stackArgValue = "arg_value"
	stackArgTCode = "arg_tcode"
	stackShape    = "shape"
)

// interpreter executes lowered IR functions.
//
// Integer and boolean values are int64, floating point values are float64, and handles are
// the Go values they point to: a data slice, an *NDArray (DLTensor), a valueStack, ...
type interpreter struct {
	env map[*ir.Var]any

	// threads maps thread tags to the indices of the thread being interpreted.
	// It is nil for host code.
	threads map[string]int64

	// resolve finds the functions called with tvm_call_packed_lowered.
	resolve func(name string) (PackedFunc, error)
}

func newInterpreter(resolve func(name string) (PackedFunc, error)) *interpreter {
	return &interpreter{env: make(map[*ir.Var]any), resolve: resolve}
}

func (it *interpreter) exec(s ir.Stmt) error {
	switch n := s.(type) {
	case nil:
		return nil
	case *ir.LetStmt:
		value, err := it.eval(n.Value)
		if err != nil {
			return err
		}
		previous, hadPrevious := it.env[n.Var]
		it.env[n.Var] = value
		err = it.exec(n.Body)
		if hadPrevious {
			it.env[n.Var] = previous
		} else {
			delete(it.env, n.Var)
		}
		return err
	case *ir.AttrStmt:
		if n.Key == ir.AttrThreadExtent {
			iv, ok := n.Node.(*ir.IterVar)
			if !ok {
				return errors.Errorf("thread_extent attribute on %T", n.Node)
			}
			if it.threads == nil {
				return errors.Errorf("thread axis %s used outside a device kernel", iv.ThreadTag)
			}
			idx, found := it.threads[iv.ThreadTag]
			if !found {
				return errors.Errorf("thread axis %s was not launched", iv.ThreadTag)
			}
			it.env[iv.Var] = idx
		}
		return it.exec(n.Body)
	case *ir.AssertStmt:
		cond, err := it.evalInt(n.Cond)
		if err != nil {
			return err
		}
		if cond == 0 {
			return errors.New(n.Message)
		}
		return it.exec(n.Body)
	case *ir.For:
		if n.Kind != ir.ForSerial {
			return errors.Errorf("%s loop over %s cannot be executed, only serial loops are supported", n.Kind, n.LoopVar.Name)
		}
		start, err := it.evalInt(n.Min)
		if err != nil {
			return err
		}
		extent, err := it.evalInt(n.Extent)
		if err != nil {
			return err
		}
		for i := start; i < start+extent; i++ {
			it.env[n.LoopVar] = i
			if err := it.exec(n.Body); err != nil {
				return err
			}
		}
		delete(it.env, n.LoopVar)
		return nil
	case *ir.IfThenElse:
		cond, err := it.evalInt(n.Cond)
		if err != nil {
			return err
		}
		if cond != 0 {
			return it.exec(n.Then)
		}
		return it.exec(n.Else)
	case *ir.BufferStore:
		handle, err := it.lookup(n.Buffer.Data)
		if err != nil {
			return err
		}
		idx, err := it.evalInt(n.Index)
		if err != nil {
			return err
		}
		value, err := it.eval(n.Value)
		if err != nil {
			return err
		}
		return errors.WithMessagef(storeElement(handle, idx, value), "storing into %s", n.Buffer.Name)
	case *ir.SeqStmt:
		for _, child := range n.Seq {
			if err := it.exec(child); err != nil {
				return err
			}
		}
		return nil
	case *ir.Evaluate:
		_, err := it.eval(n.Value)
		return err
	}
	return errors.Errorf("cannot execute statement of type %T", s)
}

func (it *interpreter) lookup(v *ir.Var) (any, error) {
	value, found := it.env[v]
	if !found {
		return nil, errors.Errorf("variable %s is not defined", v.Name)
	}
	return value, nil
}

func (it *interpreter) evalInt(e ir.Expr) (int64, error) {
	value, err := it.eval(e)
	if err != nil {
		return 0, err
	}
	i, ok := value.(int64)
	if !ok {
		return 0, errors.Errorf("expression %s evaluated to %T, expected an integer", e, value)
	}
	return i, nil
}

func (it *interpreter) eval(e ir.Expr) (any, error) {
	switch n := e.(type) {
	case *ir.IntImm:
		return n.Value, nil
	case *ir.FloatImm:
		return n.Value, nil
	case *ir.StringImm:
		return n.Value, nil
	case *ir.Var:
		return it.lookup(n)
	case *ir.Binary:
		a, err := it.eval(n.A)
		if err != nil {
			return nil, err
		}
		b, err := it.eval(n.B)
		if err != nil {
			return nil, err
		}
		return binaryOp(n.Op, n.A.DataType(), a, b)
	case *ir.Not:
		a, err := it.evalInt(n.A)
		if err != nil {
			return nil, err
		}
		return boolValue(a == 0), nil
	case *ir.Cast:
		value, err := it.eval(n.Value)
		if err != nil {
			return nil, err
		}
		return convert(n.DType, value)
	case *ir.Select:
		cond, err := it.evalInt(n.Cond)
		if err != nil {
			return nil, err
		}
		if cond != 0 {
			return it.eval(n.True)
		}
		return it.eval(n.False)
	case *ir.BufferLoad:
		handle, err := it.lookup(n.Buffer.Data)
		if err != nil {
			return nil, err
		}
		idx, err := it.evalInt(n.Index)
		if err != nil {
			return nil, err
		}
		value, err := loadElement(handle, idx)
		return value, errors.WithMessagef(err, "loading from %s", n.Buffer.Name)
	case *ir.Call:
		return it.call(n)
	case *ir.ProducerLoad:
		return nil, errors.Errorf("tensor %s was not lowered to a buffer", n.Producer.ProducerName())
	}
	return nil, errors.Errorf("cannot evaluate expression of type %T", e)
}

func boolValue(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// wrapInt truncates v to the integer dtype.
func wrapInt(dtype ir.DataType, v int64) int64 {
	if dtype.IsBool() {
		return boolValue(v != 0)
	}
	if dtype.IsUInt() {
		switch dtype.Bits {
		case 8:
			return int64(uint8(v))
		case 16:
			return int64(uint16(v))
		case 32:
			return int64(uint32(v))
		}
		return v
	}
	switch dtype.Bits {
	case 8:
		return int64(int8(v))
	case 16:
		return int64(int16(v))
	case 32:
		return int64(int32(v))
	}
	return v
}

// roundFloat rounds v to the precision of the float dtype.
func roundFloat(dtype ir.DataType, v float64) float64 {
	switch dtype.Bits {
	case 16:
		return float64(float16.Fromfloat32(float32(v)).Float32())
	case 32:
		return float64(float32(v))
	}
	return v
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func binaryOp(op ir.OpKind, operandType ir.DataType, a, b any) (any, error) {
	switch x := a.(type) {
	case int64:
		y, ok := b.(int64)
		if !ok {
			return nil, errors.Errorf("%s with mismatched operands %T and %T", op, a, b)
		}
		return intOp(op, operandType, x, y)
	case float64:
		y, ok := b.(float64)
		if !ok {
			return nil, errors.Errorf("%s with mismatched operands %T and %T", op, a, b)
		}
		return floatOp(op, operandType, x, y)
	}
	return nil, errors.Errorf("%s not supported for operands of type %T", op, a)
}

func intOp(op ir.OpKind, dtype ir.DataType, a, b int64) (any, error) {
	var v int64
	switch op {
	case ir.OpAdd:
		v = a + b
	case ir.OpSub:
		v = a - b
	case ir.OpMul:
		v = a * b
	case ir.OpDiv, ir.OpMod, ir.OpFloorDiv, ir.OpFloorMod:
		if b == 0 {
			return nil, errors.Errorf("integer division by zero in %s", op)
		}
		switch op {
		case ir.OpDiv:
			v = a / b
		case ir.OpMod:
			v = a % b
		case ir.OpFloorDiv:
			v = floorDiv(a, b)
		default:
			v = a - floorDiv(a, b)*b
		}
	case ir.OpMin:
		v = min(a, b)
	case ir.OpMax:
		v = max(a, b)
	case ir.OpEQ:
		return boolValue(a == b), nil
	case ir.OpNE:
		return boolValue(a != b), nil
	case ir.OpLT:
		return boolValue(a < b), nil
	case ir.OpLE:
		return boolValue(a <= b), nil
	case ir.OpGT:
		return boolValue(a > b), nil
	case ir.OpGE:
		return boolValue(a >= b), nil
	case ir.OpAnd:
		return boolValue(a != 0 && b != 0), nil
	case ir.OpOr:
		return boolValue(a != 0 || b != 0), nil
	default:
		return nil, errors.Errorf("unknown integer operator %s", op)
	}
	return wrapInt(dtype, v), nil
}

func floatOp(op ir.OpKind, dtype ir.DataType, a, b float64) (any, error) {
	var v float64
	switch op {
	case ir.OpAdd:
		v = a + b
	case ir.OpSub:
		v = a - b
	case ir.OpMul:
		v = a * b
	case ir.OpDiv:
		v = a / b
	case ir.OpMin:
		v = math.Min(a, b)
	case ir.OpMax:
		v = math.Max(a, b)
	case ir.OpEQ:
		return boolValue(a == b), nil
	case ir.OpNE:
		return boolValue(a != b), nil
	case ir.OpLT:
		return boolValue(a < b), nil
	case ir.OpLE:
		return boolValue(a <= b), nil
	case ir.OpGT:
		return boolValue(a > b), nil
	case ir.OpGE:
		return boolValue(a >= b), nil
	default:
		return nil, errors.Errorf("unknown floating point operator %s", op)
	}
	return roundFloat(dtype, v), nil
}

// convert casts a runtime value to dtype.
func convert(dtype ir.DataType, value any) (any, error) {
	switch {
	case dtype.IsFloat():
		switch v := value.(type) {
		case int64:
			return roundFloat(dtype, float64(v)), nil
		case float64:
			return roundFloat(dtype, v), nil
		}
	case dtype.IsIntegral() || dtype.IsBool():
		switch v := value.(type) {
		case int64:
			return wrapInt(dtype, v), nil
		case float64:
			if dtype.IsBool() {
				return boolValue(v != 0), nil
			}
			return wrapInt(dtype, int64(v)), nil
		}
	case dtype.IsHandle():
		return value, nil
	}
	return nil, errors.Errorf("cannot cast %T to %s", value, dtype)
}

func checkIndex(idx int64, size int) error {
	if idx < 0 || idx >= int64(size) {
		return errors.Errorf("index %d out of bounds for %d elements", idx, size)
	}
	return nil
}

// loadElement reads element idx of the data handle.
func loadElement(handle any, idx int64) (any, error) {
	switch data := handle.(type) {
	case []float32:
		if err := checkIndex(idx, len(data)); err != nil {
			return nil, err
		}
		return float64(data[idx]), nil
	case []float64:
		if err := checkIndex(idx, len(data)); err != nil {
			return nil, err
		}
		return data[idx], nil
	case []float16.Float16:
		if err := checkIndex(idx, len(data)); err != nil {
			return nil, err
		}
		return float64(data[idx].Float32()), nil
	case []int32:
		if err := checkIndex(idx, len(data)); err != nil {
			return nil, err
		}
		return int64(data[idx]), nil
	case []int64:
		if err := checkIndex(idx, len(data)); err != nil {
			return nil, err
		}
		return data[idx], nil
	case nil:
		return nil, errors.New("load from a null pointer")
	}
	return nil, errors.Errorf("cannot load from handle of type %T", handle)
}

// storeElement writes value into element idx of the data handle.
func storeElement(handle any, idx int64, value any) error {
	var f float64
	var i int64
	switch v := value.(type) {
	case float64:
		f, i = v, int64(v)
	case int64:
		f, i = float64(v), v
	default:
		return errors.Errorf("cannot store value of type %T", value)
	}
	switch data := handle.(type) {
	case []float32:
		if err := checkIndex(idx, len(data)); err != nil {
			return err
		}
		data[idx] = float32(f)
	case []float64:
		if err := checkIndex(idx, len(data)); err != nil {
			return err
		}
		data[idx] = f
	case []float16.Float16:
		if err := checkIndex(idx, len(data)); err != nil {
			return err
		}
		data[idx] = float16.Fromfloat32(float32(f))
	case []int32:
		if err := checkIndex(idx, len(data)); err != nil {
			return err
		}
		data[idx] = int32(i)
	case []int64:
		if err := checkIndex(idx, len(data)); err != nil {
			return err
		}
		data[idx] = i
	case nil:
		return errors.New("store to a null pointer")
	default:
		return errors.Errorf("cannot store into handle of type %T", handle)
	}
	return nil
}

func (it *interpreter) evalArgs(call *ir.Call) ([]any, error) {
	args := make([]any, len(call.Args))
	for i, arg := range call.Args {
		value, err := it.eval(arg)
		if err != nil {
			return nil, err
		}
		args[i] = value
	}
	return args, nil
}

// builtinArity is the number of arguments of the builtins the interpreter runs.
var builtinArity = map[string]int{
	ir.BuiltinLikely:             1,
	ir.BuiltinStructGet:          3,
	ir.BuiltinStructSet:          4,
	ir.BuiltinStackAlloca:        2,
	ir.BuiltinCallPackedLowered:  5,
	ir.BuiltinCallCPackedLowered: 6,
	ir.BuiltinThrowLastError:     0,
	ir.BuiltinReinterpret:        1,
	ir.BuiltinIsNullPointer:      1,
}

// intArgs returns the arguments at the given positions, which must be integers.
func intArgs(call *ir.Call, args []any, positions ...int) ([]int64, error) {
	values := make([]int64, len(positions))
	for i, pos := range positions {
		v, ok := args[pos].(int64)
		if !ok {
			return nil, errors.Errorf("%s: argument #%d must be an integer, got %T", call.Op, pos, args[pos])
		}
		values[i] = v
	}
	return values, nil
}

func (it *interpreter) call(call *ir.Call) (any, error) {
	arity, found := builtinArity[call.Op]
	if !found {
		return nil, errors.Errorf("builtin %q not supported by the interpreter", call.Op)
	}
	if len(call.Args) != arity {
		return nil, errors.Errorf("%s takes %d arguments, got %d", call.Op, arity, len(call.Args))
	}
	args, err := it.evalArgs(call)
	if err != nil {
		return nil, err
	}
	switch call.Op {
	case ir.BuiltinLikely:
		return args[0], nil

	case ir.BuiltinStructGet:
		ints, err := intArgs(call, args, 1, 2)
		if err != nil {
			return nil, err
		}
		idx, field := ints[0], ir.StructField(ints[1])
		switch handle := args[0].(type) {
		case valueStack:
			if field != ir.FieldTVMValueContent {
				return nil, errors.Errorf("%s: TVMValue has no field #%d", call.Op, field)
			}
			if err := checkIndex(idx, len(handle)); err != nil {
				return nil, errors.WithMessagef(err, "%s", call.Op)
			}
			return handle[idx], nil
		case *NDArray:
			if idx != 0 {
				return nil, errors.Errorf("%s: DLTensor arrays are not supported, got index %d", call.Op, idx)
			}
			return handle.structField(field)
		}
		return nil, errors.Errorf("%s on handle of type %T", call.Op, args[0])

	case ir.BuiltinStructSet:
		ints, err := intArgs(call, args, 1, 2)
		if err != nil {
			return nil, err
		}
		idx, field := ints[0], ir.StructField(ints[1])
		stack, ok := args[0].(valueStack)
		if !ok || field != ir.FieldTVMValueContent {
			return nil, errors.Errorf("%s only supports TVMValue stacks, got %T", call.Op, args[0])
		}
		if err := checkIndex(idx, len(stack)); err != nil {
			return nil, errors.WithMessagef(err, "%s", call.Op)
		}
		stack[idx] = args[3]
		return int64(0), nil

	case ir.BuiltinStackAlloca:
		kind, _ := args[0].(string)
		ints, err := intArgs(call, args, 1)
		if err != nil {
			return nil, err
		}
		if ints[0] < 0 {
			return nil, errors.Errorf("%s: negative size %d", call.Op, ints[0])
		}
		num := int(ints[0])
		switch kind {
		case stackArgValue:
			return make(valueStack, num), nil
		case stackArgTCode:
			return make([]int32, num), nil
		case stackShape:
			return make([]int64, num), nil
		}
		return nil, errors.Errorf("unknown stack alloca type %q", kind)

	case ir.BuiltinCallPackedLowered, ir.BuiltinCallCPackedLowered:
		name, _ := args[0].(string)
		stack, ok := args[1].(valueStack)
		if !ok {
			return nil, errors.Errorf("%s(%q): arguments must be a TVMValue stack, got %T", call.Op, name, args[1])
		}
		ints, err := intArgs(call, args, 3, 4)
		if err != nil {
			return nil, err
		}
		begin, end := ints[0], ints[1]
		if call.Op == ir.BuiltinCallCPackedLowered {
			// The last argument is the resource handle.
			end--
		}
		if begin < 0 || end < begin || end > int64(len(stack)) {
			return nil, errors.Errorf("%s(%q): invalid argument range [%d, %d)", call.Op, name, begin, end)
		}
		if it.resolve == nil {
			return nil, errors.Errorf("%s(%q): packed calls are not available here", call.Op, name)
		}
		fn, err := it.resolve(name)
		if err != nil {
			return nil, err
		}
		if err := fn(stack[begin:end]...); err != nil {
			return nil, errors.WithMessagef(err, "calling %q", name)
		}
		return int64(0), nil

	case ir.BuiltinThrowLastError:
		return nil, errors.New("packed function call failed")

	case ir.BuiltinReinterpret:
		if v, ok := args[0].(int64); ok && v == 0 && call.DType.IsHandle() {
			return nil, nil
		}
		return args[0], nil

	case ir.BuiltinIsNullPointer:
		return boolValue(args[0] == nil), nil
	}
	return nil, errors.Errorf("builtin %q not supported by the interpreter", call.Op)
}
