package ir

import "fmt"

// Expr is a scalar expression in the IR.
type Expr interface {
	fmt.Stringer

	// DataType of the value the expression evaluates to.
	DataType() DataType
}

// IntImm is an integer (or boolean) constant.
type IntImm struct {
	DType DataType
	Value int64
}

func (e *IntImm) DataType() DataType { return e.DType }
func (e *IntImm) String() string     { return Script(e) }

// FloatImm is a floating point constant.
type FloatImm struct {
	DType DataType
	Value float64
}

func (e *FloatImm) DataType() DataType { return e.DType }
func (e *FloatImm) String() string     { return Script(e) }

// StringImm is a string constant, only used as an argument to builtin calls.
type StringImm struct {
	Value string
}

func (e *StringImm) DataType() DataType { return Handle() }
func (e *StringImm) String() string     { return Script(e) }

// Var is a variable. Variables are compared by pointer identity: two variables
// with the same name are still different variables.
type Var struct {
	Name  string
	DType DataType
}

// NewVar creates a new variable.
func NewVar(name string, dtype DataType) *Var {
	return &Var{Name: name, DType: dtype}
}

func (v *Var) DataType() DataType { return v.DType }
func (v *Var) String() string     { return v.Name }

// Binary is an expression combining two operands of the same data type.
type Binary struct {
	Op   OpKind
	A, B Expr
}

// DataType returns bool for comparisons and logical operators, the operands data type otherwise.
func (e *Binary) DataType() DataType {
	if e.Op.IsComparison() || e.Op.IsLogical() {
		return Bool().WithLanes(e.A.DataType().Lanes)
	}
	return e.A.DataType()
}
func (e *Binary) String() string { return Script(e) }

// Not is the logical negation.
type Not struct {
	A Expr
}

func (e *Not) DataType() DataType { return e.A.DataType() }
func (e *Not) String() string     { return Script(e) }

// Cast converts Value to DType.
type Cast struct {
	DType DataType
	Value Expr
}

func (e *Cast) DataType() DataType { return e.DType }
func (e *Cast) String() string     { return Script(e) }

// Select evaluates both branches and returns one based on Cond.
type Select struct {
	Cond, True, False Expr
}

func (e *Select) DataType() DataType { return e.True.DataType() }
func (e *Select) String() string     { return Script(e) }

// DataProducer is implemented by front-end objects (like te.Tensor) that can be
// read by a ProducerLoad before the computation is lowered to buffers.
type DataProducer interface {
	ProducerName() string
	ProducerDType() DataType
	ProducerShape() []Expr
}

// ProducerLoad reads an element of a DataProducer. It only exists before lowering:
// lowering replaces it with a BufferLoad.
type ProducerLoad struct {
	Producer DataProducer
	Indices  []Expr
}

func (e *ProducerLoad) DataType() DataType { return e.Producer.ProducerDType() }
func (e *ProducerLoad) String() string     { return Script(e) }

// BufferLoad reads the element at the flat Index of Buffer.
type BufferLoad struct {
	Buffer *Buffer
	Index  Expr
}

func (e *BufferLoad) DataType() DataType { return e.Buffer.DType }
func (e *BufferLoad) String() string     { return Script(e) }

// Call invokes a builtin (intrinsic) operation, see the Builtin* constants.
type Call struct {
	DType DataType
	Op    string
	Args  []Expr
}

func (e *Call) DataType() DataType { return e.DType }
func (e *Call) String() string     { return Script(e) }

// Builtin operations used with Call.
const (
	BuiltinLikely             = "tir.likely"
	BuiltinCallPacked         = "tvm_call_packed"
	BuiltinCallCPacked        = "tvm_call_cpacked"
	BuiltinCallPackedLowered  = "tvm_call_packed_lowered"
	BuiltinCallCPackedLowered = "tvm_call_cpacked_lowered"
	BuiltinStackAlloca        = "tvm_stack_alloca"
	BuiltinStructGet          = "tvm_struct_get"
	BuiltinStructSet          = "tvm_struct_set"
	BuiltinThrowLastError     = "tvm_throw_last_error"
	BuiltinReinterpret        = "reinterpret"
	BuiltinIsNullPointer      = "isnullptr"
)

// StructField identifies the field accessed by tvm_struct_get / tvm_struct_set.
type StructField int

// Fields of the DLTensor and TVMValue structures reachable through builtin calls.
const (
	FieldArrAddr StructField = iota
	FieldArrData
	FieldArrShape
	FieldArrStrides
	FieldArrNDim
	FieldArrTypeCode
	FieldArrTypeBits
	FieldArrTypeLanes
	FieldArrByteOffset
	FieldArrDeviceID
	FieldArrDeviceType
	FieldArrKindBound
	FieldTVMValueContent
)

// Packed argument type codes (TVMArgTypeCode), stored in the arg_tcode stacks.
const (
	TypeCodeInt            = 0
	TypeCodeUInt           = 1
	TypeCodeFloat          = 2
	TypeCodeOpaqueHandle   = 3
	TypeCodeNull           = 4
	TypeCodeDLTensorHandle = 7
	TypeCodeNDArrayHandle  = 13
)

// Constructors.

// MakeInt creates an integer constant of the given data type.
func MakeInt(dtype DataType, value int64) *IntImm {
	return &IntImm{DType: dtype, Value: value}
}

// I32 creates an int32 constant.
func I32(value int) *IntImm { return MakeInt(Int32(), int64(value)) }

// MakeFloat creates a floating point constant.
func MakeFloat(dtype DataType, value float64) *FloatImm {
	return &FloatImm{DType: dtype, Value: value}
}

// MakeBool creates a boolean constant.
func MakeBool(value bool) *IntImm {
	if value {
		return MakeInt(Bool(), 1)
	}
	return MakeInt(Bool(), 0)
}

// MakeConst creates a constant of dtype from a Go number.
func MakeConst(dtype DataType, value float64) Expr {
	if dtype.IsFloat() || dtype.IsBFloat() {
		return MakeFloat(dtype, value)
	}
	return MakeInt(dtype, int64(value))
}

func NewBinary(op OpKind, a, b Expr) *Binary { return &Binary{Op: op, A: a, B: b} }

func Add(a, b Expr) Expr      { return NewBinary(OpAdd, a, b) }
func Sub(a, b Expr) Expr      { return NewBinary(OpSub, a, b) }
func Mul(a, b Expr) Expr      { return NewBinary(OpMul, a, b) }
func Div(a, b Expr) Expr      { return NewBinary(OpDiv, a, b) }
func Mod(a, b Expr) Expr      { return NewBinary(OpMod, a, b) }
func FloorDiv(a, b Expr) Expr { return NewBinary(OpFloorDiv, a, b) }
func FloorMod(a, b Expr) Expr { return NewBinary(OpFloorMod, a, b) }
func Min(a, b Expr) Expr      { return NewBinary(OpMin, a, b) }
func Max(a, b Expr) Expr      { return NewBinary(OpMax, a, b) }
func EQ(a, b Expr) Expr       { return NewBinary(OpEQ, a, b) }
func NE(a, b Expr) Expr       { return NewBinary(OpNE, a, b) }
func LT(a, b Expr) Expr       { return NewBinary(OpLT, a, b) }
func LE(a, b Expr) Expr       { return NewBinary(OpLE, a, b) }
func GT(a, b Expr) Expr       { return NewBinary(OpGT, a, b) }
func GE(a, b Expr) Expr       { return NewBinary(OpGE, a, b) }
func And(a, b Expr) Expr      { return NewBinary(OpAnd, a, b) }
func Or(a, b Expr) Expr       { return NewBinary(OpOr, a, b) }

// CeilDiv returns floordiv(a + b - 1, b), for positive b.
func CeilDiv(a, b Expr) Expr {
	return FloorDiv(Sub(Add(a, b), MakeInt(b.DataType(), 1)), b)
}

// Likely marks a condition as likely true, a hint for the code generators.
func Likely(cond Expr) Expr {
	return &Call{DType: Bool(), Op: BuiltinLikely, Args: []Expr{cond}}
}

// StructGet reads field of the index-th element of the structure array handle.
func StructGet(dtype DataType, handle Expr, index int, field StructField) Expr {
	return &Call{DType: dtype, Op: BuiltinStructGet, Args: []Expr{handle, I32(index), I32(int(field))}}
}

// StructSet writes value to the field of the index-th element of the structure array handle.
func StructSet(handle Expr, index int, field StructField, value Expr) Expr {
	return &Call{DType: Int32(), Op: BuiltinStructSet, Args: []Expr{handle, I32(index), I32(int(field)), value}}
}

// IsConstInt returns the value of e if it is an integer constant.
func IsConstInt(e Expr) (int64, bool) {
	if imm, ok := e.(*IntImm); ok {
		return imm.Value, true
	}
	return 0, false
}
