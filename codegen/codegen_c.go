// Package codegen generates source code from lowered IRModules: C for host functions using
// the packed calling convention, and CUDA C for device kernels.
//
// The generators share the CodeGenC emitter, specialized by a Dialect. Each target kind
// registers a BuildFunc under "target.build.<kind>", see Build.
package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gomlx/tegen/internal/utils"
	"github.com/gomlx/tegen/ir"
	"github.com/pkg/errors"
)

// IndentationStep used for each nesting level of the generated code.
const IndentationStep = "  "

// Dialect specializes CodeGenC for one language flavor.
type Dialect interface {
	// Type returns the name of the C type for t.
	Type(t ir.DataType) (string, error)

	// FunctionHead returns the declaration text preceding the parameter list of f.
	FunctionHead(g *CodeGenC, name string, f *ir.PrimFunc) (string, error)

	// RestrictPointers reports whether typed pointer parameters of f get the __restrict__ qualifier.
	RestrictPointers(f *ir.PrimFunc) bool

	// VisitCall generates the builtin calls the dialect handles itself: it returns handled=false
	// for the calls left to CodeGenC.
	VisitCall(g *CodeGenC, call *ir.Call) (code string, handled bool, err error)

	// ThreadIndex returns the expression reading the thread index with the given tag, or an
	// error if the dialect has no thread indices.
	ThreadIndex(tag string, dtype ir.DataType) (string, error)

	// Preamble is written at the top of the generated code.
	Preamble() string
}

// CodeGenC emits C-like source code, one function at a time.
//
// Expressions are rendered into strings; statements (including the ones some expressions need,
// like stack allocations) are written into the function stream. Global declarations go into a
// separate declaration stream that precedes the functions.
//
// The first error encountered is latched: later calls do nothing, and Finish returns it.
type CodeGenC struct {
	dialect Dialect
	decl    strings.Builder
	stream  strings.Builder
	indent  int
	err     error

	names     *utils.NameSupply
	varNames  map[*ir.Var]string
	funcNames []string

	// pointerTypes holds the element type of the handles declared as typed pointers.
	pointerTypes map[*ir.Var]ir.DataType

	// nonNegative holds the variables known to be non-negative: loop and thread indices.
	nonNegative utils.Set[*ir.Var]

	// declaredGlobals maps a global symbol hint to its declared unique name.
	declaredGlobals map[string]string
}

// NewCodeGenC creates an emitter for the given dialect.
func NewCodeGenC(dialect Dialect) *CodeGenC {
	return &CodeGenC{
		dialect:         dialect,
		names:           utils.NewNameSupply(),
		varNames:        make(map[*ir.Var]string),
		pointerTypes:    make(map[*ir.Var]ir.DataType),
		nonNegative:     utils.MakeSet[*ir.Var](),
		declaredGlobals: make(map[string]string),
	}
}

// Err returns the first error encountered.
func (g *CodeGenC) Err() error { return g.err }

// SetErr latches err if no other error was recorded before.
func (g *CodeGenC) SetErr(err error) {
	if g.err == nil && err != nil {
		g.err = err
	}
}

// FunctionNames returns the names of the functions added so far, in order.
func (g *CodeGenC) FunctionNames() []string { return g.funcNames }

// FreshName returns a new unique identifier based on hint.
func (g *CodeGenC) FreshName(hint string) string { return g.names.FreshName(hint) }

// Line writes one indented line of code into the function stream.
func (g *CodeGenC) Line(format string, args ...any) {
	if g.err != nil {
		return
	}
	for range g.indent {
		g.stream.WriteString(IndentationStep)
	}
	fmt.Fprintf(&g.stream, format, args...)
	g.stream.WriteByte('\n')
}

// Comment writes a one line comment into the function stream.
func (g *CodeGenC) Comment(text string) {
	g.Line("// %s", text)
}

// Decl writes into the declaration stream.
func (g *CodeGenC) Decl(format string, args ...any) {
	if g.err != nil {
		return
	}
	fmt.Fprintf(&g.decl, format, args...)
}

// DeclareGlobal declares once the global symbol derived from hint, using declare to write the
// declaration of its unique name. It returns the unique name.
func (g *CodeGenC) DeclareGlobal(hint string, declare func(name string)) string {
	if name, found := g.declaredGlobals[hint]; found {
		return name
	}
	name := g.FreshName(hint)
	g.declaredGlobals[hint] = name
	declare(name)
	return name
}

// Type returns the dialect name of the type t.
func (g *CodeGenC) Type(t ir.DataType) string {
	name, err := g.dialect.Type(t)
	if err != nil {
		g.SetErr(err)
		return "<error>"
	}
	return name
}

func (g *CodeGenC) defineVar(v *ir.Var) string {
	if _, found := g.varNames[v]; found {
		g.SetErr(errors.Errorf("variable %s defined twice", v.Name))
	}
	name := g.FreshName(v.Name)
	g.varNames[v] = name
	return name
}

func (g *CodeGenC) varName(v *ir.Var) string {
	name, found := g.varNames[v]
	if !found {
		g.SetErr(errors.Errorf("variable %s used before definition", v.Name))
		return v.Name
	}
	return name
}

// Finish returns the complete generated code.
func (g *CodeGenC) Finish() (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.dialect.Preamble() + g.decl.String() + g.stream.String(), nil
}

// AddFunction generates the function f exported as name.
func (g *CodeGenC) AddFunction(name string, f *ir.PrimFunc) {
	if g.err != nil {
		return
	}
	g.names.Reserve(name)
	g.funcNames = append(g.funcNames, name)
	clear(g.varNames)
	clear(g.pointerTypes)
	clear(g.nonNegative)
	head, err := g.dialect.FunctionHead(g, name, f)
	if err != nil {
		g.SetErr(errors.WithMessagef(err, "function %q", name))
		return
	}
	restrict := g.dialect.RestrictPointers(f)
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		pName := g.defineVar(p)
		if buf, found := f.BufferMap[p]; found && p.DType.IsHandle() {
			g.pointerTypes[p] = buf.DType
			qualifier := ""
			if restrict {
				qualifier = " __restrict__"
			}
			params[i] = fmt.Sprintf("%s*%s %s", g.Type(buf.DType), qualifier, pName)
			continue
		}
		params[i] = fmt.Sprintf("%s %s", g.Type(p.DType), pName)
	}
	g.Line("%s(%s) {", head, strings.Join(params, ", "))
	g.indent++
	g.VisitStmt(f.Body)
	if f.CallingConv() == ir.CallingConvCPackedFunc {
		g.Line("return 0;")
	}
	g.indent--
	g.Line("}")
	g.Line("")
	if g.err != nil {
		g.err = errors.WithMessagef(g.err, "function %q", name)
	}
}

// VisitStmt generates the statement s.
func (g *CodeGenC) VisitStmt(s ir.Stmt) {
	if g.err != nil {
		return
	}
	switch n := s.(type) {
	case nil:
	case *ir.LetStmt:
		value := g.Expr(n.Value)
		name := g.defineVar(n.Var)
		g.Line("%s %s = %s;", g.Type(n.Var.DType), name, value)
		g.VisitStmt(n.Body)
	case *ir.AttrStmt:
		if n.Key == ir.AttrThreadExtent {
			iv, ok := n.Node.(*ir.IterVar)
			if !ok {
				g.SetErr(errors.Errorf("thread_extent attribute on %T", n.Node))
				return
			}
			index, err := g.dialect.ThreadIndex(iv.ThreadTag, iv.Var.DType)
			if err != nil {
				g.SetErr(err)
				return
			}
			if _, bound := g.varNames[iv.Var]; !bound {
				g.varNames[iv.Var] = index
				g.nonNegative.Insert(iv.Var)
			}
		}
		g.VisitStmt(n.Body)
	case *ir.AssertStmt:
		g.Line("if (!(%s)) {", g.Expr(n.Cond))
		g.indent++
		g.Line("TVMAPISetLastError(%s);", quoteC(n.Message))
		g.Line("return -1;")
		g.indent--
		g.Line("}")
		g.VisitStmt(n.Body)
	case *ir.For:
		if n.Kind != ir.ForSerial {
			g.SetErr(errors.Errorf("%s loop over %s is not supported, only serial loops can be generated", n.Kind, n.LoopVar.Name))
			return
		}
		minValue, extent := g.Expr(n.Min), g.Expr(n.Extent)
		name := g.defineVar(n.LoopVar)
		if g.isNonNegative(n.Min) {
			g.nonNegative.Insert(n.LoopVar)
		}
		end := extent
		if !isZeroConst(n.Min) {
			end = fmt.Sprintf("(%s + %s)", minValue, extent)
		}
		g.Line("for (%s %s = %s; %s < %s; ++%s) {", g.Type(n.LoopVar.DType), name, minValue, name, end, name)
		g.indent++
		g.VisitStmt(n.Body)
		g.indent--
		g.Line("}")
	case *ir.IfThenElse:
		g.Line("if (%s) {", g.Expr(n.Cond))
		g.indent++
		g.VisitStmt(n.Then)
		g.indent--
		if n.Else != nil {
			g.Line("} else {")
			g.indent++
			g.VisitStmt(n.Else)
			g.indent--
		}
		g.Line("}")
	case *ir.BufferStore:
		value := g.Expr(n.Value)
		g.Line("%s = %s;", g.bufferRef(n.Buffer, n.Index), value)
	case *ir.SeqStmt:
		for _, child := range n.Seq {
			g.VisitStmt(child)
		}
	case *ir.Evaluate:
		if _, isConst := ir.IsConstInt(n.Value); isConst {
			return
		}
		if call, ok := n.Value.(*ir.Call); ok && call.Op == ir.BuiltinStructSet {
			g.structSet(call)
			return
		}
		if code := g.Expr(n.Value); code != "" {
			g.Line("%s;", code)
		}
	default:
		g.SetErr(errors.Errorf("cannot generate code for statement %T", s))
	}
}

func isZeroConst(e ir.Expr) bool {
	v, ok := ir.IsConstInt(e)
	return ok && v == 0
}

// isNonNegative conservatively checks whether e is known to be >= 0.
func (g *CodeGenC) isNonNegative(e ir.Expr) bool {
	switch n := e.(type) {
	case *ir.IntImm:
		return n.Value >= 0
	case *ir.Var:
		return g.nonNegative.Has(n)
	case *ir.Binary:
		switch n.Op {
		case ir.OpAdd, ir.OpMul, ir.OpDiv, ir.OpFloorDiv, ir.OpMin:
			return g.isNonNegative(n.A) && g.isNonNegative(n.B)
		case ir.OpMax:
			return g.isNonNegative(n.A) || g.isNonNegative(n.B)
		}
	}
	return false
}

func quoteC(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s) + `"`
}

// bufferRef returns the lvalue of the element at index of buf.
func (g *CodeGenC) bufferRef(buf *ir.Buffer, index ir.Expr) string {
	data := g.varName(buf.Data)
	idx := g.Expr(index)
	if elemType, typed := g.pointerTypes[buf.Data]; typed && elemType == buf.DType {
		return fmt.Sprintf("%s[%s]", data, idx)
	}
	return fmt.Sprintf("((%s*)%s)[%s]", g.Type(buf.DType), data, idx)
}

// Expr returns the code of the expression e.
func (g *CodeGenC) Expr(e ir.Expr) string {
	if g.err != nil {
		return ""
	}
	switch n := e.(type) {
	case *ir.IntImm:
		if n.DType == ir.Int32() {
			return strconv.FormatInt(n.Value, 10)
		}
		return fmt.Sprintf("((%s)%d)", g.Type(n.DType), n.Value)
	case *ir.FloatImm:
		switch n.DType.Bits {
		case 32:
			return strconv.FormatFloat(n.Value, 'e', 6, 32) + "f"
		case 64:
			return strconv.FormatFloat(n.Value, 'e', 16, 64)
		}
		return fmt.Sprintf("((%s)%s)", g.Type(n.DType), strconv.FormatFloat(n.Value, 'e', 6, 32))
	case *ir.StringImm:
		return quoteC(n.Value)
	case *ir.Var:
		return g.varName(n)
	case *ir.Binary:
		return g.binary(n)
	case *ir.Not:
		return fmt.Sprintf("(!%s)", g.Expr(n.A))
	case *ir.Cast:
		return fmt.Sprintf("((%s)%s)", g.Type(n.DType), g.Expr(n.Value))
	case *ir.Select:
		return fmt.Sprintf("(%s ? %s : %s)", g.Expr(n.Cond), g.Expr(n.True), g.Expr(n.False))
	case *ir.BufferLoad:
		return g.bufferRef(n.Buffer, n.Index)
	case *ir.Call:
		code, handled, err := g.dialect.VisitCall(g, n)
		if err != nil {
			g.SetErr(errors.WithMessagef(err, "generating %s", n.Op))
			return ""
		}
		if handled {
			return code
		}
		return g.call(n)
	case *ir.ProducerLoad:
		g.SetErr(errors.Errorf("tensor %s was not lowered to a buffer", n.Producer.ProducerName()))
		return ""
	}
	g.SetErr(errors.Errorf("cannot generate code for expression %T", e))
	return ""
}

func (g *CodeGenC) binary(n *ir.Binary) string {
	a, b := g.Expr(n.A), g.Expr(n.B)
	switch n.Op {
	case ir.OpMin:
		return fmt.Sprintf("min(%s, %s)", a, b)
	case ir.OpMax:
		return fmt.Sprintf("max(%s, %s)", a, b)
	case ir.OpFloorDiv, ir.OpFloorMod:
		if n.A.DataType().IsFloat() {
			if n.Op == ir.OpFloorDiv {
				return fmt.Sprintf("floor((%s / %s))", a, b)
			}
			return fmt.Sprintf("(%s - (floor((%s / %s)) * %s))", a, a, b, b)
		}
		divisor, constDivisor := ir.IsConstInt(n.B)
		if g.isNonNegative(n.A) && constDivisor && divisor > 0 {
			if n.Op == ir.OpFloorDiv {
				return fmt.Sprintf("(%s / %s)", a, b)
			}
			return fmt.Sprintf("(%s %% %s)", a, b)
		}
		if constDivisor && divisor > 0 {
			if n.Op == ir.OpFloorDiv {
				return fmt.Sprintf("((%s >= 0) ? (%s / %s) : (((%s + 1) / %s) - 1))", a, a, b, a, b)
			}
			return fmt.Sprintf("(((%s %% %s) + %s) %% %s)", a, b, b, b)
		}
		// Truncated division, adjusted when the signs of the operands differ.
		adjust := fmt.Sprintf("(((%s %% %s) != 0) && ((%s < 0) != (%s < 0)))", a, b, a, b)
		if n.Op == ir.OpFloorDiv {
			return fmt.Sprintf("(%s ? ((%s / %s) - 1) : (%s / %s))", adjust, a, b, a, b)
		}
		return fmt.Sprintf("(%s ? ((%s %% %s) + %s) : (%s %% %s))", adjust, a, b, b, a, b)
	}
	sym := n.Op.InfixSymbol()
	if sym == "" {
		g.SetErr(errors.Errorf("operator %s has no C equivalent", n.Op))
		return ""
	}
	if sym == "%" {
		sym = "%%"
	}
	return fmt.Sprintf("(%s "+sym+" %s)", a, b)
}

var arrFieldNames = map[ir.StructField]string{
	ir.FieldArrData:       "data",
	ir.FieldArrShape:      "shape",
	ir.FieldArrStrides:    "strides",
	ir.FieldArrNDim:       "ndim",
	ir.FieldArrTypeCode:   "dtype.code",
	ir.FieldArrTypeBits:   "dtype.bits",
	ir.FieldArrTypeLanes:  "dtype.lanes",
	ir.FieldArrByteOffset: "byte_offset",
	ir.FieldArrDeviceID:   "device.device_id",
	ir.FieldArrDeviceType: "device.device_type",
}

// tvmValueField returns the TVMValue union member holding values of type t.
func tvmValueField(t ir.DataType) string {
	switch {
	case t.IsHandle():
		return "v_handle"
	case t.IsFloat():
		return "v_float64"
	}
	return "v_int64"
}

// structRef returns the reference to a field of the structure array handle.
func (g *CodeGenC) structRef(dtype ir.DataType, handle, index, fieldArg ir.Expr) string {
	field, ok := ir.IsConstInt(fieldArg)
	if !ok {
		g.SetErr(errors.Errorf("structure field must be a constant, got %s", fieldArg))
		return ""
	}
	h, idx := g.Expr(handle), g.Expr(index)
	switch f := ir.StructField(field); f {
	case ir.FieldTVMValueContent:
		return fmt.Sprintf("(((TVMValue*)%s)[%s].%s)", h, idx, tvmValueField(dtype))
	case ir.FieldArrAddr:
		return fmt.Sprintf("(((DLTensor*)%s) + %s)", h, idx)
	default:
		name, found := arrFieldNames[f]
		if !found {
			g.SetErr(errors.Errorf("unknown structure field #%d", field))
			return ""
		}
		return fmt.Sprintf("(((DLTensor*)%s)[%s].%s)", h, idx, name)
	}
}

func (g *CodeGenC) structSet(call *ir.Call) {
	if len(call.Args) != 4 {
		g.SetErr(errors.Errorf("%s takes 4 arguments, got %d", call.Op, len(call.Args)))
		return
	}
	value := g.Expr(call.Args[3])
	ref := g.structRef(call.Args[3].DataType(), call.Args[0], call.Args[1], call.Args[2])
	g.Line("%s = %s;", ref, value)
}

// call generates the builtins common to all dialects.
func (g *CodeGenC) call(call *ir.Call) string {
	switch call.Op {
	case ir.BuiltinLikely:
		return g.Expr(call.Args[0])
	case ir.BuiltinStructGet:
		if len(call.Args) != 3 {
			g.SetErr(errors.Errorf("%s takes 3 arguments, got %d", call.Op, len(call.Args)))
			return ""
		}
		return g.structRef(call.DType, call.Args[0], call.Args[1], call.Args[2])
	case ir.BuiltinStructSet:
		g.structSet(call)
		return ""
	case ir.BuiltinReinterpret:
		if v, ok := ir.IsConstInt(call.Args[0]); ok && v == 0 && call.DType.IsHandle() {
			return "((void*)NULL)"
		}
		return fmt.Sprintf("(*(%s*)(&(%s)))", g.Type(call.DType), g.Expr(call.Args[0]))
	case ir.BuiltinIsNullPointer:
		return fmt.Sprintf("(%s == NULL)", g.Expr(call.Args[0]))
	case ir.BuiltinThrowLastError:
		g.Line("return -1;")
		return ""
	}
	g.SetErr(errors.Errorf("builtin %q is not supported by this code generator", call.Op))
	return ""
}
