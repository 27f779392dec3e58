package runtime

import (
	"github.com/gomlx/tegen/ir"
	"github.com/pkg/errors"
)

// CSourceModule holds the C source of host functions using the packed calling convention.
//
// Its functions execute the lowered IR the source was generated from. Packed calls made by them
// are resolved first among the module functions, then in the imported modules.
type CSourceModule struct {
	moduleBase
	mod *ir.IRModule
}

var _ Module = (*CSourceModule)(nil)

// NewCSourceModule creates the module for the generated code of the functions in mod.
// funcNames lists the exported functions, the first one names the module.
func NewCSourceModule(code string, funcNames []string, mod *ir.IRModule) *CSourceModule {
	name := ""
	if len(funcNames) > 0 {
		name = funcNames[0]
	}
	return &CSourceModule{
		moduleBase: moduleBase{
			typeKey:   "c",
			name:      name,
			source:    code,
			formats:   []string{"c"},
			funcNames: funcNames,
		},
		mod: mod,
	}
}

func (m *CSourceModule) lookup(name string) *ir.PrimFunc {
	if f, found := m.mod.Functions[name]; found {
		return f
	}
	for _, f := range m.mod.Functions {
		if f.GlobalSymbol() == name {
			return f
		}
	}
	return nil
}

// Function implements Module.
func (m *CSourceModule) Function(name string) (PackedFunc, error) {
	f := m.lookup(name)
	if f == nil {
		return nil, errors.Errorf("%s: function %q not found", m, name)
	}
	if f.CallingConv() != ir.CallingConvCPackedFunc {
		return nil, errors.Errorf("%s: function %q does not use the packed calling convention", m, name)
	}
	if len(f.Params) != 6 {
		return nil, errors.Errorf("%s: packed function %q has %d parameters, expected 6", m, name, len(f.Params))
	}
	return func(args ...any) error {
		stack := make(valueStack, len(args))
		codes := make([]int32, len(args))
		for i, arg := range args {
			value, code := packArg(arg)
			stack[i] = value
			codes[i] = int32(code)
		}
		it := newInterpreter(m.resolve)
		values := []any{stack, codes, int64(len(args)), nil, make([]int32, 1), nil}
		for i, p := range f.Params {
			it.env[p] = values[i]
		}
		return errors.WithMessagef(it.exec(f.Body), "%s: calling %q", m, name)
	}, nil
}

func (m *CSourceModule) resolve(name string) (PackedFunc, error) {
	if f := m.lookup(name); f != nil {
		return m.Function(name)
	}
	return m.resolveImported(name)
}

// packArg converts a Go argument to the TVMValue content and its type code.
func packArg(arg any) (any, int) {
	arg = normalizeScalar(arg)
	switch arg.(type) {
	case nil:
		return nil, ir.TypeCodeNull
	case *NDArray:
		return arg, ir.TypeCodeDLTensorHandle
	case int64:
		return arg, ir.TypeCodeInt
	case float64:
		return arg, ir.TypeCodeFloat
	}
	return arg, ir.TypeCodeOpaqueHandle
}
