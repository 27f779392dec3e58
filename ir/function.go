package ir

import (
	"io"
	"slices"
	"sort"

	"github.com/pkg/errors"
)

// Attribute keys of PrimFunc.Attrs.
const (
	AttrGlobalSymbol       = "global_symbol"
	AttrNoAlias            = "tir.noalias"
	AttrTarget             = "target"
	AttrCallingConv        = "calling_conv"
	AttrKernelLaunchParams = "tir.kernel_launch_params"
	AttrRunnerFunction     = "runner_function"
)

// CallingConv of a PrimFunc.
type CallingConv int

const (
	// CallingConvDefault functions take their parameters directly.
	CallingConvDefault CallingConv = iota

	// CallingConvCPackedFunc functions use the C packed signature.
	CallingConvCPackedFunc

	// CallingConvDeviceKernelLaunch functions are device kernels, launched through the
	// device module with the launch parameters appended to the arguments.
	CallingConvDeviceKernelLaunch
)

// PrimFunc is a low level function: a body operating on scalar parameters and on
// buffers whose data pointers are handle parameters.
type PrimFunc struct {
	Params    []*Var
	BufferMap map[*Var]*Buffer
	Body      Stmt
	RetType   DataType
	Attrs     map[string]any
}

// NewPrimFunc creates a function with a void return type.
func NewPrimFunc(params []*Var, bufferMap map[*Var]*Buffer, body Stmt) *PrimFunc {
	if bufferMap == nil {
		bufferMap = make(map[*Var]*Buffer)
	}
	return &PrimFunc{
		Params:    params,
		BufferMap: bufferMap,
		Body:      body,
		RetType:   Void(),
		Attrs:     make(map[string]any),
	}
}

// WithAttr sets an attribute and returns the function itself.
func (f *PrimFunc) WithAttr(key string, value any) *PrimFunc {
	f.Attrs[key] = value
	return f
}

// Attr returns the attribute value, or nil if it is not set.
func (f *PrimFunc) Attr(key string) any {
	return f.Attrs[key]
}

// BoolAttr returns the boolean attribute value, or defaultValue if not set.
func (f *PrimFunc) BoolAttr(key string, defaultValue bool) bool {
	if v, ok := f.Attrs[key].(bool); ok {
		return v
	}
	return defaultValue
}

// GlobalSymbol returns the exported name of the function or "" if it is not exported.
func (f *PrimFunc) GlobalSymbol() string {
	name, _ := f.Attrs[AttrGlobalSymbol].(string)
	return name
}

// CallingConv returns the calling convention attribute.
func (f *PrimFunc) CallingConv() CallingConv {
	cc, _ := f.Attrs[AttrCallingConv].(CallingConv)
	return cc
}

// LaunchParams returns the thread tags appended to the arguments of a device kernel.
func (f *PrimFunc) LaunchParams() []string {
	tags, _ := f.Attrs[AttrKernelLaunchParams].([]string)
	return tags
}

// ShallowCopy returns a copy of the function with its own Attrs and BufferMap maps.
func (f *PrimFunc) ShallowCopy() *PrimFunc {
	newF := *f
	newF.Params = slices.Clone(f.Params)
	newF.BufferMap = make(map[*Var]*Buffer, len(f.BufferMap))
	for k, v := range f.BufferMap {
		newF.BufferMap[k] = v
	}
	newF.Attrs = make(map[string]any, len(f.Attrs))
	for k, v := range f.Attrs {
		newF.Attrs[k] = v
	}
	return &newF
}

// Write the function in script form to the writer.
func (f *PrimFunc) Write(w io.Writer, name string) error {
	_, err := io.WriteString(w, scriptPrimFunc(name, f))
	return err
}

func (f *PrimFunc) String() string { return scriptPrimFunc(f.GlobalSymbol(), f) }

// IRModule holds a collection of named functions.
type IRModule struct {
	Functions map[string]*PrimFunc
	Attrs     map[string]any
}

// NewIRModule creates an empty module.
func NewIRModule() *IRModule {
	return &IRModule{
		Functions: make(map[string]*PrimFunc),
		Attrs:     make(map[string]any),
	}
}

// Add a function to the module. The name must be unique.
func (m *IRModule) Add(name string, f *PrimFunc) error {
	if _, found := m.Functions[name]; found {
		return errors.Errorf("function %q already defined in module", name)
	}
	m.Functions[name] = f
	return nil
}

// Update adds or replaces the function.
func (m *IRModule) Update(name string, f *PrimFunc) {
	m.Functions[name] = f
}

// Names returns the function names in sorted order.
func (m *IRModule) Names() []string {
	names := make([]string, 0, len(m.Functions))
	for name := range m.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Write the module in script form, functions in name order.
func (m *IRModule) Write(w io.Writer) error {
	for i, name := range m.Names() {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := m.Functions[name].Write(w, name); err != nil {
			return errors.WithMessagef(err, "writing function %q", name)
		}
	}
	return nil
}
