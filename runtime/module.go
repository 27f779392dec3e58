// Package runtime holds the compiled artifacts of a build: modules carrying the generated source
// of host and device functions, and the NDArray tensors passed to them.
//
// Functions of the host module are executed by interpreting their lowered IR, and device kernels
// are launched through the guda CPU implementation of the CUDA execution model. This allows
// checking the results of a build on machines without a compiler toolchain or a GPU.
package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// PackedFunc is a function of a Module, called with type erased arguments.
//
// Arguments are *NDArray for tensors, Go integers and floats for scalars, and nil for null
// pointers.
type PackedFunc func(args ...any) error

// Module is the result of compiling an IRModule for one target kind.
type Module interface {
	fmt.Stringer

	// TypeKey identifies the kind of module: "c" for C host sources, "cuda" for CUDA kernels.
	TypeKey() string

	// Name of the module, usually its main function.
	Name() string

	// Source returns the generated code in the given format, or the default format if empty.
	Source(format string) (string, error)

	// FunctionNames lists the functions the module exports.
	FunctionNames() []string

	// Function returns the exported function with the given name.
	Function(name string) (PackedFunc, error)

	// Import adds a module whose functions this module can call.
	Import(m Module)

	// ImportedModules returns the imported modules, in import order.
	ImportedModules() []Module
}

// moduleBase implements the parts of Module common to all module types.
type moduleBase struct {
	typeKey   string
	name      string
	source    string
	formats   []string
	funcNames []string
	imports   []Module
}

func (m *moduleBase) TypeKey() string { return m.typeKey }

func (m *moduleBase) Name() string { return m.name }

func (m *moduleBase) String() string { return fmt.Sprintf("Module(%s, %s)", m.typeKey, m.name) }

func (m *moduleBase) FunctionNames() []string { return m.funcNames }

func (m *moduleBase) Import(other Module) { m.imports = append(m.imports, other) }

func (m *moduleBase) ImportedModules() []Module { return m.imports }

func (m *moduleBase) Source(format string) (string, error) {
	if format == "" {
		return m.source, nil
	}
	for _, f := range m.formats {
		if f == format {
			return m.source, nil
		}
	}
	return "", errors.Errorf("%s: source format %q not supported, valid formats are %q", m, format, m.formats)
}

// resolveImported looks for the function name in the imported modules, depth first.
func (m *moduleBase) resolveImported(name string) (PackedFunc, error) {
	for _, imported := range m.imports {
		if fn, err := imported.Function(name); err == nil {
			return fn, nil
		}
	}
	return nil, errors.Errorf("%s: function %q not found in the module or its imports", m, name)
}

// SaveToFile writes the source of m to fileName. The format is taken from the file extension.
func SaveToFile(m Module, fileName string) error {
	format := strings.TrimPrefix(filepath.Ext(fileName), ".")
	source, err := m.Source(format)
	if err != nil {
		return errors.WithMessagef(err, "saving %s to %q", m, fileName)
	}
	if err := os.WriteFile(fileName, []byte(source), 0o644); err != nil {
		return errors.Wrapf(err, "saving %s to %q", m, fileName)
	}
	return nil
}

// normalizeScalar converts Go numbers to the interpreter representation: int64 or float64.
// Other values are returned as is.
func normalizeScalar(arg any) any {
	switch v := arg.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case bool:
		return boolValue(v)
	case float32:
		return float64(v)
	}
	return arg
}
