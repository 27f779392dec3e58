package codegen

import (
	"sort"
	"sync"

	"github.com/gomlx/tegen/ir"
	"github.com/gomlx/tegen/runtime"
	"github.com/gomlx/tegen/target"
	"github.com/pkg/errors"
)

// BuildFunc generates the code of the functions of mod, all compiled for tgt.
type BuildFunc func(mod *ir.IRModule, tgt *target.Target) (runtime.Module, error)

// BuildPrefix of the names BuildFunc are registered under, followed by the target kind name.
const BuildPrefix = "target.build."

var (
	registryMu sync.RWMutex
	registry   = make(map[string]BuildFunc)
)

func init() {
	for kind, fn := range map[string]BuildFunc{
		"c":    BuildC,
		"rawc": BuildRawC,
		"cuda": BuildCUDA,
	} {
		if err := Register(BuildPrefix+kind, fn); err != nil {
			panic(err)
		}
	}
}

// Register fn under name. Names can only be registered once.
func Register(name string, fn BuildFunc) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, found := registry[name]; found {
		return errors.Errorf("code generator %q already registered", name)
	}
	registry[name] = fn
	return nil
}

// Lookup returns the BuildFunc registered under name.
func Lookup(name string) (BuildFunc, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, found := registry[name]
	return fn, found
}

// Registered returns the sorted names of the registered code generators.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build generates the code of mod with the code generator registered for the kind of tgt.
func Build(mod *ir.IRModule, tgt *target.Target) (runtime.Module, error) {
	name := BuildPrefix + tgt.Kind.Name
	fn, found := Lookup(name)
	if !found {
		return nil, errors.Errorf("no code generator registered as %q for target %q", name, tgt)
	}
	return fn(mod, tgt)
}
