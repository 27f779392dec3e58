// Package transform implements the passes that take a lowered IRModule from a single function
// mixing host and device code to host functions with the packed calling convention plus
// device kernels, ready for code generation.
//
// Every pass takes a module and returns a new one: functions that change are copied, the
// input module is left untouched.
package transform

import (
	"github.com/gomlx/tegen/ir"
	"github.com/gomlx/tegen/target"
	"github.com/pkg/errors"
)

// Pass transforms an IRModule.
type Pass struct {
	Name string
	Run  func(mod *ir.IRModule) (*ir.IRModule, error)
}

// Sequential returns a pass running the given passes in order.
func Sequential(name string, passes ...Pass) Pass {
	return Pass{
		Name: name,
		Run: func(mod *ir.IRModule) (*ir.IRModule, error) {
			var err error
			for _, pass := range passes {
				mod, err = pass.Run(mod)
				if err != nil {
					return nil, errors.WithMessagef(err, "pass %s", pass.Name)
				}
			}
			return mod, nil
		},
	}
}

// Default is the pass pipeline applied by the build: it verifies the lowered function,
// separates the device kernels and converts the host functions to the packed API.
func Default() Pass {
	return Sequential("default",
		Pass{Name: "VerifyMemory", Run: VerifyMemory},
		Pass{Name: "VerifyGPUCode", Run: VerifyGPUCode},
		Pass{Name: "SplitHostDevice", Run: SplitHostDevice},
		Pass{Name: "MakePackedAPI", Run: MakePackedAPI},
		Pass{Name: "LowerTVMBuiltin", Run: LowerTVMBuiltin},
		Pass{Name: "Simplify", Run: Simplify},
	)
}

// FuncTarget returns the target attribute of the function, or nil.
func FuncTarget(f *ir.PrimFunc) *target.Target {
	tgt, _ := f.Attr(ir.AttrTarget).(*target.Target)
	return tgt
}

// AttachTarget returns a module whose functions without a target get tgt.
func AttachTarget(mod *ir.IRModule, tgt *target.Target) *ir.IRModule {
	newMod := copyModule(mod)
	for name, f := range mod.Functions {
		if FuncTarget(f) == nil {
			newMod.Update(name, f.ShallowCopy().WithAttr(ir.AttrTarget, tgt))
		}
	}
	return newMod
}

func copyModule(mod *ir.IRModule) *ir.IRModule {
	newMod := ir.NewIRModule()
	for k, v := range mod.Attrs {
		newMod.Attrs[k] = v
	}
	for name, f := range mod.Functions {
		newMod.Update(name, f)
	}
	return newMod
}

func requireTarget(name string, f *ir.PrimFunc) (*target.Target, error) {
	tgt := FuncTarget(f)
	if tgt == nil {
		return nil, errors.Errorf("function %q has no %q attribute, attach one with transform.AttachTarget", name, ir.AttrTarget)
	}
	return tgt, nil
}

// Simplify applies ir.SimplifyStmt to the body of every function.
func Simplify(mod *ir.IRModule) (*ir.IRModule, error) {
	newMod := copyModule(mod)
	for name, f := range mod.Functions {
		newF := f.ShallowCopy()
		newF.Body = ir.SimplifyStmt(f.Body)
		newMod.Update(name, newF)
	}
	return newMod, nil
}

// SplitByTarget partitions the module by the target kind of its functions.
func SplitByTarget(mod *ir.IRModule) (map[string]*ir.IRModule, map[string]*target.Target, error) {
	mods := make(map[string]*ir.IRModule)
	targets := make(map[string]*target.Target)
	for _, name := range mod.Names() {
		f := mod.Functions[name]
		tgt, err := requireTarget(name, f)
		if err != nil {
			return nil, nil, err
		}
		kind := tgt.Kind.Name
		if _, found := mods[kind]; !found {
			mods[kind] = ir.NewIRModule()
			for k, v := range mod.Attrs {
				mods[kind].Attrs[k] = v
			}
			targets[kind] = tgt
		}
		mods[kind].Update(name, f)
	}
	return mods, targets, nil
}
