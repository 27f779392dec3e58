// Package tegen compiles tensor expressions to host and device source code.
//
// A computation is declared with the te package (placeholders and computed tensors), scheduled
// (split, fuse, reorder, bind loops to GPU threads), lowered to the ir package representation,
// transformed (host/device split, packed calling convention) and finally generated as C code for
// the host and CUDA code for the kernels.
//
// Example:
//
//	n := te.Var("n")
//	a := must.M1(te.Placeholder("A", dtypes.Float32, n))
//	b := must.M1(te.Placeholder("B", dtypes.Float32, n))
//	c := must.M1(te.Compute("C", a.Shape, func(i ...*ir.Var) ir.Expr { return ir.Add(a.At(i[0]), b.At(i[0])) }))
//	s := te.CreateSchedule(c.Op)
//	...
//	mod, err := tegen.Build(s, []*te.Tensor{a, b, c}, tgt, "myadd")
//
// The returned runtime.Module holds the host source and imports the device modules. Its
// functions can be called: they run on the CPU, kernels included, see package runtime.
package tegen

import (
	"sort"

	"github.com/gomlx/tegen/codegen"
	"github.com/gomlx/tegen/ir"
	"github.com/gomlx/tegen/runtime"
	"github.com/gomlx/tegen/target"
	"github.com/gomlx/tegen/te"
	"github.com/gomlx/tegen/transform"
	"github.com/pkg/errors"
)

// Lower the schedule into a module with a single function called name, taking args as
// parameters.
func Lower(sch *te.Schedule, args []*te.Tensor, name string) (*ir.IRModule, error) {
	fn, err := sch.Lower(args, name)
	if err != nil {
		return nil, errors.WithMessagef(err, "lowering %q", name)
	}
	mod := ir.NewIRModule()
	if err := mod.Add(name, fn); err != nil {
		return nil, err
	}
	return mod, nil
}

// Build lowers the schedule into a function called name and compiles it for tgt, see BuildModule.
func Build(sch *te.Schedule, args []*te.Tensor, tgt *target.Target, name string) (runtime.Module, error) {
	mod, err := Lower(sch, args, name)
	if err != nil {
		return nil, err
	}
	return BuildModule(mod, tgt)
}

// BuildModule compiles the functions of mod for tgt.
//
// The functions are transformed with transform.Default, then the host functions are generated
// with the code generator registered for the host of tgt, and the device kernels with the one
// for their device. The device modules are imported by the returned host module.
func BuildModule(mod *ir.IRModule, tgt *target.Target) (runtime.Module, error) {
	mod = transform.AttachTarget(mod, tgt)
	mod, err := transform.Default().Run(mod)
	if err != nil {
		return nil, err
	}
	mods, targets, err := transform.SplitByTarget(mod)
	if err != nil {
		return nil, err
	}

	hostTarget := tgt.HostOrSelf()
	hostKind := hostTarget.Kind.Name
	hostMod, found := mods[hostKind]
	if !found {
		hostMod = ir.NewIRModule()
	}
	host, err := codegen.Build(hostMod, hostTarget)
	if err != nil {
		return nil, err
	}

	kinds := make([]string, 0, len(mods))
	for kind := range mods {
		if kind != hostKind {
			kinds = append(kinds, kind)
		}
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		if !targets[kind].IsDevice() {
			return nil, errors.Errorf("functions for the host target %q mixed with the host %q", kind, hostKind)
		}
		device, err := codegen.Build(mods[kind], targets[kind])
		if err != nil {
			return nil, err
		}
		host.Import(device)
	}
	return host, nil
}
