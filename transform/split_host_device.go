package transform

import (
	"fmt"
	"slices"
	"sort"

	"github.com/gomlx/tegen/ir"
	"github.com/gomlx/tegen/target"
	"github.com/pkg/errors"
)

// KernelName returns the name of the k-th kernel extracted from function name.
func KernelName(name string, k int) string {
	return fmt.Sprintf("%s_kernel%d", name, k)
}

// SplitHostDevice extracts every outermost thread_extent region of the device functions into
// a device kernel, and replaces it with a tvm_call_packed of the kernel in the (now host)
// function.
//
// Kernel parameters are the handles the region uses, sorted by name, followed by the scalars
// it uses, also sorted by name. The host call passes the same values followed by the extents of
// the thread axes, in the order listed by the kernel "tir.kernel_launch_params" attribute.
func SplitHostDevice(mod *ir.IRModule) (*ir.IRModule, error) {
	newMod := copyModule(mod)
	for _, name := range mod.Names() {
		f := mod.Functions[name]
		tgt, err := requireTarget(name, f)
		if err != nil {
			return nil, err
		}
		if !tgt.IsDevice() || f.CallingConv() == ir.CallingConvDeviceKernelLaunch {
			continue
		}
		if tgt.Host == nil {
			return nil, errors.Errorf("function %q: device target %q has no host target", name, tgt)
		}
		deviceTarget := tgt.WithoutHost()
		var kernels []*ir.PrimFunc
		var kernelNames []string
		hostBody := ir.TransformStmt(f.Body, func(s ir.Stmt) ir.Stmt {
			attr, ok := s.(*ir.AttrStmt)
			if !ok || attr.Key != ir.AttrThreadExtent {
				return nil
			}
			kernelName := KernelName(name, len(kernels))
			kernel, call := extractKernel(kernelName, attr, deviceTarget)
			kernels = append(kernels, kernel)
			kernelNames = append(kernelNames, kernelName)
			return call
		})
		for i, kernel := range kernels {
			if err := newMod.Add(kernelNames[i], kernel); err != nil {
				return nil, errors.WithMessagef(err, "splitting %q", name)
			}
		}
		hostF := f.ShallowCopy()
		hostF.Body = hostBody
		hostF.WithAttr(ir.AttrTarget, tgt.Host)
		newMod.Update(name, hostF)
	}
	return newMod, nil
}

// extractKernel creates the kernel for the thread region, and the host statement launching it.
func extractKernel(name string, region *ir.AttrStmt, deviceTarget *target.Target) (*ir.PrimFunc, ir.Stmt) {
	defined := make(map[*ir.Var]bool)
	used := make(map[*ir.Var]bool)
	buffers := make(map[*ir.Var]*ir.Buffer)
	var launchTags []string
	var launchExtents []ir.Expr
	ir.Visit(region, func(node any) bool {
		switch n := node.(type) {
		case *ir.AttrStmt:
			if iv, ok := n.Node.(*ir.IterVar); ok && n.Key == ir.AttrThreadExtent {
				defined[iv.Var] = true
				if !slices.Contains(launchTags, iv.ThreadTag) {
					launchTags = append(launchTags, iv.ThreadTag)
					launchExtents = append(launchExtents, n.Value)
				}
			}
		case *ir.For:
			defined[n.LoopVar] = true
		case *ir.LetStmt:
			defined[n.Var] = true
		case *ir.BufferLoad:
			buffers[n.Buffer.Data] = n.Buffer
			used[n.Buffer.Data] = true
		case *ir.BufferStore:
			buffers[n.Buffer.Data] = n.Buffer
			used[n.Buffer.Data] = true
		case *ir.Var:
			used[n] = true
		}
		return true
	})

	var handles, scalars []*ir.Var
	for v := range used {
		if defined[v] {
			continue
		}
		if v.DType.IsHandle() {
			handles = append(handles, v)
		} else {
			scalars = append(scalars, v)
		}
	}
	byName := func(vars []*ir.Var) {
		sort.SliceStable(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	}
	byName(handles)
	byName(scalars)
	params := append(handles, scalars...)

	kernelBuffers := make(map[*ir.Var]*ir.Buffer, len(handles))
	for _, h := range handles {
		if buf, found := buffers[h]; found {
			kernelBuffers[h] = buf
		}
	}
	kernel := ir.NewPrimFunc(params, kernelBuffers, region)
	kernel.WithAttr(ir.AttrGlobalSymbol, name)
	kernel.WithAttr(ir.AttrCallingConv, ir.CallingConvDeviceKernelLaunch)
	kernel.WithAttr(ir.AttrKernelLaunchParams, launchTags)
	kernel.WithAttr(ir.AttrTarget, deviceTarget)
	kernel.WithAttr(ir.AttrNoAlias, true)

	args := make([]ir.Expr, 0, 1+len(params)+len(launchExtents))
	args = append(args, &ir.StringImm{Value: name})
	for _, p := range params {
		args = append(args, p)
	}
	args = append(args, launchExtents...)
	call := &ir.Evaluate{Value: &ir.Call{DType: ir.Int32(), Op: ir.BuiltinCallPacked, Args: args}}
	return kernel, call
}
