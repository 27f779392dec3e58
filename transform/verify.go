package transform

import (
	"fmt"
	"strings"

	"github.com/gomlx/tegen/ir"
	"github.com/pkg/errors"
)

// visitThreadScoped visits every node of s, telling f whether the node is inside a
// thread_extent region.
func visitThreadScoped(s ir.Stmt, inThread bool, f func(node any, inThread bool)) {
	ir.Visit(s, func(node any) bool {
		f(node, inThread)
		if attr, ok := node.(*ir.AttrStmt); ok && attr.Key == ir.AttrThreadExtent && !inThread {
			visitThreadScoped(attr.Body, true, f)
			return false
		}
		return true
	})
}

// VerifyMemory checks that functions for device targets only access buffers from within a
// thread-bound region: anything else would be the host reading device memory.
func VerifyMemory(mod *ir.IRModule) (*ir.IRModule, error) {
	for _, name := range mod.Names() {
		f := mod.Functions[name]
		tgt, err := requireTarget(name, f)
		if err != nil {
			return nil, err
		}
		if !tgt.IsDevice() || f.CallingConv() == ir.CallingConvDeviceKernelLaunch {
			continue
		}
		var offending []string
		seen := make(map[*ir.Buffer]bool)
		visitThreadScoped(f.Body, false, func(node any, inThread bool) {
			if inThread {
				return
			}
			var buf *ir.Buffer
			switch n := node.(type) {
			case *ir.BufferLoad:
				buf = n.Buffer
			case *ir.BufferStore:
				buf = n.Buffer
			default:
				return
			}
			if !seen[buf] {
				seen[buf] = true
				offending = append(offending, buf.Name)
			}
		})
		if len(offending) > 0 {
			var sb strings.Builder
			fmt.Fprintf(&sb, "memory verification of %q for target %q failed with the following errors:\n", name, tgt)
			for _, bufName := range offending {
				fmt.Fprintf(&sb, "    Variable `%s` is directly accessed by host memory "+
					"(it is not contained in a thread environment or in the function arguments).\n", bufName)
			}
			sb.WriteString("  Did you forget to bind?")
			return nil, errors.New(sb.String())
		}
	}
	return mod, nil
}

// maxThreadsPerAxis for the CUDA threadIdx axes.
var maxThreadsPerAxis = map[string]int64{
	"threadIdx.x": 1024,
	"threadIdx.y": 1024,
	"threadIdx.z": 64,
}

// VerifyGPUCode checks the thread extents of device functions against the target limits: the
// product of the constant threadIdx extents must not exceed the "max_num_threads" attribute.
// Each thread axis must also have a single extent within a function.
func VerifyGPUCode(mod *ir.IRModule) (*ir.IRModule, error) {
	for _, name := range mod.Names() {
		f := mod.Functions[name]
		tgt, err := requireTarget(name, f)
		if err != nil {
			return nil, err
		}
		if !tgt.IsDevice() {
			continue
		}
		extents := make(map[string]ir.Expr)
		var verifyErr error
		ir.Visit(f.Body, func(node any) bool {
			attr, ok := node.(*ir.AttrStmt)
			if !ok || attr.Key != ir.AttrThreadExtent || verifyErr != nil {
				return verifyErr == nil
			}
			iv, ok := attr.Node.(*ir.IterVar)
			if !ok {
				verifyErr = errors.Errorf("function %q: thread_extent attribute on %T, expected a thread axis", name, attr.Node)
				return false
			}
			if v, isConst := ir.IsConstInt(attr.Value); isConst && v <= 0 {
				verifyErr = errors.Errorf("function %q: thread axis %s has non-positive extent %d", name, iv.ThreadTag, v)
				return false
			}
			if previous, found := extents[iv.ThreadTag]; found {
				pv, pConst := ir.IsConstInt(previous)
				v, vConst := ir.IsConstInt(attr.Value)
				if pConst && vConst && pv != v {
					verifyErr = errors.Errorf("function %q: thread axis %s used with extents %d and %d", name, iv.ThreadTag, pv, v)
					return false
				}
				return true
			}
			extents[iv.ThreadTag] = attr.Value
			return true
		})
		if verifyErr != nil {
			return nil, verifyErr
		}
		threads := int64(1)
		for tag, extent := range extents {
			limit, isThread := maxThreadsPerAxis[tag]
			if !isThread {
				continue
			}
			v, isConst := ir.IsConstInt(extent)
			if !isConst {
				continue
			}
			if v > limit {
				return nil, errors.Errorf("function %q: extent of %s is %d, larger than the maximum of %d", name, tag, v, limit)
			}
			threads *= v
		}
		if maxThreads := tgt.IntAttr("max_num_threads"); maxThreads > 0 && threads > maxThreads {
			return nil, errors.Errorf("function %q: %d threads per block exceed max_num_threads=%d of target %q",
				name, threads, maxThreads, tgt)
		}
	}
	return mod, nil
}
