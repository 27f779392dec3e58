package te

import (
	"github.com/gomlx/tegen/ir"
	"github.com/pkg/errors"
)

// Lower converts the schedule into a PrimFunc called name, whose parameters are the data
// handles of args, in order.
//
// Every placeholder read by the schedule and every tensor it computes must be listed in args:
// intermediate tensors are not allocated by the generated function.
func (s *Schedule) Lower(args []*Tensor, name string) (*ir.PrimFunc, error) {
	if name == "" {
		return nil, errors.New("Schedule.Lower: function name cannot be empty")
	}
	if len(s.Stages) == 0 {
		return nil, errors.Errorf("Schedule.Lower(%q): schedule has no compute stages", name)
	}
	buffers := make(map[*Tensor]*ir.Buffer, len(args))
	params := make([]*ir.Var, 0, len(args))
	bufferMap := make(map[*ir.Var]*ir.Buffer, len(args))
	names := make(map[string]bool, len(args))
	for _, t := range args {
		if t == nil {
			return nil, errors.Errorf("Schedule.Lower(%q): nil tensor in arguments", name)
		}
		if _, found := buffers[t]; found {
			return nil, errors.Errorf("Schedule.Lower(%q): tensor %q listed twice in arguments", name, t.Name)
		}
		if names[t.Name] {
			return nil, errors.Errorf("Schedule.Lower(%q): two arguments are named %q", name, t.Name)
		}
		names[t.Name] = true
		buf := ir.NewBuffer(t.Name, t.DType, t.Shape)
		buffers[t] = buf
		params = append(params, buf.Data)
		bufferMap[buf.Data] = buf
	}

	var nests []ir.Stmt
	for _, stage := range s.Stages {
		output := stage.Op.Output()
		if _, found := buffers[output]; !found {
			return nil, errors.Errorf("Schedule.Lower(%q): tensor %q computed by the schedule must be listed in the arguments",
				name, output.Name)
		}
		for _, input := range stage.Op.InputTensors() {
			if _, found := buffers[input]; !found {
				return nil, errors.Errorf("Schedule.Lower(%q): tensor %q read by %q must be listed in the arguments",
					name, input.Name, output.Name)
			}
		}
		nest, err := lowerStage(stage, buffers)
		if err != nil {
			return nil, errors.WithMessagef(err, "Schedule.Lower(%q)", name)
		}
		nests = append(nests, nest)
	}

	body := ir.SimplifyStmt(ir.Seq(nests...))
	fn := ir.NewPrimFunc(params, bufferMap, body)
	fn.WithAttr(ir.AttrGlobalSymbol, name)
	fn.WithAttr(ir.AttrNoAlias, true)
	return fn, nil
}

// inferBounds returns the extent of every iteration variable of the stage.
func inferBounds(stage *Stage) (map[*ir.IterVar]ir.Expr, error) {
	extents := make(map[*ir.IterVar]ir.Expr, len(stage.AllIterVars))
	for _, iv := range stage.Op.Axis {
		extents[iv] = iv.Dom.Extent
	}
	for _, rel := range stage.Relations {
		switch r := rel.(type) {
		case *SplitRelation:
			parent, found := extents[r.Parent]
			if !found {
				return nil, errors.Errorf("split of %s before its extent is known", r.Parent.Var.Name)
			}
			if r.Factor != nil {
				extents[r.Inner] = r.Factor
				extents[r.Outer] = ir.Simplify(ir.CeilDiv(parent, r.Factor))
			} else {
				extents[r.Outer] = r.NParts
				extents[r.Inner] = ir.Simplify(ir.CeilDiv(parent, r.NParts))
			}
		case *FuseRelation:
			extents[r.Fused] = ir.Simplify(ir.Mul(extents[r.Outer], extents[r.Inner]))
		}
	}
	return extents, nil
}

// divides reports whether factor provably divides extent.
func divides(extent, factor ir.Expr) bool {
	e, eOk := ir.IsConstInt(extent)
	f, fOk := ir.IsConstInt(factor)
	return eOk && fOk && f > 0 && e%f == 0
}

func lowerStage(stage *Stage, buffers map[*Tensor]*ir.Buffer) (ir.Stmt, error) {
	extents, err := inferBounds(stage)
	if err != nil {
		return nil, errors.WithMessagef(err, "stage %s", stage.Op.Name())
	}

	// Value of each iteration variable, recovered from the leaves.
	values := make(map[*ir.IterVar]ir.Expr, len(stage.AllIterVars))
	for _, leaf := range stage.LeafIterVars {
		if thread, bound := stage.Bindings[leaf]; bound {
			values[leaf] = thread.Var
		} else {
			values[leaf] = leaf.Var
		}
	}
	var guards []ir.Expr
	for i := len(stage.Relations) - 1; i >= 0; i-- {
		switch r := stage.Relations[i].(type) {
		case *SplitRelation:
			parentValue := ir.Add(ir.Mul(values[r.Outer], extents[r.Inner]), values[r.Inner])
			values[r.Parent] = parentValue
			divisor := r.Factor
			if divisor == nil {
				divisor = r.NParts
			}
			if !divides(extents[r.Parent], divisor) {
				guards = append(guards, ir.LT(parentValue, extents[r.Parent]))
			}
		case *FuseRelation:
			innerExtent := extents[r.Inner]
			values[r.Outer] = ir.FloorDiv(values[r.Fused], innerExtent)
			values[r.Inner] = ir.FloorMod(values[r.Fused], innerExtent)
		}
	}

	// Compute body over the recovered root axes.
	vmap := make(map[*ir.Var]ir.Expr, len(stage.Op.Axis))
	rootIndices := make([]ir.Expr, len(stage.Op.Axis))
	for axis, iv := range stage.Op.Axis {
		value, found := values[iv]
		if !found {
			return nil, errors.Errorf("stage %s: cannot recover the value of axis %s", stage.Op.Name(), iv.Var.Name)
		}
		value = ir.Add(iv.Dom.Min, value)
		vmap[iv.Var] = value
		rootIndices[axis] = value
	}
	var lowerErr error
	value := ir.MutateExpr(stage.Op.Body, func(e ir.Expr) ir.Expr {
		switch n := e.(type) {
		case *ir.Var:
			if replacement, found := vmap[n]; found {
				return replacement
			}
		case *ir.ProducerLoad:
			t, _ := n.Producer.(*Tensor)
			buf, found := buffers[t]
			if !found {
				if lowerErr == nil {
					lowerErr = errors.Errorf("stage %s reads %s, which has no buffer", stage.Op.Name(), n.Producer.ProducerName())
				}
				return nil
			}
			return buf.Load(n.Indices...)
		}
		return nil
	})
	if lowerErr != nil {
		return nil, lowerErr
	}
	var body ir.Stmt = buffers[stage.Op.Output()].Store(value, rootIndices...)
	for _, guard := range guards {
		body = &ir.IfThenElse{Cond: ir.Likely(guard), Then: body}
	}

	// Loop nest, built from the innermost leaf outwards.
	for i := len(stage.LeafIterVars) - 1; i >= 0; i-- {
		leaf := stage.LeafIterVars[i]
		extent := extents[leaf]
		if thread, bound := stage.Bindings[leaf]; bound {
			body = &ir.AttrStmt{Node: thread, Key: ir.AttrThreadExtent, Value: extent, Body: body}
			continue
		}
		body = &ir.For{
			LoopVar: leaf.Var,
			Min:     ir.MakeInt(leaf.Var.DType, 0),
			Extent:  extent,
			Kind:    ir.ForSerial,
			Body:    body,
		}
	}
	return body, nil
}
