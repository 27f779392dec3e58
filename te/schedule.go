package te

import (
	"fmt"
	"slices"

	"github.com/gomlx/tegen/internal/utils"
	"github.com/gomlx/tegen/ir"
	"github.com/pkg/errors"
)

// ValidThreadTags are the hardware thread axes loops can be bound to.
var ValidThreadTags = utils.SetWith(
	"blockIdx.x", "blockIdx.y", "blockIdx.z",
	"threadIdx.x", "threadIdx.y", "threadIdx.z",
)

// ThreadAxis creates a thread axis iteration variable that loops can be bound to with Stage.Bind.
func ThreadAxis(tag string) (*ir.IterVar, error) {
	if !ValidThreadTags.Has(tag) {
		return nil, errors.Errorf("te.ThreadAxis: invalid thread tag %q, valid tags are blockIdx.[xyz] and threadIdx.[xyz]", tag)
	}
	return ir.NewIterVar(tag, nil, ir.ThreadIndex, tag), nil
}

// IterVarRelation records how leaf iteration variables were derived from the root axes.
type IterVarRelation interface {
	isRelation()
}

// SplitRelation splits Parent into Outer and Inner. Exactly one of Factor (the inner extent)
// and NParts (the outer extent) is set.
type SplitRelation struct {
	Parent, Outer, Inner *ir.IterVar
	Factor, NParts       ir.Expr
}

// FuseRelation fuses Outer and Inner into Fused.
type FuseRelation struct {
	Outer, Inner, Fused *ir.IterVar
}

func (*SplitRelation) isRelation() {}
func (*FuseRelation) isRelation()  {}

// Stage is the schedule of one compute operation.
type Stage struct {
	Op *ComputeOp

	// AllIterVars includes the root axes and every variable created by Split and Fuse.
	AllIterVars []*ir.IterVar

	// LeafIterVars are the loops that will be generated, outermost first.
	LeafIterVars []*ir.IterVar

	// Relations in the order they were applied.
	Relations []IterVarRelation

	// Bindings maps leaf iteration variables to the thread axis they are bound to.
	Bindings map[*ir.IterVar]*ir.IterVar
}

func newStage(op *ComputeOp) *Stage {
	return &Stage{
		Op:           op,
		AllIterVars:  slices.Clone(op.Axis),
		LeafIterVars: slices.Clone(op.Axis),
		Bindings:     make(map[*ir.IterVar]*ir.IterVar),
	}
}

// String implements fmt.Stringer.
func (s *Stage) String() string {
	return fmt.Sprintf("stage(%s, leaves=%d)", s.Op.Name(), len(s.LeafIterVars))
}

func (s *Stage) leafPosition(iv *ir.IterVar) int {
	return slices.Index(s.LeafIterVars, iv)
}

func (s *Stage) checkLeaf(method string, iv *ir.IterVar) (int, error) {
	if iv == nil {
		return -1, errors.Errorf("%s: nil iteration variable in stage %s", method, s.Op.Name())
	}
	pos := s.leafPosition(iv)
	if pos < 0 {
		if slices.Contains(s.AllIterVars, iv) {
			return -1, errors.Errorf("%s: iteration variable %s of stage %s was already transformed, only leaf variables can be used",
				method, iv.Var.Name, s.Op.Name())
		}
		return -1, errors.Errorf("%s: iteration variable %s does not belong to stage %s", method, iv.Var.Name, s.Op.Name())
	}
	if _, bound := s.Bindings[iv]; bound {
		return -1, errors.Errorf("%s: iteration variable %s of stage %s is already bound to a thread axis", method, iv.Var.Name, s.Op.Name())
	}
	return pos, nil
}

func (s *Stage) split(method string, parent *ir.IterVar, factor, nparts int) (outer, inner *ir.IterVar, err error) {
	pos, err := s.checkLeaf(method, parent)
	if err != nil {
		return nil, nil, err
	}
	rel := &SplitRelation{Parent: parent}
	dtype := parent.Var.DType
	if factor > 0 {
		rel.Factor = ir.MakeInt(dtype, int64(factor))
	} else if nparts > 0 {
		rel.NParts = ir.MakeInt(dtype, int64(nparts))
	} else {
		return nil, nil, errors.Errorf("%s: split of %s in stage %s must be a positive number, got %d",
			method, parent.Var.Name, s.Op.Name(), max(factor, nparts))
	}
	outer = ir.NewIterVar(parent.Var.Name+".outer", nil, parent.Kind, "")
	inner = ir.NewIterVar(parent.Var.Name+".inner", nil, parent.Kind, "")
	outer.Var.DType, inner.Var.DType = dtype, dtype
	rel.Outer, rel.Inner = outer, inner
	s.Relations = append(s.Relations, rel)
	s.AllIterVars = append(s.AllIterVars, outer, inner)
	s.LeafIterVars = slices.Replace(s.LeafIterVars, pos, pos+1, outer, inner)
	return outer, inner, nil
}

// Split parent into an outer loop and an inner loop of extent factor.
//
// If factor doesn't divide the parent extent, the lowered loop nest is guarded by a
// likely condition on the recovered parent index.
func (s *Stage) Split(parent *ir.IterVar, factor int) (outer, inner *ir.IterVar, err error) {
	if factor <= 0 {
		return nil, nil, errors.Errorf("Stage.Split: factor must be positive, got %d", factor)
	}
	return s.split("Stage.Split", parent, factor, 0)
}

// SplitNParts splits parent into an outer loop of extent nparts and an inner loop.
func (s *Stage) SplitNParts(parent *ir.IterVar, nparts int) (outer, inner *ir.IterVar, err error) {
	if nparts <= 0 {
		return nil, nil, errors.Errorf("Stage.SplitNParts: nparts must be positive, got %d", nparts)
	}
	return s.split("Stage.SplitNParts", parent, 0, nparts)
}

// Fuse two adjacent leaf loops (outer immediately before inner) into a single loop.
func (s *Stage) Fuse(outer, inner *ir.IterVar) (*ir.IterVar, error) {
	posOuter, err := s.checkLeaf("Stage.Fuse", outer)
	if err != nil {
		return nil, err
	}
	posInner, err := s.checkLeaf("Stage.Fuse", inner)
	if err != nil {
		return nil, err
	}
	if posInner != posOuter+1 {
		return nil, errors.Errorf("Stage.Fuse: %s must be the loop immediately outside %s in stage %s",
			outer.Var.Name, inner.Var.Name, s.Op.Name())
	}
	fused := ir.NewIterVar(outer.Var.Name+"."+inner.Var.Name+".fused", nil, outer.Kind, "")
	fused.Var.DType = outer.Var.DType
	s.Relations = append(s.Relations, &FuseRelation{Outer: outer, Inner: inner, Fused: fused})
	s.AllIterVars = append(s.AllIterVars, fused)
	s.LeafIterVars = slices.Replace(s.LeafIterVars, posOuter, posInner+1, fused)
	return fused, nil
}

// Reorder the given leaf loops: the positions they occupy are reassigned to them in the given order.
func (s *Stage) Reorder(order ...*ir.IterVar) error {
	positions := make([]int, len(order))
	seen := utils.MakeSet[*ir.IterVar](len(order))
	for i, iv := range order {
		if seen.Has(iv) {
			return errors.Errorf("Stage.Reorder: iteration variable %s repeated", iv.Var.Name)
		}
		seen.Insert(iv)
		pos := s.leafPosition(iv)
		if pos < 0 {
			_, err := s.checkLeaf("Stage.Reorder", iv)
			return err
		}
		positions[i] = pos
	}
	sorted := slices.Clone(positions)
	slices.Sort(sorted)
	for i, pos := range sorted {
		s.LeafIterVars[pos] = order[i]
	}
	return nil
}

// Bind a leaf loop to a thread axis created with ThreadAxis.
//
// Each leaf can only be bound once, and each thread tag only once per stage.
func (s *Stage) Bind(iv, thread *ir.IterVar) error {
	if thread == nil || thread.Kind != ir.ThreadIndex || thread.ThreadTag == "" {
		return errors.Errorf("Stage.Bind: %v is not a thread axis, create one with te.ThreadAxis", thread)
	}
	if _, err := s.checkLeaf("Stage.Bind", iv); err != nil {
		return err
	}
	for leaf, bound := range s.Bindings {
		if bound.ThreadTag == thread.ThreadTag {
			return errors.Errorf("Stage.Bind: thread axis %q already bound to %s in stage %s, cannot bind it to %s",
				thread.ThreadTag, leaf.Var.Name, s.Op.Name(), iv.Var.Name)
		}
	}
	s.Bindings[iv] = thread
	return nil
}

// Schedule holds the stages of all compute operations needed for the outputs.
type Schedule struct {
	Outputs []Operation

	// Stages in topological order: producers before consumers.
	Stages []*Stage

	stageMap map[Operation]*Stage
}

// CreateSchedule creates the default schedule for the given output operations: one stage
// per reachable compute operation, with loops following the tensor axes.
func CreateSchedule(outputs ...Operation) *Schedule {
	s := &Schedule{
		Outputs:  outputs,
		stageMap: make(map[Operation]*Stage),
	}
	visited := make(map[Operation]bool)
	var visit func(op Operation)
	visit = func(op Operation) {
		if visited[op] {
			return
		}
		visited[op] = true
		for _, input := range op.InputTensors() {
			visit(input.Op)
		}
		if compute, ok := op.(*ComputeOp); ok {
			stage := newStage(compute)
			s.Stages = append(s.Stages, stage)
			s.stageMap[op] = stage
		}
	}
	for _, op := range outputs {
		visit(op)
	}
	return s
}

// Stage returns the stage computing tensor t.
func (s *Schedule) Stage(t *Tensor) (*Stage, error) {
	if t == nil {
		return nil, errors.New("Schedule.Stage: nil tensor")
	}
	stage, found := s.stageMap[t.Op]
	if !found {
		if _, isPlaceholder := t.Op.(*PlaceholderOp); isPlaceholder {
			return nil, errors.Errorf("Schedule.Stage: tensor %q is a placeholder, it has no stage", t.Name)
		}
		return nil, errors.Errorf("Schedule.Stage: tensor %q is not part of the schedule", t.Name)
	}
	return stage, nil
}
