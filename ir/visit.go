package ir

// Visit walks the node (a Stmt or an Expr) in pre-order, calling f on every statement
// and expression. If f returns false the children of that node are skipped.
func Visit(node any, f func(node any) bool) {
	if node == nil {
		return
	}
	switch n := node.(type) {
	case Expr:
		visitExpr(n, f)
	case Stmt:
		visitStmt(n, f)
	}
}

func visitExpr(e Expr, f func(node any) bool) {
	if e == nil || !f(e) {
		return
	}
	switch n := e.(type) {
	case *Binary:
		visitExpr(n.A, f)
		visitExpr(n.B, f)
	case *Not:
		visitExpr(n.A, f)
	case *Cast:
		visitExpr(n.Value, f)
	case *Select:
		visitExpr(n.Cond, f)
		visitExpr(n.True, f)
		visitExpr(n.False, f)
	case *ProducerLoad:
		for _, idx := range n.Indices {
			visitExpr(idx, f)
		}
	case *BufferLoad:
		visitExpr(n.Index, f)
	case *Call:
		for _, arg := range n.Args {
			visitExpr(arg, f)
		}
	}
}

func visitStmt(s Stmt, f func(node any) bool) {
	if s == nil || !f(s) {
		return
	}
	switch n := s.(type) {
	case *LetStmt:
		visitExpr(n.Value, f)
		visitStmt(n.Body, f)
	case *AttrStmt:
		visitExpr(n.Value, f)
		visitStmt(n.Body, f)
	case *AssertStmt:
		visitExpr(n.Cond, f)
		visitStmt(n.Body, f)
	case *For:
		visitExpr(n.Min, f)
		visitExpr(n.Extent, f)
		visitStmt(n.Body, f)
	case *IfThenElse:
		visitExpr(n.Cond, f)
		visitStmt(n.Then, f)
		visitStmt(n.Else, f)
	case *BufferStore:
		visitExpr(n.Value, f)
		visitExpr(n.Index, f)
	case *SeqStmt:
		for _, child := range n.Seq {
			visitStmt(child, f)
		}
	case *Evaluate:
		visitExpr(n.Value, f)
	}
}

// MutateExpr rebuilds e bottom-up: children are mutated first, then post is called
// on the rebuilt node. If post returns nil the rebuilt node is kept.
func MutateExpr(e Expr, post func(Expr) Expr) Expr {
	if e == nil {
		return nil
	}
	var rebuilt Expr
	switch n := e.(type) {
	case *Binary:
		rebuilt = &Binary{Op: n.Op, A: MutateExpr(n.A, post), B: MutateExpr(n.B, post)}
	case *Not:
		rebuilt = &Not{A: MutateExpr(n.A, post)}
	case *Cast:
		rebuilt = &Cast{DType: n.DType, Value: MutateExpr(n.Value, post)}
	case *Select:
		rebuilt = &Select{
			Cond:  MutateExpr(n.Cond, post),
			True:  MutateExpr(n.True, post),
			False: MutateExpr(n.False, post),
		}
	case *ProducerLoad:
		indices := make([]Expr, len(n.Indices))
		for i, idx := range n.Indices {
			indices[i] = MutateExpr(idx, post)
		}
		rebuilt = &ProducerLoad{Producer: n.Producer, Indices: indices}
	case *BufferLoad:
		rebuilt = &BufferLoad{Buffer: n.Buffer, Index: MutateExpr(n.Index, post)}
	case *Call:
		args := make([]Expr, len(n.Args))
		for i, arg := range n.Args {
			args[i] = MutateExpr(arg, post)
		}
		rebuilt = &Call{DType: n.DType, Op: n.Op, Args: args}
	default:
		// Leaves: constants and variables.
		rebuilt = e
	}
	if post != nil {
		if replaced := post(rebuilt); replaced != nil {
			return replaced
		}
	}
	return rebuilt
}

// MutateStmt rebuilds s bottom-up, mutating every expression with exprPost (see MutateExpr)
// and then calling stmtPost on every rebuilt statement. Either function may be nil.
// If stmtPost returns nil the rebuilt statement is kept.
func MutateStmt(s Stmt, exprPost func(Expr) Expr, stmtPost func(Stmt) Stmt) Stmt {
	if s == nil {
		return nil
	}
	me := func(e Expr) Expr {
		if exprPost == nil {
			return e
		}
		return MutateExpr(e, exprPost)
	}
	var rebuilt Stmt
	switch n := s.(type) {
	case *LetStmt:
		rebuilt = &LetStmt{Var: n.Var, Value: me(n.Value), Body: MutateStmt(n.Body, exprPost, stmtPost)}
	case *AttrStmt:
		rebuilt = &AttrStmt{Node: n.Node, Key: n.Key, Value: me(n.Value), Body: MutateStmt(n.Body, exprPost, stmtPost)}
	case *AssertStmt:
		rebuilt = &AssertStmt{Cond: me(n.Cond), Message: n.Message, Body: MutateStmt(n.Body, exprPost, stmtPost)}
	case *For:
		rebuilt = &For{
			LoopVar: n.LoopVar,
			Min:     me(n.Min),
			Extent:  me(n.Extent),
			Kind:    n.Kind,
			Body:    MutateStmt(n.Body, exprPost, stmtPost),
		}
	case *IfThenElse:
		rebuilt = &IfThenElse{
			Cond: me(n.Cond),
			Then: MutateStmt(n.Then, exprPost, stmtPost),
			Else: MutateStmt(n.Else, exprPost, stmtPost),
		}
	case *BufferStore:
		rebuilt = &BufferStore{Buffer: n.Buffer, Value: me(n.Value), Index: me(n.Index)}
	case *SeqStmt:
		seq := make([]Stmt, len(n.Seq))
		for i, child := range n.Seq {
			seq[i] = MutateStmt(child, exprPost, stmtPost)
		}
		rebuilt = &SeqStmt{Seq: seq}
	case *Evaluate:
		rebuilt = &Evaluate{Value: me(n.Value)}
	default:
		rebuilt = s
	}
	if stmtPost != nil {
		if replaced := stmtPost(rebuilt); replaced != nil {
			return replaced
		}
	}
	return rebuilt
}

// Substitute replaces variables according to vmap in the given expression.
func Substitute(e Expr, vmap map[*Var]Expr) Expr {
	return MutateExpr(e, func(e Expr) Expr {
		if v, ok := e.(*Var); ok {
			if replacement, found := vmap[v]; found {
				return replacement
			}
		}
		return nil
	})
}

// SubstituteStmt replaces variables according to vmap in all expressions of s.
func SubstituteStmt(s Stmt, vmap map[*Var]Expr) Stmt {
	return MutateStmt(s, func(e Expr) Expr {
		if v, ok := e.(*Var); ok {
			if replacement, found := vmap[v]; found {
				return replacement
			}
		}
		return nil
	}, nil)
}

// UsesVar returns whether any expression in node refers to v.
func UsesVar(node any, v *Var) bool {
	found := false
	Visit(node, func(n any) bool {
		if found {
			return false
		}
		if nv, ok := n.(*Var); ok && nv == v {
			found = true
		}
		return true
	})
	return found
}

// TransformStmt rebuilds s top-down. pre is called on every statement before its children:
// if it returns a non-nil replacement, the replacement is used as is, and the children of the
// original statement are not visited.
func TransformStmt(s Stmt, pre func(Stmt) Stmt) Stmt {
	if s == nil {
		return nil
	}
	if replaced := pre(s); replaced != nil {
		return replaced
	}
	switch n := s.(type) {
	case *LetStmt:
		return &LetStmt{Var: n.Var, Value: n.Value, Body: TransformStmt(n.Body, pre)}
	case *AttrStmt:
		return &AttrStmt{Node: n.Node, Key: n.Key, Value: n.Value, Body: TransformStmt(n.Body, pre)}
	case *AssertStmt:
		return &AssertStmt{Cond: n.Cond, Message: n.Message, Body: TransformStmt(n.Body, pre)}
	case *For:
		return &For{LoopVar: n.LoopVar, Min: n.Min, Extent: n.Extent, Kind: n.Kind, Body: TransformStmt(n.Body, pre)}
	case *IfThenElse:
		return &IfThenElse{Cond: n.Cond, Then: TransformStmt(n.Then, pre), Else: TransformStmt(n.Else, pre)}
	case *SeqStmt:
		seq := make([]Stmt, len(n.Seq))
		for i, child := range n.Seq {
			seq[i] = TransformStmt(child, pre)
		}
		return &SeqStmt{Seq: seq}
	}
	return s
}
