package ir

import "fmt"

// Stmt is a statement in the IR.
type Stmt interface {
	fmt.Stringer
	isStmt()
}

// LetStmt binds Var to Value within Body.
type LetStmt struct {
	Var   *Var
	Value Expr
	Body  Stmt
}

// AttrStmt annotates Body with an attribute Key on Node.
//
// The main use is the "thread_extent" attribute: Node is then the *IterVar of a thread
// axis and Value its extent.
type AttrStmt struct {
	Node  any
	Key   string
	Value Expr
	Body  Stmt
}

// Attribute keys used with AttrStmt.
const (
	AttrThreadExtent = "thread_extent"
	AttrComputeScope = "compute_scope"
)

// AssertStmt checks Cond before running Body, failing with Message otherwise.
type AssertStmt struct {
	Cond    Expr
	Message string
	Body    Stmt
}

// ForKind of a loop. Only ForSerial loops can be generated and executed, the other kinds are
// rejected by the code generators and the interpreter.
type ForKind int

//go:generate go tool enumer -type=ForKind -trimprefix=For -transform=snake stmt.go

const (
	ForSerial ForKind = iota
	ForParallel
	ForVectorized
	ForUnrolled
	ForThreadBinding
)

// For loop over LoopVar in [Min, Min+Extent).
type For struct {
	LoopVar *Var
	Min     Expr
	Extent  Expr
	Kind    ForKind
	Body    Stmt
}

// IfThenElse statement. Else may be nil.
type IfThenElse struct {
	Cond Expr
	Then Stmt
	Else Stmt
}

// BufferStore writes Value at the flat Index of Buffer.
type BufferStore struct {
	Buffer *Buffer
	Value  Expr
	Index  Expr
}

// SeqStmt runs the statements in order.
type SeqStmt struct {
	Seq []Stmt
}

// Evaluate an expression for its side effects (usually a builtin Call).
type Evaluate struct {
	Value Expr
}

func (*LetStmt) isStmt()     {}
func (*AttrStmt) isStmt()    {}
func (*AssertStmt) isStmt()  {}
func (*For) isStmt()         {}
func (*IfThenElse) isStmt()  {}
func (*BufferStore) isStmt() {}
func (*SeqStmt) isStmt()     {}
func (*Evaluate) isStmt()    {}

func (s *LetStmt) String() string     { return Script(s) }
func (s *AttrStmt) String() string    { return Script(s) }
func (s *AssertStmt) String() string  { return Script(s) }
func (s *For) String() string         { return Script(s) }
func (s *IfThenElse) String() string  { return Script(s) }
func (s *BufferStore) String() string { return Script(s) }
func (s *SeqStmt) String() string     { return Script(s) }
func (s *Evaluate) String() string    { return Script(s) }

// Seq flattens the given statements into a SeqStmt, or returns the single
// statement if there is only one. Nil statements are dropped.
func Seq(stmts ...Stmt) Stmt {
	var flat []Stmt
	for _, s := range stmts {
		if s == nil {
			continue
		}
		if seq, ok := s.(*SeqStmt); ok {
			flat = append(flat, seq.Seq...)
			continue
		}
		flat = append(flat, s)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return &SeqStmt{Seq: flat}
}

// NoOp is an empty statement.
func NoOp() Stmt {
	return &Evaluate{Value: I32(0)}
}
