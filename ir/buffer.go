package ir

// Buffer is a (logically multi-dimensional) region of memory pointed to by Data.
//
// Accesses are flattened in row-major order. If Strides is empty the buffer is compact,
// otherwise Strides holds one stride (in elements) per dimension.
type Buffer struct {
	Name    string
	Data    *Var
	DType   DataType
	Shape   []Expr
	Strides []Expr
}

// NewBuffer creates a compact buffer with a fresh data handle variable.
func NewBuffer(name string, dtype DataType, shape []Expr) *Buffer {
	return &Buffer{
		Name:  name,
		Data:  NewVar(name, Handle()),
		DType: dtype,
		Shape: shape,
	}
}

// Rank is the number of dimensions of the buffer.
func (b *Buffer) Rank() int {
	return len(b.Shape)
}

// FlatIndex converts the multi-dimensional indices to the element offset in Data.
func (b *Buffer) FlatIndex(indices []Expr) Expr {
	if len(indices) == 0 {
		return MakeInt(Int32(), 0)
	}
	if len(b.Strides) > 0 {
		var offset Expr
		for i, idx := range indices {
			term := Mul(idx, b.Strides[i])
			if offset == nil {
				offset = term
			} else {
				offset = Add(offset, term)
			}
		}
		return offset
	}
	offset := indices[0]
	for i := 1; i < len(indices); i++ {
		offset = Add(Mul(offset, b.Shape[i]), indices[i])
	}
	return offset
}

// Load creates a BufferLoad of the element at the given indices.
func (b *Buffer) Load(indices ...Expr) *BufferLoad {
	return &BufferLoad{Buffer: b, Index: b.FlatIndex(indices)}
}

// Store creates a BufferStore of value at the given indices.
func (b *Buffer) Store(value Expr, indices ...Expr) *BufferStore {
	return &BufferStore{Buffer: b, Value: value, Index: b.FlatIndex(indices)}
}

// Range is an interval [Min, Min+Extent).
type Range struct {
	Min    Expr
	Extent Expr
}

// RangeFromExtent creates the range [0, extent).
func RangeFromExtent(extent Expr) *Range {
	return &Range{Min: MakeInt(extent.DataType(), 0), Extent: extent}
}

// IterVarKind classifies how an iteration variable is used.
type IterVarKind int

//go:generate go tool enumer -type=IterVarKind buffer.go

const (
	DataPar IterVarKind = iota
	ThreadIndex
)

// IterVar is an iteration variable: a loop axis of a computation, or a hardware
// thread axis (ThreadTag like "blockIdx.x") that loops are bound to.
type IterVar struct {
	Var       *Var
	Dom       *Range
	Kind      IterVarKind
	ThreadTag string
}

// NewIterVar creates an iteration variable with a fresh int32 variable called name.
func NewIterVar(name string, dom *Range, kind IterVarKind, threadTag string) *IterVar {
	dtype := Int32()
	if dom != nil {
		dtype = dom.Extent.DataType()
	}
	return &IterVar{
		Var:       NewVar(name, dtype),
		Dom:       dom,
		Kind:      kind,
		ThreadTag: threadTag,
	}
}

func (iv *IterVar) String() string { return Script(iv) }
