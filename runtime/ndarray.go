package runtime

import (
	"fmt"
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tegen/ir"
	"github.com/gomlx/tegen/target"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Element types an NDArray can hold.
type Element interface {
	float32 | float64 | int32 | int64 | float16.Float16
}

// NDArray is a dense, row-major, host resident tensor. It is passed to compiled functions
// as a DLTensor handle.
type NDArray struct {
	dtype ir.DataType
	shape []int64
	data  any // []float32, []float64, []int32, []int64 or []float16.Float16
}

func dataTypeOf[T Element]() ir.DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return ir.Float32()
	case float64:
		return ir.Float(64)
	case int32:
		return ir.Int32()
	case int64:
		return ir.Int64()
	case float16.Float16:
		return ir.Float(16)
	}
	panic(errors.Errorf("unsupported element type %T", zero))
}

func numElements(shape []int) (int, error) {
	size := 1
	for axis, dim := range shape {
		if dim < 0 {
			return 0, errors.Errorf("negative dimension %d for axis #%d", dim, axis)
		}
		size *= dim
	}
	return size, nil
}

func toShape64(shape []int) []int64 {
	shape64 := make([]int64, len(shape))
	for i, dim := range shape {
		shape64[i] = int64(dim)
	}
	return shape64
}

// FromSlice creates an NDArray backed by data (not copied). If shape is not given the
// array is 1-dimensional.
func FromSlice[T Element](data []T, shape ...int) (*NDArray, error) {
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	size, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if size != len(data) {
		return nil, errors.Errorf("shape %v needs %d elements, got %d", shape, size, len(data))
	}
	return &NDArray{dtype: dataTypeOf[T](), shape: toShape64(shape), data: data}, nil
}

// Empty creates a zero initialized NDArray of the given dtype and shape.
func Empty(dtype dtypes.DType, shape ...int) (*NDArray, error) {
	size, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	a := &NDArray{shape: toShape64(shape)}
	switch dtype {
	case dtypes.Float32:
		a.data = make([]float32, size)
	case dtypes.Float64:
		a.data = make([]float64, size)
	case dtypes.Int32:
		a.data = make([]int32, size)
	case dtypes.Int64:
		a.data = make([]int64, size)
	case dtypes.Float16:
		a.data = make([]float16.Float16, size)
	default:
		return nil, errors.Errorf("runtime.Empty: dtype %s not supported", dtype)
	}
	a.dtype = ir.MustFromDType(dtype)
	return a, nil
}

// Data returns the flat slice holding the elements of a, or an error if T is not its element type.
func Data[T Element](a *NDArray) ([]T, error) {
	data, ok := a.data.([]T)
	if !ok {
		var zero T
		return nil, errors.Errorf("NDArray of dtype %s cannot be accessed as %T", a.dtype, zero)
	}
	return data, nil
}

// DType of the elements.
func (a *NDArray) DType() dtypes.DType { return a.dtype.DType() }

// Shape of the array.
func (a *NDArray) Shape() []int {
	shape := make([]int, len(a.shape))
	for i, dim := range a.shape {
		shape[i] = int(dim)
	}
	return shape
}

// Size is the number of elements.
func (a *NDArray) Size() int {
	size := 1
	for _, dim := range a.shape {
		size *= int(dim)
	}
	return size
}

// Rank is the number of dimensions.
func (a *NDArray) Rank() int { return len(a.shape) }

// String implements fmt.Stringer.
func (a *NDArray) String() string {
	return fmt.Sprintf("NDArray(%s%v)", a.dtype, a.Shape())
}

// structField reads the DLTensor field of a.
func (a *NDArray) structField(field ir.StructField) (any, error) {
	switch field {
	case ir.FieldArrAddr:
		return a, nil
	case ir.FieldArrData:
		return a.data, nil
	case ir.FieldArrShape:
		return slices.Clone(a.shape), nil
	case ir.FieldArrStrides:
		return nil, nil
	case ir.FieldArrNDim:
		return int64(len(a.shape)), nil
	case ir.FieldArrTypeCode:
		return int64(a.dtype.Code), nil
	case ir.FieldArrTypeBits:
		return int64(a.dtype.Bits), nil
	case ir.FieldArrTypeLanes:
		return int64(a.dtype.Lanes), nil
	case ir.FieldArrByteOffset:
		return int64(0), nil
	case ir.FieldArrDeviceType:
		return int64(target.DeviceCPU), nil
	case ir.FieldArrDeviceID:
		return int64(0), nil
	}
	return nil, errors.Errorf("DLTensor has no field #%d", field)
}
