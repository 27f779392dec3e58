package ir

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// TypeCode follows the DLPack data type codes, so the values can be written as-is into
// the type code arrays consumed by the packed calling convention.
type TypeCode int

const (
	CodeInt    TypeCode = 0
	CodeUInt   TypeCode = 1
	CodeFloat  TypeCode = 2
	CodeHandle TypeCode = 3
	CodeBFloat TypeCode = 4
)

// DataType of scalar (or short vector) values in the IR.
//
// Bool is represented as a 1-bit unsigned integer and Void as a 0-bit handle.
type DataType struct {
	Code  TypeCode
	Bits  int
	Lanes int
}

// Int returns a signed integer data type with the given number of bits.
func Int(bits int) DataType { return DataType{Code: CodeInt, Bits: bits, Lanes: 1} }

// UInt returns an unsigned integer data type with the given number of bits.
func UInt(bits int) DataType { return DataType{Code: CodeUInt, Bits: bits, Lanes: 1} }

// Float returns a floating point data type with the given number of bits.
func Float(bits int) DataType { return DataType{Code: CodeFloat, Bits: bits, Lanes: 1} }

func Int32() DataType   { return Int(32) }
func Int64() DataType   { return Int(64) }
func Float32() DataType { return Float(32) }
func Bool() DataType    { return UInt(1) }
func Handle() DataType  { return DataType{Code: CodeHandle, Bits: 64, Lanes: 1} }
func Void() DataType    { return DataType{Code: CodeHandle, Bits: 0, Lanes: 0} }

// WithLanes returns a vector version of the data type.
func (t DataType) WithLanes(lanes int) DataType {
	t.Lanes = lanes
	return t
}

// ElementOf returns the scalar data type of a vector type.
func (t DataType) ElementOf() DataType {
	return t.WithLanes(1)
}

func (t DataType) IsInt() bool    { return t.Code == CodeInt }
func (t DataType) IsUInt() bool   { return t.Code == CodeUInt && t.Bits != 1 }
func (t DataType) IsFloat() bool  { return t.Code == CodeFloat }
func (t DataType) IsBFloat() bool { return t.Code == CodeBFloat }
func (t DataType) IsBool() bool   { return t.Code == CodeUInt && t.Bits == 1 }
func (t DataType) IsHandle() bool { return t.Code == CodeHandle && t.Bits != 0 }
func (t DataType) IsVoid() bool   { return t.Code == CodeHandle && t.Bits == 0 && t.Lanes == 0 }
func (t DataType) IsScalar() bool { return t.Lanes == 1 }

// IsIntegral is true for signed and unsigned integers (excluding bool).
func (t DataType) IsIntegral() bool { return t.IsInt() || t.IsUInt() }

// Bytes returns the storage size of one element of the (scalar) data type.
func (t DataType) Bytes() int {
	return (t.Bits*t.Lanes + 7) / 8
}

// String implements fmt.Stringer, using the same names as the generated code
// annotations: "float32", "int64", "bool", "handle", "float32x4", etc.
func (t DataType) String() string {
	var base string
	switch {
	case t.IsVoid():
		return "void"
	case t.IsBool():
		base = "bool"
	case t.IsHandle():
		return "handle"
	case t.Code == CodeInt:
		base = fmt.Sprintf("int%d", t.Bits)
	case t.Code == CodeUInt:
		base = fmt.Sprintf("uint%d", t.Bits)
	case t.Code == CodeFloat:
		base = fmt.Sprintf("float%d", t.Bits)
	case t.Code == CodeBFloat:
		base = fmt.Sprintf("bfloat%d", t.Bits)
	default:
		return fmt.Sprintf("unknown_dtype<%d:%d:%d>", t.Code, t.Bits, t.Lanes)
	}
	if t.Lanes > 1 {
		return fmt.Sprintf("%sx%d", base, t.Lanes)
	}
	return base
}

// FromDType converts a gopjrt DType to the IR scalar data type.
func FromDType(dtype dtypes.DType) (DataType, error) {
	switch dtype {
	case dtypes.Bool:
		return Bool(), nil
	case dtypes.Int8:
		return Int(8), nil
	case dtypes.Int16:
		return Int(16), nil
	case dtypes.Int32:
		return Int(32), nil
	case dtypes.Int64:
		return Int(64), nil
	case dtypes.Uint8:
		return UInt(8), nil
	case dtypes.Uint16:
		return UInt(16), nil
	case dtypes.Uint32:
		return UInt(32), nil
	case dtypes.Uint64:
		return UInt(64), nil
	case dtypes.Float16:
		return Float(16), nil
	case dtypes.Float32:
		return Float(32), nil
	case dtypes.Float64:
		return Float(64), nil
	case dtypes.BFloat16:
		return DataType{Code: CodeBFloat, Bits: 16, Lanes: 1}, nil
	}
	return DataType{}, errors.Errorf("dtype %s has no IR equivalent", dtype)
}

// MustFromDType is like FromDType, but panics on unsupported dtypes.
func MustFromDType(dtype dtypes.DType) DataType {
	t, err := FromDType(dtype)
	if err != nil {
		panic(err)
	}
	return t
}

// DType converts back to the gopjrt DType. It returns dtypes.InvalidDType for handles,
// void and vector types.
func (t DataType) DType() dtypes.DType {
	if t.Lanes != 1 {
		return dtypes.InvalidDType
	}
	switch {
	case t.IsBool():
		return dtypes.Bool
	case t.Code == CodeInt:
		switch t.Bits {
		case 8:
			return dtypes.Int8
		case 16:
			return dtypes.Int16
		case 32:
			return dtypes.Int32
		case 64:
			return dtypes.Int64
		}
	case t.Code == CodeUInt:
		switch t.Bits {
		case 8:
			return dtypes.Uint8
		case 16:
			return dtypes.Uint16
		case 32:
			return dtypes.Uint32
		case 64:
			return dtypes.Uint64
		}
	case t.Code == CodeFloat:
		switch t.Bits {
		case 16:
			return dtypes.Float16
		case 32:
			return dtypes.Float32
		case 64:
			return dtypes.Float64
		}
	case t.Code == CodeBFloat && t.Bits == 16:
		return dtypes.BFloat16
	}
	return dtypes.InvalidDType
}
