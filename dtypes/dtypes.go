// Package dtypes lists the element types kernels read and write in buffers, and maps them to Go types.
//
// Buffers themselves are untyped bytes: the dtype is only used by the typed transfer helpers and the tools, to
// convert between Go slices and buffer contents.
package dtypes

import (
	"reflect"
	"strings"
	"unsafe"

	"github.com/x448/float16"
)

// DType is the element type of a buffer's contents.
type DType int

//go:generate go tool enumer -type=DType dtypes.go

const (
	Invalid DType = iota
	Float32
	Float16
	Int32
	Uint32
	Int8
	Uint8
)

// Supported lists the Go types with a corresponding DType.
type Supported interface {
	float32 | float16.Float16 | int32 | uint32 | int8 | uint8
}

// Size in bytes of one element.
func (dtype DType) Size() int {
	switch dtype {
	case Float32, Int32, Uint32:
		return 4
	case Float16:
		return 2
	case Int8, Uint8:
		return 1
	default:
		return 0
	}
}

// GoType returns the Go type holding one element.
func (dtype DType) GoType() reflect.Type {
	switch dtype {
	case Float32:
		return reflect.TypeFor[float32]()
	case Float16:
		return reflect.TypeFor[float16.Float16]()
	case Int32:
		return reflect.TypeFor[int32]()
	case Uint32:
		return reflect.TypeFor[uint32]()
	case Int8:
		return reflect.TypeFor[int8]()
	case Uint8:
		return reflect.TypeFor[uint8]()
	default:
		return nil
	}
}

// WGSL returns the name of the type in WGSL, or "" if the language has no such scalar type.
func (dtype DType) WGSL() string {
	switch dtype {
	case Float32:
		return "f32"
	case Float16:
		return "f16"
	case Int32:
		return "i32"
	case Uint32:
		return "u32"
	default:
		return ""
	}
}

// FromGenericsType returns the DType of T.
func FromGenericsType[T Supported]() DType {
	var v T
	switch any(v).(type) {
	case float32:
		return Float32
	case float16.Float16:
		return Float16
	case int32:
		return Int32
	case uint32:
		return Uint32
	case int8:
		return Int8
	case uint8:
		return Uint8
	}
	return Invalid
}

// Bytes reinterprets values as their raw bytes (in the host byte order), without copying.
func Bytes[T Supported](values []T) []byte {
	if len(values) == 0 {
		return nil
	}
	var v T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(values))), len(values)*int(unsafe.Sizeof(v)))
}

// FromBytes copies data into a new slice of T. Trailing bytes that don't fill a whole element are ignored.
func FromBytes[T Supported](data []byte) []T {
	var v T
	values := make([]T, len(data)/int(unsafe.Sizeof(v)))
	copy(Bytes(values), data)
	return values
}

// MapOfNames maps names (including common short names and WGSL names) to DTypes.
var MapOfNames = make(map[string]DType)

func init() {
	for _, dtype := range DTypeValues() {
		if dtype == Invalid {
			continue
		}
		MapOfNames[dtype.String()] = dtype
		MapOfNames[strings.ToLower(dtype.String())] = dtype
		if name := dtype.WGSL(); name != "" {
			MapOfNames[name] = dtype
			MapOfNames[strings.ToUpper(name)] = dtype
		}
	}
	MapOfNames["S8"], MapOfNames["s8"] = Int8, Int8
	MapOfNames["U8"], MapOfNames["u8"] = Uint8, Uint8
}
