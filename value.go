package experience

import (
	"fmt"
	"reflect"

	"github.com/cartridge/experience/numeric"
)

// Value is one transition field: either a numeric array or an opaque Go
// value carried along untouched. Opaque values ride through sampling,
// slicing and snapshots but are skipped by batching and device transfer.
type Value struct {
	arr    *numeric.Array
	opaque any
}

// ArrayValue wraps an array as a field value.
func ArrayValue(a *numeric.Array) Value {
	return Value{arr: a}
}

// OpaqueValue wraps an arbitrary Go value as a field value.
func OpaqueValue(v any) Value {
	return Value{opaque: v}
}

// ValueOf converts v into a field value. Numeric scalars, slices,
// matrices and tensors become arrays; everything else is kept opaque.
func ValueOf(v any) Value {
	if arr, ok := v.(*numeric.Array); ok {
		return ArrayValue(arr)
	}
	if numeric.IsConvertible(v) {
		if arr, err := numeric.FromValue(v); err == nil {
			return ArrayValue(arr)
		}
	}
	return OpaqueValue(v)
}

// IsArray reports whether the value holds a numeric array.
func (v Value) IsArray() bool { return v.arr != nil }

// Array returns the underlying array, nil for opaque values.
func (v Value) Array() *numeric.Array { return v.arr }

// Opaque returns the underlying opaque value, nil for arrays.
func (v Value) Opaque() any { return v.opaque }

// Interface returns whichever representation the value holds.
func (v Value) Interface() any {
	if v.arr != nil {
		return v.arr
	}
	return v.opaque
}

// Equal reports whether two values hold the same contents. Arrays compare
// by element type, shape and values; opaque values compare deeply.
func (v Value) Equal(other Value) bool {
	if v.IsArray() != other.IsArray() {
		return false
	}
	if v.IsArray() {
		return v.arr.Equal(other.arr)
	}
	return reflect.DeepEqual(v.opaque, other.opaque)
}

func (v Value) String() string {
	if v.arr != nil {
		return v.arr.String()
	}
	return fmt.Sprintf("Opaque(%T)", v.opaque)
}
