// Package numeric wraps the tensor backend behind the small set of array
// operations a replay buffer needs: building arrays from Go scalars and
// slices, stacking them along a new leading axis, reshaping, slicing out
// environment rows, and tracking device placement and precision.
package numeric

import (
	"errors"
	"fmt"

	"gorgonia.org/tensor"
)

// ErrNotConvertible reports a value the backend cannot turn into an Array.
var ErrNotConvertible = errors.New("numeric: value is not array convertible")

// Array is an n-dimensional numeric value with a device tag. The backing
// tensor is never mutated after construction, so arrays can be shared
// freely between records and buffers.
type Array struct {
	data   *tensor.Dense
	kind   Dtype
	device Device
}

// FromDense wraps an existing tensor. The tensor must be backed by
// float64, float32, int or uint8 elements.
func FromDense(d *tensor.Dense) (*Array, error) {
	kind, ok := kindOf(d)
	if !ok {
		return nil, fmt.Errorf("%w: tensor dtype %v", ErrNotConvertible, d.Dtype())
	}
	return &Array{data: d, kind: kind}, nil
}

// FromValue converts a scalar, slice, matrix, tensor or Array into an
// Array. Scalars become single-element arrays of shape (1). Booleans map
// to uint8, the convention terminal flags are stored with.
func FromValue(v any) (*Array, error) {
	switch val := v.(type) {
	case *Array:
		return val, nil
	case *tensor.Dense:
		return FromDense(val)
	case bool:
		return newArray([]uint8{boolByte(val)}, 1), nil
	case uint8:
		return newArray([]uint8{val}, 1), nil
	case int:
		return newArray([]int{val}, 1), nil
	case int32:
		return newArray([]int{int(val)}, 1), nil
	case int64:
		return newArray([]int{int(val)}, 1), nil
	case float32:
		return newArray([]float32{val}, 1), nil
	case float64:
		return newArray([]float64{val}, 1), nil
	case []bool:
		if len(val) == 0 {
			return nil, emptyValueErr(v)
		}
		out := make([]uint8, len(val))
		for i, b := range val {
			out[i] = boolByte(b)
		}
		return newArray(out, len(out)), nil
	case []uint8:
		if len(val) == 0 {
			return nil, emptyValueErr(v)
		}
		return newArray(append([]uint8(nil), val...), len(val)), nil
	case []int:
		if len(val) == 0 {
			return nil, emptyValueErr(v)
		}
		return newArray(append([]int(nil), val...), len(val)), nil
	case []float32:
		if len(val) == 0 {
			return nil, emptyValueErr(v)
		}
		return newArray(append([]float32(nil), val...), len(val)), nil
	case []float64:
		if len(val) == 0 {
			return nil, emptyValueErr(v)
		}
		return newArray(append([]float64(nil), val...), len(val)), nil
	case [][]float32:
		rows, cols, err := matrixDims(len(val), func(i int) int { return len(val[i]) })
		if err != nil {
			return nil, err
		}
		out := make([]float32, 0, rows*cols)
		for _, row := range val {
			out = append(out, row...)
		}
		return newArray(out, rows, cols), nil
	case [][]float64:
		rows, cols, err := matrixDims(len(val), func(i int) int { return len(val[i]) })
		if err != nil {
			return nil, err
		}
		out := make([]float64, 0, rows*cols)
		for _, row := range val {
			out = append(out, row...)
		}
		return newArray(out, rows, cols), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrNotConvertible, v)
}

// IsConvertible reports whether FromValue accepts values of v's type.
func IsConvertible(v any) bool {
	switch v.(type) {
	case *Array, *tensor.Dense,
		bool, uint8, int, int32, int64, float32, float64,
		[]bool, []uint8, []int, []float32, []float64,
		[][]float32, [][]float64:
		return true
	}
	return false
}

func newArray(backing any, dims ...int) *Array {
	d := tensor.New(tensor.WithShape(dims...), tensor.WithBacking(backing))
	kind, _ := kindOf(d)
	return &Array{data: d, kind: kind}
}

func kindOf(d *tensor.Dense) (Dtype, bool) {
	switch d.Data().(type) {
	case []float64, float64:
		return Float64, true
	case []float32, float32:
		return Float32, true
	case []int, int:
		return Int, true
	case []uint8, uint8:
		return Uint8, true
	}
	return 0, false
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func emptyValueErr(v any) error {
	return fmt.Errorf("numeric: cannot build an array from an empty %T", v)
}

func matrixDims(rows int, width func(int) int) (int, int, error) {
	if rows == 0 {
		return 0, 0, errors.New("numeric: cannot build an array from an empty matrix")
	}
	cols := width(0)
	for i := 1; i < rows; i++ {
		if width(i) != cols {
			return 0, 0, fmt.Errorf("numeric: ragged matrix: row 0 has %d columns, row %d has %d", cols, i, width(i))
		}
	}
	if cols == 0 {
		return 0, 0, errors.New("numeric: cannot build an array from empty rows")
	}
	return rows, cols, nil
}

// Dense exposes the backing tensor. Callers must treat it as read-only.
func (a *Array) Dense() *tensor.Dense { return a.data }

// Kind returns the element type.
func (a *Array) Kind() Dtype { return a.kind }

// Device returns the placement tag, empty when unplaced.
func (a *Array) Device() Device { return a.device }

// Shape returns a copy of the array dimensions.
func (a *Array) Shape() []int {
	s := a.data.Shape()
	out := make([]int, len(s))
	copy(out, s)
	return out
}

// Size returns the total element count.
func (a *Array) Size() int {
	n := 1
	for _, d := range a.data.Shape() {
		n *= d
	}
	return n
}

// NumBytes approximates the storage taken by the element data.
func (a *Array) NumBytes() uint64 {
	return uint64(a.Size()) * uint64(a.kind.Bytes())
}

// elems returns the backing in slice form regardless of how the tensor
// reports single-element data.
func (a *Array) elems() any {
	switch data := a.data.Data().(type) {
	case float64:
		return []float64{data}
	case float32:
		return []float32{data}
	case int:
		return []int{data}
	case uint8:
		return []uint8{data}
	default:
		return data
	}
}

// Float64s returns the elements converted to float64, in row-major order.
func (a *Array) Float64s() []float64 {
	out := make([]float64, a.Size())
	switch data := a.elems().(type) {
	case []float64:
		copy(out, data)
	case []float32:
		for i, v := range data {
			out[i] = float64(v)
		}
	case []int:
		for i, v := range data {
			out[i] = float64(v)
		}
	case []uint8:
		for i, v := range data {
			out[i] = float64(v)
		}
	}
	return out
}

// Item returns the first element as a float64.
func (a *Array) Item() (float64, error) {
	if a.Size() == 0 {
		return 0, errors.New("numeric: item of an empty array")
	}
	switch data := a.elems().(type) {
	case []float64:
		return data[0], nil
	case []float32:
		return float64(data[0]), nil
	case []int:
		return float64(data[0]), nil
	case []uint8:
		return float64(data[0]), nil
	}
	return 0, fmt.Errorf("numeric: unreadable backing for dtype %v", a.kind)
}

// To returns an array tagged with the given device. The elements are
// shared: placement is tracked as intent for the engine consuming the
// buffer, not copied across address spaces.
func (a *Array) To(d Device) *Array {
	if a.device == d {
		return a
	}
	return &Array{data: a.data, kind: a.kind, device: d}
}

// Cast converts floating-point elements to the requested precision.
// Arrays that already match, and non-float arrays, are returned as-is.
func (a *Array) Cast(p Precision) *Array {
	switch p {
	case SinglePrecision:
		if a.kind != Float64 {
			return a
		}
		src := a.elems().([]float64)
		dst := make([]float32, len(src))
		for i, v := range src {
			dst[i] = float32(v)
		}
		return &Array{
			data:   tensor.New(tensor.WithShape(a.Shape()...), tensor.WithBacking(dst)),
			kind:   Float32,
			device: a.device,
		}
	case DoublePrecision:
		if a.kind != Float32 {
			return a
		}
		src := a.elems().([]float32)
		dst := make([]float64, len(src))
		for i, v := range src {
			dst[i] = float64(v)
		}
		return &Array{
			data:   tensor.New(tensor.WithShape(a.Shape()...), tensor.WithBacking(dst)),
			kind:   Float64,
			device: a.device,
		}
	}
	return a
}

// Reshape returns an array with the same elements arranged to dims. At
// most one dimension may be -1, which is inferred from the rest.
func (a *Array) Reshape(dims ...int) (*Array, error) {
	resolved, err := resolveDims(a.Size(), dims)
	if err != nil {
		return nil, err
	}
	clone := a.data.Clone().(*tensor.Dense)
	if err := clone.Reshape(resolved...); err != nil {
		return nil, fmt.Errorf("numeric: reshape to %v: %w", dims, err)
	}
	return &Array{data: clone, kind: a.kind, device: a.device}, nil
}

func resolveDims(size int, dims []int) ([]int, error) {
	if len(dims) == 0 {
		return nil, errors.New("numeric: reshape needs at least one dimension")
	}
	out := make([]int, len(dims))
	infer := -1
	known := 1
	for i, d := range dims {
		switch {
		case d == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("numeric: reshape to %v: more than one inferred dimension", dims)
			}
			infer = i
		case d <= 0:
			return nil, fmt.Errorf("numeric: reshape to %v: invalid dimension %d", dims, d)
		default:
			known *= d
		}
		out[i] = d
	}
	if infer >= 0 {
		if size%known != 0 {
			return nil, fmt.Errorf("numeric: cannot infer dimension reshaping %d elements to %v", size, dims)
		}
		out[infer] = size / known
		return out, nil
	}
	if known != size {
		return nil, fmt.Errorf("numeric: cannot reshape %d elements to %v", size, dims)
	}
	return out, nil
}

// Row slices out index i of the leading axis with a singleton leading
// axis re-added: a (E, d) array yields rows of shape (1, d), a (E,) array
// yields rows of shape (1).
func (a *Array) Row(i int) (*Array, error) {
	shape := a.Shape()
	if len(shape) == 0 || i < 0 || i >= shape[0] {
		return nil, fmt.Errorf("numeric: row %d out of range for shape %v", i, shape)
	}
	rest := shape[1:]
	rowSize := 1
	for _, d := range rest {
		rowSize *= d
	}
	newShape := make([]int, 0, len(rest)+1)
	newShape = append(newShape, 1)
	newShape = append(newShape, rest...)
	return a.section(i*rowSize, rowSize, newShape), nil
}

// section copies n elements starting at start into a fresh array of the
// given shape, keeping dtype and device.
func (a *Array) section(start, n int, shape []int) *Array {
	var backing any
	switch data := a.elems().(type) {
	case []float64:
		backing = append(make([]float64, 0, n), data[start:start+n]...)
	case []float32:
		backing = append(make([]float32, 0, n), data[start:start+n]...)
	case []int:
		backing = append(make([]int, 0, n), data[start:start+n]...)
	case []uint8:
		backing = append(make([]uint8, 0, n), data[start:start+n]...)
	}
	return &Array{
		data:   tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing)),
		kind:   a.kind,
		device: a.device,
	}
}

// Stack concatenates arrays along a new leading axis. All inputs must
// share one shape and element type; the result has shape
// (len(arrays), shape...) and the first array's device tag.
func Stack(arrays []*Array) (*Array, error) {
	if len(arrays) == 0 {
		return nil, errors.New("numeric: stack of zero arrays")
	}
	first := arrays[0]
	shape := first.Shape()
	for i, a := range arrays[1:] {
		if a.kind != first.kind {
			return nil, fmt.Errorf("numeric: stack element %d is %v, want %v", i+1, a.kind, first.kind)
		}
		if !equalDims(a.Shape(), shape) {
			return nil, fmt.Errorf("numeric: stack element %d has shape %v, want %v", i+1, a.Shape(), shape)
		}
	}
	rowSize := first.Size()
	var backing any
	switch first.kind {
	case Float64:
		backing = stackBacking[float64](arrays, rowSize)
	case Float32:
		backing = stackBacking[float32](arrays, rowSize)
	case Int:
		backing = stackBacking[int](arrays, rowSize)
	case Uint8:
		backing = stackBacking[uint8](arrays, rowSize)
	}
	outShape := make([]int, 0, len(shape)+1)
	outShape = append(outShape, len(arrays))
	outShape = append(outShape, shape...)
	return &Array{
		data:   tensor.New(tensor.WithShape(outShape...), tensor.WithBacking(backing)),
		kind:   first.kind,
		device: first.device,
	}, nil
}

func stackBacking[T any](arrays []*Array, rowSize int) []T {
	backing := make([]T, 0, rowSize*len(arrays))
	for _, a := range arrays {
		backing = append(backing, a.elems().([]T)...)
	}
	return backing
}

// Equal reports whether two arrays hold the same element type, shape and
// values. Device tags are not compared.
func (a *Array) Equal(b *Array) bool {
	if b == nil {
		return false
	}
	if a.kind != b.kind || !equalDims(a.Shape(), b.Shape()) {
		return false
	}
	av, bv := a.Float64s(), b.Float64s()
	for i := range av {
		if av[i] != bv[i] {
			return false
		}
	}
	return true
}

func equalDims(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (a *Array) String() string {
	if a.device == "" {
		return fmt.Sprintf("Array(%s, shape=%v)", a.kind, a.Shape())
	}
	return fmt.Sprintf("Array(%s, shape=%v, device=%s)", a.kind, a.Shape(), a.device)
}
