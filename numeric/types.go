package numeric

import (
	"fmt"
	"strconv"
)

// Device identifies where array data lives. The zero value means no
// placement has been decided yet.
type Device string

// CPU is the host device.
const CPU Device = "cpu"

// Accelerator returns the device tag for the index-th accelerator.
func Accelerator(index int) Device {
	return Device(fmt.Sprintf("accelerator:%d", index))
}

// Dtype is the element type of an Array.
type Dtype int

const (
	Float64 Dtype = iota
	Float32
	Int
	Uint8
)

func (d Dtype) String() string {
	switch d {
	case Float64:
		return "float64"
	case Float32:
		return "float32"
	case Int:
		return "int"
	case Uint8:
		return "uint8"
	}
	return "dtype(" + strconv.Itoa(int(d)) + ")"
}

// Bytes returns the width of one element in bytes.
func (d Dtype) Bytes() int {
	switch d {
	case Float64:
		return 8
	case Float32:
		return 4
	case Int:
		return strconv.IntSize / 8
	case Uint8:
		return 1
	}
	return 0
}

// Precision selects the floating-point width for cast operations. Integer
// and uint8 arrays are never affected by a cast.
type Precision int

const (
	// KeepPrecision leaves floating-point widths unchanged.
	KeepPrecision Precision = iota
	// SinglePrecision casts floating-point arrays to float32. It stands in
	// for the half-precision formats of accelerator runtimes, which Go has
	// no native type for.
	SinglePrecision
	// DoublePrecision casts floating-point arrays to float64.
	DoublePrecision
)

func (p Precision) String() string {
	switch p {
	case KeepPrecision:
		return "keep"
	case SinglePrecision:
		return "single"
	case DoublePrecision:
		return "double"
	}
	return "precision(" + strconv.Itoa(int(p)) + ")"
}
