package numeric

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// arrayWire is the gob form of an Array. One backing slice is set per
// element type so the decoder can recover the dtype without a tag scan.
type arrayWire struct {
	Kind     Dtype
	Shape    []int
	Device   Device
	Float64s []float64
	Float32s []float32
	Ints     []int
	Uint8s   []uint8
}

// GobEncode implements gob.GobEncoder.
func (a *Array) GobEncode() ([]byte, error) {
	wire := arrayWire{
		Kind:   a.kind,
		Shape:  a.Shape(),
		Device: a.device,
	}
	switch data := a.elems().(type) {
	case []float64:
		wire.Float64s = data
	case []float32:
		wire.Float32s = data
	case []int:
		wire.Ints = data
	case []uint8:
		wire.Uint8s = data
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wire); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (a *Array) GobDecode(p []byte) error {
	var wire arrayWire
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&wire); err != nil {
		return err
	}
	var backing any
	switch wire.Kind {
	case Float64:
		if len(wire.Float64s) > 0 {
			backing = wire.Float64s
		}
	case Float32:
		if len(wire.Float32s) > 0 {
			backing = wire.Float32s
		}
	case Int:
		if len(wire.Ints) > 0 {
			backing = wire.Ints
		}
	case Uint8:
		if len(wire.Uint8s) > 0 {
			backing = wire.Uint8s
		}
	default:
		return fmt.Errorf("numeric: unknown dtype %d in encoded array", wire.Kind)
	}
	if backing == nil {
		return fmt.Errorf("numeric: encoded array is missing %s elements", wire.Kind)
	}
	restored := newArray(backing, wire.Shape...)
	a.data = restored.data
	a.kind = wire.Kind
	a.device = wire.Device
	return nil
}
