package modsim

import (
	"fmt"
	"math"
)

// Descriptor describes one device parameter: its identity, register
// placement, value constraints and encoding. One parameter may span
// several physical registers. A descriptor is immutable after
// construction; its live value resides in the backing block and moves
// through Encode/Decode only.
type Descriptor struct {
	ParamID  uint32
	Name     string
	DeviceID int
	Class    RegisterClass
	Address  uint32
	Quantity uint16
	Encoding Encoding
	// Default seeds the backing block, nil leaves the registers zeroed.
	Default interface{}
	// Min and Max bound the value. When the template omits them they are
	// derived from the encoding's natural range.
	Min float64
	Max float64

	ByteOrder ByteOrder
	WordOrder WordOrder
}

// NewDescriptor validates d, fills the derived fields and returns the
// finished descriptor.
func NewDescriptor(d Descriptor) (*Descriptor, error) {
	if d.Address > AddressMax {
		return nil, &AddressRangeError{d.Address}
	}

	canonical := d.Encoding.Quantity()
	switch {
	case d.Encoding == AsciiString:
		if d.Quantity == 0 {
			return nil, fmt.Errorf("modsim: param %d: %s encoding needs a length", d.ParamID, d.Encoding)
		}
	case d.Quantity == 0:
		d.Quantity = canonical
	case d.Quantity != canonical:
		return nil, fmt.Errorf("modsim: param %d: %s occupies %d registers, not %d",
			d.ParamID, d.Encoding, canonical, d.Quantity)
	}

	min, max, numeric := d.Encoding.Bounds()
	if math.IsNaN(d.Min) {
		d.Min = min
	}
	if math.IsNaN(d.Max) {
		d.Max = max
	}
	if numeric {
		if d.Min > d.Max {
			return nil, fmt.Errorf("modsim: param %d: min %v above max %v", d.ParamID, d.Min, d.Max)
		}
		if def, ok := asFloat(d.Default); ok && (def < d.Min || def > d.Max) {
			return nil, fmt.Errorf("modsim: param %d: default %v outside [%v, %v]", d.ParamID, def, d.Min, d.Max)
		}
	}
	return &d, nil
}

// Value reads and decodes the descriptor's current value from its
// backing block.
func (sf *Descriptor) Value(b DataBlock) (interface{}, error) {
	words, err := b.GetValues(sf.Address, sf.Quantity)
	if err != nil {
		return nil, err
	}
	return Decode(words, sf.Encoding, sf.ByteOrder, sf.WordOrder)
}

// SetValue encodes v and writes it into the descriptor's backing block.
func (sf *Descriptor) SetValue(b DataBlock, v interface{}) error {
	words, err := Encode(v, sf.Encoding, sf.Quantity, sf.ByteOrder, sf.WordOrder)
	if err != nil {
		return err
	}
	return b.SetValues(sf.Address, words)
}
