package modsim

import (
	"errors"
	"fmt"
)

var (
	// ErrTemplateNotFound the template source could not be read at all.
	ErrTemplateNotFound = errors.New("modsim: template not found")
	// ErrNoDeviceDescription the template carries no device description line.
	ErrNoDeviceDescription = errors.New("modsim: template has no device description")
	// ErrNoRegisters the template declares no usable register at all.
	ErrNoRegisters = errors.New("modsim: template declares no registers")
	// ErrUnsupportedEncoding the encoding tag is not recognized.
	ErrUnsupportedEncoding = errors.New("modsim: unsupported encoding")
	// ErrIllegalAddress an access fell outside a block's declared range.
	// Undeclared addresses must not silently succeed.
	ErrIllegalAddress = errors.New("modsim: illegal data address")
)

// AddressRangeError reports a template address outside [0, AddressMax].
type AddressRangeError struct {
	Address uint32
}

func (e *AddressRangeError) Error() string {
	return fmt.Sprintf("modsim: address %d out of range [0, %d]", e.Address, AddressMax)
}

// RangeError reports a value outside its encoding's representable range.
type RangeError struct {
	Encoding Encoding
	Value    float64
}

func (e *RangeError) Error() string {
	min, max, _ := e.Encoding.Bounds()
	return fmt.Sprintf("modsim: value %v not representable as %s [%v, %v]", e.Value, e.Encoding, min, max)
}

// AllocationGapError reports a descriptor whose register class got no
// backing block, or whose span exceeds the allocated range.
type AllocationGapError struct {
	Class    RegisterClass
	Address  uint32
	Quantity uint16
}

func (e *AllocationGapError) Error() string {
	return fmt.Sprintf("modsim: %s block does not cover address %d quantity %d", e.Class, e.Address, e.Quantity)
}
