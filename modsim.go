/*
Package modsim implements the register-level data model of a simulated
modbus field device (RTU/PLC/sensor).

A declarative text template describes the device identity, its link
configuration and its registers. modsim parses the template into typed
register descriptors, allocates sequential or sparse backing blocks per
register class, seeds the default values and keeps the values evolving on
a timer, either generically or by mirroring an external simulator. The
resulting slave context is served over modbus TCP/UDP/RTU by the
transport library.
*/
package modsim

import (
	"fmt"
)

// AddressMax is the largest register address a template may declare.
const AddressMax = 99999

// RegisterClass is one of the four modbus addressable tables.
type RegisterClass byte

const (
	// HoldingRegister 16-bit, read/write from the network side.
	HoldingRegister RegisterClass = iota
	// InputRegister 16-bit, read only from the network side.
	InputRegister
	// DiscreteInput single bit, read only from the network side.
	DiscreteInput
	// Coil single bit, read/write from the network side.
	Coil
)

func (c RegisterClass) String() string {
	switch c {
	case HoldingRegister:
		return "holding"
	case InputRegister:
		return "input register"
	case DiscreteInput:
		return "discrete input"
	case Coil:
		return "coil"
	}
	return "unknown"
}

// Writable reports whether the class accepts network-side writes.
func (c RegisterClass) Writable() bool {
	return c == HoldingRegister || c == Coil
}

// Bit reports whether the class is a single-bit table.
func (c RegisterClass) Bit() bool {
	return c == DiscreteInput || c == Coil
}

// ParseRegisterClass maps a template registerType tag to its register class.
// The tags follow the device template grammar: analog is an input register,
// input is a discrete input.
func ParseRegisterClass(s string) (RegisterClass, error) {
	switch s {
	case "holding":
		return HoldingRegister, nil
	case "analog":
		return InputRegister, nil
	case "input":
		return DiscreteInput, nil
	case "coil":
		return Coil, nil
	}
	return 0, fmt.Errorf("modsim: unknown register type %q", s)
}

// Encoding tags how a parameter value is laid out in its register words.
type Encoding byte

const (
	Int8 Encoding = iota
	UInt8
	Int16
	UInt16
	Int32
	UInt32
	Int64
	UInt64
	Float32
	Float64
	Boolean
	BitField
	AsciiString
)

func (e Encoding) String() string {
	switch e {
	case Int8:
		return "int8"
	case UInt8:
		return "uint8"
	case Int16:
		return "int16"
	case UInt16:
		return "uint16"
	case Int32:
		return "int32"
	case UInt32:
		return "uint32"
	case Int64:
		return "int64"
	case UInt64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Boolean:
		return "boolean"
	case BitField:
		return "bitfield"
	case AsciiString:
		return "string"
	}
	return "unknown"
}

// Quantity returns the canonical number of 16-bit words the encoding
// occupies, 0 when the length must be caller supplied (AsciiString).
func (e Encoding) Quantity() uint16 {
	switch e {
	case Int8, UInt8, Int16, UInt16, Boolean, BitField:
		return 1
	case Int32, UInt32, Float32:
		return 2
	case Int64, UInt64, Float64:
		return 4
	}
	return 0
}

// Bounds returns the encoding's natural numeric range. ok is false for
// AsciiString, which has no numeric range.
func (e Encoding) Bounds() (min, max float64, ok bool) {
	switch e {
	case Int8:
		return -128, 127, true
	case UInt8:
		return 0, 255, true
	case Int16:
		return -32768, 32767, true
	case UInt16, BitField:
		return 0, 65535, true
	case Int32:
		return -2147483648, 2147483647, true
	case UInt32:
		return 0, 4294967295, true
	case Int64:
		return -9223372036854775808, 9223372036854775807, true
	case UInt64:
		return 0, 18446744073709551615, true
	case Float32:
		return -3.4028234663852886e+38, 3.4028234663852886e+38, true
	case Float64:
		return -1.7976931348623157e+308, 1.7976931348623157e+308, true
	case Boolean:
		return 0, 1, true
	}
	return 0, 0, false
}

// ParseEncoding maps a template encoding tag to its Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "int8":
		return Int8, nil
	case "uint8":
		return UInt8, nil
	case "int16":
		return Int16, nil
	case "uint16":
		return UInt16, nil
	case "int32":
		return Int32, nil
	case "uint32":
		return UInt32, nil
	case "int64":
		return Int64, nil
	case "uint64":
		return UInt64, nil
	case "float32":
		return Float32, nil
	case "float64":
		return Float64, nil
	case "boolean":
		return Boolean, nil
	case "bitfield":
		return BitField, nil
	case "string":
		return AsciiString, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, s)
}

// ByteOrder governs byte packing within one 16-bit register word.
type ByteOrder byte

const (
	// BigEndian high byte first, the modbus canonical order.
	BigEndian ByteOrder = iota
	// LittleEndian low byte first.
	LittleEndian
)

func (o ByteOrder) String() string {
	if o == LittleEndian {
		return "lsb"
	}
	return "msb"
}

// WordOrder governs the order of words within a multi-word value.
type WordOrder byte

const (
	// HighWordFirst most significant word first.
	HighWordFirst WordOrder = iota
	// LowWordFirst least significant word first.
	LowWordFirst
)

func (o WordOrder) String() string {
	if o == LowWordFirst {
		return "lsw"
	}
	return "msw"
}

// Function codes of the consumed protocol server contract.
const (
	FuncCodeReadCoils              = 1
	FuncCodeReadDiscreteInputs     = 2
	FuncCodeReadHoldingRegisters   = 3
	FuncCodeReadInputRegisters     = 4
	FuncCodeWriteSingleCoil        = 5
	FuncCodeWriteSingleRegister    = 6
	FuncCodeWriteMultipleCoils     = 15
	FuncCodeWriteMultipleRegisters = 16
)

// classForFuncCode maps a function code to the register class it addresses.
func classForFuncCode(funcCode uint8) (RegisterClass, error) {
	switch funcCode {
	case FuncCodeReadCoils, FuncCodeWriteSingleCoil, FuncCodeWriteMultipleCoils:
		return Coil, nil
	case FuncCodeReadDiscreteInputs:
		return DiscreteInput, nil
	case FuncCodeReadHoldingRegisters, FuncCodeWriteSingleRegister, FuncCodeWriteMultipleRegisters:
		return HoldingRegister, nil
	case FuncCodeReadInputRegisters:
		return InputRegister, nil
	}
	return 0, fmt.Errorf("modsim: function code 0x%02x has no register class", funcCode)
}
