package modsim

import (
	"math"
	"testing"
)

func TestNewDescriptor(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name    string
		d       Descriptor
		wantErr bool
	}{
		{"canonical quantity filled", Descriptor{ParamID: 1, Encoding: Float32, Min: nan, Max: nan}, false},
		{"explicit canonical quantity", Descriptor{ParamID: 1, Encoding: Float32, Quantity: 2, Min: nan, Max: nan}, false},
		{"string with length", Descriptor{ParamID: 1, Encoding: AsciiString, Quantity: 4, Min: nan, Max: nan}, false},
		{"default inside bounds", Descriptor{ParamID: 1, Encoding: UInt16, Default: 100.0, Min: 5, Max: 200}, false},
		{"bool default", Descriptor{ParamID: 1, Encoding: Boolean, Default: true, Min: nan, Max: nan}, false},

		{"address out of range", Descriptor{ParamID: 1, Address: AddressMax + 1, Encoding: UInt16, Min: nan, Max: nan}, true},
		{"quantity mismatch", Descriptor{ParamID: 1, Encoding: Float32, Quantity: 1, Min: nan, Max: nan}, true},
		{"string without length", Descriptor{ParamID: 1, Encoding: AsciiString, Min: nan, Max: nan}, true},
		{"min above max", Descriptor{ParamID: 1, Encoding: UInt16, Min: 10, Max: 5}, true},
		{"default below min", Descriptor{ParamID: 1, Encoding: UInt16, Default: 1.0, Min: 5, Max: 200}, true},
		{"default above max", Descriptor{ParamID: 1, Encoding: UInt16, Default: 201.0, Min: 5, Max: 200}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDescriptor(tt.d)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewDescriptor() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewDescriptorDerivedBounds(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name     string
		enc      Encoding
		wantMin  float64
		wantMax  float64
		quantity uint16
	}{
		{"int16", Int16, -32768, 32767, 0},
		{"uint16", UInt16, 0, 65535, 0},
		{"boolean", Boolean, 0, 1, 0},
		{"uint32", UInt32, 0, 4294967295, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDescriptor(Descriptor{ParamID: 1, Encoding: tt.enc, Quantity: tt.quantity, Min: nan, Max: nan})
			if err != nil {
				t.Fatalf("NewDescriptor() error = %v", err)
			}
			if d.Min != tt.wantMin || d.Max != tt.wantMax {
				t.Errorf("bounds = [%v, %v], want [%v, %v]", d.Min, d.Max, tt.wantMin, tt.wantMax)
			}
			if d.Quantity != tt.enc.Quantity() {
				t.Errorf("Quantity = %d, want %d", d.Quantity, tt.enc.Quantity())
			}
		})
	}
}

func TestDescriptorValueRoundTrip(t *testing.T) {
	d := mustDescriptor(t, Descriptor{ParamID: 5, Class: InputRegister, Address: 11, Encoding: Float32})
	b := NewSequentialBlock(10, make([]uint16, 3))

	if err := d.SetValue(b, 21.5); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	words, err := b.GetValues(11, 2)
	if err != nil {
		t.Fatalf("GetValues() error = %v", err)
	}
	if words[0] != 0x41AC || words[1] != 0 {
		t.Errorf("raw words = %#v, want [0x41AC, 0x0000]", words)
	}
	v, err := d.Value(b)
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if v != 21.5 {
		t.Errorf("Value() = %v, want 21.5", v)
	}
}

func TestDescriptorSetValueRangeError(t *testing.T) {
	d := mustDescriptor(t, Descriptor{ParamID: 1, Class: HoldingRegister, Address: 0, Encoding: UInt16})
	b := NewSequentialBlock(0, make([]uint16, 1))
	before, _ := b.GetValues(0, 1)

	if err := d.SetValue(b, -1); err == nil {
		t.Fatal("SetValue(-1) must fail for uint16")
	}
	after, _ := b.GetValues(0, 1)
	if before[0] != after[0] {
		t.Error("a rejected write must leave the register untouched")
	}
}
