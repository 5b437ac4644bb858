package modsim

// Conversion between one abstract parameter value and the fixed sequence of
// 16-bit register words it occupies. The canonical layout is big endian
// bytes, high word first; byte order and word order reorder that image
// independently. decode(encode(v)) == v for every representable v.

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Encode converts value into the ordered register words for enc. quantity
// is the number of words to produce; 0 means the encoding's canonical
// word length (AsciiString always needs an explicit quantity). Values
// outside the encoding's representable range fail with a RangeError
// rather than silently truncating.
func Encode(value interface{}, enc Encoding, quantity uint16, byteOrder ByteOrder, wordOrder WordOrder) ([]uint16, error) {
	if quantity == 0 {
		quantity = enc.Quantity()
	}
	switch enc {
	case AsciiString:
		if quantity == 0 {
			return nil, fmt.Errorf("modsim: %s encoding needs an explicit length", enc)
		}
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("modsim: cannot encode %T as %s", value, enc)
		}
		if len(s) > int(quantity)*2 {
			return nil, fmt.Errorf("modsim: string %q exceeds %d registers", s, quantity)
		}
		b := make([]byte, int(quantity)*2)
		copy(b, s)
		return packWords(b, byteOrder, wordOrder), nil
	case Boolean:
		on, err := boolValue(value)
		if err != nil {
			return nil, err
		}
		b := []byte{0, 0}
		if on {
			b[1] = 1
		}
		return packWords(b, byteOrder, wordOrder), nil
	}

	image, err := numericImage(value, enc)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, image)
	return packWords(b[8-int(quantity)*2:], byteOrder, wordOrder), nil
}

// Decode converts register words back into an abstract value. Signed
// encodings decode to int64, unsigned ones to uint64, floats to float64,
// Boolean to bool and AsciiString to a string trimmed of trailing padding.
func Decode(words []uint16, enc Encoding, byteOrder ByteOrder, wordOrder WordOrder) (interface{}, error) {
	if enc != AsciiString {
		if want := enc.Quantity(); len(words) != int(want) {
			return nil, fmt.Errorf("modsim: %s needs %d registers, got %d", enc, want, len(words))
		}
	} else if len(words) == 0 {
		return nil, fmt.Errorf("modsim: %s needs at least one register", enc)
	}
	b := unpackWords(words, byteOrder, wordOrder)

	switch enc {
	case AsciiString:
		return strings.TrimRight(string(b), "\x00 "), nil
	case Boolean:
		return binary.BigEndian.Uint16(b) != 0, nil
	case Int8:
		return int64(int8(b[1])), nil
	case UInt8:
		return uint64(b[1]), nil
	case Int16:
		return int64(int16(binary.BigEndian.Uint16(b))), nil
	case UInt16, BitField:
		return uint64(binary.BigEndian.Uint16(b)), nil
	case Int32:
		return int64(int32(binary.BigEndian.Uint32(b))), nil
	case UInt32:
		return uint64(binary.BigEndian.Uint32(b)), nil
	case Int64:
		return int64(binary.BigEndian.Uint64(b)), nil
	case UInt64:
		return binary.BigEndian.Uint64(b), nil
	case Float32:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b))), nil
	case Float64:
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnsupportedEncoding, enc)
}

// packWords slices the canonical big endian byte image into words and
// applies byte order then word order.
func packWords(b []byte, byteOrder ByteOrder, wordOrder WordOrder) []uint16 {
	words := make([]uint16, len(b)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(b[2*i:])
	}
	if byteOrder == LittleEndian {
		for i, w := range words {
			words[i] = w>>8 | w<<8
		}
	}
	if wordOrder == LowWordFirst {
		for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
			words[i], words[j] = words[j], words[i]
		}
	}
	return words
}

// unpackWords is the inverse of packWords.
func unpackWords(words []uint16, byteOrder ByteOrder, wordOrder WordOrder) []byte {
	ordered := make([]uint16, len(words))
	copy(ordered, words)
	if wordOrder == LowWordFirst {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}
	if byteOrder == LittleEndian {
		for i, w := range ordered {
			ordered[i] = w>>8 | w<<8
		}
	}
	b := make([]byte, len(ordered)*2)
	for i, w := range ordered {
		binary.BigEndian.PutUint16(b[2*i:], w)
	}
	return b
}

// numericImage range-checks value for enc and returns its canonical bit
// image, right aligned in a uint64.
func numericImage(value interface{}, enc Encoding) (uint64, error) {
	switch enc {
	case Float32:
		f, err := floatValue(value)
		if err != nil {
			return 0, err
		}
		if f < -math.MaxFloat32 || f > math.MaxFloat32 {
			return 0, &RangeError{enc, f}
		}
		return uint64(math.Float32bits(float32(f))), nil
	case Float64:
		f, err := floatValue(value)
		if err != nil {
			return 0, err
		}
		return math.Float64bits(f), nil
	case Int8, Int16, Int32, Int64:
		i, err := intValue(value, enc)
		if err != nil {
			return 0, err
		}
		switch enc {
		case Int8:
			return uint64(uint8(int8(i))), nil
		case Int16:
			return uint64(uint16(int16(i))), nil
		case Int32:
			return uint64(uint32(int32(i))), nil
		default:
			return uint64(i), nil
		}
	case UInt8, UInt16, UInt32, UInt64, BitField:
		return uintValue(value, enc)
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedEncoding, enc)
}

// intValue coerces value to a signed integer within enc's bounds.
func intValue(value interface{}, enc Encoding) (int64, error) {
	var i int64
	switch v := value.(type) {
	case int:
		i = int64(v)
	case int8:
		i = int64(v)
	case int16:
		i = int64(v)
	case int32:
		i = int64(v)
	case int64:
		i = v
	case uint:
		i = int64(v)
	case uint8:
		i = int64(v)
	case uint16:
		i = int64(v)
	case uint32:
		i = int64(v)
	case uint64:
		if v > math.MaxInt64 {
			return 0, &RangeError{enc, float64(v)}
		}
		i = int64(v)
	case float32:
		return intFromFloat(float64(v), enc)
	case float64:
		return intFromFloat(v, enc)
	default:
		return 0, fmt.Errorf("modsim: cannot encode %T as %s", value, enc)
	}
	if min, max, ok := enc.Bounds(); ok && (float64(i) < min || float64(i) > max) {
		return 0, &RangeError{enc, float64(i)}
	}
	return i, nil
}

func intFromFloat(f float64, enc Encoding) (int64, error) {
	min, max, _ := enc.Bounds()
	if f < min || f > max || math.IsNaN(f) {
		return 0, &RangeError{enc, f}
	}
	return int64(f), nil
}

// uintValue coerces value to enc's unsigned bit image within bounds.
func uintValue(value interface{}, enc Encoding) (uint64, error) {
	var u uint64
	switch v := value.(type) {
	case int:
		if v < 0 {
			return 0, &RangeError{enc, float64(v)}
		}
		u = uint64(v)
	case int8, int16, int32, int64:
		i, err := intValue(v, Int64)
		if err != nil {
			return 0, err
		}
		if i < 0 {
			return 0, &RangeError{enc, float64(i)}
		}
		u = uint64(i)
	case uint:
		u = uint64(v)
	case uint8:
		u = uint64(v)
	case uint16:
		u = uint64(v)
	case uint32:
		u = uint64(v)
	case uint64:
		u = v
	case float32:
		return uintFromFloat(float64(v), enc)
	case float64:
		return uintFromFloat(v, enc)
	default:
		return 0, fmt.Errorf("modsim: cannot encode %T as %s", value, enc)
	}
	if _, max, ok := enc.Bounds(); ok && float64(u) > max {
		return 0, &RangeError{enc, float64(u)}
	}
	return u, nil
}

func uintFromFloat(f float64, enc Encoding) (uint64, error) {
	_, max, _ := enc.Bounds()
	if f < 0 || f > max || math.IsNaN(f) {
		return 0, &RangeError{enc, f}
	}
	return uint64(f), nil
}

// floatValue coerces value to float64.
func floatValue(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("modsim: cannot encode %T as a float", value)
}

// boolValue accepts bool and numeric 0/1.
func boolValue(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	default:
		f, err := floatValue(value)
		if err != nil {
			return false, fmt.Errorf("modsim: cannot encode %T as %s", v, Boolean)
		}
		switch f {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return false, &RangeError{Boolean, f}
	}
}

// asFloat views a decoded value numerically, for comparison and for the
// generic update rules. Strings are not numeric.
func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case nil, string:
		return 0, false
	default:
		f, err := floatValue(value)
		return f, err == nil
	}
}
