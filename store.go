package modsim

// Backing storage for the register tables. One block per register class,
// guarded by a single lock per block so a multi-word value is always read
// or written as a consistent snapshot.

import (
	"sync"
)

// DataBlock is the backing storage of one register class. Implementations
// are safe for concurrent use.
type DataBlock interface {
	// Validate reports whether [address, address+count) is covered.
	Validate(address uint32, count uint16) bool
	// GetValues returns a copy of the words at [address, address+count),
	// or ErrIllegalAddress if the range is not covered.
	GetValues(address uint32, count uint16) ([]uint16, error)
	// SetValues stores values starting at address, or ErrIllegalAddress
	// if the range is not covered.
	SetValues(address uint32, values []uint16) error
}

// SequentialBlock covers one contiguous address range. Positions are
// relative to the base address, not to address 0.
type SequentialBlock struct {
	rw    sync.RWMutex
	base  uint32
	words []uint16
}

// NewSequentialBlock creates a block covering [base, base+len(words)).
func NewSequentialBlock(base uint32, words []uint16) *SequentialBlock {
	return &SequentialBlock{base: base, words: words}
}

// Validate reports whether [address, address+count) is inside the range.
func (sf *SequentialBlock) Validate(address uint32, count uint16) bool {
	return address >= sf.base && uint64(address)+uint64(count) <= uint64(sf.base)+uint64(len(sf.words))
}

// GetValues returns a copy of the words at [address, address+count).
func (sf *SequentialBlock) GetValues(address uint32, count uint16) ([]uint16, error) {
	sf.rw.RLock()
	defer sf.rw.RUnlock()
	if !sf.Validate(address, count) {
		return nil, ErrIllegalAddress
	}
	start := address - sf.base
	result := make([]uint16, count)
	copy(result, sf.words[start:start+uint32(count)])
	return result, nil
}

// SetValues stores values starting at address.
func (sf *SequentialBlock) SetValues(address uint32, values []uint16) error {
	sf.rw.Lock()
	defer sf.rw.Unlock()
	if !sf.Validate(address, uint16(len(values))) {
		return ErrIllegalAddress
	}
	start := address - sf.base
	copy(sf.words[start:start+uint32(len(values))], values)
	return nil
}

// SparseBlock covers only declared addresses.
type SparseBlock struct {
	rw     sync.RWMutex
	values map[uint32]uint16
}

// NewSparseBlock creates a block covering exactly the keys of values.
func NewSparseBlock(values map[uint32]uint16) *SparseBlock {
	if values == nil {
		values = make(map[uint32]uint16)
	}
	return &SparseBlock{values: values}
}

// Validate reports whether every address of [address, address+count) is declared.
func (sf *SparseBlock) Validate(address uint32, count uint16) bool {
	for i := uint32(0); i < uint32(count); i++ {
		if _, ok := sf.values[address+i]; !ok {
			return false
		}
	}
	return count > 0
}

// GetValues returns a copy of the words at [address, address+count).
func (sf *SparseBlock) GetValues(address uint32, count uint16) ([]uint16, error) {
	sf.rw.RLock()
	defer sf.rw.RUnlock()
	if !sf.Validate(address, count) {
		return nil, ErrIllegalAddress
	}
	result := make([]uint16, count)
	for i := range result {
		result[i] = sf.values[address+uint32(i)]
	}
	return result, nil
}

// SetValues stores values starting at address.
func (sf *SparseBlock) SetValues(address uint32, values []uint16) error {
	sf.rw.Lock()
	defer sf.rw.Unlock()
	if !sf.Validate(address, uint16(len(values))) {
		return ErrIllegalAddress
	}
	for i, v := range values {
		sf.values[address+uint32(i)] = v
	}
	return nil
}

// BuildBlocks allocates one backing block per register class populated by
// descs. With sparse set, each block declares exactly the addresses the
// descriptors cover. Otherwise a class gets one contiguous block over
// [min(address), max(address+quantity)), so the last descriptor's full
// span is always covered.
func BuildBlocks(descs []*Descriptor, sparse bool) map[RegisterClass]DataBlock {
	byClass := make(map[RegisterClass][]*Descriptor)
	for _, d := range descs {
		byClass[d.Class] = append(byClass[d.Class], d)
	}

	blocks := make(map[RegisterClass]DataBlock, len(byClass))
	for class, list := range byClass {
		if sparse {
			values := make(map[uint32]uint16)
			for _, d := range list {
				for i := uint32(0); i < uint32(d.Quantity); i++ {
					values[d.Address+i] = 0
				}
			}
			blocks[class] = NewSparseBlock(values)
			continue
		}
		min, end := list[0].Address, uint64(0)
		for _, d := range list {
			if d.Address < min {
				min = d.Address
			}
			if span := uint64(d.Address) + uint64(d.Quantity); span > end {
				end = span
			}
		}
		blocks[class] = NewSequentialBlock(min, make([]uint16, end-uint64(min)))
	}
	return blocks
}
