package modsim

import (
	"fmt"
)

// DeviceIdentity carries the vendor and product metadata of the
// simulated device. Immutable after parse.
type DeviceIdentity struct {
	VendorName         string
	ProductCode        string
	VendorURL          string
	ProductName        string
	ModelName          string
	MajorMinorRevision string
}

// SlaveContext owns one device identity, the backing blocks of the
// register classes the template populates, and the full descriptor list.
// It is the unit handed to the protocol server; server requests and the
// simulation updater both go through it, never through raw words.
type SlaveContext struct {
	identity    DeviceIdentity
	slaveID     uint8
	zeroMode    bool
	blocks      map[RegisterClass]DataBlock
	descriptors []*Descriptor
}

// NewSlaveContext allocates the backing blocks for t's descriptors and
// seeds every declared default through the codec.
func NewSlaveContext(t *Template) (*SlaveContext, error) {
	sf := &SlaveContext{
		identity:    t.Identity,
		slaveID:     t.Network.NetworkID,
		zeroMode:    t.Network.PLCBaseAddress == 0,
		blocks:      BuildBlocks(t.Descriptors, t.Sparse),
		descriptors: t.Descriptors,
	}
	for _, d := range t.Descriptors {
		if d.Default == nil {
			continue
		}
		if err := sf.WriteParam(d, d.Default); err != nil {
			return nil, fmt.Errorf("modsim: seeding param %d default: %w", d.ParamID, err)
		}
	}
	return sf, nil
}

// Identity returns the device identity.
func (sf *SlaveContext) Identity() DeviceIdentity { return sf.identity }

// SlaveID returns the device's network id.
func (sf *SlaveContext) SlaveID() uint8 { return sf.slaveID }

// ZeroMode reports whether wire address 0 addresses register 0 directly.
func (sf *SlaveContext) ZeroMode() bool { return sf.zeroMode }

// Descriptors returns the device's register descriptors in template order.
func (sf *SlaveContext) Descriptors() []*Descriptor { return sf.descriptors }

// Block returns the backing block of a register class, if populated.
func (sf *SlaveContext) Block(c RegisterClass) (DataBlock, bool) {
	b, ok := sf.blocks[c]
	return b, ok
}

// translate rebases a wire address onto the device's register numbering.
// Without zero mode, wire addresses are 0 based against 1 based registers.
func (sf *SlaveContext) translate(address uint32) uint32 {
	if sf.zeroMode {
		return address
	}
	return address + 1
}

// GetValues answers a read request of the protocol server: count raw
// words of the table funcCode addresses, starting at the wire address.
func (sf *SlaveContext) GetValues(funcCode uint8, address uint32, count uint16) ([]uint16, error) {
	class, err := classForFuncCode(funcCode)
	if err != nil {
		return nil, err
	}
	b, ok := sf.blocks[class]
	if !ok {
		return nil, ErrIllegalAddress
	}
	return b.GetValues(sf.translate(address), count)
}

// SetValues answers a write request of the protocol server.
func (sf *SlaveContext) SetValues(funcCode uint8, address uint32, values []uint16) error {
	class, err := classForFuncCode(funcCode)
	if err != nil {
		return err
	}
	b, ok := sf.blocks[class]
	if !ok {
		return ErrIllegalAddress
	}
	return b.SetValues(sf.translate(address), values)
}

// ReadParam decodes d's current value from its backing block.
func (sf *SlaveContext) ReadParam(d *Descriptor) (interface{}, error) {
	b, ok := sf.blocks[d.Class]
	if !ok {
		return nil, &AllocationGapError{d.Class, d.Address, d.Quantity}
	}
	return d.Value(b)
}

// WriteParam encodes v and stores it as d's value.
func (sf *SlaveContext) WriteParam(d *Descriptor, v interface{}) error {
	b, ok := sf.blocks[d.Class]
	if !ok {
		return &AllocationGapError{d.Class, d.Address, d.Quantity}
	}
	return d.SetValue(b, v)
}
