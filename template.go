package modsim

// Parsing of the declarative device template. The grammar is line
// oriented; a line's form is decided by a fixed literal prefix and its
// fields are ";" separated key=value tokens in any order. A malformed
// line is logged and dropped, it never aborts the rest of the device.

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Line prefixes of the device template grammar.
const (
	prefixDeviceDesc = "/**DEVICE_DESC"
	prefixSimPort    = "/**SIM_PORT"
	prefixRegister   = "/*REGISTER"
	prefixNetwork    = "deviceId"
	prefixMapping    = "paramId"
)

// DefaultTemplate is the built-in reference device: one coil, one
// discrete input, one holding register and two input registers.
const DefaultTemplate = `/**DEVICE_DESC;VendorName=ModSim;ProductCode=MS;VendorUrl=https://github.com/thinkgos/modsim;ProductName=ModSim Server;ModelName=Reference RTU;MajorMinorRevision=1.0
/**SIM_PORT;port=tcp:1502;mode=tcp;baudRate=9600;dataBits=8;parity=none;stopBits=1
deviceId=1;networkId=1;plcBaseAddress=1;byteOrder=msb;wordOrder=msw
/*REGISTER;paramId=1;name=PumpRun;default=0
paramId=1;deviceId=1;registerType=coil;address=1;encoding=boolean
/*REGISTER;paramId=2;name=DoorOpen;default=0
paramId=2;deviceId=1;registerType=input;address=1;encoding=boolean
/*REGISTER;paramId=3;name=Setpoint;default=100;min=5;max=200
paramId=3;deviceId=1;registerType=holding;address=1;encoding=uint16
/*REGISTER;paramId=4;name=Humidity;default=500;min=0;max=1000
paramId=4;deviceId=1;registerType=analog;address=10;encoding=int16
/*REGISTER;paramId=5;name=Temperature;default=21.5;min=-50;max=60
paramId=5;deviceId=1;registerType=analog;address=11;encoding=float32
`

// LinkConfig is the transport side of the template.
type LinkConfig struct {
	// Port is "tcp:PORT", "udp:PORT" or a serial device name.
	Port string
	// Mode is tcp, rtu or ascii.
	Mode     string
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
}

// NetworkConfig is the device's link-layer addressing.
type NetworkConfig struct {
	DeviceID  int
	NetworkID uint8
	// PLCBaseAddress 1 means wire address a addresses device register a+1,
	// 0 means addresses are served as declared.
	PLCBaseAddress int
	ByteOrder      ByteOrder
	WordOrder      WordOrder
}

// Template is the parsed device description.
type Template struct {
	Identity    DeviceIdentity
	Link        LinkConfig
	Network     NetworkConfig
	Sparse      bool
	Descriptors []*Descriptor
}

// registerMeta holds a register description line until its mapping line
// shows up. Raw strings, interpreted once the encoding is known.
type registerMeta struct {
	name     string
	def      string
	min      string
	max      string
	line     int
	consumed bool
}

// mappingLine holds one register mapping line before composition.
type mappingLine struct {
	paramID  uint32
	deviceID int
	class    RegisterClass
	address  uint32
	encoding Encoding
	quantity uint16
	line     int
}

// Parser turns template text into a Template.
type Parser struct {
	clogs
}

// NewParser creates a template parser with logging disabled.
func NewParser() *Parser {
	return &Parser{newClogs("modsim template => ")}
}

// Load reads a device template from a file path or an http(s) URL; an
// empty source yields the built-in DefaultTemplate.
func (sf *Parser) Load(source string) (*Template, error) {
	switch {
	case source == "":
		return sf.Parse(strings.NewReader(DefaultTemplate))
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		resp, err := http.Get(source)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTemplateNotFound, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: %s answered %s", ErrTemplateNotFound, source, resp.Status)
		}
		return sf.Parse(resp.Body)
	default:
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTemplateNotFound, err)
		}
		defer f.Close()
		return sf.Parse(f)
	}
}

// Parse reads template lines and returns the device description. Bad
// lines are logged and skipped; missing device description or an empty
// register set is fatal.
func (sf *Parser) Parse(r io.Reader) (*Template, error) {
	t := &Template{
		Link: LinkConfig{
			Port: "tcp:502", Mode: "tcp",
			BaudRate: 9600, DataBits: 8, Parity: "none", StopBits: 1,
		},
		Network: NetworkConfig{DeviceID: 1, NetworkID: 1, PLCBaseAddress: 1},
	}
	metas := make(map[uint32]*registerMeta)
	var mappings []mappingLine
	hasDesc := false

	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, prefixDeviceDesc):
			sf.parseDeviceDesc(t, n, line)
			hasDesc = true
		case strings.HasPrefix(line, prefixSimPort):
			sf.parseSimPort(t, n, line)
		case strings.HasPrefix(line, prefixRegister):
			sf.parseRegisterMeta(metas, n, line)
		case strings.HasPrefix(line, prefixNetwork):
			sf.parseNetwork(t, n, line)
		case strings.HasPrefix(line, prefixMapping):
			if m, ok := sf.parseMapping(n, line); ok {
				mappings = append(mappings, m)
			}
		default:
			sf.Errorf("line %d: unrecognized form, skipped: %q", n, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("modsim: reading template: %w", err)
	}
	if !hasDesc {
		return nil, ErrNoDeviceDescription
	}

	for _, m := range mappings {
		d, err := sf.compose(t, m, metas[m.paramID])
		if err != nil {
			sf.Errorf("line %d: param %d dropped: %v", m.line, m.paramID, err)
			continue
		}
		t.Descriptors = append(t.Descriptors, d)
	}
	for id, meta := range metas {
		if !meta.consumed {
			sf.Errorf("line %d: register description for param %d has no mapping line", meta.line, id)
		}
	}
	if len(t.Descriptors) == 0 {
		return nil, ErrNoRegisters
	}
	return t, nil
}

// fields tokenizes a template line into key=value pairs. A token with no
// "=" becomes a bare flag with an empty value.
func fields(line string) map[string]string {
	m := make(map[string]string)
	for _, tok := range strings.Split(line, ";") {
		tok = strings.TrimSpace(tok)
		if tok == "" || strings.HasPrefix(tok, "/*") {
			continue
		}
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) == 1 {
			m[kv[0]] = ""
			continue
		}
		m[kv[0]] = kv[1]
	}
	return m
}

// warnUnknown logs every key not in the known set; unknown keys are
// ignored deterministically, never prefix-matched.
func (sf *Parser) warnUnknown(n int, m map[string]string, known ...string) {
	for k := range m {
		ok := false
		for _, w := range known {
			if k == w {
				ok = true
				break
			}
		}
		if !ok {
			sf.Errorf("line %d: unknown key %q ignored", n, k)
		}
	}
}

func (sf *Parser) parseDeviceDesc(t *Template, n int, line string) {
	m := fields(line)
	sf.warnUnknown(n, m, "VendorName", "ProductCode", "VendorUrl", "ProductName",
		"ModelName", "MajorMinorRevision", "sparse")
	t.Identity = DeviceIdentity{
		VendorName:         m["VendorName"],
		ProductCode:        m["ProductCode"],
		VendorURL:          m["VendorUrl"],
		ProductName:        m["ProductName"],
		ModelName:          m["ModelName"],
		MajorMinorRevision: m["MajorMinorRevision"],
	}
	_, t.Sparse = m["sparse"]
}

func (sf *Parser) parseSimPort(t *Template, n int, line string) {
	m := fields(line)
	sf.warnUnknown(n, m, "port", "mode", "baudRate", "dataBits", "parity", "stopBits")
	if v, ok := m["port"]; ok && v != "" {
		t.Link.Port = v
	}
	if v, ok := m["mode"]; ok {
		switch v {
		case "tcp", "rtu", "ascii":
			t.Link.Mode = v
		default:
			sf.Errorf("line %d: mode %q not one of tcp/rtu/ascii, kept %q", n, v, t.Link.Mode)
		}
	}
	if v, ok := m["baudRate"]; ok {
		if b, err := strconv.Atoi(v); err == nil && b > 0 {
			t.Link.BaudRate = b
		} else {
			sf.Errorf("line %d: bad baudRate %q", n, v)
		}
	}
	if v, ok := m["dataBits"]; ok {
		if b, err := strconv.Atoi(v); err == nil && (b == 7 || b == 8) {
			t.Link.DataBits = b
		} else {
			sf.Errorf("line %d: dataBits %q not 7 or 8", n, v)
		}
	}
	if v, ok := m["parity"]; ok {
		switch v {
		case "none", "even", "odd":
			t.Link.Parity = v
		default:
			sf.Errorf("line %d: parity %q not one of none/even/odd", n, v)
		}
	}
	if v, ok := m["stopBits"]; ok {
		if b, err := strconv.Atoi(v); err == nil && (b == 1 || b == 2) {
			t.Link.StopBits = b
		} else {
			sf.Errorf("line %d: stopBits %q not 1 or 2", n, v)
		}
	}
}

func (sf *Parser) parseNetwork(t *Template, n int, line string) {
	m := fields(line)
	sf.warnUnknown(n, m, "deviceId", "networkId", "plcBaseAddress", "byteOrder", "wordOrder")
	if v, ok := m["deviceId"]; ok {
		if id, err := strconv.Atoi(v); err == nil {
			t.Network.DeviceID = id
		} else {
			sf.Errorf("line %d: bad deviceId %q", n, v)
		}
	}
	if v, ok := m["networkId"]; ok {
		if id, err := strconv.Atoi(v); err == nil && id >= 1 && id <= 253 {
			t.Network.NetworkID = uint8(id)
		} else {
			sf.Errorf("line %d: networkId %q not in [1, 253]", n, v)
		}
	}
	if v, ok := m["plcBaseAddress"]; ok {
		if b, err := strconv.Atoi(v); err == nil && (b == 0 || b == 1) {
			t.Network.PLCBaseAddress = b
		} else {
			sf.Errorf("line %d: plcBaseAddress %q not 0 or 1", n, v)
		}
	}
	if v, ok := m["byteOrder"]; ok {
		switch v {
		case "msb":
			t.Network.ByteOrder = BigEndian
		case "lsb":
			t.Network.ByteOrder = LittleEndian
		default:
			sf.Errorf("line %d: byteOrder %q not msb or lsb", n, v)
		}
	}
	if v, ok := m["wordOrder"]; ok {
		switch v {
		case "msw":
			t.Network.WordOrder = HighWordFirst
		case "lsw":
			t.Network.WordOrder = LowWordFirst
		default:
			sf.Errorf("line %d: wordOrder %q not msw or lsw", n, v)
		}
	}
}

func (sf *Parser) parseRegisterMeta(metas map[uint32]*registerMeta, n int, line string) {
	m := fields(line)
	sf.warnUnknown(n, m, "paramId", "name", "default", "min", "max")
	v, ok := m["paramId"]
	if !ok {
		sf.Errorf("line %d: register description without paramId, skipped", n)
		return
	}
	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		sf.Errorf("line %d: bad paramId %q, line skipped", n, v)
		return
	}
	metas[uint32(id)] = &registerMeta{
		name: m["name"],
		def:  m["default"],
		min:  m["min"],
		max:  m["max"],
		line: n,
	}
}

func (sf *Parser) parseMapping(n int, line string) (mappingLine, bool) {
	m := fields(line)
	sf.warnUnknown(n, m, "paramId", "deviceId", "registerType", "address", "encoding", "length")

	var ml mappingLine
	ml.line = n
	v, ok := m["paramId"]
	if !ok {
		sf.Errorf("line %d: register mapping without paramId, skipped", n)
		return ml, false
	}
	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		sf.Errorf("line %d: bad paramId %q, line skipped", n, v)
		return ml, false
	}
	ml.paramID = uint32(id)

	if v, ok = m["deviceId"]; ok {
		if ml.deviceID, err = strconv.Atoi(v); err != nil {
			sf.Errorf("line %d: bad deviceId %q, line skipped", n, v)
			return ml, false
		}
	} else {
		ml.deviceID = 1
	}

	v, ok = m["registerType"]
	if !ok {
		sf.Errorf("line %d: register mapping without registerType, skipped", n)
		return ml, false
	}
	if ml.class, err = ParseRegisterClass(v); err != nil {
		sf.Errorf("line %d: %v, line skipped", n, err)
		return ml, false
	}

	v, ok = m["address"]
	if !ok {
		sf.Errorf("line %d: register mapping without address, skipped", n)
		return ml, false
	}
	addr, err := strconv.ParseUint(v, 10, 32)
	if err != nil || addr > AddressMax {
		sf.Errorf("line %d: address %q out of range [0, %d], line skipped", n, v, AddressMax)
		return ml, false
	}
	ml.address = uint32(addr)

	v, ok = m["encoding"]
	if !ok {
		sf.Errorf("line %d: register mapping without encoding, skipped", n)
		return ml, false
	}
	if ml.encoding, err = ParseEncoding(v); err != nil {
		sf.Errorf("line %d: %v, line skipped", n, err)
		return ml, false
	}

	if v, ok = m["length"]; ok {
		q, err := strconv.ParseUint(v, 10, 16)
		if err != nil || q == 0 {
			sf.Errorf("line %d: bad length %q, line skipped", n, v)
			return ml, false
		}
		ml.quantity = uint16(q)
	}
	return ml, true
}

// compose builds the descriptor from a mapping line plus its register
// description metadata, if one with the same paramId was declared.
func (sf *Parser) compose(t *Template, m mappingLine, meta *registerMeta) (*Descriptor, error) {
	if m.deviceID != t.Network.DeviceID {
		return nil, fmt.Errorf("deviceId %d does not match the device description (%d)", m.deviceID, t.Network.DeviceID)
	}
	d := Descriptor{
		ParamID:   m.paramID,
		DeviceID:  m.deviceID,
		Class:     m.class,
		Address:   m.address,
		Quantity:  m.quantity,
		Encoding:  m.encoding,
		Min:       math.NaN(),
		Max:       math.NaN(),
		ByteOrder: t.Network.ByteOrder,
		WordOrder: t.Network.WordOrder,
	}
	if meta != nil {
		meta.consumed = true
		d.Name = meta.name
		var err error
		if d.Default, err = parseValue(meta.def, m.encoding); err != nil {
			return nil, err
		}
		if d.Min, err = parseBound(meta.min); err != nil {
			return nil, fmt.Errorf("bad min %q", meta.min)
		}
		if d.Max, err = parseBound(meta.max); err != nil {
			return nil, fmt.Errorf("bad max %q", meta.max)
		}
	}
	return NewDescriptor(d)
}

// parseValue interprets a raw default per the parameter's encoding.
func parseValue(raw string, enc Encoding) (interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	switch enc {
	case AsciiString:
		return raw, nil
	case Boolean:
		switch raw {
		case "0", "false":
			return false, nil
		case "1", "true":
			return true, nil
		}
		return nil, fmt.Errorf("bad boolean default %q", raw)
	default:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("bad default %q", raw)
		}
		return f, nil
	}
}

// parseBound parses a min/max field, NaN when absent.
func parseBound(raw string) (float64, error) {
	if raw == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(raw, 64)
}
