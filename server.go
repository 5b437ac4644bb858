package modsim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goburrow/serial"
	"github.com/tbrandon/mbserver"
)

// Protocol limits of one read or write request.
const (
	maxReadBits      = 2000
	maxReadRegisters = 125
	maxWriteBits     = 1968
	maxWriteRegs     = 123
)

// Server answers Modbus requests out of a slave context. Framing and
// transport come from the embedded protocol server, every function
// handler is overridden to route through the context's blocks so the
// template's addressing and zero mode hold on the wire.
type Server struct {
	srv   *mbserver.Server
	slave *SlaveContext
	clogs
}

// NewServer creates a server answering for slave.
func NewServer(slave *SlaveContext) *Server {
	sf := &Server{
		srv:   mbserver.NewServer(),
		slave: slave,
		clogs: newClogs("modsim server => "),
	}
	sf.srv.RegisterFunctionHandler(FuncCodeReadCoils, sf.readBits)
	sf.srv.RegisterFunctionHandler(FuncCodeReadDiscreteInputs, sf.readBits)
	sf.srv.RegisterFunctionHandler(FuncCodeReadHoldingRegisters, sf.readRegisters)
	sf.srv.RegisterFunctionHandler(FuncCodeReadInputRegisters, sf.readRegisters)
	sf.srv.RegisterFunctionHandler(FuncCodeWriteSingleCoil, sf.writeSingleCoil)
	sf.srv.RegisterFunctionHandler(FuncCodeWriteSingleRegister, sf.writeSingleRegister)
	sf.srv.RegisterFunctionHandler(FuncCodeWriteMultipleCoils, sf.writeMultipleCoils)
	sf.srv.RegisterFunctionHandler(FuncCodeWriteMultipleRegisters, sf.writeMultipleRegisters)
	return sf
}

// exceptionOf maps a storage or codec error onto the wire exception.
func exceptionOf(err error) *mbserver.Exception {
	var addrErr *AddressRangeError
	var rangeErr *RangeError
	switch {
	case errors.Is(err, ErrIllegalAddress), errors.As(err, &addrErr):
		return &mbserver.IllegalDataAddress
	case errors.As(err, &rangeErr):
		return &mbserver.IllegalDataValue
	default:
		return &mbserver.SlaveDeviceFailure
	}
}

func (sf *Server) readBits(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	address := uint32(binary.BigEndian.Uint16(data[0:2]))
	count := binary.BigEndian.Uint16(data[2:4])
	if count < 1 || count > maxReadBits {
		return nil, &mbserver.IllegalDataValue
	}
	words, err := sf.slave.GetValues(frame.GetFunction(), address, count)
	if err != nil {
		sf.Debugf("read bits [%d, %d): %v", address, address+uint32(count), err)
		return nil, exceptionOf(err)
	}
	packed := make([]byte, 1+(count+7)/8)
	packed[0] = byte((count + 7) / 8)
	for i, w := range words {
		if w != 0 {
			packed[1+i/8] |= 1 << (uint(i) % 8)
		}
	}
	return packed, &mbserver.Success
}

func (sf *Server) readRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	address := uint32(binary.BigEndian.Uint16(data[0:2]))
	count := binary.BigEndian.Uint16(data[2:4])
	if count < 1 || count > maxReadRegisters {
		return nil, &mbserver.IllegalDataValue
	}
	words, err := sf.slave.GetValues(frame.GetFunction(), address, count)
	if err != nil {
		sf.Debugf("read registers [%d, %d): %v", address, address+uint32(count), err)
		return nil, exceptionOf(err)
	}
	return append([]byte{byte(count * 2)}, mbserver.Uint16ToBytes(words)...), &mbserver.Success
}

func (sf *Server) writeSingleCoil(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	address := uint32(binary.BigEndian.Uint16(data[0:2]))
	value := binary.BigEndian.Uint16(data[2:4])
	var word uint16
	switch value {
	case 0xFF00:
		word = 1
	case 0x0000:
		word = 0
	default:
		return nil, &mbserver.IllegalDataValue
	}
	if err := sf.slave.SetValues(FuncCodeWriteSingleCoil, address, []uint16{word}); err != nil {
		sf.Debugf("write coil %d: %v", address, err)
		return nil, exceptionOf(err)
	}
	return data[0:4], &mbserver.Success
}

func (sf *Server) writeSingleRegister(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	address := uint32(binary.BigEndian.Uint16(data[0:2]))
	value := binary.BigEndian.Uint16(data[2:4])
	if err := sf.slave.SetValues(FuncCodeWriteSingleRegister, address, []uint16{value}); err != nil {
		sf.Debugf("write register %d: %v", address, err)
		return nil, exceptionOf(err)
	}
	return data[0:4], &mbserver.Success
}

func (sf *Server) writeMultipleCoils(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	address := uint32(binary.BigEndian.Uint16(data[0:2]))
	count := binary.BigEndian.Uint16(data[2:4])
	byteCount := int(data[4])
	if count < 1 || count > maxWriteBits || byteCount != int(count+7)/8 || len(data) < 5+byteCount {
		return nil, &mbserver.IllegalDataValue
	}
	words := make([]uint16, count)
	for i := range words {
		if data[5+i/8]&(1<<(uint(i)%8)) != 0 {
			words[i] = 1
		}
	}
	if err := sf.slave.SetValues(FuncCodeWriteMultipleCoils, address, words); err != nil {
		sf.Debugf("write coils [%d, %d): %v", address, address+uint32(count), err)
		return nil, exceptionOf(err)
	}
	return data[0:4], &mbserver.Success
}

func (sf *Server) writeMultipleRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	address := uint32(binary.BigEndian.Uint16(data[0:2]))
	count := binary.BigEndian.Uint16(data[2:4])
	byteCount := int(data[4])
	if count < 1 || count > maxWriteRegs || byteCount != int(count)*2 || len(data) < 5+byteCount {
		return nil, &mbserver.IllegalDataValue
	}
	words := mbserver.BytesToUint16(data[5 : 5+byteCount])
	if err := sf.slave.SetValues(FuncCodeWriteMultipleRegisters, address, words); err != nil {
		sf.Debugf("write registers [%d, %d): %v", address, address+uint32(count), err)
		return nil, exceptionOf(err)
	}
	return data[0:4], &mbserver.Success
}

// ListenTCP starts answering Modbus TCP requests on addr, like ":502".
func (sf *Server) ListenTCP(addr string) error {
	sf.Debugf("listening tcp %s", addr)
	return sf.srv.ListenTCP(addr)
}

// ListenUDP starts answering Modbus UDP requests on addr.
func (sf *Server) ListenUDP(addr string) error {
	sf.Debugf("listening udp %s", addr)
	return sf.srv.ListenUDP(addr)
}

// ListenRTU starts answering Modbus RTU requests on a serial line.
func (sf *Server) ListenRTU(c *serial.Config) error {
	sf.Debugf("listening rtu %s", c.Address)
	return sf.srv.ListenRTU(c)
}

// Close shuts down every listener.
func (sf *Server) Close() {
	sf.srv.Close()
}

// Serve starts the listener the template's link configuration asks for.
// Port forms are "tcp:PORT", "udp:PORT" or a serial device path with the
// link's line parameters.
func (sf *Server) Serve(link LinkConfig) error {
	switch {
	case strings.HasPrefix(link.Port, "tcp:"):
		return sf.ListenTCP(":" + strings.TrimPrefix(link.Port, "tcp:"))
	case strings.HasPrefix(link.Port, "udp:"):
		return sf.ListenUDP(":" + strings.TrimPrefix(link.Port, "udp:"))
	case isNumeric(link.Port):
		return sf.ListenTCP(":" + link.Port)
	}

	switch link.Mode {
	case "ascii":
		return fmt.Errorf("modsim: ascii framing is not supported on %s", link.Port)
	default:
		return sf.ListenRTU(&serial.Config{
			Address:  link.Port,
			BaudRate: link.BaudRate,
			DataBits: link.DataBits,
			StopBits: link.StopBits,
			Parity:   parityLetter(link.Parity),
			Timeout:  10 * time.Second,
		})
	}
}

func isNumeric(s string) bool {
	_, err := strconv.ParseUint(s, 10, 16)
	return err == nil
}

// parityLetter maps a template parity keyword onto the serial driver's
// one letter form.
func parityLetter(p string) string {
	switch strings.ToLower(p) {
	case "even":
		return "E"
	case "odd":
		return "O"
	default:
		return "N"
	}
}
