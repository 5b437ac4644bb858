// Command modpoll polls a running simulator once and prints every
// parameter the template declares, decoded to engineering values. Handy
// to eyeball what a SCADA master would see.
package main

import (
	"flag"
	"fmt"
	"log"

	modbus "github.com/thinkgos/gomodbus/v2"

	"github.com/thinkgos/modsim"
)

func main() {
	var (
		addr     = flag.String("addr", "localhost:502", "simulator TCP address")
		template = flag.String("template", "", "template the simulator was started with, empty for the built-in device")
	)
	flag.Parse()

	tpl, err := modsim.NewParser().Load(*template)
	if err != nil {
		log.Fatalf("loading template: %v", err)
	}

	p := modbus.NewTCPClientProvider(*addr)
	client := modbus.NewClient(p)
	if err := client.Connect(); err != nil {
		log.Fatalf("connecting %s: %v", *addr, err)
	}
	defer client.Close()

	slaveID := tpl.Network.NetworkID
	for _, d := range tpl.Descriptors {
		v, err := poll(client, slaveID, tpl, d)
		if err != nil {
			fmt.Printf("%-24s <%v>\n", d.Name, err)
			continue
		}
		fmt.Printf("%-24s %v\n", d.Name, v)
	}
}

// poll reads one parameter. Declared addresses are rebased onto the wire
// when the device serves with a PLC base address of 1.
func poll(client modbus.Client, slaveID uint8, tpl *modsim.Template, d *modsim.Descriptor) (interface{}, error) {
	address := uint16(d.Address)
	if tpl.Network.PLCBaseAddress == 1 {
		address--
	}

	switch d.Class {
	case modsim.Coil, modsim.DiscreteInput:
		var packed []byte
		var err error
		if d.Class == modsim.Coil {
			packed, err = client.ReadCoils(slaveID, address, d.Quantity)
		} else {
			packed, err = client.ReadDiscreteInputs(slaveID, address, d.Quantity)
		}
		if err != nil {
			return nil, err
		}
		words := make([]uint16, d.Quantity)
		for i := range words {
			if packed[i/8]&(1<<(uint(i)%8)) != 0 {
				words[i] = 1
			}
		}
		return modsim.Decode(words, d.Encoding, d.ByteOrder, d.WordOrder)
	case modsim.InputRegister:
		words, err := client.ReadInputRegisters(slaveID, address, d.Quantity)
		if err != nil {
			return nil, err
		}
		return modsim.Decode(words, d.Encoding, d.ByteOrder, d.WordOrder)
	default:
		words, err := client.ReadHoldingRegisters(slaveID, address, d.Quantity)
		if err != nil {
			return nil, err
		}
		return modsim.Decode(words, d.Encoding, d.ByteOrder, d.WordOrder)
	}
}
