package modsim

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/goburrow/serial"
)

// ListSerialPorts enumerates the serial devices of the host that can
// actually be opened. Candidates come from the platform's conventional
// device names; each one is probed with a short open.
func ListSerialPorts() []string {
	var candidates []string
	switch runtime.GOOS {
	case "windows":
		for i := 1; i <= 256; i++ {
			candidates = append(candidates, fmt.Sprintf("COM%d", i))
		}
	case "darwin":
		matches, _ := filepath.Glob("/dev/tty.*")
		candidates = matches
	default:
		for _, pattern := range []string{"/dev/ttyS*", "/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyAMA*"} {
			matches, _ := filepath.Glob(pattern)
			candidates = append(candidates, matches...)
		}
	}

	var ports []string
	for _, name := range candidates {
		p, err := serial.Open(&serial.Config{
			Address:  name,
			BaudRate: 9600,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
			Timeout:  100 * time.Millisecond,
		})
		if err != nil {
			continue
		}
		p.Close()
		ports = append(ports, name)
	}
	return ports
}
