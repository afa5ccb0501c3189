package drivers

import (
	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/hal"
)

// serialPorts are the conventional PC COM port base addresses; COM1 is what
// every hypervisor and most real hardware wires up by default, matching
// port 0x3f8 the rest of this corpus's console code polls.
const (
	com1Base hal.Port = 0x3f8
)

const (
	uartData         = 0
	uartIntEnable    = 1
	uartDivisorLow   = 0
	uartDivisorHigh  = 1
	uartLineControl  = 3
	uartModemControl = 4
	uartLineStatus   = 5
)

const lineStatusTHRE = 0x20 // transmit holding register empty

// SerialConsole is a polling 16550 UART driver: no interrupts, no buffering,
// one byte out at a time once the transmit holding register reports empty.
// It is the console boot wires klog to before any higher-level driver
// (framebuffer text, a module-provided console) has had a chance to load.
type SerialConsole struct {
	base hal.Port
}

// NewSerialConsole programs the UART at base for 38400 8N1 and returns a
// ready-to-use console. base is almost always com1Base; the parameter
// exists so a multi-port board or a test harness can point it elsewhere.
func NewSerialConsole(base hal.Port) *SerialConsole {
	s := &SerialConsole{base: base}
	s.init()
	return s
}

// DefaultSerialConsole programs COM1.
func DefaultSerialConsole() *SerialConsole {
	return NewSerialConsole(com1Base)
}

func (s *SerialConsole) port(off hal.Port) hal.Port { return s.base + off }

func (s *SerialConsole) init() {
	s.port(uartIntEnable).OutB(0x00) // disable interrupts, we poll
	s.port(uartLineControl).OutB(0x80) // enable divisor latch
	s.port(uartDivisorLow).OutB(0x03)  // 38400 baud (115200 / 3)
	s.port(uartDivisorHigh).OutB(0x00)
	s.port(uartLineControl).OutB(0x03)  // 8 bits, no parity, one stop bit
	s.port(uartModemControl).OutB(0x03) // DTR + RTS
}

func (s *SerialConsole) txReady() bool {
	return s.port(uartLineStatus).InB()&lineStatusTHRE != 0
}

// WriteByte spins until the transmit holding register is empty, then writes
// b. This is the only primitive the hardware actually gives us; WriteString
// is built on top of it.
func (s *SerialConsole) WriteByte(b byte) errno.Err_t {
	for !s.txReady() {
		hal.Pause()
	}
	s.port(uartData).OutB(b)
	return errno.OK
}

// WriteString writes every byte of s in order, translating a bare newline
// to CRLF the way a real terminal expects, and returns the number of input
// bytes consumed (not the number of bytes physically transmitted, which is
// one higher per '\n').
func (s *SerialConsole) WriteString(str string) (int, errno.Err_t) {
	for i := 0; i < len(str); i++ {
		if str[i] == '\n' {
			if err := s.WriteByte('\r'); err != errno.OK {
				return i, err
			}
		}
		if err := s.WriteByte(str[i]); err != errno.OK {
			return i, err
		}
	}
	return len(str), errno.OK
}
