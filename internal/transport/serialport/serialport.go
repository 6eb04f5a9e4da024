// Package serialport implements the transport boundary over a local serial
// device using go.bug.st/serial.
package serialport

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/robolink-dev/linkwire/internal/transport"
)

// PortOptions describes the serial connection parameters used when opening
// the device. The zero value normalizes to 115200 8N1 with no read timeout,
// which matches the embedded controller's UART defaults.
type PortOptions struct {
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string
	ReadTimeout time.Duration
}

// Normalize validates the options and applies defaults for unset fields.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	if parity == "" {
		parity = "N"
	}
	switch parity {
	case "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	opts.Parity = parity

	if opts.ReadTimeout < 0 {
		return opts, fmt.Errorf("invalid read timeout %v: must not be negative", opts.ReadTimeout)
	}

	return opts, nil
}

// SerialMode converts the options into the serial.Mode required by
// go.bug.st/serial when opening a port.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}
	// serial.StopBits is an enum, not a count: 1 would mean one and a
	// half stop bits.
	switch opts.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

// Port is a reopenable serial transport. The device path and mode are fixed
// at construction; Open may be called again after Close (or after an I/O
// failure) to re-establish the connection with the same parameters.
type Port struct {
	path string
	mode *serial.Mode
	opts PortOptions

	mu   sync.Mutex
	port serial.Port
}

var _ transport.Transport = (*Port)(nil)

// New validates opts and returns an unopened serial transport for the device
// at path.
func New(path string, opts PortOptions) (*Port, error) {
	if path == "" {
		return nil, fmt.Errorf("serialport: device path is empty")
	}
	normalized, err := opts.Normalize()
	if err != nil {
		return nil, fmt.Errorf("serialport: %w", err)
	}
	mode, err := normalized.SerialMode()
	if err != nil {
		return nil, fmt.Errorf("serialport: %w", err)
	}
	return &Port{path: path, mode: mode, opts: normalized}, nil
}

// Path returns the device path the transport opens.
func (p *Port) Path() string {
	return p.path
}

// Open opens and configures the serial device. Opening an already-open port
// is a no-op.
func (p *Port) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port != nil {
		return nil
	}
	port, err := serial.Open(p.path, p.mode)
	if err != nil {
		return fmt.Errorf("serialport: open %s: %w", p.path, err)
	}
	if p.opts.ReadTimeout > 0 {
		if err := port.SetReadTimeout(p.opts.ReadTimeout); err != nil {
			port.Close()
			return fmt.Errorf("serialport: set read timeout on %s: %w", p.path, err)
		}
	}
	p.port = port
	return nil
}

// Close closes the device. Closing a closed port is a no-op.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	if err != nil {
		return fmt.Errorf("serialport: close %s: %w", p.path, err)
	}
	return nil
}

// IsOpen reports whether the device is currently open.
func (p *Port) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port != nil
}

func (p *Port) Read(buf []byte) (int, error) {
	p.mu.Lock()
	port := p.port
	p.mu.Unlock()
	if port == nil {
		return 0, fmt.Errorf("serialport: %s is not open", p.path)
	}
	return port.Read(buf)
}

func (p *Port) Write(buf []byte) (int, error) {
	p.mu.Lock()
	port := p.port
	p.mu.Unlock()
	if port == nil {
		return 0, fmt.Errorf("serialport: %s is not open", p.path)
	}
	return port.Write(buf)
}

// ListPorts returns the serial device paths present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialport: list ports: %w", err)
	}
	return ports, nil
}
