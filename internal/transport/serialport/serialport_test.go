package serialport

import (
	"testing"
	"time"

	"go.bug.st/serial"
)

func TestPortOptions_Normalize_Defaults(t *testing.T) {
	got, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.BaudRate != 115200 {
		t.Errorf("BaudRate = %d, want 115200", got.BaudRate)
	}
	if got.DataBits != 8 {
		t.Errorf("DataBits = %d, want 8", got.DataBits)
	}
	if got.StopBits != 1 {
		t.Errorf("StopBits = %d, want 1", got.StopBits)
	}
	if got.Parity != "N" {
		t.Errorf("Parity = %q, want N", got.Parity)
	}
}

func TestPortOptions_Normalize_ExplicitValues(t *testing.T) {
	opts := PortOptions{BaudRate: 19200, DataBits: 7, StopBits: 2, Parity: "even", ReadTimeout: 50 * time.Millisecond}
	got, err := opts.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.BaudRate != 19200 {
		t.Errorf("BaudRate = %d, want 19200", got.BaudRate)
	}
	if got.DataBits != 7 {
		t.Errorf("DataBits = %d, want 7", got.DataBits)
	}
	if got.StopBits != 2 {
		t.Errorf("StopBits = %d, want 2", got.StopBits)
	}
	if got.Parity != "E" {
		t.Errorf("Parity = %q, want E", got.Parity)
	}
	if got.ReadTimeout != 50*time.Millisecond {
		t.Errorf("ReadTimeout = %v, want 50ms", got.ReadTimeout)
	}
}

func TestPortOptions_Normalize_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
	}{
		{"data bits too small", PortOptions{DataBits: 4}},
		{"data bits too large", PortOptions{DataBits: 9}},
		{"bad stop bits", PortOptions{StopBits: 3}},
		{"bad parity", PortOptions{Parity: "M"}},
		{"negative timeout", PortOptions{ReadTimeout: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.opts.Normalize(); err == nil {
				t.Errorf("Normalize(%+v) expected error, got nil", tt.opts)
			}
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 9600, Parity: "O", StopBits: 2}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode() error = %v", err)
	}
	if mode.BaudRate != 9600 {
		t.Errorf("BaudRate = %d, want 9600", mode.BaudRate)
	}
	if mode.Parity != serial.OddParity {
		t.Errorf("Parity = %v, want OddParity", mode.Parity)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("StopBits = %v, want TwoStopBits", mode.StopBits)
	}
	if mode.DataBits != 8 {
		t.Errorf("DataBits = %d, want defaulted 8", mode.DataBits)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", PortOptions{}); err == nil {
		t.Error("New with empty path expected error")
	}
	if _, err := New("/dev/ttyUSB0", PortOptions{Parity: "Q"}); err == nil {
		t.Error("New with bad parity expected error")
	}

	p, err := New("/dev/ttyUSB0", PortOptions{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Path() != "/dev/ttyUSB0" {
		t.Errorf("Path() = %q, want /dev/ttyUSB0", p.Path())
	}
	if p.IsOpen() {
		t.Error("new port should not be open before Open")
	}
}

func TestPort_ClosedIO(t *testing.T) {
	p, err := New("/dev/ttyUSB0", PortOptions{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := p.Read(make([]byte, 4)); err == nil {
		t.Error("Read on unopened port expected error")
	}
	if _, err := p.Write([]byte{1}); err == nil {
		t.Error("Write on unopened port expected error")
	}
	// Closing an unopened port is a no-op.
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
