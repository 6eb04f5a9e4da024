// Package config loads the link configuration from a TOML file: which
// transport to use, how to open it, and how the transceiver should frame and
// queue packets. Duration fields are TOML strings like "500ms" so configs
// stay readable.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/robolink-dev/linkwire/internal/transceiver"
	"github.com/robolink-dev/linkwire/internal/transport"
	"github.com/robolink-dev/linkwire/internal/transport/serialport"
	"github.com/robolink-dev/linkwire/internal/transport/usbbulk"
)

// Transport kind selectors accepted in the "transport" key.
const (
	TransportSerial = "serial"
	TransportUSB    = "usb"
)

// Config is the root link configuration.
type Config struct {
	// Capacity is the fixed frame length in bytes. Defaults to 16.
	Capacity int `toml:"capacity"`

	// SendMode selects the outbound queue policy: "fifo", "latest-only"
	// or "limited-fifo". Defaults to "fifo".
	SendMode string `toml:"send_mode"`

	// MaxQueueSize bounds the queue under "limited-fifo".
	MaxQueueSize int `toml:"max_queue_size"`

	// Transport selects the concrete transport: "serial" or "usb".
	// Defaults to "serial".
	Transport string `toml:"transport"`

	Serial SerialConfig `toml:"serial"`
	USB    USBConfig    `toml:"usb"`
}

// SerialConfig configures the serial transport.
type SerialConfig struct {
	Path        string `toml:"path"`
	BaudRate    int    `toml:"baud_rate"`
	DataBits    int    `toml:"data_bits"`
	StopBits    int    `toml:"stop_bits"`
	Parity      string `toml:"parity"`
	ReadTimeout string `toml:"read_timeout"` // duration string like "100ms"
}

// USBConfig configures the USB bulk transport.
type USBConfig struct {
	VendorID        int    `toml:"vendor_id"`
	ProductID       int    `toml:"product_id"`
	InterfaceNumber int    `toml:"interface_number"`
	InEndpoint      int    `toml:"in_endpoint"`
	OutEndpoint     int    `toml:"out_endpoint"`
	Timeout         string `toml:"timeout"` // duration string like "500ms"
	SerialNumber    string `toml:"serial_number"`
}

// Default returns the configuration used when no file is supplied: 16-byte
// frames over a serial device, FIFO queueing.
func Default() *Config {
	return &Config{
		Capacity:     16,
		SendMode:     transceiver.SendFIFO.String(),
		MaxQueueSize: transceiver.DefaultMaxQueueSize,
		Transport:    TransportSerial,
		Serial: SerialConfig{
			Path: "/dev/ttyUSB0",
		},
	}
}

// Load reads and validates a TOML config file. Fields omitted from the file
// keep their defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".toml" {
		return nil, fmt.Errorf("config file must have .toml extension, got %q", ext)
	}
	if _, err := os.Stat(cleanPath); err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(cleanPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config keys: %v", undecoded)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Capacity < 3 {
		return fmt.Errorf("capacity %d is too small: a frame needs head, check and tail bytes", c.Capacity)
	}
	if _, err := c.SendModeValue(); err != nil {
		return err
	}
	if c.MaxQueueSize < 0 {
		return fmt.Errorf("max_queue_size must not be negative, got %d", c.MaxQueueSize)
	}

	switch c.Transport {
	case TransportSerial:
		if c.Serial.Path == "" {
			return fmt.Errorf("serial.path is required for the serial transport")
		}
		if _, err := c.Serial.PortOptions(); err != nil {
			return err
		}
	case TransportUSB:
		if _, err := c.USB.Descriptor(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown transport %q: expected %q or %q", c.Transport, TransportSerial, TransportUSB)
	}
	return nil
}

// SendModeValue parses the send_mode key.
func (c *Config) SendModeValue() (transceiver.SendMode, error) {
	switch c.SendMode {
	case "", "fifo":
		return transceiver.SendFIFO, nil
	case "latest-only":
		return transceiver.SendLatestOnly, nil
	case "limited-fifo":
		return transceiver.SendLimitedFIFO, nil
	default:
		return 0, fmt.Errorf("unknown send_mode %q: expected fifo, latest-only or limited-fifo", c.SendMode)
	}
}

func parseDuration(s, key string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

// PortOptions converts the serial section into serialport options.
func (c SerialConfig) PortOptions() (serialport.PortOptions, error) {
	timeout, err := parseDuration(c.ReadTimeout, "serial.read_timeout")
	if err != nil {
		return serialport.PortOptions{}, err
	}
	opts := serialport.PortOptions{
		BaudRate:    c.BaudRate,
		DataBits:    c.DataBits,
		StopBits:    c.StopBits,
		Parity:      c.Parity,
		ReadTimeout: timeout,
	}
	return opts.Normalize()
}

// Descriptor converts the usb section into a usbbulk device descriptor.
func (c USBConfig) Descriptor() (usbbulk.DeviceDescriptor, error) {
	if c.VendorID < 0 || c.VendorID > 0xffff {
		return usbbulk.DeviceDescriptor{}, fmt.Errorf("usb.vendor_id 0x%x out of range", c.VendorID)
	}
	if c.ProductID < 0 || c.ProductID > 0xffff {
		return usbbulk.DeviceDescriptor{}, fmt.Errorf("usb.product_id 0x%x out of range", c.ProductID)
	}
	if c.InEndpoint < 0 || c.InEndpoint > 0xff || c.OutEndpoint < 0 || c.OutEndpoint > 0xff {
		return usbbulk.DeviceDescriptor{}, fmt.Errorf("usb endpoint addresses must be single bytes")
	}
	timeout, err := parseDuration(c.Timeout, "usb.timeout")
	if err != nil {
		return usbbulk.DeviceDescriptor{}, err
	}
	return usbbulk.DeviceDescriptor{
		VendorID:        uint16(c.VendorID),
		ProductID:       uint16(c.ProductID),
		InterfaceNumber: c.InterfaceNumber,
		InEndpoint:      byte(c.InEndpoint),
		OutEndpoint:     byte(c.OutEndpoint),
		Timeout:         timeout,
	}, nil
}

// NewTransport builds the configured transport. The transport is returned
// unopened; callers decide when to open it.
func (c *Config) NewTransport() (transport.Transport, error) {
	switch c.Transport {
	case TransportSerial:
		opts, err := c.Serial.PortOptions()
		if err != nil {
			return nil, err
		}
		return serialport.New(c.Serial.Path, opts)
	case TransportUSB:
		desc, err := c.USB.Descriptor()
		if err != nil {
			return nil, err
		}
		return usbbulk.New(desc, c.USB.SerialNumber)
	default:
		return nil, fmt.Errorf("unknown transport %q", c.Transport)
	}
}

// NewManager builds a transceiver over the configured (unopened) transport.
func (c *Config) NewManager() (*transceiver.Manager, error) {
	tr, err := c.NewTransport()
	if err != nil {
		return nil, err
	}
	mode, err := c.SendModeValue()
	if err != nil {
		return nil, err
	}
	return transceiver.New(tr, c.Capacity,
		transceiver.WithSendMode(mode),
		transceiver.WithMaxQueueSize(c.MaxQueueSize),
	)
}
