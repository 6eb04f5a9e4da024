// Package usbbulk implements the transport boundary over a pair of USB bulk
// endpoints using github.com/google/gousb.
//
// The embedded controller enumerates as a vendor-specific device with one
// bulk IN and one bulk OUT endpoint. Devices are matched by VID/PID and,
// when several identical boards are attached, disambiguated by their serial
// number string.
package usbbulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/robolink-dev/linkwire/internal/transport"
)

// DefaultTimeout bounds each bulk transfer when the descriptor does not set
// an explicit timeout.
const DefaultTimeout = 500 * time.Millisecond

// DeviceDescriptor identifies the USB device and the endpoints to use.
// Endpoint fields hold raw endpoint addresses (direction bit included), e.g.
// 0x81 for IN endpoint 1 and 0x01 for OUT endpoint 1.
type DeviceDescriptor struct {
	VendorID        uint16
	ProductID       uint16
	InterfaceNumber int
	InEndpoint      byte
	OutEndpoint     byte
	Timeout         time.Duration
}

// Device is a reopenable USB bulk transport. Open claims the interface and
// resolves both endpoints; a failed transfer can be recovered by Close
// followed by Open, which re-enumerates the bus.
type Device struct {
	desc   DeviceDescriptor
	serial string

	mu   sync.Mutex
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint
}

var _ transport.Transport = (*Device)(nil)

// New returns an unopened USB bulk transport. serial is optional: when
// empty, the first device matching VID/PID is used.
func New(desc DeviceDescriptor, serial string) (*Device, error) {
	if desc.VendorID == 0 && desc.ProductID == 0 {
		return nil, fmt.Errorf("usbbulk: vendor/product ID not set")
	}
	if desc.InEndpoint&0x80 == 0 {
		return nil, fmt.Errorf("usbbulk: in endpoint 0x%02x is not an IN address", desc.InEndpoint)
	}
	if desc.OutEndpoint&0x80 != 0 {
		return nil, fmt.Errorf("usbbulk: out endpoint 0x%02x is not an OUT address", desc.OutEndpoint)
	}
	if desc.Timeout <= 0 {
		desc.Timeout = DefaultTimeout
	}
	return &Device{desc: desc, serial: serial}, nil
}

// String describes the device selector, for logs.
func (d *Device) String() string {
	if d.serial != "" {
		return fmt.Sprintf("usb %04x:%04x sn=%s", d.desc.VendorID, d.desc.ProductID, d.serial)
	}
	return fmt.Sprintf("usb %04x:%04x", d.desc.VendorID, d.desc.ProductID)
}

// Open finds the device, claims the configured interface and resolves the
// bulk endpoints. Opening an open device is a no-op.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.intf != nil {
		return nil
	}

	ctx := gousb.NewContext()
	ok := false
	defer func() {
		if !ok {
			d.releaseLocked()
		}
	}()
	d.ctx = ctx

	dev, err := d.findDevice(ctx)
	if err != nil {
		return err
	}
	d.dev = dev

	// The kernel may have bound a class driver (cdc-acm and friends) to
	// the interface; detach it so the claim succeeds.
	if err := dev.SetAutoDetach(true); err != nil {
		return fmt.Errorf("usbbulk: set auto-detach on %s: %w", d, err)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		return fmt.Errorf("usbbulk: claim configuration on %s: %w", d, err)
	}
	d.cfg = cfg

	intf, err := cfg.Interface(d.desc.InterfaceNumber, 0)
	if err != nil {
		return fmt.Errorf("usbbulk: claim interface %d on %s: %w", d.desc.InterfaceNumber, d, err)
	}
	d.intf = intf

	in, err := intf.InEndpoint(int(d.desc.InEndpoint & 0x0f))
	if err != nil {
		return fmt.Errorf("usbbulk: in endpoint 0x%02x on %s: %w", d.desc.InEndpoint, d, err)
	}
	out, err := intf.OutEndpoint(int(d.desc.OutEndpoint & 0x0f))
	if err != nil {
		return fmt.Errorf("usbbulk: out endpoint 0x%02x on %s: %w", d.desc.OutEndpoint, d, err)
	}
	d.in, d.out = in, out

	ok = true
	return nil
}

// findDevice opens all VID/PID matches and keeps the one with the requested
// serial number (or the first match when no serial is configured).
func (d *Device) findDevice(ctx *gousb.Context) (*gousb.Device, error) {
	vid, pid := gousb.ID(d.desc.VendorID), gousb.ID(d.desc.ProductID)
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vid && desc.Product == pid
	})
	if err != nil {
		// OpenDevices can report per-device errors while still
		// returning usable handles; only fail when nothing opened.
		if len(devs) == 0 {
			return nil, fmt.Errorf("usbbulk: enumerate %s: %w", d, err)
		}
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("usbbulk: no device matching %s", d)
	}

	var chosen *gousb.Device
	for _, dev := range devs {
		if chosen != nil {
			dev.Close()
			continue
		}
		if d.serial == "" {
			chosen = dev
			continue
		}
		sn, err := dev.SerialNumber()
		if err == nil && sn == d.serial {
			chosen = dev
			continue
		}
		dev.Close()
	}
	if chosen == nil {
		return nil, fmt.Errorf("usbbulk: no device matching %s", d)
	}
	return chosen, nil
}

// releaseLocked frees everything acquired by Open. Callers hold d.mu.
func (d *Device) releaseLocked() {
	if d.intf != nil {
		d.intf.Close()
		d.intf = nil
	}
	if d.cfg != nil {
		d.cfg.Close()
		d.cfg = nil
	}
	if d.dev != nil {
		d.dev.Close()
		d.dev = nil
	}
	if d.ctx != nil {
		d.ctx.Close()
		d.ctx = nil
	}
	d.in, d.out = nil, nil
}

// Close releases the interface and the device. Closing a closed device is a
// no-op.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked()
	return nil
}

// IsOpen reports whether the interface is currently claimed.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.intf != nil
}

// Read performs one bulk IN transfer bounded by the configured timeout. A
// transfer that times out with no data returns (0, nil), which the
// transceiver treats as a failed read.
func (d *Device) Read(buf []byte) (int, error) {
	d.mu.Lock()
	in := d.in
	d.mu.Unlock()
	if in == nil {
		return 0, fmt.Errorf("usbbulk: %s is not open", d)
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.desc.Timeout)
	defer cancel()
	n, err := in.ReadContext(ctx, buf)
	if errors.Is(err, context.DeadlineExceeded) {
		return n, nil
	}
	return n, err
}

// Write performs one bulk OUT transfer bounded by the configured timeout.
func (d *Device) Write(buf []byte) (int, error) {
	d.mu.Lock()
	out := d.out
	d.mu.Unlock()
	if out == nil {
		return 0, fmt.Errorf("usbbulk: %s is not open", d)
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.desc.Timeout)
	defer cancel()
	return out.WriteContext(ctx, buf)
}

// ListDevices returns the serial numbers of all attached devices matching
// vid/pid. Devices whose serial string cannot be read are reported as empty
// strings so callers still learn they exist.
func ListDevices(vid, pid uint16) ([]string, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(vid) && desc.Product == gousb.ID(pid)
	})
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("usbbulk: enumerate %04x:%04x: %w", vid, pid, err)
	}

	serials := make([]string, 0, len(devs))
	for _, dev := range devs {
		sn, err := dev.SerialNumber()
		if err != nil {
			sn = ""
		}
		serials = append(serials, sn)
		dev.Close()
	}
	return serials, nil
}
