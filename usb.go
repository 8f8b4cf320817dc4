package pongoutils

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
	"go.uber.org/multierr"
)

const (
	PONGO_VID = 0x05ac
	PONGO_PID = 0x1227

	PONGO_CONFIG = 1
	PONGO_IFACE  = 0
	PONGO_ALT    = 0
	PONGO_EP_OUT = 0x02
)

// Handle is an open USB device that stage transfers can be issued on once claimed.
type Handle interface {
	// Claim selects the active configuration and claims an interface, detaching a kernel driver that holds it.
	Claim(intf int) error
	// Release gives the claimed interface back to the kernel driver.
	Release() error
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
	BulkOut(ctx context.Context, ep int, data []byte) (int, error)
	Close() error
	String() string
}

// Bus opens the device matching an identity, returning a nil Handle when none is attached.
// An error wrapping ErrDeviceGone means the device dropped off the bus mid scan and is treated as absent.
type Bus interface {
	Open(id Identity) (Handle, error)
}

// USBBus is a Bus backed by libusb
type USBBus struct {
	ctx *gousb.Context
	log Logger
}

func NewUSBBus(debug int, log Logger) *USBBus {
	ctx := gousb.NewContext()
	if debug > 0 {
		ctx.Debug(debug)
	}
	return &USBBus{ctx: ctx, log: orNop(log)}
}

// Open lists the bus and opens the first device matching id.
// Errors from other devices on the bus are not failures of id and only get traced.
func (b *USBBus) Open(id Identity) (Handle, error) {
	matched := false
	devs, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if matched {
			return false
		}
		if desc.Vendor == id.Vendor && desc.Product == id.Product {
			matched = true
			return true
		}
		return false
	})
	if len(devs) > 0 {
		if err != nil {
			b.log.Tracef("Ignoring scan error after opening %s: %v", id, err)
		}
		for _, d := range devs[1:] {
			d.Close()
		}
		return &usbHandle{dev: devs[0]}, nil
	}
	if err != nil && !matched {
		b.log.Tracef("Ignoring scan error, %s not attached: %v", id, err)
	}
	return nil, scanErr(id, matched, err)
}

// scanErr decides what a scan that opened nothing means for id.
// A matched device that vanished before it could be opened wraps ErrDeviceGone, any other failure to open it is fatal.
func scanErr(id Identity, matched bool, err error) error {
	if err == nil || !matched {
		return nil
	}
	var usbErr gousb.Error
	if errors.As(err, &usbErr) && (usbErr == gousb.ErrorNoDevice || usbErr == gousb.ErrorNotFound) {
		return fmt.Errorf("%w: %s vanished while opening: %w", ErrDeviceGone, id, err)
	}
	return fmt.Errorf("error opening %s: %w", id, err)
}

func (b *USBBus) Close() error {
	return b.ctx.Close()
}

type usbHandle struct {
	dev   *gousb.Device
	cfg   *gousb.Config
	intf  *gousb.Interface
	outEp *gousb.OutEndpoint
	num   int
}

func (h *usbHandle) Claim(num int) error {
	// libusb detaches the kernel driver on claim and reattaches it on release
	if err := h.dev.SetAutoDetach(true); err != nil {
		return fmt.Errorf("failed to enable kernel driver auto detach: %w", err)
	}

	cfgNum, err := h.dev.ActiveConfigNum()
	if err != nil || cfgNum == 0 {
		cfgNum = PONGO_CONFIG
	}
	cfg, err := h.dev.Config(cfgNum)
	if err != nil {
		return fmt.Errorf("failed to set configuration %d: %w", cfgNum, err)
	}

	// An interface that was detached by Config but never claimed can't be handed back through gousb
	intf, err := cfg.Interface(num, PONGO_ALT)
	if err != nil {
		cfg.Close()
		return fmt.Errorf("failed to claim interface %d alt %d: %w", num, PONGO_ALT, err)
	}

	outEp, err := intf.OutEndpoint(PONGO_EP_OUT & 0x0f)
	if err != nil {
		intf.Close()
		cfg.Close()
		return fmt.Errorf("failed to open OUT endpoint 0x%02x: %w", PONGO_EP_OUT, err)
	}

	h.cfg = cfg
	h.intf = intf
	h.outEp = outEp
	h.num = num
	return nil
}

func (h *usbHandle) Release() error {
	if h.cfg == nil {
		return nil
	}
	h.intf.Close()
	err := h.cfg.Close()
	h.intf = nil
	h.cfg = nil
	h.outEp = nil
	if err != nil {
		return fmt.Errorf("failed to release interface %d: %w", h.num, classify(err))
	}
	return nil
}

func (h *usbHandle) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	n, err := h.dev.Control(rType, request, val, idx, data)
	return n, classify(err)
}

func (h *usbHandle) BulkOut(ctx context.Context, ep int, data []byte) (int, error) {
	if h.outEp == nil {
		return 0, errClosed
	}
	if ep != PONGO_EP_OUT {
		return 0, fmt.Errorf("endpoint 0x%02x is not claimed", ep)
	}
	n, err := h.outEp.WriteContext(ctx, data)
	return n, classify(err)
}

func (h *usbHandle) Close() error {
	return multierr.Combine(h.Release(), h.dev.Close())
}

func (h *usbHandle) String() string {
	desc := h.dev.Desc
	str := fmt.Sprintf("%s:%s on bus %d address %d", desc.Vendor, desc.Product, desc.Bus, desc.Address)
	if serial, err := h.dev.SerialNumber(); err == nil && serial != "" {
		str += " serial " + serial
	}
	return str
}
