package pongoutils

import (
	"errors"
	"fmt"

	"github.com/google/gousb"
)

var (
	// ErrDeviceGone marks a transfer that failed because the device or its endpoint vanished,
	// which is what pongoOS does right after accepting the boot command.
	ErrDeviceGone = errors.New("device disconnected")

	errNoPayload = errors.New("no payload")
	errClosed    = errors.New("session closed")
)

// classify wraps libusb failures that mean the device went away with ErrDeviceGone
func classify(err error) error {
	if err == nil || errors.Is(err, ErrDeviceGone) {
		return err
	}

	var usbErr gousb.Error
	if errors.As(err, &usbErr) {
		switch usbErr {
		case gousb.ErrorNoDevice, gousb.ErrorIO, gousb.ErrorPipe:
			return fmt.Errorf("%w: %w", ErrDeviceGone, err)
		}
		return err
	}

	var status gousb.TransferStatus
	if errors.As(err, &status) {
		switch status {
		case gousb.TransferNoDevice, gousb.TransferError, gousb.TransferStall:
			return fmt.Errorf("%w: %w", ErrDeviceGone, err)
		}
	}
	return err
}
