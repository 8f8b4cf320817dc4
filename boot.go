package pongoutils

import (
	"errors"
	"fmt"
	"time"
)

type BootStatus int

const (
	BootAcknowledged BootStatus = iota //Device answered the boot command
	BootDisconnected                   //Device dropped off the bus before answering, usually a successful boot
)

func (b BootStatus) String() string {
	switch b {
	case BootAcknowledged:
		return "acknowledged"
	case BootDisconnected:
		return "disconnected"
	}
	return "UNKNOWN"
}

// Config describes what to upload. Kernel and DeviceTree are required.
type Config struct {
	Kernel     *Payload
	DeviceTree *Payload
	Initrd     *Payload
	Cmdline    *string //nil skips the command line stage, an empty string still sets it

	BulkTimeout time.Duration //DefaultBulkTimeout when zero
}

func (cfg *Config) Validate() error {
	if cfg.Kernel == nil {
		return errors.New("no kernel specified")
	}
	if cfg.DeviceTree == nil {
		return errors.New("no dtbpack specified")
	}
	return nil
}

// Boot uploads everything in cfg and issues the boot command.
func (s *Session) Boot(cfg *Config) (BootStatus, error) {
	if err := cfg.Validate(); err != nil {
		return BootAcknowledged, err
	}

	if cfg.Cmdline != nil {
		s.log.Infof("Setting command line: %q", *cfg.Cmdline)
		if err := s.RunStage(StageCmdline, nil, *cfg.Cmdline); err != nil {
			return BootAcknowledged, err
		}
	}

	if cfg.Initrd != nil {
		s.log.Infof("Loading initrd %s...", cfg.Initrd)
		if err := s.RunStage(StageInitrd, cfg.Initrd, ""); err != nil {
			return BootAcknowledged, err
		}
		s.log.Infoln("Loaded initrd")
	}

	s.log.Infof("Loading device tree %s...", cfg.DeviceTree)
	if err := s.RunStage(StageDeviceTree, cfg.DeviceTree, ""); err != nil {
		return BootAcknowledged, err
	}
	s.log.Infoln("Loaded device tree")

	s.log.Infof("Loading kernel %s...", cfg.Kernel)
	if err := s.RunStage(StageKernel, cfg.Kernel, ""); err != nil {
		return BootAcknowledged, err
	}
	s.log.Infoln("Loaded kernel")

	s.log.Infoln("Booting device")
	err := s.RunStage(StageBoot, nil, "")
	if errors.Is(err, ErrDeviceGone) {
		s.log.Infoln("Device should be booting (disconnected without acknowledge)")
		s.log.Debugf("Boot command: %v", err)
		return BootDisconnected, nil
	}
	return BootAcknowledged, err
}

// Run claims h, boots it with cfg and always hands the interface back to the kernel driver afterwards.
// Failing to restore the driver is only logged, the device has usually rebooted by then.
func Run(h Handle, cfg *Config, log Logger) (status BootStatus, err error) {
	log = orNop(log)
	if err := cfg.Validate(); err != nil {
		if cerr := h.Close(); cerr != nil {
			log.Debugf("Error closing %s: %v", h, cerr)
		}
		return BootAcknowledged, err
	}

	sess, err := OpenSession(h, log)
	if err != nil {
		return BootAcknowledged, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Debugf("Device presumed gone: %v", cerr)
		}
	}()
	if cfg.BulkTimeout > 0 {
		sess.BulkTimeout = cfg.BulkTimeout
	}

	status, err = sess.Boot(cfg)
	if err != nil {
		return status, fmt.Errorf("boot: %w", err)
	}
	return status, nil
}
