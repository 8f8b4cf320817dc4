package pongoutils

import (
	"context"
	"fmt"
)

type Stage int

const (
	StageCmdline Stage = iota
	StageInitrd
	StageDeviceTree
	StageKernel
	StageBoot
)

func (st Stage) String() string {
	switch st {
	case StageCmdline:
		return "command line"
	case StageInitrd:
		return "initrd"
	case StageDeviceTree:
		return "device tree"
	case StageKernel:
		return "kernel"
	case StageBoot:
		return "boot"
	}
	return "UNKNOWN"
}

type step int

const (
	stepResetBulk step = iota
	stepAnnounce
	stepAnnouncePlaceholder //pongoOS takes the device tree size from the blob itself
	stepBulk
	stepResetCommand
	stepCommand
)

func (s step) String() string {
	switch s {
	case stepResetBulk:
		return "reset bulk"
	case stepAnnounce, stepAnnouncePlaceholder:
		return "announce size"
	case stepBulk:
		return "bulk upload"
	case stepResetCommand:
		return "reset command"
	case stepCommand:
		return "command"
	}
	return "UNKNOWN"
}

var recipes = map[Stage][]step{
	StageCmdline:    {stepResetCommand, stepCommand},
	StageInitrd:     {stepResetBulk, stepAnnounce, stepBulk, stepResetCommand, stepCommand},
	StageDeviceTree: {stepResetBulk, stepAnnouncePlaceholder, stepBulk, stepResetCommand, stepCommand},
	StageKernel:     {stepResetBulk, stepAnnounce, stepBulk, stepResetCommand},
	StageBoot:       {stepCommand},
}

func (st Stage) needsPayload() bool {
	for _, s := range recipes[st] {
		if s == stepBulk {
			return true
		}
	}
	return false
}

func (st Stage) command(cmdline string) *Command {
	switch st {
	case StageCmdline:
		return CmdCmdline(cmdline)
	case StageInitrd:
		return CmdRamdisk
	case StageDeviceTree:
		return CmdFDT
	case StageBoot:
		return CmdBoot
	}
	return nil
}

// RunStage performs every sub-step of a stage in order, stopping at the first failure.
// payload is required by stages that upload over bulk, cmdline is only read by StageCmdline and may be empty.
func (s *Session) RunStage(st Stage, payload *Payload, cmdline string) error {
	recipe, ok := recipes[st]
	if !ok {
		return fmt.Errorf("unknown stage %d", int(st))
	}
	if st.needsPayload() && payload == nil {
		return fmt.Errorf("%s: %w", st, errNoPayload)
	}

	for _, sub := range recipe {
		if err := s.runStep(st, sub, payload, cmdline); err != nil {
			return fmt.Errorf("%s: %s: %w", st, sub, err)
		}
	}
	return nil
}

func (s *Session) runStep(st Stage, sub step, payload *Payload, cmdline string) error {
	switch sub {
	case stepResetBulk:
		return s.control(reqResetBulk, nil)
	case stepAnnounce:
		size, err := announceSize(payload.Len())
		if err != nil {
			return err
		}
		return s.control(reqAnnounce, size)
	case stepAnnouncePlaceholder:
		return s.control(reqAnnounce, nil)
	case stepBulk:
		return s.bulk(payload)
	case stepResetCommand:
		return s.control(reqResetCommand, nil)
	case stepCommand:
		return s.command(st.command(cmdline))
	}
	return fmt.Errorf("unknown step %d", int(sub))
}

func (s *Session) bulk(payload *Payload) error {
	if s.closed {
		return errClosed
	}
	data := payload.Bytes()

	ctx := context.Background()
	if s.BulkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.BulkTimeout)
		defer cancel()
	}

	s.log.Debugf("Uploading %s", payload)
	n, err := s.h.BulkOut(ctx, PONGO_EP_OUT, data)
	if err != nil {
		return fmt.Errorf("wrote %d/%d bytes: %w", n, len(data), err)
	}
	if n != len(data) {
		return fmt.Errorf("short write: wrote %d/%d bytes", n, len(data))
	}
	return nil
}
