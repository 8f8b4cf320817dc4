package pongoutils

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// DefaultBulkTimeout bounds a single bulk upload, images can be tens of megabytes
const DefaultBulkTimeout = 1000000 * time.Millisecond

// Session owns a claimed Handle for the duration of an upload.
// Exactly one session exists per run and Close must be called on every exit path.
type Session struct {
	h   Handle
	log Logger

	BulkTimeout time.Duration

	closed bool
}

// OpenSession claims the pongoOS interface on h. On failure h is closed and nothing needs cleaning up.
func OpenSession(h Handle, log Logger) (*Session, error) {
	log = orNop(log)
	if err := h.Claim(PONGO_IFACE); err != nil {
		if cerr := h.Close(); cerr != nil {
			log.Debugf("Error closing %s: %v", h, cerr)
		}
		return nil, fmt.Errorf("session: %w", err)
	}
	log.Debugf("Claimed interface %d on %s", PONGO_IFACE, h)

	return &Session{
		h:           h,
		log:         log,
		BulkTimeout: DefaultBulkTimeout,
	}, nil
}

// Close hands the interface back to the kernel driver and closes the device.
// It only does so once, later calls return nil.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if rerr := s.h.Release(); rerr != nil {
		err = multierr.Append(err, fmt.Errorf("kernel driver not restored: %w", rerr))
	} else {
		s.log.Debugf("Restored kernel driver on interface %d", PONGO_IFACE)
	}
	return multierr.Append(err, s.h.Close())
}

func (s *Session) Closed() bool {
	return s.closed
}

func (s *Session) control(request uint8, data []byte) error {
	if s.closed {
		return errClosed
	}
	s.log.Tracef("control 0x%02x %d (%d bytes)", reqType, request, len(data))
	if _, err := s.h.Control(reqType, request, 0, 0, data); err != nil {
		return fmt.Errorf("control %d: %w", request, err)
	}
	return nil
}

func (s *Session) command(cmd *Command) error {
	s.log.Debugf("> %s", cmd)
	return s.control(reqCommand, cmd.Bytes())
}
