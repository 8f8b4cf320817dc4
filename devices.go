package pongoutils

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/gousb"
)

const DefaultPollInterval = 2 * time.Second

// DefaultIdentity is the VID:PID pongoOS enumerates with on checkm8 capable devices
var DefaultIdentity = Identity{Vendor: PONGO_VID, Product: PONGO_PID}

type Identity struct {
	Vendor, Product gousb.ID
}

func (id Identity) String() string {
	return fmt.Sprintf("%s:%s", id.Vendor, id.Product)
}

// Locator finds the target device on a bus, waiting for it to be plugged in if it is not there yet
type Locator struct {
	Bus      Bus
	Clock    clock.Clock
	Interval time.Duration
	Log      Logger
}

func NewLocator(bus Bus, log Logger) *Locator {
	return &Locator{
		Bus:      bus,
		Clock:    clock.New(),
		Interval: DefaultPollInterval,
		Log:      log,
	}
}

// Find scans the bus for id and keeps rescanning every Interval until it shows up.
// There is no timeout, absence of the device is never an error.
func (l *Locator) Find(id Identity) (Handle, error) {
	log := orNop(l.Log)

	h, err := l.scan(id)
	if err != nil || h != nil {
		return h, err
	}

	log.Infoln("Finding device... replug if you're in DFU and the device isn't detected.")
	clk := l.Clock
	if clk == nil {
		clk = clock.New()
	}
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	for {
		clk.Sleep(interval)
		h, err = l.scan(id)
		if err != nil || h != nil {
			return h, err
		}
		log.Tracef("No %s yet, retrying in %s", id, interval)
	}
}

// scan opens id once, treating a device that vanished mid scan as not attached yet
func (l *Locator) scan(id Identity) (Handle, error) {
	h, err := l.Bus.Open(id)
	if errors.Is(err, ErrDeviceGone) {
		orNop(l.Log).Tracef("Scan for %s: %v", id, err)
		return nil, nil
	}
	return h, err
}
