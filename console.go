package pongoutils

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var (
	mutexPorts sync.Mutex
	knownPorts []*enumerator.PortDetails

	// listPorts is swapped out by tests
	listPorts = enumerator.GetDetailedPortsList
	openPort  = func(name string) (io.ReadCloser, error) {
		return serial.Open(name, &serial.Mode{BaudRate: 115200, Parity: serial.NoParity, DataBits: 8, StopBits: serial.OneStopBit})
	}
)

func refreshPorts() error {
	mutexPorts.Lock()
	defer mutexPorts.Unlock()

	ports, err := listPorts()
	if err != nil {
		return err
	}
	knownPorts = ports
	return nil
}

func getPort(vid, pid string) *enumerator.PortDetails {
	mutexPorts.Lock()
	defer mutexPorts.Unlock()

	for i := 0; i < len(knownPorts); i++ {
		port := knownPorts[i]
		if !port.IsUSB || !strings.EqualFold(port.VID, vid) || !strings.EqualFold(port.PID, pid) {
			continue
		}
		return port
	}
	return nil
}

// Console is the serial console a booted kernel exposes over USB
type Console struct {
	port io.ReadCloser
	info *enumerator.PortDetails
}

// ParseConsoleID splits a "VID:PID" pair in hex, i.e. "1D6B:0104"
func ParseConsoleID(id string) (vid, pid string, err error) {
	split := strings.Split(id, ":")
	if len(split) != 2 || len(split[0]) != 4 || len(split[1]) != 4 {
		return "", "", fmt.Errorf("console: invalid id '%s', expected VID:PID", id)
	}
	return strings.ToUpper(split[0]), strings.ToUpper(split[1]), nil
}

// WaitConsole polls the serial ports every interval until one with vid:pid appears and opens it
func WaitConsole(clk clock.Clock, interval time.Duration, vid, pid string) (*Console, error) {
	if clk == nil {
		clk = clock.New()
	}
	for {
		if err := refreshPorts(); err != nil {
			return nil, fmt.Errorf("console: failed to list ports: %w", err)
		}
		if dev := getPort(vid, pid); dev != nil {
			port, err := openPort(dev.Name)
			if err != nil {
				return nil, fmt.Errorf("console: failed to open '%s': %w", dev.Name, err)
			}
			return &Console{port: port, info: dev}, nil
		}
		clk.Sleep(interval)
	}
}

// Follow logs every line read from the console until it closes
func (c *Console) Follow(log Logger) error {
	log = orNop(log)
	scanner := bufio.NewScanner(c.port)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		log.Infoln("|", line)
	}
	return scanner.Err()
}

func (c *Console) Close() error {
	return c.port.Close()
}

func (c *Console) GetPort() string {
	return c.info.Name
}

func (c *Console) GetSerial() string {
	return c.info.SerialNumber
}
