package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JoshuaDoes/logger"
	pongoutils "github.com/JoshuaDoes/pongo-usbdl"
	"github.com/google/gousb"
	"github.com/spf13/pflag"
)

const (
	app = "Pongo-USBDL"
	ver = "v0.1.0"
	dev = "JoshuaDoes"
)

const defaultVerbosity = 2

const (
	exitOK = iota
	exitUsage
	exitDevice
)

var log *logger.Logger

// usbBus is the device side run needs, swapped out in tests
type usbBus interface {
	pongoutils.Bus
	Close() error
}

type options struct {
	help bool

	kernel     string
	dtbpack    string
	initrd     string
	cmdline    string
	hasCmdline bool //-c was passed, even if empty

	vid       uint16
	pid       uint16
	interval  time.Duration
	timeout   time.Duration
	console   string
	usbDebug  int
	verbosity int
}

func usage() {
	prog := strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))
	text := fmt.Sprintf(
		" Pongo USB Downloader is a tool to upload a Linux kernel, device tree pack and"+
			" optional initial ramdisk to a device running pongoOS, then boot it.\n"+
			"\n"+
			" If the device isn't connected yet, we wait for it to show up. Replug it if you're"+
			" in DFU mode and it isn't detected.\n"+
			"\n"+
			" Usage of %s:\n"+
			" -h, --help           | none     | Prints the help you see now and ignores other arguments\n"+
			"\n"+
			" > Sources\n"+
			" -k, --kernel         | string   | Path to kernel image (required)\n"+
			" -d, --dtbpack        | string   | Path to device tree pack (required)\n"+
			" -r, --initrd         | string   | Path to initial ramdisk\n"+
			" -c, --cmdline        | string   | Custom kernel command line, sent even when empty\n"+
			"\n"+
			" > Device\n"+
			" -V, --usb-vendor-id  | number   | USB vendor ID if the device isn't detected | 0x%04X\n"+
			" -P, --usb-product-id | number   | USB product ID if the device isn't detected | 0x%04X\n"+
			" -i, --interval       | duration | Time between scans while waiting for the device | %s\n"+
			" --timeout            | duration | Time allowed for each bulk upload | %s\n"+
			" --console            | VID:PID  | Follows the booted kernel's USB serial console\n"+
			" --usbdebug           | number   | libusb debug level (0-3)\n"+
			" -v, --verbosity      | number   | Log verbosity | %d\n",
		prog,
		pongoutils.PONGO_VID, pongoutils.PONGO_PID, pongoutils.DefaultPollInterval, pongoutils.DefaultBulkTimeout, defaultVerbosity)
	fmt.Fprintf(os.Stderr, "%s\n", text)
}

func parseFlags(args []string) (*options, error) {
	o := &options{
		vid:       pongoutils.PONGO_VID,
		pid:       pongoutils.PONGO_PID,
		interval:  pongoutils.DefaultPollInterval,
		timeout:   pongoutils.DefaultBulkTimeout,
		verbosity: defaultVerbosity,
	}

	fs := pflag.NewFlagSet(app, pflag.ContinueOnError)
	fs.Usage = usage
	fs.SortFlags = false
	fs.BoolVarP(&o.help, "help", "h", false, "")
	fs.StringVarP(&o.kernel, "kernel", "k", "", "")
	fs.StringVarP(&o.dtbpack, "dtbpack", "d", "", "")
	fs.StringVarP(&o.initrd, "initrd", "r", "", "")
	fs.StringVarP(&o.cmdline, "cmdline", "c", "", "")
	fs.Uint16VarP(&o.vid, "usb-vendor-id", "V", o.vid, "")
	fs.Uint16VarP(&o.pid, "usb-product-id", "P", o.pid, "")
	fs.DurationVarP(&o.interval, "interval", "i", o.interval, "")
	fs.DurationVar(&o.timeout, "timeout", o.timeout, "")
	fs.StringVar(&o.console, "console", "", "")
	fs.IntVar(&o.usbDebug, "usbdebug", 0, "")
	fs.IntVarP(&o.verbosity, "verbosity", "v", o.verbosity, "")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	o.hasCmdline = fs.Changed("cmdline")
	return o, nil
}

// validate checks everything that doesn't need the filesystem or the device
func (o *options) validate() error {
	if o.kernel == "" {
		return fmt.Errorf("No kernel specified! Run `%s --help` for usage.", os.Args[0])
	}
	if o.dtbpack == "" {
		return fmt.Errorf("No dtbpack specified! Run `%s --help` for usage.", os.Args[0])
	}
	if o.console != "" {
		if _, _, err := pongoutils.ParseConsoleID(o.console); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], func(debug int, log pongoutils.Logger) usbBus {
		return pongoutils.NewUSBBus(debug, log)
	}))
}

// run returns exitUsage without touching the bus when the arguments or images are unusable
func run(args []string, newBus func(debug int, log pongoutils.Logger) usbBus) int {
	fmt.Printf("%s %s - %s\n", app, ver, dev)

	opts, err := parseFlags(args)
	if err != nil {
		return exitUsage
	}
	if opts.help {
		usage()
		return exitOK
	}
	if err := opts.validate(); err != nil {
		fmt.Printf("error: %v\n", err)
		return exitUsage
	}

	log = logger.NewLogger(app, opts.verbosity)

	//----------------------
	// Load images into memory before touching the device

	cfg, err := opts.loadConfig()
	if err != nil {
		log.Errorln(err)
		return exitUsage
	}

	//----------------------

	bus := newBus(opts.usbDebug, log)
	defer bus.Close()

	target := pongoutils.Identity{Vendor: gousb.ID(opts.vid), Product: gousb.ID(opts.pid)}
	locator := pongoutils.NewLocator(bus, log)
	locator.Interval = opts.interval

	log.Infoln("Scanning for", target)
	timeStart := time.Now()
	h, err := locator.Find(target)
	if err != nil {
		log.Errorf("Error finding device: %v", err)
		return exitDevice
	}
	log.Infoln("Connected to device!")
	log.Traceln("- Device:", h)
	log.Traceln("- Found after", time.Since(timeStart).String())

	status, err := pongoutils.Run(h, cfg, log)
	if err != nil {
		log.Errorf("Error booting device: %v", err)
		return exitDevice
	}
	log.Debugln("Boot", status)

	if opts.console != "" {
		conVID, conPID, _ := pongoutils.ParseConsoleID(opts.console)
		if err := follow(locator, conVID, conPID); err != nil {
			log.Errorln(err)
		}
	}
	return exitOK
}

func follow(locator *pongoutils.Locator, vid, pid string) error {
	log.Infof("Waiting for console %s:%s...", vid, pid)
	con, err := pongoutils.WaitConsole(locator.Clock, locator.Interval, vid, pid)
	if err != nil {
		return err
	}
	defer con.Close()

	log.Infoln("Attached to console on", con.GetPort())
	if serial := con.GetSerial(); serial != "" {
		log.Traceln("- Serial:", serial)
	}
	if err := con.Follow(log); err != nil {
		log.Debugf("Console closed: %v", err)
	}
	log.Infoln("Console disconnected!")
	return nil
}
