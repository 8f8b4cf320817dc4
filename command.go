package pongoutils

import (
	"fmt"
	"math"
	"strings"

	"github.com/JoshuaDoes/crunchio"
)

const (
	reqType = 0x21 //Host to device, class, interface

	reqAnnounce     = 1 //Size of the next bulk upload
	reqResetBulk    = 2 //Rewind the upload buffer
	reqCommand      = 3 //Newline terminated shell command
	reqResetCommand = 4 //Clear the pending command buffer
)

var (
	CmdRamdisk = NewCommand("ramdisk")
	CmdFDT     = NewCommand("fdt")
	CmdBoot    = NewCommand("bootl")
)

// Command is a pongoOS shell command sent over the control endpoint
type Command struct {
	name string
	args []string
}

func NewCommand(name string, args ...string) *Command {
	return &Command{
		name: name,
		args: args,
	}
}

// CmdCmdline sets the kernel command line used by the next boot, an empty one included
func CmdCmdline(cmdline string) *Command {
	return NewCommand("linux_cmdline", cmdline)
}

func (c *Command) Bytes() []byte {
	return []byte(c.String() + "\n")
}

func (c *Command) String() string {
	if len(c.args) == 0 {
		return c.name
	}
	return c.name + " " + c.Arg()
}

func (c *Command) Name() string {
	return c.name
}

func (c *Command) Arg() string {
	return strings.Join(c.args, " ")
}

// announceSize encodes the length of a bulk upload as a little endian uint32
func announceSize(size int) ([]byte, error) {
	if size < 0 || uint64(size) > math.MaxUint32 {
		return nil, fmt.Errorf("size %d does not fit in 32 bits", size)
	}
	u32 := crunchio.NewBuffer("size", make([]byte, 4))
	u32.Buffer().WriteU32LE(0, []uint32{uint32(size)})
	return u32.Bytes(), nil
}
