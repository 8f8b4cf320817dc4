package pongoutils

import (
	"github.com/JoshuaDoes/crunchio"
	"github.com/docker/go-units"
)

// Payload is an image read once before any transfer begins and never modified afterwards.
type Payload struct {
	name string
	buf  *crunchio.Buffer
}

func NewPayload(name string, data []byte) *Payload {
	return &Payload{
		name: name,
		buf:  crunchio.NewBuffer(name, data),
	}
}

func (p *Payload) Name() string {
	return p.name
}

func (p *Payload) Bytes() []byte {
	return p.buf.Bytes()
}

func (p *Payload) Len() int {
	return len(p.Bytes())
}

// String returns the payload name with its human readable size, i.e. "kernel (12.4MB)"
func (p *Payload) String() string {
	return p.name + " (" + units.HumanSize(float64(p.Len())) + ")"
}
