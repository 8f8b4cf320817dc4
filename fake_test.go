package pongoutils

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// call is one operation recorded by fakeHandle
type call struct {
	Op      string
	Request uint8
	Data    []byte
	Ep      int
	Len     int
}

func ctrl(request uint8, data []byte) call {
	return call{Op: "control", Request: request, Data: data}
}

func bulk(n int) call {
	return call{Op: "bulk", Ep: PONGO_EP_OUT, Len: n}
}

var (
	callClaim   = call{Op: "claim"}
	callRelease = call{Op: "release"}
	callClose   = call{Op: "close"}
)

type fakeHandle struct {
	calls []call

	claimErr   error
	releaseErr error
	// fail returns the error the given call should fail with, if any
	fail       func(c call) error
}

func (h *fakeHandle) record(c call) error {
	h.calls = append(h.calls, c)
	if h.fail != nil {
		return h.fail(c)
	}
	return nil
}

func (h *fakeHandle) Claim(intf int) error {
	h.calls = append(h.calls, callClaim)
	if intf != PONGO_IFACE {
		return fmt.Errorf("unexpected interface %d", intf)
	}
	return h.claimErr
}

func (h *fakeHandle) Release() error {
	h.calls = append(h.calls, callRelease)
	return h.releaseErr
}

func (h *fakeHandle) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	if rType != reqType || val != 0 || idx != 0 {
		return 0, fmt.Errorf("unexpected control 0x%02x %d %d %d", rType, request, val, idx)
	}
	c := ctrl(request, append([]byte(nil), data...))
	if err := h.record(c); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (h *fakeHandle) BulkOut(ctx context.Context, ep int, data []byte) (int, error) {
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("bulk upload without deadline")
	}
	if err := h.record(call{Op: "bulk", Ep: ep, Len: len(data)}); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (h *fakeHandle) Close() error {
	h.calls = append(h.calls, callClose)
	return nil
}

func (h *fakeHandle) String() string {
	return "fake"
}

func (h *fakeHandle) count(op string) int {
	n := 0
	for _, c := range h.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// failCommand fails the named command whose text starts with prefix
func failCommand(prefix string, err error) func(c call) error {
	return func(c call) error {
		if c.Op == "control" && c.Request == reqCommand && strings.HasPrefix(string(c.Data), prefix) {
			return err
		}
		return nil
	}
}

type recordLogger struct {
	nopLogger
	infos []string
}

func (l *recordLogger) Infoln(v ...interface{}) {
	l.infos = append(l.infos, strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (l *recordLogger) Infof(format string, v ...interface{}) {
	l.infos = append(l.infos, fmt.Sprintf(format, v...))
}

func (l *recordLogger) contains(substr string) bool {
	for _, line := range l.infos {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func openFake(h *fakeHandle) *Session {
	sess, err := OpenSession(h, nil)
	if err != nil {
		panic(err)
	}
	return sess
}
