package pongoutils

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func testConfig() *Config {
	return &Config{
		Kernel:     NewPayload("kernel", make([]byte, 64*1024)),
		DeviceTree: NewPayload("dtbpack", make([]byte, 4*1024)),
	}
}

func TestRun_KernelAndDeviceTree(t *testing.T) {
	h := &fakeHandle{}
	status, err := Run(h, testConfig(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if status != BootAcknowledged {
		t.Errorf("status = %s, want %s", status, BootAcknowledged)
	}

	want := []call{
		callClaim,
		// device tree
		ctrl(reqResetBulk, nil),
		ctrl(reqAnnounce, nil),
		bulk(4 * 1024),
		ctrl(reqResetCommand, nil),
		ctrl(reqCommand, []byte("fdt\n")),
		// kernel
		ctrl(reqResetBulk, nil),
		ctrl(reqAnnounce, sizeLE(64*1024)),
		bulk(64 * 1024),
		ctrl(reqResetCommand, nil),
		// boot
		ctrl(reqCommand, []byte("bootl\n")),
		callRelease,
		callClose,
	}
	if diff := cmp.Diff(want, h.calls, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Run calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_OptionalStages(t *testing.T) {
	cfg := testConfig()
	cmdline := "console=ttySAC0"
	cfg.Cmdline = &cmdline
	cfg.Initrd = NewPayload("initrd", make([]byte, 300))

	h := &fakeHandle{}
	if _, err := Run(h, cfg, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []call{
		callClaim,
		ctrl(reqResetCommand, nil),
		ctrl(reqCommand, []byte("linux_cmdline console=ttySAC0\n")),
		ctrl(reqResetBulk, nil),
		ctrl(reqAnnounce, sizeLE(300)),
		bulk(300),
		ctrl(reqResetCommand, nil),
		ctrl(reqCommand, []byte("ramdisk\n")),
	}
	if diff := cmp.Diff(want, h.calls[:len(want)], cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Run calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_SkipsCmdlineAndInitrd(t *testing.T) {
	h := &fakeHandle{}
	if _, err := Run(h, testConfig(), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, c := range h.calls {
		if c.Op != "control" || c.Request != reqCommand {
			continue
		}
		if strings.HasPrefix(string(c.Data), "ramdisk") {
			t.Error("initrd stage ran without an initrd")
		}
		if strings.HasPrefix(string(c.Data), "linux_cmdline") {
			t.Error("command line stage ran without a command line")
		}
	}
	if got := h.count("control"); got != 8 {
		t.Errorf("control transfers = %d, want 8", got)
	}
	if got := h.count("bulk"); got != 2 {
		t.Errorf("bulk uploads = %d, want 2", got)
	}
}

func TestRun_EmptyCmdlineStillSent(t *testing.T) {
	h := &fakeHandle{}
	cfg := testConfig()
	empty := ""
	cfg.Cmdline = &empty
	if _, err := Run(h, cfg, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []call{
		callClaim,
		ctrl(reqResetCommand, nil),
		ctrl(reqCommand, []byte("linux_cmdline \n")),
		ctrl(reqResetBulk, nil),
	}
	if diff := cmp.Diff(want, h.calls[:len(want)], cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Run calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_BootDisconnect(t *testing.T) {
	log := &recordLogger{}
	h := &fakeHandle{
		fail:       failCommand("bootl", fmt.Errorf("%w: LIBUSB_ERROR_NO_DEVICE", ErrDeviceGone)),
		releaseErr: ErrDeviceGone,
	}

	status, err := Run(h, testConfig(), log)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if status != BootDisconnected {
		t.Errorf("status = %s, want %s", status, BootDisconnected)
	}
	if !log.contains("disconnected without acknowledge") {
		t.Errorf("no informational message about the disconnect, got %q", log.infos)
	}
	if got := h.count("release"); got != 1 {
		t.Errorf("release called %d times, want 1", got)
	}
}

func TestRun_BootOtherFailure(t *testing.T) {
	errTimeout := errors.New("LIBUSB_ERROR_TIMEOUT")
	h := &fakeHandle{fail: failCommand("bootl", errTimeout)}

	_, err := Run(h, testConfig(), nil)
	if !errors.Is(err, errTimeout) {
		t.Fatalf("Run error = %v, want timeout", err)
	}
	if errors.Is(err, ErrDeviceGone) {
		t.Error("timeout classified as a disconnect")
	}
	if got := h.count("release"); got != 1 {
		t.Errorf("release called %d times, want 1", got)
	}
}

func TestRun_DisconnectBeforeBootIsFatal(t *testing.T) {
	h := &fakeHandle{fail: failCommand("fdt", ErrDeviceGone)}

	_, err := Run(h, testConfig(), nil)
	if !errors.Is(err, ErrDeviceGone) {
		t.Fatalf("Run error = %v, want ErrDeviceGone", err)
	}
	if got := h.count("bulk"); got != 1 {
		t.Errorf("bulk uploads = %d, want 1 (kernel must not be sent)", got)
	}
}

func TestRun_ReleaseOnFailure(t *testing.T) {
	errBulk := errors.New("bulk failed")
	h := &fakeHandle{
		fail: func(c call) error {
			if c.Op == "bulk" && c.Len == 64*1024 {
				return errBulk
			}
			return nil
		},
	}

	if _, err := Run(h, testConfig(), nil); !errors.Is(err, errBulk) {
		t.Fatalf("Run error = %v, want bulk failure", err)
	}

	last := h.calls[len(h.calls)-3:]
	want := []call{bulk(64 * 1024), callRelease, callClose}
	if diff := cmp.Diff(want, last, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("calls after failure mismatch (-want +got):\n%s", diff)
	}
	if got := h.count("release"); got != 1 {
		t.Errorf("release called %d times, want 1", got)
	}
}

func TestRun_ReleaseOnPanic(t *testing.T) {
	h := &fakeHandle{
		fail: func(c call) error {
			if c.Op == "bulk" {
				panic("transfer exploded")
			}
			return nil
		},
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		Run(h, testConfig(), nil)
	}()

	if got := h.count("release"); got != 1 {
		t.Errorf("release called %d times, want 1", got)
	}
}

func TestRun_ClaimFailure(t *testing.T) {
	errBusy := errors.New("busy")
	h := &fakeHandle{claimErr: errBusy}

	if _, err := Run(h, testConfig(), nil); !errors.Is(err, errBusy) {
		t.Fatalf("Run error = %v, want busy", err)
	}
	want := []call{callClaim, callClose}
	if diff := cmp.Diff(want, h.calls, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	h := &fakeHandle{}
	if _, err := Run(h, &Config{Kernel: NewPayload("kernel", []byte{1})}, nil); err == nil {
		t.Fatal("Run without device tree should fail")
	}
	if h.count("claim") != 0 || h.count("control") != 0 {
		t.Errorf("invalid config touched the device: %+v", h.calls)
	}
}

func TestSession_CloseOnce(t *testing.T) {
	h := &fakeHandle{releaseErr: ErrDeviceGone}
	sess := openFake(h)

	if err := sess.Close(); !errors.Is(err, ErrDeviceGone) {
		t.Errorf("Close = %v, want ErrDeviceGone", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if !sess.Closed() {
		t.Error("session not marked closed")
	}
	if got := h.count("release"); got != 1 {
		t.Errorf("release called %d times, want 1", got)
	}
}
