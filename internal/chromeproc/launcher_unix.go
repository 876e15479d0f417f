//go:build unix

package chromeproc

import (
	"syscall"

	"golang.org/x/sys/unix"

	"pkt.systems/chromux/core"
)

// detachedSysProcAttr places the browser in its own process group so the
// whole Chrome process tree can be signalled as one unit.
func detachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// signalProcess signals the process group rooted at pid, falling back to
// the single process if the group signal is refused.
func signalProcess(pid int, sig core.ProcessSignal) error {
	var s unix.Signal
	switch sig {
	case core.ProcessSignalKILL:
		s = unix.SIGKILL
	default:
		s = unix.SIGTERM
	}
	if err := unix.Kill(-pid, s); err == nil {
		return nil
	}
	return unix.Kill(pid, s)
}
