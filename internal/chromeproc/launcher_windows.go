//go:build windows

package chromeproc

import (
	"os"
	"syscall"

	"pkt.systems/chromux/core"
)

func detachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// signalProcess has no graceful option on Windows; both signals kill.
func signalProcess(pid int, _ core.ProcessSignal) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
