//go:build unix

package subprocess

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	stopSignal = unix.SIGTERM
	killSignal = unix.SIGKILL
)

// sysProcAttr places the child in its own process group so that stop
// signals reach anything it spawns.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup delivers sig to the child's process group, falling back to
// the child alone if the group is gone.
func signalGroup(process *os.Process, sig unix.Signal) error {
	if err := unix.Kill(-process.Pid, sig); err == nil {
		return nil
	}

	return process.Signal(sig)
}
