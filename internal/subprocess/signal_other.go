//go:build !unix

package subprocess

import (
	"os"
	"syscall"
)

var (
	stopSignal os.Signal = os.Interrupt
	killSignal os.Signal = os.Kill
)

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

// signalGroup delivers sig to the child. Platforms without process groups
// cannot interrupt, so the stop signal falls back to a kill.
func signalGroup(process *os.Process, sig os.Signal) error {
	if err := process.Signal(sig); err != nil && sig != os.Kill {
		return process.Kill()
	}

	return nil
}
