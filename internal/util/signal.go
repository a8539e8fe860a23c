package util

import (
	"os"
	"runtime"
	"syscall"
)

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

// InterruptProcess asks p to exit. Windows cannot interrupt a child
// process, so there it is left for exec.Cmd.WaitDelay to kill.
func InterruptProcess(p *os.Process) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	return p.Signal(os.Interrupt)
}
