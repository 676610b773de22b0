//go:build !windows

package server

import (
	"fmt"
	"os/exec"
	"syscall"

	"harness/pkg/logging"
)

// configureProcAttr puts the server into its own process group so that the
// JVM started by the launch script goes down with it.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func terminateSignal() syscall.Signal { return syscall.SIGTERM }

func killSignal() syscall.Signal { return syscall.SIGKILL }

// signalProcessGroup sends sig to the process group led by pid, falling back
// to the single process.
func signalProcessGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err != nil {
		if err2 := syscall.Kill(pid, sig); err2 != nil {
			return fmt.Errorf("failed to signal process group -%d: %v, also failed to signal process %d: %v", pid, err, pid, err2)
		}
		logging.Debug("Server", "Process group signal failed, but signalling process %d succeeded", pid)
	}
	return nil
}
