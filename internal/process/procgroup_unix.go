//go:build unix

package process

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places cmd in its own process group so cancellation also
// kills children that would otherwise keep the output pipe open.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
