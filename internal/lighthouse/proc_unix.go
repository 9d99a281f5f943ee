//go:build !windows

package lighthouse

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the CLI in its own process group so cancellation reaches the
// node children it spawns.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
