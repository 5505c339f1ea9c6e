//go:build windows

package launcher

import (
	"os/exec"
	"syscall"
)

func configure(cmd *exec.Cmd, c Command) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: !c.Visible}
}

// Windows has no polite termination signal for console processes.
func interrupt(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func forceKill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
