//go:build !unix && !windows

package launcher

import "os/exec"

func configure(*exec.Cmd, Command) {}

func interrupt(cmd *exec.Cmd) error { return cmd.Process.Kill() }

func forceKill(cmd *exec.Cmd) error { return cmd.Process.Kill() }
