//go:build !windows

package pty

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcAttrs places the child in its own process group so signals
// reach the whole tree (CLIs fork helper processes). Setsid makes the
// child a session leader (and thus a group leader); Setpgid must not be
// combined with it because setpgid on a session leader fails with EPERM,
// and pty.StartWithSize forces Setsid on regardless.
func setProcAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// terminateGroup sends SIGTERM to the child's process group.
func terminateGroup(pid int) {
	_ = unix.Kill(-pid, unix.SIGTERM)
}

// killGroup sends SIGKILL to the child's process group.
func killGroup(pid int) {
	_ = unix.Kill(-pid, unix.SIGKILL)
}
