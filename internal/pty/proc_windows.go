//go:build windows

package pty

import "os/exec"

// Unix ptys are unavailable on Windows; Open fails before any of these
// are reached. They exist so the package still compiles.

func setProcAttrs(cmd *exec.Cmd) {}

func terminateGroup(pid int) {}

func killGroup(pid int) {}
