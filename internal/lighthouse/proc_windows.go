//go:build windows

package lighthouse

import "os/exec"

func setProcessGroup(*exec.Cmd) {}
