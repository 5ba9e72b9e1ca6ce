//go:build windows

package process

import (
	"os"
	"os/exec"
	"strconv"
)

func shellCommand(command string) *exec.Cmd {
	return exec.Command("cmd", "/C", command)
}

func configure(cmd *exec.Cmd) {}

// terminate has no graceful equivalent on Windows; taskkill without /F asks politely.
func terminate(cmd *exec.Cmd) error {
	return exec.Command("taskkill", "/T", "/PID", strconv.Itoa(cmd.Process.Pid)).Run()
}

func kill(cmd *exec.Cmd) error {
	if err := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(cmd.Process.Pid)).Run(); err != nil {
		return cmd.Process.Signal(os.Kill)
	}
	return nil
}
