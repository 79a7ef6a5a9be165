//go:build !unix

package proc

import (
	"errors"
	"os"
	"os/exec"
)

func setGroup(*exec.Cmd) {}

// Without process groups only the leader can be reached.
func killGroup(cmd *exec.Cmd, _ int) error {
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
