//go:build !windows

package transfer

import (
	"os"
	"os/exec"
	"syscall"
)

// terminate sends SIGTERM so aria2c can flush its control file.
func terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Signal(syscall.SIGTERM)
}

func configureSysProcAttr(cmd *exec.Cmd) {}
