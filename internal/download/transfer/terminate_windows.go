//go:build windows

package transfer

import (
	"os"
	"os/exec"
	"syscall"
)

const createNoWindow = 0x08000000

// terminate kills the process; Windows has no SIGTERM equivalent for
// console-less children.
func terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}

// configureSysProcAttr keeps a console window from flashing up per file.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true, CreationFlags: createNoWindow}
}
