//go:build !windows

package process

import (
	"os"
	"syscall"
)

func sendRedraw(p *os.Process) error {
	return p.Signal(syscall.SIGWINCH)
}
