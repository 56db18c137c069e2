//go:build windows

package process

import "os"

// Windows consoles repaint on resize without a signal.
func sendRedraw(*os.Process) error {
	return nil
}
