//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package session

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// startPTY falls back to the library default here; the target's terminal
// keeps echo on.
func startPTY(cmd *exec.Cmd, size *pty.Winsize) (*os.File, error) {
	return pty.StartWithSize(cmd, size)
}
