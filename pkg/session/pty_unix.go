//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package session

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// startPTY runs cmd on a new pseudo-terminal with input echo disabled, so the
// master only carries what the target itself prints.
func startPTY(cmd *exec.Cmd, size *pty.Winsize) (*os.File, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, err
	}
	defer tty.Close() // the child holds its own copy

	if err := pty.Setsize(ptmx, size); err != nil {
		_ = ptmx.Close()
		return nil, err
	}
	if err := disableEcho(tty); err != nil {
		_ = ptmx.Close()
		return nil, fmt.Errorf("disable echo: %w", err)
	}

	cmd.Stdin, cmd.Stdout, cmd.Stderr = tty, tty, tty
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true
	cmd.SysProcAttr.Setctty = true

	if err := cmd.Start(); err != nil {
		_ = ptmx.Close()
		return nil, err
	}
	return ptmx, nil
}

func disableEcho(tty *os.File) error {
	fd := int(tty.Fd())
	t, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return err
	}
	t.Lflag &^= unix.ECHO | unix.ECHONL
	return unix.IoctlSetTermios(fd, ioctlSetTermios, t)
}
