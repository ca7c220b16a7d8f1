package session

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
)

// Terminal is the byte stream to the target. A pty satisfies it; tests use
// scripted fakes. Close must unblock a pending Read.
type Terminal interface {
	io.ReadWriteCloser
}

// TargetOptions describe how to launch the program under test.
type TargetOptions struct {
	Path string
	Args []string
	Env  []string // appended to the current environment
	Dir  string
	Rows uint16
	Cols uint16

	// ReadyTimeout bounds the wait for the first ready marker in Start.
	ReadyTimeout time.Duration
	// Output receives a copy of everything the target prints.
	Output io.Writer
}

type ptyTerminal struct {
	f    *os.File
	cmd  *exec.Cmd
	once sync.Once
	err  error
}

// Spawn starts the target attached to a new pseudo-terminal.
func Spawn(opts TargetOptions) (Terminal, error) {
	info, err := os.Stat(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return nil, fmt.Errorf("%w: %s is not an executable file", ErrLaunch, opts.Path)
	}

	cmd := exec.Command(opts.Path, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), opts.Env...)

	size := &pty.Winsize{Rows: opts.Rows, Cols: opts.Cols}
	if size.Rows == 0 {
		size.Rows = 40
	}
	if size.Cols == 0 {
		size.Cols = 200
	}
	f, err := startPTY(cmd, size)
	if err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrLaunch, opts.Path, err)
	}
	return &ptyTerminal{f: f, cmd: cmd}, nil
}

func (t *ptyTerminal) Read(p []byte) (int, error) {
	return t.f.Read(p)
}

func (t *ptyTerminal) Write(p []byte) (int, error) {
	return t.f.Write(p)
}

// Close kills the target, which also ends any Read blocked on the master.
func (t *ptyTerminal) Close() error {
	t.once.Do(func() {
		if t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
		t.err = t.f.Close()
		_ = t.cmd.Wait()
	})
	return t.err
}
