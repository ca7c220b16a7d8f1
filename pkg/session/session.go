// Package session drives the target CLI over a terminal: it waits for the
// prompts the target prints and answers them one round at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dotsetgreg/dotfuzz/pkg/dialog"
	"github.com/dotsetgreg/dotfuzz/pkg/logger"
)

const (
	readChunkBytes = 4096
	maxBufferBytes = 64 * 1024
)

// Session is an open conversation with the target. Expect and SendLine are
// meant to be called from one goroutine; a background pump does the reads.
type Session struct {
	term   Terminal
	output io.Writer

	chunks  chan []byte
	readErr error // set by the pump before chunks is closed
	buf     []byte

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// NewSession wraps an already connected terminal. Output, when non-nil,
// receives a copy of everything the target prints.
func NewSession(term Terminal, output io.Writer) *Session {
	s := &Session{
		term:   term,
		output: output,
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.pump()
	return s
}

// Start launches the target on a pty and waits for its ready marker.
func Start(ctx context.Context, opts TargetOptions) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	term, err := Spawn(opts)
	if err != nil {
		return nil, err
	}
	logger.InfoCF("session", "Target started", map[string]interface{}{
		"path": opts.Path,
		"args": opts.Args,
	})

	s := NewSession(term, opts.Output)
	if err := s.AwaitReady(ctx, opts.ReadyTimeout); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// AwaitReady blocks until the target prints its ready marker.
func (s *Session) AwaitReady(ctx context.Context, timeout time.Duration) error {
	m, err := s.ExpectContext(ctx, dialog.ReadyMatcher(), timeout)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if m.State != dialog.Ready {
		return fmt.Errorf("%w: no ready marker within %s", ErrProtocol, timeout)
	}
	return nil
}

// Expect waits up to timeout for the first prompt m recognizes. A timeout is
// reported as a dialog.Timeout match, not an error.
func (s *Session) Expect(m *dialog.Matcher, timeout time.Duration) (dialog.Match, error) {
	return s.ExpectContext(context.Background(), m, timeout)
}

// ExpectContext is Expect that also gives up when ctx is done.
func (s *Session) ExpectContext(ctx context.Context, m *dialog.Matcher, timeout time.Duration) (dialog.Match, error) {
	if match, ok := s.consume(m); ok {
		return match, nil
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case chunk, ok := <-s.chunks:
			if !ok {
				return dialog.Match{}, s.exitErr()
			}
			s.append(chunk)
			if match, ok := s.consume(m); ok {
				return match, nil
			}
		case <-expired:
			return dialog.Match{State: dialog.Timeout}, nil
		case <-ctx.Done():
			return dialog.Match{}, ctx.Err()
		case <-s.done:
			return dialog.Match{}, ErrSessionClosed
		}
	}
}

// SendLine writes line followed by a newline.
func (s *Session) SendLine(line string) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	if _, err := io.WriteString(s.term, line+"\n"); err != nil {
		return fmt.Errorf("%w: write: %v", ErrTargetExited, err)
	}
	return nil
}

// Close ends the connection. Only the first call reaches the terminal.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.term.Close()
		s.wg.Wait()
	})
	return s.closeErr
}

// Pending returns output received but not yet consumed by a match.
func (s *Session) Pending() string {
	return string(s.buf)
}

func (s *Session) pump() {
	defer s.wg.Done()
	defer close(s.chunks)

	buf := make([]byte, readChunkBytes)
	for {
		n, err := s.term.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case s.chunks <- chunk:
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.readErr = err
			return
		}
	}
}

func (s *Session) append(chunk []byte) {
	if s.output != nil {
		_, _ = s.output.Write(chunk)
	}
	s.buf = append(s.buf, chunk...)
	if len(s.buf) > maxBufferBytes {
		s.buf = s.buf[len(s.buf)-maxBufferBytes:]
	}
}

// consume drops everything up to the end of the first match.
func (s *Session) consume(m *dialog.Matcher) (dialog.Match, bool) {
	match, ok := m.Find(s.buf)
	if !ok {
		return dialog.Match{}, false
	}
	s.buf = append(s.buf[:0], s.buf[match.End:]...)
	return match, true
}

func (s *Session) exitErr() error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	if s.readErr == nil || errors.Is(s.readErr, io.EOF) {
		return ErrTargetExited
	}
	return fmt.Errorf("%w: %v", ErrTargetExited, s.readErr)
}
