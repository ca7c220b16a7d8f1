package session

import "errors"

var (
	// ErrLaunch means the target could not be started at all.
	ErrLaunch = errors.New("target launch failed")
	// ErrProtocol means the target never showed its initial ready marker.
	ErrProtocol = errors.New("target never became ready")
	// ErrTargetExited means the target's output stream ended mid-session.
	ErrTargetExited = errors.New("target exited")
	// ErrSessionClosed is returned by I/O attempted after Close.
	ErrSessionClosed = errors.New("session closed")
)
