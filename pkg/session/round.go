package session

import (
	"time"

	"github.com/dotsetgreg/dotfuzz/pkg/dialog"
	"github.com/dotsetgreg/dotfuzz/pkg/persona"
)

// Outcome is how a round ended. Success means the target reported the task
// complete, Ready means it went idle without completing, and TimedOut covers
// both a silent target and a round that hit the reply limit.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeSuccess
	OutcomeReady
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeReady:
		return "ready"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Reply is one answer the driver typed during a round.
type Reply struct {
	State dialog.State
	Text  string
}

// Round records a single command and the dialog that followed it.
type Round struct {
	Index    int
	ID       string
	Context  persona.Context
	Command  string
	Fallback bool
	Replies  []Reply
	Outcome  Outcome
	Started  time.Time
	Finished time.Time
}

func (r Round) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}
