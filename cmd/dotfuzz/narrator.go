package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dotsetgreg/dotfuzz/pkg/bus"
)

type summary struct {
	RunID     string
	Seed      int64
	Rounds    int
	Outcomes  map[string]int
	Fallbacks int
	Replies   int
	Resyncs   int
	Dropped   uint64
	Err       string
}

func (s *summary) write(w io.Writer) {
	fmt.Fprintln(w, "\nRun summary:")
	fmt.Fprintf(w, "  • Run: %s (seed %d)\n", s.RunID, s.Seed)
	fmt.Fprintf(w, "  • Rounds: %d (success %d, ready %d, timed out %d)\n",
		s.Rounds, s.Outcomes["success"], s.Outcomes["ready"], s.Outcomes["timed_out"])
	fmt.Fprintf(w, "  • Replies: %d, fallback commands: %d, resyncs: %d\n", s.Replies, s.Fallbacks, s.Resyncs)
	if s.Dropped > 0 {
		fmt.Fprintf(w, "  • Dropped events: %d\n", s.Dropped)
	}
	if s.Err != "" {
		fmt.Fprintf(w, "  • Stopped by: %s\n", s.Err)
	}
}

// narrator prints one console line per session event and keeps the tallies
// for the final summary.
type narrator struct {
	out io.Writer
	sum summary
}

func newNarrator(out io.Writer) *narrator {
	return &narrator{out: out, sum: summary{Outcomes: map[string]int{}}}
}

// consume returns once the bus is closed and drained.
func (n *narrator) consume(events *bus.EventBus) {
	for {
		ev, ok := events.Consume(context.Background())
		if !ok {
			return
		}
		n.handle(ev)
	}
}

func (n *narrator) handle(ev bus.Event) {
	switch ev.Kind {
	case bus.EventSessionReady:
		fmt.Fprintln(n.out, "Fuzzing started. Press Ctrl+C to stop")
	case bus.EventRoundStarted:
		line := fmt.Sprintf("[round %d] %s/%s → %s", ev.Round, ev.Persona, ev.Topic, ev.Text)
		if ev.Fallback {
			n.sum.Fallbacks++
			line += " (fallback)"
		}
		fmt.Fprintln(n.out, line)
	case bus.EventReplySent:
		n.sum.Replies++
		fmt.Fprintf(n.out, "    ↳ %s: %s\n", ev.State, quoteBlank(ev.Text))
	case bus.EventRoundFinished:
		n.sum.Rounds++
		n.sum.Outcomes[ev.Outcome]++
		fmt.Fprintf(n.out, "[round %d] %s in %s\n", ev.Round, ev.Outcome, ev.Duration.Round(time.Millisecond))
	case bus.EventResync:
		n.sum.Resyncs++
		fmt.Fprintf(n.out, "[resync] after round %d: %s\n", ev.Round, ev.Outcome)
	case bus.EventSessionClosed:
		n.sum.Err = ev.Err
		fmt.Fprintln(n.out, "✓ Session closed")
	}
}

func (n *narrator) summary() *summary {
	s := n.sum
	return &s
}

func quoteBlank(s string) string {
	if strings.TrimSpace(s) == "" {
		return `""`
	}
	return s
}
