package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dotsetgreg/dotfuzz/pkg/bus"
	"github.com/dotsetgreg/dotfuzz/pkg/dialog"
	"github.com/dotsetgreg/dotfuzz/pkg/generator"
	"github.com/dotsetgreg/dotfuzz/pkg/logger"
	"github.com/dotsetgreg/dotfuzz/pkg/persona"
)

const (
	DefaultInterval           = 10 * time.Second
	DefaultReadTimeout        = 60 * time.Second
	DefaultResyncEvery        = 10
	DefaultMaxRepliesPerRound = 50
)

// PromptSource supplies the opening command for each round.
type PromptSource interface {
	Generate(ctx context.Context, round int) generator.Prompt
}

// Replier answers a prompt on behalf of the round's persona.
type Replier interface {
	Reply(state dialog.State, pc persona.Context) (string, bool)
}

// Options tune the round loop. Zero fields take the defaults below, except
// MaxRounds where zero means no limit.
type Options struct {
	Interval     time.Duration // pause between rounds
	ReadTimeout  time.Duration // per prompt wait inside a round
	ReadyTimeout time.Duration // wait for the ready marker after a resync
	// ResyncEvery sends a blank line and waits for ready after every n-th
	// round. Zero disables it.
	ResyncEvery int
	// MaxRepliesPerRound ends a round that keeps asking questions.
	MaxRepliesPerRound int
	// MaxRounds stops the run after that many rounds. Zero runs until the
	// context is cancelled.
	MaxRounds int
}

// DefaultOptions returns the interval and timeouts used by the CLI.
func DefaultOptions() Options {
	return Options{
		Interval:           DefaultInterval,
		ReadTimeout:        DefaultReadTimeout,
		ReadyTimeout:       DefaultReadTimeout,
		ResyncEvery:        DefaultResyncEvery,
		MaxRepliesPerRound: DefaultMaxRepliesPerRound,
	}
}

// Driver runs rounds against one session until cancelled or the target
// exits.
type Driver struct {
	session *Session
	prompts PromptSource
	policy  Replier
	events  *bus.EventBus
	opts    Options
	matcher *dialog.Matcher
	ready   *dialog.Matcher
}

// NewDriver takes ownership of s; Run closes it. events may be nil.
func NewDriver(s *Session, prompts PromptSource, policy Replier, events *bus.EventBus, opts Options) *Driver {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = opts.ReadTimeout
	}
	if opts.MaxRepliesPerRound <= 0 {
		opts.MaxRepliesPerRound = DefaultMaxRepliesPerRound
	}
	return &Driver{
		session: s,
		prompts: prompts,
		policy:  policy,
		events:  events,
		opts:    opts,
		matcher: dialog.RoundMatcher(),
		ready:   dialog.ReadyMatcher(),
	}
}

// Run plays rounds until ctx is cancelled, MaxRounds is reached, or the
// target goes away. Cancellation is only observed between rounds and during
// the pause. A clean stop returns nil; a lost target returns ErrTargetExited.
func (d *Driver) Run(ctx context.Context) (err error) {
	rounds := 0
	defer func() {
		if cerr := d.session.Close(); cerr != nil {
			logger.DebugCF("session", "Close reported an error", map[string]interface{}{
				"error": cerr.Error(),
			})
		}
		ev := bus.Event{Kind: bus.EventSessionClosed, Round: rounds}
		if err != nil {
			ev.Err = err.Error()
		}
		d.events.Publish(ev)
		logger.InfoCF("session", "Session closed", map[string]interface{}{
			"rounds": rounds,
		})
	}()

	d.events.Publish(bus.Event{Kind: bus.EventSessionReady})

	for index := 1; ; index++ {
		if ctx.Err() != nil {
			logger.InfoC("session", "Stop requested")
			return nil
		}

		round, err := d.playRound(ctx, index)
		rounds = index
		if err != nil {
			logger.ErrorCF("session", "Round aborted", map[string]interface{}{
				"round": index,
				"error": err.Error(),
			})
			return err
		}
		d.finish(round)

		if d.opts.MaxRounds > 0 && index >= d.opts.MaxRounds {
			return nil
		}
		if !d.pause(ctx) {
			logger.InfoC("session", "Stop requested during pause")
			return nil
		}
		if d.opts.ResyncEvery > 0 && index%d.opts.ResyncEvery == 0 {
			if err := d.resync(index); err != nil {
				return err
			}
		}
	}
}

func (d *Driver) playRound(ctx context.Context, index int) (Round, error) {
	prompt := d.prompts.Generate(ctx, index)
	round := Round{
		Index:    index,
		ID:       uuid.NewString(),
		Context:  prompt.Context,
		Command:  prompt.Text,
		Fallback: prompt.Fallback,
		Started:  time.Now(),
	}
	d.events.Publish(bus.Event{
		Kind:     bus.EventRoundStarted,
		Round:    index,
		RoundID:  round.ID,
		Persona:  round.Context.ID(),
		Topic:    round.Context.Topic,
		Text:     round.Command,
		Fallback: round.Fallback,
	})
	logger.InfoCF("session", "Sending command", map[string]interface{}{
		"round":    index,
		"round_id": round.ID,
		"persona":  round.Context.ID(),
		"command":  round.Command,
		"fallback": round.Fallback,
	})

	if err := d.session.SendLine(round.Command); err != nil {
		return round, err
	}

	for {
		m, err := d.session.Expect(d.matcher, d.opts.ReadTimeout)
		if err != nil {
			return round, err
		}

		switch m.State {
		case dialog.TaskComplete:
			round.Outcome = OutcomeSuccess
			return round, nil
		case dialog.Ready:
			round.Outcome = OutcomeReady
			return round, nil
		case dialog.Timeout:
			logger.WarnCF("session", "No prompt recognized, nudging target", map[string]interface{}{
				"round":   index,
				"pending": d.session.Pending(),
			})
			round.Outcome = OutcomeTimedOut
			return round, d.session.SendLine("")
		}

		if len(round.Replies) >= d.opts.MaxRepliesPerRound {
			logger.WarnCF("session", "Reply limit reached, abandoning round", map[string]interface{}{
				"round":   index,
				"replies": len(round.Replies),
			})
			round.Outcome = OutcomeTimedOut
			return round, d.session.SendLine("")
		}

		reply, ok := d.policy.Reply(m.State, round.Context)
		if !ok {
			continue
		}
		if err := d.session.SendLine(reply); err != nil {
			return round, err
		}
		round.Replies = append(round.Replies, Reply{State: m.State, Text: reply})
		d.events.Publish(bus.Event{
			Kind:    bus.EventReplySent,
			Round:   index,
			RoundID: round.ID,
			Persona: round.Context.ID(),
			State:   m.State.String(),
			Text:    reply,
		})
		logger.DebugCF("session", "Replied", map[string]interface{}{
			"round": index,
			"state": m.State.String(),
			"reply": reply,
		})
	}
}

func (d *Driver) finish(round Round) {
	round.Finished = time.Now()
	d.events.Publish(bus.Event{
		Kind:     bus.EventRoundFinished,
		Round:    round.Index,
		RoundID:  round.ID,
		Persona:  round.Context.ID(),
		Topic:    round.Context.Topic,
		Outcome:  round.Outcome.String(),
		Fallback: round.Fallback,
		Duration: round.Duration(),
	})
	logger.InfoCF("session", "Round finished", map[string]interface{}{
		"round":    round.Index,
		"outcome":  round.Outcome.String(),
		"replies":  len(round.Replies),
		"duration": round.Duration().String(),
	})
}

// pause reports false when ctx ends before the interval does.
func (d *Driver) pause(ctx context.Context) bool {
	if d.opts.Interval <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d.opts.Interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// resync clears any half-finished dialog. A missing ready marker is only
// logged; the next round starts regardless.
func (d *Driver) resync(index int) error {
	logger.InfoCF("session", "Resyncing target", map[string]interface{}{
		"round": index,
	})
	if err := d.session.SendLine(""); err != nil {
		return err
	}
	m, err := d.session.Expect(d.ready, d.opts.ReadyTimeout)
	if err != nil {
		return err
	}
	ev := bus.Event{Kind: bus.EventResync, Round: index}
	if m.State != dialog.Ready {
		logger.WarnCF("session", "Target did not return to ready after resync", map[string]interface{}{
			"round": index,
		})
		ev.Outcome = OutcomeTimedOut.String()
	} else {
		ev.Outcome = OutcomeReady.String()
	}
	d.events.Publish(ev)
	return nil
}
