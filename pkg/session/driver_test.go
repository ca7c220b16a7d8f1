package session

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/dotfuzz/pkg/bus"
	"github.com/dotsetgreg/dotfuzz/pkg/dialog"
	"github.com/dotsetgreg/dotfuzz/pkg/generator"
	"github.com/dotsetgreg/dotfuzz/pkg/persona"
	"github.com/dotsetgreg/dotfuzz/pkg/providers"
)

func testOptions() Options {
	return Options{
		Interval:     0,
		ReadTimeout:  2 * time.Second,
		ReadyTimeout: 2 * time.Second,
		ResyncEvery:  DefaultResyncEvery,
	}
}

func noAutoPolicy(seed int64) *dialog.Policy {
	opts := dialog.DefaultPolicyOptions()
	opts.AutoNameProbability = 0
	return dialog.NewPolicy(rand.New(rand.NewSource(seed)), opts)
}

func runDriver(t *testing.T, term *scriptedTerminal, prompts PromptSource, policy Replier, opts Options) ([]bus.Event, error) {
	t.Helper()
	events := bus.NewEventBusSize(1024)
	d := NewDriver(NewSession(term, nil), prompts, policy, events, opts)
	err := d.Run(context.Background())
	return drain(events), err
}

// nameFrom reports whether reply is one of names, possibly with an _N suffix.
func nameFrom(names []string, reply string) bool {
	for _, n := range names {
		if reply == n {
			return true
		}
		if rest, ok := strings.CutPrefix(reply, n+"_"); ok {
			if v, err := strconv.Atoi(rest); err == nil && v >= 1 && v <= 99 {
				return true
			}
		}
	}
	return false
}

func TestDriver_DeveloperCompletesRound(t *testing.T) {
	step := 0
	term := newScriptedTerminal(func(line string) []string {
		step++
		switch step {
		case 1:
			return []string{lineFilename}
		case 2:
			return []string{lineExtension}
		default:
			return []string{lineComplete}
		}
	})
	opts := testOptions()
	opts.MaxRounds = 1

	events, err := runDriver(t, term, newCyclePrompts("developer"), noAutoPolicy(7), opts)
	require.NoError(t, err)

	dev, _ := persona.DefaultRegistry().Get("developer")
	lines := term.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "cmd-1", lines[0])
	assert.True(t, nameFrom(dev.Filenames, lines[1]), "filename %q", lines[1])
	assert.Contains(t, dev.Extensions, lines[2])

	finished := eventsOf(events, bus.EventRoundFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, "success", finished[0].Outcome)
}

type failingProvider struct{}

func (failingProvider) Complete(context.Context, providers.Request) (providers.Completion, error) {
	return providers.Completion{}, errors.New("dial tcp: connection refused")
}

func TestDriver_GenerationFailureSendsDefaultCommand(t *testing.T) {
	term := newScriptedTerminal(func(string) []string { return []string{lineReady} })
	gen := generator.New(failingProvider{}, persona.DefaultRegistry(), rand.New(rand.NewSource(1)), generator.Options{
		DefaultCommand: "创建文件",
	})
	opts := testOptions()
	opts.MaxRounds = 1

	events, err := runDriver(t, term, gen, noAutoPolicy(1), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"创建文件"}, term.Lines())
	started := eventsOf(events, bus.EventRoundStarted)
	require.Len(t, started, 1)
	assert.True(t, started[0].Fallback)
	finished := eventsOf(events, bus.EventRoundFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, "ready", finished[0].Outcome)
}

func TestDriver_RejectedPathAnsweredWithSafePath(t *testing.T) {
	term := newScriptedTerminal(func(line string) []string {
		if line == "桌面" {
			return []string{lineComplete}
		}
		return []string{lineNotFound}
	})
	opts := testOptions()
	opts.MaxRounds = 1

	_, err := runDriver(t, term, newCyclePrompts("sysadmin"), noAutoPolicy(3), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"cmd-1", "桌面"}, term.Lines())
}

func TestDriver_ResyncAfterTenthRound(t *testing.T) {
	term := newScriptedTerminal(func(line string) []string {
		if line == "" {
			return []string{lineReady}
		}
		return []string{lineComplete}
	})
	opts := testOptions()
	opts.MaxRounds = 11

	events, err := runDriver(t, term, newCyclePrompts(), noAutoPolicy(1), opts)
	require.NoError(t, err)

	want := make([]string, 0, 12)
	for i := 1; i <= 10; i++ {
		want = append(want, "cmd-"+strconv.Itoa(i))
	}
	want = append(want, "", "cmd-11")
	assert.Equal(t, want, term.Lines())

	resyncs := eventsOf(events, bus.EventResync)
	require.Len(t, resyncs, 1)
	assert.Equal(t, 10, resyncs[0].Round)
	assert.Equal(t, "ready", resyncs[0].Outcome)
}

func TestDriver_ResyncTimeoutIsNotFatal(t *testing.T) {
	term := newScriptedTerminal(func(line string) []string {
		if line == "" {
			return nil
		}
		return []string{lineComplete}
	})
	opts := testOptions()
	opts.ResyncEvery = 1
	opts.ReadyTimeout = 30 * time.Millisecond
	opts.MaxRounds = 2

	events, err := runDriver(t, term, newCyclePrompts(), noAutoPolicy(1), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"cmd-1", "", "cmd-2"}, term.Lines())

	resyncs := eventsOf(events, bus.EventResync)
	require.Len(t, resyncs, 1)
	assert.Equal(t, "timed_out", resyncs[0].Outcome)
}

func TestDriver_SilentTargetTimesOutAndNudges(t *testing.T) {
	term := newScriptedTerminal(nil)
	opts := testOptions()
	opts.ReadTimeout = 30 * time.Millisecond
	opts.MaxRounds = 2

	events, err := runDriver(t, term, newCyclePrompts(), noAutoPolicy(1), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"cmd-1", "", "cmd-2", ""}, term.Lines())

	for _, ev := range eventsOf(events, bus.EventRoundFinished) {
		assert.Equal(t, "timed_out", ev.Outcome)
	}
}

func TestDriver_ReplyLimitEndsRound(t *testing.T) {
	term := newScriptedTerminal(func(line string) []string {
		if line == "" {
			return nil
		}
		return []string{lineName}
	})
	opts := testOptions()
	opts.MaxRepliesPerRound = 3
	opts.MaxRounds = 1

	events, err := runDriver(t, term, newCyclePrompts(), noAutoPolicy(1), opts)
	require.NoError(t, err)

	lines := term.Lines()
	require.Len(t, lines, 5)
	assert.Equal(t, "", lines[4])
	assert.Len(t, eventsOf(events, bus.EventReplySent), 3)
	assert.Equal(t, "timed_out", eventsOf(events, bus.EventRoundFinished)[0].Outcome)
}

func TestDriver_RepliesStayWithRoundPersona(t *testing.T) {
	step := 0
	term := newScriptedTerminal(func(line string) []string {
		step++
		switch step % 4 {
		case 1:
			return []string{lineFilename}
		case 2:
			return []string{lineExtension}
		case 3:
			return []string{linePath}
		default:
			return []string{lineComplete}
		}
	})
	opts := testOptions()
	opts.MaxRounds = 6

	events, err := runDriver(t, term, newCyclePrompts("developer", "office", "sysadmin"), noAutoPolicy(11), opts)
	require.NoError(t, err)

	registry := persona.DefaultRegistry()
	replies := eventsOf(events, bus.EventReplySent)
	require.Len(t, replies, 18)
	for _, ev := range replies {
		p, ok := registry.Get(ev.Persona)
		require.True(t, ok)
		switch ev.State {
		case dialog.NeedsFilename.String():
			assert.True(t, nameFrom(p.Filenames, ev.Text), "round %d filename %q", ev.Round, ev.Text)
		case dialog.NeedsExtension.String():
			assert.Contains(t, p.Extensions, ev.Text, "round %d", ev.Round)
		case dialog.NeedsPath.String():
			assert.Contains(t, p.Paths, ev.Text, "round %d", ev.Round)
		default:
			t.Fatalf("unexpected reply state %s", ev.State)
		}
	}
}

func TestDriver_RoundIndexIncreasesByOne(t *testing.T) {
	term := newScriptedTerminal(func(line string) []string {
		if line == "" {
			return []string{lineReady}
		}
		return []string{lineComplete}
	})
	opts := testOptions()
	opts.ResyncEvery = 2
	opts.MaxRounds = 5

	events, err := runDriver(t, term, newCyclePrompts(), noAutoPolicy(1), opts)
	require.NoError(t, err)

	var rounds []int
	ids := map[string]bool{}
	for _, ev := range eventsOf(events, bus.EventRoundStarted) {
		rounds = append(rounds, ev.Round)
		ids[ev.RoundID] = true
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, rounds)
	assert.Len(t, ids, 5, "round ids must be unique")
}

func TestDriver_CancelLetsCurrentRoundFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	step := 0
	term := newScriptedTerminal(func(line string) []string {
		step++
		if step == 1 {
			cancel()
			return []string{lineFilename}
		}
		return []string{lineComplete}
	})
	opts := testOptions()
	opts.Interval = time.Hour

	events := bus.NewEventBusSize(1024)
	d := NewDriver(NewSession(term, nil), newCyclePrompts(), noAutoPolicy(5), events, opts)

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("driver did not stop after cancellation")
	}

	assert.Len(t, term.Lines(), 2, "reply inside the cancelled round must still be sent")
	finished := eventsOf(drain(events), bus.EventRoundFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, "success", finished[0].Outcome)
	assert.Equal(t, int32(1), term.closes.Load())
}

func TestDriver_CancelledBeforeFirstRound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	term := newScriptedTerminal(nil)
	d := NewDriver(NewSession(term, nil), newCyclePrompts(), noAutoPolicy(1), nil, testOptions())
	require.NoError(t, d.Run(ctx))
	assert.Empty(t, term.Lines())
	assert.Equal(t, int32(1), term.closes.Load())
}

func TestDriver_TargetExitIsFatal(t *testing.T) {
	var term *scriptedTerminal
	term = newScriptedTerminal(func(string) []string {
		term.hangup()
		return nil
	})
	opts := testOptions()

	events, err := runDriver(t, term, newCyclePrompts(), noAutoPolicy(1), opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTargetExited))
	assert.Equal(t, int32(1), term.closes.Load())

	closed := eventsOf(events, bus.EventSessionClosed)
	require.Len(t, closed, 1)
	assert.NotEmpty(t, closed[0].Err)
}

func TestDriver_SessionReadyFirstAndClosedLast(t *testing.T) {
	term := newScriptedTerminal(func(string) []string { return []string{lineComplete} })
	opts := testOptions()
	opts.MaxRounds = 2

	events, err := runDriver(t, term, newCyclePrompts(), noAutoPolicy(1), opts)
	require.NoError(t, err)
	require.NotEmpty(t, events)

	kinds := make([]bus.EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, bus.EventSessionReady, kinds[0])
	assert.Equal(t, bus.EventSessionClosed, kinds[len(kinds)-1])
	assert.Len(t, eventsOf(events, bus.EventSessionClosed), 1)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "ready", OutcomeReady.String())
	assert.Equal(t, "timed_out", OutcomeTimedOut.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
