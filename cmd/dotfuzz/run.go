package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dotsetgreg/dotfuzz/pkg/bus"
	"github.com/dotsetgreg/dotfuzz/pkg/config"
	"github.com/dotsetgreg/dotfuzz/pkg/dialog"
	"github.com/dotsetgreg/dotfuzz/pkg/generator"
	"github.com/dotsetgreg/dotfuzz/pkg/logger"
	"github.com/dotsetgreg/dotfuzz/pkg/providers"
	"github.com/dotsetgreg/dotfuzz/pkg/session"
)

type runOptions struct {
	MaxRounds int
	Echo      bool // mirror target output
}

// lockedWriter serializes narrator and echo output onto one stream.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// runFuzz probes the provider, starts the target and plays rounds until ctx
// is cancelled. The returned summary is nil only when startup failed.
func runFuzz(ctx context.Context, cfg *config.Config, opts runOptions, stdout io.Writer) (*summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	out := &lockedWriter{w: stdout}

	client, err := providers.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	if err := generator.Probe(ctx, client, cfg.ProbeTimeout()); err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "✓ Provider reachable (%s: %s)\n", client.Provider(), client.Model())

	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("load personas: %w", err)
	}

	seed := cfg.Fuzz.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	runID := uuid.NewString()
	logger.InfoCF("fuzz", "Run starting", map[string]interface{}{
		"run_id":   runID,
		"seed":     seed,
		"personas": registry.IDs(),
		"target":   cfg.TargetPath(),
		"model":    client.Model(),
	})

	gen := generator.New(client, registry, rng, generator.Options{
		Timeout:        cfg.GenerationTimeout(),
		DefaultCommand: cfg.Fuzz.DefaultCommand,
	})
	policy := dialog.NewPolicy(rng, dialog.DefaultPolicyOptions())

	var echo io.Writer
	if opts.Echo {
		echo = out
	}
	sess, err := session.Start(ctx, session.TargetOptions{
		Path:         cfg.TargetPath(),
		Args:         cfg.Target.Args,
		ReadyTimeout: cfg.ReadyTimeout(),
		Output:       echo,
	})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "✓ Target ready: %s (seed %d)\n", cfg.TargetPath(), seed)

	events := bus.NewEventBus()
	driver := session.NewDriver(sess, gen, policy, events, session.Options{
		Interval:           cfg.Interval(),
		ReadTimeout:        cfg.ReadTimeout(),
		ReadyTimeout:       cfg.ReadyTimeout(),
		ResyncEvery:        cfg.Fuzz.ResyncEvery,
		MaxRepliesPerRound: cfg.Fuzz.MaxRepliesPerRound,
		MaxRounds:          opts.MaxRounds,
	})

	n := newNarrator(out)
	var g errgroup.Group
	g.Go(func() error {
		defer events.Close()
		return driver.Run(ctx)
	})
	g.Go(func() error {
		n.consume(events)
		return nil
	})
	err = g.Wait()

	sum := n.summary()
	sum.RunID = runID
	sum.Seed = seed
	sum.Dropped = events.Dropped()
	logger.InfoCF("fuzz", "Run finished", map[string]interface{}{
		"run_id":  runID,
		"rounds":  sum.Rounds,
		"dropped": sum.Dropped,
	})
	return sum, err
}
