package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotsetgreg/dotfuzz/pkg/config"
	"github.com/dotsetgreg/dotfuzz/pkg/generator"
	"github.com/dotsetgreg/dotfuzz/pkg/logger"
	"github.com/dotsetgreg/dotfuzz/pkg/persona"
	"github.com/dotsetgreg/dotfuzz/pkg/providers"
)

func executeCLI() error {
	root := buildRootCommand(true)
	if err := root.Execute(); err != nil {
		return err
	}
	return nil
}

func buildRootCommand(includeDocsCommand bool) *cobra.Command {
	var (
		showVersion bool
		configPath  string
	)

	root := &cobra.Command{
		Use:   "dotfuzz",
		Short: "Persona-driven interaction fuzzer for natural-language file CLIs",
		Long: strings.TrimSpace(`dotfuzz drives an interactive command-line program over a pseudo-terminal,
playing simulated users who ask it to create files.

Each round an LLM writes one free-text command in the voice of a persona, and
dotfuzz answers every follow-up prompt from that persona's vocabulary until the
target reports completion, returns to idle, or goes silent.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $DOTFUZZ_CONFIG or ~/.dotfuzz/config.json)")

	root.AddCommand(newOnboardCommand(&configPath))
	root.AddCommand(newRunCommand(&configPath))
	root.AddCommand(newProbeCommand(&configPath))
	root.AddCommand(newStatusCommand(&configPath))
	root.AddCommand(newPersonasCommand(&configPath))
	root.AddCommand(newVersionCommand())

	if includeDocsCommand {
		docsCmd := newDocsCommand(func() *cobra.Command { return buildRootCommand(false) })
		root.AddCommand(docsCmd)
	}

	return root
}

func newOnboardCommand(configPath *string) *cobra.Command {
	var (
		force        bool
		withPersonas bool
	)

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Write a default config (and optionally the built-in personas)",
		Long:  "Create ~/.dotfuzz/config.json with defaults. With --personas the built-in persona table is written next to it as YAML and referenced from the config.",
		Example: strings.Join([]string{
			"  dotfuzz onboard",
			"  dotfuzz onboard --personas --force",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := resolveConfigPath(*configPath)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}

			cfg := config.DefaultConfig()
			if withPersonas {
				personasPath := filepath.Join(filepath.Dir(path), "personas.yaml")
				if err := persona.WriteFile(personasPath, persona.Defaults()); err != nil {
					return fmt.Errorf("write personas: %w", err)
				}
				cfg.Fuzz.PersonasFile = personasPath
				fmt.Fprintf(out, "✓ Personas written to %s\n", personasPath)
			}
			if err := config.SaveConfig(path, cfg); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(out, "✓ Config written to %s\n", path)
			fmt.Fprintln(out, "\nNext steps:")
			fmt.Fprintln(out, "  1. Set target.path to the CLI binary under test")
			fmt.Fprintln(out, "  2. Add a provider API key (or export DOTFUZZ_PROVIDERS_OPENROUTER_API_KEY)")
			fmt.Fprintln(out, "  3. Run: dotfuzz probe && dotfuzz run")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config")
	cmd.Flags().BoolVar(&withPersonas, "personas", false, "Also write the built-in personas as YAML")
	return cmd
}

func newRunCommand(configPath *string) *cobra.Command {
	var (
		debug    bool
		echo     bool
		rounds   int
		seed     int64
		interval time.Duration
		target   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the target and fuzz it until interrupted",
		Long:  "Probe the provider, spawn the target on a pseudo-terminal, wait for its ready marker, then play persona rounds until Ctrl+C. The round in progress always finishes before shutdown.",
		Example: strings.Join([]string{
			"  dotfuzz run",
			"  dotfuzz run --target ../build/synapse --interval 5m",
			"  dotfuzz run --rounds 20 --seed 42 --echo",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			intervalSet := cmd.Flags().Changed("interval")
			if intervalSet {
				if err := checkInterval(interval); err != nil {
					return err
				}
			}
			cfg, err := loadRuntime(*configPath, debug)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if target != "" {
				cfg.Target.Path = target
			}
			if intervalSet {
				cfg.Fuzz.IntervalSeconds = int(interval / time.Second)
			}
			if cmd.Flags().Changed("seed") {
				cfg.Fuzz.Seed = seed
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sum, err := runFuzz(ctx, cfg, runOptions{MaxRounds: rounds, Echo: echo}, cmd.OutOrStdout())
			if sum != nil {
				sum.write(cmd.OutOrStdout())
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&echo, "echo", false, "Mirror everything the target prints")
	cmd.Flags().IntVar(&rounds, "rounds", 0, "Stop after this many rounds (0 = until interrupted)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed for persona and reply choices (0 = time based)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Pause between rounds in whole seconds (overrides fuzz.interval_seconds)")
	cmd.Flags().StringVar(&target, "target", "", "Target binary (overrides target.path)")
	return cmd
}

func newProbeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "probe",
		Short:   "Check that the configured LLM provider answers",
		Long:    "Send a single one-token request to the configured provider and report whether it is reachable.",
		Example: "  dotfuzz probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRuntime(*configPath, false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			client, err := providers.New(cfg)
			if err != nil {
				return fmt.Errorf("create provider: %w", err)
			}
			start := time.Now()
			if err := generator.Probe(commandContext(cmd), client, cfg.ProbeTimeout()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s reachable with model %s (%s)\n",
				client.Provider(), client.Model(), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func newStatusCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration, provider, and target readiness",
		Example: "  dotfuzz status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := resolveConfigPath(*configPath)
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			mark := func(ok bool, miss string) string {
				if ok {
					return "✓"
				}
				return miss
			}

			fmt.Fprintf(out, "%s Status\n", appName)
			fmt.Fprintf(out, "Version: %s\n\n", formatVersion())

			_, statErr := os.Stat(path)
			fmt.Fprintln(out, "Config:", path, mark(statErr == nil, "✗ (defaults)"))

			targetPath := cfg.TargetPath()
			info, err := os.Stat(targetPath)
			targetOK := err == nil && !info.IsDir() && info.Mode().Perm()&0o111 != 0
			fmt.Fprintln(out, "Target:", targetPath, mark(targetOK, "✗"))

			registry, err := loadRegistry(cfg)
			if err != nil {
				fmt.Fprintln(out, "Personas: ✗", err)
			} else {
				fmt.Fprintf(out, "Personas: %s ✓\n", strings.Join(registry.IDs(), ", "))
			}

			provider := providers.CredentialStatus(cfg)
			if provider.Configured() {
				fmt.Fprintf(out, "Provider: %s ✓ (%s)\n", provider.Provider, provider.Mode)
			} else {
				fmt.Fprintf(out, "Provider: %s ✗ %v\n", provider.Provider, provider.Err)
			}
			fmt.Fprintln(out, "Model:", cfg.Generator.Model)
			fmt.Fprintln(out, "Fuzz ready:", mark(targetOK && provider.Configured() && cfg.Validate() == nil, "not yet"))
			return nil
		},
	}
}

func newPersonasCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "personas",
		Short:   "List the personas a run would use",
		Example: "  dotfuzz personas",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(resolveConfigPath(*configPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			registry, err := loadRegistry(cfg)
			if err != nil {
				return fmt.Errorf("load personas: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, id := range registry.IDs() {
				p, _ := registry.Get(id)
				fmt.Fprintf(out, "%s: %s\n", p.ID, p.RoleDescription)
				fmt.Fprintf(out, "  topics:     %s\n", strings.Join(p.Topics, ", "))
				fmt.Fprintf(out, "  filenames:  %s\n", strings.Join(p.Filenames, ", "))
				fmt.Fprintf(out, "  extensions: %s\n", strings.Join(p.Extensions, ", "))
				fmt.Fprintf(out, "  paths:      %s\n", strings.Join(p.Paths, ", "))
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  dotfuzz version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(cmd.OutOrStdout())
			return nil
		},
	}
}

// checkInterval rejects pauses that fuzz.interval_seconds cannot hold.
func checkInterval(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("--interval must not be negative, got %s", d)
	}
	if d%time.Second != 0 {
		return fmt.Errorf("--interval must be a whole number of seconds, got %s", d)
	}
	return nil
}

// commandContext is cmd.Context() with a fallback for commands executed
// without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
