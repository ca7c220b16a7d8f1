// DotFuzz - persona-driven interaction fuzzer for natural-language CLIs
// License: MIT
//
// Copyright (c) 2026 DotFuzz contributors

package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/dotsetgreg/dotfuzz/pkg/config"
	"github.com/dotsetgreg/dotfuzz/pkg/logger"
	"github.com/dotsetgreg/dotfuzz/pkg/persona"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "dotfuzz"

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// formatBuildInfo returns build time and go version info
func formatBuildInfo() (build string, goVer string) {
	if buildTime != "" {
		build = buildTime
	}
	goVer = goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", appName, formatVersion())
	build, goVer := formatBuildInfo()
	if build != "" {
		fmt.Fprintf(w, "  Build: %s\n", build)
	}
	if goVer != "" {
		fmt.Fprintf(w, "  Go: %s\n", goVer)
	}
}

func main() {
	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func resolveConfigPath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	return config.DefaultConfigPath()
}

// loadRuntime reads config and initializes logging for commands that talk to
// the provider or the target.
func loadRuntime(configPath string, debug bool) (*config.Config, error) {
	cfg, err := config.LoadConfig(resolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

func loadRegistry(cfg *config.Config) (*persona.Registry, error) {
	path := cfg.PersonasPath()
	if path == "" {
		return persona.DefaultRegistry(), nil
	}
	return persona.LoadRegistry(path)
}
