package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/dotfuzz/pkg/config"
	"github.com/dotsetgreg/dotfuzz/pkg/persona"
)

type helpCase struct {
	name string
	args []string
	want []string
}

func TestCLIHelp(t *testing.T) {
	t.Parallel()

	cases := []helpCase{
		{
			name: "root_help",
			args: []string{"--help"},
			want: []string{"onboard", "run", "probe", "status", "personas", "version", "--config"},
		},
		{
			name: "run_help",
			args: []string{"run", "--help"},
			want: []string{"--rounds", "--seed", "--interval", "--target", "--echo", "--debug"},
		},
		{
			name: "onboard_help",
			args: []string{"onboard", "--help"},
			want: []string{"--force", "--personas"},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			output, err := runRootCommandForTest(tc.args...)
			require.NoError(t, err, "output:\n%s", output)
			for _, want := range tc.want {
				assert.Contains(t, output, want)
			}
			assert.NotContains(t, output, "docs generate")
		})
	}
}

func TestCLI_NoSubcommandFails(t *testing.T) {
	output, err := runRootCommandForTest()
	require.Error(t, err)
	assert.Contains(t, output, "Usage:")
}

func TestCLI_Version(t *testing.T) {
	output, err := runRootCommandForTest("version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(output, "dotfuzz dev"), output)
	assert.Contains(t, output, "Go: ")
}

func TestCLI_OnboardWritesConfigAndPersonas(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")

	output, err := runRootCommandForTest("--config", cfgPath, "onboard", "--personas")
	require.NoError(t, err, output)
	assert.Contains(t, output, "✓ Config written")

	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "personas.yaml"), cfg.Fuzz.PersonasFile)

	registry, err := persona.LoadRegistry(cfg.Fuzz.PersonasFile)
	require.NoError(t, err)
	assert.Equal(t, persona.DefaultRegistry().IDs(), registry.IDs())

	_, err = runRootCommandForTest("--config", cfgPath, "onboard")
	require.Error(t, err, "second onboard without --force must refuse")
	_, err = runRootCommandForTest("--config", cfgPath, "onboard", "--force")
	require.NoError(t, err)
}

func TestCLI_RunRejectsFractionalInterval(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "absent.json")
	for _, value := range []string{"500ms", "1500ms", "-5s"} {
		output, err := runRootCommandForTest("--config", cfgPath, "run", "--interval", value)
		require.Error(t, err, "interval %s", value)
		assert.Contains(t, err.Error(), "--interval", output)
	}
}

func TestCheckInterval(t *testing.T) {
	assert.NoError(t, checkInterval(0))
	assert.NoError(t, checkInterval(5*time.Minute))
	assert.Error(t, checkInterval(500*time.Millisecond))
}

func TestCLI_PersonasListsBuiltins(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "absent.json")
	output, err := runRootCommandForTest("--config", cfgPath, "personas")
	require.NoError(t, err)
	for _, id := range []string{"developer", "office", "sysadmin"} {
		assert.Contains(t, output, id+": ")
	}
	assert.Contains(t, output, "/var/log")
}

func TestCLI_StatusReportsMissingTarget(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	cfg := config.DefaultConfig()
	cfg.Target.Path = filepath.Join(dir, "nope")
	require.NoError(t, config.SaveConfig(cfgPath, cfg))

	output, err := runRootCommandForTest("--config", cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, output, "Target: "+cfg.Target.Path+" ✗")
	assert.Contains(t, output, "Provider: openrouter ✗ OpenRouter API key is required")
	assert.Contains(t, output, "Fuzz ready: not yet")
}

func TestDocsGenerate_CheckPassesAfterGenerate(t *testing.T) {
	out := filepath.Join(t.TempDir(), "docs")
	factory := func() *cobra.Command { return buildRootCommand(false) }

	require.NoError(t, generateDocumentation(factory, out, false))
	require.NoError(t, generateDocumentation(factory, out, true))

	prompts, err := os.ReadFile(filepath.Join(out, "reference", "prompts.md"))
	require.NoError(t, err)
	assert.Contains(t, string(prompts), "`needs_extension`")
	assert.Contains(t, string(prompts), "桌面")

	cfgRef, err := os.ReadFile(filepath.Join(out, "reference", "config.md"))
	require.NoError(t, err)
	assert.Contains(t, string(cfgRef), "DOTFUZZ_FUZZ_RESYNC_EVERY")

	require.NoError(t, os.WriteFile(filepath.Join(out, "reference", "personas.md"), []byte("stale"), 0o644))
	assert.Error(t, generateDocumentation(factory, out, true))
}

func runRootCommandForTest(args ...string) (string, error) {
	root := buildRootCommand(false)
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}
