package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	cobraDoc "github.com/spf13/cobra/doc"

	"github.com/dotsetgreg/dotfuzz/pkg/config"
	"github.com/dotsetgreg/dotfuzz/pkg/dialog"
	"github.com/dotsetgreg/dotfuzz/pkg/persona"
	"github.com/dotsetgreg/dotfuzz/pkg/providers"
)

func newDocsCommand(rootFactory func() *cobra.Command) *cobra.Command {
	docsRoot := &cobra.Command{
		Use:    "docs",
		Short:  "Internal docs maintenance commands",
		Hidden: true,
	}

	var (
		outputDir string
		checkOnly bool
	)

	gen := &cobra.Command{
		Use:   "generate",
		Short: "Generate reference docs from command/config/provider/persona source",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(outputDir) == "" {
				return fmt.Errorf("--output must not be empty")
			}
			return generateDocumentation(rootFactory, outputDir, checkOnly)
		},
	}
	gen.Flags().StringVar(&outputDir, "output", "docs", "Docs directory root")
	gen.Flags().BoolVar(&checkOnly, "check", false, "Fail if generated docs are out of date")

	docsRoot.AddCommand(gen)
	return docsRoot
}

func generateDocumentation(rootFactory func() *cobra.Command, outputDir string, checkOnly bool) error {
	tmpDir, err := os.MkdirTemp("", "dotfuzz-docs-gen-*")
	if err != nil {
		return fmt.Errorf("create temp docs dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	generatedRoots, err := writeGeneratedReferences(rootFactory, tmpDir)
	if err != nil {
		return err
	}

	if checkOnly {
		for _, rel := range generatedRoots {
			if err := comparePath(filepath.Join(tmpDir, rel), filepath.Join(outputDir, rel), rel); err != nil {
				return err
			}
		}
		return nil
	}

	for _, rel := range generatedRoots {
		src := filepath.Join(tmpDir, rel)
		dst := filepath.Join(outputDir, rel)
		if err := copyPath(src, dst); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
	}
	return nil
}

func writeGeneratedReferences(rootFactory func() *cobra.Command, outDir string) ([]string, error) {
	cliRoot := rootFactory()
	markCommandsForDocgen(cliRoot)

	cliDir := filepath.Join(outDir, "reference", "cli")
	if err := os.MkdirAll(cliDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cli docs dir: %w", err)
	}
	prepender := func(filename string) string {
		title := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		title = strings.ReplaceAll(title, "_", " ")
		return fmt.Sprintf("# %s\n\n", strings.TrimSpace(title))
	}
	linkHandler := func(name string) string {
		return name
	}
	if err := cobraDoc.GenMarkdownTreeCustom(cliRoot, cliDir, prepender, linkHandler); err != nil {
		return nil, fmt.Errorf("generate cli markdown docs: %w", err)
	}

	manDir := filepath.Join(outDir, "reference", "man")
	if err := os.MkdirAll(manDir, 0o755); err != nil {
		return nil, fmt.Errorf("create man docs dir: %w", err)
	}
	header := &cobraDoc.GenManHeader{
		Title:   "DOTFUZZ",
		Section: "1",
		Source:  "dotfuzz",
	}
	if err := cobraDoc.GenManTree(cliRoot, header, manDir); err != nil {
		return nil, fmt.Errorf("generate man pages: %w", err)
	}

	pages := []struct {
		name  string
		build func() (string, error)
	}{
		{"config.md", buildConfigReferenceMarkdown},
		{"providers.md", buildProvidersReferenceMarkdown},
		{"personas.md", buildPersonasReferenceMarkdown},
		{"prompts.md", buildPromptsReferenceMarkdown},
	}
	roots := []string{
		filepath.Join("reference", "cli"),
		filepath.Join("reference", "man"),
	}
	for _, page := range pages {
		content, err := page.build()
		if err != nil {
			return nil, err
		}
		rel := filepath.Join("reference", page.name)
		if err := writeTextFile(filepath.Join(outDir, rel), content); err != nil {
			return nil, err
		}
		roots = append(roots, rel)
	}
	return roots, nil
}

func markCommandsForDocgen(cmd *cobra.Command) {
	cmd.DisableAutoGenTag = true
	for _, child := range cmd.Commands() {
		if child.Name() == "docs" {
			continue
		}
		markCommandsForDocgen(child)
	}
}

func writeTextFile(path string, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", path, err)
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		_ = os.RemoveAll(dst)
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return err
		}
		return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}
			target := filepath.Join(dst, rel)
			if d.IsDir() {
				return os.MkdirAll(target, 0o755)
			}
			return copyFile(path, target)
		})
	}
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func comparePath(src, dst, rel string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("generated path missing: %s (%w)", rel, err)
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return fmt.Errorf("docs out of date: missing %s", rel)
	}
	if srcInfo.IsDir() != dstInfo.IsDir() {
		return fmt.Errorf("docs out of date: kind mismatch for %s", rel)
	}
	if !srcInfo.IsDir() {
		return compareFile(src, dst, rel)
	}

	srcFiles, err := listFiles(src)
	if err != nil {
		return err
	}
	dstFiles, err := listFiles(dst)
	if err != nil {
		return err
	}
	if len(srcFiles) != len(dstFiles) {
		return fmt.Errorf("docs out of date: file count mismatch under %s", rel)
	}
	for i := range srcFiles {
		if srcFiles[i] != dstFiles[i] {
			return fmt.Errorf("docs out of date: file set mismatch under %s", rel)
		}
		if err := compareFile(filepath.Join(src, srcFiles[i]), filepath.Join(dst, dstFiles[i]), filepath.Join(rel, srcFiles[i])); err != nil {
			return err
		}
	}
	return nil
}

func compareFile(src, dst, rel string) error {
	srcBytes, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	dstBytes, err := os.ReadFile(dst)
	if err != nil {
		return err
	}
	if !bytes.Equal(srcBytes, dstBytes) {
		return fmt.Errorf("docs out of date: %s differs; run `dotfuzz docs generate`", rel)
	}
	return nil
}

func listFiles(root string) ([]string, error) {
	files := []string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

type configFieldRow struct {
	Path    string
	Type    string
	Env     string
	Default string
}

func writeConfigTable(b *strings.Builder, rows []configFieldRow) {
	b.WriteString("| Key | Type | Env Var | Default |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, row := range rows {
		b.WriteString("| `" + escapePipes(row.Path) + "` | `" + escapePipes(row.Type) + "` | `" + escapePipes(valueOr(row.Env, "-")) + "` | `" + escapePipes(valueOr(row.Default, "-")) + "` |\n")
	}
}

func buildConfigReferenceMarkdown() (string, error) {
	defaults, err := flattenConfigDefaults()
	if err != nil {
		return "", err
	}

	rows := []configFieldRow{}
	collectConfigRows(reflect.TypeOf((*config.Config)(nil)).Elem(), "", defaults, &rows)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })

	var b strings.Builder
	b.WriteString("# Config Reference\n\n")
	b.WriteString("Generated from `pkg/config/config.go` and `config.DefaultConfig()`.\n\n")
	b.WriteString("The file lives at `~/.dotfuzz/config.json` unless `--config` or `DOTFUZZ_CONFIG` points elsewhere. Environment variables override file values.\n\n")
	writeConfigTable(&b, rows)
	return b.String(), nil
}

func collectConfigRows(t reflect.Type, prefix string, defaults map[string]string, rows *[]configFieldRow) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		jsonTag := strings.TrimSpace(strings.Split(f.Tag.Get("json"), ",")[0])
		if jsonTag == "" || jsonTag == "-" {
			continue
		}
		path := jsonTag
		if prefix != "" {
			path = prefix + "." + jsonTag
		}

		fieldType := f.Type
		if fieldType.Kind() == reflect.Struct {
			collectConfigRows(fieldType, path, defaults, rows)
			continue
		}

		*rows = append(*rows, configFieldRow{
			Path:    path,
			Type:    friendlyType(fieldType),
			Env:     strings.TrimSpace(f.Tag.Get("env")),
			Default: defaults[path],
		})
	}
}

func flattenConfigDefaults() (map[string]string, error) {
	data, err := json.Marshal(config.DefaultConfig())
	if err != nil {
		return nil, err
	}
	var root map[string]interface{}
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	out := map[string]string{}
	flattenMapValues("", root, out)
	return out, nil
}

func flattenMapValues(prefix string, v interface{}, out map[string]string) {
	switch typed := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(typed))
		for k := range typed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			next := k
			if prefix != "" {
				next = prefix + "." + k
			}
			flattenMapValues(next, typed[k], out)
		}
	default:
		encoded, _ := json.Marshal(typed)
		out[prefix] = string(encoded)
	}
}

func friendlyType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Slice:
		return "array<" + friendlyType(t.Elem()) + ">"
	case reflect.Map:
		return "map<" + friendlyType(t.Key()) + "," + friendlyType(t.Elem()) + ">"
	case reflect.Struct:
		return "object"
	case reflect.Pointer:
		return "*" + friendlyType(t.Elem())
	default:
		return t.String()
	}
}

type providerReferenceSpec struct {
	Name      string
	ConfigKey string
	Summary   string
	AuthModel string
}

func buildProvidersReferenceMarkdown() (string, error) {
	defaults, err := flattenConfigDefaults()
	if err != nil {
		return "", err
	}

	cfgType := reflect.TypeOf(config.ProvidersConfig{})
	providerStructs := map[string]reflect.Type{}
	for i := 0; i < cfgType.NumField(); i++ {
		f := cfgType.Field(i)
		key := strings.TrimSpace(strings.Split(f.Tag.Get("json"), ",")[0])
		if key == "" || key == "-" {
			continue
		}
		providerStructs[key] = f.Type
	}

	specs := []providerReferenceSpec{
		{
			Name:      "openrouter",
			ConfigKey: "providers.openrouter",
			Summary:   "OpenRouter chat completions provider (default).",
			AuthModel: "Requires `api_key`.",
		},
		{
			Name:      "openai",
			ConfigKey: "providers.openai",
			Summary:   "OpenAI Platform chat completions provider.",
			AuthModel: "Requires exactly one credential source: `api_key` OR `oauth_token_file`.",
		},
		{
			Name:      "compatible",
			ConfigKey: "providers.compatible",
			Summary:   "Any OpenAI-compatible chat completions endpoint.",
			AuthModel: "Requires `api_base`, `api_key`, and `generator.model`.",
		},
	}

	supported := providers.Supported()
	sort.Strings(supported)

	var b strings.Builder
	b.WriteString("# Provider Reference\n\n")
	b.WriteString("Generated from the provider resolvers and config structs. Select one with `generator.provider`.\n\n")
	b.WriteString("## Supported Providers\n\n")
	for _, name := range supported {
		b.WriteString("- `" + name + "`\n")
	}
	b.WriteString("\n")

	for _, spec := range specs {
		b.WriteString("## `" + spec.Name + "`\n\n")
		b.WriteString(spec.Summary + "\n\n")
		b.WriteString("- Config path: `" + spec.ConfigKey + "`\n")
		b.WriteString("- Auth: " + spec.AuthModel + "\n\n")

		structType, ok := providerStructs[strings.TrimPrefix(spec.ConfigKey, "providers.")]
		if !ok {
			return "", fmt.Errorf("provider %s has no config struct", spec.Name)
		}
		rows := []configFieldRow{}
		collectConfigRows(structType, spec.ConfigKey, defaults, &rows)
		sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })
		writeConfigTable(&b, rows)
		b.WriteString("\n")
	}

	return b.String(), nil
}

func buildPersonasReferenceMarkdown() (string, error) {
	var b strings.Builder
	b.WriteString("# Persona Reference\n\n")
	b.WriteString("Built-in personas from `persona.Defaults()`. Point `fuzz.personas_file` at a YAML file with a top-level `personas` list to replace them (`dotfuzz onboard --personas` writes this table as a starting point).\n\n")
	for _, p := range persona.Defaults() {
		b.WriteString("## `" + p.ID + "`\n\n")
		b.WriteString(p.RoleDescription + "\n\n")
		b.WriteString("| Field | Values |\n")
		b.WriteString("| --- | --- |\n")
		b.WriteString("| topics | " + escapePipes(strings.Join(p.Topics, ", ")) + " |\n")
		b.WriteString("| filenames | " + escapePipes(strings.Join(p.Filenames, ", ")) + " |\n")
		b.WriteString("| extensions | " + escapePipes(strings.Join(p.Extensions, ", ")) + " |\n")
		b.WriteString("| paths | " + escapePipes(strings.Join(p.Paths, ", ")) + " |\n\n")
	}
	return b.String(), nil
}

func buildPromptsReferenceMarkdown() (string, error) {
	opts := dialog.DefaultPolicyOptions()
	replies := map[dialog.State]string{
		dialog.NeedsExtension:    "persona extension",
		dialog.NeedsPathChoice:   "`" + opts.MenuChoice + "`",
		dialog.TaskComplete:      "ends round (success)",
		dialog.Ready:             "ends round (ready)",
		dialog.NeedsName:         "persona filename, `" + opts.AutoNameToken + "`, or `name_N`",
		dialog.NeedsFilename:     "persona filename, `" + opts.AutoNameToken + "`, or `name_N`",
		dialog.NeedsPath:         "persona path",
		dialog.StillMissingField: "persona filename, `" + opts.AutoNameToken + "`, or `name_N`",
		dialog.NameNotFound:      "`" + opts.SafePath + "`",
	}

	var b strings.Builder
	b.WriteString("# Prompt Reference\n\n")
	b.WriteString("Generated from `pkg/dialog`. When several patterns match, the one starting earliest in the output wins; ties go to the lower priority number.\n\n")
	b.WriteString("| Priority | State | Pattern | Reply |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for i, s := range dialog.RoundMatcher().States() {
		re, ok := dialog.Pattern(s)
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("| %d | `%s` | `%s` | %s |\n", i+1, s, escapePipes(re.String()), replies[s]))
	}
	b.WriteString("| - | `" + dialog.Timeout.String() + "` | no match within `target.read_timeout_seconds` | blank line, ends round (timed out) |\n")
	return b.String(), nil
}

func escapePipes(v string) string {
	return strings.ReplaceAll(v, "|", "\\|")
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
