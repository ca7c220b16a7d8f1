// Package generator produces the free-text command that opens each round.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dotsetgreg/dotfuzz/pkg/logger"
	"github.com/dotsetgreg/dotfuzz/pkg/persona"
	"github.com/dotsetgreg/dotfuzz/pkg/providers"
)

const (
	DefaultTimeout  = 15 * time.Second
	userInstruction = "生成一条指令"
)

// ErrEmptyCompletion marks a completion that had no usable line.
var ErrEmptyCompletion = errors.New("empty completion")

// Prompt is one round's opening command and the persona it was written for.
type Prompt struct {
	Text     string
	Context  persona.Context
	Fallback bool  // Text is the default command
	Err      error // why the fallback was used
}

// Options bound a Generator's calls. Model and sampling belong to the
// provider client.
type Options struct {
	Timeout        time.Duration
	DefaultCommand string
}

// Generator writes each round's opening command in a persona's voice.
type Generator struct {
	provider providers.Completer
	registry *persona.Registry
	rng      persona.Rand
	opts     Options
}

// New returns a Generator drawing personas from registry. A zero Timeout
// means DefaultTimeout and an empty DefaultCommand means 创建文件.
func New(provider providers.Completer, registry *persona.Registry, rng persona.Rand, opts Options) *Generator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(opts.DefaultCommand) == "" {
		opts.DefaultCommand = "创建文件"
	}
	return &Generator{provider: provider, registry: registry, rng: rng, opts: opts}
}

// Generate picks a fresh persona and topic, then asks the provider for a
// command. It never fails: any provider problem yields the default command.
func (g *Generator) Generate(ctx context.Context, round int) Prompt {
	pc := g.registry.Pick(g.rng)
	logger.InfoCF("generator", "Persona selected", map[string]interface{}{
		"round":   round,
		"persona": pc.ID(),
		"topic":   pc.Topic,
	})

	text, err := g.complete(ctx, pc)
	if err != nil {
		logger.WarnCF("generator", "Generation failed, using default command", map[string]interface{}{
			"round": round,
			"error": err.Error(),
		})
		return Prompt{Text: g.opts.DefaultCommand, Context: pc, Fallback: true, Err: err}
	}
	return Prompt{Text: text, Context: pc}
}

func (g *Generator) complete(ctx context.Context, pc persona.Context) (string, error) {
	if g.provider == nil {
		return "", fmt.Errorf("no provider configured")
	}
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	resp, err := g.provider.Complete(ctx, providers.Request{Messages: BuildMessages(pc)})
	if err != nil {
		return "", err
	}
	text := CleanCommand(resp.Text)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// BuildMessages renders the role-play request for pc.
func BuildMessages(pc persona.Context) []providers.Message {
	role := ""
	if pc.Bound() {
		role = pc.Persona.RoleDescription
	}
	system := fmt.Sprintf(`%s
请生成一个**创建文件**的口语化指令，关于"%s"。
要求：
1. 像人类一样说话，可以包含"帮我"、"弄个"、"整一个"等词。
2. 有时候带路径，有时候不带。
3. 有时候带后缀，有时候不带。
4. 不要带引号，只输出指令文本。`, role, pc.Topic)

	return []providers.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: userInstruction},
	}
}

const quoteChars = "\"'`“”‘’「」『』《》"

// CleanCommand keeps the first non-blank line, trims it, and removes
// surrounding quotes plus any ASCII double quotes inside.
func CleanCommand(raw string) string {
	var line string
	for _, l := range strings.Split(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	for {
		trimmed := strings.TrimSpace(strings.Trim(line, quoteChars))
		if trimmed == line {
			break
		}
		line = trimmed
	}
	return strings.TrimSpace(strings.ReplaceAll(line, `"`, ""))
}
