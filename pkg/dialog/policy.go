package dialog

import (
	"fmt"
	"strconv"

	"github.com/dotsetgreg/dotfuzz/pkg/persona"
)

// PolicyOptions holds every constant a reply decision depends on.
type PolicyOptions struct {
	AutoNameToken       string  // lets the target pick the filename
	AutoNameProbability float64 // chance of answering a name prompt with AutoNameToken
	SuffixProbability   float64 // chance of appending _N to a chosen filename
	MaxSuffix           int     // N is drawn from [1, MaxSuffix]
	MenuChoice          string
	SafePath            string // answer to a rejected path
	FallbackExtension   string
	FallbackPath        string
}

// DefaultPolicyOptions are the probabilities and fallbacks the fuzzer ships with.
func DefaultPolicyOptions() PolicyOptions {
	return PolicyOptions{
		AutoNameToken:       "自动",
		AutoNameProbability: 0.2,
		SuffixProbability:   0.3,
		MaxSuffix:           99,
		MenuChoice:          "1",
		SafePath:            "桌面",
		FallbackExtension:   ".txt",
		FallbackPath:        "桌面",
	}
}

// Policy maps a prompt state and the round's persona to the text sent back.
// It draws randomness only from the injected source.
type Policy struct {
	rng  persona.Rand
	opts PolicyOptions
}

// NewPolicy returns a Policy drawing from rng. Equal seeds and inputs give
// equal replies.
func NewPolicy(rng persona.Rand, opts PolicyOptions) *Policy {
	if opts.MaxSuffix <= 0 {
		opts.MaxSuffix = 99
	}
	return &Policy{rng: rng, opts: opts}
}

func (p *Policy) Options() PolicyOptions {
	return p.opts
}

// Reply returns the answer for state. ok is false for terminal states, which
// the driver handles itself. States outside the enum are a programming error.
func (p *Policy) Reply(state State, pc persona.Context) (reply string, ok bool) {
	switch state {
	case NeedsExtension:
		return p.extension(pc), true
	case NeedsPathChoice:
		return p.opts.MenuChoice, true
	case NeedsName, NeedsFilename, StillMissingField:
		if p.rng.Float64() < p.opts.AutoNameProbability {
			return p.opts.AutoNameToken, true
		}
		return p.filename(pc), true
	case NeedsPath:
		return p.path(pc), true
	case NameNotFound:
		return p.opts.SafePath, true
	case TaskComplete, Ready, Timeout:
		return "", false
	default:
		panic(fmt.Sprintf("dialog: no reply rule for %s", state))
	}
}

func (p *Policy) filename(pc persona.Context) string {
	var base string
	if pc.Bound() {
		base = persona.Choose(p.rng, pc.Persona.Filenames)
	}
	if base == "" {
		return "file_" + strconv.Itoa(100+p.rng.Intn(900))
	}
	if p.rng.Float64() < p.opts.SuffixProbability {
		return base + "_" + strconv.Itoa(1+p.rng.Intn(p.opts.MaxSuffix))
	}
	return base
}

func (p *Policy) extension(pc persona.Context) string {
	if pc.Bound() {
		if ext := persona.Choose(p.rng, pc.Persona.Extensions); ext != "" {
			return ext
		}
	}
	return p.opts.FallbackExtension
}

func (p *Policy) path(pc persona.Context) string {
	if pc.Bound() {
		if path := persona.Choose(p.rng, pc.Persona.Paths); path != "" {
			return path
		}
	}
	return p.opts.FallbackPath
}
