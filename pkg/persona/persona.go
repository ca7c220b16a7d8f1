// Package persona holds the simulated user profiles that drive each round.
package persona

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rand is the random source every selection goes through. *math/rand.Rand
// satisfies it.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// ErrInvalidPersona wraps every registry validation failure.
var ErrInvalidPersona = errors.New("invalid persona")

// Persona is immutable once a Registry has been built from it.
type Persona struct {
	ID              string   `yaml:"id"`
	RoleDescription string   `yaml:"role_description"`
	Topics          []string `yaml:"topics"`
	Filenames       []string `yaml:"filenames"`
	Extensions      []string `yaml:"extensions"`
	Paths           []string `yaml:"paths"`
}

func (p Persona) clone() Persona {
	p.Topics = append([]string(nil), p.Topics...)
	p.Filenames = append([]string(nil), p.Filenames...)
	p.Extensions = append([]string(nil), p.Extensions...)
	p.Paths = append([]string(nil), p.Paths...)
	return p
}

func (p Persona) validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPersona)
	}
	if strings.TrimSpace(p.RoleDescription) == "" {
		return fmt.Errorf("%w: %s: role_description is required", ErrInvalidPersona, p.ID)
	}
	if len(p.Topics) == 0 {
		return fmt.Errorf("%w: %s: at least one topic is required", ErrInvalidPersona, p.ID)
	}
	return nil
}

// Context binds one persona and one of its topics to a single round.
// The zero value has no persona; reply decisions then use their fallbacks.
type Context struct {
	Persona *Persona
	Topic   string
}

// ID is the bound persona's id, or "" for the zero Context.
func (c Context) ID() string {
	if c.Persona == nil {
		return ""
	}
	return c.Persona.ID
}

// Bound reports whether a persona is attached.
func (c Context) Bound() bool {
	return c.Persona != nil
}

// Registry is an ordered, read-only set of personas.
type Registry struct {
	personas []*Persona
	byID     map[string]*Persona
}

// NewRegistry validates personas and copies them; later changes to the
// argument do not reach the registry.
func NewRegistry(personas []Persona) (*Registry, error) {
	if len(personas) == 0 {
		return nil, fmt.Errorf("%w: registry needs at least one persona", ErrInvalidPersona)
	}
	r := &Registry{
		personas: make([]*Persona, 0, len(personas)),
		byID:     make(map[string]*Persona, len(personas)),
	}
	for _, p := range personas {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidPersona, p.ID)
		}
		cp := p.clone()
		r.personas = append(r.personas, &cp)
		r.byID[cp.ID] = &cp
	}
	return r, nil
}

type personaFile struct {
	Personas []Persona `yaml:"personas"`
}

// LoadRegistry reads a YAML document with a top-level "personas" list.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personas file: %w", err)
	}
	var doc personaFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse personas file %s: %w", path, err)
	}
	return NewRegistry(doc.Personas)
}

// WriteFile stores personas in the format LoadRegistry reads.
func WriteFile(path string, personas []Persona) error {
	if _, err := NewRegistry(personas); err != nil {
		return err
	}
	data, err := yaml.Marshal(personaFile{Personas: personas})
	if err != nil {
		return fmt.Errorf("encode personas: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Len is the number of personas in the registry.
func (r *Registry) Len() int {
	return len(r.personas)
}

// Get returns a copy of the persona with the given id.
func (r *Registry) Get(id string) (Persona, bool) {
	p, ok := r.byID[id]
	if !ok {
		return Persona{}, false
	}
	return p.clone(), true
}

// IDs lists the persona ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.personas))
	for _, p := range r.personas {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	return ids
}

// Pick selects a persona and then one of its topics, both uniformly. The
// context holds its own copy of the persona.
func (r *Registry) Pick(rng Rand) Context {
	p := r.personas[rng.Intn(len(r.personas))].clone()
	return Context{
		Persona: &p,
		Topic:   p.Topics[rng.Intn(len(p.Topics))],
	}
}

// Choose returns a uniform element of items, or "" when items is empty.
func Choose(rng Rand, items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[rng.Intn(len(items))]
}
