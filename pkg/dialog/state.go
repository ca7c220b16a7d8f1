// Package dialog recognizes the target's prompts and decides the replies.
package dialog

import (
	"fmt"
	"regexp"
	"slices"
)

// State is a recognized class of target output.
type State int

// Declaration order is the match priority: when two patterns match at the
// same offset of the output buffer, the earlier state wins.
const (
	NeedsExtension State = iota
	NeedsPathChoice
	TaskComplete
	Ready
	NeedsName
	NeedsFilename
	NeedsPath
	StillMissingField
	NameNotFound
	Timeout
)

var stateNames = [...]string{
	NeedsExtension:    "needs_extension",
	NeedsPathChoice:   "needs_path_choice",
	TaskComplete:      "task_complete",
	Ready:             "ready",
	NeedsName:         "needs_name",
	NeedsFilename:     "needs_filename",
	NeedsPath:         "needs_path",
	StillMissingField: "still_missing_field",
	NameNotFound:      "name_not_found",
	Timeout:           "timeout",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Valid reports whether s is one of the declared states.
func (s State) Valid() bool {
	return s >= NeedsExtension && s <= Timeout
}

// Terminal states end a round without a reply from the policy.
func (s State) Terminal() bool {
	return s == TaskComplete || s == Ready || s == Timeout
}

// Patterns never cross a line break, so one prompt line can only be claimed
// by the pattern written for it.
var patterns = map[State]*regexp.Regexp{
	NeedsExtension:    regexp.MustCompile(`请输入后缀`),
	NeedsPathChoice:   regexp.MustCompile(`请选择`),
	TaskComplete:      regexp.MustCompile(`审计完成`),
	Ready:             regexp.MustCompile(`Ready\.`),
	NeedsName:         regexp.MustCompile(`叫什么名字`),
	NeedsFilename:     regexp.MustCompile(`请输入文件名`),
	NeedsPath:         regexp.MustCompile(`请问放在哪里`),
	StillMissingField: regexp.MustCompile(`还[缺需][^\n]*?个`),
	NameNotFound:      regexp.MustCompile(`找不到[^\n]*?请重新输入`),
}

// Pattern exposes the expression used for s; Timeout has none.
func Pattern(s State) (*regexp.Regexp, bool) {
	re, ok := patterns[s]
	return re, ok
}

// Match is a recognized state and the byte range it covered.
type Match struct {
	State State
	Start int
	End   int
}

// Matcher searches output for a fixed set of states.
type Matcher struct {
	states []State
}

// NewMatcher keeps the given states in priority order. Timeout is implicit
// and cannot be matched on text.
func NewMatcher(states ...State) *Matcher {
	m := &Matcher{}
	for _, s := range states {
		if _, ok := patterns[s]; !ok {
			continue
		}
		m.states = append(m.states, s)
	}
	slices.Sort(m.states)
	m.states = slices.Compact(m.states)
	return m
}

// RoundMatcher recognizes every prompt the target can show during a round.
func RoundMatcher() *Matcher {
	return NewMatcher(
		NeedsExtension, NeedsPathChoice, TaskComplete, Ready,
		NeedsName, NeedsFilename, NeedsPath, StillMissingField, NameNotFound,
	)
}

// ReadyMatcher only recognizes the idle marker.
func ReadyMatcher() *Matcher {
	return NewMatcher(Ready)
}

// States lists the recognized states in priority order.
func (m *Matcher) States() []State {
	return append([]State(nil), m.states...)
}

// Find returns the match that starts earliest in buf, breaking ties by
// priority.
func (m *Matcher) Find(buf []byte) (Match, bool) {
	best := Match{Start: -1}
	for _, s := range m.states {
		loc := patterns[s].FindIndex(buf)
		if loc == nil {
			continue
		}
		if best.Start < 0 || loc[0] < best.Start {
			best = Match{State: s, Start: loc[0], End: loc[1]}
		}
	}
	if best.Start < 0 {
		return Match{}, false
	}
	return best, true
}

// All lists every state whose pattern occurs anywhere in text.
func (m *Matcher) All(text string) []State {
	var out []State
	for _, s := range m.states {
		if patterns[s].MatchString(text) {
			out = append(out, s)
		}
	}
	return out
}
