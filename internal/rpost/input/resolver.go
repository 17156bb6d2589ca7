// Package input merges command-line flags, environment variables and
// interactive prompts into one set of named values.
package input

import (
	"context"
	"fmt"
	"strings"
)

// EnvPrefix namespaces every environment variable rpost reads.
const EnvPrefix = "RPOST_"

// Input declares one named value and how to ask for it.
type Input struct {
	Name      string
	Prompt    string
	Sensitive bool
}

// EnvKey is the environment variable consulted for the input.
func (in Input) EnvKey() string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(in.Name, "-", "_"))
}

// Source identifies where a resolved value came from.
type Source int

const (
	SourceNone Source = iota
	SourceFlag
	SourceEnv
	SourcePrompt
)

func (s Source) String() string {
	switch s {
	case SourceFlag:
		return "flag"
	case SourceEnv:
		return "env"
	case SourcePrompt:
		return "prompt"
	default:
		return "none"
	}
}

// Prompter asks the user for a value, hiding the echo when masked is set.
type Prompter interface {
	Prompt(ctx context.Context, label string, masked bool) (string, error)
}

// Sources are consulted in field order; the first one holding a value wins.
type Sources struct {
	// Flags holds only the flags explicitly set on the command line.
	Flags map[string]string
	// LookupEnv is usually os.LookupEnv.
	LookupEnv func(string) (string, bool)
	Prompter  Prompter
}

type entry struct {
	value  string
	source Source
}

// Values is the immutable result of a resolution.
type Values struct {
	entries map[string]entry
}

// Get returns the resolved value for name.
func (v Values) Get(name string) string {
	return v.entries[name].value
}

// Source reports which source supplied name.
func (v Values) Source(name string) Source {
	return v.entries[name].source
}

// Merge returns a new Values holding the entries of both, other winning on overlap.
func (v Values) Merge(other Values) Values {
	out := Values{entries: make(map[string]entry, len(v.entries)+len(other.entries))}
	for k, e := range v.entries {
		out.entries[k] = e
	}
	for k, e := range other.entries {
		out.entries[k] = e
	}
	return out
}

// Resolve produces a value for every input. Flags beat the environment, and
// the prompter is only asked for inputs neither of them supplied. Empty
// environment values count as unset. Values are not validated here.
func Resolve(ctx context.Context, inputs []Input, src Sources) (Values, error) {
	out := Values{entries: make(map[string]entry, len(inputs))}
	for _, in := range inputs {
		if value, ok := src.Flags[in.Name]; ok {
			out.entries[in.Name] = entry{value: value, source: SourceFlag}
			continue
		}
		if src.LookupEnv != nil {
			if value, ok := src.LookupEnv(in.EnvKey()); ok && value != "" {
				out.entries[in.Name] = entry{value: value, source: SourceEnv}
				continue
			}
		}
		if src.Prompter == nil {
			return Values{}, fmt.Errorf("no value for %s and no prompter available", in.Name)
		}
		value, err := src.Prompter.Prompt(ctx, in.Prompt, in.Sensitive)
		if err != nil {
			return Values{}, fmt.Errorf("prompt %s: %w", in.Name, err)
		}
		out.entries[in.Name] = entry{value: value, source: SourcePrompt}
	}
	return out, nil
}
