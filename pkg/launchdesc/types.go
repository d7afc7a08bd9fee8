package launchdesc

import (
	"sort"
	"strings"
)

// Format identifies the encoding of a descriptor source
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// AppSpec describes how to launch one worker process.
// Values returned by the loader are never mutated by this package; use Clone before changing one.
type AppSpec struct {
	Name             string            `yaml:"name" json:"name"`
	WorkingDirectory string            `yaml:"workingDirectory" json:"workingDirectory"`
	Command          string            `yaml:"command" json:"command"`
	Args             []string          `yaml:"args" json:"args"`
	Watch            bool              `yaml:"watch" json:"watch"`
	Environment      map[string]string `yaml:"environment" json:"environment"`
	IgnoreWatch      []string          `yaml:"ignoreWatch,omitempty" json:"ignoreWatch,omitempty"`
}

// Descriptor is the result of decoding one descriptor source
type Descriptor struct {
	Source string
	Format Format
	Apps   []AppSpec

	// UnknownKeys lists keys present in the source that no AppSpec field models,
	// e.g. "apps[0].instances" from a pm2 file.
	UnknownKeys []string
}

// Clone returns a deep copy
func (s AppSpec) Clone() AppSpec {
	clone := s
	clone.Args = append([]string{}, s.Args...)
	clone.IgnoreWatch = append([]string(nil), s.IgnoreWatch...)
	clone.Environment = make(map[string]string, len(s.Environment))
	for k, v := range s.Environment {
		clone.Environment[k] = v
	}
	return clone
}

// CommandLine renders command and args as a shell-quoted line for display
func (s AppSpec) CommandLine() string {
	parts := make([]string, 0, len(s.Args)+1)
	parts = append(parts, shellQuote(s.Command))
	for _, arg := range s.Args {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

// EnvironmentKeys returns the declared environment keys in sorted order
func (s AppSpec) EnvironmentKeys() []string {
	keys := make([]string, 0, len(s.Environment))
	for k := range s.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`;&|<>()*?[]#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
