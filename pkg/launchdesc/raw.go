package launchdesc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// rawDescriptor mirrors the source document before validation.
// Apps holds pointers so a null entry survives decoding as nil.
type rawDescriptor struct {
	Apps []*rawApp `yaml:"apps" json:"apps" toml:"apps"`
}

// rawApp carries both the canonical key and the pm2 spelling where one exists
type rawApp struct {
	Name string `yaml:"name" json:"name" toml:"name"`

	WorkingDirectory string `yaml:"workingDirectory" json:"workingDirectory" toml:"workingDirectory"`
	Cwd              string `yaml:"cwd" json:"cwd" toml:"cwd"`

	Command string `yaml:"command" json:"command" toml:"command"`
	Script  string `yaml:"script" json:"script" toml:"script"`

	Args  argsValue `yaml:"args" json:"args" toml:"args"`
	Watch bool      `yaml:"watch" json:"watch" toml:"watch"`

	Environment envMap `yaml:"environment" json:"environment" toml:"environment"`
	Env         envMap `yaml:"env" json:"env" toml:"env"`

	IgnoreWatch      []string `yaml:"ignoreWatch" json:"ignoreWatch" toml:"ignoreWatch"`
	IgnoreWatchAlias []string `yaml:"ignore_watch" json:"ignore_watch" toml:"ignore_watch"`
}

// knownAppKeys lists every key rawApp decodes
var knownAppKeys = map[string]bool{
	"name":             true,
	"workingDirectory": true,
	"cwd":              true,
	"command":          true,
	"script":           true,
	"args":             true,
	"watch":            true,
	"environment":      true,
	"env":              true,
	"ignoreWatch":      true,
	"ignore_watch":     true,
}

// argsValue accepts either a single command-line string or a list of arguments
type argsValue struct {
	line *string
	list []string
}

func (a *argsValue) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.ShortTag() == "!!null" {
			return nil
		}
		line := value.Value
		a.line = &line
		return nil
	case yaml.SequenceNode:
		list := make([]string, 0, len(value.Content))
		if err := value.Decode(&list); err != nil {
			return err
		}
		a.list = list
		return nil
	default:
		return fmt.Errorf("line %d: args must be a string or a list of strings", value.Line)
	}
}

func (a *argsValue) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		a.line = &v
		return nil
	case []interface{}:
		list := make([]string, 0, len(v))
		for i, item := range v {
			s, err := tomlScalarString(item)
			if err != nil {
				return fmt.Errorf("args[%d]: %w", i, err)
			}
			list = append(list, s)
		}
		a.list = list
		return nil
	default:
		return fmt.Errorf("args must be a string or a list of strings, got %T", data)
	}
}

func (a *argsValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var line string
		if err := json.Unmarshal(data, &line); err != nil {
			return err
		}
		a.line = &line
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("args must be a string or a list of strings: %w", err)
	}
	if list == nil {
		list = []string{}
	}
	a.list = list
	return nil
}

// envMap stringifies scalar values so REDIS_PORT = 6379 decodes in TOML as it does in YAML
type envMap map[string]string

func (e *envMap) UnmarshalTOML(data interface{}) error {
	table, ok := data.(map[string]interface{})
	if !ok {
		return fmt.Errorf("environment must be a table, got %T", data)
	}
	out := make(envMap, len(table))
	for k, v := range table {
		s, err := tomlScalarString(v)
		if err != nil {
			return fmt.Errorf("environment.%s: %w", k, err)
		}
		out[k] = s
	}
	*e = out
	return nil
}

func (e *envMap) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var table map[string]interface{}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&table); err != nil {
		return fmt.Errorf("environment must be an object: %w", err)
	}
	out := make(envMap, len(table))
	for k, v := range table {
		s, err := jsonScalarString(v)
		if err != nil {
			return fmt.Errorf("environment.%s: %w", k, err)
		}
		out[k] = s
	}
	*e = out
	return nil
}

func jsonScalarString(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case bool:
		return fmt.Sprint(s), nil
	default:
		return "", fmt.Errorf("expected a scalar value, got %T", v)
	}
}

func tomlScalarString(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case int64, float64, bool:
		return fmt.Sprint(s), nil
	default:
		return "", fmt.Errorf("expected a scalar value, got %T", v)
	}
}
