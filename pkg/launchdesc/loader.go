package launchdesc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/core-tools/hsu-launch-go/pkg/errors"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DecodeOptions controls how relative paths in a descriptor are resolved
type DecodeOptions struct {
	// BaseDir resolves relative working directories. Empty means relative
	// working directories are rejected.
	BaseDir string
}

// Load parses and validates a descriptor held in memory.
// The returned apps preserve input order.
func Load(data []byte, format Format) ([]AppSpec, error) {
	descriptor, err := Decode(data, format, DecodeOptions{})
	if err != nil {
		return nil, err
	}
	return descriptor.Apps, nil
}

// LoadFile reads, parses and validates a descriptor file
func LoadFile(path string) ([]AppSpec, error) {
	descriptor, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return descriptor.Apps, nil
}

// DecodeFile is LoadFile returning the full Descriptor.
// The format comes from the file extension and relative working
// directories resolve against the file's directory.
func DecodeFile(path string) (*Descriptor, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.NewIOError("failed to resolve descriptor path", err).WithContext("filename", path)
	}

	descriptor, err := Decode(data, DetectFormat(path), DecodeOptions{BaseDir: filepath.Dir(absPath)})
	if err != nil {
		if de, ok := err.(*errors.DomainError); ok {
			return nil, de.WithContext("filename", path)
		}
		return nil, err
	}
	descriptor.Source = path
	return descriptor, nil
}

// Decode parses and validates a descriptor, reporting unmodelled keys alongside the apps
func Decode(data []byte, format Format, options DecodeOptions) (*Descriptor, error) {
	generic, err := decodeGeneric(data, format)
	if err != nil {
		return nil, err
	}
	if _, ok := generic["apps"]; !ok {
		return nil, errors.NewParseError("descriptor has no 'apps' list", nil).WithContext("format", string(format))
	}

	var raw rawDescriptor
	if err := decodeTyped(data, format, &raw); err != nil {
		return nil, err
	}

	apps, err := normalizeApps(raw.Apps, options)
	if err != nil {
		return nil, err
	}

	return &Descriptor{
		Format:      format,
		Apps:        apps,
		UnknownKeys: unknownKeys(generic),
	}, nil
}

// DetectFormat picks a format from the file extension, defaulting to YAML
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".toml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError("failed to open descriptor file", err).WithContext("filename", path)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.NewIOError("failed to read descriptor file", err).WithContext("filename", path)
	}
	return data, nil
}

func decodeGeneric(data []byte, format Format) (map[string]interface{}, error) {
	generic := make(map[string]interface{})
	if err := decodeTyped(data, format, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

func decodeTyped(data []byte, format Format, out interface{}) error {
	switch format {
	case FormatYAML:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		if err := decoder.Decode(out); err != nil {
			if err == io.EOF {
				return nil
			}
			return newFormatParseError(format, err)
		}
		return expectEOF(format, decoder.Decode(new(yaml.Node)))
	case FormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(data))
		if err := decoder.Decode(out); err != nil {
			return newFormatParseError(format, err)
		}
		var trailing json.RawMessage
		return expectEOF(format, decoder.Decode(&trailing))
	case FormatTOML:
		if _, err := toml.Decode(string(data), out); err != nil {
			return newFormatParseError(format, err)
		}
		return nil
	default:
		return errors.NewParseError(fmt.Sprintf("unsupported descriptor format: %s", format), nil).
			WithContext("supported_formats", "yaml, json, toml")
	}
}

// expectEOF rejects a second YAML document or trailing JSON values
func expectEOF(format Format, err error) error {
	if err == io.EOF {
		return nil
	}
	if err == nil {
		return errors.NewParseError(fmt.Sprintf("%s descriptor must hold a single document", format), nil).
			WithContext("format", string(format))
	}
	return newFormatParseError(format, err)
}

func newFormatParseError(format Format, err error) error {
	return errors.NewParseError(fmt.Sprintf("failed to parse %s descriptor", format), err).
		WithContext("format", string(format))
}

func unknownKeys(generic map[string]interface{}) []string {
	var unknown []string
	for key, value := range generic {
		if key != "apps" {
			unknown = append(unknown, key)
			continue
		}
		for i, entry := range appEntries(value) {
			for appKey := range entry {
				if !knownAppKeys[appKey] {
					unknown = append(unknown, fmt.Sprintf("apps[%d].%s", i, appKey))
				}
			}
		}
	}
	sort.Strings(unknown)
	return unknown
}

// appEntries normalizes the generic "apps" value; YAML yields []interface{},
// TOML arrays of tables yield []map[string]interface{}.
func appEntries(value interface{}) []map[string]interface{} {
	switch v := value.(type) {
	case []map[string]interface{}:
		return v
	case []interface{}:
		entries := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			entry, _ := item.(map[string]interface{})
			entries = append(entries, entry)
		}
		return entries
	default:
		return nil
	}
}
