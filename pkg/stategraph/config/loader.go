package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the encoding of a definition document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf picks the format from a file extension: .yaml, .yml or .json.
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// Parse decodes data in the given format. An empty document gives an empty
// Config.
func Parse(data []byte, format Format) (Config, error) {
	var m map[string]any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &m); err != nil {
			return Config{}, fmt.Errorf("parse json: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unknown config format %q", format)
	}
	return New(m), nil
}

// FromYAML parses a YAML document.
func FromYAML(data []byte) (Config, error) {
	return Parse(data, FormatYAML)
}

// FromJSON parses a JSON document.
func FromJSON(data []byte) (Config, error) {
	return Parse(data, FormatJSON)
}

// FromFile loads a definition file. With expandEnv, ${VAR} and $VAR
// references are replaced from the environment before parsing, so thread
// prefixes or database paths can differ per deployment.
func FromFile(path string, expandEnv ...bool) (Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if len(expandEnv) > 0 && expandEnv[0] {
		data = []byte(os.ExpandEnv(string(data)))
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// FromFiles loads and merges files in order; later files override earlier
// ones. A typical layout is a shared graph definition followed by a
// per-environment file that only sets checkpointer or retry keys.
func FromFiles(paths ...string) (Config, error) {
	merged := New(nil)
	for _, path := range paths {
		cfg, err := FromFile(path)
		if err != nil {
			return Config{}, err
		}
		merged = Merge(merged, cfg)
	}
	return merged, nil
}

// Merge returns base overlaid with override. Nested maps merge key by key;
// any other value in override (lists included) replaces the base value.
// Neither input is modified.
func Merge(base, override Config) Config {
	return New(mergeMaps(base.data, override.data))
}

func mergeMaps(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if over, ok := asMap(v); ok {
			if under, ok := asMap(out[k]); ok {
				out[k] = mergeMaps(under, over)
				continue
			}
		}
		out[k] = v
	}
	return out
}
