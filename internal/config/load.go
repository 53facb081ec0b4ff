package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	toml "github.com/pelletier/go-toml/v2"
)

// envSpec maps MODVAULT_* environment variables onto the canonical keys.
type envSpec struct {
	BufferSize string `envconfig:"CACHE_BUFSIZE"`
	CacheDir   string `envconfig:"CACHE_DIR"`
	Profile    string `envconfig:"CACHE_PROFILE"`
	ProfileDir string `envconfig:"CACHE_PROFILEDIR"`
}

// FromEnv builds Properties from MODVAULT_-prefixed environment
// variables. Unset variables leave their keys absent so the cache's own
// defaulting applies.
func FromEnv() (Properties, error) {
	var spec envSpec
	if err := envconfig.Process("MODVAULT", &spec); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	props := Properties{}
	if spec.BufferSize != "" {
		props[KeyBufferSize] = spec.BufferSize
	}
	if spec.CacheDir != "" {
		props[KeyCacheDir] = spec.CacheDir
	}
	if spec.Profile != "" {
		props[KeyProfile] = spec.Profile
	}
	if spec.ProfileDir != "" {
		props[KeyProfileDir] = spec.ProfileDir
	}
	return props, nil
}

// FromFile reads a properties file and flattens it into Properties.
// The format is chosen by extension: .yaml/.yml or .toml. Nested tables
// flatten with dotted keys, so a [cache] table with bufsize = 8192
// becomes cache.bufsize.
func FromFile(path string) (Properties, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var parsed map[string]interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}

	props := Properties{}
	flatten("", parsed, props)
	return props, nil
}

// Merge overlays b onto a, returning a new map. Keys in b win.
func Merge(a, b Properties) Properties {
	out := a.Clone()
	for k, v := range b {
		out[k] = v
	}
	return out
}

func flatten(prefix string, node map[string]interface{}, out Properties) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprintf("%v", val)
		}
	}
}
