// Package config provides configuration loading for docqd.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Load loads configuration from an optional YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (DOCQD_SERVER_ADDR, DOCQD_LLM_MODEL, ...)
//  2. YAML config file (path argument; skipped when empty or missing)
//  3. Hardcoded defaults
//
// Environment variables are prefixed with DOCQD_ and map to config keys by
// splitting on the first underscore after the prefix:
//
//	DOCQD_SERVER_ADDR       -> server.addr
//	DOCQD_LLM_BASE_URL      -> llm.base_url
//	DOCQD_INDEX_VECTOR_SIZE -> index.vector_size
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
			}
		} else if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("DOCQD_", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	return unmarshal(k)
}

// LoadBytes loads configuration from raw YAML bytes. Used in tests.
func LoadBytes(content []byte) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return unmarshal(k)
}

// envTransform maps DOCQD_SECTION_FIELD_NAME to section.field_name.
// The section is the part before the first underscore; remaining
// underscores belong to the field name.
func envTransform(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, "DOCQD_"))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}
