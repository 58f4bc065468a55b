package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file (YAML, JSON, or JSON5 by extension),
// expands ${ENV_VAR} references, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	payload := []byte(expanded)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		// Round-trip through a raw map so the yaml field tags apply to
		// JSON5 input as well.
		var raw map[string]any
		if err := json5.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		payload, err = yaml.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("serialize config: %w", err)
		}
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(payload, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
