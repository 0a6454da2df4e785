package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/hollomancer/sbir-analytics-sub004/pkg/matching"
)

// LoadProfile reads a TOML match profile over matching.DefaultConfig. An empty
// path returns the defaults.
func LoadProfile(path string) (matching.Config, error) {
	cfg := matching.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read match profile %s: %w", path, err)
	}
	return ParseProfile(b)
}

// ParseProfile decodes a TOML match profile over matching.DefaultConfig and
// validates the result. Unknown keys are rejected.
func ParseProfile(b []byte) (matching.Config, error) {
	cfg := matching.DefaultConfig()

	dec := toml.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode match profile: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid match profile: %w", err)
	}
	return cfg, nil
}
