package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Top-level YAML keys handled as whole sections.
const (
	keyLogging = "logging"
)

// scalarKeys are top-level keys that map to a single Config field.
//
//nolint:gochecknoglobals // Compile-time constant lookup table.
var scalarKeys = map[string]bool{
	"forecast_horizon": true,
	"model_path":       true,
	"scratch_root":     true,
	"scratch_policy":   true,
	"error_policy":     true,
	"mini_batch_size":  true,
	"workers":          true,
}

// LoadFile returns defaults overlaid with the YAML file at path.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := MergeYAML(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeYAML loads a YAML file and merges its top-level keys onto target.
// Keys present in the file replace the target value; the logging section is
// replaced as a whole. Unknown keys are ignored.
func MergeYAML(target *Config, path string) error {
	if target == nil {
		return errors.New("nil target *Config in MergeYAML")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	var overlay map[string]yaml.Node
	if err = yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing config YAML from %s: %w", path, err)
	}

	// Empty or comment-only file: nothing to merge.
	if len(overlay) == 0 {
		return nil
	}

	for key, node := range overlay {
		switch {
		case key == keyLogging:
			var v LoggingConfig
			if err = node.Decode(&v); err != nil {
				return fmt.Errorf("applying config section %q: %w", key, err)
			}
			target.Logging = v
		case scalarKeys[key]:
			if err = decodeScalar(target, key, &node); err != nil {
				return fmt.Errorf("applying config key %q: %w", key, err)
			}
		}
	}

	return nil
}

// decodeScalar decodes a single scalar key onto its Config field.
func decodeScalar(target *Config, key string, node *yaml.Node) error {
	switch key {
	case "forecast_horizon":
		return node.Decode(&target.ForecastHorizon)
	case "model_path":
		return node.Decode(&target.ModelPath)
	case "scratch_root":
		return node.Decode(&target.ScratchRoot)
	case "scratch_policy":
		return node.Decode(&target.ScratchPolicy)
	case "error_policy":
		return node.Decode(&target.ErrorPolicy)
	case "mini_batch_size":
		return node.Decode(&target.MiniBatchSize)
	case "workers":
		return node.Decode(&target.Workers)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
}
