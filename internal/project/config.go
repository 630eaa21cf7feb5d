package project

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"github.com/cochaviz/bakery/arch"
	"github.com/cochaviz/bakery/internal/repositories"
)

// DefaultConfigFile is read from the project directory unless overridden.
const DefaultConfigFile = "rugpi-bakery.toml"

// BakeryConfig is the project configuration.
type BakeryConfig struct {
	Architecture arch.Architecture              `toml:"architecture"`
	Recipes      []string                       `toml:"recipes"`
	Exclude      []string                       `toml:"exclude"`
	Parameters   map[string]map[string]any      `toml:"parameters"`
	Repositories map[string]repositories.Source `toml:"repositories"`
}

// LoadConfig reads and validates a configuration file.
func LoadConfig(path string) (BakeryConfig, error) {
	var config BakeryConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("read configuration: %w", err)
	}

	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&config); err != nil {
		return config, fmt.Errorf("parse configuration %s: %w", path, err)
	}

	if config.Architecture == "" {
		config.Architecture = arch.Default
	}
	if _, err := StringParameters(config.Parameters); err != nil {
		return config, fmt.Errorf("parse configuration %s: %w", path, err)
	}
	return config, nil
}

// StringParameters converts configured parameter values to their textual form.
// Strings are kept as they are; integers, floats and booleans are formatted.
func StringParameters(parameters map[string]map[string]any) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string, len(parameters))
	for recipe, values := range parameters {
		converted := make(map[string]string, len(values))
		for name, value := range values {
			text, err := formatParameter(value)
			if err != nil {
				return nil, fmt.Errorf("parameter %q of recipe %q: %w", name, recipe, err)
			}
			converted[name] = text
		}
		out[recipe] = converted
	}
	return out, nil
}

func formatParameter(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported value of type %T", value)
	}
}
