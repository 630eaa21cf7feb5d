package layers

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/cochaviz/bakery/arch"
	"github.com/cochaviz/bakery/internal/repositories"
)

// FileExtension is the extension of layer configuration files.
const FileExtension = ".toml"

// ErrInvalidLayer is returned for layer files that cannot be used.
var ErrInvalidLayer = errors.New("invalid layer")

// LayerConfig selects and parameterizes the recipes making up a layer.
//
// Parent names the layer this one builds on. Customizing a layer does not
// build its parent; the source archive passed in by the caller is the
// parent's output.
type LayerConfig struct {
	Name       string                    `toml:"name"`
	Parent     string                    `toml:"parent"`
	Recipes    []string                  `toml:"recipes"`
	Exclude    []string                  `toml:"exclude"`
	Parameters map[string]map[string]any `toml:"parameters"`
}

// Layer accumulates every configuration file contributing to one layer name.
type Layer struct {
	Repository repositories.RepositoryIdx
	// Modified is the latest modification time over all contributing files.
	Modified      time.Time
	DefaultConfig *LayerConfig
	ArchConfigs   map[arch.Architecture]*LayerConfig
}

// New returns an empty layer first seen at modified.
func New(repository repositories.RepositoryIdx, modified time.Time) *Layer {
	return &Layer{
		Repository:  repository,
		Modified:    modified,
		ArchConfigs: map[arch.Architecture]*LayerConfig{},
	}
}

// Add merges a configuration file into the layer. A nil architecture sets the
// default configuration.
func (l *Layer) Add(architecture *arch.Architecture, config *LayerConfig, modified time.Time) {
	if modified.After(l.Modified) {
		l.Modified = modified
	}
	if architecture == nil {
		l.DefaultConfig = config
		return
	}
	l.ArchConfigs[*architecture] = config
}

// Config returns the configuration for the given architecture, falling back
// to the default configuration. Returns nil if neither exists.
func (l *Layer) Config(architecture arch.Architecture) *LayerConfig {
	if config, ok := l.ArchConfigs[architecture]; ok {
		return config
	}
	return l.DefaultConfig
}

// ParseFilename splits a layer filename into its name and optional architecture.
func ParseFilename(filename string) (string, *arch.Architecture, error) {
	stem := strings.TrimSuffix(filename, FileExtension)
	name, archToken, found := strings.Cut(stem, ".")
	if name == "" {
		return "", nil, fmt.Errorf("%w %q: empty name", ErrInvalidLayer, filename)
	}
	if !found {
		return name, nil, nil
	}
	architecture, err := arch.Parse(archToken)
	if err != nil {
		return "", nil, fmt.Errorf("%w %q: %w", ErrInvalidLayer, filename, err)
	}
	return name, &architecture, nil
}

// LoadConfig reads a layer configuration file.
func LoadConfig(path string) (*LayerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var config LayerConfig
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidLayer, filepath.Base(path), err)
	}
	return &config, nil
}
