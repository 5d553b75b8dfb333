package instrument

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a single configuration. The format follows the file
// extension (.json, .yaml, .yml or .toml) and the name is the file stem.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))

	var c Config
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&c)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&c)
	case ".toml":
		err = toml.Unmarshal(data, &c)
	default:
		return nil, fmt.Errorf("%w: unsupported config file %s", ErrInvalidConfig, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrInvalidConfig, path, err)
	}

	c.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err = c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadDir reads every configuration file in dir. Files with other
// extensions are ignored. Two files sharing a stem are an error.
func LoadDir(dir string) (map[string]*Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading config directory: %w", err)
	}

	configs := make(map[string]*Config)
	for _, e := range entries {
		if e.IsDir() || !isConfigFile(e.Name()) {
			continue
		}

		c, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if _, dup := configs[c.Name]; dup {
			return nil, fmt.Errorf("%w: configuration %q defined more than once in %s", ErrInvalidConfig, c.Name, dir)
		}
		configs[c.Name] = c
	}
	return configs, nil
}

// Names returns the sorted configuration names.
func Names(configs map[string]*Config) []string {
	names := make([]string, 0, len(configs))
	for n := range configs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func isConfigFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml", ".toml":
		return true
	}
	return false
}
