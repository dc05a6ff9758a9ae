package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration document from disk. Files ending in ".cue" are
// evaluated as CUE, everything else is parsed as YAML.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg *File
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		cfg, err = parseCUE(path, raw)
	} else {
		cfg, err = parseYAML(raw)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseYAML(raw []byte) (*File, error) {
	var cfg File
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func parseCUE(path string, raw []byte) (*File, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(raw, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compile cue config: %w", err)
	}
	var cfg File
	if err := value.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode cue config: %w", err)
	}
	return &cfg, nil
}
