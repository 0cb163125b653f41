package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

var errTrailingData = errors.New("trailing data")

// ParseBytes decodes data on top of Default(): YAML when path ends in
// .yaml or .yml, JSON otherwise. Unknown keys and trailing documents are
// errors. The result is normalized and validated.
func ParseBytes(path string, data []byte) (*Config, error) {
	cfg := Default()
	decode := decodeJSON
	if isYAML(path) {
		decode = decodeYAML
	}
	if err := decode(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	Normalize(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func decodeJSON(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}

// decodeYAML treats an empty document as "all defaults".
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	var next yaml.Node
	switch err := dec.Decode(&next); {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return err
	default:
		return errTrailingData
	}
}
