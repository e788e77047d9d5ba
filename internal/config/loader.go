package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads and parses a simulation file.
func LoadConfig(path string) (*Simulation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read simulation file: %w", err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses simulation data. The format follows the extension of
// path: .json is JSON, anything else is YAML. Unknown fields are rejected.
func ParseConfig(data []byte, path string) (*Simulation, error) {
	var sim Simulation

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&sim); err != nil {
			return nil, fmt.Errorf("failed to parse JSON simulation: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&sim); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("failed to parse YAML simulation: empty document")
			}
			return nil, fmt.Errorf("failed to parse YAML simulation: %w", err)
		}
	}
	return &sim, nil
}

// ParseDurationString parses a Go duration ("1m30s") or a number of seconds
// ("15", "0.5"). The empty string is zero.
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("invalid duration format: %s", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
