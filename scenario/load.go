package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rate is a data rate in bits per second. In YAML it is either a number of
// bps or a string with a unit, such as "5Mbps" or "500kb/s".
type Rate float64

// Mbps builds a rate from megabits per second
func Mbps(v float64) Rate {
	return Rate(v * 1e6)
}

// Mbps returns the rate in megabits per second
func (r Rate) Mbps() float64 {
	return float64(r) / 1e6
}

func (r Rate) String() string {
	switch v := float64(r); {
	case v >= 1e9:
		return strconv.FormatFloat(v/1e9, 'g', -1, 64) + "Gbps"
	case v >= 1e6:
		return strconv.FormatFloat(v/1e6, 'g', -1, 64) + "Mbps"
	case v >= 1e3:
		return strconv.FormatFloat(v/1e3, 'g', -1, 64) + "Kbps"
	default:
		return strconv.FormatFloat(v, 'g', -1, 64) + "bps"
	}
}

var rateUnits = []struct {
	suffix string
	scale  float64
}{
	{"gbps", 1e9}, {"gb/s", 1e9},
	{"mbps", 1e6}, {"mb/s", 1e6},
	{"kbps", 1e3}, {"kb/s", 1e3},
	{"bps", 1}, {"b/s", 1},
}

// ParseRate parses a rate such as "5Mbps". A bare number is in bps.
func ParseRate(s string) (Rate, error) {
	text := strings.ToLower(strings.TrimSpace(s))
	scale := 1.0
	for _, u := range rateUnits {
		if rest, ok := strings.CutSuffix(text, u.suffix); ok {
			text, scale = strings.TrimSpace(rest), u.scale
			break
		}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || !finite(v) || v <= 0 {
		return 0, invalid("rate %q", s)
	}
	return Rate(v * scale), nil
}

// UnmarshalYAML accepts numbers and unit strings
func (r *Rate) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: rate must be a scalar", value.Line)
	}
	parsed, err := ParseRate(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*r = parsed
	return nil
}

// MarshalYAML writes the rate with a unit
func (r Rate) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}

// Load reads and validates a scenario file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	if cfg.Name == "" {
		cfg.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg as YAML
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode scenario: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write scenario file: %w", err)
	}
	return nil
}
