package policy

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a configuration file. A missing file yields DefaultConfig so a
// fresh install works without any setup.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document, validates it against the configuration
// schema and overlays it onto DefaultConfig. It does not require an API key;
// call Validate once every source (file, env, flags) has been merged.
func Parse(data []byte) (*Config, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if len(doc) == 0 {
		return DefaultConfig(), nil
	}

	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// Validate checks the invariants the schema cannot express on its own.
func (c *Config) Validate() error {
	var problems []string

	if c.APIKey == "" {
		problems = append(problems, "api_key is required")
	}
	if c.TimeoutSeconds < 0 || c.TimeoutSeconds > MaxTimeoutSeconds {
		problems = append(problems, fmt.Sprintf("timeout_seconds must not exceed %d", MaxTimeoutSeconds))
	}
	switch c.Policy {
	case ToolModeStrict, ToolModeStandard, ToolModeMinimal:
	default:
		problems = append(problems, fmt.Sprintf("unknown policy %q", c.Policy))
	}
	switch c.NetworkPolicy {
	case NetworkDefault, NetworkStrict, NetworkCustom:
	default:
		problems = append(problems, fmt.Sprintf("unknown network_policy %q", c.NetworkPolicy))
	}
	if c.MaxConnectionsPerMinute != nil && *c.MaxConnectionsPerMinute < 0 {
		problems = append(problems, "max_connections_per_minute must not be negative")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Marshal renders cfg as YAML. The API key is never written out.
func Marshal(cfg *Config) ([]byte, error) {
	out := *cfg
	out.APIKey = ""

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
