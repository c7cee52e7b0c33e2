package policy

import (
	"fmt"
	"sort"
)

// Presets are starting points for `torkguard policy init`. None of them
// carries an API key.
var presets = map[string]func() *Config{
	"minimal":     MinimalConfig,
	"development": DevelopmentConfig,
	"production":  ProductionConfig,
	"enterprise":  EnterpriseConfig,
}

// Preset returns the named preset.
func Preset(name string) (*Config, error) {
	fn, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q (available: %v)", name, PresetNames())
	}
	return fn(), nil
}

// PresetNames lists the available presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func MinimalConfig() *Config {
	return DefaultConfig()
}

// DevelopmentConfig disables tool governance but keeps the default network
// profile so SSRF and hijack detection still run on a laptop.
func DevelopmentConfig() *Config {
	cfg := DefaultConfig()
	cfg.Policy = ToolModeMinimal
	cfg.RedactPII = false
	cfg.NetworkPolicy = NetworkDefault
	return cfg
}

// ProductionConfig blocks the usual exfiltration and tunnelling endpoints on
// top of the default profile.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Policy = ToolModeStandard
	cfg.NetworkPolicy = NetworkCustom
	cfg.BlockedDomains = []string{
		"pastebin.com",
		"ngrok.io",
		"webhook.site",
		"requestbin.com",
		"transfer.sh",
	}
	return cfg
}

func EnterpriseConfig() *Config {
	cfg := DefaultConfig()
	cfg.Policy = ToolModeStrict
	cfg.NetworkPolicy = NetworkStrict
	maxConn := 20
	cfg.MaxConnectionsPerMinute = &maxConn
	cfg.AllowedDomains = []string{
		"api.openai.com",
		"api.anthropic.com",
		"tork.network",
	}
	return cfg
}
