// Package config resolves where tork-guardian keeps its files.
package config

import (
	"os"
	"path/filepath"
)

const (
	DefaultConfigDir    = ".torkguardian"
	DefaultConfigFile   = "config.yaml"
	DefaultActivityFile = "activity.jsonl"
	DefaultDBFile       = "activity.db"
)

type Paths struct {
	ConfigDir    string
	ConfigPath   string
	ActivityPath string
	DBPath       string
}

// Load fills every empty field of overrides with its default location and
// makes sure the config directory exists.
func Load(overrides Paths) (*Paths, error) {
	p := overrides

	if p.ConfigDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		p.ConfigDir = filepath.Join(homeDir, DefaultConfigDir)
	}

	if err := ensureDir(p.ConfigDir); err != nil {
		return nil, err
	}

	if p.ConfigPath == "" {
		p.ConfigPath = filepath.Join(p.ConfigDir, DefaultConfigFile)
	}
	if p.ActivityPath == "" {
		p.ActivityPath = filepath.Join(p.ConfigDir, DefaultActivityFile)
	}
	if p.DBPath == "" {
		p.DBPath = filepath.Join(p.ConfigDir, DefaultDBFile)
	}

	return &p, nil
}

func ensureDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0700)
	}
	return nil
}
