package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tg")

	p, err := Load(Paths{ConfigDir: dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if p.ConfigPath != filepath.Join(dir, DefaultConfigFile) {
		t.Errorf("ConfigPath = %s", p.ConfigPath)
	}
	if p.ActivityPath != filepath.Join(dir, DefaultActivityFile) {
		t.Errorf("ActivityPath = %s", p.ActivityPath)
	}
	if p.DBPath != filepath.Join(dir, DefaultDBFile) {
		t.Errorf("DBPath = %s", p.DBPath)
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("config dir not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("config dir permissions = %04o, want 0700", perm)
	}
}

func TestLoad_KeepsOverrides(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(Paths{ConfigDir: dir, ConfigPath: "/etc/tork/config.yaml", DBPath: "/var/lib/tork.db"})
	if err != nil {
		t.Fatal(err)
	}
	if p.ConfigPath != "/etc/tork/config.yaml" || p.DBPath != "/var/lib/tork.db" {
		t.Errorf("overrides lost: %+v", p)
	}
	if p.ActivityPath != filepath.Join(dir, DefaultActivityFile) {
		t.Errorf("ActivityPath = %s", p.ActivityPath)
	}
}
