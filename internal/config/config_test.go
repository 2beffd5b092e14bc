package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Enabled {
		t.Fatalf("defaults must enable tracking")
	}
	if cfg.AgeUnitsPerTimeUnit != 1.0 {
		t.Fatalf("age units wrong: %v", cfg.AgeUnitsPerTimeUnit)
	}
	if cfg.ContentTypes["grass"].ExpirationThreshold != 4.0 {
		t.Fatalf("grass threshold wrong: %+v", cfg.ContentTypes["grass"])
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Fatalf("default config file not written: %v", err)
	}
}

func TestLoadReadsExistingConfig(t *testing.T) {
	dir := t.TempDir()
	yaml := `enabled: false
age_units_per_time_unit: 0.5
content_types:
  silage:
    expiration_threshold: 10.0
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Enabled {
		t.Fatalf("enabled flag not honored")
	}
	if cfg.AgeUnitsPerTimeUnit != 0.5 {
		t.Fatalf("age units wrong: %v", cfg.AgeUnitsPerTimeUnit)
	}
	if _, ok := cfg.ContentTypes["silage"]; !ok {
		t.Fatalf("content types wrong: %+v", cfg.ContentTypes)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"non-positive age units": "age_units_per_time_unit: 0\n",
		"non-positive threshold": "content_types:\n  grass:\n    expiration_threshold: -1\n",
	}
	for name, yaml := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(dir); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestSettingsAdaptation(t *testing.T) {
	cfg := Config{
		Enabled:             false,
		AgeUnitsPerTimeUnit: 2.0,
		ContentTypes: map[string]contentTypeConfig{
			"grass": {ExpirationThreshold: 4.0, WarnThreshold: 3.0},
			"milk":  {ExpirationThreshold: 2.0},
		},
	}

	settings := cfg.Settings()
	if settings.Enabled() {
		t.Fatalf("disabled config must yield disabled settings")
	}
	if !settings.KnownContentType("grass") || settings.KnownContentType("hay") {
		t.Fatalf("known content types wrong")
	}
	if got := settings.ExpirationThreshold("grass"); got != 4.0 {
		t.Fatalf("expiration threshold wrong: %v", got)
	}
	if got := settings.WarnThreshold("milk"); got != 2.0 {
		t.Fatalf("warn threshold must default to expiration threshold, got %v", got)
	}

	sched := cfg.SchedulerConfig()
	if sched.AgeUnitsPerTimeUnit != 2.0 {
		t.Fatalf("scheduler config wrong: %+v", sched)
	}
	if sched.DriftTolerance != 0 {
		t.Fatalf("drift tolerance must be left for the scheduler default, got %v", sched.DriftTolerance)
	}
}
