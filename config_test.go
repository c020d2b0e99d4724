package replan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.MaxSuccesses != -1 || cfg.MaxFailures != -1 {
		t.Errorf("expected unbounded defaults, got %d/%d", cfg.MaxSuccesses, cfg.MaxFailures)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"probability above one", func(c *Config) { c.PRandomize = 1.5 }},
		{"zero attempts", func(c *Config) { c.Attempts.Pick = 0 }},
		{"bounds below unbounded", func(c *Config) { c.MaxFailures = -2 }},
		{"inverted annulus", func(c *Config) { c.BaseRadiusMax = c.BaseRadiusMin }},
		{"zero resolution", func(c *Config) { c.ArmResolution = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestConfigBuilders(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WithCollisions(false).WithTeleport(true).WithLearned(false).WithSeed(9).WithBounds(2, 3)
	if cfg.Collisions || !cfg.Teleport || cfg.Learned || cfg.Seed != 9 {
		t.Errorf("expected builders to apply, got %+v", cfg)
	}
	if cfg.MaxSuccesses != 2 || cfg.MaxFailures != 3 {
		t.Errorf("expected bounds 2/3, got %d/%d", cfg.MaxSuccesses, cfg.MaxFailures)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("OverridesDefaults", func(t *testing.T) {
		path := filepath.Join(dir, "ok.yaml")
		data := "collisions: false\nattempts:\n  pick: 3\nseed: 42\n"
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Collisions {
			t.Error("expected collisions disabled")
		}
		if cfg.Attempts.Pick != 3 || cfg.Seed != 42 {
			t.Errorf("expected pick=3 seed=42, got %d %d", cfg.Attempts.Pick, cfg.Seed)
		}
		if cfg.Attempts.Pull != DefaultConfig().Attempts.Pull {
			t.Errorf("expected missing keys to keep defaults, got pull=%d", cfg.Attempts.Pull)
		}
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("door_error_percent: 3\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(dir, "absent.yaml")); err == nil {
			t.Error("expected an error for a missing file")
		}
	})
}
