package config

import (
	"os"
	"testing"
)

func TestEnvOverrides(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.ConfigPath = "/tmp/config" // avoid creation

	t.Setenv("MIVTA_METRICS_ADDR", "1.2.3.4:9999")
	t.Setenv("MIVTA_LOG_LEVEL", "debug")
	t.Setenv("MIVTA_LOG_FORMAT", "json")
	t.Setenv("MIVTA_THRESHOLD", "0.7")
	t.Setenv("MIVTA_SAMPLE_RATE", "16000")

	applyEnvOverrides(cfg)

	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "1.2.3.4:9999" {
		t.Fatalf("metrics override failed: %+v", cfg.Metrics)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging overrides failed: %+v", cfg.Logging)
	}
	if cfg.Model.SimilarityThreshold != 0.7 {
		t.Fatalf("threshold override failed: %v", cfg.Model.SimilarityThreshold)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("sample rate override failed: %d", cfg.Audio.SampleRate)
	}
}

func TestInvalidThresholdEnvIgnored(t *testing.T) {
	cfg, _ := Default()
	t.Setenv("MIVTA_THRESHOLD", "high")
	applyEnvOverrides(cfg)
	if cfg.Model.SimilarityThreshold != defaultThreshold {
		t.Fatalf("expected default threshold, got %v", cfg.Model.SimilarityThreshold)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.toml"

	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.ConfigPath = path
	cfg.Segment.MaxDuration = 0.5
	cfg.Hooks = []HookConfig{{On: HookOnCorrected, Command: "/bin/echo"}}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Segment.MaxDuration != 0.5 {
		t.Fatalf("expected max_duration to persist, got %v", loaded.Segment.MaxDuration)
	}
	if len(loaded.Hooks) != 1 || loaded.Hooks[0].Command != "/bin/echo" {
		t.Fatalf("expected hooks to persist: %+v", loaded.Hooks)
	}

	_ = os.Remove(path)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"stereo", func(c *Config) { c.Audio.Channels = 2 }, false},
		{"inverted durations", func(c *Config) { c.Segment.MinDuration = 2; c.Segment.MaxDuration = 1 }, false},
		{"threshold above one", func(c *Config) { c.Model.SimilarityThreshold = 1.5 }, false},
		{"too many mfcc", func(c *Config) { c.Features.NMFCC = 80 }, false},
		{"zero stretch hop", func(c *Config) { c.Correction.StretchHop = 0 }, false},
	}
	for _, c := range cases {
		cfg, _ := Default()
		c.mutate(cfg)
		err := cfg.Validate()
		if (err == nil) != c.ok {
			t.Fatalf("%s: Validate() err=%v, want ok=%v", c.name, err, c.ok)
		}
	}
}
