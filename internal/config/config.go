package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// FeatureDim is the fixed length of an acoustic feature vector.
	FeatureDim = 29

	defaultSampleRate    = 22050
	defaultThreshold     = 0.85
	defaultEmbeddingDim  = 128
	defaultStatusTail    = 10
	defaultStateDirLinux = ".local/state/mivta"
	defaultConfigDir     = ".config/mivta"
)

// Config holds user configuration loaded from TOML.
type Config struct {
	Audio struct {
		SampleRate int    `toml:"sample_rate"`
		Channels   int    `toml:"channels"`
		DeviceName string `toml:"device_name"`
		ChunkSize  int    `toml:"chunk_size"`
	} `toml:"audio"`

	Segment struct {
		MinDuration float64 `toml:"min_duration"` // seconds
		MaxDuration float64 `toml:"max_duration"` // seconds
		HopLength   int     `toml:"hop_length"`
		FrameLength int     `toml:"frame_length"`
		NMels       int     `toml:"n_mels"`
		SilenceRMS  float64 `toml:"silence_rms"`
		PreMax      float64 `toml:"pre_max"` // seconds
		PostMax     float64 `toml:"post_max"`
		PreAvg      float64 `toml:"pre_avg"`
		PostAvg     float64 `toml:"post_avg"`
		Delta       float64 `toml:"delta"`
		Wait        float64 `toml:"wait"`
	} `toml:"segment"`

	Features struct {
		FrameLength    int     `toml:"frame_length"`
		HopLength      int     `toml:"hop_length"`
		NMels          int     `toml:"n_mels"`
		NMFCC          int     `toml:"n_mfcc"`
		RolloffPercent float64 `toml:"rolloff_percent"`
	} `toml:"features"`

	Model struct {
		EmbeddingDim        int     `toml:"embedding_dim"`
		HiddenDim           int     `toml:"hidden_dim"`
		SimilarityThreshold float64 `toml:"similarity_threshold"`
		Epochs              int     `toml:"epochs"`
		LearningRate        float64 `toml:"learning_rate"`
		Margin              float64 `toml:"margin"`
		Seed                uint64  `toml:"seed"`
	} `toml:"model"`

	Correction struct {
		Workers     int `toml:"workers"`
		CrossfadeMS int `toml:"crossfade_ms"` // 0 disables boundary smoothing
		StretchFFT  int `toml:"stretch_fft"`
		StretchHop  int `toml:"stretch_hop"`
	} `toml:"correction"`

	Capture struct {
		QueueSize     int `toml:"queue_size"`
		JoinTimeoutMS int `toml:"join_timeout_ms"`
	} `toml:"capture"`

	Logging struct {
		Level  string `toml:"level"`  // debug, info, warn, error
		Format string `toml:"format"` // text, json
		Stdout bool   `toml:"stdout"`
	} `toml:"logging"`

	Paths struct {
		StateDir      string `toml:"state_dir"`
		LogPath       string `toml:"log_path"`
		StoreDir      string `toml:"store_dir"`
		SyllablesDir  string `toml:"syllables_dir"`
		RecordingsDir string `toml:"recordings_dir"`
		HistoryPath   string `toml:"history_path"`
		SocketPath    string `toml:"socket_path"`
		PidPath       string `toml:"pid_path"`
		ConfigPath    string `toml:"-"`
	} `toml:"paths"`

	Daemon struct {
		QueueSize   int `toml:"queue_size"`
		HistoryTail int `toml:"history_tail"`
	} `toml:"daemon"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`

	Hooks []HookConfig `toml:"hooks"`
}

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(home, defaultStateDirLinux)
	// macOS prefers ~/Library/Application Support/mivta for state/logs
	if isMac() {
		stateDir = filepath.Join(home, "Library", "Application Support", "mivta")
	}

	cfg := &Config{}

	cfg.Audio.SampleRate = defaultSampleRate
	cfg.Audio.Channels = 1
	cfg.Audio.ChunkSize = 1024

	cfg.Segment.MinDuration = 0.05
	cfg.Segment.MaxDuration = 1.5
	cfg.Segment.HopLength = 512
	cfg.Segment.FrameLength = 2048
	cfg.Segment.NMels = 128
	cfg.Segment.SilenceRMS = 1e-4
	cfg.Segment.PreMax = 0.03
	cfg.Segment.PostMax = 0.0
	cfg.Segment.PreAvg = 0.10
	cfg.Segment.PostAvg = 0.10
	cfg.Segment.Delta = 0.07
	cfg.Segment.Wait = 0.03

	cfg.Features.FrameLength = 512
	cfg.Features.HopLength = 128
	cfg.Features.NMels = 40
	cfg.Features.NMFCC = 13
	cfg.Features.RolloffPercent = 0.85

	cfg.Model.EmbeddingDim = defaultEmbeddingDim
	cfg.Model.HiddenDim = 64
	cfg.Model.SimilarityThreshold = defaultThreshold
	cfg.Model.Epochs = 50
	cfg.Model.LearningRate = 0.01
	cfg.Model.Margin = 0.5
	cfg.Model.Seed = 1

	cfg.Correction.Workers = max(1, runtime.NumCPU())
	cfg.Correction.CrossfadeMS = 0
	cfg.Correction.StretchFFT = 1024
	cfg.Correction.StretchHop = 256

	cfg.Capture.QueueSize = 64
	cfg.Capture.JoinTimeoutMS = 2000

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Paths.StateDir = stateDir
	cfg.Paths.LogPath = filepath.Join(stateDir, "mivta.log")
	cfg.Paths.StoreDir = filepath.Join(stateDir, "store")
	cfg.Paths.SyllablesDir = filepath.Join(stateDir, "syllables")
	cfg.Paths.RecordingsDir = filepath.Join(stateDir, "recordings")
	cfg.Paths.HistoryPath = filepath.Join(stateDir, "history.log")
	cfg.Paths.SocketPath = filepath.Join(stateDir, "mivta.sock")
	cfg.Paths.PidPath = filepath.Join(stateDir, "mivta.pid")

	cfg.Daemon.QueueSize = 4
	cfg.Daemon.HistoryTail = defaultStatusTail

	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:9318"

	return cfg, nil
}

// Load loads config from file, applying defaults.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, defaultConfigDir, "config.toml")
	}

	// Read if exists; otherwise write template.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, err
			}
			if err := Save(cfg, path); err != nil {
				return nil, err
			}
			cfg.Paths.ConfigPath = path
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Paths.ConfigPath = path
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Audio.SampleRate <= 0:
		return fmt.Errorf("audio.sample_rate must be positive (got %d)", c.Audio.SampleRate)
	case c.Audio.Channels != 1:
		return fmt.Errorf("only mono input supported; set audio.channels = 1")
	case c.Segment.MinDuration <= 0 || c.Segment.MaxDuration < c.Segment.MinDuration:
		return fmt.Errorf("segment durations must satisfy 0 < min_duration <= max_duration (got %.3f, %.3f)",
			c.Segment.MinDuration, c.Segment.MaxDuration)
	case c.Segment.HopLength <= 0 || c.Segment.FrameLength < c.Segment.HopLength:
		return fmt.Errorf("segment.frame_length must be >= hop_length > 0")
	case c.Features.HopLength <= 0 || c.Features.FrameLength < c.Features.HopLength:
		return fmt.Errorf("features.frame_length must be >= hop_length > 0")
	case c.Features.NMFCC <= 0 || c.Features.NMFCC > c.Features.NMels:
		return fmt.Errorf("features.n_mfcc must be in [1, n_mels]")
	case c.Model.SimilarityThreshold < 0 || c.Model.SimilarityThreshold > 1:
		return fmt.Errorf("model.similarity_threshold must be in [0,1] (got %.3f)", c.Model.SimilarityThreshold)
	case c.Model.EmbeddingDim <= 0 || c.Model.HiddenDim <= 0:
		return fmt.Errorf("model.embedding_dim and model.hidden_dim must be positive")
	case c.Correction.StretchHop <= 0 || c.Correction.StretchFFT < c.Correction.StretchHop:
		return fmt.Errorf("correction.stretch_fft must be >= stretch_hop > 0")
	}
	return nil
}

// JoinTimeout returns the capture collector join bound.
func (c *Config) JoinTimeout() time.Duration {
	return time.Duration(c.Capture.JoinTimeoutMS) * time.Millisecond
}

func isMac() bool {
	return runtime.GOOS == "darwin"
}

// MustStatePaths ensures state dirs exist.
func MustStatePaths(cfg *Config) error {
	for _, p := range []string{
		cfg.Paths.StateDir,
		filepath.Dir(cfg.Paths.LogPath),
		cfg.Paths.StoreDir,
		cfg.Paths.SyllablesDir,
		cfg.Paths.RecordingsDir,
		filepath.Dir(cfg.Paths.HistoryPath),
	} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIVTA_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("MIVTA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIVTA_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("MIVTA_LOG_STDOUT"); v != "" {
		cfg.Logging.Stdout = v != "0" && strings.ToLower(v) != "false"
	}
	if v := os.Getenv("MIVTA_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Model.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("MIVTA_SAMPLE_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Audio.SampleRate = n
		}
	}
}
